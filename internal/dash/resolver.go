package dash

import (
	"fmt"
	"math"

	"xstreamdl/internal/logger"
	"xstreamdl/internal/uri"
)

// Resolver compiles a parsed manifest into per-representation download
// plans. It is a one-shot, stateless translation: structural oddities in a
// Representation are logged and yield zero segments for that track, they
// never abort the rest of the manifest.
type Resolver struct {
	log     logger.Logger
	saveDir string
	// split suppresses the cross-period merge, returning one stream per
	// Representation per Period.
	split bool
}

// NewResolver creates a resolver writing stream folders under saveDir.
func NewResolver(log logger.Logger, saveDir string, split bool) *Resolver {
	return &Resolver{log: log, saveDir: saveDir, split: split}
}

// Parse resolves the manifest's location and compiles its download plans.
// Only a failure to resolve the location (or to decode the document) is an
// error; the caller should skip this manifest and continue with others.
func (r *Resolver) Parse(rawURL string, content []byte) ([]*Stream, error) {
	loc, err := uri.Split(rawURL)
	if err != nil {
		return nil, err
	}
	doc, err := Parse(content)
	if err != nil {
		return nil, err
	}
	streams := r.Streams(doc, loc)
	r.log.Debugf("manifest %s: resolved %s", loc.Name, describe(streams))
	return streams, nil
}

// Streams walks the manifest tree and returns the ordered stream list.
// A BaseURL child of the MPD overrides the location's base before the walk.
func (r *Resolver) Streams(doc *MPD, loc uri.Parts) []*Stream {
	if len(doc.BaseURLs) > 0 {
		loc.BaseURL = uri.Join(loc.HomeURL, loc.BaseURL, doc.BaseURLs[0].Text())
	}
	return r.walkPeriods(doc, loc)
}

func (r *Resolver) walkPeriods(doc *MPD, loc uri.Parts) []*Stream {
	// A lone Period without a duration inherits the presentation duration.
	// This is the only mutation the resolver applies to the tree.
	if len(doc.Periods) == 1 && doc.Periods[0].Duration == "" {
		doc.Periods[0].Duration = doc.MediaPresentationDuration
	}

	var streams []*Stream
	for i := range doc.Periods {
		period := &doc.Periods[i]
		streams = append(streams, r.walkAdaptationSets(period, len(streams), loc)...)
	}

	for _, stream := range streams {
		stream.trimTrailingEmpty()
	}

	if len(doc.Periods) == 1 || r.split {
		return streams
	}
	return mergeByKey(streams)
}

// mergeByKey unifies streams that share an identity key across periods,
// concatenating segment sequences in period order.
func mergeByKey(streams []*Stream) []*Stream {
	byKey := make(map[string]*Stream)
	var merged []*Stream
	for _, stream := range streams {
		if existing, ok := byKey[stream.SKey()]; ok {
			existing.update(stream)
			continue
		}
		byKey[stream.SKey()] = stream
		merged = append(merged, stream)
	}
	return merged
}

func (r *Resolver) walkAdaptationSets(period *Period, sindex int, loc uri.Parts) []*Stream {
	var streams []*Stream
	for i := range period.Sets {
		set := &period.Sets[i]
		streams = append(streams, r.walkRepresentations(set, period, sindex+len(streams), loc)...)
	}
	return streams
}

// walkRepresentations builds one stream per Representation, choosing among
// the addressing schemes in priority order: subtitle direct link, single
// static file, template with explicit timeline, template with computed
// numbering.
func (r *Resolver) walkRepresentations(set *AdaptationSet, period *Period, sindex int, loc uri.Parts) []*Stream {
	templates := set.SegmentTemplates
	var streams []*Stream
	for i := range set.Representations {
		rep := &set.Representations[i]

		// Thumbnail tracks are not downloadable media.
		if resolved(rep.MimeType, set.MimeType) == "image/jpeg" {
			continue
		}

		stream := r.buildStream(set, rep, sindex+len(streams), loc)

		if len(rep.BaseURLs) == 1 {
			link := rep.BaseURLs[0].Text()
			if len(set.Roles) == 1 && set.Roles[0].Value == "subtitle" {
				stream.addSubtitleLink(link)
				streams = append(streams, stream)
				continue
			}
			stream.fixBaseURL(link)
			if len(templates) == 0 && len(rep.SegmentTemplates) == 0 && len(rep.SegmentTimelines) == 0 {
				stream.addWholeFile(period.DurationSeconds())
				streams = append(streams, stream)
				continue
			}
		}

		switch {
		case len(templates) == 0:
			r.resolveOwnTemplate(rep, period, stream)
		case len(templates) > 1:
			r.log.Warnf("representation %s: more than one SegmentTemplate on the AdaptationSet, unrecognized content shape; please report for investigation", rep.ID)
		case len(templates[0].SegmentTimelines) == 1:
			r.resolveTimeline(&templates[0], rep, stream)
		case len(templates[0].SegmentTimelines) > 1:
			r.log.Warnf("representation %s: more than one SegmentTimeline in SegmentTemplate, unrecognized content shape; please report for investigation", rep.ID)
		default:
			// The AdaptationSet-level template carries the timing for all
			// of its Representations.
			r.resolveByDuration(&templates[0], rep, period, stream)
		}
		streams = append(streams, stream)
	}
	return streams
}

// buildStream assembles per-representation metadata, falling back to the
// AdaptationSet where the Representation omits an attribute.
func (r *Resolver) buildStream(set *AdaptationSet, rep *Representation, sindex int, loc uri.Parts) *Stream {
	stream := newStream(sindex, loc, r.saveDir)
	stream.setSKey(set.ID, rep.ID)
	stream.Lang = set.Lang
	stream.Bandwidth = rep.Bandwidth
	stream.Codecs = resolved(rep.Codecs, set.Codecs)
	stream.setMimeType(resolved(rep.MimeType, set.MimeType))
	if rep.Width == 0 || rep.Height == 0 {
		stream.setResolution(set.Width, set.Height)
	} else {
		stream.setResolution(rep.Width, rep.Height)
	}
	for _, cp := range rep.ContentProtections {
		stream.Keys = append(stream.Keys, newKey(cp))
	}
	return stream
}

// resolved is the single attribute-inheritance rule: the Representation's
// value when present, the AdaptationSet's otherwise.
func resolved(repValue, setValue string) string {
	if repValue != "" {
		return repValue
	}
	return setValue
}

// resolveOwnTemplate handles a template owned by the Representation itself.
func (r *Resolver) resolveOwnTemplate(rep *Representation, period *Period, stream *Stream) {
	templates := rep.SegmentTemplates
	if len(templates) != 1 {
		if len(templates) > 1 {
			r.log.Warnf("representation %s: more than one SegmentTemplate, unrecognized content shape; please report for investigation", rep.ID)
		} else {
			r.log.Warnf("representation %s: no SegmentTemplate found below the Representation tag", rep.ID)
		}
		return
	}
	st := &templates[0]
	switch len(st.SegmentTimelines) {
	case 0:
		r.resolveByDuration(st, rep, period, stream)
	case 1:
		r.resolveTimeline(st, rep, stream)
	default:
		r.log.Warnf("representation %s: more than one SegmentTimeline in SegmentTemplate, unrecognized content shape; please report for investigation", rep.ID)
	}
}

// resolveTimeline walks the explicit timeline: each S run emits Count
// segments of D ticks. The $Number$ counter starts at startNumber and the
// $Time$ offset at presentationTimeOffset; only the counter the template
// references advances.
func (r *Resolver) resolveTimeline(st *SegmentTemplate, rep *Representation, stream *Stream) {
	r.attachInit(st, rep, stream)

	if st.GetMedia() == "" {
		r.log.Warnf("representation %s: SegmentTemplate has no media template", rep.ID)
		return
	}

	timescale := st.GetTimescale()
	number := st.GetStartNumber()
	index := st.GetStartNumber()
	timeOffset := st.PresentationTimeOffset
	for _, run := range st.SegmentTimelines[0].Segments {
		interval := run.Interval(timescale)
		for i := 0; i < run.Count(); i++ {
			out, used := expandTemplate(st.GetMedia(), templateVars{
				RepresentationID: rep.ID,
				Bandwidth:        rep.Bandwidth,
				Number:           number,
				Time:             timeOffset,
			})
			number += used.Number
			timeOffset += uint64(used.Time) * run.D
			stream.addMediaSegment(index, out, interval)
			index++
		}
	}
}

// resolveByDuration is the computed-numbering path: uniform segments of
// template.duration ticks covering the period.
func (r *Resolver) resolveByDuration(st *SegmentTemplate, rep *Representation, period *Period, stream *Stream) {
	r.attachInit(st, rep, stream)

	if st.GetMedia() == "" {
		r.log.Warnf("representation %s: SegmentTemplate has no media template", rep.ID)
		return
	}
	interval := float64(st.Duration) / float64(st.GetTimescale())
	if interval <= 0 {
		r.log.Warnf("representation %s: SegmentTemplate has no usable segment duration", rep.ID)
		return
	}

	repeat := int(math.Round(period.DurationSeconds() / interval))
	start := st.GetStartNumber()
	for number := start; number < start+repeat; number++ {
		out, _ := expandTemplate(st.GetMedia(), templateVars{
			RepresentationID: rep.ID,
			Bandwidth:        rep.Bandwidth,
			Number:           number,
			Time:             st.PresentationTimeOffset,
		})
		stream.addMediaSegment(number, out, interval)
	}
}

// attachInit resolves the initialization-segment URL once and attaches it
// as the leading entry. The audio-language heuristic applies here and only
// here: media URLs are never inspected for it.
func (r *Resolver) attachInit(st *SegmentTemplate, rep *Representation, stream *Stream) {
	tmpl := st.GetInitialization()
	if tmpl == "" {
		// Subtitle-ish streams routinely have no initialization segment.
		return
	}
	initURL, _ := expandTemplate(tmpl, templateVars{
		RepresentationID: rep.ID,
		Bandwidth:        rep.Bandwidth,
		Number:           st.GetStartNumber(),
		Time:             st.PresentationTimeOffset,
	})
	if lang, ok := audioLanguage(initURL); ok {
		stream.Lang = lang
	}
	stream.setInitSegment(initURL)
}

// describe is a debug aid summarizing what the resolver produced.
func describe(streams []*Stream) string {
	total := 0
	for _, s := range streams {
		total += len(s.Segments)
	}
	return fmt.Sprintf("%d streams, %d segments", len(streams), total)
}
