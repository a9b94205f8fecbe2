package dash

import (
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"xstreamdl/internal/models"
	"xstreamdl/internal/uri"
)

// StreamType classifies a stream by its resolved mime type.
type StreamType string

const (
	StreamTypeVideo    StreamType = "video"
	StreamTypeAudio    StreamType = "audio"
	StreamTypeSubtitle StreamType = "subtitle"
	StreamTypeImage    StreamType = "image"
	StreamTypeUnknown  StreamType = "unknown"
)

// Key is a recorded protection-scheme descriptor. The plan compiler only
// collects these; fetching or applying key material happens elsewhere.
type Key struct {
	SchemeIdUri string
	Value       string
	KID         string
	Pssh        string
}

func newKey(cp ContentProtection) Key {
	return Key{
		SchemeIdUri: cp.SchemeIdUri,
		Value:       cp.Value,
		KID:         cp.DefaultKID,
		Pssh:        strings.TrimSpace(cp.Pssh),
	}
}

// Stream is the download plan for one Representation: its identity and
// metadata plus the ordered segment sequence. Streams from different
// Periods that share the same identity key may be merged into one.
type Stream struct {
	// Index is the position of the stream in manifest order.
	Index int
	// Name is the manifest-derived name used for the on-disk folder.
	Name string
	// HomeURL and BaseURL anchor relative segment URLs.
	HomeURL string
	BaseURL string
	// SaveDir is the root directory the stream's folder lives under.
	SaveDir string

	AdaptationSetID  string
	RepresentationID string

	Bandwidth int
	Codecs    string
	Lang      string
	Width     int
	Height    int
	Type      StreamType

	// Keys lists the protection descriptors found on the Representation.
	Keys []Key
	// Segments is the ordered download plan; an initialization segment, if
	// any, is the leading type-tagged entry.
	Segments []*models.Segment

	suffix string
}

func newStream(index int, loc uri.Parts, saveDir string) *Stream {
	return &Stream{
		Index:   index,
		Name:    loc.Name,
		HomeURL: loc.HomeURL,
		BaseURL: loc.BaseURL,
		SaveDir: saveDir,
		Type:    StreamTypeUnknown,
		suffix:  ".mp4",
	}
}

// SKey is the merge identity key pairing the AdaptationSet id with the
// Representation id.
func (s *Stream) SKey() string {
	return s.AdaptationSetID + "|" + s.RepresentationID
}

func (s *Stream) setSKey(adaptationSetID, representationID string) {
	s.AdaptationSetID = adaptationSetID
	s.RepresentationID = representationID
}

// setMimeType classifies the stream and picks the segment file suffix.
func (s *Stream) setMimeType(mime string) {
	switch {
	case strings.HasPrefix(mime, "video/"):
		s.Type = StreamTypeVideo
	case strings.HasPrefix(mime, "audio/"):
		s.Type = StreamTypeAudio
	case strings.HasPrefix(mime, "image/"):
		s.Type = StreamTypeImage
	case strings.HasPrefix(mime, "text/"), strings.Contains(mime, "ttml"):
		s.Type = StreamTypeSubtitle
	case mime != "":
		s.Type = StreamTypeUnknown
	}
	if mime == "text/vtt" {
		s.suffix = ".vtt"
	}
}

func (s *Stream) setResolution(width, height int) {
	s.Width = width
	s.Height = height
}

// fixBaseURL folds a Representation-level BaseURL into the stream's base.
func (s *Stream) fixBaseURL(text string) {
	if text == "" {
		return
	}
	s.BaseURL = uri.Join(s.HomeURL, s.BaseURL, text)
}

// addSubtitleLink records a subtitle track addressed as a single direct
// file link. The URL is taken literally; no template resolution applies.
func (s *Stream) addSubtitleLink(rawURL string) {
	s.Type = StreamTypeSubtitle
	if ext := urlExt(rawURL); ext != "" {
		s.suffix = ext
	}
	seg := models.NewSegment(0, s.suffix, models.SegmentTypeSubtitle)
	seg.URL = rawURL
	s.Segments = append(s.Segments, seg)
}

// addWholeFile records the stream as one unsegmented file at the resolved
// base URL, lasting the whole period.
func (s *Stream) addWholeFile(duration float64) {
	seg := models.NewSegment(0, s.suffix, models.SegmentTypeNormal)
	seg.URL = s.BaseURL
	seg.Duration = duration
	s.Segments = append(s.Segments, seg)
}

// setInitSegment attaches the resolved initialization segment as the
// leading type-tagged entry of the plan.
func (s *Stream) setInitSegment(rawURL string) {
	seg := models.NewSegment(0, s.suffix, models.SegmentTypeInit)
	seg.URL = uri.Join(s.HomeURL, s.BaseURL, rawURL)
	s.Segments = append(s.Segments, seg)
}

// addMediaSegment appends one media segment, resolving its URL against the
// stream's base. An empty rawURL stays empty so the trailing-segment trim
// can detect it.
func (s *Stream) addMediaSegment(index int, rawURL string, duration float64) {
	seg := models.NewSegment(index, s.suffix, models.SegmentTypeNormal)
	seg.URL = uri.Join(s.HomeURL, s.BaseURL, rawURL)
	seg.Duration = duration
	s.Segments = append(s.Segments, seg)
}

// trimTrailingEmpty drops the last segment when its URL is empty, guarding
// against a phantom entry from an off-by-one in timeline or number-range
// computation. At most one segment is removed.
func (s *Stream) trimTrailingEmpty() {
	if n := len(s.Segments); n > 0 && s.Segments[n-1].URL == "" {
		s.Segments = s.Segments[:n-1]
	}
}

// update merges another stream with the same identity key into this one.
// The other stream's segments are appended in period order and the whole
// sequence is renumbered contiguously from 0.
func (s *Stream) update(other *Stream) {
	s.Segments = append(s.Segments, other.Segments...)
	for i, seg := range s.Segments {
		seg.SetIndex(i)
	}
}

// SegmentCount returns the number of entries in the plan.
func (s *Stream) SegmentCount() int {
	return len(s.Segments)
}

// TotalDuration sums the segment durations in seconds.
func (s *Stream) TotalDuration() float64 {
	var total float64
	for _, seg := range s.Segments {
		total += seg.Duration
	}
	return total
}

// Folder returns the destination directory for the stream's segments.
func (s *Stream) Folder() string {
	name := fmt.Sprintf("%s_%s", s.Name, sanitize(s.RepresentationID))
	if s.AdaptationSetID != "" {
		name = fmt.Sprintf("%s_%s_%s", s.Name, sanitize(s.AdaptationSetID), sanitize(s.RepresentationID))
	}
	return filepath.Join(s.SaveDir, name)
}

// String renders a one-line summary for stream listings.
func (s *Stream) String() string {
	parts := []string{fmt.Sprintf("[%s]", s.Type)}
	if s.RepresentationID != "" {
		parts = append(parts, s.RepresentationID)
	}
	if s.Width > 0 && s.Height > 0 {
		parts = append(parts, fmt.Sprintf("%dx%d", s.Width, s.Height))
	}
	if s.Bandwidth > 0 {
		parts = append(parts, fmt.Sprintf("%d bps", s.Bandwidth))
	}
	if s.Codecs != "" {
		parts = append(parts, s.Codecs)
	}
	if s.Lang != "" {
		parts = append(parts, s.Lang)
	}
	parts = append(parts, fmt.Sprintf("%d segments", len(s.Segments)))
	parts = append(parts, fmt.Sprintf("%.1fs", s.TotalDuration()))
	if len(s.Keys) > 0 {
		parts = append(parts, fmt.Sprintf("%d keys", len(s.Keys)))
	}
	return strings.Join(parts, " ")
}

func urlExt(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return path.Ext(u.Path)
}

func sanitize(id string) string {
	if id == "" {
		return "0"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, id)
}
