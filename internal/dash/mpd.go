package dash

import (
	"encoding/xml"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// MPD is the root element of a Media Presentation Description.
//
// Attributes that may be absent in the document keep their Go zero value;
// nothing is defaulted here. Inheritance between levels (AdaptationSet to
// Representation, MPD to Period) is the resolver's job, applied through
// explicit fallback helpers rather than on the model.
type MPD struct {
	XMLName                   xml.Name  `xml:"MPD"`
	Type                      string    `xml:"type,attr"`
	Profiles                  string    `xml:"profiles,attr"`
	MediaPresentationDuration string    `xml:"mediaPresentationDuration,attr"`
	BaseURLs                  []BaseURL `xml:"BaseURL"`
	Periods                   []Period  `xml:"Period"`
}

// Parse decodes an MPD document.
func Parse(data []byte) (*MPD, error) {
	var doc MPD
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal MPD XML: %w", err)
	}
	return &doc, nil
}

// PresentationSeconds returns mediaPresentationDuration in seconds,
// or 0 when the attribute is absent or unparsable.
func (m *MPD) PresentationSeconds() float64 {
	d, err := parseDuration(m.MediaPresentationDuration)
	if err != nil {
		return 0
	}
	return d.Seconds()
}

// BaseURL is a direct link element; its inner text is the URL.
type BaseURL struct {
	Value string `xml:",chardata"`
}

// Text returns the trimmed inner text of the element.
func (b BaseURL) Text() string {
	return strings.TrimSpace(b.Value)
}

// Period represents one contiguous span of the presentation timeline.
type Period struct {
	ID       string          `xml:"id,attr"`
	Start    string          `xml:"start,attr"`
	Duration string          `xml:"duration,attr"`
	Sets     []AdaptationSet `xml:"AdaptationSet"`
}

// DurationSeconds returns the Period's duration in seconds, or 0 when the
// attribute is absent or unparsable. The resolver back-fills Duration from
// the MPD level before segment resolution when the manifest has exactly
// one Period.
func (p *Period) DurationSeconds() float64 {
	d, err := parseDuration(p.Duration)
	if err != nil {
		return 0
	}
	return d.Seconds()
}

// AdaptationSet groups interchangeable representations of the same content
// and carries fallback values for attributes a Representation may omit.
type AdaptationSet struct {
	ID               string            `xml:"id,attr"`
	ContentType      string            `xml:"contentType,attr"`
	Lang             string            `xml:"lang,attr"`
	Codecs           string            `xml:"codecs,attr"`
	MimeType         string            `xml:"mimeType,attr"`
	Width            int               `xml:"width,attr"`
	Height           int               `xml:"height,attr"`
	Roles            []Role            `xml:"Role"`
	SegmentTemplates []SegmentTemplate `xml:"SegmentTemplate"`
	Representations  []Representation  `xml:"Representation"`
}

// Representation is one concrete encoded variant within an AdaptationSet.
type Representation struct {
	ID                 string              `xml:"id,attr"`
	Bandwidth          int                 `xml:"bandwidth,attr"`
	Codecs             string              `xml:"codecs,attr"`
	MimeType           string              `xml:"mimeType,attr"`
	Width              int                 `xml:"width,attr"`
	Height             int                 `xml:"height,attr"`
	BaseURLs           []BaseURL           `xml:"BaseURL"`
	SegmentTemplates   []SegmentTemplate   `xml:"SegmentTemplate"`
	SegmentTimelines   []SegmentTimeline   `xml:"SegmentTimeline"`
	ContentProtections []ContentProtection `xml:"ContentProtection"`
}

// SegmentTemplate defines segment URLs through placeholder templates plus
// timing parameters.
type SegmentTemplate struct {
	Timescale              int               `xml:"timescale,attr"`
	StartNumber            int               `xml:"startNumber,attr"`
	PresentationTimeOffset uint64            `xml:"presentationTimeOffset,attr"`
	Duration               uint64            `xml:"duration,attr"`
	Initialization         string            `xml:"initialization,attr"`
	Media                  string            `xml:"media,attr"`
	SegmentTimelines       []SegmentTimeline `xml:"SegmentTimeline"`
}

// GetTimescale returns the timescale, defaulting to 1 tick per second.
func (st *SegmentTemplate) GetTimescale() int {
	if st.Timescale <= 0 {
		return 1
	}
	return st.Timescale
}

// GetStartNumber returns the first segment number, defaulting to 1.
func (st *SegmentTemplate) GetStartNumber() int {
	if st.StartNumber <= 0 {
		return 1
	}
	return st.StartNumber
}

// GetInitialization returns the raw initialization-segment URL template;
// placeholders are not resolved here.
func (st *SegmentTemplate) GetInitialization() string {
	return st.Initialization
}

// GetMedia returns the raw media-segment URL template; placeholders are
// not resolved here.
func (st *SegmentTemplate) GetMedia() string {
	return st.Media
}

// SegmentTimeline is an explicit, run-length-encoded list of segment
// durations overriding uniform timing.
type SegmentTimeline struct {
	Segments []S `xml:"S"`
}

// S is one run of the timeline: Count consecutive segments of D ticks each.
type S struct {
	T uint64 `xml:"t,attr"`
	D uint64 `xml:"d,attr"`
	R int    `xml:"r,attr"`
}

// Count returns the number of segments the run stands for. A missing or
// non-positive repeat attribute means a single segment.
func (s S) Count() int {
	if s.R < 1 {
		return 1
	}
	return s.R
}

// Interval returns the wall-clock duration of one segment of the run.
func (s S) Interval(timescale int) float64 {
	if timescale <= 0 {
		timescale = 1
	}
	return float64(s.D) / float64(timescale)
}

// Role annotates an AdaptationSet; a value of "subtitle" marks a track
// addressed as a direct file link.
type Role struct {
	SchemeIdUri string `xml:"schemeIdUri,attr"`
	Value       string `xml:"value,attr"`
}

// ContentProtection describes a protection scheme applied to a
// Representation. The resolver records these descriptors on the stream;
// it never fetches or applies key material.
type ContentProtection struct {
	SchemeIdUri string `xml:"schemeIdUri,attr"`
	Value       string `xml:"value,attr"`
	DefaultKID  string `xml:"default_KID,attr"`
	Pssh        string `xml:"pssh"`
}

var durationUnitRE = regexp.MustCompile(`(\d+\.?\d*)([A-Z])`)

// parseDuration parses an ISO 8601 duration string like "PT1H30M12.5S".
func parseDuration(duration string) (time.Duration, error) {
	if duration == "" {
		return 0, errors.New("empty duration")
	}
	if !strings.HasPrefix(duration, "P") {
		// Fallback for simple duration strings like "5s"
		return time.ParseDuration(duration)
	}

	datePart := strings.TrimPrefix(duration, "P")
	timePart := ""
	if idx := strings.Index(datePart, "T"); idx >= 0 {
		timePart = datePart[idx+1:]
		datePart = datePart[:idx]
	}

	var total time.Duration
	for _, match := range durationUnitRE.FindAllStringSubmatch(datePart, -1) {
		value, err := strconv.ParseFloat(match[1], 64)
		if err != nil {
			return 0, err
		}
		switch match[2] {
		case "D":
			total += time.Duration(value * 24 * float64(time.Hour))
		default:
			return 0, errors.New("unsupported duration unit: " + match[2])
		}
	}
	for _, match := range durationUnitRE.FindAllStringSubmatch(timePart, -1) {
		value, err := strconv.ParseFloat(match[1], 64)
		if err != nil {
			return 0, err
		}
		switch match[2] {
		case "H":
			total += time.Duration(value * float64(time.Hour))
		case "M":
			total += time.Duration(value * float64(time.Minute))
		case "S":
			total += time.Duration(value * float64(time.Second))
		default:
			return 0, errors.New("unsupported duration unit: " + match[2])
		}
	}

	return total, nil
}
