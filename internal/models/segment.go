package models

import (
	"fmt"
	"path/filepath"
)

// SegmentType distinguishes the entries of a stream's download plan.
type SegmentType string

const (
	// SegmentTypeNormal is a regular media segment.
	SegmentTypeNormal SegmentType = "normal"
	// SegmentTypeInit is an initialization segment; it carries codec setup
	// data and must be written before any media segment.
	SegmentTypeInit SegmentType = "init"
	// SegmentTypeSubtitle is a subtitle track addressed as a single direct
	// link, bypassing template resolution entirely.
	SegmentTypeSubtitle SegmentType = "subtitle"
)

// Segment is one entry of a stream's download plan.
// This struct is used across different packages to represent a downloadable chunk of media.
type Segment struct {
	// Index orders the segment within its stream. Name is always derived
	// from it; use SetIndex or AddOffset so the two never drift apart.
	Index int
	// Name is the on-disk file name, a 4-digit zero-padded index plus suffix.
	Name string
	// Suffix is the file extension including the leading dot.
	Suffix string
	// URL is the fully-qualified URL to fetch the segment from.
	URL string
	// Duration is the segment's wall-clock duration in seconds.
	Duration float64
	// ByteRange holds [start, end] when the segment is a slice of a larger
	// resource; empty otherwise.
	ByteRange []int64
	// Type tags the role of the segment within the stream.
	Type SegmentType

	// Content temporarily holds the fetched bytes until they are written out.
	Content []byte
	// Folder is the destination directory, filled in by the download stage.
	Folder string
}

// NewSegment creates a segment of the given type at the given index.
func NewSegment(index int, suffix string, segType SegmentType) *Segment {
	s := &Segment{Suffix: suffix, Type: segType}
	s.SetIndex(index)
	return s
}

// SetIndex assigns the index and regenerates the derived name.
func (s *Segment) SetIndex(index int) *Segment {
	s.Index = index
	if s.Type == SegmentTypeInit {
		s.Name = "init" + s.Suffix
	} else {
		s.Name = fmt.Sprintf("%04d%s", index, s.Suffix)
	}
	return s
}

// AddOffset shifts the index, e.g. when appending behind an earlier period,
// and regenerates the name to match.
func (s *Segment) AddOffset(offset int) {
	s.SetIndex(s.Index + offset)
}

// Path returns the destination file path of the segment.
func (s *Segment) Path() string {
	return filepath.Join(s.Folder, s.Name)
}
