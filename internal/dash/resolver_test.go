package dash

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xstreamdl/internal/logger"
	"xstreamdl/internal/models"
	"xstreamdl/internal/uri"
)

var testLoc = uri.Parts{
	Name:    "test",
	HomeURL: "https://media.example.com",
	BaseURL: "https://media.example.com/dash/",
}

func resolveXML(t *testing.T, split bool, xml string) []*Stream {
	t.Helper()
	doc, err := Parse([]byte(xml))
	require.NoError(t, err)
	r := NewResolver(logger.NopLogger{}, t.TempDir(), split)
	return r.Streams(doc, testLoc)
}

func TestResolveComputedNumbering(t *testing.T) {
	streams := resolveXML(t, false, `
<MPD type="static">
  <Period duration="PT12S">
    <AdaptationSet id="0" mimeType="video/mp4">
      <SegmentTemplate timescale="1" duration="4" startNumber="1" media="seg-$Number$.m4s"/>
      <Representation id="v0" bandwidth="500000"/>
    </AdaptationSet>
  </Period>
</MPD>`)

	require.Len(t, streams, 1)
	stream := streams[0]
	assert.Equal(t, "0|v0", stream.SKey())
	assert.Equal(t, StreamTypeVideo, stream.Type)
	require.Len(t, stream.Segments, 3)
	for i, seg := range stream.Segments {
		assert.Equal(t, i+1, seg.Index)
		assert.Equal(t, fmt.Sprintf("https://media.example.com/dash/seg-%d.m4s", i+1), seg.URL)
		assert.Equal(t, 4.0, seg.Duration)
		assert.Equal(t, models.SegmentTypeNormal, seg.Type)
		assert.Equal(t, fmt.Sprintf("%04d.mp4", i+1), seg.Name)
	}
}

func TestResolveComputedNumberingRespectsStartNumber(t *testing.T) {
	streams := resolveXML(t, false, `
<MPD type="static">
  <Period duration="PT10S">
    <AdaptationSet id="0" mimeType="video/mp4">
      <SegmentTemplate timescale="90000" duration="180000" startNumber="100" media="$RepresentationID$-$Number%05d$.m4s" initialization="$RepresentationID$-init.mp4"/>
      <Representation id="v0" bandwidth="800000"/>
    </AdaptationSet>
  </Period>
</MPD>`)

	require.Len(t, streams, 1)
	segs := streams[0].Segments
	// Leading init entry plus round(10 / 2) media segments.
	require.Len(t, segs, 6)
	assert.Equal(t, models.SegmentTypeInit, segs[0].Type)
	assert.Equal(t, "https://media.example.com/dash/v0-init.mp4", segs[0].URL)
	assert.Equal(t, "init.mp4", segs[0].Name)
	for i, seg := range segs[1:] {
		assert.Equal(t, 100+i, seg.Index)
		assert.Equal(t, fmt.Sprintf("https://media.example.com/dash/v0-%05d.m4s", 100+i), seg.URL)
		assert.Equal(t, 2.0, seg.Duration)
	}
}

func TestResolveTimeline(t *testing.T) {
	streams := resolveXML(t, false, `
<MPD type="static">
  <Period duration="PT10S">
    <AdaptationSet id="0" mimeType="audio/mp4" lang="en">
      <SegmentTemplate timescale="1" startNumber="1" media="seg-$Time$.m4s" initialization="init.mp4">
        <SegmentTimeline>
          <S d="2" r="3"/>
          <S d="4" r="1"/>
        </SegmentTimeline>
      </SegmentTemplate>
      <Representation id="a0" bandwidth="128000"/>
    </AdaptationSet>
  </Period>
</MPD>`)

	require.Len(t, streams, 1)
	stream := streams[0]
	assert.Equal(t, StreamTypeAudio, stream.Type)
	assert.Equal(t, "en", stream.Lang)

	segs := stream.Segments
	require.Len(t, segs, 5) // init + sum of r across runs
	assert.Equal(t, models.SegmentTypeInit, segs[0].Type)

	media := segs[1:]
	wantDurations := []float64{2, 2, 2, 4}
	wantTimes := []uint64{0, 2, 4, 6}
	for i, seg := range media {
		assert.Equal(t, wantDurations[i], seg.Duration)
		assert.Equal(t, fmt.Sprintf("https://media.example.com/dash/seg-%d.m4s", wantTimes[i]), seg.URL)
	}
}

func TestResolveTimelineNumberAddressing(t *testing.T) {
	streams := resolveXML(t, false, `
<MPD type="static">
  <Period duration="PT10S">
    <AdaptationSet id="0" mimeType="video/mp4">
      <SegmentTemplate timescale="90000" startNumber="5" presentationTimeOffset="900000" media="seg-$Number$.m4s">
        <SegmentTimeline>
          <S d="180000" r="2"/>
        </SegmentTimeline>
      </SegmentTemplate>
      <Representation id="v0" bandwidth="1000000"/>
    </AdaptationSet>
  </Period>
</MPD>`)

	require.Len(t, streams, 1)
	segs := streams[0].Segments
	require.Len(t, segs, 2)
	// The $Number$ counter starts at startNumber and advances per segment;
	// the $Time$ counter exists but never advances for this template.
	assert.Equal(t, "https://media.example.com/dash/seg-5.m4s", segs[0].URL)
	assert.Equal(t, "https://media.example.com/dash/seg-6.m4s", segs[1].URL)
}

func TestResolveSubtitleDirectLink(t *testing.T) {
	streams := resolveXML(t, false, `
<MPD type="static">
  <Period duration="PT60S">
    <AdaptationSet id="2" mimeType="text/vtt" lang="de">
      <Role schemeIdUri="urn:mpeg:dash:role:2011" value="subtitle"/>
      <Representation id="s0" bandwidth="1000">
        <BaseURL>subs/german.vtt</BaseURL>
      </Representation>
    </AdaptationSet>
  </Period>
</MPD>`)

	require.Len(t, streams, 1)
	stream := streams[0]
	assert.Equal(t, StreamTypeSubtitle, stream.Type)
	require.Len(t, stream.Segments, 1)
	seg := stream.Segments[0]
	assert.Equal(t, models.SegmentTypeSubtitle, seg.Type)
	// Direct subtitle links are taken literally, bypassing template
	// resolution and URL joining.
	assert.Equal(t, "subs/german.vtt", seg.URL)
}

func TestResolveSingleStaticFile(t *testing.T) {
	streams := resolveXML(t, false, `
<MPD type="static">
  <Period duration="PT90S">
    <AdaptationSet id="1" mimeType="audio/mp4" lang="fr">
      <Representation id="a0" bandwidth="96000">
        <BaseURL>audio/french.mp4</BaseURL>
      </Representation>
    </AdaptationSet>
  </Period>
</MPD>`)

	require.Len(t, streams, 1)
	require.Len(t, streams[0].Segments, 1)
	seg := streams[0].Segments[0]
	assert.Equal(t, models.SegmentTypeNormal, seg.Type)
	assert.Equal(t, "https://media.example.com/dash/audio/french.mp4", seg.URL)
	assert.Equal(t, 90.0, seg.Duration)
}

func TestResolveSkipsThumbnailTracks(t *testing.T) {
	streams := resolveXML(t, false, `
<MPD type="static">
  <Period duration="PT60S">
    <AdaptationSet id="9" mimeType="image/jpeg">
      <SegmentTemplate timescale="1" duration="10" media="thumb-$Number$.jpg"/>
      <Representation id="t0" bandwidth="10000"/>
    </AdaptationSet>
    <AdaptationSet id="0" mimeType="video/mp4">
      <SegmentTemplate timescale="1" duration="10" media="seg-$Number$.m4s"/>
      <Representation id="v0" bandwidth="400000"/>
    </AdaptationSet>
  </Period>
</MPD>`)

	require.Len(t, streams, 1)
	assert.Equal(t, "0|v0", streams[0].SKey())
}

func TestResolveAttributeInheritance(t *testing.T) {
	streams := resolveXML(t, false, `
<MPD type="static">
  <Period duration="PT8S">
    <AdaptationSet id="0" mimeType="video/mp4" codecs="avc1.4d401f" width="1280" height="720">
      <SegmentTemplate timescale="1" duration="4" media="seg-$Number$.m4s"/>
      <Representation id="v0" bandwidth="700000"/>
      <Representation id="v1" bandwidth="3000000" codecs="avc1.640028" width="1920" height="1080"/>
    </AdaptationSet>
  </Period>
</MPD>`)

	require.Len(t, streams, 2)
	inherited, overriding := streams[0], streams[1]
	assert.Equal(t, "avc1.4d401f", inherited.Codecs)
	assert.Equal(t, 1280, inherited.Width)
	assert.Equal(t, 720, inherited.Height)
	assert.Equal(t, "avc1.640028", overriding.Codecs)
	assert.Equal(t, 1920, overriding.Width)
	assert.Equal(t, 1080, overriding.Height)
}

func TestResolvePeriodDurationBackfill(t *testing.T) {
	streams := resolveXML(t, false, `
<MPD type="static" mediaPresentationDuration="PT12S">
  <Period>
    <AdaptationSet id="0" mimeType="video/mp4">
      <SegmentTemplate timescale="1" duration="4" startNumber="1" media="seg-$Number$.m4s"/>
      <Representation id="v0" bandwidth="500000"/>
    </AdaptationSet>
  </Period>
</MPD>`)

	require.Len(t, streams, 1)
	assert.Len(t, streams[0].Segments, 3)
}

func TestResolveAmbiguousTemplatesYieldNoSegments(t *testing.T) {
	streams := resolveXML(t, false, `
<MPD type="static">
  <Period duration="PT10S">
    <AdaptationSet id="0" mimeType="video/mp4">
      <Representation id="v0" bandwidth="500000">
        <SegmentTemplate timescale="1" duration="5" media="a-$Number$.m4s"/>
        <SegmentTemplate timescale="1" duration="5" media="b-$Number$.m4s"/>
      </Representation>
      <Representation id="v1" bandwidth="800000">
        <SegmentTemplate timescale="1" duration="5" media="c-$Number$.m4s"/>
      </Representation>
    </AdaptationSet>
  </Period>
</MPD>`)

	// The malformed Representation yields zero segments; its sibling is
	// unaffected.
	require.Len(t, streams, 2)
	assert.Empty(t, streams[0].Segments)
	assert.Len(t, streams[1].Segments, 2)
}

func TestResolveMissingTemplateYieldsNoSegments(t *testing.T) {
	streams := resolveXML(t, false, `
<MPD type="static">
  <Period duration="PT10S">
    <AdaptationSet id="0" mimeType="video/mp4">
      <Representation id="v0" bandwidth="500000"/>
    </AdaptationSet>
  </Period>
</MPD>`)

	require.Len(t, streams, 1)
	assert.Empty(t, streams[0].Segments)
}

func TestResolveAudioLanguageHeuristic(t *testing.T) {
	streams := resolveXML(t, false, `
<MPD type="static">
  <Period duration="PT10S">
    <AdaptationSet id="1" mimeType="audio/mp4" lang="en">
      <SegmentTemplate timescale="1" startNumber="1" media="seg-$Number$.m4s" initialization="init.mp4?filter=(as=audio_spa)">
        <SegmentTimeline>
          <S d="2" r="5"/>
        </SegmentTimeline>
      </SegmentTemplate>
      <Representation id="a0" bandwidth="128000"/>
    </AdaptationSet>
  </Period>
</MPD>`)

	require.Len(t, streams, 1)
	// The convention embedded in the init URL overrides the manifest lang.
	assert.Equal(t, "spa", streams[0].Lang)
}

const twoPeriodMPD = `
<MPD type="static">
  <Period id="p0" duration="PT8S">
    <AdaptationSet id="0" mimeType="video/mp4">
      <SegmentTemplate timescale="1" duration="4" startNumber="1" media="p0-$Number$.m4s"/>
      <Representation id="v0" bandwidth="500000"/>
    </AdaptationSet>
  </Period>
  <Period id="p1" duration="PT8S">
    <AdaptationSet id="0" mimeType="video/mp4">
      <SegmentTemplate timescale="1" duration="4" startNumber="1" media="p1-$Number$.m4s"/>
      <Representation id="v0" bandwidth="500000"/>
    </AdaptationSet>
  </Period>
</MPD>`

func TestResolveCrossPeriodMerge(t *testing.T) {
	streams := resolveXML(t, false, twoPeriodMPD)

	require.Len(t, streams, 1)
	stream := streams[0]
	require.Len(t, stream.Segments, 4)
	for i, seg := range stream.Segments {
		assert.Equal(t, i, seg.Index, "merged indices must be contiguous from 0")
		assert.Equal(t, fmt.Sprintf("%04d.mp4", i), seg.Name)
	}
	assert.Contains(t, stream.Segments[0].URL, "p0-1.m4s")
	assert.Contains(t, stream.Segments[2].URL, "p1-1.m4s")
}

func TestResolveSplitKeepsPeriodsApart(t *testing.T) {
	streams := resolveXML(t, true, twoPeriodMPD)

	require.Len(t, streams, 2)
	assert.Len(t, streams[0].Segments, 2)
	assert.Len(t, streams[1].Segments, 2)
	assert.Equal(t, streams[0].SKey(), streams[1].SKey())
}

func TestResolveSinglePeriodIsNotMerged(t *testing.T) {
	mpd := `
<MPD type="static">
  <Period duration="PT8S">
    <AdaptationSet id="0" mimeType="video/mp4">
      <SegmentTemplate timescale="1" duration="4" startNumber="1" media="seg-$Number$.m4s"/>
      <Representation id="v0" bandwidth="500000"/>
      <Representation id="v1" bandwidth="900000"/>
    </AdaptationSet>
  </Period>
</MPD>`
	merged := resolveXML(t, false, mpd)
	split := resolveXML(t, true, mpd)

	require.Len(t, merged, 2)
	require.Len(t, split, 2)
	for i := range merged {
		assert.Equal(t, split[i].SKey(), merged[i].SKey())
		require.Equal(t, len(split[i].Segments), len(merged[i].Segments))
		for j := range merged[i].Segments {
			assert.Equal(t, split[i].Segments[j].URL, merged[i].Segments[j].URL)
			assert.Equal(t, split[i].Segments[j].Index, merged[i].Segments[j].Index)
		}
	}
}

func TestResolveMPDBaseURLOverride(t *testing.T) {
	streams := resolveXML(t, false, `
<MPD type="static">
  <BaseURL>https://other-cdn.example.net/live/</BaseURL>
  <Period duration="PT4S">
    <AdaptationSet id="0" mimeType="video/mp4">
      <SegmentTemplate timescale="1" duration="4" media="seg-$Number$.m4s"/>
      <Representation id="v0" bandwidth="500000"/>
    </AdaptationSet>
  </Period>
</MPD>`)

	require.Len(t, streams, 1)
	require.Len(t, streams[0].Segments, 1)
	assert.Equal(t, "https://other-cdn.example.net/live/seg-1.m4s", streams[0].Segments[0].URL)
}

func TestResolveContentProtectionCollected(t *testing.T) {
	streams := resolveXML(t, false, `
<MPD type="static">
  <Period duration="PT4S">
    <AdaptationSet id="0" mimeType="video/mp4">
      <SegmentTemplate timescale="1" duration="4" media="seg-$Number$.m4s"/>
      <Representation id="v0" bandwidth="500000">
        <ContentProtection schemeIdUri="urn:mpeg:dash:mp4protection:2011" value="cenc" default_KID="20000000-2000-2000-2000-200000000002"/>
        <ContentProtection schemeIdUri="urn:uuid:edef8ba9-79d6-4ace-a3c8-27dcd51d21ed"/>
      </Representation>
    </AdaptationSet>
  </Period>
</MPD>`)

	require.Len(t, streams, 1)
	keys := streams[0].Keys
	require.Len(t, keys, 2)
	assert.Equal(t, "cenc", keys[0].Value)
	assert.Equal(t, "20000000-2000-2000-2000-200000000002", keys[0].KID)
	assert.Equal(t, "urn:uuid:edef8ba9-79d6-4ace-a3c8-27dcd51d21ed", keys[1].SchemeIdUri)
	// Descriptors are recorded, never interpreted: segments resolve as usual.
	assert.Len(t, streams[0].Segments, 1)
}

func TestTrimTrailingEmptySegment(t *testing.T) {
	t.Run("drops exactly one empty tail", func(t *testing.T) {
		stream := newStream(0, testLoc, t.TempDir())
		stream.addMediaSegment(1, "seg-1.m4s", 2)
		stream.addMediaSegment(2, "", 2)
		stream.trimTrailingEmpty()
		require.Len(t, stream.Segments, 1)
		assert.Equal(t, 1, stream.Segments[0].Index)
	})

	t.Run("non-empty tail unchanged", func(t *testing.T) {
		stream := newStream(0, testLoc, t.TempDir())
		stream.addMediaSegment(1, "seg-1.m4s", 2)
		stream.addMediaSegment(2, "seg-2.m4s", 2)
		stream.trimTrailingEmpty()
		assert.Len(t, stream.Segments, 2)
	})

	t.Run("empty stream is fine", func(t *testing.T) {
		stream := newStream(0, testLoc, t.TempDir())
		stream.trimTrailingEmpty()
		assert.Empty(t, stream.Segments)
	})
}

func TestResolverParseRejectsBadLocation(t *testing.T) {
	r := NewResolver(logger.NopLogger{}, t.TempDir(), false)
	_, err := r.Parse("not a url at all", []byte(sampleMPD))
	assert.Error(t, err)
}

func TestResolverParseEndToEnd(t *testing.T) {
	r := NewResolver(logger.NopLogger{}, t.TempDir(), false)
	streams, err := r.Parse("https://cdn.example.com/path/manifest.mpd", []byte(sampleMPD))
	require.NoError(t, err)
	// Two video representations plus one audio.
	require.Len(t, streams, 3)
	for _, stream := range streams {
		assert.Equal(t, "manifest", stream.Name)
		assert.NotEmpty(t, stream.Segments)
	}
}
