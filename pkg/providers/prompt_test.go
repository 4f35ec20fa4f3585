package providers

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scribepipe/scribepipe/pkg/job"
)

func TestBuildPromptDemandsFullCoverage(t *testing.T) {
	p := BuildPrompt(ChunkConfig{ChunkDuration: 310, ChunkIndex: 1})

	assert.Contains(t, p, "from 0.0 seconds")
	assert.Contains(t, p, "310.0 seconds")
	// The instruction must never tell the model to skip already-seen
	// content; that makes it drop the start of overlapping chunks.
	assert.NotContains(t, strings.ToLower(p), "do not repeat")
	assert.NotContains(t, strings.ToLower(p), "skip")
}

func TestBuildPromptIncludesContextAndLanguage(t *testing.T) {
	p := BuildPrompt(ChunkConfig{
		ChunkDuration: 300,
		Language:      "hy-AM",
		ContextText:   "previous tail text",
		Prompt:        "medical vocabulary",
	})

	assert.Contains(t, p, "hy-AM")
	assert.Contains(t, p, "previous tail text")
	assert.Contains(t, p, "medical vocabulary")
}

func TestBuildPromptOmitsEmptySections(t *testing.T) {
	p := BuildPrompt(ChunkConfig{ChunkDuration: 120})

	assert.NotContains(t, p, "continues from earlier audio")
	assert.NotContains(t, p, "Additional instructions")
}

func TestSanitizeSegmentsClampsOverflow(t *testing.T) {
	segs := SanitizeSegments([]job.Segment{
		{Start: 0, End: 10, Text: "ok"},
		{Start: 299, End: 305, Text: "runs past the end"},
		{Start: 310, End: 320, Text: "hallucinated"},
	}, 300)

	require.Len(t, segs, 2)
	assert.Equal(t, 300.0, segs[1].End)
	assert.Equal(t, 299.0, segs[1].Start)
}

func TestSanitizeSegmentsToleratesSlightOverrun(t *testing.T) {
	// A segment starting within the tolerance window survives, clamped.
	segs := SanitizeSegments([]job.Segment{
		{Start: 301, End: 301.5, Text: "tail word"},
	}, 300)

	require.Len(t, segs, 1)
	assert.Equal(t, 300.0, segs[0].Start)
	assert.Equal(t, 300.0, segs[0].End)
}

func TestSanitizeSegmentsDropsEmptyAndOrders(t *testing.T) {
	segs := SanitizeSegments([]job.Segment{
		{Start: 20, End: 30, Text: "second"},
		{Start: 5, End: 10, Text: "   "},
		{Start: 0, End: 10, Text: "first"},
		{Start: -2, End: 3, Text: "negative start"},
	}, 300)

	require.Len(t, segs, 3)
	assert.Equal(t, "negative start", segs[0].Text)
	assert.Equal(t, 0.0, segs[0].Start)
	assert.Equal(t, "first", segs[1].Text)
	assert.Equal(t, "second", segs[2].Text)
}

func TestTruncateRaw(t *testing.T) {
	short := "hello"
	assert.Equal(t, short, TruncateRaw(short))

	long := strings.Repeat("x", RawResponseCap+100)
	assert.Len(t, TruncateRaw(long), RawResponseCap)
}
