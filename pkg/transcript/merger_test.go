package transcript

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scribepipe/scribepipe/pkg/job"
)

func newTestMerger() *Merger {
	return NewMerger(0.8, 15)
}

func TestSimilarityIdenticalAndDisjoint(t *testing.T) {
	assert.InDelta(t, 1.0, Similarity("we will meet tomorrow", "we will meet tomorrow"), 1e-9)
	assert.Less(t, Similarity("the quarterly budget numbers", "completely unrelated sentence"), 0.2)
}

func TestSimilarityIgnoresCasePunctuationAndSpacing(t *testing.T) {
	s := Similarity("So, we'll meet Tomorrow at TEN!", "so well meet tomorrow at ten")
	assert.GreaterOrEqual(t, s, 0.8)
}

func TestSimilarityShortTexts(t *testing.T) {
	assert.InDelta(t, 1.0, Similarity("Ok", "ok"), 1e-9)
	assert.InDelta(t, 0.0, Similarity("ok", "no"), 1e-9)
	assert.InDelta(t, 0.0, Similarity("", "anything"), 1e-9)
}

func TestMergeSingleChunkIsIdentity(t *testing.T) {
	m := newTestMerger()
	merged := m.Merge([]ChunkResult{{
		Index: 0, Start: 0, End: 120,
		Segments: []job.Segment{
			{Start: 0, End: 5, Text: "hello everyone"},
			{Start: 6, End: 115, Text: "welcome to the meeting"},
		},
	}})

	require.Len(t, merged.Segments, 2)
	assert.Equal(t, "hello everyone", merged.Segments[0].Text)
	assert.Equal(t, 6.0, merged.Segments[1].Start)
	assert.Empty(t, merged.Warnings)
}

func TestMergeOffsetsToAbsoluteTimestamps(t *testing.T) {
	m := newTestMerger()
	merged := m.Merge([]ChunkResult{
		{Index: 0, Start: 0, End: 300, Segments: []job.Segment{
			{Start: 295, End: 299, Text: "closing words of chunk zero"},
		}},
		{Index: 1, Start: 290, End: 600, Segments: []job.Segment{
			{Start: 15, End: 20, Text: "a brand new sentence here"},
		}},
	})

	require.Len(t, merged.Segments, 2)
	assert.Equal(t, 305.0, merged.Segments[1].Start)
	assert.Equal(t, 310.0, merged.Segments[1].End)
}

func TestMergeDropsOverlapDuplicates(t *testing.T) {
	m := newTestMerger()
	merged := m.Merge([]ChunkResult{
		{Index: 0, Start: 0, End: 300, Segments: []job.Segment{
			{Start: 280, End: 290, Text: "let us review the budget for next quarter"},
			{Start: 291, End: 299, Text: "the numbers look promising overall"},
		}},
		{Index: 1, Start: 290, End: 600, Segments: []job.Segment{
			// Restates the overlap almost verbatim, then continues.
			{Start: 1, End: 9, Text: "The numbers look promising, overall."},
			{Start: 12, End: 18, Text: "moving on to the hiring plan"},
		}},
	})

	require.Len(t, merged.Segments, 3)
	assert.Equal(t, "the numbers look promising overall", merged.Segments[1].Text)
	assert.Equal(t, "moving on to the hiring plan", merged.Segments[2].Text)
}

func TestMergeKeepsDissimilarOverlapSegments(t *testing.T) {
	m := newTestMerger()
	merged := m.Merge([]ChunkResult{
		{Index: 0, Start: 0, End: 300, Segments: []job.Segment{
			{Start: 292, End: 299, Text: "first speaker finishing a thought"},
		}},
		{Index: 1, Start: 290, End: 600, Segments: []job.Segment{
			// In the overlap window but genuinely different content: the
			// first chunk's provider missed it.
			{Start: 4, End: 9, Text: "a quick interjection from the second speaker"},
		}},
	})

	require.Len(t, merged.Segments, 2)
	// The earlier segment yields the contested overlap; the new one keeps
	// its own timestamps and never collapses to zero length.
	assert.Equal(t, 292.0, merged.Segments[0].Start)
	assert.Equal(t, 294.0, merged.Segments[0].End)
	assert.Equal(t, 294.0, merged.Segments[1].Start)
	assert.Equal(t, 299.0, merged.Segments[1].End)
	assert.Less(t, merged.Segments[1].Start, merged.Segments[1].End)
}

func TestMergeDedupesOnlyNearbyStarts(t *testing.T) {
	m := newTestMerger()
	merged := m.Merge([]ChunkResult{
		{Index: 0, Start: 0, End: 300, Segments: []job.Segment{
			{Start: 281, End: 290, Text: "the numbers look promising overall"},
		}},
		{Index: 1, Start: 290, End: 600, Segments: []job.Segment{
			// Similar wording, but the starts sit 10s apart: a real
			// repetition by the speaker, not an overlap artifact.
			{Start: 1, End: 9, Text: "The numbers look promising, overall."},
		}},
	})

	require.Len(t, merged.Segments, 2)
	assert.Equal(t, 291.0, merged.Segments[1].Start)
}

func TestMergeWarnsOnEarlyStop(t *testing.T) {
	m := newTestMerger()
	merged := m.Merge([]ChunkResult{
		{Index: 0, Start: 0, End: 300, Segments: []job.Segment{
			{Start: 0, End: 210, Text: "cut off before the chunk ends"},
		}},
	})

	require.Len(t, merged.Warnings, 1)
	assert.Contains(t, merged.Warnings[0], "90.0s before the chunk end")
}

func TestMergeWarnsOnLeadingSilence(t *testing.T) {
	m := newTestMerger()
	merged := m.Merge([]ChunkResult{
		{Index: 0, Start: 0, End: 300, Segments: []job.Segment{
			{Start: 40, End: 295, Text: "late start"},
		}},
	})

	require.Len(t, merged.Warnings, 1)
	assert.Contains(t, merged.Warnings[0], "first 40.0s")
}

func TestMergeWarnsOnChunkStartSkipMaskedByOverlap(t *testing.T) {
	m := newTestMerger()
	// The second chunk's first segment starts 20s in. The previous chunk
	// covers the 10s overlap, so the merged timeline shows only a 10s
	// hole, but the skip against the chunk's own boundary must still warn.
	merged := m.Merge([]ChunkResult{
		{Index: 0, Start: 0, End: 300, Segments: []job.Segment{
			{Start: 0, End: 300, Text: "full coverage of the first chunk"},
		}},
		{Index: 1, Start: 290, End: 600, Segments: []job.Segment{
			{Start: 20, End: 310, Text: "late start in the second chunk"},
		}},
	})

	require.Len(t, merged.Warnings, 1)
	assert.Contains(t, merged.Warnings[0], "chunk 1")
	assert.Contains(t, merged.Warnings[0], "first 20.0s")
}

func TestMergeEmptyInput(t *testing.T) {
	m := newTestMerger()
	merged := m.Merge(nil)
	assert.Empty(t, merged.Segments)
	assert.Empty(t, merged.Warnings)
}

func TestMergeUnorderedInput(t *testing.T) {
	m := newTestMerger()
	merged := m.Merge([]ChunkResult{
		{Index: 1, Start: 290, End: 600, Segments: []job.Segment{
			{Start: 20, End: 25, Text: "second chunk content"},
		}},
		{Index: 0, Start: 0, End: 300, Segments: []job.Segment{
			{Start: 0, End: 5, Text: "first chunk content"},
		}},
	})

	require.Len(t, merged.Segments, 2)
	assert.Equal(t, "first chunk content", merged.Segments[0].Text)
	assert.Equal(t, 310.0, merged.Segments[1].Start)
}

func TestFullTextParagraphBreaks(t *testing.T) {
	m := newTestMerger()
	text := m.FullText([]job.Segment{
		{Start: 0, End: 5, Text: "first sentence"},
		{Start: 5.5, End: 9, Text: "second sentence"},
		{Start: 12, End: 15, Text: "new paragraph"},
	})

	assert.Equal(t, "first sentence second sentence\nnew paragraph", text)
}
