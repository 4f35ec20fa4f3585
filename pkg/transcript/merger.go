package transcript

import (
	"fmt"
	"sort"
	"strings"

	"github.com/scribepipe/scribepipe/pkg/job"
	"github.com/scribepipe/scribepipe/pkg/logger"
)

// Merger joins chunk results into one transcript, removing the duplicated
// text that overlapping chunks produce.
type Merger struct {
	// SimilarityThreshold is the minimum trigram Jaccard similarity at
	// which two overlap-region segments count as the same utterance.
	SimilarityThreshold float64

	// BoundaryProximity widens the overlap region on both sides, in
	// seconds, to absorb provider timestamp drift.
	BoundaryProximity float64

	// GapWarnThreshold is the chunk-boundary gap length, in seconds,
	// above which a coverage warning is recorded.
	GapWarnThreshold float64

	// NewlineGap is the gap, in seconds, above which full text gets a
	// paragraph break instead of a space.
	NewlineGap float64
}

// NewMerger creates a merger with the given similarity threshold and gap
// warning threshold, and default boundary handling.
func NewMerger(similarityThreshold, gapWarnThreshold float64) *Merger {
	return &Merger{
		SimilarityThreshold: similarityThreshold,
		BoundaryProximity:   2.0,
		GapWarnThreshold:    gapWarnThreshold,
		NewlineGap:          1.5,
	}
}

// Merged is the outcome of merging all chunk results.
type Merged struct {
	Segments []job.Segment
	Warnings []string
}

// FullText renders the merged segments as plain text, inserting paragraph
// breaks at long silent gaps.
func (m *Merger) FullText(segments []job.Segment) string {
	var b strings.Builder
	for i, s := range segments {
		if i > 0 {
			if s.Start-segments[i-1].End > m.NewlineGap {
				b.WriteString("\n")
			} else {
				b.WriteString(" ")
			}
		}
		b.WriteString(strings.TrimSpace(s.Text))
	}
	return b.String()
}

// Merge combines chunk results ordered by index into absolute-timestamped
// segments. Within each overlap region, a segment from the later chunk
// that restates a kept segment is dropped; a genuinely new one is kept
// untouched and the kept segment it collides with is truncated to end
// where the new one starts.
func (m *Merger) Merge(results []ChunkResult) *Merged {
	log := logger.WithComponent("merger")

	sorted := make([]ChunkResult, len(results))
	copy(sorted, results)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Index < sorted[j].Index })

	merged := &Merged{}
	dropped := 0

	for i, chunk := range sorted {
		if i == 0 {
			for _, s := range chunk.Segments {
				merged.Segments = append(merged.Segments, absolute(s, chunk.Start))
			}
			continue
		}

		prevEnd := sorted[i-1].End
		overlapEnd := prevEnd + m.BoundaryProximity

		for _, s := range chunk.Segments {
			abs := absolute(s, chunk.Start)

			if abs.Start < overlapEnd && m.isDuplicate(abs, merged.Segments) {
				dropped++
				continue
			}

			if n := len(merged.Segments); n > 0 {
				prev := &merged.Segments[n-1]
				if abs.Start < prev.End && abs.Start > prev.Start {
					prev.End = abs.Start
				}
			}
			merged.Segments = append(merged.Segments, abs)
		}
	}

	m.warnChunkBoundaries(sorted, merged)

	log.Info().
		Int("chunks", len(sorted)).
		Int("segments", len(merged.Segments)).
		Int("dropped_duplicates", dropped).
		Int("warnings", len(merged.Warnings)).
		Msg("Transcript merged")

	return merged
}

// isDuplicate reports whether seg restates an already-kept segment whose
// start lies within BoundaryProximity of seg's. Only near-starting pairs
// are candidates: a similar utterance further away is a genuine
// repetition by the speaker, not a chunk-overlap artifact.
func (m *Merger) isDuplicate(seg job.Segment, kept []job.Segment) bool {
	for i := len(kept) - 1; i >= 0; i-- {
		prev := kept[i]
		if prev.Start < seg.Start-m.BoundaryProximity {
			break
		}
		if prev.Start > seg.Start+m.BoundaryProximity {
			continue
		}
		if Similarity(seg.Text, prev.Text) >= m.SimilarityThreshold {
			return true
		}
	}
	return false
}

// warnChunkBoundaries records a warning for every chunk whose provider
// result leaves the chunk's own start or end uncovered. The check runs on
// the raw per-chunk segments, not the merged timeline: a skipped chunk
// start masked by the previous chunk's overlap coverage still means the
// provider dropped audio it was given.
func (m *Merger) warnChunkBoundaries(results []ChunkResult, merged *Merged) {
	if m.GapWarnThreshold <= 0 {
		return
	}

	for _, c := range results {
		duration := c.End - c.Start
		if len(c.Segments) == 0 {
			if duration > m.GapWarnThreshold {
				merged.Warnings = append(merged.Warnings,
					fmt.Sprintf("chunk %d: no transcription for %.1fs of audio", c.Index, duration))
			}
			continue
		}
		if first := c.Segments[0].Start; first > m.GapWarnThreshold {
			merged.Warnings = append(merged.Warnings,
				fmt.Sprintf("chunk %d: no transcription for the first %.1fs of the chunk",
					c.Index, first))
		}
		if trailing := duration - c.Segments[len(c.Segments)-1].End; trailing > m.GapWarnThreshold {
			merged.Warnings = append(merged.Warnings,
				fmt.Sprintf("chunk %d: transcription stops %.1fs before the chunk end",
					c.Index, trailing))
		}
	}
}

func absolute(s job.Segment, offset float64) job.Segment {
	s.Start += offset
	s.End += offset
	return s
}
