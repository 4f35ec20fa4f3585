// Package transcript assembles per-chunk provider results into the final
// transcript document, deduplicating overlap regions.
package transcript

import (
	"github.com/scribepipe/scribepipe/pkg/job"
)

// Document is the result artifact stored as transcript.json.
type Document struct {
	JobID                 string  `json:"job_id"`
	DurationSeconds       float64 `json:"duration_seconds"`
	ProviderUsed          string  `json:"provider_used"`
	ProcessingTimeSeconds float64 `json:"processing_time_seconds"`
	ChunksProcessed       int     `json:"chunks_processed"`
	Transcript            Body    `json:"transcript"`
}

// Body holds the merged text and its segments with absolute timestamps.
type Body struct {
	Text     string        `json:"text"`
	Segments []job.Segment `json:"segments"`
}

// ChunkResult is one chunk's transcription, as input to the merger.
// Segment timestamps are chunk-local; Start and End position the chunk in
// the source audio.
type ChunkResult struct {
	Index    int
	Start    float64
	End      float64
	Segments []job.Segment
}
