package providers

import (
	"fmt"
	"sort"
	"strings"

	"github.com/scribepipe/scribepipe/pkg/job"
)

// TimestampTolerance is how far past the chunk duration a returned segment
// timestamp may run before being clamped. Providers routinely overshoot by
// a fraction of a second on the final segment.
const TimestampTolerance = 2.0

// RawResponseCap bounds how much of a provider's raw response body is
// retained in chunk metadata for debugging.
const RawResponseCap = 2048

// BuildPrompt assembles the transcription instruction for LLM-based
// providers.
//
// The instruction explicitly demands transcription of the entire chunk
// starting at 0.0, overlap included. Telling the model to skip content it
// believes was already transcribed makes it drop the opening seconds of
// chunks entirely; duplicated overlap text is cheap to merge away, missing
// audio is gone for good.
func BuildPrompt(cfg ChunkConfig) string {
	var b strings.Builder

	b.WriteString("Transcribe this audio recording completely and accurately.\n\n")
	b.WriteString("Rules:\n")
	b.WriteString(fmt.Sprintf("- Transcribe ALL speech in the audio, from 0.0 seconds to the very end (the audio is %.1f seconds long).\n", cfg.ChunkDuration))
	b.WriteString("- Include everything you hear, even if some of it also appears in the context below.\n")
	b.WriteString(fmt.Sprintf("- No timestamp may exceed %.1f seconds.\n", cfg.ChunkDuration))
	b.WriteString("- Split the transcript into segments at natural sentence or speaker boundaries.\n")
	b.WriteString("- Label speakers consistently (Speaker 1, Speaker 2, ...) when more than one voice is present.\n")

	if cfg.Language != "" {
		b.WriteString(fmt.Sprintf("- The audio is in %q. Transcribe in that language.\n", cfg.Language))
	}

	if cfg.ContextText != "" {
		b.WriteString("\nThe recording continues from earlier audio that ended with:\n")
		b.WriteString("---\n")
		b.WriteString(cfg.ContextText)
		b.WriteString("\n---\n")
		b.WriteString("Use this only to carry over spelling, terminology and speaker labels.\n")
	}

	if cfg.Prompt != "" {
		b.WriteString("\nAdditional instructions from the user:\n")
		b.WriteString(cfg.Prompt)
		b.WriteString("\n")
	}

	return b.String()
}

// SanitizeSegments orders segments by start time, drops empty or
// malformed ones, and clamps timestamps that overrun the chunk duration.
// Segments starting beyond the tolerance window are hallucinated and
// discarded.
func SanitizeSegments(segments []job.Segment, chunkDuration float64) []job.Segment {
	limit := chunkDuration + TimestampTolerance

	out := make([]job.Segment, 0, len(segments))
	for _, s := range segments {
		s.Text = strings.TrimSpace(s.Text)
		if s.Text == "" {
			continue
		}
		if s.Start < 0 {
			s.Start = 0
		}
		if s.Start >= limit {
			continue
		}
		if s.End > chunkDuration {
			s.End = chunkDuration
		}
		if s.Start > chunkDuration {
			s.Start = chunkDuration
		}
		if s.End < s.Start {
			s.End = s.Start
		}
		out = append(out, s)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

// TruncateRaw caps a raw response body for storage in chunk metadata.
func TruncateRaw(raw string) string {
	if len(raw) <= RawResponseCap {
		return raw
	}
	return raw[:RawResponseCap]
}
