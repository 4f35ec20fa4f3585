package audio

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"

	ffmpeg "github.com/u2takey/ffmpeg-go"

	"github.com/scribepipe/scribepipe/pkg/logger"
)

// Window fractions around each target cut point. The search window has a
// fixed width proportional to the chunk size, never to the cut's absolute
// position, so late chunks get the same silence-search room as early ones.
const (
	windowBeforeFrac = 0.2
	windowAfterFrac  = 0.1
)

// SilenceChunker splits normalized audio into overlapping chunks whose
// boundaries prefer silent moments.
type SilenceChunker struct {
	MaxChunkDuration float64 // seconds
	OverlapDuration  float64 // seconds

	detector *SilenceDetector
}

// NewChunker creates a chunker. maxChunk and overlap are in seconds;
// thresholdDB and minSilence parameterize silence detection.
func NewChunker(maxChunk, overlap, thresholdDB, minSilence float64) *SilenceChunker {
	return &SilenceChunker{
		MaxChunkDuration: maxChunk,
		OverlapDuration:  overlap,
		detector:         NewSilenceDetector(thresholdDB, minSilence),
	}
}

// Boundaries computes chunk spans for the given total duration, cutting at
// the silence point nearest each target end when one falls inside the
// search window. silencePoints must be sorted ascending.
//
// Consecutive chunks overlap by OverlapDuration. A tail that would carry
// less than one second of new content is merged into the previous chunk
// instead of being emitted on its own.
func (c *SilenceChunker) Boundaries(duration float64, silencePoints []float64) []Span {
	if duration <= c.MaxChunkDuration {
		return []Span{{Start: 0, End: duration}}
	}

	m := c.MaxChunkDuration
	var spans []Span
	cursor := 0.0

	for {
		targetEnd := cursor + m
		if targetEnd >= duration {
			spans = append(spans, Span{Start: cursor, End: duration})
			break
		}

		lo := targetEnd - windowBeforeFrac*m
		hi := math.Min(targetEnd+windowAfterFrac*m, duration)
		split := nearestPoint(silencePoints, targetEnd, lo, hi)
		if split <= cursor {
			split = targetEnd
		}

		// Not enough new content beyond this cut for another chunk:
		// extend the current one to the end instead.
		if duration-split < c.OverlapDuration+1 {
			spans = append(spans, Span{Start: cursor, End: duration})
			break
		}

		spans = append(spans, Span{Start: cursor, End: split})
		cursor = split - c.OverlapDuration
	}

	return spans
}

// nearestPoint returns the candidate within [lo, hi] closest to target, or
// target itself when none qualifies.
func nearestPoint(points []float64, target, lo, hi float64) float64 {
	best := target
	bestDist := math.Inf(1)
	for _, p := range points {
		if p < lo || p > hi {
			continue
		}
		if d := math.Abs(p - target); d < bestDist {
			best = p
			bestDist = d
		}
	}
	return best
}

// ChunkFile implements Chunker: detects silence, computes boundaries, and
// extracts one WAV per chunk into outDir as chunk-NNNN.wav.
func (c *SilenceChunker) ChunkFile(ctx context.Context, wavPath string, duration float64, outDir string) ([]ChunkFile, error) {
	log := logger.WithComponent("chunker").WithField("file", filepath.Base(wavPath))

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create chunk directory: %w", err)
	}

	var silencePoints []float64
	if duration > c.MaxChunkDuration {
		ranges, err := c.detector.Detect(ctx, wavPath, duration)
		if err != nil {
			// Degrade to fixed-interval cuts rather than failing the job.
			log.Warn().Err(err).Msg("Silence detection failed, using fixed boundaries")
		} else {
			silencePoints = Midpoints(ranges)
		}
	}

	spans := c.Boundaries(duration, silencePoints)
	log.Info().
		Float64("duration", duration).
		Int("chunks", len(spans)).
		Int("silence_points", len(silencePoints)).
		Msg("Chunk boundaries computed")

	chunks := make([]ChunkFile, 0, len(spans))
	for i, span := range spans {
		chunkPath := filepath.Join(outDir, fmt.Sprintf("chunk-%04d.wav", i))
		if err := extractSpan(ctx, wavPath, span, chunkPath); err != nil {
			return nil, fmt.Errorf("failed to extract chunk %d: %w", i, err)
		}
		chunks = append(chunks, ChunkFile{Index: i, Span: span, Path: chunkPath})
	}

	return chunks, nil
}

// extractSpan cuts [span.Start, span.End) from inputPath into a standalone
// WAV. Seek before decode keeps extraction fast on long files.
func extractSpan(ctx context.Context, inputPath string, span Span, outputPath string) error {
	stream := ffmpeg.Input(inputPath, ffmpeg.KwArgs{
		"ss": formatSeconds(span.Start),
		"t":  formatSeconds(span.Duration()),
	}).Output(outputPath, ffmpeg.KwArgs{
		"acodec": "pcm_s16le",
		"ar":     fmt.Sprintf("%d", TargetSampleRate),
		"ac":     fmt.Sprintf("%d", TargetChannels),
	}).OverWriteOutput().Silent(true)

	return runWithContext(ctx, stream)
}

// formatSeconds renders a duration for ffmpeg as HH:MM:SS.mmm.
func formatSeconds(sec float64) string {
	if sec < 0 {
		sec = 0
	}
	whole := int(sec)
	millis := int(math.Round((sec - float64(whole)) * 1000))
	if millis >= 1000 {
		whole++
		millis -= 1000
	}
	return fmt.Sprintf("%02d:%02d:%02d.%03d", whole/3600, (whole/60)%60, whole%60, millis)
}
