package audio

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strconv"

	ffmpeg "github.com/u2takey/ffmpeg-go"

	"github.com/scribepipe/scribepipe/pkg/logger"
)

// SilenceRange is a detected silent interval in the source audio.
type SilenceRange struct {
	Start float64
	End   float64
}

// Midpoint returns the center of the silent interval, the preferred place
// to cut a chunk.
func (s SilenceRange) Midpoint() float64 { return (s.Start + s.End) / 2 }

var (
	silenceStartRe = regexp.MustCompile(`silence_start:\s*(-?\d+(?:\.\d+)?)`)
	silenceEndRe   = regexp.MustCompile(`silence_end:\s*(-?\d+(?:\.\d+)?)`)
)

// SilenceDetector finds silent intervals using ffmpeg's silencedetect
// filter.
type SilenceDetector struct {
	// ThresholdDB is the level at or below which audio counts as silent.
	ThresholdDB float64
	// MinDuration is the minimum silent stretch to report, in seconds.
	MinDuration float64
}

// NewSilenceDetector creates a detector with the given threshold (dBFS)
// and minimum duration (seconds).
func NewSilenceDetector(thresholdDB, minDuration float64) *SilenceDetector {
	return &SilenceDetector{ThresholdDB: thresholdDB, MinDuration: minDuration}
}

// Detect returns all silent intervals in the WAV at path, ordered by start
// time. A trailing silence that runs to end-of-file is reported with End
// set to the file duration.
func (d *SilenceDetector) Detect(ctx context.Context, path string, duration float64) ([]SilenceRange, error) {
	log := logger.WithComponent("silence-detector")

	var stderr bytes.Buffer
	stream := ffmpeg.Input(path).
		Output("pipe:", ffmpeg.KwArgs{
			"af": fmt.Sprintf("silencedetect=noise=%gdB:d=%g", d.ThresholdDB, d.MinDuration),
			"f":  "null",
		}).
		WithErrorOutput(&stderr).
		Silent(true)

	if err := runWithContext(ctx, stream); err != nil {
		return nil, fmt.Errorf("silencedetect failed: %w", err)
	}

	ranges := parseSilenceOutput(stderr.String(), duration)
	log.Debug().
		Int("silence_ranges", len(ranges)).
		Float64("threshold_db", d.ThresholdDB).
		Msg("Silence detection complete")

	return ranges, nil
}

// parseSilenceOutput pairs silence_start/silence_end lines from ffmpeg's
// stderr. silencedetect emits them strictly interleaved; an unmatched
// final start means the file ends in silence.
func parseSilenceOutput(output string, duration float64) []SilenceRange {
	starts := silenceStartRe.FindAllStringSubmatch(output, -1)
	ends := silenceEndRe.FindAllStringSubmatch(output, -1)

	var ranges []SilenceRange
	for i, sm := range starts {
		start, err := strconv.ParseFloat(sm[1], 64)
		if err != nil {
			continue
		}
		if start < 0 {
			start = 0
		}

		end := duration
		if i < len(ends) {
			if e, err := strconv.ParseFloat(ends[i][1], 64); err == nil {
				end = e
			}
		}
		if end <= start {
			continue
		}
		ranges = append(ranges, SilenceRange{Start: start, End: end})
	}
	return ranges
}

// Midpoints converts silence ranges to candidate cut points.
func Midpoints(ranges []SilenceRange) []float64 {
	points := make([]float64, 0, len(ranges))
	for _, r := range ranges {
		points = append(points, r.Midpoint())
	}
	return points
}
