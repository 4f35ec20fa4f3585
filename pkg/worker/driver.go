package worker

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/scribepipe/scribepipe/pkg/config"
	"github.com/scribepipe/scribepipe/pkg/job"
	"github.com/scribepipe/scribepipe/pkg/logger"
	"github.com/scribepipe/scribepipe/pkg/providers"
	"github.com/scribepipe/scribepipe/pkg/store"
	"github.com/scribepipe/scribepipe/pkg/stterr"
)

// ErrJobCancelled aborts chunk processing when the job was cancelled from
// outside while the worker held it.
var ErrJobCancelled = errors.New("worker: job cancelled")

// ChunkDriver runs one provider call per chunk with transient-fault
// retries and coverage validation.
type ChunkDriver struct {
	store    store.Store
	provider providers.Provider
	backoff  *Backoff

	timeout         time.Duration
	maxAttempts     int
	coverageRetries int
	coverageGap     float64
}

// NewChunkDriver wires a driver for one provider.
func NewChunkDriver(st store.Store, p providers.Provider, cfg *config.Config) *ChunkDriver {
	return &ChunkDriver{
		store:           st,
		provider:        p,
		backoff:         NewBackoff(cfg.Retry),
		timeout:         cfg.Provider.Timeout,
		maxAttempts:     cfg.Retry.MaxAttempts,
		coverageRetries: cfg.Retry.CoverageRetries,
		coverageGap:     cfg.Chunking.CoverageGapThreshold,
	}
}

// ProcessChunk transcribes one chunk.
//
// Transient provider faults are retried with backoff up to the attempt
// budget; when the provider names a Retry-After delay, the longer of it
// and the computed backoff applies. A successful call whose transcript
// skips more audio at the chunk start or end than the coverage threshold
// is retried a bounded number of times; the result with the smallest
// boundary gap wins, so a retry can never make the outcome worse. The
// job's cancellation status is probed before every provider call and
// before every backoff sleep.
func (d *ChunkDriver) ProcessChunk(ctx context.Context, jobID string, chunk *job.Chunk, audio []byte, cfg providers.ChunkConfig) (*providers.Result, error) {
	log := logger.WithChunk("chunk-driver", jobID, chunk.Index)

	transientAttempts := 0
	coverageAttempts := 0
	var best *providers.Result
	bestGap := math.Inf(1)

	for {
		if err := d.probeCancelled(ctx, jobID); err != nil {
			return nil, err
		}

		if _, err := d.store.UpdateChunk(ctx, jobID, chunk.Index, func(c *job.Chunk) error {
			if c.Status == job.ChunkPending {
				if err := c.SetStatus(job.ChunkProcessing); err != nil {
					return err
				}
			}
			c.AttemptCount++
			return nil
		}); err != nil {
			return nil, err
		}

		callCtx, cancel := context.WithTimeout(ctx, d.timeout)
		res, err := d.provider.Transcribe(callCtx, audio, cfg)
		cancel()

		if err != nil {
			kind, message := stterr.Classify(err)
			transientAttempts++

			if _, uerr := d.store.UpdateChunk(ctx, jobID, chunk.Index, func(c *job.Chunk) error {
				c.LastError = message
				return nil
			}); uerr != nil {
				return nil, uerr
			}

			if kind.Retryable() && transientAttempts < d.maxAttempts {
				delay := d.backoff.Delay(transientAttempts - 1)
				var pe *stterr.ProviderError
				if errors.As(err, &pe) && pe.RetryAfter > delay {
					delay = pe.RetryAfter
				}
				log.Warn().
					Str("kind", string(kind)).
					Int("attempt", transientAttempts).
					Dur("retry_in", delay).
					Msg("Transient provider fault, will retry")

				if err := d.probeCancelled(ctx, jobID); err != nil {
					return nil, err
				}
				if err := sleepCtx(ctx, delay); err != nil {
					return nil, err
				}
				continue
			}

			log.Error().
				Str("kind", string(kind)).
				Int("attempts", transientAttempts).
				Msg("Chunk failed permanently")

			if _, uerr := d.store.UpdateChunk(ctx, jobID, chunk.Index, func(c *job.Chunk) error {
				c.LastError = message
				return c.SetStatus(job.ChunkFailed)
			}); uerr != nil {
				return nil, uerr
			}
			return nil, err
		}

		gap := maxCoverageGap(res.Segments, cfg.ChunkDuration)
		if gap < bestGap {
			best = res
			bestGap = gap
		}

		if gap > d.coverageGap && coverageAttempts < d.coverageRetries {
			coverageAttempts++
			log.Warn().
				Float64("max_gap", gap).
				Float64("threshold", d.coverageGap).
				Int("coverage_attempt", coverageAttempts).
				Msg("Transcript skips audio at a chunk boundary, retrying chunk")
			continue
		}
		break
	}

	if _, err := d.store.UpdateChunk(ctx, jobID, chunk.Index, func(c *job.Chunk) error {
		c.Segments = best.Segments
		c.Metadata = best.Metadata
		c.LastError = ""
		return c.SetStatus(job.ChunkCompleted)
	}); err != nil {
		return nil, err
	}

	if _, err := d.store.UpdateJob(ctx, jobID, func(j *job.Job) error {
		j.CompletedChunks++
		return nil
	}); err != nil {
		return nil, err
	}

	log.Info().
		Int("segments", len(best.Segments)).
		Float64("max_gap", bestGap).
		Msg("Chunk completed")

	return best, nil
}

// probeCancelled re-reads the job and aborts when it was cancelled. The
// stored status is the single source of truth; a local copy read at job
// start would miss cancellations arriving mid-chunk.
func (d *ChunkDriver) probeCancelled(ctx context.Context, jobID string) error {
	j, err := d.store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if j.Status == job.StatusCancelled {
		return ErrJobCancelled
	}
	return nil
}

// maxCoverageGap returns the larger of the two boundary gaps the segments
// leave in a chunk of the given duration: audio skipped before the first
// segment and audio left after the last. Internal pauses are legitimate
// silence and never trigger a retry. Timestamps past the chunk end are
// clamped before measuring; providers occasionally overflow them and an
// overflowed end would otherwise mask a real trailing gap.
func maxCoverageGap(segments []job.Segment, duration float64) float64 {
	if duration <= 0 {
		return 0
	}
	if len(segments) == 0 {
		return duration
	}

	startGap := math.Min(segments[0].Start, duration)

	lastEnd := 0.0
	for _, s := range segments {
		if s.Start > duration {
			continue
		}
		if end := math.Min(s.End, duration); end > lastEnd {
			lastEnd = end
		}
	}
	return math.Max(startGap, duration-lastEnd)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
