package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/scribepipe/scribepipe/pkg/job"
	"github.com/scribepipe/scribepipe/pkg/logger"
	"github.com/scribepipe/scribepipe/pkg/store"
	"github.com/scribepipe/scribepipe/pkg/stterr"
)

// SweepStaleJobs fails jobs stuck in UPLOADED or PROCESSING longer than
// staleAfter. A job gets stuck when its worker died mid-run; without the
// sweep it would sit in PROCESSING forever, invisible to retries. Run at
// worker startup and periodically after.
func SweepStaleJobs(ctx context.Context, st store.Store, staleAfter time.Duration) (int, error) {
	log := logger.WithComponent("sweeper")

	cutoff := time.Now().UTC().Add(-staleAfter)
	stale, err := st.ListJobsByStatus(ctx,
		[]job.Status{job.StatusUploaded, job.StatusProcessing}, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to list stale jobs: %w", err)
	}

	swept := 0
	for _, j := range stale {
		failed := false
		_, err := st.UpdateJob(ctx, j.ID, func(cur *job.Job) error {
			// Re-check against stored state; the job may have progressed
			// or been cancelled since listing.
			if cur.Status != job.StatusUploaded && cur.Status != job.StatusProcessing {
				return nil
			}
			if !cur.UpdatedAt.Before(cutoff) {
				return nil
			}
			failed = true
			return cur.Fail(string(stterr.KindTimeout),
				fmt.Sprintf("no progress for %s, presumed worker crash", staleAfter))
		})
		if err != nil {
			log.Warn().Err(err).Str("job_id", j.ID).Msg("Failed to sweep stale job")
			continue
		}
		if !failed {
			continue
		}
		swept++
		log.Warn().
			Str("job_id", j.ID).
			Str("was_status", string(j.Status)).
			Time("last_update", j.UpdatedAt).
			Msg("Stale job failed by sweeper")
	}

	if swept > 0 {
		log.Info().Int("swept", swept).Msg("Stale job sweep complete")
	}
	return swept, nil
}
