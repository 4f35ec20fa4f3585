package worker

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/scribepipe/scribepipe/pkg/job"
	"github.com/scribepipe/scribepipe/pkg/logger"
	"github.com/scribepipe/scribepipe/pkg/queue"
)

// Pool runs N workers that dequeue jobs and process them concurrently.
// Jobs are concurrent across the pool; chunks within a job stay
// sequential inside its worker.
type Pool struct {
	processor *Processor
	queue     queue.Queue
	workers   int

	sweepEvery time.Duration
	staleAfter time.Duration
}

// NewPool creates a pool of the given size.
func NewPool(processor *Processor, q queue.Queue, workers int, staleAfter time.Duration) *Pool {
	if workers < 1 {
		workers = 1
	}
	return &Pool{
		processor:  processor,
		queue:      q,
		workers:    workers,
		sweepEvery: 5 * time.Minute,
		staleAfter: staleAfter,
	}
}

// Run blocks until ctx is cancelled, sweeping stale jobs once at startup
// and periodically after.
func (p *Pool) Run(ctx context.Context) error {
	log := logger.WithComponent("pool")

	if _, err := SweepStaleJobs(ctx, p.processor.store, p.staleAfter); err != nil {
		log.Warn().Err(err).Msg("Startup stale sweep failed")
	}

	g, ctx := errgroup.WithContext(ctx)

	for i := 0; i < p.workers; i++ {
		workerID := i
		g.Go(func() error {
			return p.runWorker(ctx, workerID)
		})
	}

	g.Go(func() error {
		ticker := time.NewTicker(p.sweepEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				if _, err := SweepStaleJobs(ctx, p.processor.store, p.staleAfter); err != nil {
					log.Warn().Err(err).Msg("Periodic stale sweep failed")
				}
				if err := p.requeueWaiting(ctx); err != nil {
					log.Warn().Err(err).Msg("Requeue scan failed")
				}
			}
		}
	})

	log.Info().Int("workers", p.workers).Msg("Worker pool started")

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// requeueWaiting re-enqueues jobs that are UPLOADED or PENDING but not
// progressing, e.g. retried through the CLI while the pool was running.
// A duplicate delivery of a job a worker already claimed is acked
// harmlessly, so over-enqueueing here is safe.
func (p *Pool) requeueWaiting(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-p.sweepEvery)
	waiting, err := p.processor.store.ListJobsByStatus(ctx,
		[]job.Status{job.StatusPending, job.StatusUploaded}, cutoff)
	if err != nil {
		return err
	}
	for _, j := range waiting {
		if err := p.queue.Enqueue(ctx, j.ID); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pool) runWorker(ctx context.Context, id int) error {
	log := logger.WithComponent("pool").WithField("worker", id)

	for {
		delivery, err := p.queue.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, queue.ErrClosed) || errors.Is(err, context.Canceled) {
				return err
			}
			log.Error().Err(err).Msg("Dequeue failed")
			continue
		}

		// Ack only once the job is terminal: a nil return from
		// ProcessJob guarantees that. An interrupted job goes back for
		// redelivery.
		if err := p.processor.ProcessJob(ctx, delivery.JobID); err != nil {
			log.Warn().Err(err).Str("job_id", delivery.JobID).Msg("Job interrupted, requeueing")
			delivery.Nack()
			if ctx.Err() != nil {
				return ctx.Err()
			}
			continue
		}
		delivery.Ack()
	}
}
