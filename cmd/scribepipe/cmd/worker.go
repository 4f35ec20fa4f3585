package cmd

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/scribepipe/scribepipe/pkg/job"
	"github.com/scribepipe/scribepipe/pkg/logger"
	"github.com/scribepipe/scribepipe/pkg/queue"
	"github.com/scribepipe/scribepipe/pkg/worker"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the transcription worker pool",
	Long: `Runs a pool of workers that process queued transcription jobs until
interrupted. On startup, stale jobs abandoned by crashed workers are
failed and unfinished jobs are requeued.`,
	RunE: runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("worker-cmd")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := newStore()
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	blob, err := newBlob()
	if err != nil {
		return err
	}

	q := queue.NewMemoryQueue(1024)
	defer func() { _ = q.Close() }()

	if _, err := worker.SweepStaleJobs(ctx, st, cfg.Worker.StaleJobAfter); err != nil {
		log.Warn().Err(err).Msg("Stale job sweep failed")
	}

	// The in-memory queue is empty after a restart; requeue everything
	// that was accepted but never finished.
	pending, err := st.ListJobsByStatus(ctx,
		[]job.Status{job.StatusPending, job.StatusUploaded}, time.Time{})
	if err != nil {
		return err
	}
	for _, j := range pending {
		if err := q.Enqueue(ctx, j.ID); err != nil {
			return err
		}
	}
	if len(pending) > 0 {
		log.Info().Int("requeued", len(pending)).Msg("Requeued unfinished jobs")
	}

	orch := worker.NewOrchestrator(st, blob, q, cfg)
	if removed, err := orch.CleanupExpired(ctx); err != nil {
		log.Warn().Err(err).Msg("Retention cleanup failed")
	} else if removed > 0 {
		log.Info().Int("removed", removed).Msg("Retention cleanup done")
	}

	proc := worker.NewProcessor(st, blob, cfg, worker.ProviderFactory(cfg))
	pool := worker.NewPool(proc, q, cfg.Worker.Workers, cfg.Worker.StaleJobAfter)

	log.Info().
		Int("workers", cfg.Worker.Workers).
		Str("storage", cfg.Storage.Backend).
		Str("provider", cfg.Provider.Name).
		Msg("Worker starting")

	return pool.Run(ctx)
}
