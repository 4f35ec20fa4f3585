package worker

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/scribepipe/scribepipe/pkg/audio"
	"github.com/scribepipe/scribepipe/pkg/config"
	"github.com/scribepipe/scribepipe/pkg/job"
	"github.com/scribepipe/scribepipe/pkg/logger"
	"github.com/scribepipe/scribepipe/pkg/queue"
	"github.com/scribepipe/scribepipe/pkg/storage"
	"github.com/scribepipe/scribepipe/pkg/store"
)

// Orchestrator manages job lifecycle outside of processing: intake,
// cancellation, retry, deletion and retention cleanup.
type Orchestrator struct {
	store store.Store
	blob  storage.Blob
	queue queue.Queue
	cfg   *config.Config
}

// NewOrchestrator wires an orchestrator.
func NewOrchestrator(st store.Store, blob storage.Blob, q queue.Queue, cfg *config.Config) *Orchestrator {
	return &Orchestrator{store: st, blob: blob, queue: q, cfg: cfg}
}

// SubmitRequest describes a new transcription job.
type SubmitRequest struct {
	Filename   string
	Size       int64
	Provider   string
	Language   string
	Prompt     string
	WebhookURL string
}

// Submit creates a job, stores the uploaded file and queues it for
// processing.
func (o *Orchestrator) Submit(ctx context.Context, r io.Reader, req SubmitRequest) (*job.Job, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(req.Filename), "."))
	if !audio.IsSupportedExtension(ext) {
		return nil, fmt.Errorf("unsupported file extension %q", ext)
	}

	provider := req.Provider
	if provider == "" {
		provider = o.cfg.Provider.Name
	}

	j := job.New(provider, req.Language, req.Filename)
	j.Extension = ext
	j.FileSizeBytes = req.Size
	j.Prompt = req.Prompt
	j.WebhookURL = req.WebhookURL
	j.OriginalKey = storage.OriginalKey(j.ID, req.Filename)

	if err := o.store.CreateJob(ctx, j); err != nil {
		return nil, err
	}

	if err := o.blob.Upload(ctx, j.OriginalKey, r); err != nil {
		_ = o.store.DeleteJob(ctx, j.ID)
		return nil, fmt.Errorf("failed to store upload: %w", err)
	}

	j, err := o.store.UpdateJob(ctx, j.ID, func(cur *job.Job) error {
		return cur.SetStatus(job.StatusUploaded)
	})
	if err != nil {
		return nil, err
	}

	if err := o.queue.Enqueue(ctx, j.ID); err != nil {
		return nil, fmt.Errorf("failed to enqueue job: %w", err)
	}

	logger.WithJob("orchestrator", j.ID).Info().
		Str("file", req.Filename).
		Str("provider", provider).
		Msg("Job submitted")
	return j, nil
}

// Cancel marks a job cancelled. Valid from any non-terminal status; the
// processing worker notices on its next cancellation probe.
func (o *Orchestrator) Cancel(ctx context.Context, jobID string) (*job.Job, error) {
	j, err := o.store.UpdateJob(ctx, jobID, func(cur *job.Job) error {
		return cur.SetStatus(job.StatusCancelled)
	})
	if err != nil {
		return nil, err
	}
	logger.WithJob("orchestrator", jobID).Info().Msg("Job cancelled")
	return j, nil
}

// Retry requeues a FAILED job. Processing restarts from the beginning:
// the audio is re-chunked and every chunk is transcribed again.
func (o *Orchestrator) Retry(ctx context.Context, jobID string) (*job.Job, error) {
	j, err := o.store.UpdateJob(ctx, jobID, func(cur *job.Job) error {
		if err := cur.ResetForRetry(); err != nil {
			return err
		}
		// The original upload is still in place.
		return cur.SetStatus(job.StatusUploaded)
	})
	if err != nil {
		return nil, err
	}

	if err := o.queue.Enqueue(ctx, jobID); err != nil {
		return nil, fmt.Errorf("failed to enqueue retried job: %w", err)
	}

	logger.WithJob("orchestrator", jobID).Info().Msg("Job requeued for retry")
	return j, nil
}

// Delete removes a terminal job and every blob it stored.
func (o *Orchestrator) Delete(ctx context.Context, jobID string) error {
	j, err := o.store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if !j.Status.Terminal() {
		return fmt.Errorf("job %s is %s; cancel it before deleting", jobID, j.Status)
	}

	if err := o.blob.DeletePrefix(ctx, storage.JobPrefix(jobID)); err != nil {
		return err
	}
	if err := o.store.DeleteJob(ctx, jobID); err != nil {
		return err
	}

	logger.WithJob("orchestrator", jobID).Info().Msg("Job deleted")
	return nil
}

// CleanupExpired deletes terminal jobs older than the retention window,
// blobs included. Returns how many jobs were removed.
func (o *Orchestrator) CleanupExpired(ctx context.Context) (int, error) {
	log := logger.WithComponent("orchestrator")

	cutoff := time.Now().UTC().AddDate(0, 0, -o.cfg.Worker.RetentionDays)
	expired, err := o.store.ListExpiredJobs(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to list expired jobs: %w", err)
	}

	removed := 0
	for _, j := range expired {
		if err := o.blob.DeletePrefix(ctx, storage.JobPrefix(j.ID)); err != nil {
			log.Warn().Err(err).Str("job_id", j.ID).Msg("Failed to delete expired job blobs")
			continue
		}
		if err := o.store.DeleteJob(ctx, j.ID); err != nil {
			log.Warn().Err(err).Str("job_id", j.ID).Msg("Failed to delete expired job")
			continue
		}
		removed++
	}

	if removed > 0 {
		log.Info().Int("removed", removed).Int("retention_days", o.cfg.Worker.RetentionDays).
			Msg("Expired jobs cleaned up")
	}
	return removed, nil
}
