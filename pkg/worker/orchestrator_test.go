package worker

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scribepipe/scribepipe/pkg/job"
	"github.com/scribepipe/scribepipe/pkg/storage"
	"github.com/scribepipe/scribepipe/pkg/store"
)

func TestSubmitStoresUploadsAndQueues(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	j, err := env.orchestrator.Submit(ctx, strings.NewReader("media"), SubmitRequest{
		Filename: "interview.m4a",
		Size:     5,
		Provider: "whisper",
		Language: "hy-AM",
	})
	require.NoError(t, err)

	assert.Equal(t, job.StatusUploaded, j.Status)
	assert.Equal(t, "whisper", j.Provider)
	assert.Equal(t, "m4a", j.Extension)
	assert.Equal(t, storage.OriginalKey(j.ID, "interview.m4a"), j.OriginalKey)

	rc, err := env.blob.Download(ctx, j.OriginalKey)
	require.NoError(t, err)
	_ = rc.Close()

	d, err := env.queue.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, j.ID, d.JobID)
	d.Ack()
}

func TestSubmitRejectsUnsupportedExtension(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.orchestrator.Submit(context.Background(), strings.NewReader("x"), SubmitRequest{
		Filename: "notes.txt",
	})
	assert.ErrorContains(t, err, "unsupported file extension")
}

func TestCancelTerminalJobFails(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	j := env.submit(t, "a.mp3")

	_, err := env.orchestrator.Cancel(ctx, j.ID)
	require.NoError(t, err)

	_, err = env.orchestrator.Cancel(ctx, j.ID)
	assert.Error(t, err, "cancel is not valid on a terminal job")
}

func TestRetryRequeuesFailedJob(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	j := env.submit(t, "a.mp3")

	// Drain the submit delivery.
	d, err := env.queue.Dequeue(ctx)
	require.NoError(t, err)
	d.Ack()

	_, err = env.store.UpdateJob(ctx, j.ID, func(cur *job.Job) error {
		if err := cur.SetStatus(job.StatusProcessing); err != nil {
			return err
		}
		return cur.Fail("timeout", "deadline exceeded")
	})
	require.NoError(t, err)

	retried, err := env.orchestrator.Retry(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusUploaded, retried.Status)
	assert.Empty(t, retried.ErrorCode)

	d, err = env.queue.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, j.ID, d.JobID)
}

func TestRetryRejectsNonFailedJob(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	j := env.submit(t, "a.mp3")

	_, err := env.orchestrator.Retry(ctx, j.ID)
	assert.Error(t, err)

	_, err = env.orchestrator.Cancel(ctx, j.ID)
	require.NoError(t, err)
	_, err = env.orchestrator.Retry(ctx, j.ID)
	assert.Error(t, err, "cancelled jobs are not retryable")
}

func TestDeleteRemovesJobAndBlobs(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	j := env.submit(t, "a.mp3")

	assert.Error(t, env.orchestrator.Delete(ctx, j.ID), "active jobs cannot be deleted")

	_, err := env.orchestrator.Cancel(ctx, j.ID)
	require.NoError(t, err)
	require.NoError(t, env.orchestrator.Delete(ctx, j.ID))

	_, err = env.store.GetJob(ctx, j.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = env.blob.Download(ctx, j.OriginalKey)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestCleanupExpired(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	old := env.submit(t, "old.mp3")
	_, err := env.orchestrator.Cancel(ctx, old.ID)
	require.NoError(t, err)
	_, err = env.store.UpdateJob(ctx, old.ID, func(cur *job.Job) error {
		past := time.Now().UTC().AddDate(0, 0, -(env.cfg.Worker.RetentionDays + 10))
		cur.CompletedAt = &past
		return nil
	})
	require.NoError(t, err)

	recent := env.submit(t, "recent.mp3")
	_, err = env.orchestrator.Cancel(ctx, recent.ID)
	require.NoError(t, err)

	removed, err := env.orchestrator.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = env.store.GetJob(ctx, old.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = env.store.GetJob(ctx, recent.ID)
	assert.NoError(t, err)
}
