package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scribepipe/scribepipe/pkg/job"
)

// runStoreTests exercises the Store contract against an implementation.
func runStoreTests(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("job round trip", func(t *testing.T) {
		s := newStore(t)
		defer func() { _ = s.Close() }()

		j := job.New("gemini", "en", "meeting.mp3")
		require.NoError(t, s.CreateJob(ctx, j))

		got, err := s.GetJob(ctx, j.ID)
		require.NoError(t, err)
		assert.Equal(t, j.ID, got.ID)
		assert.Equal(t, job.StatusPending, got.Status)

		assert.Error(t, s.CreateJob(ctx, j), "duplicate id must be rejected")

		_, err = s.GetJob(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("update is read-modify-write", func(t *testing.T) {
		s := newStore(t)
		defer func() { _ = s.Close() }()

		j := job.New("gemini", "en", "a.wav")
		require.NoError(t, s.CreateJob(ctx, j))

		updated, err := s.UpdateJob(ctx, j.ID, func(cur *job.Job) error {
			return cur.SetStatus(job.StatusUploaded)
		})
		require.NoError(t, err)
		assert.Equal(t, job.StatusUploaded, updated.Status)

		// A transition invalid against *stored* state fails even though
		// the caller's stale copy would have allowed it.
		_, err = s.UpdateJob(ctx, j.ID, func(cur *job.Job) error {
			return cur.SetStatus(job.StatusUploaded)
		})
		assert.Error(t, err)

		got, err := s.GetJob(ctx, j.ID)
		require.NoError(t, err)
		assert.Equal(t, job.StatusUploaded, got.Status, "failed mutation must not persist")
	})

	t.Run("chunks ordered and cascade deleted", func(t *testing.T) {
		s := newStore(t)
		defer func() { _ = s.Close() }()

		j := job.New("gemini", "en", "a.wav")
		require.NoError(t, s.CreateJob(ctx, j))

		chunks := []*job.Chunk{
			{JobID: j.ID, Index: 2, StartTime: 580, EndTime: 620, Status: job.ChunkPending},
			{JobID: j.ID, Index: 0, StartTime: 0, EndTime: 300, Status: job.ChunkPending},
			{JobID: j.ID, Index: 1, StartTime: 290, EndTime: 590, Status: job.ChunkPending},
		}
		require.NoError(t, s.CreateChunks(ctx, j.ID, chunks))

		listed, err := s.ListChunks(ctx, j.ID)
		require.NoError(t, err)
		require.Len(t, listed, 3)
		for i, c := range listed {
			assert.Equal(t, i, c.Index)
		}

		c, err := s.GetChunk(ctx, j.ID, 1)
		require.NoError(t, err)
		assert.Equal(t, 290.0, c.StartTime)

		_, err = s.UpdateChunk(ctx, j.ID, 1, func(cur *job.Chunk) error {
			cur.AttemptCount++
			return cur.SetStatus(job.ChunkProcessing)
		})
		require.NoError(t, err)

		c, err = s.GetChunk(ctx, j.ID, 1)
		require.NoError(t, err)
		assert.Equal(t, 1, c.AttemptCount)
		assert.Equal(t, job.ChunkProcessing, c.Status)

		require.NoError(t, s.DeleteJob(ctx, j.ID))
		_, err = s.GetJob(ctx, j.ID)
		assert.ErrorIs(t, err, ErrNotFound)
		listed, err = s.ListChunks(ctx, j.ID)
		require.NoError(t, err)
		assert.Empty(t, listed)
	})

	t.Run("recreating chunks replaces previous attempt", func(t *testing.T) {
		s := newStore(t)
		defer func() { _ = s.Close() }()

		j := job.New("gemini", "en", "a.wav")
		require.NoError(t, s.CreateJob(ctx, j))

		first := []*job.Chunk{
			{JobID: j.ID, Index: 0, EndTime: 300, Status: job.ChunkPending},
			{JobID: j.ID, Index: 1, StartTime: 290, EndTime: 500, Status: job.ChunkPending},
		}
		require.NoError(t, s.CreateChunks(ctx, j.ID, first))

		second := []*job.Chunk{
			{JobID: j.ID, Index: 0, EndTime: 500, Status: job.ChunkPending},
		}
		require.NoError(t, s.CreateChunks(ctx, j.ID, second))

		listed, err := s.ListChunks(ctx, j.ID)
		require.NoError(t, err)
		require.Len(t, listed, 1)
		assert.Equal(t, 500.0, listed[0].EndTime)
	})

	t.Run("list by status and staleness", func(t *testing.T) {
		s := newStore(t)
		defer func() { _ = s.Close() }()

		stale := job.New("gemini", "en", "stale.wav")
		require.NoError(t, stale.SetStatus(job.StatusUploaded))
		require.NoError(t, stale.SetStatus(job.StatusProcessing))
		stale.UpdatedAt = time.Now().UTC().Add(-time.Hour)
		require.NoError(t, s.CreateJob(ctx, stale))

		fresh := job.New("gemini", "en", "fresh.wav")
		require.NoError(t, fresh.SetStatus(job.StatusUploaded))
		require.NoError(t, s.CreateJob(ctx, fresh))

		cutoff := time.Now().UTC().Add(-30 * time.Minute)
		got, err := s.ListJobsByStatus(ctx, []job.Status{job.StatusProcessing, job.StatusUploaded}, cutoff)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, stale.ID, got[0].ID)

		got, err = s.ListJobsByStatus(ctx, []job.Status{job.StatusProcessing, job.StatusUploaded}, time.Time{})
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})

	t.Run("expired jobs", func(t *testing.T) {
		s := newStore(t)
		defer func() { _ = s.Close() }()

		old := job.New("gemini", "en", "old.wav")
		require.NoError(t, old.SetStatus(job.StatusCancelled))
		past := time.Now().UTC().AddDate(0, 0, -60)
		old.CompletedAt = &past
		require.NoError(t, s.CreateJob(ctx, old))

		active := job.New("gemini", "en", "active.wav")
		require.NoError(t, s.CreateJob(ctx, active))

		expired, err := s.ListExpiredJobs(ctx, time.Now().UTC().AddDate(0, 0, -30))
		require.NoError(t, err)
		require.Len(t, expired, 1)
		assert.Equal(t, old.ID, expired[0].ID)
	})
}

func TestMemoryStore(t *testing.T) {
	runStoreTests(t, func(t *testing.T) Store {
		return NewMemoryStore()
	})
}

func TestBoltStore(t *testing.T) {
	runStoreTests(t, func(t *testing.T) Store {
		s, err := NewBoltStore(filepath.Join(t.TempDir(), "test.db"))
		require.NoError(t, err)
		return s
	})
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	j := job.New("gemini", "en", "a.wav")
	require.NoError(t, s.CreateJob(ctx, j))

	got, err := s.GetJob(ctx, j.ID)
	require.NoError(t, err)
	got.Provider = "mutated"

	again, err := s.GetJob(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, "gemini", again.Provider)
}
