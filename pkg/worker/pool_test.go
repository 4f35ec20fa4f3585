package worker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scribepipe/scribepipe/pkg/audio"
	"github.com/scribepipe/scribepipe/pkg/job"
	"github.com/scribepipe/scribepipe/pkg/providers"
)

func TestPoolProcessesQueuedJobs(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	env := newTestEnv(t)
	a := env.submit(t, "a.mp3")
	b := env.submit(t, "b.mp3")

	p := &scriptedProvider{name: "stub", onCall: func(_ int, cfg providers.ChunkConfig) (*providers.Result, error) {
		return &providers.Result{Segments: []job.Segment{
			{Start: 0, End: cfg.ChunkDuration, Text: "content"},
		}}, nil
	}}
	proc := env.newProcessor(p, []audio.Span{{Start: 0, End: 60}}, 60)

	pool := NewPool(proc, env.queue, 2, time.Hour)

	done := make(chan error, 1)
	go func() { done <- pool.Run(ctx) }()

	require.Eventually(t, func() bool {
		ja, err := env.store.GetJob(ctx, a.ID)
		if err != nil {
			return false
		}
		jb, err := env.store.GetJob(ctx, b.ID)
		if err != nil {
			return false
		}
		return ja.Status == job.StatusCompleted && jb.Status == job.StatusCompleted
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("pool did not shut down")
	}
}
