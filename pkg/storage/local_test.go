package storage

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalBlobRoundTrip(t *testing.T) {
	ctx := context.Background()
	b, err := NewLocalBlob(t.TempDir())
	require.NoError(t, err)

	key := ChunkKey("job-1", 0)
	require.NoError(t, b.Upload(ctx, key, strings.NewReader("wav bytes")))

	rc, err := b.Download(ctx, key)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "wav bytes", string(data))

	// Re-upload replaces.
	require.NoError(t, b.Upload(ctx, key, strings.NewReader("replaced")))
	rc, err = b.Download(ctx, key)
	require.NoError(t, err)
	data, _ = io.ReadAll(rc)
	_ = rc.Close()
	assert.Equal(t, "replaced", string(data))
}

func TestLocalBlobMissingKey(t *testing.T) {
	ctx := context.Background()
	b, err := NewLocalBlob(t.TempDir())
	require.NoError(t, err)

	_, err = b.Download(ctx, ResultKey("nope"))
	assert.ErrorIs(t, err, ErrNotFound)

	// Deleting a missing key is fine.
	assert.NoError(t, b.Delete(ctx, ResultKey("nope")))
}

func TestLocalBlobDeletePrefixRemovesJob(t *testing.T) {
	ctx := context.Background()
	b, err := NewLocalBlob(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, b.Upload(ctx, OriginalKey("j1", "a.mp3"), strings.NewReader("x")))
	require.NoError(t, b.Upload(ctx, ChunkKey("j1", 0), strings.NewReader("x")))
	require.NoError(t, b.Upload(ctx, ResultKey("j1"), strings.NewReader("x")))
	require.NoError(t, b.Upload(ctx, ChunkKey("j2", 0), strings.NewReader("keep")))

	require.NoError(t, b.DeletePrefix(ctx, JobPrefix("j1")))

	_, err = b.Download(ctx, ChunkKey("j1", 0))
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = b.Download(ctx, ResultKey("j1"))
	assert.ErrorIs(t, err, ErrNotFound)

	rc, err := b.Download(ctx, ChunkKey("j2", 0))
	require.NoError(t, err)
	_ = rc.Close()
}

func TestLocalBlobRejectsTraversal(t *testing.T) {
	ctx := context.Background()
	b, err := NewLocalBlob(t.TempDir())
	require.NoError(t, err)

	assert.Error(t, b.Upload(ctx, "../escape", strings.NewReader("x")))
	_, err = b.Download(ctx, "/etc/passwd")
	assert.Error(t, err)
}

func TestKeyLayout(t *testing.T) {
	assert.Equal(t, "jobs/j1/original/call.mp3", OriginalKey("j1", "call.mp3"))
	assert.Equal(t, "jobs/j1/chunks/chunk-0007.wav", ChunkKey("j1", 7))
	assert.Equal(t, "jobs/j1/result/transcript.json", ResultKey("j1"))
	assert.Equal(t, "jobs/j1/", JobPrefix("j1"))
}
