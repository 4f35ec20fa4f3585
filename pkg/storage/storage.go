// Package storage abstracts blob storage for uploads, chunk WAVs and
// result transcripts, with local-disk and S3 backends.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// ErrNotFound is returned when a blob key does not exist.
var ErrNotFound = errors.New("storage: blob not found")

// Blob is the blob storage contract.
type Blob interface {
	// Upload stores the contents of r under key, replacing any existing
	// blob.
	Upload(ctx context.Context, key string, r io.Reader) error

	// Download returns a reader for the blob at key, or ErrNotFound.
	// The caller must close it.
	Download(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes the blob at key. Deleting a missing key is not an
	// error.
	Delete(ctx context.Context, key string) error

	// DeletePrefix removes every blob whose key starts with prefix.
	DeletePrefix(ctx context.Context, prefix string) error
}

// Key layout under which all job artifacts live. Deleting jobs/{id}/
// removes everything the job ever stored.

// OriginalKey is where a job's uploaded source file is kept.
func OriginalKey(jobID, filename string) string {
	return fmt.Sprintf("jobs/%s/original/%s", jobID, filename)
}

// ChunkKey is where one extracted chunk WAV is kept.
func ChunkKey(jobID string, index int) string {
	return fmt.Sprintf("jobs/%s/chunks/chunk-%04d.wav", jobID, index)
}

// ResultKey is where the final transcript document is kept.
func ResultKey(jobID string) string {
	return fmt.Sprintf("jobs/%s/result/transcript.json", jobID)
}

// JobPrefix covers every blob belonging to a job.
func JobPrefix(jobID string) string {
	return fmt.Sprintf("jobs/%s/", jobID)
}
