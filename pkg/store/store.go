// Package store persists jobs and chunks. Mutations go through read-modify-
// write closures so status transitions are checked against current state,
// never against what a caller read earlier.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/scribepipe/scribepipe/pkg/job"
)

// ErrNotFound is returned when a job or chunk does not exist.
var ErrNotFound = errors.New("store: not found")

// Store is the persistence contract of the pipeline.
type Store interface {
	// CreateJob inserts a new job. The job ID must be unused.
	CreateJob(ctx context.Context, j *job.Job) error

	// GetJob returns a copy of the job, or ErrNotFound.
	GetJob(ctx context.Context, id string) (*job.Job, error)

	// UpdateJob applies mutate to the current stored job atomically and
	// persists the result. If mutate returns an error nothing is written.
	UpdateJob(ctx context.Context, id string, mutate func(*job.Job) error) (*job.Job, error)

	// DeleteJob removes the job and all its chunks.
	DeleteJob(ctx context.Context, id string) error

	// ListJobsByStatus returns jobs in any of the given statuses whose
	// UpdatedAt is before updatedBefore. A zero updatedBefore matches all.
	ListJobsByStatus(ctx context.Context, statuses []job.Status, updatedBefore time.Time) ([]*job.Job, error)

	// ListExpiredJobs returns terminal jobs completed before cutoff.
	ListExpiredJobs(ctx context.Context, cutoff time.Time) ([]*job.Job, error)

	// CreateChunks inserts the chunk rows for a job, replacing any rows
	// from a previous processing attempt.
	CreateChunks(ctx context.Context, jobID string, chunks []*job.Chunk) error

	// GetChunk returns a copy of one chunk, or ErrNotFound.
	GetChunk(ctx context.Context, jobID string, index int) (*job.Chunk, error)

	// UpdateChunk applies mutate to the current stored chunk atomically.
	UpdateChunk(ctx context.Context, jobID string, index int, mutate func(*job.Chunk) error) (*job.Chunk, error)

	// ListChunks returns all chunks of a job ordered by index.
	ListChunks(ctx context.Context, jobID string) ([]*job.Chunk, error)

	// Close releases the underlying resources.
	Close() error
}
