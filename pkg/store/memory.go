package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/scribepipe/scribepipe/pkg/job"
)

// MemoryStore is an in-memory Store used by tests and the one-shot CLI
// path. All returned values are deep copies.
type MemoryStore struct {
	mu     sync.RWMutex
	jobs   map[string]*job.Job
	chunks map[string][]*job.Chunk // jobID -> chunks ordered by index
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:   make(map[string]*job.Job),
		chunks: make(map[string][]*job.Chunk),
	}
}

// CreateJob implements Store.
func (s *MemoryStore) CreateJob(_ context.Context, j *job.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[j.ID]; exists {
		return fmt.Errorf("job %s already exists", j.ID)
	}
	s.jobs[j.ID] = j.Clone()
	return nil
}

// GetJob implements Store.
func (s *MemoryStore) GetJob(_ context.Context, id string) (*job.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	j, ok := s.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return j.Clone(), nil
}

// UpdateJob implements Store.
func (s *MemoryStore) UpdateJob(_ context.Context, id string, mutate func(*job.Job) error) (*job.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}

	j := stored.Clone()
	if err := mutate(j); err != nil {
		return nil, err
	}
	j.UpdatedAt = time.Now().UTC()
	s.jobs[id] = j
	return j.Clone(), nil
}

// DeleteJob implements Store.
func (s *MemoryStore) DeleteJob(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[id]; !ok {
		return ErrNotFound
	}
	delete(s.jobs, id)
	delete(s.chunks, id)
	return nil
}

// ListJobsByStatus implements Store.
func (s *MemoryStore) ListJobsByStatus(_ context.Context, statuses []job.Status, updatedBefore time.Time) ([]*job.Job, error) {
	want := make(map[job.Status]bool, len(statuses))
	for _, st := range statuses {
		want[st] = true
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*job.Job
	for _, j := range s.jobs {
		if !want[j.Status] {
			continue
		}
		if !updatedBefore.IsZero() && !j.UpdatedAt.Before(updatedBefore) {
			continue
		}
		out = append(out, j.Clone())
	}
	sortJobs(out)
	return out, nil
}

// ListExpiredJobs implements Store.
func (s *MemoryStore) ListExpiredJobs(_ context.Context, cutoff time.Time) ([]*job.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*job.Job
	for _, j := range s.jobs {
		if !j.Status.Terminal() || j.CompletedAt == nil {
			continue
		}
		if j.CompletedAt.Before(cutoff) {
			out = append(out, j.Clone())
		}
	}
	sortJobs(out)
	return out, nil
}

// CreateChunks implements Store.
func (s *MemoryStore) CreateChunks(_ context.Context, jobID string, chunks []*job.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copies := make([]*job.Chunk, len(chunks))
	for i, c := range chunks {
		copies[i] = c.Clone()
	}
	sort.Slice(copies, func(i, j int) bool { return copies[i].Index < copies[j].Index })
	s.chunks[jobID] = copies
	return nil
}

// GetChunk implements Store.
func (s *MemoryStore) GetChunk(_ context.Context, jobID string, index int) (*job.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, c := range s.chunks[jobID] {
		if c.Index == index {
			return c.Clone(), nil
		}
	}
	return nil, ErrNotFound
}

// UpdateChunk implements Store.
func (s *MemoryStore) UpdateChunk(_ context.Context, jobID string, index int, mutate func(*job.Chunk) error) (*job.Chunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, stored := range s.chunks[jobID] {
		if stored.Index != index {
			continue
		}
		c := stored.Clone()
		if err := mutate(c); err != nil {
			return nil, err
		}
		s.chunks[jobID][i] = c
		return c.Clone(), nil
	}
	return nil, ErrNotFound
}

// ListChunks implements Store.
func (s *MemoryStore) ListChunks(_ context.Context, jobID string) ([]*job.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	chunks := s.chunks[jobID]
	out := make([]*job.Chunk, len(chunks))
	for i, c := range chunks {
		out[i] = c.Clone()
	}
	return out, nil
}

// Close implements Store.
func (s *MemoryStore) Close() error { return nil }

func sortJobs(jobs []*job.Job) {
	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].ID < jobs[j].ID
		}
		return jobs[i].CreatedAt.Before(jobs[j].CreatedAt)
	})
}
