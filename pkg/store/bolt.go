package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/scribepipe/scribepipe/pkg/job"
)

const (
	bucketJobs   = "jobs"
	bucketChunks = "chunks"
)

// BoltStore implements Store on a single-file bbolt database. Jobs are
// keyed by ID; chunks by "{jobID}/{index:06d}" so a job's chunks form one
// contiguous, ordered key range.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (creating if needed) the database at dbPath.
func NewBoltStore(dbPath string) (*BoltStore, error) {
	db, err := bolt.Open(dbPath, 0o600, &bolt.Options{
		Timeout: 1 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open job database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(bucketJobs)); err != nil {
			return fmt.Errorf("failed to create jobs bucket: %w", err)
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(bucketChunks)); err != nil {
			return fmt.Errorf("failed to create chunks bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

func chunkKey(jobID string, index int) []byte {
	return []byte(fmt.Sprintf("%s/%06d", jobID, index))
}

func chunkPrefix(jobID string) []byte {
	return []byte(jobID + "/")
}

// CreateJob implements Store.
func (s *BoltStore) CreateJob(_ context.Context, j *job.Job) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketJobs))
		if bucket.Get([]byte(j.ID)) != nil {
			return fmt.Errorf("job %s already exists", j.ID)
		}
		return putJSON(bucket, []byte(j.ID), j)
	})
}

// GetJob implements Store.
func (s *BoltStore) GetJob(_ context.Context, id string) (*job.Job, error) {
	var j job.Job
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket([]byte(bucketJobs)).Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, &j)
	})
	if err != nil {
		return nil, err
	}
	return &j, nil
}

// UpdateJob implements Store.
func (s *BoltStore) UpdateJob(_ context.Context, id string, mutate func(*job.Job) error) (*job.Job, error) {
	var j job.Job
	err := s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketJobs))
		data := bucket.Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}
		if err := json.Unmarshal(data, &j); err != nil {
			return fmt.Errorf("failed to unmarshal job %s: %w", id, err)
		}
		if err := mutate(&j); err != nil {
			return err
		}
		j.UpdatedAt = time.Now().UTC()
		return putJSON(bucket, []byte(id), &j)
	})
	if err != nil {
		return nil, err
	}
	return &j, nil
}

// DeleteJob implements Store.
func (s *BoltStore) DeleteJob(_ context.Context, id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		jobs := tx.Bucket([]byte(bucketJobs))
		if jobs.Get([]byte(id)) == nil {
			return ErrNotFound
		}
		if err := jobs.Delete([]byte(id)); err != nil {
			return err
		}
		return deletePrefix(tx.Bucket([]byte(bucketChunks)), chunkPrefix(id))
	})
}

// ListJobsByStatus implements Store.
func (s *BoltStore) ListJobsByStatus(_ context.Context, statuses []job.Status, updatedBefore time.Time) ([]*job.Job, error) {
	want := make(map[job.Status]bool, len(statuses))
	for _, st := range statuses {
		want[st] = true
	}

	var out []*job.Job
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketJobs)).ForEach(func(_, data []byte) error {
			var j job.Job
			if err := json.Unmarshal(data, &j); err != nil {
				return err
			}
			if !want[j.Status] {
				return nil
			}
			if !updatedBefore.IsZero() && !j.UpdatedAt.Before(updatedBefore) {
				return nil
			}
			out = append(out, &j)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListExpiredJobs implements Store.
func (s *BoltStore) ListExpiredJobs(_ context.Context, cutoff time.Time) ([]*job.Job, error) {
	var out []*job.Job
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketJobs)).ForEach(func(_, data []byte) error {
			var j job.Job
			if err := json.Unmarshal(data, &j); err != nil {
				return err
			}
			if !j.Status.Terminal() || j.CompletedAt == nil {
				return nil
			}
			if j.CompletedAt.Before(cutoff) {
				out = append(out, &j)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CreateChunks implements Store.
func (s *BoltStore) CreateChunks(_ context.Context, jobID string, chunks []*job.Chunk) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketChunks))

		// A retried job re-chunks from scratch; stale rows must not
		// survive next to the new ones.
		if err := deletePrefix(bucket, chunkPrefix(jobID)); err != nil {
			return err
		}

		for _, c := range chunks {
			if err := putJSON(bucket, chunkKey(jobID, c.Index), c); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetChunk implements Store.
func (s *BoltStore) GetChunk(_ context.Context, jobID string, index int) (*job.Chunk, error) {
	var c job.Chunk
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket([]byte(bucketChunks)).Get(chunkKey(jobID, index))
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, &c)
	})
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// UpdateChunk implements Store.
func (s *BoltStore) UpdateChunk(_ context.Context, jobID string, index int, mutate func(*job.Chunk) error) (*job.Chunk, error) {
	var c job.Chunk
	err := s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketChunks))
		key := chunkKey(jobID, index)
		data := bucket.Get(key)
		if data == nil {
			return ErrNotFound
		}
		if err := json.Unmarshal(data, &c); err != nil {
			return fmt.Errorf("failed to unmarshal chunk %s/%d: %w", jobID, index, err)
		}
		if err := mutate(&c); err != nil {
			return err
		}
		return putJSON(bucket, key, &c)
	})
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ListChunks implements Store.
func (s *BoltStore) ListChunks(_ context.Context, jobID string) ([]*job.Chunk, error) {
	var out []*job.Chunk
	err := s.db.View(func(tx *bolt.Tx) error {
		cursor := tx.Bucket([]byte(bucketChunks)).Cursor()
		prefix := chunkPrefix(jobID)
		for k, v := cursor.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = cursor.Next() {
			var c job.Chunk
			if err := json.Unmarshal(v, &c); err != nil {
				return err
			}
			out = append(out, &c)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Close implements Store.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func putJSON(bucket *bolt.Bucket, key []byte, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}
	return bucket.Put(key, data)
}

func deletePrefix(bucket *bolt.Bucket, prefix []byte) error {
	cursor := bucket.Cursor()
	for k, _ := cursor.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = cursor.Next() {
		if err := cursor.Delete(); err != nil {
			return err
		}
	}
	return nil
}
