// Package queue delivers job IDs to the worker pool. Acknowledgement is
// explicit: a job is only removed once its processing reached a terminal
// status, so a crashed worker's job is redelivered.
package queue

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned when operating on a closed queue.
var ErrClosed = errors.New("queue: closed")

// Delivery is one dequeued job ID awaiting acknowledgement.
type Delivery struct {
	JobID string

	ack  func()
	nack func()
}

// Ack marks the delivery done; the job will not be redelivered.
func (d *Delivery) Ack() { d.ack() }

// Nack returns the job to the queue for redelivery.
func (d *Delivery) Nack() { d.nack() }

// Queue is the job delivery contract.
type Queue interface {
	// Enqueue makes jobID available for delivery.
	Enqueue(ctx context.Context, jobID string) error

	// Dequeue blocks until a job is available or ctx is done.
	Dequeue(ctx context.Context) (*Delivery, error)

	// Close stops delivery. Blocked Dequeue calls return ErrClosed.
	Close() error
}

// MemoryQueue is a channel-backed Queue for single-process deployments.
type MemoryQueue struct {
	ch   chan string
	done chan struct{}

	mu     sync.Mutex
	closed bool
}

// NewMemoryQueue creates a queue buffering up to size pending jobs.
func NewMemoryQueue(size int) *MemoryQueue {
	if size <= 0 {
		size = 256
	}
	return &MemoryQueue{
		ch:   make(chan string, size),
		done: make(chan struct{}),
	}
}

// Enqueue implements Queue. Closing is signalled through the done channel
// rather than by closing ch, so a concurrent Close can never turn a
// blocked Enqueue into a send on a closed channel.
func (q *MemoryQueue) Enqueue(ctx context.Context, jobID string) error {
	select {
	case <-q.done:
		return ErrClosed
	default:
	}

	select {
	case q.ch <- jobID:
		return nil
	case <-q.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dequeue implements Queue.
func (q *MemoryQueue) Dequeue(ctx context.Context) (*Delivery, error) {
	select {
	case jobID := <-q.ch:
		return &Delivery{
			JobID: jobID,
			ack:   func() {},
			nack: func() {
				// Best effort: the buffer was sized for the backlog, and
				// a dropped redelivery is recovered by the stale sweep.
				select {
				case q.ch <- jobID:
				default:
				}
			},
		}, nil
	case <-q.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close implements Queue.
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true
	close(q.done)
	return nil
}
