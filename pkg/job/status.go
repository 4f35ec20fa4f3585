package job

import "fmt"

// Status is the lifecycle state of a job.
type Status string

const (
	StatusPending    Status = "pending"
	StatusUploaded   Status = "uploaded"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// Terminal reports whether the status is sticky: no transitions out.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// jobTransitions lists the allowed forward edges of the job state machine.
// CANCELLED is reachable from any non-terminal state.
var jobTransitions = map[Status][]Status{
	StatusPending:    {StatusUploaded, StatusProcessing, StatusFailed, StatusCancelled},
	StatusUploaded:   {StatusProcessing, StatusFailed, StatusCancelled},
	StatusProcessing: {StatusCompleted, StatusFailed, StatusCancelled},
}

// CheckTransition returns an error when moving from s to next would violate
// the state machine.
func (s Status) CheckTransition(next Status) error {
	for _, allowed := range jobTransitions[s] {
		if next == allowed {
			return nil
		}
	}
	return &TransitionError{From: s, To: next}
}

// ChunkStatus is the lifecycle state of a chunk.
type ChunkStatus string

const (
	ChunkPending    ChunkStatus = "pending"
	ChunkProcessing ChunkStatus = "processing"
	ChunkCompleted  ChunkStatus = "completed"
	ChunkFailed     ChunkStatus = "failed"
)

var chunkTransitions = map[ChunkStatus][]ChunkStatus{
	ChunkPending:    {ChunkProcessing},
	ChunkProcessing: {ChunkCompleted, ChunkFailed},
}

// CheckTransition returns an error when moving from s to next would violate
// the chunk state machine. COMPLETED and FAILED are sticky.
func (s ChunkStatus) CheckTransition(next ChunkStatus) error {
	for _, allowed := range chunkTransitions[s] {
		if next == allowed {
			return nil
		}
	}
	return &TransitionError{FromChunk: s, ToChunk: next, chunk: true}
}

// TransitionError reports an illegal state transition.
type TransitionError struct {
	From      Status
	To        Status
	FromChunk ChunkStatus
	ToChunk   ChunkStatus
	chunk     bool
}

func (e *TransitionError) Error() string {
	if e.chunk {
		return fmt.Sprintf("illegal chunk transition %s -> %s", e.FromChunk, e.ToChunk)
	}
	return fmt.Sprintf("illegal job transition %s -> %s", e.From, e.To)
}
