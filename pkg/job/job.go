// Package job holds the persistent data model of the pipeline: jobs, their
// chunks, and transcribed segments, together with the status state machines.
package job

import (
	"time"

	"github.com/google/uuid"
)

// Job is a single transcription request from intake to terminal status.
type Job struct {
	ID string `json:"id"`

	// File info
	OriginalFilename string  `json:"original_filename,omitempty"`
	FileSizeBytes    int64   `json:"file_size_bytes,omitempty"`
	Extension        string  `json:"extension,omitempty"`
	DurationSeconds  float64 `json:"duration_seconds,omitempty"`

	// Transcription settings
	Provider string `json:"provider"`
	Language string `json:"language,omitempty"`
	Prompt   string `json:"prompt,omitempty"`

	// Storage references
	OriginalKey string `json:"original_key,omitempty"`
	ResultKey   string `json:"result_key,omitempty"`

	// Progress
	Status          Status `json:"status"`
	TotalChunks     int    `json:"total_chunks"`
	CompletedChunks int    `json:"completed_chunks"`

	// Failure info; ErrorCode is set iff Status is FAILED.
	ErrorMessage string `json:"error_message,omitempty"`
	ErrorCode    string `json:"error_code,omitempty"`

	// Webhook
	WebhookURL  string `json:"webhook_url,omitempty"`
	WebhookSent bool   `json:"webhook_sent,omitempty"`

	// Timestamps
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// New creates a pending job with a fresh UUID.
func New(provider, language, filename string) *Job {
	now := time.Now().UTC()
	return &Job{
		ID:               uuid.NewString(),
		Provider:         provider,
		Language:         language,
		OriginalFilename: filename,
		Status:           StatusPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// SetStatus applies a status transition, enforcing the state machine.
// Terminal statuses are sticky.
func (j *Job) SetStatus(to Status) error {
	if err := j.Status.CheckTransition(to); err != nil {
		return err
	}
	j.Status = to
	j.UpdatedAt = time.Now().UTC()
	if to.Terminal() && j.CompletedAt == nil {
		now := time.Now().UTC()
		j.CompletedAt = &now
	}
	return nil
}

// Fail marks the job failed with a classified code and the raw message.
func (j *Job) Fail(code, message string) error {
	if err := j.SetStatus(StatusFailed); err != nil {
		return err
	}
	j.ErrorCode = code
	j.ErrorMessage = message
	return nil
}

// ResetForRetry returns a FAILED job to PENDING for reprocessing from
// chunk 0. Completed chunks are not reused.
func (j *Job) ResetForRetry() error {
	if j.Status != StatusFailed {
		return &TransitionError{From: j.Status, To: StatusPending}
	}
	j.Status = StatusPending
	j.ErrorCode = ""
	j.ErrorMessage = ""
	j.TotalChunks = 0
	j.CompletedChunks = 0
	j.ResultKey = ""
	j.CompletedAt = nil
	j.UpdatedAt = time.Now().UTC()
	return nil
}

// Clone returns a deep copy of the job.
func (j *Job) Clone() *Job {
	c := *j
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

// Chunk is one contiguous slice of the source audio, processed as an atomic
// provider call. Identity is (JobID, Index).
type Chunk struct {
	JobID string `json:"job_id"`
	Index int    `json:"index"`

	// Absolute position within the source audio, in seconds.
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`

	StorageKey string `json:"storage_key,omitempty"`

	Status       ChunkStatus `json:"status"`
	AttemptCount int         `json:"attempt_count"`
	LastError    string      `json:"last_error,omitempty"`

	Segments []Segment        `json:"segments,omitempty"`
	Metadata ProviderMetadata `json:"metadata,omitempty"`

	ProcessedAt *time.Time `json:"processed_at,omitempty"`
}

// Duration returns the chunk length in seconds.
func (c *Chunk) Duration() float64 { return c.EndTime - c.StartTime }

// SetStatus applies a chunk status transition, enforcing the state machine.
func (c *Chunk) SetStatus(to ChunkStatus) error {
	if err := c.Status.CheckTransition(to); err != nil {
		return err
	}
	c.Status = to
	if to == ChunkCompleted || to == ChunkFailed {
		now := time.Now().UTC()
		c.ProcessedAt = &now
	}
	return nil
}

// Clone returns a deep copy of the chunk.
func (c *Chunk) Clone() *Chunk {
	d := *c
	if c.Segments != nil {
		d.Segments = append([]Segment(nil), c.Segments...)
	}
	if c.ProcessedAt != nil {
		t := *c.ProcessedAt
		d.ProcessedAt = &t
	}
	return &d
}

// Segment is a transcribed span with chunk-local timestamps in seconds.
type Segment struct {
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Text    string  `json:"text"`
	Speaker string  `json:"speaker,omitempty"`
}

// ProviderMetadata captures what the provider reported about one
// transcription call, kept for operator debugging.
type ProviderMetadata struct {
	InputTokens  int    `json:"input_tokens,omitempty"`
	OutputTokens int    `json:"output_tokens,omitempty"`
	LatencyMS    int64  `json:"latency_ms,omitempty"`
	FinishReason string `json:"finish_reason,omitempty"`
	Model        string `json:"model,omitempty"`
	RawResponse  string `json:"raw_response,omitempty"`
}
