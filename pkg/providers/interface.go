// Package providers defines the speech-to-text provider contract and the
// registry through which adapters are selected by name.
package providers

import (
	"context"
	"time"

	"github.com/scribepipe/scribepipe/pkg/job"
)

// ChunkConfig carries per-chunk transcription parameters.
type ChunkConfig struct {
	// Language is a BCP-47 tag, or empty for auto-detection.
	Language string

	// Prompt is an optional user-supplied instruction forwarded to the
	// provider (vocabulary hints, domain context).
	Prompt string

	// ContextText is the tail of the previous chunk's transcript, given
	// to the model for continuity. Empty for the first chunk.
	ContextText string

	// ChunkIndex is the zero-based position of this chunk in the job.
	ChunkIndex int

	// ChunkDuration is the chunk length in seconds. Segment timestamps
	// returned by providers are validated against it.
	ChunkDuration float64
}

// Result is a provider's transcription of one chunk. Segment timestamps
// are relative to the chunk start.
type Result struct {
	Segments []job.Segment
	Metadata job.ProviderMetadata
}

// Provider transcribes a single chunk of mono 16-kHz WAV audio.
type Provider interface {
	// Name returns the registry name of this provider.
	Name() string

	// Transcribe sends audio to the provider and returns ordered segments.
	// Failures are returned as *stterr.ProviderError where the fault can
	// be classified.
	Transcribe(ctx context.Context, audio []byte, cfg ChunkConfig) (*Result, error)
}

// FactoryConfig holds the settings a provider constructor may need.
type FactoryConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}
