// Package stterr defines the typed error surface of the transcription
// pipeline: the closed set of error kinds a provider call can produce, and
// the classifier that maps arbitrary failures onto that set.
package stterr

import (
	"errors"
	"fmt"
	"time"
)

// Kind is the classified error code stored on a failed job.
type Kind string

const (
	KindRateLimited         Kind = "rate_limited"
	KindTimeout             Kind = "timeout"
	KindProviderUnavailable Kind = "provider_unavailable"
	KindAuthError           Kind = "auth_error"
	KindQuotaExceeded       Kind = "quota_exceeded"
	KindInvalidAudio        Kind = "invalid_audio"
	KindUnknown             Kind = "unknown"
)

// Retryable reports whether the kind represents a transient fault that the
// chunk driver may retry with backoff.
func (k Kind) Retryable() bool {
	switch k {
	case KindRateLimited, KindTimeout, KindProviderUnavailable:
		return true
	}
	return false
}

// ProviderError is an error raised by a provider adapter, already tagged
// with a kind.
type ProviderError struct {
	Kind       Kind
	Provider   string
	Message    string
	HTTPStatus int
	RetryAfter time.Duration
	Err        error
}

func (e *ProviderError) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("%s: %s: %s", e.Provider, e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// New creates a ProviderError with the given kind.
func New(kind Kind, provider, message string) *ProviderError {
	return &ProviderError{Kind: kind, Provider: provider, Message: message}
}

// Wrap creates a ProviderError with the given kind and message, wrapping
// an underlying error.
func Wrap(kind Kind, provider, message string, err error) *ProviderError {
	if err == nil {
		return nil
	}
	return &ProviderError{Kind: kind, Provider: provider, Message: message, Err: err}
}

// FromHTTPStatus maps an HTTP response status to a ProviderError.
func FromHTTPStatus(status int, provider, message string) *ProviderError {
	e := &ProviderError{Provider: provider, Message: message, HTTPStatus: status}
	switch {
	case status == 429:
		e.Kind = KindRateLimited
	case status == 401 || status == 403:
		e.Kind = KindAuthError
	case status == 402:
		e.Kind = KindQuotaExceeded
	case status == 400 || status == 415 || status == 422:
		e.Kind = KindInvalidAudio
	case status == 408 || status == 504:
		e.Kind = KindTimeout
	case status >= 500:
		e.Kind = KindProviderUnavailable
	default:
		e.Kind = KindUnknown
	}
	return e
}

// KindOf returns the kind of err, or KindUnknown when err carries no
// ProviderError in its chain.
func KindOf(err error) Kind {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindUnknown
}
