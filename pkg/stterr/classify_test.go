package stterr

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindRetryable(t *testing.T) {
	retryable := []Kind{KindRateLimited, KindTimeout, KindProviderUnavailable}
	for _, k := range retryable {
		assert.True(t, k.Retryable(), "kind %s should be retryable", k)
	}

	terminal := []Kind{KindAuthError, KindQuotaExceeded, KindInvalidAudio, KindUnknown}
	for _, k := range terminal {
		assert.False(t, k.Retryable(), "kind %s should not be retryable", k)
	}
}

func TestFromHTTPStatus(t *testing.T) {
	tests := []struct {
		status int
		want   Kind
	}{
		{429, KindRateLimited},
		{401, KindAuthError},
		{403, KindAuthError},
		{402, KindQuotaExceeded},
		{400, KindInvalidAudio},
		{415, KindInvalidAudio},
		{408, KindTimeout},
		{504, KindTimeout},
		{500, KindProviderUnavailable},
		{503, KindProviderUnavailable},
		{418, KindUnknown},
	}

	for _, tt := range tests {
		e := FromHTTPStatus(tt.status, "test", "boom")
		assert.Equal(t, tt.want, e.Kind, "status %d", tt.status)
		assert.Equal(t, tt.status, e.HTTPStatus)
	}
}

func TestClassifyTypedError(t *testing.T) {
	err := fmt.Errorf("chunk 3 failed: %w", New(KindRateLimited, "gemini", "too many requests"))
	kind, msg := Classify(err)
	assert.Equal(t, KindRateLimited, kind)
	assert.Contains(t, msg, "rate-limiting")
}

func TestClassifyStringPatterns(t *testing.T) {
	tests := []struct {
		err  string
		want Kind
	}{
		{"request timed out after 120s", KindTimeout},
		{"deadline exceeded", KindTimeout},
		{"HTTP 429 resource exhausted", KindRateLimited},
		{"quota exceeded for project", KindQuotaExceeded},
		{"401 unauthorized", KindAuthError},
		{"could not decode stream", KindInvalidAudio},
		{"503 service unavailable", KindProviderUnavailable},
		{"connection refused", KindProviderUnavailable},
		{"something odd happened", KindUnknown},
	}

	for _, tt := range tests {
		kind, msg := Classify(errors.New(tt.err))
		assert.Equal(t, tt.want, kind, "error %q", tt.err)
		assert.NotEmpty(t, msg)
	}
}

func TestClassifyContextDeadline(t *testing.T) {
	kind, _ := Classify(fmt.Errorf("provider call: %w", context.DeadlineExceeded))
	assert.Equal(t, KindTimeout, kind)
}

func TestClassifyUnknownBubblesRawMessage(t *testing.T) {
	kind, msg := Classify(errors.New("solar flare"))
	assert.Equal(t, KindUnknown, kind)
	assert.Contains(t, msg, "solar flare")
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindAuthError, KindOf(New(KindAuthError, "whisper", "bad key")))
	assert.Equal(t, KindUnknown, KindOf(errors.New("plain")))
}
