package stterr

import (
	"context"
	"errors"
	"strings"
)

// Patterns matched against the lowercased error text when no typed
// ProviderError is available.
var (
	timeoutPatterns     = []string{"timeout", "timed out", "deadline exceeded", "read timed out"}
	authPatterns        = []string{"401", "403", "unauthorized", "forbidden", "invalid api key", "permission denied"}
	audioPatterns       = []string{"invalid audio", "unsupported format", "corrupt", "could not decode", "bad request"}
	unavailablePatterns = []string{"503", "502", "service unavailable", "bad gateway", "connection refused", "connection reset"}
	quotaPatterns       = []string{"quota", "billing", "payment required", "402"}
)

// User-facing messages per kind.
var userMessages = map[Kind]string{
	KindRateLimited:         "The transcription provider is temporarily rate-limiting requests. Please try again in a few minutes.",
	KindTimeout:             "The transcription request timed out. This can happen with very long audio files. Please try again.",
	KindProviderUnavailable: "The transcription provider is currently unavailable. Please try again later.",
	KindAuthError:           "Authentication with the transcription provider failed. Please check provider API key configuration.",
	KindQuotaExceeded:       "The provider API quota has been exceeded. Please contact the administrator.",
	KindInvalidAudio:        "The audio file could not be processed. It may be corrupted or in an unsupported format.",
}

// Classify maps an error to an error code and a user-friendly message. It
// runs once at job-failure time; the code is persisted alongside the raw
// error text.
func Classify(err error) (Kind, string) {
	if err == nil {
		return KindUnknown, ""
	}

	// Typed errors from our own adapters win over string matching.
	var pe *ProviderError
	if errors.As(err, &pe) && pe.Kind != KindUnknown {
		return pe.Kind, userMessages[pe.Kind]
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout, userMessages[KindTimeout]
	}

	msg := strings.ToLower(err.Error())

	if matchAny(msg, timeoutPatterns) {
		return KindTimeout, userMessages[KindTimeout]
	}
	if strings.Contains(msg, "429") || strings.Contains(msg, "resource exhausted") || strings.Contains(msg, "resourceexhausted") {
		return KindRateLimited, userMessages[KindRateLimited]
	}
	if matchAny(msg, quotaPatterns) {
		return KindQuotaExceeded, userMessages[KindQuotaExceeded]
	}
	if matchAny(msg, authPatterns) {
		return KindAuthError, userMessages[KindAuthError]
	}
	if matchAny(msg, audioPatterns) {
		return KindInvalidAudio, userMessages[KindInvalidAudio]
	}
	if matchAny(msg, unavailablePatterns) {
		return KindProviderUnavailable, userMessages[KindProviderUnavailable]
	}

	return KindUnknown, "Transcription failed: " + err.Error()
}

func matchAny(msg string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
