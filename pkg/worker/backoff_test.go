package worker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/scribepipe/scribepipe/pkg/config"
)

func TestBackoffGrowsAndCaps(t *testing.T) {
	b := NewBackoff(config.RetryConfig{
		BaseDelay: 2 * time.Second,
		MaxDelay:  60 * time.Second,
		JitterMax: time.Second,
	})

	for attempt, want := range []time.Duration{
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		32 * time.Second,
		60 * time.Second, // capped
		60 * time.Second,
	} {
		d := b.Delay(attempt)
		assert.GreaterOrEqual(t, d, want, "attempt %d", attempt)
		assert.Less(t, d, want+time.Second, "attempt %d jitter bound", attempt)
	}
}

func TestBackoffHandlesExtremeAttempts(t *testing.T) {
	b := NewBackoff(config.RetryConfig{
		BaseDelay: 2 * time.Second,
		MaxDelay:  60 * time.Second,
	})

	assert.Equal(t, 2*time.Second, b.Delay(-3))
	// A huge attempt count must not overflow into a negative delay.
	assert.Equal(t, 60*time.Second, b.Delay(1000))
}
