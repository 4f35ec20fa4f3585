package worker

import (
	"math/rand"
	"time"

	"github.com/scribepipe/scribepipe/pkg/config"
)

// Backoff computes exponential retry delays with jitter.
type Backoff struct {
	Base      time.Duration
	Max       time.Duration
	JitterMax time.Duration
}

// NewBackoff creates a Backoff from retry configuration.
func NewBackoff(cfg config.RetryConfig) *Backoff {
	return &Backoff{
		Base:      cfg.BaseDelay,
		Max:       cfg.MaxDelay,
		JitterMax: cfg.JitterMax,
	}
}

// Delay returns the pause before retry number attempt (zero-based): the
// base delay doubled per attempt, capped, plus random jitter so workers
// retrying the same outage don't stampede.
func (b *Backoff) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 30 {
		attempt = 30
	}

	d := b.Base << uint(attempt)
	if d > b.Max || d <= 0 {
		d = b.Max
	}
	if b.JitterMax > 0 {
		d += time.Duration(rand.Int63n(int64(b.JitterMax)))
	}
	return d
}
