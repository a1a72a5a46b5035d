package retry

import "time"

// DefaultInterval is the default fixed pause between attempts.
const DefaultInterval = time.Second

// Backoff defines the interface for backoff strategies.
type Backoff interface {
	// Next returns the duration to wait before the given attempt.
	Next(attempt int) time.Duration
}

// ConstantBackoff waits the same interval before every retry.
type ConstantBackoff struct {
	interval time.Duration
}

// NewConstantBackoff creates a new constant backoff. A non-positive interval
// means no wait at all.
func NewConstantBackoff(interval time.Duration) *ConstantBackoff {
	if interval < 0 {
		interval = 0
	}
	return &ConstantBackoff{
		interval: interval,
	}
}

// Next implements Backoff.
func (b *ConstantBackoff) Next(_ int) time.Duration {
	return b.interval
}

// BackoffFunc adapts an ordinary function to the Backoff interface.
type BackoffFunc func(attempt int) time.Duration

// Next implements Backoff.
func (f BackoffFunc) Next(attempt int) time.Duration {
	return f(attempt)
}
