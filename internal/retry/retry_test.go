package retry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConstantBackoff_Next(t *testing.T) {
	b := NewConstantBackoff(DefaultInterval)

	for attempt := 0; attempt < 5; attempt++ {
		assert.Equal(t, time.Second, b.Next(attempt))
	}
}

func TestConstantBackoff_NegativeInterval(t *testing.T) {
	b := NewConstantBackoff(-time.Second)
	assert.Equal(t, time.Duration(0), b.Next(1))
}

func TestBackoffFunc(t *testing.T) {
	var b Backoff = BackoffFunc(func(attempt int) time.Duration {
		return time.Duration(attempt) * time.Millisecond
	})
	assert.Equal(t, 3*time.Millisecond, b.Next(3))
}

func TestWait_Elapses(t *testing.T) {
	start := time.Now()
	err := Wait(context.Background(), 10*time.Millisecond)

	assert.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
}

func TestWait_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := Wait(ctx, time.Minute)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}

func TestWait_ZeroDuration(t *testing.T) {
	assert.NoError(t, Wait(context.Background(), 0))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Wait(ctx, 0), context.Canceled)
}
