package embed

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiter_AllowBurstThenDeny(t *testing.T) {
	l := NewRateLimiter(2, time.Minute)
	assert.True(t, l.Allow())
	assert.True(t, l.Allow())
	assert.False(t, l.Allow(), "burst exhausted, window far from refilling")
}

func TestRateLimiter_WaitThrottles(t *testing.T) {
	// 2 requests per 100ms: the 3rd and 4th calls must wait for refill
	l := NewRateLimiter(2, 100*time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 4; i++ {
		require.NoError(t, l.Wait(ctx))
	}
	elapsed := time.Since(start)
	assert.GreaterOrEqual(t, elapsed, 80*time.Millisecond,
		"two refill intervals of 50ms each")
	assert.Less(t, elapsed, time.Second)
}

func TestRateLimiter_WaitHonorsContext(t *testing.T) {
	l := NewRateLimiter(1, time.Minute)
	require.NoError(t, l.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := l.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRateLimiter_Unlimited(t *testing.T) {
	l := NewRateLimiter(0, 0)
	start := time.Now()
	for i := 0; i < 1000; i++ {
		require.NoError(t, l.Wait(context.Background()))
	}
	assert.Less(t, time.Since(start), time.Second)
	assert.True(t, l.Allow())
}
