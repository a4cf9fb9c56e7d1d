package embed

import (
	"context"
	"sync"
	"time"
)

// RateLimiter is a token bucket sized as requests per window with
// continuous refill. One limiter is shared by every embedding caller in
// the process so document processing and search queries draw from the
// same quota.
type RateLimiter struct {
	mu     sync.Mutex
	rate   float64 // tokens per second
	burst  float64
	tokens float64
	last   time.Time

	now func() time.Time
}

// NewRateLimiter allows requests calls per window. A requests or window
// of zero or less disables limiting entirely (Wait returns immediately).
func NewRateLimiter(requests int, window time.Duration) *RateLimiter {
	l := &RateLimiter{now: time.Now}
	if requests > 0 && window > 0 {
		l.rate = float64(requests) / window.Seconds()
		l.burst = float64(requests)
		l.tokens = float64(requests)
		l.last = l.now()
	}
	return l
}

// Allow reports whether a request may proceed right now, consuming a
// token if so.
func (l *RateLimiter) Allow() bool {
	if l.rate == 0 {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refill(l.now())
	if l.tokens >= 1 {
		l.tokens--
		return true
	}
	return false
}

// Wait blocks until a token is available or the context ends. Tokens are
// reserved in call order, so waiters drain in FIFO-ish fashion rather
// than stampeding on each refill.
func (l *RateLimiter) Wait(ctx context.Context) error {
	if l.rate == 0 {
		return ctx.Err()
	}
	delay := l.reserve()
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// reserve commits one token, going negative if none are available, and
// returns how long the caller must wait for its reservation to mature.
func (l *RateLimiter) reserve() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refill(l.now())
	l.tokens--
	if l.tokens >= 0 {
		return 0
	}
	return time.Duration(-l.tokens / l.rate * float64(time.Second))
}

func (l *RateLimiter) refill(now time.Time) {
	elapsed := now.Sub(l.last).Seconds()
	if elapsed <= 0 {
		return
	}
	l.last = now
	l.tokens += elapsed * l.rate
	if l.tokens > l.burst {
		l.tokens = l.burst
	}
}
