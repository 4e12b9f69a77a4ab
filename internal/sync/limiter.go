package sync

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimiter paces outbound remote calls to a fixed request rate. One
// instance is shared per remote host; every fetch and replay call acquires it
// first, so high sync concurrency degrades to the global rate ceiling.
//
// Burst is fixed at 1: a caller is suspended until a full 1/rate interval has
// elapsed since the previous admitted call. Waiters wake in FIFO order.
type RateLimiter struct {
	lim *rate.Limiter
}

// NewRateLimiter builds a limiter admitting requestsPerSecond calls.
func NewRateLimiter(requestsPerSecond float64) *RateLimiter {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 1
	}
	return &RateLimiter{
		lim: rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
	}
}

// Acquire suspends the caller until issuing another call would not exceed the
// configured rate, or until ctx is done.
func (l *RateLimiter) Acquire(ctx context.Context) error {
	return l.lim.Wait(ctx)
}

// Rate returns the configured requests per second.
func (l *RateLimiter) Rate() float64 {
	return float64(l.lim.Limit())
}
