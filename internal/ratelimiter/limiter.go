package ratelimiter

import "golang.org/x/time/rate"

// DispatchLimiter is a token bucket guarding the enqueue endpoint. Dispatches
// fan out to entire roles, so a runaway or misbehaving admin client can flood
// every employee; the limiter caps the accepted dispatch rate.
// Burst is set equal to the rate so no extra burst capacity accumulates
// beyond the configured per-second maximum.
type DispatchLimiter struct {
	limiter *rate.Limiter
}

// New creates a DispatchLimiter allowing ratePerSec dispatches per second.
func New(ratePerSec int) *DispatchLimiter {
	return &DispatchLimiter{limiter: rate.NewLimiter(rate.Limit(ratePerSec), ratePerSec)}
}

// Allow reports whether a dispatch may proceed now. Non-blocking: the HTTP
// handler rejects with 429 instead of queueing the caller.
func (l *DispatchLimiter) Allow() bool {
	return l.limiter.Allow()
}
