package util

import (
	"context"
	"sync"
	"time"
)

// RateLimiter is a token bucket holding up to burst tokens, refilled at a
// fixed rate. Waiters reserve a token up front and sleep until it matures,
// so concurrent callers are served in arrival order.
type RateLimiter struct {
	mu     sync.Mutex
	rate   float64 // tokens per second; <= 0 disables limiting
	burst  float64
	tokens float64 // negative while tokens are reserved ahead
	last   time.Time
	now    func() time.Time
}

// NewRateLimiter allows perMinute operations per minute with bursts of up to
// burst back-to-back operations. The bucket starts full.
func NewRateLimiter(perMinute, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		rate:   float64(perMinute) / 60,
		burst:  float64(burst),
		tokens: float64(burst),
		last:   time.Now(),
		now:    time.Now,
	}
}

func (rl *RateLimiter) refillLocked(now time.Time) {
	rl.tokens += now.Sub(rl.last).Seconds() * rl.rate
	if rl.tokens > rl.burst {
		rl.tokens = rl.burst
	}
	rl.last = now
}

// Allow takes a token if one is available now.
func (rl *RateLimiter) Allow() bool {
	if rl.rate <= 0 {
		return true
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.refillLocked(rl.now())
	if rl.tokens < 1 {
		return false
	}
	rl.tokens--
	return true
}

// Wait blocks until a token is available. It fails fast, without consuming
// a token, when ctx is done or its deadline falls before the token matures.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	if rl.rate <= 0 {
		return ctx.Err()
	}
	rl.mu.Lock()
	now := rl.now()
	rl.refillLocked(now)
	rl.tokens--
	var wait time.Duration
	if rl.tokens < 0 {
		wait = time.Duration(-rl.tokens / rl.rate * float64(time.Second))
	}
	if dl, ok := ctx.Deadline(); ok && dl.Before(now.Add(wait)) {
		rl.tokens++
		rl.mu.Unlock()
		return context.DeadlineExceeded
	}
	rl.mu.Unlock()

	if wait <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		rl.mu.Lock()
		rl.tokens++
		rl.mu.Unlock()
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
