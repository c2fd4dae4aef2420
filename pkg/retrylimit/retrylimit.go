// Package retrylimit paces outbound calls to a rate-limited API. The rate grows
// back slowly after successes, is cut on every rate-limit response, and a server
// provided retry-after pauses all callers until it has passed.
//
// Example usage:
//
//	lim := retrylimit.NewAdaptiveLimiter(5, 1, 20, 1, 0.5)
//	if err := lim.Wait(ctx); err != nil {
//	    return err
//	}
//	if err := send(); err != nil {
//	    lim.RateLimited(retryAfterFrom(err))
//	    return err
//	}
//	lim.Success()
package retrylimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// recoveryQuietPeriod is how long after a rate limit the limiter refuses to speed up.
const recoveryQuietPeriod = 10 * time.Second

// AdaptiveLimiter manages a rate limit that adjusts automatically based
// on the outcome of requests. Safe for concurrent use.
type AdaptiveLimiter struct {
	mu          sync.RWMutex
	limiter     *rate.Limiter
	minLimit    rate.Limit
	maxLimit    rate.Limit
	stepUp      rate.Limit
	stepDown    float64
	lastError   time.Time
	pausedUntil time.Time
	now         func() time.Time
}

// NewAdaptiveLimiter creates an AdaptiveLimiter with the given configuration.
//
// Parameters:
//   - initial: starting requests per second
//   - min: minimum allowed rate
//   - max: maximum allowed rate
//   - stepUp: increment on success
//   - stepDown: multiplier applied on failure (e.g., 0.5 to halve)
func NewAdaptiveLimiter(initial, min, max rate.Limit, stepUp rate.Limit, stepDown float64) *AdaptiveLimiter {
	if initial < 1 {
		initial = 1
	}
	if min < 1 {
		min = 1
	}
	if max < min {
		max = min
	}
	return &AdaptiveLimiter{
		limiter:  rate.NewLimiter(initial, burstFor(initial)),
		minLimit: min,
		maxLimit: max,
		stepUp:   stepUp,
		stepDown: stepDown,
		now:      time.Now,
	}
}

// Wait blocks until any pause has passed and a token is available, or ctx is done.
func (a *AdaptiveLimiter) Wait(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if d := a.PauseRemaining(); d > 0 {
		t := time.NewTimer(d)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
	return a.limiter.Wait(ctx)
}

// Success increases the rate after a successful request.
func (a *AdaptiveLimiter) Success() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.now().Sub(a.lastError) > recoveryQuietPeriod {
		a.adjustLimit(a.limiter.Limit() + a.stepUp)
	}
}

// RateLimited reduces the rate and pauses every caller for retryAfter.
func (a *AdaptiveLimiter) RateLimited(retryAfter time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	a.lastError = now
	if until := now.Add(retryAfter); until.After(a.pausedUntil) {
		a.pausedUntil = until
	}
	a.adjustLimit(rate.Limit(float64(a.limiter.Limit()) * a.stepDown))
}

// PauseRemaining returns how long callers are still held back by a retry-after.
func (a *AdaptiveLimiter) PauseRemaining() time.Duration {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if d := a.pausedUntil.Sub(a.now()); d > 0 {
		return d
	}
	return 0
}

// CurrentLimit returns the current requests per second.
func (a *AdaptiveLimiter) CurrentLimit() float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return float64(a.limiter.Limit())
}

// CurrentBurst returns the current burst size.
func (a *AdaptiveLimiter) CurrentBurst() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.limiter.Burst()
}

// adjustLimit sets the limiter to a new rate, respecting min/max boundaries.
func (a *AdaptiveLimiter) adjustLimit(newLimit rate.Limit) {
	if newLimit > a.maxLimit {
		newLimit = a.maxLimit
	} else if newLimit < a.minLimit {
		newLimit = a.minLimit
	}

	if newLimit != a.limiter.Limit() {
		a.limiter.SetLimit(newLimit)
		a.limiter.SetBurst(burstFor(newLimit))
	}
}

func burstFor(l rate.Limit) int {
	return max(1, int(l))
}
