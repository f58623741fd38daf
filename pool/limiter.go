package pool

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter combines the semaphore (global in-flight cap) and token bucket
// (rate limit) spec §4.6 describes as one middleware. Acquisition blocks
// until both a token and a permit are available; release happens
// unconditionally once the caller is done, regardless of outcome.
type Limiter struct {
	max     int
	sem     chan struct{}
	limiter *rate.Limiter
}

// NewLimiter builds a Limiter. max <= 0 disables the semaphore.
// requestsPerInterval <= 0 disables the token bucket.
func NewLimiter(max int, requestsPerInterval int, interval time.Duration) *Limiter {
	l := &Limiter{max: max}
	if max > 0 {
		l.sem = make(chan struct{}, max)
	}
	if requestsPerInterval > 0 && interval > 0 {
		perToken := interval / time.Duration(requestsPerInterval)
		l.limiter = rate.NewLimiter(rate.Every(perToken), requestsPerInterval)
	}
	return l
}

// Release, returned by Acquire, releases any held token/permit exactly
// once. Calling it more than once is a no-op.
type Release func()

// Acquire blocks (FIFO among waiters, per spec §5) until a rate-bucket
// token (if configured) and a semaphore permit (if configured) are both
// available, or ctx is cancelled first — in which case the waiter is
// removed from the queue and no semaphore permit is held. A rate-bucket
// token already taken before the cancellation is not returned.
func (l *Limiter) Acquire(ctx context.Context) (Release, error) {
	if l.limiter != nil {
		if err := l.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	if l.sem == nil {
		return func() {}, nil
	}
	select {
	case l.sem <- struct{}{}:
		var once sync.Once
		return func() { once.Do(func() { <-l.sem }) }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// InFlight reports the current number of held permits, for tests that
// assert the global cap invariant (spec Property 5).
func (l *Limiter) InFlight() int {
	if l.sem == nil {
		return 0
	}
	return len(l.sem)
}
