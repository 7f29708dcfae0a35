package calendar

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/guilherme-santos/calsync/internal"
)

// DefaultBackoff is used when a throttled response carries no Retry-After.
const DefaultBackoff = 5 * time.Second

// MaxAttempts bounds how many times a throttled call is retried.
const MaxAttempts = 5

// RateLimiter is a token bucket that also honours the Retry-After of
// throttled responses. It is safe for concurrent use.
type RateLimiter struct {
	mu      sync.Mutex
	limiter *rate.Limiter
	retryAt time.Time
}

func NewRateLimiter(perSecond float64, burst int) *RateLimiter {
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

// Wait blocks until a request can be made.
func (r *RateLimiter) Wait(ctx context.Context) error {
	r.mu.Lock()
	retryAt := r.retryAt
	r.mu.Unlock()

	if d := time.Until(retryAt); d > 0 {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	return r.limiter.Wait(ctx)
}

// Backoff holds every request back for d, DefaultBackoff when d <= 0.
func (r *RateLimiter) Backoff(d time.Duration) {
	if d <= 0 {
		d = DefaultBackoff
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if at := time.Now().Add(d); at.After(r.retryAt) {
		r.retryAt = at
	}
}

// ThrottledError is returned by backend calls the server rejected because
// of throttling.
type ThrottledError struct {
	RetryAfter time.Duration
	Err        error
}

func (e *ThrottledError) Error() string {
	return fmt.Sprintf("throttled, retry after %s: %v", e.RetryAfter, e.Err)
}

func (e *ThrottledError) Unwrap() error { return e.Err }

func (e *ThrottledError) Is(target error) bool { return target == internal.ErrThrottled }

// Do calls fn once the limiter allows it and retries while fn reports a
// *ThrottledError, at most MaxAttempts times.
func (r *RateLimiter) Do(ctx context.Context, fn func() error) error {
	var err error
	for range MaxAttempts {
		if err = r.Wait(ctx); err != nil {
			return err
		}
		err = fn()

		var te *ThrottledError
		if !errors.As(err, &te) {
			return err
		}
		r.Backoff(te.RetryAfter)
	}
	return err
}

// ParseRetryAfter parses the seconds form of a Retry-After header.
func ParseRetryAfter(v string) time.Duration {
	var secs int
	if _, err := fmt.Sscanf(v, "%d", &secs); err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
