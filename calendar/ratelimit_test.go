package calendar_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guilherme-santos/calsync/calendar"
	"github.com/guilherme-santos/calsync/internal"
)

func TestRateLimiter_DoRetriesThrottledCalls(t *testing.T) {
	r := calendar.NewRateLimiter(1000, 10)

	var calls int
	err := r.Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return &calendar.ThrottledError{RetryAfter: time.Millisecond}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRateLimiter_DoGivesUp(t *testing.T) {
	r := calendar.NewRateLimiter(1000, 10)

	var calls int
	err := r.Do(context.Background(), func() error {
		calls++
		return &calendar.ThrottledError{RetryAfter: time.Millisecond, Err: errors.New("busy")}
	})
	assert.Equal(t, calendar.MaxAttempts, calls)
	assert.ErrorIs(t, err, internal.ErrThrottled)
	assert.ErrorContains(t, err, "busy")
}

func TestRateLimiter_DoReturnsOtherErrors(t *testing.T) {
	r := calendar.NewRateLimiter(1000, 10)
	boom := errors.New("boom")

	var calls int
	err := r.Do(context.Background(), func() error {
		calls++
		return boom
	})
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, boom)
}

func TestRateLimiter_WaitHonoursBackoff(t *testing.T) {
	r := calendar.NewRateLimiter(1000, 10)
	r.Backoff(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := r.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRateLimiter_ShorterBackoffDoesNotShrink(t *testing.T) {
	r := calendar.NewRateLimiter(1000, 10)
	r.Backoff(time.Hour)
	r.Backoff(time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	assert.Error(t, r.Wait(ctx))
}

func TestParseRetryAfter(t *testing.T) {
	assert.Equal(t, 30*time.Second, calendar.ParseRetryAfter("30"))
	assert.Equal(t, time.Duration(0), calendar.ParseRetryAfter(""))
	assert.Equal(t, time.Duration(0), calendar.ParseRetryAfter("-5"))
	assert.Equal(t, time.Duration(0), calendar.ParseRetryAfter("Wed, 21 Oct 2015 07:28:00 GMT"))
}
