package venue

import (
	"context"
	"math/rand"
	"time"
)

// RetryPolicy bounds the retry loop around venue calls.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy mirrors the venue rate-limit guidance: a handful of
// attempts with sub-second initial backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 4,
		BaseDelay:   250 * time.Millisecond,
		MaxDelay:    5 * time.Second,
	}
}

// WithRetry runs fn, retrying on retryable venue errors with exponential
// backoff and jitter. Fatal errors and context cancellation surface
// immediately; the final retryable error surfaces after MaxAttempts.
func WithRetry(ctx context.Context, p RetryPolicy, fn func(context.Context) error) error {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}

	delay := p.BaseDelay
	var err error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err = fn(ctx); err == nil || !IsRetryable(err) {
			return err
		}
		if attempt == p.MaxAttempts {
			break
		}

		// Exponential backoff with jitter
		sleep := delay + time.Duration(rand.Int63n(int64(100*time.Millisecond)))
		if sleep > p.MaxDelay {
			sleep = p.MaxDelay
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleep):
		}
		delay *= 2
	}
	return err
}
