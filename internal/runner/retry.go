package runner

import (
	"context"
	"time"
)

// RetryPolicy bounds retries of a single RPC call.
type RetryPolicy struct {
	MaxRetries int
	Backoff    time.Duration
}

// withRetry calls fn until it succeeds, the retries are exhausted, or ctx is
// done. The delay doubles after every failed attempt.
func withRetry[T any](ctx context.Context, policy RetryPolicy, fn func(context.Context) (T, error)) (T, error) {
	maxRetries := policy.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	delay := policy.Backoff
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}

	for attempt := 0; ; attempt++ {
		value, err := fn(ctx)
		if err == nil {
			return value, nil
		}
		if attempt >= maxRetries {
			return value, err
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			var zero T
			return zero, ctx.Err()
		case <-timer.C:
		}

		delay *= 2
	}
}
