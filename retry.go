package reagent

import (
	"context"
	"errors"
	"time"
)

const (
	retryBaseDelay = 200 * time.Millisecond
	retryMaxDelay  = 5 * time.Second
)

// retryable reports whether a model port error is transient. Everything
// else, including ErrModelProtocol, fails the run immediately.
func retryable(err error) bool {
	return errors.Is(err, ErrModelRateLimited) || errors.Is(err, ErrModelUnavailable)
}

// withRetry runs fn up to limit+1 times, backing off exponentially on
// transient errors. The wait respects context cancellation. The delay
// sequence is fixed for a given limit, so retry behavior is
// deterministic.
func withRetry(ctx context.Context, limit int, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt <= limit; attempt++ {
		if attempt > 0 {
			delay := retryBaseDelay << (attempt - 1)
			if delay > retryMaxDelay {
				delay = retryMaxDelay
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		err := fn()
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return err
		}
		lastErr = err

		LoggerFromContext(ctx).Warn("transient model error, retrying",
			"attempt", attempt, "limit", limit, "error", err)
	}

	return lastErr
}
