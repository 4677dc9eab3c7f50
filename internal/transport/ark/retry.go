package ark

import (
	"context"
	"errors"
	"time"

	"github.com/kailas-cloud/vecingest/internal/pace"
)

// retryableError marks a failure worth another attempt: network errors, 429 and 5xx.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

func isRetryable(err error) bool {
	var re *retryableError
	return errors.As(err, &re)
}

// retryWithBackoff runs fn up to 1+maxRetries times, doubling delay after each retryable failure.
func retryWithBackoff[T any](
	ctx context.Context, maxRetries int, delay time.Duration,
	onRetry func(attempt int, wait time.Duration, err error),
	fn func() (T, error),
) (T, error) {
	var zero T
	if maxRetries < 0 {
		maxRetries = 0
	}
	backoff := delay

	for attempt := 0; ; attempt++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		if !isRetryable(err) || attempt >= maxRetries {
			return zero, err
		}

		if onRetry != nil {
			onRetry(attempt+1, backoff, err)
		}
		if err := pace.Sleep(ctx, backoff); err != nil {
			return zero, err
		}
		backoff *= 2
	}
}
