package providers

import (
	"context"
	"log/slog"
	"time"
)

// RetryConfig bounds a backend's automatic retry.
type RetryConfig struct {
	MaxRetries int           // retries after the first attempt
	Backoff    time.Duration // fixed delay between attempts
	RetryIf    func(error) bool
}

// DefaultRetryConfig retries once, after a short pause, on transient
// failures only.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 1,
		Backoff:    500 * time.Millisecond,
		RetryIf:    Retryable,
	}
}

// RetryDo runs fn up to cfg.MaxRetries+1 times, sleeping cfg.Backoff
// between attempts. Non-retryable failures and context cancellation stop
// the loop immediately.
func RetryDo[T any](ctx context.Context, cfg RetryConfig, fn func() (T, error)) (T, error) {
	var (
		result T
		err    error
	)
	retryIf := cfg.RetryIf
	if retryIf == nil {
		retryIf = Retryable
	}

	for attempt := 0; ; attempt++ {
		result, err = fn()
		if err == nil {
			return result, nil
		}
		if attempt >= cfg.MaxRetries || !retryIf(err) {
			return result, err
		}

		slog.Debug("retrying backend call", "attempt", attempt+1, "error", err)
		select {
		case <-time.After(cfg.Backoff):
		case <-ctx.Done():
			return result, ctx.Err()
		}
	}
}
