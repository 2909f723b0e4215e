package providers

import (
	"context"
	"log/slog"
	"time"

	"github.com/avast/retry-go/v4"
)

// RetryPolicy bounds the retry loop wrapped around a backend call.
type RetryPolicy struct {
	Attempts  uint
	BaseDelay time.Duration
	MaxDelay  time.Duration
	// RetryIf classifies errors as retryable. Nil retries everything.
	RetryIf func(error) bool
}

// DirectRetryPolicy is the primary-backend policy: a handful of attempts
// with exponential backoff capped high, but only for transient failures.
// Auth and validation errors propagate immediately.
func DirectRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts:  5,
		BaseDelay: time.Second,
		MaxDelay:  120 * time.Second,
		RetryIf:   IsTransient,
	}
}

// AggregatorRetryPolicy retries more liberally on any error, with a
// tighter delay cap.
func AggregatorRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts:  3,
		BaseDelay: time.Second,
		MaxDelay:  10 * time.Second,
	}
}

// callWithRetry runs fn under the policy. Backoff doubles from BaseDelay
// up to MaxDelay; the last error is surfaced on exhaustion.
func callWithRetry(ctx context.Context, logger *slog.Logger, policy RetryPolicy, backend string, fn func() (string, error)) (string, error) {
	retryIf := policy.RetryIf
	if retryIf == nil {
		retryIf = func(error) bool { return true }
	}

	var out string
	err := retry.Do(
		func() error {
			var err error
			out, err = fn()
			return err
		},
		retry.Context(ctx),
		retry.Attempts(policy.Attempts),
		retry.Delay(policy.BaseDelay),
		retry.MaxDelay(policy.MaxDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.RetryIf(retryIf),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			if logger != nil {
				logger.Warn("model call failed, retrying",
					"backend", backend,
					"attempt", n+1,
					"error", err,
				)
			}
		}),
	)
	if err != nil {
		return "", err
	}
	return out, nil
}
