package api

import (
	"context"
	"errors"
	"time"
)

const (
	DefaultRetryAttempts  = 3
	DefaultRetryBaseDelay = time.Second

	maxBackoff = 5 * time.Minute
)

// RetryPolicy controls [Retry]. The zero value is not usable; start from
// [DefaultRetryPolicy].
type RetryPolicy struct {
	Attempts  int
	BaseDelay time.Duration
	// Sleep waits d or until ctx is done. Nil means a timer-based wait.
	Sleep func(ctx context.Context, d time.Duration) error
	// OnRetry runs before each wait with the failed attempt number (1-based).
	OnRetry func(attempt int, delay time.Duration, err error)
}

// DefaultRetryPolicy returns 3 attempts starting at one second.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts:  DefaultRetryAttempts,
		BaseDelay: DefaultRetryBaseDelay,
	}
}

// Backoff returns the wait after failed attempt n (1-based): base * 2^(n-1), capped.
func Backoff(attempt int, base time.Duration) time.Duration {
	if attempt < 1 || base <= 0 {
		return 0
	}
	d := base
	for i := 1; i < attempt; i++ {
		if d >= maxBackoff/2 {
			return maxBackoff
		}
		d *= 2
	}
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

// Retryable reports whether err is worth another attempt. Authentication,
// authorization, validation and cancellation failures are final.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	switch KindOf(err) {
	case KindSessionExpired,
		KindPermissionDenied,
		KindInvalidCredentials,
		KindAccountDisabled,
		KindValidation,
		KindCanceled:
		return false
	}
	return true
}

// Retry runs op until it succeeds, fails with a non-retryable error, or the policy's
// attempts are exhausted. The last error is returned.
func Retry(ctx context.Context, policy RetryPolicy, op func(ctx context.Context) error) error {
	_, err := RetryValue(ctx, policy, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// RetryValue is [Retry] for operations that produce a value.
func RetryValue[T any](ctx context.Context, policy RetryPolicy, op func(ctx context.Context) (T, error)) (T, error) {
	attempts := policy.Attempts
	if attempts < 1 {
		attempts = 1
	}
	sleep := policy.Sleep
	if sleep == nil {
		sleep = Sleep
	}

	var zero T
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err
		if attempt == attempts || !Retryable(err) {
			break
		}

		delay := Backoff(attempt, policy.BaseDelay)
		if policy.OnRetry != nil {
			policy.OnRetry(attempt, delay, err)
		}
		if err := sleep(ctx, delay); err != nil {
			return zero, CanceledError(err)
		}
	}
	return zero, lastErr
}

// Sleep waits d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
