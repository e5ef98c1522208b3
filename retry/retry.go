/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package retry runs an operation repeatedly according to a bounded backoff policy
// and reports exhaustion of the attempt budget as a typed error.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrExhausted is matched (via errors.Is) by every error returned when a policy runs out of attempts.
var ErrExhausted = errors.New("retry attempts exhausted")

// ExhaustedError is returned by DoWithRetry when all attempts allowed by the policy failed with retryable errors.
type ExhaustedError struct {
	Attempts int
	Err      error
}

// Error implements the error interface.
func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%d attempt(s) exhausted: %v", e.Attempts, e.Err)
}

// Unwrap returns the error of the last attempt.
func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrExhausted.
func (e *ExhaustedError) Is(target error) bool {
	return target == ErrExhausted
}

// IsRetryable defines a func that can tell if error is retryable as opposed to persistent.
type IsRetryable func(error) bool

// RetryableFunc is function that does some work and can be potentially retried.
type RetryableFunc func(ctx context.Context) error

// Notify is called before every wait with the error of the failed attempt,
// the number of attempts made so far and the delay before the next one.
type Notify func(err error, attempt int, delay time.Duration)

// Policy defines backoff strategy.
type Policy interface {
	NewBackOff() backoff.BackOff
}

// DoWithRetry executes fn with retry according to policy p and with respect to context ctx.
// IsRetryable defines which errors lead to retry attempt (can be nil for any error).
// A non-retryable error and a context error are returned as is,
// while running out of attempts produces *ExhaustedError.
func DoWithRetry(ctx context.Context, p Policy, isRetryable IsRetryable, notify Notify, fn RetryableFunc) error {
	bctx := backoff.WithContext(p.NewBackOff(), ctx)

	attempts := 0
	permanent := false
	op := func() error {
		attempts++
		err := fn(bctx.Context())
		if err != nil && isRetryable != nil && !isRetryable(err) {
			permanent = true
			return backoff.Permanent(err)
		}
		return err
	}

	var bNotify backoff.Notify
	if notify != nil {
		bNotify = func(err error, delay time.Duration) {
			notify(err, attempts, delay)
		}
	}

	err := backoff.RetryNotify(op, bctx, bNotify)
	if err == nil || permanent || ctx.Err() != nil {
		return err
	}
	return &ExhaustedError{Attempts: attempts, Err: err}
}

// The PolicyFunc type is an adapter to allow the use of ordinary functions as retry.Policy.
type PolicyFunc func() backoff.BackOff

// NewBackOff implements retry.Policy.
func (f PolicyFunc) NewBackOff() backoff.BackOff {
	return f()
}

// ConstantBackoffPolicy makes up to maxAttempts attempts in total with a constant delay between them.
type ConstantBackoffPolicy struct {
	interval    time.Duration
	maxAttempts int
}

// NewConstantBackoffPolicy returns a constant backoff policy.
// Zero or negative maxAttempts means no limit.
func NewConstantBackoffPolicy(interval time.Duration, maxAttempts int) ConstantBackoffPolicy {
	return ConstantBackoffPolicy{interval, maxAttempts}
}

// NewBackOff implements retry.Policy.
func (p ConstantBackoffPolicy) NewBackOff() backoff.BackOff {
	return withMaxAttempts(backoff.NewConstantBackOff(p.interval), p.maxAttempts)
}

// ExponentialBackoffPolicy makes up to maxAttempts attempts in total with exponentially growing delays
// (1.5 multiplier, no randomization) capped by maxInterval.
type ExponentialBackoffPolicy struct {
	initialInterval time.Duration
	maxInterval     time.Duration
	maxAttempts     int
}

// NewExponentialBackoffPolicy returns an exponential backoff policy.
// Zero maxInterval keeps the backoff library default, zero or negative maxAttempts means no limit.
func NewExponentialBackoffPolicy(initialInterval, maxInterval time.Duration, maxAttempts int) ExponentialBackoffPolicy {
	return ExponentialBackoffPolicy{initialInterval, maxInterval, maxAttempts}
}

// NewBackOff implements retry.Policy.
func (p ExponentialBackoffPolicy) NewBackOff() backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.initialInterval
	eb.RandomizationFactor = 0
	eb.MaxElapsedTime = 0
	if p.maxInterval > 0 {
		eb.MaxInterval = p.maxInterval
	}
	return withMaxAttempts(eb, p.maxAttempts)
}

func withMaxAttempts(b backoff.BackOff, maxAttempts int) backoff.BackOff {
	if maxAttempts > 0 {
		// The first attempt is not a retry.
		b = backoff.WithMaxRetries(b, uint64(maxAttempts-1))
	}
	b.Reset()
	return b
}
