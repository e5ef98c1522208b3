/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package distlock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/acronis/go-rollinglimit/log"
	"github.com/acronis/go-rollinglimit/retry"
)

// Default values for Coordinator.
const (
	DefaultLease         = 10 * time.Second
	DefaultRetryInterval = 200 * time.Millisecond
	DefaultMaxAttempts   = 100
)

const releaseTimeout = 5 * time.Second

// Coordinator runs functions while holding a distributed lock.
// Zero values of Lease, Policy and Logger are replaced with defaults.
type Coordinator struct {
	Manager Manager

	// Lease is the lock TTL. The guarded function is expected to complete well within it.
	Lease time.Duration

	// Policy defines how long to wait between acquisition attempts and how many attempts to make.
	// Constant 200ms interval and 100 attempts in total are used by default.
	Policy retry.Policy

	Logger log.FieldLogger
}

// NewCoordinator creates a new Coordinator with default lease and retry policy.
func NewCoordinator(manager Manager, logger log.FieldLogger) *Coordinator {
	return &Coordinator{Manager: manager, Logger: logger}
}

// WithLock acquires the lock with the given name, runs fn and releases the lock.
// The first attempt is made immediately and the following ones according to the retry policy.
// If all attempts fail, an error matching ErrLockExhausted is returned and fn is not called.
// Errors of the lock manager other than ErrNotAcquired are not retried.
// The lock is released on every exit path of fn including panics.
// Release errors are only logged since the work guarded by the lock is already done.
func (c *Coordinator) WithLock(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	logger := c.logger()

	var lock Lock
	acquire := func(ctx context.Context) error {
		l, acqErr := c.Manager.TryAcquire(ctx, name, c.lease())
		if acqErr != nil {
			return acqErr
		}
		lock = l
		return nil
	}
	notify := func(err error, attempt int, delay time.Duration) {
		logger.AtLevel(log.LevelDebug, func(logFunc log.LogFunc) {
			logFunc("lock is busy, waiting", log.String("lock", name), log.Int("attempt", attempt),
				log.Duration("delay", delay))
		})
	}
	isRetryable := func(err error) bool {
		return errors.Is(err, ErrNotAcquired)
	}

	if acqErr := retry.DoWithRetry(ctx, c.policy(), isRetryable, notify, acquire); acqErr != nil {
		var exhaustedErr *retry.ExhaustedError
		if errors.As(acqErr, &exhaustedErr) {
			logger.Warn("lock acquisition attempts exhausted",
				log.String("lock", name), log.Int("attempts", exhaustedErr.Attempts))
			return &LockExhaustedError{Name: name, Attempts: exhaustedErr.Attempts}
		}
		return fmt.Errorf("acquire lock %q: %w", name, acqErr)
	}

	defer func() {
		// Release must happen even if ctx is already canceled.
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
		defer cancel()
		if relErr := lock.Release(releaseCtx); relErr != nil {
			logger.Error("failed to release lock", log.String("lock", name), log.Error(relErr))
		}
	}()

	return fn(ctx)
}

func (c *Coordinator) lease() time.Duration {
	if c.Lease <= 0 {
		return DefaultLease
	}
	return c.Lease
}

func (c *Coordinator) policy() retry.Policy {
	if c.Policy == nil {
		return retry.NewConstantBackoffPolicy(DefaultRetryInterval, DefaultMaxAttempts)
	}
	return c.Policy
}

func (c *Coordinator) logger() log.FieldLogger {
	if c.Logger == nil {
		return log.NewDisabledLogger()
	}
	return c.Logger
}
