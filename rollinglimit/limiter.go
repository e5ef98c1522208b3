/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package rollinglimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/atomic"

	"github.com/acronis/go-rollinglimit/distlock"
	"github.com/acronis/go-rollinglimit/internal/window"
	"github.com/acronis/go-rollinglimit/log"
)

const lockNameSuffix = "-lock"

// Limiter is a distributed rolling-window rate limiter.
// Its configuration is immutable, and Check is safe for concurrent use.
type Limiter struct {
	identifier     string
	limits         limits
	storeKeyPrefix string

	store       WindowStore
	coordinator *distlock.Coordinator
	metrics     MetricsCollector
	logger      log.FieldLogger
	clock       func() time.Time

	callerID  atomic.String
	lastError atomic.Pointer[Verdict]
}

// New creates a new Limiter.
// The client is used for both the window store and the lock manager unless they are replaced with options.
// It returns an error matching ErrArgumentInvalid if the configuration is invalid,
// and ErrStoreUnavailable if the client is nil and is needed.
func New(cfg *Config, client redis.UniversalClient, options ...Option) (*Limiter, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: config is nil", ErrArgumentInvalid)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrArgumentInvalid, err)
	}

	opts := limiterOptions{}
	for _, opt := range options {
		opt(&opts)
	}
	if opts.store == nil || opts.lockManager == nil {
		if client == nil {
			return nil, fmt.Errorf("%w: redis client is nil", ErrStoreUnavailable)
		}
		if opts.store == nil {
			opts.store = window.NewRedisStore(client)
		}
		if opts.lockManager == nil {
			opts.lockManager = distlock.NewRedisManager(client)
		}
	}
	if opts.logger == nil {
		opts.logger = log.NewDisabledLogger()
	}
	if opts.metrics == nil {
		opts.metrics = disabledMetrics{}
	}
	if opts.clock == nil {
		opts.clock = time.Now
	}

	return &Limiter{
		identifier: cfg.Identifier,
		limits: limits{
			window:     time.Duration(cfg.Window),
			maxCalls:   cfg.MaxCalls,
			minSpacing: time.Duration(cfg.MinSpacing),
		},
		storeKeyPrefix: cfg.StoreKeyPrefix,
		store:          opts.store,
		coordinator: &distlock.Coordinator{
			Manager: opts.lockManager,
			Lease:   time.Duration(cfg.Lock.Lease),
			Policy:  cfg.Lock.retryPolicy(),
			Logger:  opts.logger,
		},
		metrics: opts.metrics,
		logger:  opts.logger,
		clock:   opts.clock,
	}, nil
}

// Check decides whether the caller may make callSize more calls now.
// If the call is admitted, callSize entries are added to the caller's window.
// A denial is returned as a Verdict with nil error.
// Errors are returned for invalid arguments (ErrArgumentInvalid), store failures (ErrStoreUnavailable),
// lock acquisition exhaustion (ErrLockExhausted) and context cancellation.
func (l *Limiter) Check(ctx context.Context, callerID string, callSize int) (Verdict, error) {
	if callerID == "" {
		return Verdict{}, fmt.Errorf("%w: caller id cannot be empty", ErrArgumentInvalid)
	}
	if callSize < 1 {
		return Verdict{}, fmt.Errorf("%w: call size must be positive, got %d", ErrArgumentInvalid, callSize)
	}

	logger := l.logger.With(log.String("caller_id", callerID))

	// Can never succeed, so neither the lock nor the store is touched.
	if callSize > l.limits.maxCalls {
		verdict := callSizeExceedsMaxVerdict(l.limits.maxCalls)
		l.registerVerdict(logger, verdict)
		return verdict, nil
	}

	key := window.Key(l.storeKeyPrefix, l.identifier, callerID)
	var verdict Verdict
	waitStartedAt := time.Now()
	err := l.coordinator.WithLock(ctx, key+lockNameSuffix, func(ctx context.Context) error {
		l.metrics.ObserveLockWait(time.Since(waitStartedAt))

		now := l.clock()
		entries, err := l.store.PruneAndRead(ctx, key, now, l.limits.window)
		if err != nil {
			return err
		}
		if verdict = decide(entries, now, callSize, l.limits); !verdict.Allowed {
			return nil
		}
		return l.store.Append(ctx, key, burstTimestamps(now, l.clock, entries, callSize), l.limits.window)
	})
	if err != nil {
		return Verdict{}, l.wrapCheckError(logger, err)
	}

	l.registerVerdict(logger, verdict)
	return verdict, nil
}

// SetCallerID sets the caller id used by CheckAdmission.
func (l *Limiter) SetCallerID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: caller id cannot be empty", ErrArgumentInvalid)
	}
	l.callerID.Store(id)
	return nil
}

// CheckAdmission is like Check but uses the caller id set by SetCallerID.
// It returns ErrCallerIDNotSet if no caller id was set.
func (l *Limiter) CheckAdmission(ctx context.Context, callSize int) (Verdict, error) {
	callerID := l.callerID.Load()
	if callerID == "" {
		return Verdict{}, ErrCallerIDNotSet
	}
	return l.Check(ctx, callerID, callSize)
}

// LastError returns the most recent denial or nil if no call has been denied yet.
func (l *Limiter) LastError() *Verdict {
	return l.lastError.Load()
}

// Ping checks that the store is reachable.
func (l *Limiter) Ping(ctx context.Context) error {
	if err := l.store.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return nil
}

func (l *Limiter) registerVerdict(logger log.FieldLogger, verdict Verdict) {
	if verdict.Allowed {
		l.metrics.IncVerdicts(ResultAllowed)
		return
	}
	l.lastError.Store(&verdict)
	l.metrics.IncVerdicts(verdict.Code.String())
	logger.AtLevel(log.LevelDebug, func(logFunc log.LogFunc) {
		logFunc("admission denied", log.Int("code", int(verdict.Code)),
			log.Int64("retry_in_micro", verdict.RetryInMicro()), log.String("reason", verdict.Message))
	})
}

func (l *Limiter) wrapCheckError(logger log.FieldLogger, err error) error {
	switch {
	case errors.Is(err, ErrLockExhausted):
		l.metrics.IncLockExhausted()
		return err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	}
	logger.Error("admission check failed", log.Error(err))
	return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
}
