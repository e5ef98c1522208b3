/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package rollinglimit

import (
	"context"
	"time"

	"github.com/acronis/go-rollinglimit/distlock"
	"github.com/acronis/go-rollinglimit/log"
)

// WindowStore keeps rolling windows of call timestamps.
// Implementations are used only while the window lock is held.
type WindowStore interface {
	// PruneAndRead removes entries not newer than now-window and returns the rest in ascending order.
	PruneAndRead(ctx context.Context, key string, now time.Time, window time.Duration) ([]time.Time, error)

	// Append adds timestamps to the window and sets its TTL.
	Append(ctx context.Context, key string, timestamps []time.Time, ttl time.Duration) error

	// Ping checks that the store is reachable.
	Ping(ctx context.Context) error
}

// Option is a functional option for New.
type Option func(*limiterOptions)

type limiterOptions struct {
	logger      log.FieldLogger
	metrics     MetricsCollector
	store       WindowStore
	lockManager distlock.Manager
	clock       func() time.Time
}

// WithLogger sets the logger. Nothing is logged by default.
func WithLogger(logger log.FieldLogger) Option {
	return func(o *limiterOptions) {
		o.logger = logger
	}
}

// WithMetrics sets the metrics collector. Metrics are disabled by default.
func WithMetrics(mc MetricsCollector) Option {
	return func(o *limiterOptions) {
		o.metrics = mc
	}
}

// WithWindowStore replaces the Redis window store.
func WithWindowStore(store WindowStore) Option {
	return func(o *limiterOptions) {
		o.store = store
	}
}

// WithLockManager replaces the Redis lock manager.
func WithLockManager(manager distlock.Manager) Option {
	return func(o *limiterOptions) {
		o.lockManager = manager
	}
}

// WithClock sets the source of the current time.
func WithClock(clock func() time.Time) Option {
	return func(o *limiterOptions) {
		o.clock = clock
	}
}
