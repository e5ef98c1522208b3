/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package rollinglimit

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Values of the "result" label.
const (
	ResultAllowed = "allowed"
)

// MetricsCollector represents a collector of metrics to analyze how the limiter behaves.
type MetricsCollector interface {
	// IncVerdicts increments the number of verdicts with the given result
	// (ResultAllowed or ErrorCode.String() of the denial).
	IncVerdicts(result string)

	// ObserveLockWait observes the time spent waiting for the window lock.
	ObserveLockWait(d time.Duration)

	// IncLockExhausted increments the number of checks failed because the window lock was not acquired.
	IncLockExhausted()
}

// PrometheusMetricsOpts represents options for PrometheusMetrics.
type PrometheusMetricsOpts struct {
	// Namespace is a namespace for metrics. It will be prepended to all metric names.
	Namespace string

	// ConstLabels is a set of labels that will be applied to all metrics.
	ConstLabels prometheus.Labels

	// CurriedLabelNames is a list of label names that will be curried with the provided labels.
	// See PrometheusMetrics.MustCurryWith method for more details.
	// Keep in mind that if this list is not empty,
	// PrometheusMetrics.MustCurryWith method must be called further with the same labels.
	// Otherwise, the collector will panic.
	CurriedLabelNames []string

	// LockWaitBuckets defines buckets for the lock wait histogram.
	LockWaitBuckets []float64
}

// DefaultLockWaitBuckets is used when PrometheusMetricsOpts.LockWaitBuckets is empty.
var DefaultLockWaitBuckets = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20}

// PrometheusMetrics represents Prometheus metrics for the limiter.
type PrometheusMetrics struct {
	VerdictsTotal      *prometheus.CounterVec
	LockWaitSeconds    *prometheus.HistogramVec
	LockExhaustedTotal *prometheus.CounterVec
}

// NewPrometheusMetrics creates a new instance of PrometheusMetrics with default options.
func NewPrometheusMetrics() *PrometheusMetrics {
	return NewPrometheusMetricsWithOpts(PrometheusMetricsOpts{})
}

// NewPrometheusMetricsWithOpts creates a new instance of PrometheusMetrics with the provided options.
func NewPrometheusMetricsWithOpts(opts PrometheusMetricsOpts) *PrometheusMetrics {
	buckets := opts.LockWaitBuckets
	if len(buckets) == 0 {
		buckets = DefaultLockWaitBuckets
	}

	verdictsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Name:        "rolling_limit_verdicts_total",
			Help:        "Number of admission checks by result.",
			ConstLabels: opts.ConstLabels,
		},
		append(append([]string{}, opts.CurriedLabelNames...), "result"),
	)

	lockWaitSeconds := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   opts.Namespace,
			Name:        "rolling_limit_lock_wait_seconds",
			Help:        "Time spent waiting for the window lock.",
			Buckets:     buckets,
			ConstLabels: opts.ConstLabels,
		},
		opts.CurriedLabelNames,
	)

	lockExhaustedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Name:        "rolling_limit_lock_exhausted_total",
			Help:        "Number of admission checks failed because the window lock was not acquired.",
			ConstLabels: opts.ConstLabels,
		},
		opts.CurriedLabelNames,
	)

	return &PrometheusMetrics{
		VerdictsTotal:      verdictsTotal,
		LockWaitSeconds:    lockWaitSeconds,
		LockExhaustedTotal: lockExhaustedTotal,
	}
}

// MustCurryWith curries the metrics collector with the provided labels.
func (pm *PrometheusMetrics) MustCurryWith(labels prometheus.Labels) *PrometheusMetrics {
	return &PrometheusMetrics{
		VerdictsTotal:      pm.VerdictsTotal.MustCurryWith(labels),
		LockWaitSeconds:    pm.LockWaitSeconds.MustCurryWith(labels).(*prometheus.HistogramVec),
		LockExhaustedTotal: pm.LockExhaustedTotal.MustCurryWith(labels),
	}
}

// MustRegister does registration of metrics collector in Prometheus and panics if any error occurs.
func (pm *PrometheusMetrics) MustRegister() {
	prometheus.MustRegister(
		pm.VerdictsTotal,
		pm.LockWaitSeconds,
		pm.LockExhaustedTotal,
	)
}

// Unregister cancels registration of metrics collector in Prometheus.
func (pm *PrometheusMetrics) Unregister() {
	prometheus.Unregister(pm.VerdictsTotal)
	prometheus.Unregister(pm.LockWaitSeconds)
	prometheus.Unregister(pm.LockExhaustedTotal)
}

// IncVerdicts increments the number of verdicts with the given result.
func (pm *PrometheusMetrics) IncVerdicts(result string) {
	pm.VerdictsTotal.With(prometheus.Labels{"result": result}).Inc()
}

// ObserveLockWait observes the time spent waiting for the window lock.
func (pm *PrometheusMetrics) ObserveLockWait(d time.Duration) {
	pm.LockWaitSeconds.With(nil).Observe(d.Seconds())
}

// IncLockExhausted increments the number of checks failed because the window lock was not acquired.
func (pm *PrometheusMetrics) IncLockExhausted() {
	pm.LockExhaustedTotal.With(nil).Inc()
}

type disabledMetrics struct{}

func (disabledMetrics) IncVerdicts(string)            {}
func (disabledMetrics) ObserveLockWait(time.Duration) {}
func (disabledMetrics) IncLockExhausted()             {}
