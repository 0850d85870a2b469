package policy

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus metrics for policy evaluations.
type Metrics struct {
	evaluationTotal    *prometheus.CounterVec
	evaluationDuration *prometheus.HistogramVec
	statementCount     prometheus.Gauge
	cacheHits          prometheus.Counter
	cacheMisses        prometheus.Counter
	registry           *prometheus.Registry
}

// NewMetrics creates a new Metrics instance.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "avaccess"
	}

	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}

	m.evaluationTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "policy",
			Name:      "evaluation_total",
			Help:      "Total number of policy evaluations",
		},
		[]string{"decision"},
	)

	m.evaluationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "policy",
			Name:      "evaluation_duration_seconds",
			Help:      "Policy evaluation duration in seconds",
			Buckets:   []float64{.00001, .00005, .0001, .0005, .001, .005, .01, .025, .05, .1},
		},
		[]string{"decision"},
	)

	m.statementCount = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "policy",
			Name:      "statement_count",
			Help:      "Number of statements held by the engine",
		},
	)

	m.cacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "policy",
			Name:      "cache_hits_total",
			Help:      "Total number of decision cache hits",
		},
	)

	m.cacheMisses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "policy",
			Name:      "cache_misses_total",
			Help:      "Total number of decision cache misses",
		},
	)

	// Register all metrics
	m.registry.MustRegister(
		m.evaluationTotal,
		m.evaluationDuration,
		m.statementCount,
		m.cacheHits,
		m.cacheMisses,
	)

	return m
}

// RecordEvaluation records a policy evaluation.
func (m *Metrics) RecordEvaluation(decision string, duration time.Duration) {
	m.evaluationTotal.WithLabelValues(decision).Inc()
	m.evaluationDuration.WithLabelValues(decision).Observe(duration.Seconds())
}

// SetStatementCount sets the statement count.
func (m *Metrics) SetStatementCount(count int) {
	m.statementCount.Set(float64(count))
}

// RecordCacheHit records a decision cache hit.
func (m *Metrics) RecordCacheHit() {
	m.cacheHits.Inc()
}

// RecordCacheMiss records a decision cache miss.
func (m *Metrics) RecordCacheMiss() {
	m.cacheMisses.Inc()
}

// Registry returns the Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// MustRegister registers the metrics with the given registry.
func (m *Metrics) MustRegister(registry *prometheus.Registry) {
	registry.MustRegister(
		m.evaluationTotal,
		m.evaluationDuration,
		m.statementCount,
		m.cacheHits,
		m.cacheMisses,
	)
}
