// Package prometheus provides a Prometheus implementation of the metrics interface.
package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"chflow/circuit"
	"chflow/metrics"
)

// PrometheusMetrics implements the Metrics interface using Prometheus.
type PrometheusMetrics struct {
	// Fetch metrics
	fetchStartedTotal   *prometheus.CounterVec
	fetchCompletedTotal *prometheus.CounterVec
	fetchFailedTotal    *prometheus.CounterVec
	fetchDuration       *prometheus.HistogramVec

	// Fencing metrics
	staleDiscardedTotal *prometheus.CounterVec

	// Mutation metrics
	mutationTotal  *prometheus.CounterVec
	uploadProgress prometheus.Gauge

	// Circuit breaker metrics
	circuitState *prometheus.GaugeVec
}

var _ metrics.Metrics = (*PrometheusMetrics)(nil)

// Config holds configuration for PrometheusMetrics.
type Config struct {
	// Namespace is the prefix for all metrics (e.g., "chflow")
	Namespace string
	// Subsystem is an optional subsystem name
	Subsystem string
	// Registry is the Prometheus registry to use. If nil, the default registry is used.
	Registry prometheus.Registerer
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Namespace: "chflow",
		Subsystem: "",
		Registry:  prometheus.DefaultRegisterer,
	}
}

// New creates a new PrometheusMetrics instance with the given configuration.
func New(cfg Config) *PrometheusMetrics {
	if cfg.Registry == nil {
		cfg.Registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(cfg.Registry)

	return &PrometheusMetrics{
		fetchStartedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "fetch_started_total",
			Help:      "Total number of fetch flows started",
		}, []string{"category"}),

		fetchCompletedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "fetch_completed_total",
			Help:      "Total number of fetch flows completed successfully",
		}, []string{"category"}),

		fetchFailedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "fetch_failed_total",
			Help:      "Total number of fetch flows resolved with an error",
		}, []string{"category", "reason"}),

		fetchDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "fetch_duration_seconds",
			Help:      "Fetch flow duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~16s
		}, []string{"category"}),

		staleDiscardedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "stale_discarded_total",
			Help:      "Total number of DONE results discarded by fence mismatch",
		}, []string{"category"}),

		mutationTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "mutation_total",
			Help:      "Total number of mutations by kind and outcome",
		}, []string{"kind", "success"}),

		uploadProgress: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "upload_progress_ratio",
			Help:      "Last reported submission upload progress (0-1)",
		}),

		circuitState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "circuit_breaker_state",
			Help:      "Current state of circuit breaker (0=closed, 1=open, 2=half-open)",
		}, []string{"service"}),
	}
}

// Fetch metrics

func (p *PrometheusMetrics) FetchStarted(category string) {
	p.fetchStartedTotal.WithLabelValues(category).Inc()
}

func (p *PrometheusMetrics) FetchCompleted(category string, duration time.Duration) {
	p.fetchCompletedTotal.WithLabelValues(category).Inc()
	p.fetchDuration.WithLabelValues(category).Observe(duration.Seconds())
}

func (p *PrometheusMetrics) FetchFailed(category string, reason string) {
	p.fetchFailedTotal.WithLabelValues(category, reason).Inc()
}

// Fencing metrics

func (p *PrometheusMetrics) StaleDiscarded(category string) {
	p.staleDiscardedTotal.WithLabelValues(category).Inc()
}

// Mutation metrics

func (p *PrometheusMetrics) MutationCompleted(kind string, success bool) {
	successStr := "false"
	if success {
		successStr = "true"
	}
	p.mutationTotal.WithLabelValues(kind, successStr).Inc()
}

func (p *PrometheusMetrics) UploadProgress(percent float64) {
	p.uploadProgress.Set(percent)
}

// Circuit breaker metrics

func (p *PrometheusMetrics) CircuitStateChanged(service string, state circuit.State) {
	p.circuitState.WithLabelValues(service).Set(float64(state))
}
