// Package metrics provides the metrics interface for the chflow action layer.
package metrics

import (
	"time"

	"chflow/circuit"
)

// Metrics defines the interface for collecting observability metrics.
// Implementations can use Prometheus, StatsD, or other metrics backends.
type Metrics interface {
	// Fetch metrics
	FetchStarted(category string)
	FetchCompleted(category string, duration time.Duration)
	FetchFailed(category string, reason string)

	// Fencing metrics, reported by the consuming store
	StaleDiscarded(category string)

	// Mutation metrics
	MutationCompleted(kind string, success bool)
	UploadProgress(percent float64)

	// Circuit breaker metrics
	CircuitStateChanged(service string, state circuit.State)
}

// NoopMetrics is a no-op implementation of Metrics for testing or when metrics are disabled.
type NoopMetrics struct{}

var _ Metrics = (*NoopMetrics)(nil)

func (n *NoopMetrics) FetchStarted(category string)                            {}
func (n *NoopMetrics) FetchCompleted(category string, d time.Duration)         {}
func (n *NoopMetrics) FetchFailed(category string, reason string)              {}
func (n *NoopMetrics) StaleDiscarded(category string)                          {}
func (n *NoopMetrics) MutationCompleted(kind string, success bool)             {}
func (n *NoopMetrics) UploadProgress(percent float64)                          {}
func (n *NoopMetrics) CircuitStateChanged(service string, state circuit.State) {}
