// Package metrics provides the metrics sink used across the pipeline:
// a small tag-based interface, a no-op implementation for tests, and a
// Prometheus-backed implementation for the CLI and worker.
package metrics

// Metrics provides observability data collection for pipeline operations.
// Supports counters, histograms, and gauges with tag-based dimensionality.
type Metrics interface {
	IncrementCounter(name string, tags map[string]string, value float64)
	RecordHistogram(name string, tags map[string]string, value float64)
	SetGauge(name string, tags map[string]string, value float64)
}

// NoOpMetrics discards everything.
type NoOpMetrics struct{}

// NewNoOpMetrics creates a no-op metrics collector.
func NewNoOpMetrics() *NoOpMetrics { return &NoOpMetrics{} }

func (n *NoOpMetrics) IncrementCounter(_ string, _ map[string]string, _ float64) {}

func (n *NoOpMetrics) RecordHistogram(_ string, _ map[string]string, _ float64) {}

func (n *NoOpMetrics) SetGauge(_ string, _ map[string]string, _ float64) {}

// OrNoOp returns m, or a no-op collector when m is nil.
func OrNoOp(m Metrics) Metrics {
	if m == nil {
		return NewNoOpMetrics()
	}
	return m
}

// Metric names emitted by the pipeline.
const (
	RunsTotal            = "pipeline.runs.total"
	RetriesTotal         = "pipeline.retries.total"
	CompositeScore       = "pipeline.composite_score"
	StageDurationMS      = "pipeline.stage.duration_ms"
	StageFailures        = "pipeline.stage.failures"
	ValidationFindings   = "validation.findings.total"
	ValidationCheckFails = "validation.check.failures"
	TransformRequests    = "transform.requests.total"
	TransformDurationMS  = "transform.request.duration_ms"
	TransformCacheHits   = "transform.cache.hits"
	TransformRetries     = "transform.retries.total"
	TransformBreaker     = "transform.breaker.state"
	FeedbackAppends      = "feedback.appends.total"
	FeedbackFailures     = "feedback.append.failures"
	FeedbackInFlight     = "feedback.in_flight"
)
