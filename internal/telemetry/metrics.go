// Package telemetry counts stage outcomes with Prometheus collectors. A
// batch CLI has no scrape endpoint, so the registry is exported through the
// node_exporter textfile format.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"

	"cnvflow/internal/core"
	"cnvflow/internal/dag"
)

const namespace = "cnvflow"

// Metrics owns a private registry and the pipeline's collectors.
type Metrics struct {
	registry    *prometheus.Registry
	stages      *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	invocations *prometheus.CounterVec
	runs        *prometheus.CounterVec
}

var _ dag.Observer = (*Metrics)(nil)

// New registers the collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		stages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_results_total",
			Help:      "Stage outcomes by stage and status.",
		}, []string{"stage", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_duration_seconds",
			Help:      "Wall time of tool invocations by stage.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		}, []string{"stage"}),
		invocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_invocations_total",
			Help:      "Tool invocations by stage, cache hits excluded.",
		}, []string{"stage"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Pipeline runs by outcome.",
		}, []string{"outcome"}),
	}
	m.registry.MustRegister(m.stages, m.duration, m.invocations, m.runs)
	return m
}

// Registry exposes the registry for gathering.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// ObserveStage implements dag.Observer.
func (m *Metrics) ObserveStage(res core.StageResult) {
	m.stages.WithLabelValues(res.Stage, string(res.Status)).Inc()
	if res.Invoked {
		m.invocations.WithLabelValues(res.Stage).Inc()
		m.duration.WithLabelValues(res.Stage).Observe(res.Duration.Seconds())
	}
}

// ObserveRun counts one finished run. A nil result is a run that never
// resolved.
func (m *Metrics) ObserveRun(res *dag.PipelineResult) {
	outcome := "failed"
	switch {
	case res == nil:
		outcome = "unresolved"
	case res.Cancelled:
		outcome = "cancelled"
	case res.Succeeded():
		outcome = "succeeded"
	}
	m.runs.WithLabelValues(outcome).Inc()
}

// WriteTextfile atomically writes the registry in text exposition format.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
