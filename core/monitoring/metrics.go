// Package monitoring exposes Prometheus metrics for repair runs and watches
// runs in flight.
package monitoring

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"mesh-orchestrator/core/models"
)

const (
	namespace = "mesh"
	subsystem = "repair"
)

// Result reasons reported on runs_total
const (
	ReasonPassed      = "passed"
	ReasonExhausted   = "exhausted"
	ReasonToolFailure = "tool_failure"
)

// Metrics exposes Prometheus collectors that report controller activity. It
// implements the controller's observer interface.
type Metrics struct {
	runs             *prometheus.CounterVec
	iterations       *prometheus.HistogramVec
	strategies       *prometheus.CounterVec
	providerFailures *prometheus.CounterVec
	transitions      *prometheus.CounterVec
	runsActive       prometheus.Gauge
	runsStale        prometheus.Gauge
}

var (
	defaultMetricsOnce sync.Once
	sharedMetrics      *Metrics
)

// DefaultMetrics returns the metrics registered with the global registry
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		sharedMetrics = MustNewMetrics(prometheus.DefaultRegisterer)
	})
	return sharedMetrics
}

// MustNewMetrics registers the collectors with reg and panics on conflict
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "runs_total",
			Help:      "Completed controller runs by outcome and reason.",
		}, []string{"outcome", "reason"}),
		iterations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "run_iterations",
			Help:      "Validate/repair iterations used per run.",
			Buckets:   prometheus.LinearBuckets(0, 1, 11),
		}, []string{"outcome"}),
		strategies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "strategies_total",
			Help:      "Repair strategies applied after failed validations.",
		}, []string{"strategy"}),
		providerFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "provider_failures_total",
			Help:      "Provider tool failures that ended a run.",
		}, []string{"provider"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "transitions_total",
			Help:      "Controller state transitions by target state.",
		}, []string{"state"}),
		runsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "runs_active",
			Help:      "Runs currently executing.",
		}),
		runsStale: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "runs_stale",
			Help:      "Runs marked running for longer than the stale threshold.",
		}),
	}

	reg.MustRegister(m.runs, m.iterations, m.strategies, m.providerFailures, m.transitions, m.runsActive, m.runsStale)
	return m
}

// OnTransition counts the transition and, where it carries one, the strategy
// or failing provider
func (m *Metrics) OnTransition(_ context.Context, event models.RunEvent) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(string(event.ToState)).Inc()

	switch event.ToState {
	case models.StateRepairing, models.StateRemeshing:
		if s, ok := event.MetaJSON["strategy"].(string); ok {
			m.strategies.WithLabelValues(s).Inc()
		}
	case models.StateFailed:
		if p, ok := event.MetaJSON["provider"].(string); ok {
			m.providerFailures.WithLabelValues(p).Inc()
		}
	}
}

// OnResult records the run outcome and the iterations it used
func (m *Metrics) OnResult(_ context.Context, _ string, result models.RunResult) {
	if m == nil {
		return
	}
	reason := ReasonPassed
	switch {
	case result.Succeeded():
	case result.Exhausted():
		reason = ReasonExhausted
	default:
		reason = ReasonToolFailure
	}
	m.runs.WithLabelValues(string(result.Outcome), reason).Inc()
	m.iterations.WithLabelValues(string(result.Outcome)).Observe(float64(result.IterationsUsed))
}

// RunStarted increments the active run gauge
func (m *Metrics) RunStarted() {
	if m == nil {
		return
	}
	m.runsActive.Inc()
}

// RunFinished decrements the active run gauge
func (m *Metrics) RunFinished() {
	if m == nil {
		return
	}
	m.runsActive.Dec()
}

// SetStaleRuns sets the stale run gauge
func (m *Metrics) SetStaleRuns(n int) {
	if m == nil {
		return
	}
	m.runsStale.Set(float64(n))
}
