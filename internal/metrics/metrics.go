// Package metrics defines the Prometheus collectors exported by the secretary.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "secretary"

// Metrics groups every collector. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	DecisionCycles   *prometheus.CounterVec
	DecisionDuration prometheus.Histogram
	RoutineRuns      *prometheus.CounterVec
	MessagesHandled  *prometheus.CounterVec
	MessageDuration  prometheus.Histogram
	ToolCalls        *prometheus.CounterVec
	LoopRunning      prometheus.Gauge
}

// New registers all collectors (plus Go and process collectors) on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		DecisionCycles: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decision_cycles_total",
			Help:      "Decision cycles by primary action and outcome.",
		}, []string{"action", "outcome"}),
		DecisionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "decision_duration_seconds",
			Help:      "Duration of a full decision cycle.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300},
		}),
		RoutineRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "routine_runs_total",
			Help:      "Routine executions by outcome.",
		}, []string{"outcome"}),
		MessagesHandled: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Inbound chat messages by kind and outcome.",
		}, []string{"kind", "outcome"}),
		MessageDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "message_duration_seconds",
			Help:      "Time to answer a free-text message.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30},
		}),
		ToolCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Collaborator tool invocations by tool and outcome.",
		}, []string{"tool", "outcome"}),
		LoopRunning: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "loop_running",
			Help:      "1 while the autonomous polling loop runs.",
		}),
	}
}

// Outcome label values.
const (
	OutcomeOK      = "ok"
	OutcomeError   = "error"
	OutcomeTimeout = "timeout"
)

// Outcome maps an error to an outcome label.
func Outcome(err error) string {
	if err != nil {
		return OutcomeError
	}
	return OutcomeOK
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveDecision(action string, err error, seconds float64) {
	if m == nil {
		return
	}
	m.DecisionCycles.WithLabelValues(action, Outcome(err)).Inc()
	m.DecisionDuration.Observe(seconds)
}

func (m *Metrics) ObserveRoutine(err error) {
	if m == nil {
		return
	}
	m.RoutineRuns.WithLabelValues(Outcome(err)).Inc()
}

func (m *Metrics) ObserveMessage(kind, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.MessagesHandled.WithLabelValues(kind, outcome).Inc()
	if seconds > 0 {
		m.MessageDuration.Observe(seconds)
	}
}

func (m *Metrics) ObserveTool(tool, outcome string) {
	if m == nil {
		return
	}
	m.ToolCalls.WithLabelValues(tool, outcome).Inc()
}

func (m *Metrics) SetLoopRunning(running bool) {
	if m == nil {
		return
	}
	if running {
		m.LoopRunning.Set(1)
	} else {
		m.LoopRunning.Set(0)
	}
}
