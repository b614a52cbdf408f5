package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserve(t *testing.T) {
	m := New()

	m.ObserveDecision("send_followup", nil, 2)
	m.ObserveDecision("none", errors.New("boom"), 1)
	m.ObserveRoutine(nil)
	m.ObserveRoutine(nil)
	m.ObserveMessage("text", OutcomeTimeout, 30)
	m.ObserveTool("get_weather", OutcomeOK)
	m.SetLoopRunning(true)

	if got := testutil.ToFloat64(m.DecisionCycles.WithLabelValues("send_followup", "ok")); got != 1 {
		t.Errorf("decision ok = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.DecisionCycles.WithLabelValues("none", "error")); got != 1 {
		t.Errorf("decision error = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.RoutineRuns.WithLabelValues("ok")); got != 2 {
		t.Errorf("routine runs = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.MessagesHandled.WithLabelValues("text", "timeout")); got != 1 {
		t.Errorf("messages = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.LoopRunning); got != 1 {
		t.Errorf("loop running = %v, want 1", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveDecision("none", nil, 1)
	m.ObserveRoutine(nil)
	m.ObserveMessage("text", OutcomeOK, 1)
	m.ObserveTool("x", OutcomeOK)
	m.SetLoopRunning(true)
}

func TestHandler(t *testing.T) {
	m := New()
	m.ObserveTool("send_email", OutcomeError)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `secretary_tool_calls_total{outcome="error",tool="send_email"} 1`) {
		t.Errorf("exposition missing tool counter:\n%s", body)
	}
}
