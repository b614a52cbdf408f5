package tools

import (
	"context"
	"log/slog"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/dohr-michael/secretary/internal/config"
	"github.com/dohr-michael/secretary/internal/metrics"
)

// MonitoringToolNames are the read-only tools given to the monitoring role.
var MonitoringToolNames = []string{NameReadEmail, NameCheckEmailResponses, NameListCalendarEvents}

// Set holds every collaborator tool, keyed by name, in registration order.
type Set struct {
	order []string
	tools map[string]tool.InvokableTool
}

// NewSet builds the six collaborator tools from configuration. Each tool is
// wrapped to log and count its invocations.
func NewSet(ctx context.Context, cfg config.ToolsConfig, m *metrics.Metrics, opts ...GoogleOption) (*Set, error) {
	g := NewGoogle(cfg.Google, opts...)
	weather, err := NewWeatherTool(ctx, cfg.Weather)
	if err != nil {
		return nil, err
	}
	return NewSetFrom(m,
		NewSendEmailTool(g),
		NewReadEmailTool(g),
		NewCheckEmailResponsesTool(g),
		NewCreateCalendarEventTool(g),
		NewListCalendarEventsTool(g),
		weather,
	), nil
}

// NewSetFrom assembles a Set from already built tools.
func NewSetFrom(m *metrics.Metrics, ts ...tool.InvokableTool) *Set {
	s := &Set{tools: make(map[string]tool.InvokableTool, len(ts))}
	for _, t := range ts {
		info, err := t.Info(context.Background())
		if err != nil {
			slog.Warn("tools: skip tool without info", "error", err)
			continue
		}
		if _, dup := s.tools[info.Name]; !dup {
			s.order = append(s.order, info.Name)
		}
		s.tools[info.Name] = &instrumented{inner: t, name: info.Name, metrics: m}
	}
	return s
}

// Names lists the registered tool names in registration order.
func (s *Set) Names() []string {
	return append([]string(nil), s.order...)
}

// Get returns the named tool.
func (s *Set) Get(name string) (tool.InvokableTool, bool) {
	t, ok := s.tools[name]
	return t, ok
}

// Execution returns every tool, for the agent that carries out actions.
func (s *Set) Execution() []tool.BaseTool {
	return s.subset(s.order)
}

// Monitoring returns the read-only tools.
func (s *Set) Monitoring() []tool.BaseTool {
	return s.subset(MonitoringToolNames)
}

func (s *Set) subset(names []string) []tool.BaseTool {
	out := make([]tool.BaseTool, 0, len(names))
	for _, n := range names {
		if t, ok := s.tools[n]; ok {
			out = append(out, t)
		}
	}
	return out
}

// instrumented logs and counts tool invocations.
type instrumented struct {
	inner   tool.InvokableTool
	name    string
	metrics *metrics.Metrics
}

func (t *instrumented) Info(ctx context.Context) (*schema.ToolInfo, error) {
	return t.inner.Info(ctx)
}

func (t *instrumented) InvokableRun(ctx context.Context, argumentsInJSON string, opts ...tool.Option) (string, error) {
	slog.Debug("tools: invoke", "tool", t.name, "args", argumentsInJSON)
	out, err := t.inner.InvokableRun(ctx, argumentsInJSON, opts...)
	switch {
	case err != nil:
		slog.Warn("tools: invalid call", "tool", t.name, "error", err)
		t.metrics.ObserveTool(t.name, metrics.OutcomeError)
	case IsError(out):
		slog.Warn("tools: collaborator failed", "tool", t.name, "result", out)
		t.metrics.ObserveTool(t.name, metrics.OutcomeError)
	default:
		t.metrics.ObserveTool(t.name, metrics.OutcomeOK)
	}
	return out, err
}
