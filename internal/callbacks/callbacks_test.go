package callbacks

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
	"github.com/google/go-cmp/cmp"

	"github.com/dohr-michael/secretary/internal/events"
)

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Publish(e events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func TestTruncatePayload_Short(t *testing.T) {
	result := truncatePayload("hello", 100)
	if result != "hello" {
		t.Fatalf("expected %q, got %q", "hello", result)
	}
}

func TestTruncatePayload_Exact(t *testing.T) {
	s := strings.Repeat("a", 50)
	if result := truncatePayload(s, 50); result != s {
		t.Fatalf("expected unchanged string (len %d), got len %d", len(s), len(result))
	}
}

func TestTruncatePayload_Long(t *testing.T) {
	s := strings.Repeat("x", 200)
	result := truncatePayload(s, 100)
	if len(result) != 100+len("... (truncated)") {
		t.Fatalf("expected truncated length %d, got %d", 100+len("... (truncated)"), len(result))
	}
	if !strings.HasSuffix(result, "... (truncated)") {
		t.Fatalf("expected suffix '... (truncated)', got %q", result[len(result)-20:])
	}
}

func TestEventBusHandler_Model(t *testing.T) {
	rec := &recorder{}
	h := NewEventBusHandler(rec, "")
	ctx := context.Background()
	info := &callbacks.RunInfo{Name: "gpt-4o-mini", Component: components.ComponentOfChatModel}

	h.OnStart(ctx, info, &model.CallbackInput{Messages: []*schema.Message{
		schema.SystemMessage("persona"),
		schema.UserMessage("What needs attention?"),
	}})
	h.OnEnd(ctx, info, &model.CallbackOutput{
		Message:    schema.AssistantMessage("nothing", nil),
		TokenUsage: &model.TokenUsage{PromptTokens: 120, CompletionTokens: 8},
	})
	h.OnError(ctx, info, errors.New("rate limited"))

	var got []events.LLMCallPayload
	for _, e := range rec.events {
		if e.Source != events.SourceAgent {
			t.Errorf("source = %q, want %q", e.Source, events.SourceAgent)
		}
		p, ok := events.ExtractPayload[events.LLMCallPayload](e)
		if !ok {
			t.Fatalf("unexpected event %s", e.Type)
		}
		got = append(got, p)
	}
	want := []events.LLMCallPayload{
		{Phase: "request", Model: "gpt-4o-mini", MessageCount: 2},
		{Phase: "response", Model: "gpt-4o-mini", TokensInput: 120, TokensOutput: 8},
		{Phase: "error", Model: "gpt-4o-mini", Error: "rate limited"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("payloads mismatch (-want +got):\n%s", diff)
	}
}

func TestEventBusHandler_Tool(t *testing.T) {
	rec := &recorder{}
	h := NewEventBusHandler(rec, events.SourceEngine)
	ctx := context.Background()
	info := &callbacks.RunInfo{Name: "get_weather", Component: components.ComponentOfTool}

	h.OnStart(ctx, info, &tool.CallbackInput{ArgumentsInJSON: `{"location":"Paris"}`})
	h.OnEnd(ctx, info, &tool.CallbackOutput{Response: "Sunny, 21°C"})
	h.OnError(ctx, info, errors.New("timeout"))

	var got []events.ToolCallPayload
	for _, e := range rec.events {
		p, ok := events.ExtractPayload[events.ToolCallPayload](e)
		if !ok {
			t.Fatalf("unexpected event %s", e.Type)
		}
		got = append(got, p)
	}
	want := []events.ToolCallPayload{
		{Status: events.ToolStatusStarted, Name: "get_weather", Arguments: `{"location":"Paris"}`},
		{Status: events.ToolStatusCompleted, Name: "get_weather", Result: "Sunny, 21°C"},
		{Status: events.ToolStatusFailed, Name: "get_weather", Error: "timeout"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("payloads mismatch (-want +got):\n%s", diff)
	}
}
