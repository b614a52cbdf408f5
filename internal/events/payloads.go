package events

import (
	"encoding/json"
	"time"
)

// EventPayload is the interface all typed payloads implement.
type EventPayload interface {
	EventType() EventType
}

// =============================================================================
// MESSAGING
// =============================================================================

type MessageReceivedPayload struct {
	ChatID  int64  `json:"chat_id"`
	UserID  string `json:"user_id"`
	Text    string `json:"text"`
	Command string `json:"command,omitempty"`
}

func (MessageReceivedPayload) EventType() EventType { return EventMessageReceived }

type MessageRepliedPayload struct {
	ChatID   int64         `json:"chat_id"`
	UserID   string        `json:"user_id"`
	Chunks   int           `json:"chunks"`
	Duration time.Duration `json:"duration"`
	TimedOut bool          `json:"timed_out,omitempty"`
	Error    string        `json:"error,omitempty"`
}

func (MessageRepliedPayload) EventType() EventType { return EventMessageReplied }

// =============================================================================
// DECISIONS
// =============================================================================

type DecisionMadePayload struct {
	ActionNeeded  bool   `json:"action_needed"`
	PrimaryAction string `json:"primary_action"`
	Priority      string `json:"priority"`
	Structured    bool   `json:"structured"`
	Reasoning     string `json:"reasoning,omitempty"`
	Error         string `json:"error,omitempty"`
}

func (DecisionMadePayload) EventType() EventType { return EventDecisionMade }

type TaskCreatedPayload struct {
	TaskID string `json:"task_id"`
	Type   string `json:"type"`
	Status string `json:"status"`
}

func (TaskCreatedPayload) EventType() EventType { return EventTaskCreated }

// =============================================================================
// POLLING LOOP
// =============================================================================

type RoutineExecutedPayload struct {
	RoutineID      string `json:"routine_id"`
	Name           string `json:"name"`
	ExecutionCount int    `json:"execution_count"`
	Error          string `json:"error,omitempty"`
}

func (RoutineExecutedPayload) EventType() EventType { return EventRoutineExecuted }

type CycleFailedPayload struct {
	Error   string        `json:"error"`
	Backoff time.Duration `json:"backoff"`
}

func (CycleFailedPayload) EventType() EventType { return EventCycleFailed }

// =============================================================================
// AGENT INTERNALS
// =============================================================================

type LLMCallPayload struct {
	Phase        string `json:"phase"` // request, response or error
	Model        string `json:"model"`
	MessageCount int    `json:"message_count,omitempty"`
	TokensInput  int    `json:"tokens_input,omitempty"`
	TokensOutput int    `json:"tokens_output,omitempty"`
	Error        string `json:"error,omitempty"`
}

func (LLMCallPayload) EventType() EventType { return EventLLMCall }

// ToolStatus is the lifecycle phase of a tool invocation.
type ToolStatus string

const (
	ToolStatusStarted   ToolStatus = "started"
	ToolStatusCompleted ToolStatus = "completed"
	ToolStatusFailed    ToolStatus = "failed"
)

type ToolCallPayload struct {
	Status    ToolStatus `json:"status"`
	Name      string     `json:"name"`
	Arguments string     `json:"arguments,omitempty"`
	Result    string     `json:"result,omitempty"`
	Error     string     `json:"error,omitempty"`
}

func (ToolCallPayload) EventType() EventType { return EventToolCall }

// =============================================================================
// TYPED EVENT CONSTRUCTORS
// =============================================================================

func NewTypedEvent(source EventSource, payload EventPayload) Event {
	return Event{
		ID:        generateEventID(),
		Type:      payload.EventType(),
		Timestamp: time.Now(),
		Source:    source,
		Payload:   toMap(payload),
	}
}

func toMap(v any) map[string]any {
	var result map[string]any
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil
	}
	return result
}

// =============================================================================
// TYPED PAYLOAD EXTRACTORS
// =============================================================================

// ExtractPayload decodes the event payload into T. It fails when the event
// type does not match T.
func ExtractPayload[T EventPayload](e Event) (T, bool) {
	var result T
	if result.EventType() != e.Type {
		return result, false
	}
	data, err := json.Marshal(e.Payload)
	if err != nil {
		return result, false
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return result, false
	}
	return result, true
}
