package agent

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Action is the category of work a decision asks for.
type Action string

const (
	ActionNone          Action = "none"
	ActionSendFollowup  Action = "send_followup"
	ActionScheduleEvent Action = "schedule_event"
	ActionSendEmail     Action = "send_email"
	ActionCheckWeather  Action = "check_weather"
)

func (a Action) valid() bool {
	switch a {
	case ActionNone, ActionSendFollowup, ActionScheduleEvent, ActionSendEmail, ActionCheckWeather:
		return true
	}
	return false
}

// Priority ranks a decision.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

func (p Priority) valid() bool {
	return p == PriorityHigh || p == PriorityMedium || p == PriorityLow
}

// Decision is the classified outcome of a deliberation.
type Decision struct {
	ActionNeeded    bool     `json:"action_needed"`
	PrimaryAction   Action   `json:"primary_action"`
	Priority        Priority `json:"priority"`
	Reasoning       string   `json:"reasoning"`
	FollowUpActions []string `json:"follow_up_actions,omitempty"`

	// Structured is true when the decision came from the JSON block rather
	// than the keyword classifier.
	Structured bool   `json:"-"`
	Result     string `json:"-"`
	Error      string `json:"-"`
}

var errInvalidDecision = errors.New("invalid decision")

var fencedJSONRe = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")

// Ordered keyword tables. The first match wins.
var (
	actionTriggers = []string{"send", "schedule", "remind", "follow up", "check", "create"}

	actionRules = []struct {
		action Action
		match  func(string) bool
	}{
		{ActionSendFollowup, containsAny("follow up", "follow-up", "reminder")},
		{ActionScheduleEvent, containsAny("schedule", "calendar")},
		{ActionSendEmail, containsAny("email", "send")},
		{ActionCheckWeather, func(s string) bool {
			return strings.Contains(s, "check") && strings.Contains(s, "weather")
		}},
	}

	priorityRules = []struct {
		priority Priority
		match    func(string) bool
	}{
		{PriorityHigh, containsAny("urgent", "immediately", "asap")},
		{PriorityLow, containsAny("low priority", "when possible")},
	}
)

func containsAny(words ...string) func(string) bool {
	return func(s string) bool {
		for _, w := range words {
			if strings.Contains(s, w) {
				return true
			}
		}
		return false
	}
}

// ParseDecision classifies deliberation output. A valid fenced JSON decision
// wins; anything else goes through the keyword classifier.
func ParseDecision(text string) *Decision {
	if d, err := parseStructured(text); err == nil {
		return d
	}
	return classify(text)
}

// parseStructured reads the last fenced JSON block of text.
func parseStructured(text string) (*Decision, error) {
	matches := fencedJSONRe.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil, fmt.Errorf("%w: no json block", errInvalidDecision)
	}
	raw := matches[len(matches)-1][1]

	var d Decision
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		return nil, fmt.Errorf("%w: %v", errInvalidDecision, err)
	}
	d.PrimaryAction = Action(strings.ToLower(strings.TrimSpace(string(d.PrimaryAction))))
	d.Priority = Priority(strings.ToLower(strings.TrimSpace(string(d.Priority))))
	if d.PrimaryAction == "" {
		d.PrimaryAction = ActionNone
	}
	if d.Priority == "" {
		d.Priority = PriorityMedium
	}
	if !d.PrimaryAction.valid() {
		return nil, fmt.Errorf("%w: unknown action %q", errInvalidDecision, d.PrimaryAction)
	}
	if !d.Priority.valid() {
		return nil, fmt.Errorf("%w: unknown priority %q", errInvalidDecision, d.Priority)
	}
	if d.PrimaryAction == ActionNone {
		d.ActionNeeded = false
	}
	d.Structured = true
	return &d, nil
}

// classify is the keyword fallback used when the model did not produce a
// usable JSON block.
func classify(text string) *Decision {
	lower := strings.ToLower(text)
	d := &Decision{
		PrimaryAction: ActionNone,
		Priority:      PriorityMedium,
		Reasoning:     text,
	}

	if !containsAny(actionTriggers...)(lower) {
		return d
	}
	d.ActionNeeded = true

	for _, r := range actionRules {
		if r.match(lower) {
			d.PrimaryAction = r.action
			break
		}
	}
	for _, r := range priorityRules {
		if r.match(lower) {
			d.Priority = r.priority
			break
		}
	}
	return d
}
