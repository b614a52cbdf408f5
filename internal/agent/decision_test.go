package agent

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseDecision_Keywords(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		needed   bool
		action   Action
		priority Priority
	}{
		{"nothing to do", "All quiet. No pending requests.", false, ActionNone, PriorityMedium},
		{"follow up urgent", "Bob has not answered, we should follow up urgently", true, ActionSendFollowup, PriorityHigh},
		{"follow-up hyphen", "Send a follow-up to the vendor asap", true, ActionSendFollowup, PriorityHigh},
		{"reminder wins over schedule", "Send a reminder and schedule a call", true, ActionSendFollowup, PriorityMedium},
		{"schedule", "Schedule a meeting with the team", true, ActionScheduleEvent, PriorityMedium},
		{"calendar beats email", "Check the calendar and email the agenda", true, ActionScheduleEvent, PriorityMedium},
		{"email low", "Send the report when possible", true, ActionSendEmail, PriorityLow},
		{"weather", "Check the weather for tomorrow's trip", true, ActionCheckWeather, PriorityMedium},
		{"trigger without action", "Create a summary of the week", true, ActionNone, PriorityMedium},
		{"high beats low", "Create it now, this is urgent, not low priority", true, ActionNone, PriorityHigh},
		{"priority needs a trigger", "This is urgent", false, ActionNone, PriorityMedium},
		{"case insensitive", "SCHEDULE IMMEDIATELY", true, ActionScheduleEvent, PriorityHigh},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := ParseDecision(tt.text)
			if d.Structured {
				t.Fatal("keyword decision marked structured")
			}
			if d.ActionNeeded != tt.needed || d.PrimaryAction != tt.action || d.Priority != tt.priority {
				t.Errorf("got (%v, %s, %s), want (%v, %s, %s)",
					d.ActionNeeded, d.PrimaryAction, d.Priority, tt.needed, tt.action, tt.priority)
			}
			if d.Reasoning != tt.text {
				t.Errorf("reasoning = %q, want the full text", d.Reasoning)
			}
		})
	}
}

func TestParseDecision_Structured(t *testing.T) {
	text := "Alice is still silent after two days.\n\n```json\n" + `{
  "action_needed": true,
  "primary_action": "send_followup",
  "priority": "HIGH",
  "reasoning": "No answer from alice@example.com",
  "follow_up_actions": ["check again tomorrow"]
}` + "\n```"

	got := ParseDecision(text)
	want := &Decision{
		ActionNeeded:    true,
		PrimaryAction:   ActionSendFollowup,
		Priority:        PriorityHigh,
		Reasoning:       "No answer from alice@example.com",
		FollowUpActions: []string{"check again tomorrow"},
		Structured:      true,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("decision mismatch (-want +got):\n%s", diff)
	}
}

func TestParseDecision_StructuredNoneClearsActionNeeded(t *testing.T) {
	got := ParseDecision("```json\n{\"action_needed\": true, \"primary_action\": \"none\", \"priority\": \"low\", \"reasoning\": \"idle\"}\n```")
	if !got.Structured || got.ActionNeeded || got.PrimaryAction != ActionNone {
		t.Errorf("got %+v", got)
	}
}

func TestParseDecision_StructuredDefaults(t *testing.T) {
	got := ParseDecision("```\n{\"action_needed\": false}\n```")
	if !got.Structured || got.PrimaryAction != ActionNone || got.Priority != PriorityMedium {
		t.Errorf("got %+v", got)
	}
}

func TestParseDecision_LastBlockWins(t *testing.T) {
	text := "Monitor said:\n```json\n{\"primary_action\": \"send_email\", \"action_needed\": true}\n```\n" +
		"Final:\n```json\n{\"primary_action\": \"check_weather\", \"action_needed\": true, \"priority\": \"low\"}\n```"
	got := ParseDecision(text)
	if got.PrimaryAction != ActionCheckWeather || got.Priority != PriorityLow {
		t.Errorf("got %+v", got)
	}
}

func TestParseDecision_InvalidBlockFallsBack(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"unknown action", "We should schedule it.\n```json\n{\"action_needed\": true, \"primary_action\": \"book_flight\"}\n```"},
		{"unknown priority", "We should schedule it.\n```json\n{\"action_needed\": true, \"primary_action\": \"send_email\", \"priority\": \"critical\"}\n```"},
		{"broken json", "We should schedule it.\n```json\n{\"action_needed\": tru\n```"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseDecision(tt.text)
			if got.Structured {
				t.Fatal("invalid block accepted")
			}
			if got.PrimaryAction != ActionScheduleEvent {
				t.Errorf("fallback action = %s, want %s", got.PrimaryAction, ActionScheduleEvent)
			}
		})
	}
}
