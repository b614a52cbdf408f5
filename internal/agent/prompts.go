package agent

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dohr-michael/secretary/internal/memory"
)

// ThinkingInstruction is the persona of the agent that decides what to do next.
const ThinkingInstruction = `You are a strategic thinking secretary. You continuously analyze the situation, identify needed actions and make proactive decisions.

You think ahead and anticipate needs. You analyze patterns, remember past interactions and notice when follow-ups are needed, when reminders should be sent and when pending tasks deserve a check.
Think like a human assistant would: consider context, timing and relationships.`

// MonitoringInstruction is the persona of the agent that inspects mail and calendar state.
const MonitoringInstruction = `You are a task monitor. You watch all ongoing tasks, check for responses, track deadlines and identify when intervention is needed. Nothing important slips past you.

Use your tools to check for email responses, unread urgent mail and upcoming calendar events. Report facts, not plans.`

// ExecutionInstruction is the persona of the agent that acts on decisions and user requests.
const ExecutionInstruction = `You are a task execution specialist working as a virtual secretary. You handle emails, calendar events, weather lookups and other actions with precision.

Actually call the tools when an action is required. Report back on the success or failure of every action. Be helpful, professional and proactive.`

// Situation is the context assembled for one decision cycle.
type Situation struct {
	CurrentTime    time.Time         `json:"current_time"`
	PendingTasks   []*memory.Task    `json:"pending_tasks"`
	FollowupNeeded []*memory.Task    `json:"tasks_needing_followup"`
	DueRoutines    []*memory.Routine `json:"due_routines"`
	RecentInsights []memory.Insight  `json:"recent_insights"`
}

// MonitoringBrief asks the monitoring agent to inspect the outside world.
func MonitoringBrief(s Situation) string {
	var b strings.Builder
	b.WriteString("Monitor and check the status of all ongoing tasks.\n\n")
	b.WriteString("Pending tasks:\n")
	b.WriteString(toJSON(s.PendingTasks))
	b.WriteString(`

Actions to take:
1. Check for email responses from people we are waiting to hear from.
2. Review unread emails for urgent matters.
3. Check upcoming calendar events.
4. Identify any tasks that are overdue or need follow-up.

Look for tasks stuck in a waiting state too long, failed tasks that should be retried and patterns of similar requests.
Answer with a list of tasks requiring attention and your recommendations.`)
	return b.String()
}

// ThinkingBrief asks the thinking agent for a decision. The reply must end with
// a fenced JSON block that ParseDecision can read.
func ThinkingBrief(s Situation) string {
	var b strings.Builder
	b.WriteString("Analyze the current situation and decide what actions to take.\n\n")
	b.WriteString("Current context:\n")
	b.WriteString(toJSON(s))
	b.WriteString(`

Consider:
1. Did anyone respond to pending requests? Use the monitoring report above.
2. Are there tasks without a response that need a follow-up?
3. Are there upcoming calendar events that need preparation?
4. Are there new unread emails that need attention?
5. Do patterns suggest routine work that should be done?
6. Is there anything proactive that would be helpful?
7. Should any pending task be escalated or modified?

Explain your reasoning briefly, then end your answer with exactly one fenced JSON block:

` + "```json" + `
{
  "action_needed": true,
  "primary_action": "send_followup | schedule_event | send_email | check_weather | none",
  "priority": "high | medium | low",
  "reasoning": "why this action",
  "follow_up_actions": ["optional next steps"]
}
` + "```")
	return b.String()
}

// ExecutionBrief turns a decision into instructions for the execution agent.
func ExecutionBrief(d *Decision) string {
	return fmt.Sprintf(`Execute the following action: %s

Context: %s
Priority: %s

Use the appropriate tools to complete this action and report the result.`,
		d.PrimaryAction, d.Reasoning, d.Priority)
}

// MessageBrief wraps a user message with what the secretary remembers about them.
func MessageBrief(text string, uc memory.UserContext, pending []*memory.Task) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Process this message from the user: %s\n\n", text)
	b.WriteString("User context:\n")
	b.WriteString("- Recent conversations: ")
	b.WriteString(toJSON(uc.Conversations))
	b.WriteString("\n- Known preferences: ")
	b.WriteString(toJSON(uc.Patterns))
	b.WriteString("\n- Pending tasks: ")
	b.WriteString(toJSON(pending))
	b.WriteString(`

Analyze the message and decide:
1. Is this a greeting, question, request or conversation?
2. Does it require tools (email, calendar, weather)?
3. What is the appropriate response?

If action is needed, use the available tools to complete it.
If it is a question, provide a helpful answer.
If it is a greeting or conversation, respond naturally.`)
	return b.String()
}

func toJSON(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
