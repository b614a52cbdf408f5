package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dohr-michael/secretary/internal/metrics"
)

const (
	maxPendingShown  = 10
	maxInsightsShown = 5
)

const helpText = `📚 *Available Commands*

*Basic Commands:*
/start - Activate the secretary
/help - Show this help message
/status - Check autonomous thinking status

*Task Management:*
/pending - View all pending tasks
/routines - List active routines
/add\_routine - Add a new routine task

*Intelligence:*
/insights - View learned patterns and insights

*Example Requests:*
• "Email John about the quarterly report and follow up if he doesn't respond in 2 days"
• "Schedule a meeting tomorrow at 3 PM and remind me to prepare 1 hour before"
• "Check the weather every morning at 7 AM"
• "Send weekly status reports every Friday"

I understand context and will act accordingly. If you ask me to send an email and the recipient doesn't respond, I'll follow up automatically.`

const addRoutineText = `To add a routine, send a message in this format:

"Create routine: [name] | [frequency] | [action]"

*Frequency options:* hourly, daily, weekly

*Examples:*
• "Create routine: Morning Brief | daily | Check weather and list today's calendar events"
• "Create routine: Team Update | weekly | Send status report to team@company.com"
• "Create routine: Inbox Check | hourly | Check for urgent emails"`

func (b *Bot) handleCommand(ctx context.Context, u Update) {
	var text string
	switch u.Command {
	case "start":
		text = b.start(ctx, u)
	case "help":
		text = helpText
	case "status":
		text = b.statusText()
	case "pending":
		text = b.pendingText()
	case "insights":
		text = b.insightsText()
	case "routines":
		text = b.routinesText()
	case "add_routine":
		text = addRoutineText
	default:
		b.reply(ctx, u.ChatID, UnknownReply, false)
		b.metrics.ObserveMessage("command", metrics.OutcomeError, 0)
		return
	}
	b.reply(ctx, u.ChatID, text, true)
	b.metrics.ObserveMessage("command", metrics.OutcomeOK, 0)
}

// start registers the chat as admin and starts the autonomous loop.
func (b *Bot) start(ctx context.Context, u Update) string {
	b.AddAdmin(u.ChatID)
	if l := b.currentLoop(); l != nil && !l.Running() {
		slog.Info("bot: starting autonomous loop", "chat", u.ChatID)
		l.Start(ctx)
	}
	return fmt.Sprintf(`🤖 *Autonomous Virtual Secretary Activated*

I'm your intelligent secretary that works continuously in the background. I can:

*Core Capabilities:*
📧 Send and monitor emails
📅 Manage your calendar
🔄 Send follow-up reminders automatically
🧠 Learn from patterns and act proactively
⏰ Execute routine tasks
🌤️ Provide information when needed

*Autonomous Features:*
• I continuously think about what needs to be done
• I send follow-ups when responses are overdue
• I prepare for upcoming meetings
• I learn your patterns and preferences

*Commands:*
/help - Show available commands
/status - View my current thinking status
/routines - Manage automated routines
/insights - See what I've learned
/pending - View pending tasks

Just talk to me naturally, and I'll handle the rest!

_I'm now running in autonomous mode and will check for tasks every %s._`, minutes(b.interval))
}

func (b *Bot) statusText() string {
	pending := b.store.PendingTasks()
	followups := b.store.FollowupTasks(b.followup)
	due := 0
	if b.routines {
		due = len(b.store.DueRoutines())
	}
	stats := b.store.Stats()

	thinking, lastCheck := "Inactive", "Never"
	if l := b.currentLoop(); l != nil {
		if l.Running() {
			thinking = "Active"
		}
		if last := l.LastCycle(); !last.IsZero() {
			lastCheck = last.In(b.now().Location()).Format("15:04")
		}
	}

	return fmt.Sprintf(`📊 *Autonomous Secretary Status*

🕐 *Current Time:* %s
🧠 *Thinking Status:* %s
⏱️ *Last Check:* %s
🔄 *Check Interval:* Every %s

*Active Tasks:*
• Pending: %d
• Awaiting Response: %d
• Due Routines: %d

*Memory Stats:*
• Total Tasks: %d
• Learned Patterns: %d
• Insights: %d

I'm continuously monitoring and will act when needed.`,
		b.now().Format("2006-01-02 15:04"), thinking, lastCheck, minutes(b.interval),
		len(pending), len(followups), due,
		stats.Tasks, stats.PatternUsers, stats.Insights)
}

func (b *Bot) pendingText() string {
	tasks := b.store.PendingTasks()
	if len(tasks) == 0 {
		return "✅ No pending tasks at the moment!"
	}
	var sb strings.Builder
	sb.WriteString("📋 *Pending Tasks:*\n\n")
	for _, t := range tasks[:min(len(tasks), maxPendingShown)] {
		fmt.Fprintf(&sb, "• *Type:* %s\n", EscapeMarkdown(string(t.Type)))
		fmt.Fprintf(&sb, "  *Status:* %s\n", EscapeMarkdown(string(t.Status)))
		fmt.Fprintf(&sb, "  *Created:* %s\n\n", t.CreatedAt.Format("2006-01-02T15:04"))
	}
	return sb.String()
}

func (b *Bot) insightsText() string {
	insights := b.store.RecentInsights(maxInsightsShown)
	if len(insights) == 0 {
		return "No insights gathered yet. I'll learn as we interact!"
	}
	var sb strings.Builder
	sb.WriteString("🧠 *Recent Insights:*\n\n")
	for _, in := range insights {
		fmt.Fprintf(&sb, "• %s\n", EscapeMarkdown(in.Insight))
		fmt.Fprintf(&sb, "  _%s_\n\n", in.Timestamp.Format("2006-01-02T15:04"))
	}
	return sb.String()
}

func (b *Bot) routinesText() string {
	routines := b.store.Routines()
	if len(routines) == 0 {
		return "No routines set up yet.\n\nUse /add\\_routine to create one!"
	}
	var sb strings.Builder
	sb.WriteString("⏰ *Active Routines:*\n\n")
	for _, r := range routines {
		last := "Never"
		if r.LastExecuted != nil {
			last = r.LastExecuted.Format("2006-01-02T15:04")
		}
		name := EscapeMarkdown(r.Name)
		if !r.Enabled {
			name += " (disabled)"
		}
		fmt.Fprintf(&sb, "• *%s*\n", name)
		fmt.Fprintf(&sb, "  Frequency: %s\n", r.Frequency)
		fmt.Fprintf(&sb, "  Last Run: %s\n", last)
		fmt.Fprintf(&sb, "  Executions: %d\n\n", r.ExecutionCount)
	}
	return sb.String()
}

func minutes(d time.Duration) string {
	m := int(d.Round(time.Minute) / time.Minute)
	if m == 1 {
		return "1 minute"
	}
	return fmt.Sprintf("%d minutes", m)
}
