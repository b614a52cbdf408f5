package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/dohr-michael/secretary/internal/events"
	"github.com/dohr-michael/secretary/internal/memory"
	"github.com/dohr-michael/secretary/internal/metrics"
)

const (
	// insightWindow is how many recent insights feed a decision cycle.
	insightWindow = 5
	// conversationWindow is how many past exchanges accompany a user message.
	conversationWindow = 10
)

// ApologyFormat is the reply sent when a message could not be processed.
const ApologyFormat = "I apologize, but I encountered an error processing your message: %v\n\nPlease try rephrasing your request or type /help for available commands."

// EngineConfig wires an Engine.
type EngineConfig struct {
	Crew           Crew
	Store          *memory.Store
	Bus            events.Publisher // optional
	Metrics        *metrics.Metrics // optional
	FollowupHours  int
	EnableRoutines bool
	EnableLearning bool
	Clock          func() time.Time // optional, defaults to time.Now
}

// Engine is the decision engine: it decides on its own what to do next and
// answers user messages.
type Engine struct {
	crew     Crew
	store    *memory.Store
	bus      events.Publisher
	metrics  *metrics.Metrics
	followup float64
	routines bool
	learning bool
	now      func() time.Time
}

// NewEngine creates a decision engine.
func NewEngine(cfg EngineConfig) *Engine {
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	hours := cfg.FollowupHours
	if hours <= 0 {
		hours = 24
	}
	return &Engine{
		crew:     cfg.Crew,
		store:    cfg.Store,
		bus:      cfg.Bus,
		metrics:  cfg.Metrics,
		followup: float64(hours),
		routines: cfg.EnableRoutines,
		learning: cfg.EnableLearning,
		now:      now,
	}
}

// Store returns the memory store the engine works on.
func (e *Engine) Store() *memory.Store { return e.store }

// FollowupHours returns the default follow-up threshold.
func (e *Engine) FollowupHours() float64 { return e.followup }

// RoutinesEnabled reports whether due routines are part of the context.
func (e *Engine) RoutinesEnabled() bool { return e.routines }

// Situation assembles the context of a decision cycle.
func (e *Engine) Situation() Situation {
	s := Situation{
		CurrentTime:    e.now(),
		PendingTasks:   e.store.PendingTasks(),
		FollowupNeeded: e.store.FollowupTasks(e.followup),
		DueRoutines:    []*memory.Routine{},
		RecentInsights: e.store.RecentInsights(insightWindow),
	}
	if e.routines {
		s.DueRoutines = e.store.DueRoutines()
	}
	return s
}

// ThinkAndAct runs one decision cycle: deliberate, classify and, when an
// action is needed, execute it and record the outcome as a task. Only a
// failed deliberation is returned as an error; execution failures are
// recorded on the decision and as a failed task.
func (e *Engine) ThinkAndAct(ctx context.Context) (*Decision, error) {
	start := time.Now()
	situation := e.Situation()

	slog.Debug("engine: deliberating",
		"pending", len(situation.PendingTasks),
		"followups", len(situation.FollowupNeeded),
		"routines", len(situation.DueRoutines))

	answer, err := e.crew.Deliberate(ctx, Brief{
		Monitoring: MonitoringBrief(situation),
		Thinking:   ThinkingBrief(situation),
	})
	if err != nil {
		d := &Decision{PrimaryAction: ActionNone, Priority: PriorityMedium, Error: err.Error()}
		e.publishDecision(d)
		e.metrics.ObserveDecision(string(ActionNone), err, time.Since(start).Seconds())
		return d, fmt.Errorf("engine: deliberate: %w", err)
	}

	d := ParseDecision(answer)
	slog.Info("engine: decision",
		"action_needed", d.ActionNeeded,
		"action", d.PrimaryAction,
		"priority", d.Priority,
		"structured", d.Structured)

	var execErr error
	if d.ActionNeeded && d.PrimaryAction != ActionNone {
		execErr = e.execute(ctx, d)
		if execErr == nil && d.PrimaryAction == ActionSendFollowup {
			e.touchFollowups(situation.FollowupNeeded)
		}
	}

	e.publishDecision(d)
	e.metrics.ObserveDecision(string(d.PrimaryAction), execErr, time.Since(start).Seconds())
	return d, nil
}

// execute hands the decision to the execution agent and records the outcome.
func (e *Engine) execute(ctx context.Context, d *Decision) error {
	result, err := e.crew.Execute(ctx, ExecutionBrief(d))

	status := memory.TaskCompleted
	payload := map[string]string{
		"action":    string(d.PrimaryAction),
		"priority":  string(d.Priority),
		"reasoning": d.Reasoning,
	}
	if err != nil {
		status = memory.TaskFailed
		d.Error = err.Error()
		payload["error"] = err.Error()
		slog.Warn("engine: execution failed", "action", d.PrimaryAction, "error", err)
	} else {
		d.Result = result
		payload["result"] = result
	}
	if len(d.FollowUpActions) > 0 {
		payload["follow_up_actions"] = strings.Join(d.FollowUpActions, "; ")
	}

	task, addErr := e.store.AddTask(memory.Task{
		Type:    taskTypeFor(d.PrimaryAction),
		Status:  status,
		Payload: payload,
	})
	if addErr != nil {
		slog.Warn("engine: recording task failed", "error", addErr)
	} else {
		e.publish(events.NewTypedEvent(events.SourceEngine, events.TaskCreatedPayload{
			TaskID: task.ID,
			Type:   string(task.Type),
			Status: string(task.Status),
		}))
	}
	return err
}

func (e *Engine) touchFollowups(tasks []*memory.Task) {
	for _, t := range tasks {
		if _, err := e.store.TouchTask(t.ID); err != nil && !errors.Is(err, memory.ErrTaskNotFound) {
			slog.Warn("engine: touching follow-up task failed", "task", t.ID, "error", err)
		}
	}
}

func taskTypeFor(a Action) memory.TaskType {
	switch a {
	case ActionSendFollowup:
		return memory.TaskFollowUp
	case ActionScheduleEvent:
		return memory.TaskCalendar
	case ActionSendEmail:
		return memory.TaskEmail
	case ActionCheckWeather:
		return memory.TaskWeatherCheck
	default:
		return memory.TaskCustom
	}
}

// ProcessMessage answers a user message with the execution agent. On failure
// it returns the apology text together with the error.
func (e *Engine) ProcessMessage(ctx context.Context, userID, text string) (string, error) {
	uc := e.store.UserContext(userID, conversationWindow)
	brief := MessageBrief(text, uc, e.store.PendingTasks())

	response, err := e.crew.Execute(ctx, brief)
	if err != nil {
		slog.Warn("engine: message failed", "user", userID, "error", err)
		return fmt.Sprintf(ApologyFormat, err), fmt.Errorf("engine: process message: %w", err)
	}

	if err := e.store.AddConversation(userID, text, response); err != nil {
		slog.Warn("engine: storing conversation failed", "user", userID, "error", err)
	}
	e.learn(userID, text)
	return response, nil
}

// learn records simple time-of-request patterns from a user message.
func (e *Engine) learn(userID, text string) {
	if !e.learning {
		return
	}
	now := e.now()
	hour := strconv.Itoa(now.Hour())
	lower := strings.ToLower(text)

	if strings.Contains(lower, "meeting") || strings.Contains(lower, "schedule") {
		e.learnPattern(userID, "scheduling_preferences", map[string]string{
			"time_of_request": hour,
			"day_of_week":     now.Weekday().String(),
			"request_type":    "scheduling",
		})
	}
	if strings.Contains(lower, "email") {
		e.learnPattern(userID, "communication_preferences", map[string]string{
			"time_of_request": hour,
			"request_type":    "email",
		})
	}
	if h := now.Hour(); h >= 9 && h <= 10 {
		if err := e.store.AddInsight(fmt.Sprintf("User %s often makes requests in the morning", userID), "user_behavior"); err != nil {
			slog.Warn("engine: storing insight failed", "error", err)
		}
	}
}

func (e *Engine) learnPattern(userID, category string, data map[string]string) {
	if err := e.store.LearnPattern(userID, category, data); err != nil {
		slog.Warn("engine: storing pattern failed", "category", category, "error", err)
	}
}

func (e *Engine) publishDecision(d *Decision) {
	e.publish(events.NewTypedEvent(events.SourceEngine, events.DecisionMadePayload{
		ActionNeeded:  d.ActionNeeded,
		PrimaryAction: string(d.PrimaryAction),
		Priority:      string(d.Priority),
		Structured:    d.Structured,
		Reasoning:     d.Reasoning,
		Error:         d.Error,
	}))
}

func (e *Engine) publish(ev events.Event) {
	if e.bus != nil {
		e.bus.Publish(ev)
	}
}
