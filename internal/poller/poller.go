// Package poller runs the autonomous decision loop: it wakes on a short tick,
// runs a decision cycle when the thinking interval has elapsed and executes
// due routines.
package poller

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dohr-michael/secretary/internal/agent"
	"github.com/dohr-michael/secretary/internal/events"
	"github.com/dohr-michael/secretary/internal/heartbeat"
	"github.com/dohr-michael/secretary/internal/memory"
	"github.com/dohr-michael/secretary/internal/metrics"
)

const (
	DefaultInterval     = 3 * time.Minute
	DefaultTick         = 30 * time.Second
	DefaultBackoff      = 60 * time.Second
	DefaultInitialDelay = 10 * time.Second

	// reasoningPreview bounds the reasoning quoted in admin notifications.
	reasoningPreview = 200
)

// Decider is the part of the decision engine the loop drives.
type Decider interface {
	ThinkAndAct(ctx context.Context) (*agent.Decision, error)
	ProcessMessage(ctx context.Context, userID, text string) (string, error)
}

// Notifier delivers loop output to chats.
type Notifier interface {
	AdminChats() []int64
	Send(ctx context.Context, chatID int64, text string) error
}

// Config wires a Loop.
type Config struct {
	Engine   Decider
	Store    *memory.Store
	Notifier Notifier         // optional
	Bus      events.Publisher // optional
	Metrics  *metrics.Metrics // optional

	Interval       time.Duration // decision interval
	Tick           time.Duration // wake-up period
	Backoff        time.Duration // wait after a failed cycle
	InitialDelay   time.Duration
	EnableRoutines bool

	// HeartbeatPath enables a liveness file while the loop runs.
	HeartbeatPath string
	Clock         func() time.Time
}

// Loop is the polling loop. Cycles never overlap.
type Loop struct {
	engine   Decider
	store    *memory.Store
	notifier Notifier
	bus      events.Publisher
	metrics  *metrics.Metrics

	interval     time.Duration
	tick         time.Duration
	backoff      time.Duration
	initialDelay time.Duration
	routines     bool
	now          func() time.Time
	heartbeat    *heartbeat.Writer

	cycleMu sync.Mutex // serializes RunCycle

	mu        sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
	lastCycle time.Time
	cycles    int64
}

// New creates a stopped loop.
func New(cfg Config) *Loop {
	l := &Loop{
		engine:       cfg.Engine,
		store:        cfg.Store,
		notifier:     cfg.Notifier,
		bus:          cfg.Bus,
		metrics:      cfg.Metrics,
		interval:     orDefault(cfg.Interval, DefaultInterval),
		tick:         orDefault(cfg.Tick, DefaultTick),
		backoff:      orDefault(cfg.Backoff, DefaultBackoff),
		initialDelay: cfg.InitialDelay,
		routines:     cfg.EnableRoutines,
		now:          cfg.Clock,
	}
	if l.now == nil {
		l.now = time.Now
	}
	if l.initialDelay < 0 {
		l.initialDelay = 0
	}
	if cfg.HeartbeatPath != "" {
		l.heartbeat = heartbeat.NewWriter(cfg.HeartbeatPath, heartbeat.WithSource(l))
	}
	return l
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

// SetNotifier attaches the notifier after construction, when the chat
// front-end itself needs the loop.
func (l *Loop) SetNotifier(n Notifier) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.notifier = n
}

// Interval returns the decision interval.
func (l *Loop) Interval() time.Duration { return l.interval }

// Start launches the loop in the background. Calling Start on a running loop
// is a no-op.
func (l *Loop) Start(ctx context.Context) {
	l.mu.Lock()
	if l.cancel != nil {
		l.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	done := make(chan struct{})
	l.done = done
	l.mu.Unlock()

	// The heartbeat reads LastCycle, so it starts outside l.mu.
	if l.heartbeat != nil {
		l.heartbeat.Start()
	}
	l.metrics.SetLoopRunning(true)
	slog.Info("poller: started", "interval", l.interval, "tick", l.tick, "initial_delay", l.initialDelay)

	go l.run(ctx, done)
}

// Stop cancels the loop and waits for the in-flight cycle to return.
func (l *Loop) Stop() {
	l.mu.Lock()
	cancel, done := l.cancel, l.done
	l.cancel = nil
	l.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done

	if l.heartbeat != nil {
		l.heartbeat.Stop()
	}
	l.metrics.SetLoopRunning(false)
	slog.Info("poller: stopped")
}

// Running reports whether the loop is started.
func (l *Loop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cancel != nil
}

// LastCycle returns the completion time of the last successful cycle.
func (l *Loop) LastCycle() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastCycle
}

// Cycles returns the number of successful cycles.
func (l *Loop) Cycles() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cycles
}

func (l *Loop) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer l.exited(done)

	if !sleep(ctx, l.initialDelay) {
		return
	}
	for {
		wait := l.tick
		if l.due() {
			if err := l.RunCycle(ctx); err != nil {
				if ctx.Err() != nil {
					return
				}
				slog.Error("poller: cycle failed", "error", err, "backoff", l.backoff)
				l.publish(events.NewTypedEvent(events.SourcePoller, events.CycleFailedPayload{
					Error:   err.Error(),
					Backoff: l.backoff,
				}))
				wait = l.backoff
			}
		}
		if !sleep(ctx, wait) {
			return
		}
	}
}

// exited clears the running state when the loop ends on its own, for
// instance after its parent context is cancelled. Stop has already cleared
// it when it owns the shutdown.
func (l *Loop) exited(done chan struct{}) {
	l.mu.Lock()
	ours := l.cancel != nil && l.done == done
	if ours {
		l.cancel()
		l.cancel = nil
	}
	l.mu.Unlock()
	if !ours {
		return
	}
	if l.heartbeat != nil {
		l.heartbeat.Stop()
	}
	l.metrics.SetLoopRunning(false)
	slog.Info("poller: stopped", "reason", "context done")
}

// due reports whether the decision interval has elapsed since the last
// successful cycle. A failed cycle leaves the loop due.
func (l *Loop) due() bool {
	last := l.LastCycle()
	return last.IsZero() || l.now().Sub(last) >= l.interval
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// RunCycle runs one decision cycle followed by the due routines. It is safe
// to call while the loop runs; cycles are serialized.
func (l *Loop) RunCycle(ctx context.Context) error {
	l.cycleMu.Lock()
	defer l.cycleMu.Unlock()

	slog.Debug("poller: cycle started")
	decision, thinkErr := l.engine.ThinkAndAct(ctx)
	if thinkErr == nil && decision.ActionNeeded && decision.Priority == agent.PriorityHigh {
		l.notifyAdmins(ctx, decision)
	}

	// Due routines run even when deliberation failed.
	if l.routines {
		for _, r := range l.store.DueRoutines() {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			l.runRoutine(ctx, r)
		}
	}
	if thinkErr != nil {
		return fmt.Errorf("deliberation: %w", thinkErr)
	}

	l.mu.Lock()
	l.lastCycle = l.now()
	l.cycles++
	l.mu.Unlock()

	if l.heartbeat != nil {
		l.heartbeat.Touch()
	}
	slog.Info("poller: cycle finished", "action", decision.PrimaryAction, "priority", decision.Priority)
	return nil
}

// ActionNotification renders the admin notice for a high-priority decision.
func ActionNotification(d *agent.Decision) string {
	reasoning := d.Reasoning
	if reasoning == "" {
		reasoning = "No reasoning provided"
	}
	if r := []rune(reasoning); len(r) > reasoningPreview {
		reasoning = string(r[:reasoningPreview])
	}
	return fmt.Sprintf("🚨 *Autonomous Action Taken*\n\n*Action:* %s\n*Priority:* %s\n*Reasoning:* %s...",
		d.PrimaryAction, d.Priority, reasoning)
}

func (l *Loop) notifyAdmins(ctx context.Context, d *agent.Decision) {
	n := l.currentNotifier()
	if n == nil {
		return
	}
	text := ActionNotification(d)
	for _, chatID := range n.AdminChats() {
		if err := n.Send(ctx, chatID, text); err != nil {
			slog.Warn("poller: admin notification failed", "chat", chatID, "error", err)
		}
	}
}

func (l *Loop) runRoutine(ctx context.Context, r *memory.Routine) {
	result, err := l.engine.ProcessMessage(ctx, "routine_"+r.ID, r.Action)
	l.metrics.ObserveRoutine(err)
	if err != nil {
		slog.Warn("poller: routine failed", "routine", r.ID, "name", r.Name, "error", err)
		l.publish(events.NewTypedEvent(events.SourcePoller, events.RoutineExecutedPayload{
			RoutineID:      r.ID,
			Name:           r.Name,
			ExecutionCount: r.ExecutionCount,
			Error:          err.Error(),
		}))
		return
	}

	updated, err := l.store.RecordRoutineExecution(r.ID)
	if err != nil {
		slog.Warn("poller: recording routine execution failed", "routine", r.ID, "error", err)
		return
	}
	slog.Info("poller: routine executed", "routine", r.ID, "name", r.Name, "count", updated.ExecutionCount)
	l.publish(events.NewTypedEvent(events.SourcePoller, events.RoutineExecutedPayload{
		RoutineID:      r.ID,
		Name:           r.Name,
		ExecutionCount: updated.ExecutionCount,
	}))

	if n := l.currentNotifier(); n != nil && r.ChatID != 0 {
		text := fmt.Sprintf("⏰ *Routine: %s*\n\n%s", r.Name, result)
		if err := n.Send(ctx, r.ChatID, text); err != nil {
			slog.Warn("poller: routine delivery failed", "routine", r.ID, "chat", r.ChatID, "error", err)
		}
	}
}

func (l *Loop) currentNotifier() Notifier {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.notifier
}

func (l *Loop) publish(e events.Event) {
	if l.bus != nil {
		l.bus.Publish(e)
	}
}
