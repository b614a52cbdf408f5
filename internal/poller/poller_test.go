package poller

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/dohr-michael/secretary/internal/agent"
	"github.com/dohr-michael/secretary/internal/events"
	"github.com/dohr-michael/secretary/internal/memory"
)

type fakeEngine struct {
	mu        sync.Mutex
	decision  *agent.Decision
	thinkErr  error
	reply     string
	replyErr  error
	thinks    int
	processed []string // userID + "|" + text
}

func (e *fakeEngine) ThinkAndAct(ctx context.Context) (*agent.Decision, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.thinks++
	if e.thinkErr != nil {
		return nil, e.thinkErr
	}
	if e.decision == nil {
		return &agent.Decision{PrimaryAction: agent.ActionNone, Priority: agent.PriorityMedium}, nil
	}
	d := *e.decision
	return &d, nil
}

func (e *fakeEngine) ProcessMessage(_ context.Context, userID, text string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.processed = append(e.processed, userID+"|"+text)
	return e.reply, e.replyErr
}

func (e *fakeEngine) thinkCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.thinks
}

type sent struct {
	chatID int64
	text   string
}

type fakeNotifier struct {
	mu     sync.Mutex
	admins []int64
	sent   []sent
}

func (n *fakeNotifier) AdminChats() []int64 { return n.admins }

func (n *fakeNotifier) Send(_ context.Context, chatID int64, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sent{chatID, text})
	return nil
}

func (n *fakeNotifier) messages() []sent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]sent(nil), n.sent...)
}

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Publish(e events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) count(t events.EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

type fixture struct {
	loop     *Loop
	engine   *fakeEngine
	notifier *fakeNotifier
	store    *memory.Store
	bus      *recorder
}

func newFixture(t *testing.T, mutate func(*Config)) *fixture {
	t.Helper()
	store, err := memory.Open(filepath.Join(t.TempDir(), "memory.json"))
	if err != nil {
		t.Fatal(err)
	}
	f := &fixture{
		engine:   &fakeEngine{},
		notifier: &fakeNotifier{admins: []int64{100, 200}},
		store:    store,
		bus:      &recorder{},
	}
	cfg := Config{
		Engine:         f.engine,
		Store:          store,
		Notifier:       f.notifier,
		Bus:            f.bus,
		EnableRoutines: true,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	f.loop = New(cfg)
	return f
}

func TestRunCycle_HighPriorityNotifiesAdmins(t *testing.T) {
	f := newFixture(t, nil)
	f.engine.decision = &agent.Decision{
		ActionNeeded:  true,
		PrimaryAction: agent.ActionSendFollowup,
		Priority:      agent.PriorityHigh,
		Reasoning:     strings.Repeat("r", 300),
	}

	if err := f.loop.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}

	msgs := f.notifier.messages()
	if len(msgs) != 2 || msgs[0].chatID != 100 || msgs[1].chatID != 200 {
		t.Fatalf("notifications = %+v", msgs)
	}
	text := msgs[0].text
	if !strings.Contains(text, "Autonomous Action Taken") || !strings.Contains(text, "send_followup") {
		t.Errorf("notification = %q", text)
	}
	if !strings.Contains(text, strings.Repeat("r", 200)+"...") || strings.Contains(text, strings.Repeat("r", 201)) {
		t.Error("reasoning should be cut at 200 characters")
	}
	if f.loop.Cycles() != 1 || f.loop.LastCycle().IsZero() {
		t.Errorf("cycles = %d, last = %v", f.loop.Cycles(), f.loop.LastCycle())
	}
}

func TestRunCycle_OtherPrioritiesStayQuiet(t *testing.T) {
	for _, d := range []*agent.Decision{
		{ActionNeeded: true, PrimaryAction: agent.ActionSendEmail, Priority: agent.PriorityMedium},
		{ActionNeeded: false, PrimaryAction: agent.ActionNone, Priority: agent.PriorityHigh},
	} {
		f := newFixture(t, nil)
		f.engine.decision = d
		if err := f.loop.RunCycle(context.Background()); err != nil {
			t.Fatal(err)
		}
		if msgs := f.notifier.messages(); len(msgs) != 0 {
			t.Errorf("decision %+v notified %d chats", d, len(msgs))
		}
	}
}

func TestRunCycle_ExecutesDueRoutines(t *testing.T) {
	f := newFixture(t, nil)
	r, err := f.store.AddRoutine(memory.Routine{
		Name:      "Morning Brief",
		Frequency: memory.Daily,
		Action:    "Check weather and list today's calendar events",
		ChatID:    77,
	})
	if err != nil {
		t.Fatal(err)
	}
	f.engine.reply = "Sunny, no meetings."

	if err := f.loop.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}

	if len(f.engine.processed) != 1 || f.engine.processed[0] != "routine_"+r.ID+"|"+r.Action {
		t.Fatalf("processed = %v", f.engine.processed)
	}
	got, _ := f.store.GetRoutine(r.ID)
	if got.ExecutionCount != 1 || got.LastExecuted == nil {
		t.Errorf("routine = %+v", got)
	}
	msgs := f.notifier.messages()
	if len(msgs) != 1 || msgs[0].chatID != 77 || !strings.Contains(msgs[0].text, "Routine: Morning Brief") || !strings.Contains(msgs[0].text, "Sunny, no meetings.") {
		t.Errorf("deliveries = %+v", msgs)
	}
	if f.bus.count(events.EventRoutineExecuted) != 1 {
		t.Error("missing routine.executed event")
	}

	// Executed routines are not due again within their period.
	if err := f.loop.RunCycle(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(f.engine.processed) != 1 {
		t.Errorf("routine ran twice: %v", f.engine.processed)
	}
}

func TestRunCycle_FailedRoutineIsNotRecorded(t *testing.T) {
	f := newFixture(t, nil)
	r, _ := f.store.AddRoutine(memory.Routine{Name: "Inbox Check", Frequency: memory.Hourly, Action: "check mail", ChatID: 5})
	f.engine.replyErr = errors.New("model down")

	if err := f.loop.RunCycle(context.Background()); err != nil {
		t.Fatalf("routine failures must not fail the cycle: %v", err)
	}
	got, _ := f.store.GetRoutine(r.ID)
	if got.ExecutionCount != 0 || got.LastExecuted != nil {
		t.Errorf("failed routine recorded: %+v", got)
	}
	if msgs := f.notifier.messages(); len(msgs) != 0 {
		t.Errorf("failed routine delivered: %+v", msgs)
	}
}

func TestRunCycle_RoutinesDisabled(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.EnableRoutines = false })
	_, _ = f.store.AddRoutine(memory.Routine{Name: "Inbox Check", Frequency: memory.Hourly, Action: "check mail"})

	if err := f.loop.RunCycle(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(f.engine.processed) != 0 {
		t.Errorf("routines ran while disabled: %v", f.engine.processed)
	}
}

func TestRunCycle_DeliberationFailureStillRunsRoutines(t *testing.T) {
	f := newFixture(t, nil)
	boom := errors.New("llm down")
	f.engine.thinkErr = boom
	f.engine.reply = "Inbox is quiet."
	r, err := f.store.AddRoutine(memory.Routine{Name: "Inbox Check", Frequency: memory.Daily, Action: "check mail", ChatID: 9})
	if err != nil {
		t.Fatal(err)
	}

	if err := f.loop.RunCycle(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
	if f.loop.Cycles() != 0 || !f.loop.LastCycle().IsZero() {
		t.Error("failed cycle counted")
	}

	if got := f.engine.processed; len(got) != 1 || got[0] != "routine_"+r.ID+"|check mail" {
		t.Fatalf("processed = %v", got)
	}
	stored, err := f.store.GetRoutine(r.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.ExecutionCount != 1 || stored.LastExecuted == nil {
		t.Errorf("routine not recorded: count=%d last=%v", stored.ExecutionCount, stored.LastExecuted)
	}
	msgs := f.notifier.messages()
	if len(msgs) != 1 || msgs[0].chatID != 9 {
		t.Errorf("messages = %+v, want only the routine delivery", msgs)
	}
}

func TestActionNotification_DefaultReasoning(t *testing.T) {
	got := ActionNotification(&agent.Decision{PrimaryAction: agent.ActionSendEmail, Priority: agent.PriorityHigh})
	if !strings.Contains(got, "No reasoning provided") {
		t.Errorf("notification = %q", got)
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestLoop_StartStop(t *testing.T) {
	defer goleak.VerifyNone(t)

	hbPath := filepath.Join(t.TempDir(), "heartbeat.json")
	f := newFixture(t, func(c *Config) {
		c.InitialDelay = time.Millisecond
		c.Tick = 2 * time.Millisecond
		c.Interval = 5 * time.Millisecond
		c.HeartbeatPath = hbPath
	})

	f.loop.Start(context.Background())
	f.loop.Start(context.Background())
	if !f.loop.Running() {
		t.Fatal("loop should be running")
	}
	if _, err := os.Stat(hbPath); err != nil {
		t.Fatalf("heartbeat not written: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool { return f.engine.thinkCount() >= 2 })

	f.loop.Stop()
	f.loop.Stop()
	if f.loop.Running() {
		t.Fatal("loop should be stopped")
	}
	if _, err := os.Stat(hbPath); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("heartbeat should be removed, stat err = %v", err)
	}
}

func TestLoop_RespectsInterval(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := newFixture(t, func(c *Config) {
		c.Tick = time.Millisecond
		c.Interval = time.Hour
	})
	f.loop.Start(context.Background())
	waitFor(t, 2*time.Second, func() bool { return f.engine.thinkCount() >= 1 })
	time.Sleep(20 * time.Millisecond)
	f.loop.Stop()

	if n := f.engine.thinkCount(); n != 1 {
		t.Errorf("cycles = %d, want 1 within the interval", n)
	}
}

func TestLoop_BacksOffAfterFailure(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := newFixture(t, func(c *Config) {
		c.Tick = time.Millisecond
		c.Interval = time.Millisecond
		c.Backoff = time.Hour
	})
	f.engine.thinkErr = errors.New("boom")

	f.loop.Start(context.Background())
	waitFor(t, 2*time.Second, func() bool { return f.bus.count(events.EventCycleFailed) == 1 })
	time.Sleep(20 * time.Millisecond)
	f.loop.Stop()

	if n := f.engine.thinkCount(); n != 1 {
		t.Errorf("attempts = %d, want 1 during back-off", n)
	}
}

func TestLoop_StopsWithParentContext(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := newFixture(t, func(c *Config) { c.InitialDelay = time.Hour })
	ctx, cancel := context.WithCancel(context.Background())
	f.loop.Start(ctx)
	cancel()

	waitFor(t, 2*time.Second, func() bool { return !f.loop.Running() })
	f.loop.Stop()

	if f.engine.thinkCount() != 0 {
		t.Error("no cycle should run during the initial delay")
	}
}

func TestLoop_RestartsAfterParentContextEnds(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := newFixture(t, func(c *Config) { c.InitialDelay = time.Hour })
	ctx, cancel := context.WithCancel(context.Background())
	f.loop.Start(ctx)
	cancel()
	waitFor(t, 2*time.Second, func() bool { return !f.loop.Running() })

	f.loop.Start(context.Background())
	if !f.loop.Running() {
		t.Fatal("loop should run again after a restart")
	}
	f.loop.Stop()
	if f.loop.Running() {
		t.Error("loop should be stopped")
	}
}
