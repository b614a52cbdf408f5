// Package bot is the messaging front-end: it routes chat messages to commands,
// routine creation or the decision engine and delivers the replies.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/dohr-michael/secretary/internal/events"
	"github.com/dohr-michael/secretary/internal/memory"
	"github.com/dohr-michael/secretary/internal/metrics"
)

const (
	DefaultMessageTimeout = 30 * time.Second
	DefaultChunkSize      = 4000
)

// Replies with fixed wording.
const (
	TimeoutReply  = "I'm taking a bit longer to process your request. Please wait a moment and I'll get back to you soon!"
	ErrorReply    = "I apologize, but I encountered an issue processing your message. Please try again or type /help for assistance."
	FollowupNote  = "📝 *Note:* I'll monitor this task and follow up automatically if needed."
	UnknownReply  = "I don't know that command. Type /help to see what I can do."
	routineFormat = "❌ Invalid format. Please use: name | frequency | action"
	routineFreq   = "❌ Frequency must be: hourly, daily, or weekly"
)

// followupPhrases mark a message as something to keep an eye on.
var followupPhrases = []string{"follow up", "remind", "check back", "if no response"}

// Responder answers free-text messages.
type Responder interface {
	ProcessMessage(ctx context.Context, userID, text string) (string, error)
}

// Loop is the autonomous loop as seen from the chat.
type Loop interface {
	Start(ctx context.Context)
	Running() bool
	LastCycle() time.Time
}

// Config wires a Bot.
type Config struct {
	Transport Transport
	Engine    Responder
	Store     *memory.Store
	Loop      Loop             // optional, may be set later with SetLoop
	Bus       events.Publisher // optional
	Metrics   *metrics.Metrics // optional

	AdminChatIDs     []int64
	MessageTimeout   time.Duration
	ChunkSize        int
	FollowupHours    int
	ThinkingInterval time.Duration
	RoutinesEnabled  bool
	Clock            func() time.Time
}

// Bot is the chat front-end.
type Bot struct {
	transport Transport
	engine    Responder
	store     *memory.Store
	bus       events.Publisher
	metrics   *metrics.Metrics

	timeout   time.Duration
	chunkSize int
	followup  float64
	interval  time.Duration
	routines  bool
	now       func() time.Time

	mu     sync.Mutex
	loop   Loop
	admins map[int64]struct{}

	wg sync.WaitGroup
}

// New creates a bot.
func New(cfg Config) *Bot {
	b := &Bot{
		transport: cfg.Transport,
		engine:    cfg.Engine,
		store:     cfg.Store,
		bus:       cfg.Bus,
		metrics:   cfg.Metrics,
		timeout:   cfg.MessageTimeout,
		chunkSize: cfg.ChunkSize,
		followup:  float64(cfg.FollowupHours),
		interval:  cfg.ThinkingInterval,
		routines:  cfg.RoutinesEnabled,
		now:       cfg.Clock,
		loop:      cfg.Loop,
		admins:    make(map[int64]struct{}),
	}
	if b.timeout <= 0 {
		b.timeout = DefaultMessageTimeout
	}
	if b.chunkSize <= 0 {
		b.chunkSize = DefaultChunkSize
	}
	if b.followup <= 0 {
		b.followup = 24
	}
	if b.interval <= 0 {
		b.interval = 3 * time.Minute
	}
	if b.now == nil {
		b.now = time.Now
	}
	for _, id := range cfg.AdminChatIDs {
		b.admins[id] = struct{}{}
	}
	return b
}

// SetLoop attaches the autonomous loop started by /start.
func (b *Bot) SetLoop(l Loop) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.loop = l
}

func (b *Bot) currentLoop() Loop {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.loop
}

// AddAdmin registers a chat for autonomous notifications.
func (b *Bot) AddAdmin(chatID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.admins[chatID] = struct{}{}
}

// AdminChats returns the registered admin chats in ascending order.
func (b *Bot) AdminChats() []int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	ids := make([]int64, 0, len(b.admins))
	for id := range b.admins {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Send delivers a Markdown message to a chat.
func (b *Bot) Send(ctx context.Context, chatID int64, text string) error {
	return b.transport.Send(ctx, chatID, text, true)
}

// Run receives updates until ctx is done, handling each message in its own
// goroutine, and waits for in-flight handlers before returning.
func (b *Bot) Run(ctx context.Context) error {
	updates, err := b.transport.Updates(ctx)
	if err != nil {
		return fmt.Errorf("bot: receive updates: %w", err)
	}
	slog.Info("bot: waiting for messages")

	for u := range updates {
		b.wg.Add(1)
		go func(u Update) {
			defer b.wg.Done()
			b.Handle(ctx, u)
		}(u)
	}
	b.wg.Wait()
	slog.Info("bot: stopped")
	return nil
}

// Handle routes one inbound message.
func (b *Bot) Handle(ctx context.Context, u Update) {
	b.publish(events.NewTypedEvent(events.SourceBot, events.MessageReceivedPayload{
		ChatID:  u.ChatID,
		UserID:  u.UserID,
		Text:    u.Text,
		Command: u.Command,
	}))

	switch {
	case u.Command != "":
		b.handleCommand(ctx, u)
	case IsRoutineCommand(u.Text):
		b.createRoutine(ctx, u)
	default:
		b.handleMessage(ctx, u)
	}
}

func (b *Bot) handleMessage(ctx context.Context, u Update) {
	start := time.Now()
	slog.Info("bot: message received", "user", u.UserID, "chat", u.ChatID, "text", preview(u.Text, 100))

	if err := b.transport.Typing(ctx, u.ChatID); err != nil {
		slog.Debug("bot: typing indicator failed", "chat", u.ChatID, "error", err)
	}

	mctx, cancel := context.WithTimeout(ctx, b.timeout)
	response, err := b.engine.ProcessMessage(mctx, u.UserID, u.Text)
	timedOut := errors.Is(err, context.DeadlineExceeded) || errors.Is(mctx.Err(), context.DeadlineExceeded)
	cancel()

	replied := events.MessageRepliedPayload{ChatID: u.ChatID, UserID: u.UserID}
	outcome := metrics.OutcomeOK

	switch {
	case err != nil && timedOut:
		slog.Warn("bot: message timed out", "user", u.UserID, "timeout", b.timeout)
		b.reply(ctx, u.ChatID, TimeoutReply, false)
		replied.TimedOut = true
		replied.Chunks = 1
		outcome = metrics.OutcomeTimeout
	case err != nil:
		slog.Error("bot: message failed", "user", u.UserID, "error", err)
		if response == "" {
			response = ErrorReply
		}
		b.reply(ctx, u.ChatID, response, false)
		replied.Error = err.Error()
		replied.Chunks = 1
		outcome = metrics.OutcomeError
	default:
		chunks := Chunk(response, b.chunkSize)
		for _, c := range chunks {
			b.reply(ctx, u.ChatID, c, false)
		}
		replied.Chunks = len(chunks)
		if NeedsFollowup(u.Text) {
			b.trackFollowup(ctx, u)
		}
	}

	replied.Duration = time.Since(start)
	b.publish(events.NewTypedEvent(events.SourceBot, replied))
	b.metrics.ObserveMessage("message", outcome, replied.Duration.Seconds())
}

// trackFollowup records a task the loop will follow up on.
func (b *Bot) trackFollowup(ctx context.Context, u Update) {
	now := b.now()
	hours := b.followup
	task, err := b.store.AddTask(memory.Task{
		Type:               memory.TaskFollowUp,
		Status:             memory.TaskWaitingResponse,
		LastActionTime:     &now,
		FollowupAfterHours: &hours,
		Payload: map[string]string{
			"request": u.Text,
			"user_id": u.UserID,
			"chat_id": fmt.Sprint(u.ChatID),
		},
	})
	if err != nil {
		slog.Warn("bot: recording follow-up failed", "user", u.UserID, "error", err)
		return
	}
	b.publish(events.NewTypedEvent(events.SourceBot, events.TaskCreatedPayload{
		TaskID: task.ID,
		Type:   string(task.Type),
		Status: string(task.Status),
	}))
	b.reply(ctx, u.ChatID, FollowupNote, true)
}

func (b *Bot) createRoutine(ctx context.Context, u Update) {
	r, err := ParseRoutineCommand(u.Text)
	switch {
	case errors.Is(err, memory.ErrInvalidFrequency):
		b.reply(ctx, u.ChatID, routineFreq, false)
		b.metrics.ObserveMessage("routine", metrics.OutcomeError, 0)
		return
	case err != nil:
		b.reply(ctx, u.ChatID, routineFormat, false)
		b.metrics.ObserveMessage("routine", metrics.OutcomeError, 0)
		return
	}

	r.ChatID = u.ChatID
	created, err := b.store.AddRoutine(r)
	if err != nil {
		b.reply(ctx, u.ChatID, fmt.Sprintf("❌ Error creating routine: %v", err), false)
		b.metrics.ObserveMessage("routine", metrics.OutcomeError, 0)
		return
	}
	slog.Info("bot: routine created", "routine", created.ID, "name", created.Name, "frequency", created.Frequency)
	b.reply(ctx, u.ChatID, fmt.Sprintf("✅ Routine '%s' created!\n\nIt will run %s and: %s",
		EscapeMarkdown(created.Name), created.Frequency, EscapeMarkdown(created.Action)), true)
	b.metrics.ObserveMessage("routine", metrics.OutcomeOK, 0)
}

func (b *Bot) reply(ctx context.Context, chatID int64, text string, markdown bool) {
	if err := b.transport.Send(ctx, chatID, text, markdown); err != nil {
		slog.Warn("bot: reply failed", "chat", chatID, "error", err)
	}
}

func (b *Bot) publish(e events.Event) {
	if b.bus != nil {
		b.bus.Publish(e)
	}
}

// NeedsFollowup reports whether a request asks the secretary to keep watching.
func NeedsFollowup(text string) bool {
	lower := strings.ToLower(text)
	for _, p := range followupPhrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// Chunk splits text into pieces of at most size runes.
func Chunk(text string, size int) []string {
	r := []rune(text)
	if size <= 0 || len(r) <= size {
		return []string{text}
	}
	chunks := make([]string, 0, (len(r)+size-1)/size)
	for len(r) > 0 {
		n := min(size, len(r))
		chunks = append(chunks, string(r[:n]))
		r = r[n:]
	}
	return chunks
}

func preview(s string, n int) string {
	if r := []rune(s); len(r) > n {
		return string(r[:n]) + "..."
	}
	return s
}
