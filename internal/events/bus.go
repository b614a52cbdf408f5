// Package events provides an in-memory event bus using Go channels.
package events

import (
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

// EventType represents the type of event.
type EventType string

const (
	// Messaging front-end
	EventMessageReceived EventType = "message.received"
	EventMessageReplied  EventType = "message.replied"

	// Decision engine
	EventDecisionMade EventType = "decision.made"
	EventTaskCreated  EventType = "task.created"

	// Polling loop
	EventRoutineExecuted EventType = "routine.executed"
	EventCycleFailed     EventType = "cycle.failed"

	// Agent internals
	EventLLMCall  EventType = "llm.call"
	EventToolCall EventType = "tool.call"
)

// EventSource identifies the component that emitted an event.
type EventSource string

const (
	SourceBot    EventSource = "bot"
	SourceEngine EventSource = "engine"
	SourcePoller EventSource = "poller"
	SourceAgent  EventSource = "agent"
)

// Event represents an event in the system.
type Event struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Source    EventSource    `json:"source"`
	Payload   map[string]any `json:"payload"`
}

var eventIDCounter uint64

// NewEvent creates a new event with the current timestamp.
func NewEvent(eventType EventType, source EventSource, payload map[string]any) Event {
	return Event{
		ID:        generateEventID(),
		Type:      eventType,
		Timestamp: time.Now(),
		Source:    source,
		Payload:   payload,
	}
}

func generateEventID() string {
	seq := atomic.AddUint64(&eventIDCounter, 1)
	return fmt.Sprintf("%d-%d", time.Now().UnixNano(), seq)
}

// Subscriber is a function that receives events.
type Subscriber func(Event)

type subscription struct {
	eventTypes []EventType
	handler    Subscriber
}

// Publisher is the write side of the bus, accepted by components that only emit.
type Publisher interface {
	Publish(Event)
}

// Bus is an in-memory event bus using Go channels.
// Events are recorded in the history before subscribers are notified.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[int]*subscription
	nextID      int
	eventChan   chan Event
	history     *history
	closed      bool
	done        chan struct{}
	stopped     chan struct{}
}

// NewBus creates a new event bus. bufferSize bounds both the pending queue
// and the history.
func NewBus(bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	b := &Bus{
		subscribers: make(map[int]*subscription),
		eventChan:   make(chan Event, bufferSize),
		history:     newHistory(bufferSize),
		done:        make(chan struct{}),
		stopped:     make(chan struct{}),
	}
	go b.dispatch()
	return b
}

func (b *Bus) dispatch() {
	defer close(b.stopped)
	for {
		select {
		case event := <-b.eventChan:
			b.history.add(event)
			b.notifySubscribers(event)
		case <-b.done:
			return
		}
	}
}

func (b *Bus) notifySubscribers(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subscribers {
		if sub.matches(event) {
			sub.handler(event)
		}
	}
}

func (s *subscription) matches(event Event) bool {
	return len(s.eventTypes) == 0 || slices.Contains(s.eventTypes, event.Type)
}

// Publish sends an event to the bus. It never blocks: when the queue is
// full the event is dropped.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}
	select {
	case b.eventChan <- event:
	default:
	}
}

// Subscribe registers a handler for specific event types (all types when none
// are given). Handlers run on the dispatch goroutine and must not block.
// Returns an unsubscribe function.
func (b *Bus) Subscribe(handler Subscriber, eventTypes ...EventType) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	b.subscribers[id] = &subscription{eventTypes: eventTypes, handler: handler}

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subscribers, id)
	}
}

// History returns up to limit recent events, oldest first.
func (b *Bus) History(limit int) []Event {
	return b.history.last(limit)
}

// Close shuts down the event bus and waits for the dispatcher to exit.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	close(b.done)
	b.mu.Unlock()

	<-b.stopped
}

// history keeps the last size events, oldest first.
type history struct {
	mu     sync.RWMutex
	events []Event
	next   int
	full   bool
}

func newHistory(size int) *history {
	return &history{events: make([]Event, size)}
}

func (h *history) add(e Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events[h.next] = e
	h.next = (h.next + 1) % len(h.events)
	if h.next == 0 {
		h.full = true
	}
}

func (h *history) last(n int) []Event {
	h.mu.RLock()
	defer h.mu.RUnlock()

	count := h.next
	if h.full {
		count = len(h.events)
	}
	n = min(n, count)
	if n <= 0 {
		return nil
	}
	out := make([]Event, n)
	start := (h.next - n + len(h.events)) % len(h.events)
	for i := range out {
		out[i] = h.events[(start+i)%len(h.events)]
	}
	return out
}
