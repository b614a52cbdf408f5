// Package heartbeat records liveness of the secretary's polling loop in a file
// that other processes (secretary status) can inspect.
package heartbeat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Status represents the liveness state of a running secretary.
type Status string

const (
	StatusAlive Status = "alive"
	StatusStale Status = "stale"
	StatusDead  Status = "dead"
)

// DefaultInterval is how often the file is rewritten.
const DefaultInterval = 30 * time.Second

// Heartbeat is the data written to the heartbeat file.
type Heartbeat struct {
	PID         int        `json:"pid"`
	StartedAt   time.Time  `json:"started_at"`
	Timestamp   time.Time  `json:"timestamp"`
	Uptime      string     `json:"uptime"`
	LastCycleAt *time.Time `json:"last_cycle_at,omitempty"`
	Cycles      int64      `json:"cycles"`
}

// Source reports decision-cycle progress to include in the heartbeat.
type Source interface {
	LastCycle() time.Time
	Cycles() int64
}

// Writer periodically writes a heartbeat file to disk.
type Writer struct {
	path     string
	interval time.Duration
	source   Source

	mu      sync.Mutex
	started time.Time
	cancel  context.CancelFunc
	done    chan struct{}
}

// Option configures a Writer.
type Option func(*Writer)

// WithInterval overrides DefaultInterval.
func WithInterval(d time.Duration) Option {
	return func(w *Writer) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithSource attaches cycle progress to each heartbeat.
func WithSource(s Source) Option {
	return func(w *Writer) { w.source = s }
}

// NewWriter creates a heartbeat writer for path.
func NewWriter(path string, opts ...Option) *Writer {
	w := &Writer{path: path, interval: DefaultInterval}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start writes a first heartbeat, then keeps it fresh in the background.
// Calling Start on a running writer is a no-op.
func (w *Writer) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.cancel != nil {
		return
	}

	w.started = time.Now()
	w.done = make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel

	w.write()

	go func() {
		defer close(w.done)
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				w.mu.Lock()
				w.write()
				w.mu.Unlock()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Touch rewrites the heartbeat immediately, e.g. right after a cycle.
func (w *Writer) Touch() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel == nil {
		return
	}
	w.write()
}

// Stop stops writing and removes the heartbeat file.
func (w *Writer) Stop() {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.cancel = nil
	w.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done

	if err := os.Remove(w.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("heartbeat: remove file", "path", w.path, "error", err)
	}
}

func (w *Writer) write() {
	now := time.Now()
	hb := Heartbeat{
		PID:       os.Getpid(),
		StartedAt: w.started,
		Timestamp: now,
		Uptime:    now.Sub(w.started).Truncate(time.Second).String(),
	}
	if w.source != nil {
		if last := w.source.LastCycle(); !last.IsZero() {
			hb.LastCycleAt = &last
		}
		hb.Cycles = w.source.Cycles()
	}

	data, err := json.MarshalIndent(hb, "", "  ")
	if err != nil {
		return
	}

	if err := os.MkdirAll(filepath.Dir(w.path), 0o755); err != nil {
		slog.Warn("heartbeat: create dir", "error", err)
		return
	}
	tmp := w.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		slog.Warn("heartbeat: write", "error", err)
		return
	}
	if err := os.Rename(tmp, w.path); err != nil {
		slog.Warn("heartbeat: rename", "error", err)
	}
}

// Check reads a heartbeat file and returns the liveness status.
// maxAge determines how old a heartbeat can be before it's considered stale.
func Check(path string, maxAge time.Duration) (Status, *Heartbeat, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return StatusDead, nil, nil
		}
		return StatusDead, nil, fmt.Errorf("read heartbeat: %w", err)
	}

	var hb Heartbeat
	if err := json.Unmarshal(data, &hb); err != nil {
		return StatusDead, nil, fmt.Errorf("unmarshal heartbeat: %w", err)
	}

	if time.Since(hb.Timestamp) > maxAge {
		return StatusStale, &hb, nil
	}
	return StatusAlive, &hb, nil
}
