// Package gateway serves a read-only HTTP view of the secretary: health, loop
// status, memory contents, recent events and Prometheus metrics.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dohr-michael/secretary/internal/events"
	"github.com/dohr-michael/secretary/internal/memory"
	"github.com/dohr-michael/secretary/internal/metrics"
)

const (
	defaultEventLimit   = 50
	defaultInsightLimit = 5
)

// LoopStatus is the view of the autonomous loop exposed over HTTP.
type LoopStatus interface {
	Running() bool
	LastCycle() time.Time
	Cycles() int64
	Interval() time.Duration
}

// Config wires a Server.
type Config struct {
	Host          string
	Port          int
	Store         *memory.Store
	Bus           *events.Bus      // optional
	Loop          LoopStatus       // optional
	Metrics       *metrics.Metrics // optional
	FollowupHours int
}

// Server is the gateway HTTP server.
type Server struct {
	httpServer *http.Server
	store      *memory.Store
	bus        *events.Bus
	loop       LoopStatus
	followup   float64
	started    time.Time
}

// NewServer creates a new gateway server.
func NewServer(cfg Config) *Server {
	s := &Server{
		store:    cfg.Store,
		bus:      cfg.Bus,
		loop:     cfg.Loop,
		followup: float64(cfg.FollowupHours),
		started:  time.Now(),
	}
	if s.followup <= 0 {
		s.followup = 24
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Get("/api/health", s.handleHealth)
	r.Get("/api/status", s.handleStatus)
	r.Get("/api/events", s.handleEvents)

	r.Route("/api/tasks", func(r chi.Router) {
		r.Get("/pending", s.handlePending)
		r.Get("/followups", s.handleFollowups)
		r.Get("/{id}", s.handleTask)
	})
	r.Get("/api/routines", s.handleRoutines)
	r.Get("/api/insights", s.handleInsights)

	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())
	}

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Start begins listening. It blocks until the server is stopped.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	slog.Info("gateway: listening", "addr", ln.Addr().String())
	if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type statusResponse struct {
	Uptime          string       `json:"uptime"`
	LoopRunning     bool         `json:"loop_running"`
	LastCycle       *time.Time   `json:"last_cycle,omitempty"`
	Cycles          int64        `json:"cycles"`
	IntervalSeconds float64      `json:"interval_seconds,omitempty"`
	Pending         int          `json:"pending"`
	AwaitingReply   int          `json:"awaiting_response"`
	DueRoutines     int          `json:"due_routines"`
	Memory          memory.Stats `json:"memory"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	resp := statusResponse{
		Uptime:        time.Since(s.started).Round(time.Second).String(),
		Pending:       len(s.store.PendingTasks()),
		AwaitingReply: len(s.store.FollowupTasks(s.followup)),
		DueRoutines:   len(s.store.DueRoutines()),
		Memory:        s.store.Stats(),
	}
	if s.loop != nil {
		resp.LoopRunning = s.loop.Running()
		resp.Cycles = s.loop.Cycles()
		resp.IntervalSeconds = s.loop.Interval().Seconds()
		if last := s.loop.LastCycle(); !last.IsZero() {
			resp.LastCycle = &last
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.bus == nil {
		writeJSON(w, http.StatusOK, []events.Event{})
		return
	}
	limit := queryInt(r, "limit", defaultEventLimit)

	history := s.bus.History(limit)
	if history == nil {
		history = []events.Event{}
	}
	writeJSON(w, http.StatusOK, history)
}

func (s *Server) handlePending(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, nonNil(s.store.PendingTasks()))
}

func (s *Server) handleFollowups(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, nonNil(s.store.FollowupTasks(s.followup)))
}

func (s *Server) handleTask(w http.ResponseWriter, r *http.Request) {
	task, err := s.store.GetTask(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleRoutines(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, nonNil(s.store.Routines()))
}

func (s *Server) handleInsights(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", defaultInsightLimit)
	writeJSON(w, http.StatusOK, nonNil(s.store.RecentInsights(limit)))
}

func queryInt(r *http.Request, key string, def int) int {
	if v, err := strconv.Atoi(r.URL.Query().Get(key)); err == nil && v > 0 {
		return v
	}
	return def
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("gateway: encode response", "error", err)
	}
}
