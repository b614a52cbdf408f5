package memory

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// Store owns the memory document and mirrors it to disk after every mutation.
// It is safe for concurrent use.
type Store struct {
	mu   sync.Mutex
	path string
	doc  *Document
	now  func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Open loads the document at path. A missing file yields an empty document;
// a malformed file is discarded and replaced by an empty document.
func Open(path string, opts ...Option) (*Store, error) {
	s := &Store{path: path, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		s.doc = NewDocument()
	case err != nil:
		return nil, fmt.Errorf("read memory: %w", err)
	default:
		var doc Document
		if err := json.Unmarshal(data, &doc); err != nil {
			slog.Warn("memory: malformed document, starting empty", "path", path, "error", err)
			s.doc = NewDocument()
		} else {
			doc.normalize()
			s.doc = &doc
		}
	}
	return s, nil
}

// Path returns the backing file path.
func (s *Store) Path() string { return s.path }

// Save writes the whole document to disk.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

// saveLocked writes via a temp file and rename. Caller must hold s.mu.
func (s *Store) saveLocked() error {
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create memory dir: %w", err)
		}
	}

	data, err := json.MarshalIndent(s.doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal memory: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write memory: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("rename memory: %w", err)
	}
	return nil
}

// Snapshot returns a deep copy of the document.
func (s *Store) Snapshot() *Document {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Deep copy through a JSON round-trip.
	data, err := json.Marshal(s.doc)
	if err != nil {
		slog.Error("memory: snapshot marshal", "error", err)
		return NewDocument()
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		slog.Error("memory: snapshot unmarshal", "error", err)
		return NewDocument()
	}
	doc.normalize()
	return &doc
}

func (s *Store) timestamp() time.Time {
	return s.now().UTC()
}

// --- Tasks ---

// AddTask records a new task. Empty ID, type and status default to a generated
// id, custom and pending. Creation and update times are always set by the store.
func (s *Store) AddTask(t Task) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.ID == "" {
		t.ID = GenerateTaskID()
	}
	if t.Type == "" {
		t.Type = TaskCustom
	}
	if t.Status == "" {
		t.Status = TaskPending
	}
	if !t.Status.Valid() {
		return nil, fmt.Errorf("add task: invalid status %q", t.Status)
	}
	now := s.timestamp()
	t.CreatedAt = now
	t.UpdatedAt = now

	stored := t.clone()
	s.doc.Tasks[stored.ID] = stored
	if err := s.saveLocked(); err != nil {
		return nil, err
	}
	return stored.clone(), nil
}

// UpdateTask applies u to the task and bumps its update time.
func (s *Store) UpdateTask(id string, u TaskUpdate) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.doc.Tasks[id]
	if !ok {
		return nil, fmt.Errorf("update task %s: %w", id, ErrTaskNotFound)
	}
	if u.Status != nil {
		if !u.Status.Valid() {
			return nil, fmt.Errorf("update task %s: invalid status %q", id, *u.Status)
		}
		t.Status = *u.Status
	}
	if u.LastActionTime != nil {
		v := u.LastActionTime.UTC()
		t.LastActionTime = &v
	}
	if u.FollowupAfterHours != nil {
		v := *u.FollowupAfterHours
		t.FollowupAfterHours = &v
	}
	if len(u.Payload) > 0 {
		if t.Payload == nil {
			t.Payload = make(map[string]string, len(u.Payload))
		}
		for k, v := range u.Payload {
			t.Payload[k] = v
		}
	}
	t.UpdatedAt = s.timestamp()

	if err := s.saveLocked(); err != nil {
		return nil, err
	}
	return t.clone(), nil
}

// SetTaskStatus is a shorthand for UpdateTask with only a status change.
func (s *Store) SetTaskStatus(id string, status TaskStatus) (*Task, error) {
	return s.UpdateTask(id, TaskUpdate{Status: &status})
}

// TouchTask sets the task's last action time to now.
func (s *Store) TouchTask(id string) (*Task, error) {
	now := s.timestamp()
	return s.UpdateTask(id, TaskUpdate{LastActionTime: &now})
}

// GetTask returns a copy of the task.
func (s *Store) GetTask(id string) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.doc.Tasks[id]
	if !ok {
		return nil, fmt.Errorf("get task %s: %w", id, ErrTaskNotFound)
	}
	return t.clone(), nil
}

// PendingTasks returns tasks that are pending or waiting for a response,
// oldest first.
func (s *Store) PendingTasks() []*Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*Task
	for _, t := range s.doc.Tasks {
		if t.Status == TaskPending || t.Status == TaskWaitingResponse {
			out = append(out, t.clone())
		}
	}
	sortTasks(out)
	return out
}

// FollowupTasks returns waiting_response tasks whose last action is older than
// their own follow-up delay, or defaultHours when they carry none.
func (s *Store) FollowupTasks(defaultHours float64) []*Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var out []*Task
	for _, t := range s.doc.Tasks {
		if t.Status != TaskWaitingResponse || t.LastActionTime == nil {
			continue
		}
		hours := defaultHours
		if t.FollowupAfterHours != nil {
			hours = *t.FollowupAfterHours
		}
		if now.Sub(*t.LastActionTime) > hoursToDuration(hours) {
			out = append(out, t.clone())
		}
	}
	sortTasks(out)
	return out
}

func hoursToDuration(h float64) time.Duration {
	return time.Duration(h * float64(time.Hour))
}

func sortTasks(ts []*Task) {
	sort.Slice(ts, func(i, j int) bool {
		if ts[i].CreatedAt.Equal(ts[j].CreatedAt) {
			return ts[i].ID < ts[j].ID
		}
		return ts[i].CreatedAt.Before(ts[j].CreatedAt)
	})
}

// --- Conversations & patterns ---

// AddConversation appends an exchange to the user's log, keeping the last
// MaxConversationEntries.
func (s *Store) AddConversation(userID, message, response string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	log := append(s.doc.Conversations[userID], ConversationEntry{
		Timestamp:         s.timestamp(),
		UserMessage:       message,
		AssistantResponse: response,
	})
	if len(log) > MaxConversationEntries {
		log = append([]ConversationEntry(nil), log[len(log)-MaxConversationEntries:]...)
	}
	s.doc.Conversations[userID] = log
	return s.saveLocked()
}

// Conversations returns a copy of the user's full log.
func (s *Store) Conversations(userID string) []ConversationEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ConversationEntry(nil), s.doc.Conversations[userID]...)
}

// UserContext returns the last n conversation entries and all patterns of a user.
func (s *Store) UserContext(userID string, n int) UserContext {
	s.mu.Lock()
	defer s.mu.Unlock()

	log := s.doc.Conversations[userID]
	if n >= 0 && len(log) > n {
		log = log[len(log)-n:]
	}
	return UserContext{
		Conversations: append([]ConversationEntry(nil), log...),
		Patterns:      copyPatterns(s.doc.Patterns[userID]),
	}
}

// LearnPattern appends an observation under the user's category.
func (s *Store) LearnPattern(userID, category string, data map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	byCat, ok := s.doc.Patterns[userID]
	if !ok {
		byCat = make(map[string][]Pattern)
		s.doc.Patterns[userID] = byCat
	}
	byCat[category] = append(byCat[category], Pattern{
		Data:       copyStrings(data),
		Timestamp:  s.timestamp(),
		Confidence: DefaultPatternConfidence,
	})
	return s.saveLocked()
}

// Patterns returns a copy of the user's patterns grouped by category.
func (s *Store) Patterns(userID string) map[string][]Pattern {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyPatterns(s.doc.Patterns[userID])
}

func copyPatterns(in map[string][]Pattern) map[string][]Pattern {
	out := make(map[string][]Pattern, len(in))
	for cat, ps := range in {
		cp := make([]Pattern, len(ps))
		for i, p := range ps {
			p.Data = copyStrings(p.Data)
			cp[i] = p
		}
		out[cat] = cp
	}
	return out
}

func copyStrings(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// --- Routines ---

// AddRoutine registers a routine. The store sets creation time, clears the
// execution history and enables it.
func (s *Store) AddRoutine(r Routine) (*Routine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.Frequency.Threshold() == 0 {
		return nil, fmt.Errorf("add routine: %w: %q", ErrInvalidFrequency, r.Frequency)
	}
	if r.ID == "" {
		r.ID = GenerateRoutineID()
	}
	r.CreatedAt = s.timestamp()
	r.LastExecuted = nil
	r.ExecutionCount = 0
	r.Enabled = true

	stored := r.clone()
	s.doc.Routines[stored.ID] = stored
	if err := s.saveLocked(); err != nil {
		return nil, err
	}
	return stored.clone(), nil
}

// Routines returns copies of all routines ordered by creation time.
func (s *Store) Routines() []*Routine {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*Routine, 0, len(s.doc.Routines))
	for _, r := range s.doc.Routines {
		out = append(out, r.clone())
	}
	sortRoutines(out)
	return out
}

// GetRoutine returns a copy of the routine.
func (s *Store) GetRoutine(id string) (*Routine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.doc.Routines[id]
	if !ok {
		return nil, fmt.Errorf("get routine %s: %w", id, ErrRoutineNotFound)
	}
	return r.clone(), nil
}

// SetRoutineEnabled toggles a routine.
func (s *Store) SetRoutineEnabled(id string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.doc.Routines[id]
	if !ok {
		return fmt.Errorf("set routine %s: %w", id, ErrRoutineNotFound)
	}
	r.Enabled = enabled
	return s.saveLocked()
}

// RecordRoutineExecution stamps the routine as executed now.
func (s *Store) RecordRoutineExecution(id string) (*Routine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.doc.Routines[id]
	if !ok {
		return nil, fmt.Errorf("record routine %s: %w", id, ErrRoutineNotFound)
	}
	now := s.timestamp()
	r.LastExecuted = &now
	r.ExecutionCount++
	if err := s.saveLocked(); err != nil {
		return nil, err
	}
	return r.clone(), nil
}

// DueRoutines returns enabled routines never executed or whose last execution
// is strictly older than their frequency threshold. A routine behind by several
// periods is returned once.
func (s *Store) DueRoutines() []*Routine {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var out []*Routine
	for _, r := range s.doc.Routines {
		if !r.Enabled {
			continue
		}
		if r.LastExecuted == nil {
			out = append(out, r.clone())
			continue
		}
		freq := r.Frequency
		if freq == "" {
			freq = Daily
		}
		// Unknown cadences never come due again once executed.
		threshold := freq.Threshold()
		if threshold > 0 && now.Sub(*r.LastExecuted) > threshold {
			out = append(out, r.clone())
		}
	}
	sortRoutines(out)
	return out
}

func sortRoutines(rs []*Routine) {
	sort.Slice(rs, func(i, j int) bool {
		if rs[i].CreatedAt.Equal(rs[j].CreatedAt) {
			return rs[i].ID < rs[j].ID
		}
		return rs[i].CreatedAt.Before(rs[j].CreatedAt)
	})
}

// --- Insights ---

// AddInsight appends an insight, keeping the last MaxInsights. An empty
// category becomes "general".
func (s *Store) AddInsight(text, category string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if category == "" {
		category = "general"
	}
	ins := append(s.doc.Insights, Insight{
		Insight:   text,
		Category:  category,
		Timestamp: s.timestamp(),
	})
	if len(ins) > MaxInsights {
		ins = append([]Insight(nil), ins[len(ins)-MaxInsights:]...)
	}
	s.doc.Insights = ins
	return s.saveLocked()
}

// RecentInsights returns up to n most recent insights, oldest first.
func (s *Store) RecentInsights(n int) []Insight {
	s.mu.Lock()
	defer s.mu.Unlock()

	ins := s.doc.Insights
	if n >= 0 && len(ins) > n {
		ins = ins[len(ins)-n:]
	}
	return append([]Insight(nil), ins...)
}

// Stats counts the document's collections.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv := 0
	for _, log := range s.doc.Conversations {
		conv += len(log)
	}
	return Stats{
		Tasks:         len(s.doc.Tasks),
		PatternUsers:  len(s.doc.Patterns),
		Insights:      len(s.doc.Insights),
		Routines:      len(s.doc.Routines),
		Conversations: conv,
	}
}
