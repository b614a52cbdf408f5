// Package memory persists the secretary's working state (tasks, routines,
// conversations, learned patterns and insights) as a single JSON document.
package memory

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrTaskNotFound     = errors.New("task not found")
	ErrRoutineNotFound  = errors.New("routine not found")
	ErrInvalidFrequency = errors.New("invalid frequency")
)

const (
	// MaxConversationEntries is the per-user retention window of the conversation log.
	MaxConversationEntries = 100
	// MaxInsights is the retention window of the global insight list.
	MaxInsights = 50
	// DefaultPatternConfidence is assigned to every newly learned pattern.
	DefaultPatternConfidence = 0.5
)

// TaskStatus represents the lifecycle state of a task.
type TaskStatus string

const (
	TaskPending         TaskStatus = "pending"
	TaskInProgress      TaskStatus = "in_progress"
	TaskWaitingResponse TaskStatus = "waiting_response"
	TaskCompleted       TaskStatus = "completed"
	TaskFailed          TaskStatus = "failed"
	TaskCancelled       TaskStatus = "cancelled"
)

// Valid reports whether s is a known status.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskPending, TaskInProgress, TaskWaitingResponse, TaskCompleted, TaskFailed, TaskCancelled:
		return true
	}
	return false
}

// TaskType categorizes a task.
type TaskType string

const (
	TaskEmail        TaskType = "email"
	TaskCalendar     TaskType = "calendar"
	TaskReminder     TaskType = "reminder"
	TaskFollowUp     TaskType = "follow_up"
	TaskWeatherCheck TaskType = "weather_check"
	TaskRoutineCheck TaskType = "routine_check"
	TaskCustom       TaskType = "custom"
)

// Task is a unit of work tracked by the secretary. Tasks are never deleted.
type Task struct {
	ID                 string            `json:"id"`
	Type               TaskType          `json:"type"`
	Status             TaskStatus        `json:"status"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
	LastActionTime     *time.Time        `json:"last_action_time,omitempty"`
	FollowupAfterHours *float64          `json:"followup_after_hours,omitempty"`
	Payload            map[string]string `json:"payload,omitempty"`
}

func (t *Task) clone() *Task {
	c := *t
	if t.LastActionTime != nil {
		v := *t.LastActionTime
		c.LastActionTime = &v
	}
	if t.FollowupAfterHours != nil {
		v := *t.FollowupAfterHours
		c.FollowupAfterHours = &v
	}
	if t.Payload != nil {
		c.Payload = make(map[string]string, len(t.Payload))
		for k, v := range t.Payload {
			c.Payload[k] = v
		}
	}
	return &c
}

// TaskUpdate carries the mutable fields of a task. Nil fields are left untouched.
type TaskUpdate struct {
	Status             *TaskStatus
	LastActionTime     *time.Time
	FollowupAfterHours *float64
	Payload            map[string]string // merged into the existing payload
}

// Frequency is the cadence of a routine.
type Frequency string

const (
	Hourly Frequency = "hourly"
	Daily  Frequency = "daily"
	Weekly Frequency = "weekly"
)

// Frequencies lists the accepted cadences in display order.
var Frequencies = []Frequency{Hourly, Daily, Weekly}

// ParseFrequency validates a user-supplied cadence (case-insensitive, trimmed).
func ParseFrequency(s string) (Frequency, error) {
	f := Frequency(strings.ToLower(strings.TrimSpace(s)))
	if f.Threshold() == 0 {
		return "", fmt.Errorf("%w: %q (want hourly, daily or weekly)", ErrInvalidFrequency, s)
	}
	return f, nil
}

// Threshold is the elapsed time after which a routine of this cadence is due again.
// Unknown cadences return 0.
func (f Frequency) Threshold() time.Duration {
	switch f {
	case Hourly:
		return time.Hour
	case Daily:
		return 24 * time.Hour
	case Weekly:
		return 7 * 24 * time.Hour
	}
	return 0
}

// Routine is a user-defined recurring instruction.
type Routine struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Frequency      Frequency  `json:"frequency"`
	Action         string     `json:"action"`
	Enabled        bool       `json:"enabled"`
	ChatID         int64      `json:"chat_id,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	LastExecuted   *time.Time `json:"last_executed"`
	ExecutionCount int        `json:"execution_count"`
}

func (r *Routine) clone() *Routine {
	c := *r
	if r.LastExecuted != nil {
		v := *r.LastExecuted
		c.LastExecuted = &v
	}
	return &c
}

// ConversationEntry is one user/assistant exchange.
type ConversationEntry struct {
	Timestamp         time.Time `json:"timestamp"`
	UserMessage       string    `json:"user_message"`
	AssistantResponse string    `json:"assistant_response"`
}

// Pattern is an observation about a user, grouped by category.
type Pattern struct {
	Data       map[string]string `json:"data"`
	Timestamp  time.Time         `json:"timestamp"`
	Confidence float64           `json:"confidence"`
}

// Insight is a short free-text note about observed behavior.
type Insight struct {
	Insight   string    `json:"insight"`
	Category  string    `json:"category"`
	Timestamp time.Time `json:"timestamp"`
}

// UserContext is the slice of memory relevant to one user's message.
type UserContext struct {
	Conversations []ConversationEntry
	Patterns      map[string][]Pattern
}

// Stats summarizes the document for status displays.
type Stats struct {
	Tasks         int `json:"tasks"`
	PatternUsers  int `json:"pattern_users"`
	Insights      int `json:"insights"`
	Routines      int `json:"routines"`
	Conversations int `json:"conversations"`
}

// Document is the on-disk schema.
type Document struct {
	Tasks         map[string]*Task                `json:"tasks"`
	Conversations map[string][]ConversationEntry  `json:"conversations"`
	Patterns      map[string]map[string][]Pattern `json:"patterns"`
	Routines      map[string]*Routine             `json:"routines"`
	Insights      []Insight                       `json:"insights"`
}

// NewDocument returns an empty, fully initialized document.
func NewDocument() *Document {
	return &Document{
		Tasks:         make(map[string]*Task),
		Conversations: make(map[string][]ConversationEntry),
		Patterns:      make(map[string]map[string][]Pattern),
		Routines:      make(map[string]*Routine),
		Insights:      []Insight{},
	}
}

// normalize fills collections left null by older or hand-edited files, drops
// null entries and restores ids from the map keys.
func (d *Document) normalize() {
	if d.Tasks == nil {
		d.Tasks = make(map[string]*Task)
	}
	for id, t := range d.Tasks {
		switch {
		case t == nil:
			delete(d.Tasks, id)
		case t.ID == "":
			t.ID = id
		}
	}
	if d.Conversations == nil {
		d.Conversations = make(map[string][]ConversationEntry)
	}
	if d.Patterns == nil {
		d.Patterns = make(map[string]map[string][]Pattern)
	}
	for user, byCategory := range d.Patterns {
		if byCategory == nil {
			d.Patterns[user] = make(map[string][]Pattern)
		}
	}
	if d.Routines == nil {
		d.Routines = make(map[string]*Routine)
	}
	for id, r := range d.Routines {
		switch {
		case r == nil:
			delete(d.Routines, id)
		case r.ID == "":
			r.ID = id
		}
	}
	if d.Insights == nil {
		d.Insights = []Insight{}
	}
}

// GenerateTaskID creates a unique task identifier.
func GenerateTaskID() string {
	u := uuid.New().String()
	return "task_" + strings.ReplaceAll(u[:8], "-", "")
}

// GenerateRoutineID creates a unique routine identifier.
func GenerateRoutineID() string {
	u := uuid.New().String()
	return "rtn_" + strings.ReplaceAll(u[:8], "-", "")
}
