package bot

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dohr-michael/secretary/internal/memory"
)

// RoutinePrefix starts a routine creation message (case-insensitive).
const RoutinePrefix = "create routine:"

// ErrInvalidRoutineFormat is returned when a routine message does not have
// exactly three pipe-separated fields.
var ErrInvalidRoutineFormat = errors.New("invalid routine format")

// IsRoutineCommand reports whether text asks for a new routine.
func IsRoutineCommand(text string) bool {
	t := strings.TrimSpace(text)
	return len(t) >= len(RoutinePrefix) && strings.EqualFold(t[:len(RoutinePrefix)], RoutinePrefix)
}

// ParseRoutineCommand parses "Create routine: name | frequency | action".
// Frequency errors wrap memory.ErrInvalidFrequency.
func ParseRoutineCommand(text string) (memory.Routine, error) {
	if !IsRoutineCommand(text) {
		return memory.Routine{}, fmt.Errorf("%w: missing %q prefix", ErrInvalidRoutineFormat, RoutinePrefix)
	}
	body := strings.TrimSpace(text)[len(RoutinePrefix):]

	parts := strings.Split(body, "|")
	if len(parts) != 3 {
		return memory.Routine{}, fmt.Errorf("%w: want 3 fields, got %d", ErrInvalidRoutineFormat, len(parts))
	}
	name := strings.TrimSpace(parts[0])
	action := strings.TrimSpace(parts[2])
	if name == "" || action == "" {
		return memory.Routine{}, fmt.Errorf("%w: name and action are required", ErrInvalidRoutineFormat)
	}

	freq, err := memory.ParseFrequency(parts[1])
	if err != nil {
		return memory.Routine{}, err
	}
	return memory.Routine{Name: name, Frequency: freq, Action: action}, nil
}
