package memory

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// naiveLayout matches timestamps written without a zone offset, with or
// without fractional seconds (2024-01-01T10:00:00.123456).
const naiveLayout = "2006-01-02T15:04:05.999999999"

// stamp decodes RFC 3339 timestamps as well as offset-less ones, which are
// read in local time.
type stamp time.Time

func (s *stamp) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	if raw == "" {
		return nil
	}
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		*s = stamp(t)
		return nil
	}
	t, err := time.ParseInLocation(naiveLayout, raw, time.Local)
	if err != nil {
		return fmt.Errorf("timestamp %q: %w", raw, err)
	}
	*s = stamp(t)
	return nil
}

func (s *stamp) ptr() *time.Time {
	if s == nil {
		return nil
	}
	t := time.Time(*s)
	return &t
}

func (t *Task) UnmarshalJSON(b []byte) error {
	type plain Task
	aux := struct {
		*plain
		CreatedAt      stamp  `json:"created_at"`
		UpdatedAt      stamp  `json:"updated_at"`
		LastActionTime *stamp `json:"last_action_time"`
	}{plain: (*plain)(t)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	t.CreatedAt = time.Time(aux.CreatedAt)
	t.UpdatedAt = time.Time(aux.UpdatedAt)
	t.LastActionTime = aux.LastActionTime.ptr()
	return nil
}

// UnmarshalJSON also defaults a missing "enabled" to true.
func (r *Routine) UnmarshalJSON(b []byte) error {
	type plain Routine
	aux := struct {
		*plain
		Enabled      *bool  `json:"enabled"`
		CreatedAt    stamp  `json:"created_at"`
		LastExecuted *stamp `json:"last_executed"`
	}{plain: (*plain)(r)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	r.Enabled = aux.Enabled == nil || *aux.Enabled
	r.CreatedAt = time.Time(aux.CreatedAt)
	r.LastExecuted = aux.LastExecuted.ptr()
	return nil
}

func (e *ConversationEntry) UnmarshalJSON(b []byte) error {
	type plain ConversationEntry
	aux := struct {
		*plain
		Timestamp stamp `json:"timestamp"`
	}{plain: (*plain)(e)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	e.Timestamp = time.Time(aux.Timestamp)
	return nil
}

// UnmarshalJSON also accepts non-string data values (an hour stored as a
// number), keeping their text form.
func (p *Pattern) UnmarshalJSON(b []byte) error {
	type plain Pattern
	aux := struct {
		*plain
		Data      map[string]any `json:"data"`
		Timestamp stamp          `json:"timestamp"`
	}{plain: (*plain)(p)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	p.Data = nil
	if aux.Data != nil {
		p.Data = make(map[string]string, len(aux.Data))
		for k, v := range aux.Data {
			if str, ok := v.(string); ok {
				p.Data[k] = str
			} else {
				p.Data[k] = fmt.Sprint(v)
			}
		}
	}
	p.Timestamp = time.Time(aux.Timestamp)
	return nil
}

func (in *Insight) UnmarshalJSON(b []byte) error {
	type plain Insight
	aux := struct {
		*plain
		Timestamp stamp `json:"timestamp"`
	}{plain: (*plain)(in)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	in.Timestamp = time.Time(aux.Timestamp)
	return nil
}
