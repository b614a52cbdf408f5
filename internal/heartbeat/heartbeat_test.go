package heartbeat

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

type fakeSource struct {
	last   time.Time
	cycles int64
}

func (f fakeSource) LastCycle() time.Time { return f.last }
func (f fakeSource) Cycles() int64        { return f.cycles }

func TestWriteReadCycle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "heartbeat.json")

	last := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	w := NewWriter(path, WithSource(fakeSource{last: last, cycles: 3}))
	w.Start()
	defer w.Stop()

	status, hb, err := Check(path, 2*time.Minute)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if status != StatusAlive {
		t.Errorf("expected alive, got %s", status)
	}
	if hb == nil {
		t.Fatal("expected heartbeat, got nil")
	}
	if hb.PID != os.Getpid() {
		t.Errorf("PID: got %d, want %d", hb.PID, os.Getpid())
	}
	if hb.Uptime == "" {
		t.Error("expected non-empty uptime")
	}
	if hb.Cycles != 3 || hb.LastCycleAt == nil || !hb.LastCycleAt.Equal(last) {
		t.Errorf("cycle info: got cycles=%d last=%v", hb.Cycles, hb.LastCycleAt)
	}
}

func TestWriterRefreshes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "heartbeat.json")

	w := NewWriter(path, WithInterval(20*time.Millisecond))
	w.Start()
	defer w.Stop()

	_, first, err := Check(path, time.Minute)
	if err != nil || first == nil {
		t.Fatalf("Check: %v, %v", first, err)
	}

	time.Sleep(100 * time.Millisecond)
	_, second, err := Check(path, time.Minute)
	if err != nil || second == nil {
		t.Fatalf("Check: %v, %v", second, err)
	}
	if !second.Timestamp.After(first.Timestamp) {
		t.Errorf("heartbeat not refreshed: %v -> %v", first.Timestamp, second.Timestamp)
	}
}

func TestStaleDetection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "heartbeat.json")

	old := Heartbeat{
		PID:       os.Getpid(),
		StartedAt: time.Now().Add(-2 * time.Hour),
		Timestamp: time.Now().Add(-1 * time.Hour),
		Uptime:    "1h0m0s",
	}
	data, _ := json.Marshal(old)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	status, hb, err := Check(path, 30*time.Minute)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if status != StatusStale {
		t.Errorf("expected stale, got %s", status)
	}
	if hb == nil {
		t.Fatal("expected heartbeat, got nil")
	}
}

func TestDeadDetection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "heartbeat.json")

	status, hb, err := Check(path, 2*time.Minute)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if status != StatusDead {
		t.Errorf("expected dead, got %s", status)
	}
	if hb != nil {
		t.Errorf("expected nil heartbeat, got %+v", hb)
	}
}

func TestCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "heartbeat.json")
	if err := os.WriteFile(path, []byte("{"), 0o644); err != nil {
		t.Fatal(err)
	}
	status, _, err := Check(path, time.Minute)
	if err == nil || status != StatusDead {
		t.Errorf("got %s, %v; want dead with error", status, err)
	}
}

func TestStopRemovesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "heartbeat.json")

	w := NewWriter(path)
	w.Start()
	w.Start()
	w.Stop()
	w.Stop()

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("expected heartbeat file to be removed after Stop")
	}
	w.Touch()
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("Touch on a stopped writer must not write")
	}
}
