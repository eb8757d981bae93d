package recorder

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func traceFiles(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	var names []string
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".jsonl" {
			names = append(names, e.Name())
		}
	}
	return names
}

func TestNewRequiresBasePath(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Error("expected error for empty base path")
	}
}

func TestStartLogCloseRoundTrip(t *testing.T) {
	dir := t.TempDir()
	rec, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := rec.Start("abc123"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	rec.Log("step", "abc123", map[string]interface{}{"thought": "start debugging", "number": 1})
	rec.Log("step", "abc123", map[string]interface{}{"thought": "check websockets", "number": 2})
	if err := rec.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	files := traceFiles(t, dir)
	if len(files) != 1 {
		t.Fatalf("trace files = %d, want 1", len(files))
	}

	f, err := os.Open(filepath.Join(dir, files[0]))
	if err != nil {
		t.Fatalf("open trace: %v", err)
	}
	defer f.Close()

	var events []Event
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var ev Event
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			t.Fatalf("bad trace line %q: %v", scanner.Text(), err)
		}
		events = append(events, ev)
	}

	if len(events) != 2 {
		t.Fatalf("events = %d, want 2", len(events))
	}
	if events[0].Kind != "step" || events[0].SessionID != "abc123" {
		t.Fatalf("event[0] = %+v", events[0])
	}
	if events[0].Timestamp.IsZero() {
		t.Error("event timestamp not set")
	}
}

func TestLogWithoutStartIsDropped(t *testing.T) {
	dir := t.TempDir()
	rec, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rec.Log("step", "nosession", "ignored")

	if files := traceFiles(t, dir); len(files) != 0 {
		t.Fatalf("expected no trace files, got %v", files)
	}
}

func TestRotationBoundsTraceCount(t *testing.T) {
	dir := t.TempDir()
	rec, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	for i := 0; i < MaxRotatedTraces+3; i++ {
		if err := rec.Start("session"); err != nil {
			t.Fatalf("Start %d: %v", i, err)
		}
		rec.Log("step", "session", i)
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if files := traceFiles(t, dir); len(files) > MaxRotatedTraces {
		t.Fatalf("trace files = %d, want at most %d", len(files), MaxRotatedTraces)
	}
}

func TestCloseWithoutStart(t *testing.T) {
	rec, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := rec.Close(); err != nil {
		t.Errorf("Close on idle recorder: %v", err)
	}
}
