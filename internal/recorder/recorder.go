// Package recorder persists a JSONL trace of each diagnostic session: the
// steps an operator submitted, which phase each one triggered, and the rule
// counts as they grew. The trace is the audit trail replacing the original
// tool's console banners.
package recorder

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// MaxRotatedTraces bounds how many past session traces are kept on disk.
const MaxRotatedTraces = 5

// Event is a single trace record.
type Event struct {
	Timestamp time.Time   `json:"ts"`
	Kind      string      `json:"kind"`
	SessionID string      `json:"session_id,omitempty"`
	Payload   interface{} `json:"payload"`
}

// Recorder appends events for the active session to a rotating JSONL file.
type Recorder struct {
	mu       sync.Mutex
	file     *os.File
	encoder  *json.Encoder
	basePath string
}

// New creates a recorder rooted at basePath, creating the directory if
// needed.
func New(basePath string) (*Recorder, error) {
	if basePath == "" {
		return nil, fmt.Errorf("recorder base path is required")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, err
	}
	return &Recorder{basePath: basePath}, nil
}

// Start opens a fresh trace file for a diagnostic session, rotating old
// traces out.
func (r *Recorder) Start(sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file != nil {
		_ = r.file.Close()
		r.file = nil
	}

	if err := r.rotate(); err != nil {
		return fmt.Errorf("rotate traces: %w", err)
	}

	filename := fmt.Sprintf("session_%s_%d.jsonl", sessionID, time.Now().UnixMilli())
	f, err := os.Create(filepath.Join(r.basePath, filename))
	if err != nil {
		return err
	}

	r.file = f
	r.encoder = json.NewEncoder(f)
	return nil
}

// Log writes one event to the current trace. A recorder without an open
// trace silently drops events so callers never need a nil check per step.
func (r *Recorder) Log(kind, sessionID string, payload interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.encoder == nil {
		return
	}

	_ = r.encoder.Encode(Event{
		Timestamp: time.Now(),
		Kind:      kind,
		SessionID: sessionID,
		Payload:   payload,
	})
}

// rotate keeps only the newest MaxRotatedTraces files.
func (r *Recorder) rotate() error {
	entries, err := os.ReadDir(r.basePath)
	if err != nil {
		return err
	}

	var traces []struct {
		Name string
		Time time.Time
	}
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".jsonl" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		traces = append(traces, struct {
			Name string
			Time time.Time
		}{e.Name(), info.ModTime()})
	}

	sort.Slice(traces, func(i, j int) bool {
		return traces[i].Time.After(traces[j].Time)
	})

	if len(traces) >= MaxRotatedTraces {
		// Keep N-1 to make room for the trace about to be created.
		for i := MaxRotatedTraces - 1; i < len(traces); i++ {
			_ = os.Remove(filepath.Join(r.basePath, traces[i].Name))
		}
	}
	return nil
}

// Close finishes the current trace.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file != nil {
		err := r.file.Close()
		r.file = nil
		r.encoder = nil
		return err
	}
	return nil
}
