package diagnose

import "sync"

// PageLoadStatus describes how far the device UI got during navigation.
type PageLoadStatus string

const (
	LoadUnset    PageLoadStatus = ""
	LoadFailed   PageLoadStatus = "not_loaded"
	LoadPartial  PageLoadStatus = "partially_loaded"
	LoadComplete PageLoadStatus = "fully_loaded"
)

// Context is the single mutable aggregate for one diagnostic session. It is
// created once, mutated by the serialized step dispatcher, and read in full
// by the report generator. It is never cleared, not even when the page
// inspector is torn down.
//
// Only the observation lists need the mutex: CDP network/console events
// arrive on the inspector's event goroutine while the dispatcher may be
// running a phase. Everything else is touched solely by the dispatcher,
// which the caller invokes sequentially.
type Context struct {
	Target         Target
	CurrentPhase   string
	PageLoadStatus PageLoadStatus

	BrokenImages   []string
	DeviceLinks    []string
	StaticPaths    []string
	WebSocketNotes []string
	Redirects      []RedirectRecord

	// Outcome of the curl-style header probe (phase 7).
	ProbeStatus  int
	ProbeHeaders map[string]string

	Rules Catalog

	mu       sync.Mutex
	network  []NetworkObservation
	console  []ConsoleObservation
	pending  map[string]int // request ID -> index into network
	issues   []string
}

// NewContext returns an empty diagnostic context.
func NewContext() *Context {
	return &Context{pending: make(map[string]int)}
}

// AddIssue appends a human-readable finding to the issue log. The log is
// ordered and never deduplicated; repetition is signal.
func (c *Context) AddIssue(issue string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.issues = append(c.issues, issue)
}

// Issues returns the issue log verbatim, in insertion order.
func (c *Context) Issues() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.issues))
	copy(out, c.issues)
	return out
}

// IssueCount returns the current length of the issue log.
func (c *Context) IssueCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.issues)
}

// SetTarget fixes the device identity. Guarded by the mutex so the
// inspector's event goroutine reads a consistent target while deriving
// observation scope.
func (c *Context) SetTarget(target Target) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Target = target
}

// RecordRequest folds an inspector request event into the observation list.
// The derived in-scope booleans are computed against the current target.
func (c *Context) RecordRequest(id, method, url string, headers map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	obs := newNetworkObservation(c.Target, id, method, url, headers)
	c.network = append(c.network, obs)
	if id != "" {
		c.pending[id] = len(c.network) - 1
	}
}

// RecordResponse attaches status and headers to a previously recorded
// request. Unknown IDs are dropped; the inspector can emit responses for
// requests sent before the session attached.
func (c *Context) RecordResponse(id string, status int, headers map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx, ok := c.pending[id]
	if !ok {
		return
	}
	c.network[idx].Status = status
	c.network[idx].ResponseHeaders = headers
}

// RecordRequestFailure attaches a transport-level error to a pending request.
func (c *Context) RecordRequestFailure(id, errText string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx, ok := c.pending[id]
	if !ok {
		return
	}
	c.network[idx].Error = errText
}

// RecordConsole folds an inspector console event into the observation list,
// applying the retention rule (errors and known signatures only).
func (c *Context) RecordConsole(severity, message, sourceURL string, line int) {
	obs := newConsoleObservation(severity, message, sourceURL, line)
	if !obs.worthKeeping() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.console = append(c.console, obs)
}

// NetworkObservations returns a snapshot of the accumulated network activity.
func (c *Context) NetworkObservations() []NetworkObservation {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]NetworkObservation, len(c.network))
	copy(out, c.network)
	return out
}

// ConsoleObservations returns a snapshot of the retained console activity.
func (c *Context) ConsoleObservations() []ConsoleObservation {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ConsoleObservation, len(c.console))
	copy(out, c.console)
	return out
}
