package diagnose

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"
)

// TraceSink receives session trace events (flight recorder). A nil sink
// disables tracing.
type TraceSink interface {
	Log(eventType, sessionID string, data interface{})
}

// Response is the payload returned for every submitted step. Counts only;
// the full report is attached only on the terminal step.
type Response struct {
	ThoughtNumber        int      `json:"thoughtNumber"`
	TotalThoughts        int      `json:"totalThoughts"`
	NextThoughtNeeded    bool     `json:"nextThoughtNeeded"`
	ThoughtHistoryLength int      `json:"thoughtHistoryLength"`
	Branches             []string `json:"branches"`
	CurrentPhase         string   `json:"currentPhase,omitempty"`
	DeviceURL            string   `json:"deviceUrl,omitempty"`
	IdentifiedIssues     int      `json:"identifiedIssues"`
	RewriteRules         int      `json:"rewriteRules"`

	Report *Report `json:"report,omitempty"`

	Error  string `json:"error,omitempty"`
	Status string `json:"status,omitempty"`
}

// phaseEntry pairs trigger keywords with an analyzer. The table below is an
// explicit ordered contract: dispatch walks it top to bottom and the first
// entry with a keyword present in the step text wins.
type phaseEntry struct {
	label    string
	keywords []string
	run      func(ctx context.Context, session *Session, text string) error
}

// Session owns one diagnostic run: the thought ledger, the diagnostic
// context, and the two external collaborators. Callers must serialize
// Submit; the session provides no internal mutex for dispatch.
type Session struct {
	ID string

	ledger    Ledger
	dctx      *Context
	inspector PageInspector
	prober    HeaderProber
	trace     TraceSink

	defaultsSeeded bool
	inspectorLive  bool

	phases []phaseEntry
}

// NewSession wires a fresh session around the given collaborators. Either
// collaborator may be nil; phases that need a missing collaborator degrade
// to an issue-log note instead of failing.
func NewSession(inspector PageInspector, prober HeaderProber, trace TraceSink) *Session {
	s := &Session{
		ID:        uuid.NewString(),
		dctx:      NewContext(),
		inspector: inspector,
		prober:    prober,
		trace:     trace,
	}
	s.phases = []phaseEntry{
		{label: "enable_defaults", keywords: []string{"start", "initialize"}, run: phaseEnableDefaults},
		{label: "page_load", keywords: []string{"page load", "login page"}, run: phasePageLoad},
		{label: "resources", keywords: []string{"images", "links", "resources"}, run: phaseResources},
		{label: "websocket", keywords: []string{"websocket", "ws://"}, run: phaseWebSocket},
		{label: "redirects", keywords: []string{"redirect", "port"}, run: phaseRedirects},
		{label: "network_console", keywords: []string{"network", "console", "error"}, run: phaseNetworkConsole},
		{label: "header_probe", keywords: []string{"curl", "header"}, run: phaseHeaderProbe},
	}
	return s
}

// Context exposes the diagnostic context for report building and tests.
func (s *Session) Context() *Context { return s.dctx }

// Ledger exposes the thought ledger.
func (s *Session) Ledger() *Ledger { return &s.ledger }

// Submit runs one step through validation, the ledger, target discovery, and
// at most one phase analyzer. Failures never escape as errors: malformed
// steps and phase crashes both come back as a Response with the failure flag
// set, leaving whatever state the phase managed to apply in place.
func (s *Session) Submit(ctx context.Context, step Step) *Response {
	if err := step.Validate(); err != nil {
		return &Response{Error: err.Error(), Status: "failed"}
	}

	stored := s.ledger.Append(step)
	s.trackTarget(stored.Thought)

	text := strings.ToLower(stored.Thought)
	if err := s.dispatch(ctx, text); err != nil {
		log.Printf("[session:%s] phase %s failed: %v", s.ID, s.dctx.CurrentPhase, err)
		resp := s.summary(stored)
		resp.Error = fmt.Sprintf("phase %s failed: %v", s.dctx.CurrentPhase, err)
		resp.Status = "failed"
		return resp
	}

	if s.trace != nil {
		s.trace.Log("step", s.ID, map[string]interface{}{
			"thought":      stored.Thought,
			"number":       stored.Number,
			"phase":        s.dctx.CurrentPhase,
			"rewriteRules": s.dctx.Rules.Len(),
		})
	}

	resp := s.summary(stored)
	if !stored.NextNeeded {
		resp.Report = BuildReport(s.dctx)
	}
	return resp
}

// dispatch resolves the step text to at most one phase. "finish"/"complete"
// are not phases: they tear the inspector page down after whatever phase the
// step also named has run, so a step can both analyze and close. Context
// data survives teardown so the report can still be built.
func (s *Session) dispatch(ctx context.Context, text string) error {
	if containsAny(text, []string{"finish", "complete"}) {
		defer s.releaseInspector(ctx)
	}

	for _, entry := range s.phases {
		if !containsAny(text, entry.keywords) {
			continue
		}
		s.dctx.CurrentPhase = entry.label
		return entry.run(ctx, s, text)
	}
	return nil
}

// trackTarget performs one-shot URL discovery. The first step carrying an
// http(s):// token fixes the target for the life of the session.
func (s *Session) trackTarget(thought string) {
	if s.dctx.Target.URL != "" {
		return
	}
	raw := ExtractTargetURL(thought)
	if raw == "" {
		return
	}
	s.dctx.SetTarget(NewTarget(raw))
	log.Printf("[session:%s] target device identified: %s", s.ID, raw)
}

// acquireInspector lazily brings up the page inspector, wiring its event
// stream into the diagnostic context. Safe to call repeatedly.
func (s *Session) acquireInspector(ctx context.Context) error {
	if s.inspector == nil {
		s.dctx.AddIssue("Page inspector unavailable: browser-based phases will be skipped")
		return nil
	}
	if s.inspectorLive {
		return nil
	}
	if err := s.inspector.Acquire(ctx, s.dctx); err != nil {
		return fmt.Errorf("acquire page inspector: %w", err)
	}
	s.inspectorLive = true
	return nil
}

func (s *Session) releaseInspector(ctx context.Context) {
	if s.inspector == nil || !s.inspectorLive {
		return
	}
	if err := s.inspector.Release(ctx); err != nil {
		log.Printf("[session:%s] inspector release: %v", s.ID, err)
	}
	s.inspectorLive = false
}

// inspectorReady guards phases that need a live page. The original behavior
// is kept: a phase invoked before "start" is a no-op, but it leaves a
// breadcrumb in the issue log instead of failing the step.
func (s *Session) inspectorReady() bool {
	if s.inspector != nil && s.inspectorLive {
		return true
	}
	s.dctx.AddIssue("Phase skipped: page inspector not started (submit a \"start\" step first)")
	return false
}

func (s *Session) summary(step Step) *Response {
	return &Response{
		ThoughtNumber:        step.Number,
		TotalThoughts:        step.Total,
		NextThoughtNeeded:    step.NextNeeded,
		ThoughtHistoryLength: s.ledger.Len(),
		Branches:             s.ledger.BranchNames(),
		CurrentPhase:         s.dctx.CurrentPhase,
		DeviceURL:            s.dctx.Target.URL,
		IdentifiedIssues:     s.dctx.IssueCount(),
		RewriteRules:         s.dctx.Rules.Len(),
	}
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
