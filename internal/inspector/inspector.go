// Package inspector implements the page inspector collaborator on top of
// go-rod: one lazily created Chrome page whose network and console events
// are folded into the diagnostic session's observation sink.
package inspector

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"otdebug-mcp-server/internal/config"
	"otdebug-mcp-server/internal/diagnose"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
)

// Manager owns the detached Chrome instance and the single inspector page.
// The page is created on the first Acquire and torn down by Release; a later
// Acquire builds a fresh one against the same browser.
type Manager struct {
	cfg config.BrowserConfig

	// Lifetime context for the browser connection and the CDP event stream.
	// Tool-call contexts are cancelled by the MCP transport as soon as the
	// handler returns (SSE mode cancels eagerly), so anything that must
	// outlive a single call hangs off this one. Cancelled by Shutdown.
	lifeCtx  context.Context
	lifeStop context.CancelFunc

	mu         sync.Mutex
	browser    *rod.Browser
	controlURL string
	page       *rod.Page
	eventStop  context.CancelFunc

	// Last main-document response, tracked from the network stream so
	// Navigate can report a status rod itself does not surface.
	docStatus int
	docURL    string
	docSeen   bool
}

func NewManager(cfg config.BrowserConfig) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{cfg: cfg, lifeCtx: ctx, lifeStop: cancel}
}

// Start connects to an existing Chrome or launches a new one using Rod's
// launcher. Idempotent while the connection stays healthy.
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.startLocked()
}

func (m *Manager) startLocked() error {
	if m.browser != nil {
		if _, err := m.browser.Version(); err == nil {
			return nil
		}
		log.Printf("stale browser connection detected, reconnecting...")
		_ = m.browser.Close()
		m.browser = nil
		m.page = nil
		m.controlURL = ""
	}

	controlURL := m.cfg.DebuggerURL
	if controlURL == "" && len(m.cfg.Launch) > 0 {
		bin := m.cfg.Launch[0]
		launch := launcher.New().Bin(bin).Headless(m.cfg.IsHeadless())
		for _, rawFlag := range m.cfg.Launch[1:] {
			flagStr := strings.TrimLeft(rawFlag, "-")
			name, val, hasVal := strings.Cut(flagStr, "=")
			if hasVal {
				launch = launch.Set(flags.Flag(name), val)
			} else {
				launch = launch.Set(flags.Flag(name))
			}
		}
		url, err := launch.Launch()
		if err != nil {
			// Fallback: let Rod pick the port and defaults.
			fallback := launcher.New().Bin(bin).Headless(m.cfg.IsHeadless())
			alt, altErr := fallback.Launch()
			if altErr != nil {
				return fmt.Errorf("launch chrome: %w (fallback: %v)", err, altErr)
			}
			url = alt
		}
		controlURL = url
	}

	if controlURL == "" {
		return errors.New("no debugger_url or launch command provided")
	}

	browser := rod.New().ControlURL(controlURL).Context(m.lifeCtx)
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("connect to chrome: %w", err)
	}

	m.browser = browser
	m.controlURL = controlURL
	log.Printf("browser connected at %s", controlURL)
	return nil
}

// Acquire lazily creates the inspector page and subscribes its CDP event
// stream to the sink. A no-op while a page is already live. The page and
// stream are bound to the manager lifetime, never the caller's context.
func (m *Manager) Acquire(_ context.Context, sink diagnose.ObservationSink) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.page != nil {
		return nil
	}
	if err := m.startLocked(); err != nil {
		return err
	}

	incognito, err := m.browser.Incognito()
	if err != nil {
		return fmt.Errorf("incognito context: %w", err)
	}

	page, err := incognito.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return fmt.Errorf("create page: %w", err)
	}

	if err := (proto.EmulationSetDeviceMetricsOverride{
		Width:             m.cfg.GetViewportWidth(),
		Height:            m.cfg.GetViewportHeight(),
		DeviceScaleFactor: 1.0,
		Mobile:            false,
	}).Call(page); err != nil {
		log.Printf("warning: failed to set viewport: %v", err)
	}

	m.page = page
	m.docSeen = false
	m.startEventStream(page, sink)
	return nil
}

// Release closes the inspector page and stops the event stream. The browser
// connection stays up so a later "start" step can reacquire cheaply.
func (m *Manager) Release(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.eventStop != nil {
		m.eventStop()
		m.eventStop = nil
	}
	if m.page == nil {
		return nil
	}
	err := m.page.Close()
	m.page = nil
	return err
}

// Shutdown tears down the page and the underlying browser.
func (m *Manager) Shutdown(ctx context.Context) error {
	if err := m.Release(ctx); err != nil {
		log.Printf("inspector page close: %v", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	var err error
	if m.browser != nil {
		err = m.browser.Close()
		m.browser = nil
	}
	m.controlURL = ""
	m.lifeStop()
	return err
}

// Navigate drives the page to the URL and reports the main-document status.
// A nil result (with nil error) means the device produced no response at all.
func (m *Manager) Navigate(ctx context.Context, url string) (*diagnose.NavigationResult, error) {
	page := m.currentPage()
	if page == nil {
		return nil, errors.New("inspector page not acquired")
	}

	m.mu.Lock()
	m.docSeen = false
	m.docStatus = 0
	m.docURL = ""
	m.mu.Unlock()

	timeout := m.cfg.NavigationTimeout()
	navErr := page.Context(ctx).Timeout(timeout).Navigate(url)
	// Best-effort settle; a broken device page may never fire load.
	_ = page.Context(ctx).Timeout(timeout).WaitLoad()

	m.mu.Lock()
	seen, status, finalURL := m.docSeen, m.docStatus, m.docURL
	m.mu.Unlock()

	if !seen {
		if navErr != nil {
			return nil, nil
		}
		// Navigation "succeeded" without a tracked document response
		// (e.g. about:blank); report what the page itself knows.
		if info, err := page.Info(); err == nil {
			return &diagnose.NavigationResult{Status: 200, FinalURL: info.URL}, nil
		}
		return nil, nil
	}
	if finalURL == "" {
		if info, err := page.Info(); err == nil {
			finalURL = info.URL
		}
	}
	return &diagnose.NavigationResult{Status: status, FinalURL: finalURL}, nil
}

// HTML returns the page's current markup.
func (m *Manager) HTML(ctx context.Context) (string, error) {
	page := m.currentPage()
	if page == nil {
		return "", errors.New("inspector page not acquired")
	}
	return page.Context(ctx).HTML()
}

// ProbePage snapshots the DOM facts the page-load phase classifies on.
func (m *Manager) ProbePage(ctx context.Context) (*diagnose.PageProbe, error) {
	page := m.currentPage()
	if page == nil {
		return nil, errors.New("inspector page not acquired")
	}

	res, err := page.Context(ctx).Evaluate(&rod.EvalOptions{
		JS: `
		() => {
			const body = document.body;
			const text = body ? (body.innerText || '') : '';
			const lower = text.toLowerCase();
			const hasPassword = !!document.querySelector('input[type="password"]');
			const hasForm = !!document.querySelector('form');
			const loginWords = lower.includes('login') || lower.includes('sign in') || lower.includes('username');
			return {
				bodyLength: text.length,
				bodyText: text.slice(0, 2048),
				hasLoginForm: hasPassword || (hasForm && loginWords),
				hasTryAgain: lower.includes('try again')
			};
		}
		`,
		ByValue:      true,
		AwaitPromise: true,
	})
	if err != nil || res == nil {
		return nil, fmt.Errorf("page probe: %w", err)
	}

	var probe struct {
		BodyLength   int    `json:"bodyLength"`
		BodyText     string `json:"bodyText"`
		HasLoginForm bool   `json:"hasLoginForm"`
		HasTryAgain  bool   `json:"hasTryAgain"`
	}
	if err := res.Value.Unmarshal(&probe); err != nil {
		return nil, fmt.Errorf("decode page probe: %w", err)
	}
	return &diagnose.PageProbe{
		BodyLength:   probe.BodyLength,
		BodyText:     probe.BodyText,
		HasLoginForm: probe.HasLoginForm,
		HasTryAgain:  probe.HasTryAgain,
	}, nil
}

// ProbeResources enumerates the DOM's resource references by kind, flagging
// images the browser failed to render.
func (m *Manager) ProbeResources(ctx context.Context) (*diagnose.ResourceProbe, error) {
	page := m.currentPage()
	if page == nil {
		return nil, errors.New("inspector page not acquired")
	}

	res, err := page.Context(ctx).Evaluate(&rod.EvalOptions{
		JS: `
		() => {
			const images = Array.from(document.querySelectorAll('img[src]')).map(img => ({
				url: img.getAttribute('src') || '',
				broken: !!(img.complete && img.naturalWidth === 0)
			}));
			const links = Array.from(document.querySelectorAll('a[href]')).map(a => ({
				url: a.getAttribute('href') || '',
				broken: false
			}));
			const scripts = Array.from(document.querySelectorAll('script[src]')).map(s => ({
				url: s.getAttribute('src') || '',
				broken: false
			}));
			const stylesheets = Array.from(document.querySelectorAll('link[rel="stylesheet"][href]')).map(l => ({
				url: l.getAttribute('href') || '',
				broken: false
			}));
			return { images, links, scripts, stylesheets };
		}
		`,
		ByValue:      true,
		AwaitPromise: true,
	})
	if err != nil || res == nil {
		return nil, fmt.Errorf("resource probe: %w", err)
	}

	var probe struct {
		Images      []resourceRef `json:"images"`
		Links       []resourceRef `json:"links"`
		Scripts     []resourceRef `json:"scripts"`
		Stylesheets []resourceRef `json:"stylesheets"`
	}
	if err := res.Value.Unmarshal(&probe); err != nil {
		return nil, fmt.Errorf("decode resource probe: %w", err)
	}
	return &diagnose.ResourceProbe{
		Images:      toRefs(probe.Images),
		Links:       toRefs(probe.Links),
		Scripts:     toRefs(probe.Scripts),
		Stylesheets: toRefs(probe.Stylesheets),
	}, nil
}

type resourceRef struct {
	URL    string `json:"url"`
	Broken bool   `json:"broken"`
}

func toRefs(in []resourceRef) []diagnose.ResourceRef {
	out := make([]diagnose.ResourceRef, 0, len(in))
	for _, r := range in {
		if r.URL == "" {
			continue
		}
		out = append(out, diagnose.ResourceRef{URL: r.URL, Broken: r.Broken})
	}
	return out
}

func (m *Manager) currentPage() *rod.Page {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.page
}

// startEventStream wires Rod CDP events into the observation sink
// (console + network). Events arrive in arrival order, not request order.
// The stream lives until Release or Shutdown, not until the acquiring tool
// call returns.
func (m *Manager) startEventStream(page *rod.Page, sink diagnose.ObservationSink) {
	streamCtx, cancel := context.WithCancel(m.lifeCtx)
	m.eventStop = cancel

	wait := page.Context(streamCtx).EachEvent(
		func(ev *proto.NetworkRequestWillBeSent) {
			if ev.Request == nil {
				return
			}
			headers := make(map[string]string, len(ev.Request.Headers))
			for k, v := range ev.Request.Headers {
				headers[strings.ToLower(k)] = fmt.Sprintf("%v", v)
			}
			sink.RecordRequest(string(ev.RequestID), ev.Request.Method, ev.Request.URL, headers)
		},
		func(ev *proto.NetworkResponseReceived) {
			if ev.Response == nil {
				return
			}
			headers := make(map[string]string, len(ev.Response.Headers))
			for k, v := range ev.Response.Headers {
				headers[k] = fmt.Sprintf("%v", v)
			}
			sink.RecordResponse(string(ev.RequestID), ev.Response.Status, headers)

			if ev.Type == proto.NetworkResourceTypeDocument {
				m.mu.Lock()
				m.docSeen = true
				m.docStatus = ev.Response.Status
				m.docURL = ev.Response.URL
				m.mu.Unlock()
			}
		},
		func(ev *proto.NetworkLoadingFailed) {
			sink.RecordRequestFailure(string(ev.RequestID), ev.ErrorText)
		},
		func(ev *proto.RuntimeConsoleAPICalled) {
			sourceURL := ""
			line := 0
			if ev.StackTrace != nil && len(ev.StackTrace.CallFrames) > 0 {
				sourceURL = ev.StackTrace.CallFrames[0].URL
				line = ev.StackTrace.CallFrames[0].LineNumber
			}
			sink.RecordConsole(string(ev.Type), stringifyConsoleArgs(ev.Args), sourceURL, line)
		},
	)

	go wait()
}

func stringifyConsoleArgs(args []*proto.RuntimeRemoteObject) string {
	parts := make([]string, 0, len(args))
	for _, a := range args {
		if a == nil {
			continue
		}
		if !a.Value.Nil() {
			parts = append(parts, a.Value.String())
			continue
		}
		if a.Description != "" {
			parts = append(parts, a.Description)
		}
	}
	return strings.Join(parts, " ")
}
