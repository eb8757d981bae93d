package diagnose

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"

	"otdebug-mcp-server/internal/signature"
)

// wellKnownWSPorts are the WebSocket ports legacy device firmware is known
// to hardcode.
var wellKnownWSPorts = []int{8080, 8081, 8443, 9001}

// phaseEnableDefaults seeds the baseline rule set every proxied device needs.
// Idempotent: a second "start" step is a no-op for the catalog, though it
// still (re)acquires the page inspector after a teardown.
func phaseEnableDefaults(ctx context.Context, s *Session, _ string) error {
	if err := s.acquireInspector(ctx); err != nil {
		return err
	}
	if s.defaultsSeeded {
		return nil
	}
	s.defaultsSeeded = true

	s.dctx.Rules.Add(RewriteRule{
		Kind: RuleKindDefault, Action: ActionEnable,
		Description: "Enable default reverse-proxy rewrite rules",
		Priority:    1,
	})
	s.dctx.Rules.Add(RewriteRule{
		Kind: RuleKindHeader, Action: ActionAdd,
		Header: "X-Forwarded-Host", Value: PlaceholderExternalFQDN,
		Description: "Tell the device which external hostname the client used",
		Priority:    2,
	})
	s.dctx.Rules.Add(RewriteRule{
		Kind: RuleKindHeader, Action: ActionAdd,
		Header: "X-Forwarded-Proto", Value: "https",
		Description: "Device sits behind TLS termination",
		Priority:    3,
	})
	s.dctx.Rules.Add(RewriteRule{
		Kind: RuleKindHeader, Action: ActionReplace,
		Header: "Host", Value: PlaceholderInternalIP,
		Description: "Rewrite Host to the device's internal address",
		Priority:    4,
	})
	return nil
}

// phasePageLoad drives the browser to the device URL and classifies how much
// of the UI rendered.
func phasePageLoad(ctx context.Context, s *Session, _ string) error {
	if !s.inspectorReady() {
		return nil
	}
	if s.dctx.Target.URL == "" {
		s.dctx.AddIssue("Page load phase skipped: no device URL identified yet")
		return nil
	}

	nav, err := s.inspector.Navigate(ctx, s.dctx.Target.URL)
	if err != nil {
		s.dctx.PageLoadStatus = LoadFailed
		s.dctx.AddIssue(fmt.Sprintf("Navigation to %s failed: %v", s.dctx.Target.URL, err))
		return nil
	}
	if nav == nil {
		s.dctx.PageLoadStatus = LoadFailed
		s.dctx.AddIssue(fmt.Sprintf("CRITICAL: no response from %s - device unreachable through proxy", s.dctx.Target.URL))
		return nil
	}

	if nav.Status == 400 {
		s.dctx.PageLoadStatus = LoadFailed
		s.dctx.AddIssue("Device returned HTTP 400: it rejects the proxied Host header")
		s.dctx.Rules.Add(RewriteRule{
			Kind: RuleKindHeader, Action: ActionReplace,
			Header: "Host", Value: PlaceholderHostname,
			Description: "Device requires its own hostname in Host (HTTP 400 on proxied requests)",
			Priority:    10,
		})
		s.dctx.Rules.Add(RewriteRule{
			Kind: RuleKindHeader, Action: ActionAdd,
			Header: "X-Real-IP", Value: PlaceholderRealIP,
			Description: "Preserve the real client address for the device's access checks",
			Priority:    11,
		})
		return nil
	}

	probe, err := s.inspector.ProbePage(ctx)
	if err != nil {
		s.dctx.AddIssue(fmt.Sprintf("DOM probe failed after navigation: %v", err))
		return nil
	}

	switch {
	case probe.BodyLength < 50:
		s.dctx.PageLoadStatus = LoadFailed
		s.dctx.AddIssue("Page body is empty or near-empty: device UI did not render")
	case probe.HasLoginForm:
		s.dctx.PageLoadStatus = LoadComplete
	case nav.Status != 200:
		s.dctx.PageLoadStatus = LoadPartial
		s.dctx.AddIssue(fmt.Sprintf("Page rendered without a login form (HTTP %d): likely partial load", nav.Status))
	default:
		s.dctx.PageLoadStatus = LoadComplete
	}

	if probe.HasTryAgain {
		s.dctx.AddIssue("Page shows a 'try again' message: the device UI detected a backend failure")
		s.dctx.AddIssue("Check whether the device's session endpoint is reachable through the proxy")
	}
	return nil
}

// phaseResources enumerates the DOM's resource references and generates
// find/replace rules for everything still pointing at the device directly.
func phaseResources(ctx context.Context, s *Session, _ string) error {
	if !s.inspectorReady() {
		return nil
	}

	probe, err := s.inspector.ProbeResources(ctx)
	if err != nil {
		s.dctx.AddIssue(fmt.Sprintf("Resource probe failed: %v", err))
		return nil
	}

	for _, img := range probe.Images {
		if !img.Broken || !s.refTargetsDevice(img.URL) {
			continue
		}
		s.dctx.BrokenImages = append(s.dctx.BrokenImages, img.URL)
		pattern, replacement := s.hostPathRewrite(img.URL)
		s.dctx.Rules.Add(RewriteRule{
			Kind: RuleKindBody, Action: ActionFindReplace,
			Pattern: pattern, Replacement: replacement,
			Description: fmt.Sprintf("Fix broken image reference %s", img.URL),
			Priority:    20,
		})
	}

	for _, link := range probe.Links {
		if !s.refTargetsDevice(link.URL) {
			continue
		}
		s.dctx.DeviceLinks = append(s.dctx.DeviceLinks, link.URL)
		pattern, replacement := s.hostPathRewrite(link.URL)
		s.dctx.Rules.Add(RewriteRule{
			Kind: RuleKindBody, Action: ActionFindReplace,
			Pattern: pattern, Replacement: replacement,
			Description: fmt.Sprintf("Rewrite device-addressed link %s", link.URL),
			Priority:    21,
		})
	}

	for _, ref := range append(probe.Scripts, probe.Stylesheets...) {
		if !isStaticPath(ref.URL) {
			continue
		}
		s.dctx.StaticPaths = append(s.dctx.StaticPaths, ref.URL)
		pattern, replacement := s.hostPathRewrite(ref.URL)
		s.dctx.Rules.Add(RewriteRule{
			Kind: RuleKindBody, Action: ActionFindReplace,
			Pattern: pattern, Replacement: replacement,
			Description: fmt.Sprintf("Rewrite static asset path %s", ref.URL),
			Priority:    22,
		})
	}
	return nil
}

// phaseWebSocket scans the raw markup for WebSocket usage. Legacy firmware
// hardcodes ws:// URLs with fixed ports; each well-known port gets an
// upgrade-to-wss rewrite.
func phaseWebSocket(ctx context.Context, s *Session, _ string) error {
	if !s.inspectorReady() {
		return nil
	}

	html, err := s.inspector.HTML(ctx)
	if err != nil {
		s.dctx.AddIssue(fmt.Sprintf("HTML scan failed: %v", err))
		return nil
	}
	if !strings.Contains(html, "WebSocket") &&
		!strings.Contains(html, "ws://") &&
		!strings.Contains(html, "wss://") {
		return nil
	}

	host := s.dctx.Target.Hostname
	s.dctx.WebSocketNotes = append(s.dctx.WebSocketNotes,
		fmt.Sprintf("Markup references WebSocket connections to %s", host))
	s.dctx.AddIssue("Device UI uses WebSockets: plain ws:// connections will fail through the TLS proxy")

	for _, port := range wellKnownWSPorts {
		s.dctx.Rules.Add(RewriteRule{
			Kind: RuleKindBody, Action: ActionFindReplace,
			Pattern:     fmt.Sprintf("ws://%s:%d", host, port),
			Replacement: fmt.Sprintf("wss://%s:%d", PlaceholderExternalFQDN, port),
			Description: fmt.Sprintf("Upgrade WebSocket endpoint on port %d to wss through the proxy", port),
			Priority:    30,
		})
	}
	return nil
}

// phaseRedirects walks the accumulated network observations for 3xx
// responses whose Location still names the device.
func phaseRedirects(_ context.Context, s *Session, _ string) error {
	for _, obs := range s.dctx.NetworkObservations() {
		if obs.Status < 300 || obs.Status >= 400 {
			continue
		}
		location := headerValue(obs.ResponseHeaders, "Location")
		if location == "" {
			continue
		}

		record := RedirectRecord{FromURL: obs.URL, Location: location, Status: obs.Status}
		if u, err := url.Parse(location); err == nil {
			record.Port = u.Port()
			if record.Port != "" {
				s.dctx.AddIssue(fmt.Sprintf("Redirect to %s pins port %s: the proxy must expose it", location, record.Port))
			}
			if u.Host != "" {
				s.dctx.Rules.Add(RewriteRule{
					Kind: RuleKindHeader, Action: ActionFindReplace,
					Header:      "Location",
					Pattern:     u.Scheme + "://" + u.Host,
					Replacement: "https://" + PlaceholderExternalFQDN,
					Description: fmt.Sprintf("Rewrite redirect target %s to the external FQDN", location),
					Priority:    40,
				})
			}
		}
		s.dctx.Redirects = append(s.dctx.Redirects, record)
	}
	return nil
}

// phaseNetworkConsole mines the accumulated network and console observations
// for failed requests and known console signatures.
func phaseNetworkConsole(_ context.Context, s *Session, _ string) error {
	for _, obs := range s.dctx.NetworkObservations() {
		switch {
		case obs.Status == 404:
			s.dctx.AddIssue(fmt.Sprintf("Resource not found (404): %s", obs.URL))
		case obs.Status >= 500:
			s.dctx.AddIssue(fmt.Sprintf("Device server error (%d): %s", obs.Status, obs.URL))
		case obs.Status >= 400:
			s.dctx.AddIssue(fmt.Sprintf("Request failed (%d): %s", obs.Status, obs.URL))
		}

		if obs.Status >= 400 && obs.TargetsDevice && isStaticPath(obs.URL) {
			pattern, replacement := s.hostPathRewrite(obs.URL)
			s.dctx.Rules.Add(RewriteRule{
				Kind: RuleKindBody, Action: ActionFindReplace,
				Pattern: pattern, Replacement: replacement,
				Description: fmt.Sprintf("Repair failing static asset %s", obs.URL),
				Priority:    50,
			})
		}

		if obs.IsPrivateAPI {
			prefix := apiPrefix(obs.URL)
			s.dctx.Rules.Add(RewriteRule{
				Kind: RuleKindBody, Action: ActionFindReplace,
				Pattern:     s.dctx.Target.URL,
				Replacement: "https://" + PlaceholderExternalFQDN,
				Path:        prefix,
				Condition:   "content-type: application/json",
				Description: fmt.Sprintf("Rewrite device origins inside JSON responses under %s", prefix),
				Priority:    75,
			})
		}
	}

	consoleObs := s.dctx.ConsoleObservations()

	if anyMIMEMismatch(consoleObs) {
		s.dctx.AddIssue("Console reports MIME-type mismatches: the proxy is mangling Content-Type")
		s.dctx.Rules.Add(RewriteRule{
			Kind: RuleKindHeader, Action: ActionReplace,
			Header: "Content-Type", Value: "application/javascript",
			Condition:   "path ends with .js",
			Description: "Force correct Content-Type for JavaScript assets",
			Priority:    60,
		})
		s.dctx.Rules.Add(RewriteRule{
			Kind: RuleKindHeader, Action: ActionReplace,
			Header: "Content-Type", Value: "text/css",
			Condition:   "path ends with .css",
			Description: "Force correct Content-Type for stylesheets",
			Priority:    61,
		})
	}

	if anyBootstrapDefect(consoleObs) {
		s.dctx.Rules.Add(RewriteRule{
			Kind: RuleKindBody, Action: ActionFindReplace,
			Pattern: "https", Replacement: "spdy",
			Path:        "bootstrap.js",
			Description: "Work around the bootstrap.js hardcoded-protocol defect",
			Priority:    70,
		})
		s.dctx.AddIssue("bootstrap.js hardcodes the transport protocol: rewriting https to spdy inside that file only")
		s.dctx.AddIssue("If the UI still fails after the bootstrap.js rewrite, the firmware needs the vendor's proxy-compatibility patch")
	}

	for _, obs := range consoleObs {
		for _, class := range signature.Classify(obs.Message) {
			switch class {
			case signature.WebSocket:
				s.dctx.AddIssue(fmt.Sprintf("Console websocket error: %s", truncate(obs.Message, 200)))
			case signature.CORS:
				s.dctx.AddIssue(fmt.Sprintf("Console CORS error: %s", truncate(obs.Message, 200)))
			case signature.Certificate:
				s.dctx.AddIssue(fmt.Sprintf("Console certificate error: %s", truncate(obs.Message, 200)))
			}
		}
	}
	return nil
}

// phaseHeaderProbe runs the curl-style HEAD probe against the device and
// reads the response headers for proxy-hostile behavior. Probe failures are
// findings, not errors.
func phaseHeaderProbe(ctx context.Context, s *Session, _ string) error {
	if s.prober == nil {
		s.dctx.AddIssue("Header prober unavailable: run `curl -I` against the device manually")
		return nil
	}
	if s.dctx.Target.URL == "" {
		s.dctx.AddIssue("Header probe skipped: no device URL identified yet")
		return nil
	}

	res, err := s.prober.Probe(ctx, s.dctx.Target.URL)
	if err != nil {
		s.dctx.AddIssue(fmt.Sprintf("Header probe failed (%v): run `curl -I %s` manually and compare headers", err, s.dctx.Target.URL))
		return nil
	}

	s.dctx.ProbeStatus = res.Status
	s.dctx.ProbeHeaders = res.Headers
	s.dctx.AddIssue(fmt.Sprintf("Header probe: device answered %d %s with %d headers", res.Status, res.StatusText, len(res.Headers)))

	if location := headerValue(res.Headers, "Location"); location != "" {
		if u, err := url.Parse(location); err == nil && s.dctx.Target.TargetsDevice(u.Hostname()) {
			s.dctx.Rules.Add(RewriteRule{
				Kind: RuleKindHeader, Action: ActionFindReplace,
				Header:      "Location",
				Pattern:     u.Scheme + "://" + u.Host,
				Replacement: "https://" + PlaceholderExternalFQDN,
				Description: "Rewrite the device-addressed redirect seen on direct probe",
				Priority:    80,
			})
			if u.Port() != "" {
				s.dctx.AddIssue(fmt.Sprintf("Probe redirect pins port %s: confirm the proxy forwards it", u.Port()))
			}
		}
	}

	if server := headerValue(res.Headers, "Server"); server != "" && requiresHostname(res.Status, server) {
		s.dctx.Rules.Add(RewriteRule{
			Kind: RuleKindHeader, Action: ActionAdd,
			Header: "Host", Value: PlaceholderHostname,
			Description: fmt.Sprintf("Server %q rejects requests without its own hostname", server),
			Priority:    81,
		})
	}

	if auth := headerValue(res.Headers, "WWW-Authenticate"); auth != "" {
		s.dctx.AddIssue(fmt.Sprintf("Device demands HTTP auth (%s): credentials must pass through the proxy", auth))
	}
	if csp := headerValue(res.Headers, "Content-Security-Policy"); csp != "" {
		s.dctx.AddIssue("Device sends Content-Security-Policy: the external FQDN may need to be whitelisted in it")
	}
	if headerValue(res.Headers, "Strict-Transport-Security") != "" {
		s.dctx.AddIssue("Device sends HSTS: browsers will refuse a downgraded hop to the device")
	}
	if headerValue(res.Headers, "X-Frame-Options") != "" {
		s.dctx.AddIssue("Device sends X-Frame-Options: embedding the UI in a portal frame will be blocked")
	}

	if cookie := headerValue(res.Headers, "Set-Cookie"); cookie != "" {
		if domain := cookieDomain(cookie); domain != "" && s.dctx.Target.TargetsDevice(domain) {
			s.dctx.Rules.Add(RewriteRule{
				Kind: RuleKindHeader, Action: ActionFindReplace,
				Header:      "Set-Cookie",
				Pattern:     "Domain=" + domain,
				Replacement: "Domain=" + PlaceholderExternalFQDN,
				Description: "Rebase device-scoped session cookies onto the external FQDN",
				Priority:    82,
			})
		}
	}
	return nil
}

// refTargetsDevice applies the device-scoping rule to a resource URL.
// Relative references are already proxied correctly and need no body rewrite.
func (s *Session) refTargetsDevice(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return s.dctx.Target.URL != "" && strings.HasPrefix(rawURL, s.dctx.Target.URL)
	}
	if u.Hostname() == "" {
		return false
	}
	return s.dctx.Target.TargetsDevice(u.Hostname())
}

// hostPathRewrite builds the find/replace pair substituting a resource's
// host+path with the external-FQDN placeholder. When the reference does not
// parse as a URL it falls back to prefixing against the raw string.
func (s *Session) hostPathRewrite(rawURL string) (pattern, replacement string) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		if s.dctx.Target.URL != "" && strings.HasPrefix(rawURL, s.dctx.Target.URL) {
			return rawURL, PlaceholderExternalFQDN + strings.TrimPrefix(rawURL, s.dctx.Target.URL)
		}
		return rawURL, PlaceholderExternalFQDN + ensureLeadingSlash(rawURL)
	}
	return u.Host + u.Path, PlaceholderExternalFQDN + u.Path
}

func isStaticPath(rawURL string) bool {
	return strings.Contains(rawURL, "/static/") || strings.Contains(rawURL, "/assets/")
}

// apiPrefix trims a private-API URL down to its API prefix so the JSON
// rewrite rule stays scoped.
func apiPrefix(rawURL string) string {
	u, err := url.Parse(rawURL)
	path := rawURL
	if err == nil && u.Path != "" {
		path = u.Path
	}
	for _, marker := range []string{"/private-api/", "/api/private/", "/internal/"} {
		if idx := strings.Index(path, marker); idx >= 0 {
			return path[:idx+len(marker)]
		}
	}
	if idx := strings.Index(strings.ToLower(path), "private"); idx >= 0 {
		return path[:idx+len("private")]
	}
	return path
}

// requiresHostname decides whether a probe response implies the device only
// answers to its own hostname: a 400/421 on a direct-IP probe, or an IIS
// virtual-host setup.
func requiresHostname(status int, server string) bool {
	if status == 400 || status == 421 {
		return true
	}
	return strings.Contains(server, "IIS")
}

func anyMIMEMismatch(obs []ConsoleObservation) bool {
	for _, o := range obs {
		if o.IsMIMEMismatch {
			return true
		}
	}
	return false
}

func anyBootstrapDefect(obs []ConsoleObservation) bool {
	for _, o := range obs {
		if o.IsBootstrapJS {
			return true
		}
	}
	return false
}

// headerValue performs a case-insensitive header lookup on a plain map.
func headerValue(headers map[string]string, name string) string {
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// cookieDomain extracts the Domain attribute from a Set-Cookie value.
func cookieDomain(setCookie string) string {
	for _, part := range strings.Split(setCookie, ";") {
		part = strings.TrimSpace(part)
		if len(part) > 7 && strings.EqualFold(part[:7], "domain=") {
			return strings.TrimPrefix(part[7:], ".")
		}
	}
	return ""
}

func ensureLeadingSlash(p string) string {
	if strings.HasPrefix(p, "/") {
		return p
	}
	return "/" + p
}

// truncate trims s to at most n bytes, cutting on a rune boundary so console
// messages with multi-byte text stay valid UTF-8.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n - 3
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
