package diagnose

import (
	"net"
	"net/url"
	"regexp"
	"strings"
)

// Target identifies the legacy device under diagnosis. Set once from the
// first step containing a URL, immutable thereafter.
type Target struct {
	URL      string `json:"deviceUrl"`
	Hostname string `json:"deviceHostname"`
	IP       string `json:"deviceIp"`
}

var (
	urlTokenPattern  = regexp.MustCompile(`https?://[^\s"'<>]+`)
	privateIPPattern = regexp.MustCompile(`^(192\.168\.|10\.|172\.(1[6-9]|2\d|3[01])\.|127\.)`)
)

// privateAPIMarkers are path fragments that identify device-internal API
// endpoints needing JSON body rewrites behind a proxy.
var privateAPIMarkers = []string{"/private-api/", "/api/private/", "/internal/"}

// ExtractTargetURL returns the first http(s):// token in the text, or "".
func ExtractTargetURL(text string) string {
	return urlTokenPattern.FindString(text)
}

// NewTarget derives hostname and IP identity from a device URL. A hostname
// that already looks like an IP fills both fields.
func NewTarget(rawURL string) Target {
	t := Target{URL: rawURL}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return t
	}
	t.Hostname = u.Hostname()
	if ip := net.ParseIP(u.Hostname()); ip != nil {
		t.IP = u.Hostname()
	}
	return t
}

// TargetsDevice reports whether a hostname is in scope for rewrite-rule
// generation: it equals the target's hostname or sits in a private network
// range (the usual home of legacy OT devices).
func (t Target) TargetsDevice(hostname string) bool {
	if hostname == "" {
		return false
	}
	if t.Hostname != "" && hostname == t.Hostname {
		return true
	}
	return privateIPPattern.MatchString(hostname)
}

// IsPrivateAPI reports whether a URL path points at a device-internal API.
func IsPrivateAPI(path string) bool {
	for _, marker := range privateAPIMarkers {
		if strings.Contains(path, marker) {
			return true
		}
	}
	return strings.Contains(strings.ToLower(path), "private")
}
