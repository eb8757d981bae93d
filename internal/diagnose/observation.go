package diagnose

import (
	"net/url"

	"otdebug-mcp-server/internal/signature"
)

// NetworkObservation records one request/response pair reported by the page
// inspector. Created when the request is sent; the response fields are
// attached when (and if) the response arrives. Nothing else mutates after
// creation.
type NetworkObservation struct {
	ID             string            `json:"id"`
	URL            string            `json:"url"`
	Method         string            `json:"method"`
	RequestHeaders map[string]string `json:"requestHeaders,omitempty"`

	Status          int               `json:"status,omitempty"`
	ResponseHeaders map[string]string `json:"responseHeaders,omitempty"`
	Body            string            `json:"body,omitempty"`
	Error           string            `json:"error,omitempty"`

	// Derived at creation from the session target.
	TargetsDevice bool `json:"isDeviceIP"`
	IsPrivateAPI  bool `json:"isPrivateAPI"`
}

func newNetworkObservation(target Target, id, method, rawURL string, headers map[string]string) NetworkObservation {
	obs := NetworkObservation{
		ID:             id,
		URL:            rawURL,
		Method:         method,
		RequestHeaders: headers,
	}
	if u, err := url.Parse(rawURL); err == nil {
		obs.TargetsDevice = target.TargetsDevice(u.Hostname())
		obs.IsPrivateAPI = IsPrivateAPI(u.Path)
	}
	return obs
}

// ConsoleObservation records one console event reported by the page
// inspector. Only error-severity messages and messages matching a known
// signature are retained.
type ConsoleObservation struct {
	Severity  string `json:"severity"`
	Message   string `json:"message"`
	SourceURL string `json:"sourceUrl,omitempty"`
	Line      int    `json:"line,omitempty"`

	IsMIMEMismatch bool `json:"isMIMEMismatch"`
	IsBootstrapJS  bool `json:"isBootstrapJS"`
}

func newConsoleObservation(severity, message, sourceURL string, line int) ConsoleObservation {
	return ConsoleObservation{
		Severity:       severity,
		Message:        message,
		SourceURL:      sourceURL,
		Line:           line,
		IsMIMEMismatch: signature.IsMIMEMismatch(message),
		IsBootstrapJS:  signature.IsBootstrapScript(message),
	}
}

// worthKeeping implements the retention rule for console events.
func (c ConsoleObservation) worthKeeping() bool {
	return c.Severity == "error" || c.IsMIMEMismatch || c.IsBootstrapJS
}

// RedirectRecord captures a 3xx response observed during navigation.
type RedirectRecord struct {
	FromURL  string `json:"fromUrl"`
	Location string `json:"location"`
	Status   int    `json:"status"`
	Port     string `json:"port,omitempty"`
}
