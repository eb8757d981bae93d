package diagnose

import "context"

// NavigationResult is the outcome of driving the page to a URL. A nil result
// from PageInspector.Navigate means navigation produced no response at all
// (device unreachable, connection refused).
type NavigationResult struct {
	Status   int
	FinalURL string
}

// PageProbe is a DOM snapshot taken after navigation.
type PageProbe struct {
	BodyLength   int
	BodyText     string
	HasLoginForm bool
	HasTryAgain  bool
}

// ResourceRef is one resource reference discovered in the DOM.
type ResourceRef struct {
	URL    string
	Broken bool
}

// ResourceProbe enumerates the page's resource references by kind.
type ResourceProbe struct {
	Images      []ResourceRef
	Links       []ResourceRef
	Scripts     []ResourceRef
	Stylesheets []ResourceRef
}

// ObservationSink receives asynchronous request/response/console events from
// the page inspector. The diagnostic context implements it.
type ObservationSink interface {
	RecordRequest(id, method, url string, headers map[string]string)
	RecordResponse(id string, status int, headers map[string]string)
	RecordRequestFailure(id, errText string)
	RecordConsole(severity, message, sourceURL string, line int)
}

// PageInspector is the browser-automation collaborator. Acquire is lazy and
// idempotent while a page is live; Release tears the page down, and a later
// Acquire must create a fresh one.
type PageInspector interface {
	Acquire(ctx context.Context, sink ObservationSink) error
	Navigate(ctx context.Context, url string) (*NavigationResult, error)
	HTML(ctx context.Context) (string, error)
	ProbePage(ctx context.Context) (*PageProbe, error)
	ProbeResources(ctx context.Context) (*ResourceProbe, error)
	Release(ctx context.Context) error
}

// ProbeResult is a header prober HEAD response. Redirects are reported, not
// followed.
type ProbeResult struct {
	Status     int
	StatusText string
	Headers    map[string]string
}

// HeaderProber is the raw HTTP HEAD collaborator.
type HeaderProber interface {
	Probe(ctx context.Context, url string) (*ProbeResult, error)
}
