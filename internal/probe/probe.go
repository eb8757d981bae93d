// Package probe implements the curl-style header prober: a single HEAD
// request against the device with redirects reported rather than followed.
package probe

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"strings"
	"time"

	"otdebug-mcp-server/internal/diagnose"
)

// Prober issues HEAD requests directly at the device, bypassing the browser.
type Prober struct {
	client *http.Client
}

// New builds a prober. Legacy devices routinely present self-signed or
// expired certificates, so TLS verification is optional.
func New(timeout time.Duration, insecureTLS bool) *Prober {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	transport := &http.Transport{}
	if insecureTLS {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return &Prober{
		client: &http.Client{
			Timeout:   timeout,
			Transport: transport,
			// Redirects are findings, not navigation: report the 3xx as-is.
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// Probe sends one HEAD request and returns status plus flattened headers.
func (p *Prober) Probe(ctx context.Context, url string) (*diagnose.ProbeResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build HEAD request: %w", err)
	}

	res, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HEAD %s: %w", url, err)
	}
	defer res.Body.Close()

	headers := make(map[string]string, len(res.Header))
	for name, values := range res.Header {
		headers[name] = strings.Join(values, ", ")
	}

	statusText := strings.TrimSpace(strings.TrimPrefix(res.Status, fmt.Sprintf("%d", res.StatusCode)))
	return &diagnose.ProbeResult{
		Status:     res.StatusCode,
		StatusText: statusText,
		Headers:    headers,
	}, nil
}
