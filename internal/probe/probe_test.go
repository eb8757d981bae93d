package probe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestProbeSendsHEADAndFlattensHeaders(t *testing.T) {
	var gotMethod string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		w.Header().Set("Server", "Boa/0.94.14rc21")
		w.Header().Add("Set-Cookie", "a=1")
		w.Header().Add("Set-Cookie", "b=2")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	prober := New(5*time.Second, false)
	res, err := prober.Probe(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}

	if gotMethod != http.MethodHead {
		t.Fatalf("method = %q, want HEAD", gotMethod)
	}
	if res.Status != 200 || res.StatusText != "OK" {
		t.Fatalf("status = %d %q", res.Status, res.StatusText)
	}
	if res.Headers["Server"] != "Boa/0.94.14rc21" {
		t.Fatalf("Server header = %q", res.Headers["Server"])
	}
	if res.Headers["Set-Cookie"] != "a=1, b=2" {
		t.Fatalf("multi-value header = %q", res.Headers["Set-Cookie"])
	}
}

func TestProbeDoesNotFollowRedirects(t *testing.T) {
	hits := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		if r.URL.Path == "/" {
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	prober := New(5*time.Second, false)
	res, err := prober.Probe(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}

	if res.Status != 302 {
		t.Fatalf("status = %d, want the unfollowed 302", res.Status)
	}
	if res.Headers["Location"] != "/login" {
		t.Fatalf("Location = %q", res.Headers["Location"])
	}
	if hits != 1 {
		t.Fatalf("server hits = %d, redirect was followed", hits)
	}
}

func TestProbeReportsTransportErrors(t *testing.T) {
	prober := New(500*time.Millisecond, false)

	if _, err := prober.Probe(context.Background(), "http://127.0.0.1:1"); err == nil {
		t.Fatal("expected an error for an unreachable address")
	}
}

func TestProbeRejectsMalformedURL(t *testing.T) {
	prober := New(time.Second, false)

	if _, err := prober.Probe(context.Background(), "http://bad url with spaces"); err == nil {
		t.Fatal("expected a request-build error")
	}
}
