package signature

import (
	"reflect"
	"testing"
)

func TestIsMIMEMismatch(t *testing.T) {
	tests := []struct {
		name    string
		message string
		want    bool
	}{
		{"refused to execute", "Refused to execute script from 'http://x/app.js' because its MIME type ('text/html') is not executable", true},
		{"refused to apply", "Refused to apply style from 'http://x/ui.css'", true},
		{"nosniff", "blocked due to X-Content-Type-Options: nosniff", true},
		{"plain 404", "GET http://x/app.js 404 (Not Found)", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsMIMEMismatch(tt.message); got != tt.want {
				t.Fatalf("IsMIMEMismatch(%q) = %v, want %v", tt.message, got, tt.want)
			}
		})
	}
}

func TestIsBootstrapScriptNeedsBothHalves(t *testing.T) {
	tests := []struct {
		name    string
		message string
		want    bool
	}{
		{"mixed content", "Bootstrap.js: Mixed Content: the page requested an insecure resource", true},
		{"https mention", "bootstrap.js failed to load https endpoint", true},
		{"file alone", "bootstrap.js loaded in 120ms", false},
		{"protocol alone", "Mixed Content: insecure https request blocked", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsBootstrapScript(tt.message); got != tt.want {
				t.Fatalf("IsBootstrapScript(%q) = %v, want %v", tt.message, got, tt.want)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		message string
		want    []Class
	}{
		{"websocket", "WebSocket connection to 'ws://10.0.0.5:8081' failed", []Class{WebSocket}},
		{"cors", "blocked by CORS policy: no Access-Control-Allow-Origin header", []Class{CORS}},
		{"certificate", "NET::ERR_CERT_AUTHORITY_INVALID", []Class{Certificate}},
		{"mime", "Refused to execute script because of its MIME type", []Class{MIMEMismatch}},
		{"multiple", "bootstrap.js blocked: insecure wss:// upgrade rejected by cross-origin policy", []Class{BootstrapScript, WebSocket, CORS}},
		{"none", "user clicked login", nil},
		{"blank", "   ", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.message)
			if len(got) == 0 && len(tt.want) == 0 {
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("Classify(%q) = %v, want %v", tt.message, got, tt.want)
			}
		})
	}
}
