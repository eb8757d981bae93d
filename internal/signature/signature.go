// Package signature classifies browser console messages against the known
// failure signatures of legacy devices served through a reverse proxy.
package signature

import (
	"regexp"
	"strings"
)

// Class is a normalized console-message classification.
type Class string

const (
	// MIMEMismatch covers "Refused to execute/apply ... MIME type" errors
	// caused by the proxy mangling Content-Type on static assets.
	MIMEMismatch Class = "mime_mismatch"
	// BootstrapScript covers the bootstrap.js mixed-content defect where the
	// device's bootstrap loader hardcodes an https origin the proxy breaks.
	BootstrapScript Class = "bootstrap_script"
	// WebSocket covers messages mentioning websocket connectivity.
	WebSocket Class = "websocket"
	// CORS covers cross-origin policy complaints.
	CORS Class = "cors"
	// Certificate covers TLS/certificate trust complaints.
	Certificate Class = "certificate"
)

var (
	mimeMismatchPattern = regexp.MustCompile(`(?i)(refused to (execute|apply)|mime type|x-content-type-options|stylesheet .* not loaded)`)
	bootstrapPattern    = regexp.MustCompile(`(?i)bootstrap\.js`)
	bootstrapProtoPat   = regexp.MustCompile(`(?i)(mixed content|https|blocked:|insecure)`)
	websocketPattern    = regexp.MustCompile(`(?i)(websocket|ws://|wss://)`)
	corsPattern         = regexp.MustCompile(`(?i)(cors|cross-origin|access-control-allow)`)
	certPattern         = regexp.MustCompile(`(?i)(certificate|cert_|ssl error|net::err_cert)`)
)

// IsMIMEMismatch reports whether a console message matches the MIME-type
// mismatch signature.
func IsMIMEMismatch(message string) bool {
	return mimeMismatchPattern.MatchString(message)
}

// IsBootstrapScript reports whether a console message matches the
// bootstrap-script protocol defect: the message references bootstrap.js AND
// complains about the transport protocol.
func IsBootstrapScript(message string) bool {
	return bootstrapPattern.MatchString(message) && bootstrapProtoPat.MatchString(message)
}

// Classify returns every signature class a message matches, in a fixed order.
// An empty result means the message carries no known signature.
func Classify(message string) []Class {
	msg := strings.TrimSpace(message)
	if msg == "" {
		return nil
	}

	classes := make([]Class, 0, 2)
	if IsMIMEMismatch(msg) {
		classes = append(classes, MIMEMismatch)
	}
	if IsBootstrapScript(msg) {
		classes = append(classes, BootstrapScript)
	}
	if websocketPattern.MatchString(msg) {
		classes = append(classes, WebSocket)
	}
	if corsPattern.MatchString(msg) {
		classes = append(classes, CORS)
	}
	if certPattern.MatchString(msg) {
		classes = append(classes, Certificate)
	}
	return classes
}
