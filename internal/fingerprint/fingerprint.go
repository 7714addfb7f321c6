// Package fingerprint collapses log bodies into templates and composes the
// rhythm hash that identifies an equivalence class of log events. Hashing is
// deterministic: equal inputs produce equal fingerprints across restarts.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
)

var (
	// Replacement order matters: UUIDs first so their digit groups are not
	// half-eaten by the narrower patterns, then IPv4 quads, then digit runs.
	uuidPattern  = regexp.MustCompile(`\b[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}\b`)
	ipv4Pattern  = regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`)
	digitPattern = regexp.MustCompile(`\b\d+\b`)
)

// Template strips variable tokens from a log body. UUIDs, IPv4 literals and
// runs of decimal digits become the literal `*`; nothing else is normalized.
func Template(body string) string {
	t := uuidPattern.ReplaceAllString(body, "*")
	t = ipv4Pattern.ReplaceAllString(t, "*")
	t = digitPattern.ReplaceAllString(t, "*")
	return t
}

func shortHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:16]
}

// RhythmHash composes the fingerprint for a log event:
// sha256(template)[:16] ":" sha256(service ":" severity)[:16].
//
// The semantic component described for some deployments is intentionally
// omitted: fingerprint equivalence here is (template, service, severity)
// only, so the hash needs no model and is stable by construction. An empty
// body still yields a fingerprint (the empty template digests to a constant).
func RhythmHash(service, severity, template string) string {
	return shortHash(template) + ":" + shortHash(service+":"+severity)
}

// FromLog is the one-call form: template the body, then hash.
func FromLog(service, severity, body string) string {
	return RhythmHash(service, severity, Template(body))
}
