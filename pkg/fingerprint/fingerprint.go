// Package fingerprint turns a raw ErrorEvent into a stable identity key:
// a deterministic hash over its normalized, parameterized fields. Every
// function here is pure and total — the fingerprinter never fails.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"

	"github.com/jordigilh/rounds/pkg/model"
)

// Each substitution is applied in this exact order; changing the order
// changes fingerprints for messages matching more than one pattern (see
// the port-vs-clock-time ambiguity: ":5432" inside "12:34:56" resolves
// differently depending on whether the clock-time or port rule runs
// first — this order is the contract).
var templatizers = []*regexp.Regexp{
	regexp.MustCompile(`\d{1,3}(\.\d{1,3}){3}`), // IPv4 dotted-quad
	regexp.MustCompile(`:\d+`),                  // port suffix
	regexp.MustCompile(`\d{3,}`),                 // numeric runs of >= 3 digits
	regexp.MustCompile(`\d{4}-\d{2}-\d{2}`),      // ISO date
	regexp.MustCompile(`\d{2}:\d{2}:\d{2}`),      // clock time
	regexp.MustCompile(`(?i)[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`), // UUID
}

var portReplacement = ":*"

// Fingerprinter computes deterministic identity keys for ErrorEvents. It
// holds no state — every method is a pure function of its arguments.
type Fingerprinter struct{}

// New returns a stateless Fingerprinter.
func New() *Fingerprinter {
	return &Fingerprinter{}
}

// TemplatizeMessage applies the fixed substitution sequence to message,
// replacing IPs, ports, digit runs, dates, times, and UUIDs with "*" in
// that order. Each rule sees the output of the earlier ones, so a date,
// clock time, or UUID containing a ":<digits>" or a run of three or more
// digits is only partly masked and no longer matches its own rule.
func (f *Fingerprinter) TemplatizeMessage(message string) string {
	result := message
	for i, re := range templatizers {
		if i == 1 {
			result = re.ReplaceAllString(result, portReplacement)
			continue
		}
		result = re.ReplaceAllString(result, "*")
	}
	return result
}

// StackHash returns the first 16 hex characters of the SHA-256 digest of
// the event's "module::function" frames joined by "|". Lineno never
// participates.
func (f *Fingerprinter) StackHash(stack []model.StackFrame) string {
	parts := make([]string, len(stack))
	for i, frame := range stack {
		parts[i] = frame.Module + "::" + frame.Function
	}
	joined := strings.Join(parts, "|")
	sum := sha256.Sum256([]byte(joined))
	return hex.EncodeToString(sum[:])[:16]
}

// Fingerprint computes the event's full 64-hex-char identity key:
// SHA-256 of "error_type | service | templated_message | stack_hash".
func (f *Fingerprinter) Fingerprint(event model.ErrorEvent) string {
	templated := f.TemplatizeMessage(event.ErrorMessage)
	stackHash := f.StackHash(event.Stack)
	joined := strings.Join([]string{event.ErrorType, event.Service, templated, stackHash}, " | ")
	sum := sha256.Sum256([]byte(joined))
	return hex.EncodeToString(sum[:])
}
