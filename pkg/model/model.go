// Package model defines the entities shared by every core subsystem:
// events as observed from telemetry, signatures as persisted classes of
// errors, and the value types assembled around an investigation.
package model

import (
	"fmt"
	"time"
)

// Severity classifies an ErrorEvent or LogEntry's log level.
type Severity string

const (
	SeverityTrace Severity = "TRACE"
	SeverityDebug Severity = "DEBUG"
	SeverityInfo  Severity = "INFO"
	SeverityWarn  Severity = "WARN"
	SeverityError Severity = "ERROR"
	SeverityFatal Severity = "FATAL"
)

// Status is a Signature's lifecycle state.
type Status string

const (
	StatusNew           Status = "NEW"
	StatusInvestigating Status = "INVESTIGATING"
	StatusDiagnosed     Status = "DIAGNOSED"
	StatusResolved      Status = "RESOLVED"
	StatusMuted         Status = "MUTED"
)

// Confidence is a Diagnosis's self-reported confidence level.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// StackFrame is one frame of a normalized call stack. Lineno is kept for
// display but never participates in fingerprinting.
type StackFrame struct {
	Module   string
	Function string
	Filename string
	Lineno   int
}

// ErrorEvent is one raw, immutable error occurrence as observed from
// telemetry.
type ErrorEvent struct {
	TraceID      string
	SpanID       string
	Service      string
	ErrorType    string
	ErrorMessage string
	Stack        []StackFrame
	Timestamp    time.Time
	Attributes   map[string]interface{}
	Severity     Severity
}

// Diagnosis is the immutable result of one investigation, attached to a
// Signature when present.
type Diagnosis struct {
	RootCause    string
	Evidence     []string
	SuggestedFix string
	Confidence   Confidence
	DiagnosedAt  time.Time
	Model        string
	CostUSD      float64
}

// Validate checks Diagnosis's non-empty-field invariants.
func (d *Diagnosis) Validate() error {
	if d.RootCause == "" {
		return fmt.Errorf("diagnosis root_cause must not be empty")
	}
	if len(d.Evidence) == 0 {
		return fmt.Errorf("diagnosis evidence must not be empty")
	}
	for _, e := range d.Evidence {
		if e == "" {
			return fmt.Errorf("diagnosis evidence entries must not be empty")
		}
	}
	if d.SuggestedFix == "" {
		return fmt.Errorf("diagnosis suggested_fix must not be empty")
	}
	if d.CostUSD < 0 {
		return fmt.Errorf("diagnosis cost_usd must be >= 0")
	}
	switch d.Confidence {
	case ConfidenceHigh, ConfidenceMedium, ConfidenceLow:
	default:
		return fmt.Errorf("diagnosis confidence %q is not a recognized level", d.Confidence)
	}
	return nil
}

// Signature is a mutable, identity-bearing class of errors. Observe
// validates invariants before returning; the status-transition methods
// and AddTags do not.
type Signature struct {
	ID              string
	Fingerprint     string
	StackHash       string
	ErrorType       string
	Service         string
	MessageTemplate string
	FirstSeen       time.Time
	LastSeen        time.Time
	OccurrenceCount int
	Status          Status
	Diagnosis       *Diagnosis
	Tags            []string
}

// Validate checks Signature's invariants: occurrence_count >= 1 and
// last_seen >= first_seen.
func (s *Signature) Validate() error {
	if s.OccurrenceCount < 1 {
		return fmt.Errorf("signature occurrence_count must be >= 1, got %d", s.OccurrenceCount)
	}
	if s.LastSeen.Before(s.FirstSeen) {
		return fmt.Errorf("signature last_seen (%s) must not precede first_seen (%s)", s.LastSeen, s.FirstSeen)
	}
	return nil
}

// HasTag reports whether tag is present in s.Tags.
func (s *Signature) HasTag(tag string) bool {
	for _, t := range s.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// AddTags unions the given tags into s.Tags without duplicating or
// removing any existing tag.
func (s *Signature) AddTags(tags ...string) {
	for _, tag := range tags {
		if !s.HasTag(tag) {
			s.Tags = append(s.Tags, tag)
		}
	}
}

// Observe records a subsequent occurrence of this signature: last_seen
// advances (never regresses) and occurrence_count increments.
func (s *Signature) Observe(timestamp time.Time) error {
	if timestamp.After(s.LastSeen) {
		s.LastSeen = timestamp
	}
	s.OccurrenceCount++
	return s.Validate()
}

// Mute transitions the signature to MUTED. Idempotent: muting an
// already-muted signature leaves it unchanged.
func (s *Signature) Mute() {
	s.Status = StatusMuted
}

// Resolve transitions the signature to RESOLVED. Idempotent: resolving
// an already-resolved signature leaves it unchanged.
func (s *Signature) Resolve() {
	s.Status = StatusResolved
}

// Retriage clears any attached diagnosis and returns the signature to
// NEW, regardless of its current status.
func (s *Signature) Retriage() {
	s.Diagnosis = nil
	s.Status = StatusNew
}

// BeginInvestigation transitions NEW -> INVESTIGATING.
func (s *Signature) BeginInvestigation() {
	s.Status = StatusInvestigating
}

// AttachDiagnosis attaches diagnosis and transitions to DIAGNOSED.
func (s *Signature) AttachDiagnosis(diagnosis *Diagnosis) {
	s.Diagnosis = diagnosis
	s.Status = StatusDiagnosed
}

// RevertInvestigation reverts INVESTIGATING back to NEW, used when a
// diagnosis attempt fails.
func (s *Signature) RevertInvestigation() {
	s.Status = StatusNew
}

// SpanStatus is a SpanNode's completion status.
type SpanStatus string

const (
	SpanStatusOK      SpanStatus = "ok"
	SpanStatusError   SpanStatus = "error"
	SpanStatusUnset   SpanStatus = "unset"
)

// SpanNode is one node of an immutable trace span tree. Children own
// their subtrees; there is no parent back-pointer on the owned form.
type SpanNode struct {
	SpanID     string
	ParentID   string
	Service    string
	Operation  string
	Duration   time.Duration
	Status     SpanStatus
	Attributes map[string]interface{}
	Children   []*SpanNode
}

// TraceTree is a trace's span tree. ErrorSpans derives the flat view of
// its error spans by walking the tree on each call.
type TraceTree struct {
	TraceID string
	Root    *SpanNode
}

// ErrorSpans returns every span in the tree (depth-first) whose status
// is SpanStatusError.
func (t *TraceTree) ErrorSpans() []*SpanNode {
	var out []*SpanNode
	var walk func(*SpanNode)
	walk = func(n *SpanNode) {
		if n == nil {
			return
		}
		if n.Status == SpanStatusError {
			out = append(out, n)
		}
		for _, c := range n.Children {
			walk(c)
		}
	}
	walk(t.Root)
	return out
}

// LogEntry is one log line correlated (optionally) to a trace/span.
type LogEntry struct {
	Timestamp  time.Time
	Severity   Severity
	Body       string
	Attributes map[string]interface{}
	TraceID    string
	SpanID     string
}

// InvestigationContext is the evidence bundle assembled for one
// investigation.
type InvestigationContext struct {
	Signature          *Signature
	RecentEvents       []ErrorEvent
	Traces             []TraceTree
	Logs               []LogEntry
	CodebasePath       string
	HistoricalContext  []Signature
}

// PollResult summarizes one poll cycle.
type PollResult struct {
	ErrorsFound          int
	NewSignatures        int
	UpdatedSignatures    int
	InvestigationsQueued int
	Timestamp            time.Time
}

// InvestigationResult summarizes one investigation cycle.
type InvestigationResult struct {
	InvestigationsAttempted int
	InvestigationsFailed    int
	DiagnosesProduced       int
	TotalDiagnosisCostUSD   float64
	Timestamp               time.Time
}

// StoreStats is the store's reporting aggregate, a typed equivalent of
// the port contract's get_stats() return value.
type StoreStats struct {
	TotalSignatures         int
	ByStatus                map[Status]int
	ByService               map[string]int
	OldestSignatureAgeHours float64
	AvgOccurrenceCount      float64
	TotalErrorsSeen         *int64
}
