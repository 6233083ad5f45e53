// Package triage implements the pure decision logic that chooses which
// signatures warrant investigation, which diagnoses warrant
// notification, and in what order pending signatures should be visited.
// Every method here is total: it never returns an error.
package triage

import (
	"time"

	"github.com/jordigilh/rounds/pkg/model"
)

// Engine holds the triage thresholds. The zero value is not usable;
// construct with New or NewDefault.
type Engine struct {
	MinOccurrenceForInvestigation int
	InvestigationCooldown         time.Duration
	HighConfidenceThreshold       model.Confidence
}

// NewDefault returns an Engine with the contract's default thresholds:
// 3 occurrences, 24h cooldown, "high" confidence.
func NewDefault() *Engine {
	return &Engine{
		MinOccurrenceForInvestigation: 3,
		InvestigationCooldown:         24 * time.Hour,
		HighConfidenceThreshold:       model.ConfidenceHigh,
	}
}

// New returns an Engine with caller-supplied thresholds.
func New(minOccurrence int, cooldown time.Duration, highConfidence model.Confidence) *Engine {
	return &Engine{
		MinOccurrenceForInvestigation: minOccurrence,
		InvestigationCooldown:         cooldown,
		HighConfidenceThreshold:       highConfidence,
	}
}

// ShouldInvestigate reports whether sig currently qualifies for
// investigation, evaluated against the wall-clock time now.
func (e *Engine) ShouldInvestigate(sig *model.Signature, now time.Time) bool {
	if sig.Status == model.StatusResolved || sig.Status == model.StatusMuted {
		return false
	}
	if sig.Diagnosis != nil && now.Sub(sig.Diagnosis.DiagnosedAt) < e.InvestigationCooldown {
		return false
	}
	if sig.OccurrenceCount < e.MinOccurrenceForInvestigation {
		return false
	}
	return true
}

// ShouldNotify reports whether a freshly produced diagnosis for sig
// warrants a notification. originalStatus is the signature's status
// before the investigation began; pass "" to fall back to sig's current
// status.
func (e *Engine) ShouldNotify(sig *model.Signature, diagnosis *model.Diagnosis, originalStatus model.Status) bool {
	if diagnosis.Confidence == model.ConfidenceHigh {
		return true
	}

	effectiveOriginal := originalStatus
	if effectiveOriginal == "" {
		effectiveOriginal = sig.Status
	}
	if effectiveOriginal == model.StatusNew && diagnosis.Confidence == model.ConfidenceMedium {
		return true
	}

	if sig.HasTag("critical") {
		return true
	}

	return false
}

// CalculatePriority returns sig's investigation priority: higher sorts
// sooner. The arithmetic is part of the contract — it is not a
// heuristic to tune, and the result may be negative.
func (e *Engine) CalculatePriority(sig *model.Signature, now time.Time) int {
	priority := sig.OccurrenceCount
	if priority > 100 {
		priority = 100
	}

	age := now.Sub(sig.LastSeen)
	switch {
	case age < time.Hour:
		priority += 50
	case age < 24*time.Hour:
		priority += 25
	}

	if sig.Status == model.StatusNew {
		priority += 50
	}

	if sig.HasTag("critical") {
		priority += 100
	}
	if sig.HasTag("flaky-test") {
		priority -= 20
	}

	return priority
}
