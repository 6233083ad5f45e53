// Package ports defines the capability interfaces the core depends on.
// Every concrete backend (telemetry, storage, diagnosis, notification)
// is an adapter implementing one of these; the core never imports an
// adapter package directly.
package ports

import (
	"context"
	"time"

	"github.com/jordigilh/rounds/pkg/model"
)

// TelemetryPort fetches error events, traces, and logs from an
// observability backend.
type TelemetryPort interface {
	// GetRecentErrors returns events with timestamp >= since, optionally
	// restricted to services. Implementations cap the result size.
	GetRecentErrors(ctx context.Context, since time.Time, services []string) ([]model.ErrorEvent, error)

	// GetTrace fetches a single trace. traceID must match
	// ^[0-9a-fA-F]+$ and be <= 32 characters; a malformed id is a
	// validation error, an absent trace is a not-found error.
	GetTrace(ctx context.Context, traceID string) (model.TraceTree, error)

	// GetTraces validates every id upfront, then fetches best-effort:
	// an individual fetch failure is skipped (logged), not fatal to the
	// batch.
	GetTraces(ctx context.Context, traceIDs []string) ([]model.TraceTree, error)

	// GetCorrelatedLogs returns logs joined to the given trace ids
	// within +/- windowMinutes.
	GetCorrelatedLogs(ctx context.Context, traceIDs []string, windowMinutes int) ([]model.LogEntry, error)

	// GetEventsForSignature returns up to limit recent events carrying
	// (or computable to) the given fingerprint.
	GetEventsForSignature(ctx context.Context, fingerprint string, limit int) ([]model.ErrorEvent, error)
}

// SignatureStorePort persists and queries Signatures.
type SignatureStorePort interface {
	// GetByID returns the signature, or (nil, nil) if absent.
	GetByID(ctx context.Context, id string) (*model.Signature, error)

	// GetByFingerprint returns the signature, or (nil, nil) if absent.
	GetByFingerprint(ctx context.Context, fingerprint string) (*model.Signature, error)

	// Save and Update both perform an upsert; implementations may treat
	// them identically.
	Save(ctx context.Context, sig *model.Signature) error
	Update(ctx context.Context, sig *model.Signature) error

	// GetPendingInvestigation returns every status=NEW signature,
	// ordered by (last_seen desc, occurrence_count desc).
	GetPendingInvestigation(ctx context.Context) ([]model.Signature, error)

	// GetAll returns every signature regardless of status, for
	// management listing. Unlike GetPendingInvestigation this is not
	// restricted to NEW.
	GetAll(ctx context.Context) ([]model.Signature, error)

	// GetSimilar returns up to limit signatures sharing sig's service
	// and error_type, excluding sig itself.
	GetSimilar(ctx context.Context, sig *model.Signature, limit int) ([]model.Signature, error)

	// GetStats returns the store's reporting aggregate.
	GetStats(ctx context.Context) (model.StoreStats, error)
}

// DiagnosisPort invokes an LLM-backed root-cause analysis under a
// per-call budget.
type DiagnosisPort interface {
	// EstimateCost returns the true estimated USD cost of diagnosing
	// context, never capped to any budget.
	EstimateCost(ctx context.Context, investigation model.InvestigationContext) (float64, error)

	// Diagnose fails with a budget-exceeded error when the estimate
	// exceeds the per-call budget; it may also fail with timeout,
	// transport, or parse errors. The returned Diagnosis's CostUSD is
	// the actual (or best-available) cost.
	Diagnose(ctx context.Context, investigation model.InvestigationContext) (model.Diagnosis, error)
}

// NotificationPort delivers diagnoses and periodic summaries to humans.
// Delivery is at-least-once.
type NotificationPort interface {
	Report(ctx context.Context, sig *model.Signature, diagnosis *model.Diagnosis) error
	ReportSummary(ctx context.Context, stats model.StoreStats) error
}

// PollPort is the driving interface the scheduler calls on cadence.
type PollPort interface {
	ExecutePollCycle(ctx context.Context) (model.PollResult, error)
	ExecuteInvestigationCycle(ctx context.Context) (model.InvestigationResult, error)
}

// SignatureDetails bundles a signature with the context an operator
// needs to review it, returned by ManagementPort.GetSignatureDetails.
type SignatureDetails struct {
	Signature       model.Signature
	RecentEvents    []model.ErrorEvent
	RelatedSignatures []model.Signature
	Diagnosis       *model.Diagnosis
}

// ManagementPort is the driving interface for human-initiated lifecycle
// operations on signatures.
type ManagementPort interface {
	Mute(ctx context.Context, id string, reason string) error
	Resolve(ctx context.Context, id string, fix string) error
	Retriage(ctx context.Context, id string) error
	Reinvestigate(ctx context.Context, id string) (model.Diagnosis, error)
	GetSignatureDetails(ctx context.Context, id string) (SignatureDetails, error)
	ListSignatures(ctx context.Context, status string) ([]model.Signature, error)
}
