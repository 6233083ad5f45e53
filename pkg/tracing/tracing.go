// Package tracing wraps OpenTelemetry spans around the poll,
// investigation, and diagnosis surfaces. It talks only to the global
// otel API: whatever TracerProvider the host process has installed
// (or the no-op default) receives the spans, so this package carries
// no exporter or SDK wiring of its own.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/jordigilh/rounds"

// Tracer starts spans for rounds' own operations, all sharing one
// otel.Tracer instance.
type Tracer struct {
	tracer trace.Tracer
}

// New returns a Tracer backed by the globally installed TracerProvider.
func New() *Tracer {
	return &Tracer{tracer: otel.Tracer(instrumentationName)}
}

// StartPollCycle starts a span covering one ingest/dedup poll cycle.
func (t *Tracer) StartPollCycle(ctx context.Context) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "poll.cycle")
}

// StartInvestigationCycle starts a span covering one drain of the
// pending-investigation queue.
func (t *Tracer) StartInvestigationCycle(ctx context.Context) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "poll.investigation_cycle")
}

// StartInvestigation starts a span covering one signature's end-to-end
// investigation, tagged with its fingerprint and error type.
func (t *Tracer) StartInvestigation(ctx context.Context, signatureID, fingerprint, errorType string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "investigation.run", trace.WithAttributes(
		attribute.String("rounds.signature_id", signatureID),
		attribute.String("rounds.fingerprint", fingerprint),
		attribute.String("rounds.error_type", errorType),
	))
}

// StartDiagnosis starts a span covering one LLM diagnosis call.
func (t *Tracer) StartDiagnosis(ctx context.Context, backend, model string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "diagnosis.call", trace.WithAttributes(
		attribute.String("rounds.diagnosis.backend", backend),
		attribute.String("rounds.diagnosis.model", model),
	))
}

// End records err on span (if non-nil) and closes it. Call via defer
// immediately after a Start* call:
//
//	ctx, span := t.StartInvestigation(ctx, id, fp, errType)
//	defer func() { tracing.End(span, err) }()
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
