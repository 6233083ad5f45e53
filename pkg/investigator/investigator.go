// Package investigator orchestrates one signature's end-to-end
// investigation: gathering evidence from telemetry and the store,
// invoking diagnosis, and reporting the result.
package investigator

import (
	"context"

	"github.com/go-logr/logr"
	"go.opentelemetry.io/otel/trace"

	sharedmath "github.com/jordigilh/rounds/pkg/shared/math"

	"github.com/jordigilh/rounds/pkg/model"
	"github.com/jordigilh/rounds/pkg/ports"
	"github.com/jordigilh/rounds/pkg/tracing"
	"github.com/jordigilh/rounds/pkg/triage"
)

const (
	recentEventsCap    = 5
	correlatedLogWindow = 5
	similarSignaturesCap = 5
)

// Investigator drives one signature through evidence gathering,
// diagnosis, and notification.
type Investigator struct {
	Telemetry    ports.TelemetryPort
	Store        ports.SignatureStorePort
	Diagnosis    ports.DiagnosisPort
	Notification ports.NotificationPort
	Triage       *triage.Engine
	Logger       logr.Logger
	CodebasePath string
	Tracer       *tracing.Tracer
}

// Investigate runs the full sequence from spec.md §4.3 against sig,
// mutating and persisting its status as it goes, and returns the
// resulting diagnosis.
func (inv *Investigator) Investigate(ctx context.Context, sig *model.Signature) (diagnosis model.Diagnosis, err error) {
	log := inv.Logger.WithValues("signature_id", sig.ID, "fingerprint", sig.Fingerprint)
	originalStatus := sig.Status

	if inv.Tracer != nil {
		var span trace.Span
		ctx, span = inv.Tracer.StartInvestigation(ctx, sig.ID, sig.Fingerprint, sig.ErrorType)
		defer func() { tracing.End(span, err) }()
	}

	events, fetchErr := inv.Telemetry.GetEventsForSignature(ctx, sig.Fingerprint, recentEventsCap)
	if fetchErr != nil {
		log.Info("failed to fetch recent events for signature, proceeding with none", "error", fetchErr.Error())
		events = nil
	}

	traceIDs := uniqueTraceIDs(events)
	var traces []model.TraceTree
	if len(traceIDs) > 0 {
		traces, err = inv.Telemetry.GetTraces(ctx, traceIDs)
		if err != nil {
			log.Info("failed to fetch traces for signature, proceeding with none", "error", err.Error())
			traces = nil
		}
	}

	var logs []model.LogEntry
	if len(traceIDs) > 0 {
		logs, err = inv.Telemetry.GetCorrelatedLogs(ctx, traceIDs, correlatedLogWindow)
		if err != nil {
			log.Info("failed to fetch correlated logs for signature, proceeding with none", "error", err.Error())
			logs = nil
		}
	}

	similar, err := inv.Store.GetSimilar(ctx, sig, similarSignaturesCap)
	if err != nil {
		log.Info("failed to fetch similar signatures, proceeding with none", "error", err.Error())
		similar = nil
	}
	similar = rankBySimilarity(sig, similar)

	investigation := model.InvestigationContext{
		Signature:         sig,
		RecentEvents:      events,
		Traces:            traces,
		Logs:              logs,
		CodebasePath:      inv.CodebasePath,
		HistoricalContext: similar,
	}

	sig.BeginInvestigation()
	if err := inv.Store.Update(ctx, sig); err != nil {
		return model.Diagnosis{}, err
	}

	diagnosis, err = inv.Diagnosis.Diagnose(ctx, investigation)
	if err != nil {
		sig.RevertInvestigation()
		if revertErr := inv.Store.Update(ctx, sig); revertErr != nil {
			log.Info("failed to persist status revert after diagnosis failure", "error", revertErr.Error())
		}
		return model.Diagnosis{}, err
	}

	sig.AttachDiagnosis(&diagnosis)
	if err := inv.Store.Update(ctx, sig); err != nil {
		return model.Diagnosis{}, err
	}

	if inv.Triage.ShouldNotify(sig, &diagnosis, originalStatus) {
		if err := inv.Notification.Report(ctx, sig, &diagnosis); err != nil {
			log.Info("failed to deliver diagnosis notification", "error", err.Error())
		}
	}

	return diagnosis, nil
}

func uniqueTraceIDs(events []model.ErrorEvent) []string {
	seen := make(map[string]struct{}, len(events))
	var ids []string
	for _, e := range events {
		if e.TraceID == "" {
			continue
		}
		if _, ok := seen[e.TraceID]; ok {
			continue
		}
		seen[e.TraceID] = struct{}{}
		ids = append(ids, e.TraceID)
	}
	return ids
}

// rankBySimilarity orders candidates by the cosine similarity of a
// bag-of-words vector over message_template tokens against sig's own
// template, most similar first, so historical context surfaces the
// closest past incidents ahead of merely-recent ones.
func rankBySimilarity(sig *model.Signature, candidates []model.Signature) []model.Signature {
	if len(candidates) < 2 {
		return candidates
	}

	vocab := buildVocabulary(sig, candidates)
	target := vectorize(sig.MessageTemplate, vocab)

	scores := make([]float64, len(candidates))
	for i, c := range candidates {
		scores[i] = sharedmath.CosineSimilarity(target, vectorize(c.MessageTemplate, vocab))
	}

	ranked := make([]model.Signature, len(candidates))
	copy(ranked, candidates)
	for i := 1; i < len(ranked); i++ {
		j := i
		for j > 0 && scores[j-1] < scores[j] {
			scores[j-1], scores[j] = scores[j], scores[j-1]
			ranked[j-1], ranked[j] = ranked[j], ranked[j-1]
			j--
		}
	}
	return ranked
}

func buildVocabulary(sig *model.Signature, candidates []model.Signature) map[string]int {
	vocab := make(map[string]int)
	add := func(s string) {
		for _, tok := range tokenize(s) {
			if _, ok := vocab[tok]; !ok {
				vocab[tok] = len(vocab)
			}
		}
	}
	add(sig.MessageTemplate)
	for _, c := range candidates {
		add(c.MessageTemplate)
	}
	return vocab
}

func vectorize(s string, vocab map[string]int) []float64 {
	vec := make([]float64, len(vocab))
	for _, tok := range tokenize(s) {
		if idx, ok := vocab[tok]; ok {
			vec[idx]++
		}
	}
	return vec
}

func tokenize(s string) []string {
	var tokens []string
	var current []rune
	flush := func() {
		if len(current) > 0 {
			tokens = append(tokens, string(current))
			current = current[:0]
		}
	}
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			current = append(current, r)
		} else {
			flush()
		}
	}
	flush()
	return tokens
}
