// Package poll implements PollService: the periodic ingest/dedup cycle
// and the investigation-queue drain cycle it feeds.
package poll

import (
	"context"
	"sort"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/jordigilh/rounds/pkg/fingerprint"
	"github.com/jordigilh/rounds/pkg/metrics"
	"github.com/jordigilh/rounds/pkg/model"
	"github.com/jordigilh/rounds/pkg/ports"
	"github.com/jordigilh/rounds/pkg/tagpolicy"
	"github.com/jordigilh/rounds/pkg/tracing"
	"github.com/jordigilh/rounds/pkg/triage"
)

// Investigator is the subset of investigator.Investigator's behavior
// PollService depends on.
type Investigator interface {
	Investigate(ctx context.Context, sig *model.Signature) (model.Diagnosis, error)
}

// Service implements ports.PollPort.
type Service struct {
	Telemetry      ports.TelemetryPort
	Store          ports.SignatureStorePort
	Investigator   Investigator
	Fingerprinter  *fingerprint.Fingerprinter
	Triage         *triage.Engine
	TagPolicy      *tagpolicy.Policy
	Logger         logr.Logger
	LookbackWindow time.Duration
	ServicesFilter []string
	Now            func() time.Time
	Metrics        *metrics.Metrics
	Tracer         *tracing.Tracer

	newID func() string
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

func (s *Service) generateID() string {
	if s.newID != nil {
		return s.newID()
	}
	return uuid.NewString()
}

// ExecutePollCycle fetches recent errors, dedupes them against known
// signatures, upserts the store, and tallies how many signatures now
// qualify for investigation. One bad event is logged and skipped; it
// never poisons the rest of the batch.
func (s *Service) ExecutePollCycle(ctx context.Context) (result model.PollResult, err error) {
	if s.Tracer != nil {
		var span trace.Span
		ctx, span = s.Tracer.StartPollCycle(ctx)
		defer func() { tracing.End(span, err) }()
	}

	if s.Metrics != nil {
		s.Metrics.PollCycles.Inc()
	}

	now := s.now()
	since := now.Add(-s.LookbackWindow)

	events, err := s.Telemetry.GetRecentErrors(ctx, since, s.ServicesFilter)
	if err != nil {
		return model.PollResult{}, err
	}

	result = model.PollResult{Timestamp: now}
	touched := make(map[string]*model.Signature)

	for _, event := range events {
		fp := s.Fingerprinter.Fingerprint(event)

		sig, ok := touched[fp]
		if !ok {
			existing, err := s.Store.GetByFingerprint(ctx, fp)
			if err != nil {
				s.Logger.Info("failed to look up signature by fingerprint, skipping event",
					"fingerprint", fp, "error", err.Error())
				continue
			}
			sig = existing
		}

		result.ErrorsFound++

		if sig == nil {
			created := s.newSignature(fp, event)
			if err := s.classify(ctx, created); err != nil {
				s.Logger.Info("tag policy classification failed, proceeding without tags",
					"fingerprint", fp, "error", err.Error())
			}
			if err := s.Store.Save(ctx, created); err != nil {
				s.Logger.Info("failed to save new signature, skipping event",
					"fingerprint", fp, "error", err.Error())
				continue
			}
			touched[fp] = created
			result.NewSignatures++
			continue
		}

		if err := sig.Observe(event.Timestamp); err != nil {
			s.Logger.Info("failed to record observation, skipping event",
				"fingerprint", fp, "error", err.Error())
			continue
		}
		if err := s.Store.Update(ctx, sig); err != nil {
			s.Logger.Info("failed to update signature, skipping event",
				"fingerprint", fp, "error", err.Error())
			continue
		}
		touched[fp] = sig
		result.UpdatedSignatures++
	}

	for _, sig := range touched {
		if s.Triage.ShouldInvestigate(sig, now) {
			result.InvestigationsQueued++
		}
	}

	if s.Metrics != nil {
		s.Metrics.ErrorsFound.Add(float64(result.ErrorsFound))
		s.Metrics.SignaturesCreated.Add(float64(result.NewSignatures))
	}

	return result, nil
}

func (s *Service) newSignature(fp string, event model.ErrorEvent) *model.Signature {
	return &model.Signature{
		ID:              s.generateID(),
		Fingerprint:     fp,
		StackHash:       s.Fingerprinter.StackHash(event.Stack),
		ErrorType:       event.ErrorType,
		Service:         event.Service,
		MessageTemplate: s.Fingerprinter.TemplatizeMessage(event.ErrorMessage),
		FirstSeen:       event.Timestamp,
		LastSeen:        event.Timestamp,
		OccurrenceCount: 1,
		Status:          model.StatusNew,
	}
}

func (s *Service) classify(ctx context.Context, sig *model.Signature) error {
	if s.TagPolicy == nil {
		return nil
	}
	tags, err := s.TagPolicy.Classify(ctx, sig)
	if err != nil {
		return err
	}
	sig.AddTags(tags...)
	return nil
}

// ExecuteInvestigationCycle drains the pending-investigation queue,
// highest priority first, investigating every signature that still
// qualifies.
func (s *Service) ExecuteInvestigationCycle(ctx context.Context) (result model.InvestigationResult, err error) {
	if s.Tracer != nil {
		var span trace.Span
		ctx, span = s.Tracer.StartInvestigationCycle(ctx)
		defer func() { tracing.End(span, err) }()
	}

	now := s.now()

	pending, err := s.Store.GetPendingInvestigation(ctx)
	if err != nil {
		return model.InvestigationResult{}, err
	}

	sort.SliceStable(pending, func(i, j int) bool {
		return s.Triage.CalculatePriority(&pending[i], now) > s.Triage.CalculatePriority(&pending[j], now)
	})

	result = model.InvestigationResult{Timestamp: now}

	for i := range pending {
		sig := &pending[i]
		if !s.Triage.ShouldInvestigate(sig, now) {
			continue
		}

		result.InvestigationsAttempted++
		diagnosis, err := s.Investigator.Investigate(ctx, sig)
		if err != nil {
			result.InvestigationsFailed++
			s.Logger.Info("investigation failed", "signature_id", sig.ID, "error", err.Error())
			if s.Metrics != nil {
				s.Metrics.InvestigationsRun.WithLabelValues("failure").Inc()
			}
			continue
		}
		result.DiagnosesProduced++
		result.TotalDiagnosisCostUSD += diagnosis.CostUSD
		if s.Metrics != nil {
			s.Metrics.InvestigationsRun.WithLabelValues("success").Inc()
		}
	}

	return result, nil
}
