// Package management implements ManagementService: the human-facing
// lifecycle operations (mute, resolve, retriage, reinvestigate) and
// read operations (signature details, listing) driven by the CLI and
// webhook adapters.
package management

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"

	apperrors "github.com/jordigilh/rounds/internal/errors"
	"github.com/jordigilh/rounds/internal/validation"
	"github.com/jordigilh/rounds/pkg/model"
	"github.com/jordigilh/rounds/pkg/ports"
)

// Investigator is the subset of investigator.Investigator's behavior
// ManagementService depends on for on-demand reinvestigation.
type Investigator interface {
	Investigate(ctx context.Context, sig *model.Signature) (model.Diagnosis, error)
}

const (
	recentEventsForDetails      = 5
	relatedSignaturesForDetails = 5
	maxAuditFieldLength         = 500
)

// Service implements ports.ManagementPort.
type Service struct {
	Store        ports.SignatureStorePort
	Telemetry    ports.TelemetryPort
	Investigator Investigator
	Logger       logr.Logger
}

func (s *Service) fetch(ctx context.Context, id string) (*model.Signature, error) {
	sig, err := s.Store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if sig == nil {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("signature %q", id))
	}
	return sig, nil
}

// Mute transitions a signature to MUTED.
func (s *Service) Mute(ctx context.Context, id string, reason string) error {
	if err := validation.ValidateStringInput("reason", reason, maxAuditFieldLength); err != nil {
		return apperrors.Wrap(err, apperrors.ErrorTypeValidation, "invalid mute reason")
	}

	sig, err := s.fetch(ctx, id)
	if err != nil {
		return err
	}

	old := sig.Status
	sig.Mute()
	if err := s.Store.Update(ctx, sig); err != nil {
		return err
	}

	s.Logger.Info("signature muted", "signature_id", id, "fingerprint", sig.Fingerprint,
		"old_status", old, "new_status", sig.Status, "reason", validation.SanitizeForLogging(reason))
	return nil
}

// Resolve transitions a signature to RESOLVED.
func (s *Service) Resolve(ctx context.Context, id string, fix string) error {
	if err := validation.ValidateStringInput("fix", fix, maxAuditFieldLength); err != nil {
		return apperrors.Wrap(err, apperrors.ErrorTypeValidation, "invalid resolution fix")
	}

	sig, err := s.fetch(ctx, id)
	if err != nil {
		return err
	}

	old := sig.Status
	sig.Resolve()
	if err := s.Store.Update(ctx, sig); err != nil {
		return err
	}

	s.Logger.Info("signature resolved", "signature_id", id, "fingerprint", sig.Fingerprint,
		"old_status", old, "new_status", sig.Status, "fix", validation.SanitizeForLogging(fix))
	return nil
}

// Retriage clears any diagnosis and returns a signature to NEW.
func (s *Service) Retriage(ctx context.Context, id string) error {
	sig, err := s.fetch(ctx, id)
	if err != nil {
		return err
	}

	old := sig.Status
	sig.Retriage()
	if err := s.Store.Update(ctx, sig); err != nil {
		return err
	}

	s.Logger.Info("signature retriaged", "signature_id", id, "fingerprint", sig.Fingerprint,
		"old_status", old, "new_status", sig.Status)
	return nil
}

// Reinvestigate clears any diagnosis, returns the signature to NEW,
// then runs an investigation inline and returns its diagnosis.
func (s *Service) Reinvestigate(ctx context.Context, id string) (model.Diagnosis, error) {
	sig, err := s.fetch(ctx, id)
	if err != nil {
		return model.Diagnosis{}, err
	}

	old := sig.Status
	sig.Retriage()
	if err := s.Store.Update(ctx, sig); err != nil {
		return model.Diagnosis{}, err
	}

	s.Logger.Info("signature reinvestigation starting", "signature_id", id,
		"fingerprint", sig.Fingerprint, "old_status", old)

	return s.Investigator.Investigate(ctx, sig)
}

// GetSignatureDetails assembles a signature with the context an
// operator needs to review it.
func (s *Service) GetSignatureDetails(ctx context.Context, id string) (ports.SignatureDetails, error) {
	sig, err := s.fetch(ctx, id)
	if err != nil {
		return ports.SignatureDetails{}, err
	}

	events, err := s.Telemetry.GetEventsForSignature(ctx, sig.Fingerprint, recentEventsForDetails)
	if err != nil {
		s.Logger.Info("failed to fetch recent events for signature details", "signature_id", id, "error", err.Error())
		events = nil
	}

	related, err := s.Store.GetSimilar(ctx, sig, relatedSignaturesForDetails)
	if err != nil {
		s.Logger.Info("failed to fetch related signatures for signature details", "signature_id", id, "error", err.Error())
		related = nil
	}

	return ports.SignatureDetails{
		Signature:         *sig,
		RecentEvents:      events,
		RelatedSignatures: related,
		Diagnosis:         sig.Diagnosis,
	}, nil
}

// ListSignatures returns every signature, optionally filtered to one
// status. An empty status returns every signature regardless of state
// — including MUTED and RESOLVED — unlike the investigation queue,
// which is NEW-only by contract.
func (s *Service) ListSignatures(ctx context.Context, status string) ([]model.Signature, error) {
	all, err := s.Store.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	if status == "" {
		return all, nil
	}

	filtered := make([]model.Signature, 0, len(all))
	for _, sig := range all {
		if string(sig.Status) == status {
			filtered = append(filtered, sig)
		}
	}
	return filtered, nil
}
