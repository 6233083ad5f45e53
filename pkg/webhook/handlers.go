package webhook

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	apperrors "github.com/jordigilh/rounds/internal/errors"
	"github.com/jordigilh/rounds/pkg/model"
	"github.com/jordigilh/rounds/pkg/ports"
)

var validate = validator.New()

// Handler wires PollPort and ManagementPort to the HTTP surface.
type Handler struct {
	Poll       ports.PollPort
	Management ports.ManagementPort
}

// NewHandler builds a Handler serving poll and management over HTTP.
func NewHandler(poll ports.PollPort, management ports.ManagementPort) *Handler {
	return &Handler{Poll: poll, Management: management}
}

type signatureIDRequest struct {
	SignatureID string `json:"signature_id" validate:"required"`
}

type muteRequest struct {
	SignatureID string `json:"signature_id" validate:"required"`
	Reason      string `json:"reason"`
}

type resolveRequest struct {
	SignatureID string `json:"signature_id" validate:"required"`
	Fix         string `json:"fix"`
}

type listRequest struct {
	Status string `json:"status"`
}

// decode parses body into dst and validates struct tags, returning an
// *apperrors.AppError classifying the failure for writeError.
func decode(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return apperrors.New(apperrors.ErrorTypeValidation, "request body exceeds the 1 MiB limit")
		}
		return apperrors.Wrap(err, apperrors.ErrorTypeValidation, "malformed JSON body")
	}
	if err := validate.Struct(dst); err != nil {
		return apperrors.Wrap(err, apperrors.ErrorTypeValidation, "request validation failed")
	}
	return nil
}

// HandlePoll runs one poll cycle.
func (h *Handler) HandlePoll(w http.ResponseWriter, r *http.Request) {
	result, err := h.Poll.ExecutePollCycle(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// HandleInvestigate drains the investigation queue.
func (h *Handler) HandleInvestigate(w http.ResponseWriter, r *http.Request) {
	result, err := h.Poll.ExecuteInvestigationCycle(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// HandleMute mutes a signature.
func (h *Handler) HandleMute(w http.ResponseWriter, r *http.Request) {
	var req muteRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.Management.Mute(r.Context(), req.SignatureID, req.Reason); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "muted"})
}

// HandleResolve resolves a signature.
func (h *Handler) HandleResolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.Management.Resolve(r.Context(), req.SignatureID, req.Fix); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "resolved"})
}

// HandleRetriage clears a signature's diagnosis and returns it to NEW.
func (h *Handler) HandleRetriage(w http.ResponseWriter, r *http.Request) {
	var req signatureIDRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.Management.Retriage(r.Context(), req.SignatureID); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "retriaged"})
}

// HandleReinvestigate re-runs an investigation inline and returns its
// diagnosis.
func (h *Handler) HandleReinvestigate(w http.ResponseWriter, r *http.Request) {
	var req signatureIDRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	diagnosis, err := h.Management.Reinvestigate(r.Context(), req.SignatureID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, diagnosis)
}

// HandleDetails assembles the operator-facing bundle for a signature.
func (h *Handler) HandleDetails(w http.ResponseWriter, r *http.Request) {
	var req signatureIDRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	details, err := h.Management.GetSignatureDetails(r.Context(), req.SignatureID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, details)
}

// HandleList lists signatures, optionally filtered by status.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	var req listRequest
	if r.ContentLength != 0 {
		if err := decode(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
	}
	signatures, err := h.Management.ListSignatures(r.Context(), req.Status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]model.Signature{"signatures": signatures})
}

// HandleHealth reports liveness.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
