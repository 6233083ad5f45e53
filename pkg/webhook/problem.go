// Package webhook implements the HTTP management surface: one POST
// endpoint per PollPort/ManagementPort operation, an RFC 7807
// problem+json error contract, and an optional bearer-token gate.
package webhook

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/jordigilh/rounds/internal/errors"
)

// problem is an RFC 7807 problem-details body.
type problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail"`
}

var titleByType = map[apperrors.ErrorType]string{
	apperrors.ErrorTypeValidation:     "Validation Error",
	apperrors.ErrorTypeAuth:           "Authentication Failed",
	apperrors.ErrorTypeNotFound:       "Not Found",
	apperrors.ErrorTypeConflict:       "Conflict",
	apperrors.ErrorTypeTimeout:        "Request Timeout",
	apperrors.ErrorTypeRateLimit:      "Rate Limit Exceeded",
	apperrors.ErrorTypeBudgetExceeded: "Budget Exceeded",
	apperrors.ErrorTypeDatabase:       "Internal Error",
	apperrors.ErrorTypeNetwork:        "Internal Error",
	apperrors.ErrorTypeInternal:       "Internal Error",
}

func writeProblem(w http.ResponseWriter, r *http.Request, problemType string, errType apperrors.ErrorType, status int, detail string) {
	title, ok := titleByType[errType]
	if !ok {
		title = "Internal Error"
	}

	w.Header().Set("Content-Type", "application/problem+json")
	if requestID := r.Header.Get("X-Request-ID"); requestID != "" {
		w.Header().Set("X-Request-ID", requestID)
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(problem{
		Type:   problemType,
		Title:  title,
		Status: status,
		Detail: detail,
	})
}

// writeError translates err (ideally an *apperrors.AppError) into a
// problem+json response, never leaking an unsafe internal message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	errType := apperrors.GetType(err)
	status := apperrors.GetStatusCode(err)
	writeProblem(w, r, "https://rounds.internal/problems/"+string(errType), errType, status, apperrors.SafeErrorMessage(err))
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
