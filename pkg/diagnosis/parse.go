package diagnosis

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jordigilh/rounds/pkg/model"
)

// diagnosisResponse is the JSON contract both backends are prompted to
// return.
type diagnosisResponse struct {
	RootCause    string   `json:"root_cause"`
	Evidence     []string `json:"evidence"`
	SuggestedFix string   `json:"suggested_fix"`
	Confidence   string   `json:"confidence"`
}

// parseDiagnosisResponse extracts the first line of raw that is a
// complete JSON object (backends sometimes wrap it in prose or markdown
// fencing; an object spread over several lines is not found) and
// validates its required fields, filling in model, cost, and timestamp
// from the caller.
func parseDiagnosisResponse(raw string, modelName string, costUSD float64, now time.Time) (model.Diagnosis, error) {
	object, err := extractFirstJSONObject(raw)
	if err != nil {
		return model.Diagnosis{}, err
	}

	var parsed diagnosisResponse
	if err := json.Unmarshal(object, &parsed); err != nil {
		return model.Diagnosis{}, fmt.Errorf("failed to decode diagnosis response: %w", err)
	}

	if parsed.RootCause == "" {
		return model.Diagnosis{}, fmt.Errorf("diagnosis response missing root_cause field")
	}
	if parsed.Evidence == nil {
		return model.Diagnosis{}, fmt.Errorf("diagnosis response missing evidence field")
	}
	if parsed.SuggestedFix == "" {
		return model.Diagnosis{}, fmt.Errorf("diagnosis response missing suggested_fix field")
	}
	if parsed.Confidence == "" {
		return model.Diagnosis{}, fmt.Errorf("diagnosis response missing confidence field")
	}

	confidence := model.Confidence(strings.ToLower(parsed.Confidence))
	switch confidence {
	case model.ConfidenceHigh, model.ConfidenceMedium, model.ConfidenceLow:
	default:
		return model.Diagnosis{}, fmt.Errorf("invalid confidence level %q: must be one of high, medium, low", parsed.Confidence)
	}

	return model.Diagnosis{
		RootCause:    parsed.RootCause,
		Evidence:     parsed.Evidence,
		SuggestedFix: parsed.SuggestedFix,
		Confidence:   confidence,
		DiagnosedAt:  now,
		Model:        modelName,
		CostUSD:      costUSD,
	}, nil
}

// extractFirstJSONObject scans raw line by line for the first line
// that parses as a JSON object, mirroring the original adapter's
// line-oriented scan of CLI output that may carry non-JSON preamble.
func extractFirstJSONObject(raw string) ([]byte, error) {
	for _, line := range strings.Split(raw, "\n") {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "{") {
			continue
		}
		if json.Valid([]byte(trimmed)) {
			return []byte(trimmed), nil
		}
	}
	return nil, fmt.Errorf("no valid JSON object found in diagnosis response")
}
