package diagnosis

import (
	"context"
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/sony/gobreaker"

	apperrors "github.com/jordigilh/rounds/internal/errors"
	"github.com/jordigilh/rounds/pkg/metrics"
	"github.com/jordigilh/rounds/pkg/model"
)

// AnthropicDiagnoser implements ports.DiagnosisPort by calling the
// Anthropic Messages API directly, the Go-native replacement for the
// original adapter's subprocess invocation of the claude CLI: same
// prompt, same pre-call budget check, same JSON response contract, but
// a direct SDK call rather than shelling out.
type AnthropicDiagnoser struct {
	client           anthropic.Client
	model            string
	maxTokens        int64
	perCallBudgetUSD float64
	breaker          *gobreaker.CircuitBreaker
	Now              func() time.Time
	Metrics          *metrics.Metrics
}

// NewAnthropicDiagnoser builds a diagnoser calling modelName with up to
// maxTokens output tokens, refusing any call whose estimated cost
// exceeds perCallBudgetUSD.
func NewAnthropicDiagnoser(apiKey, modelName string, maxTokens int, perCallBudgetUSD float64) *AnthropicDiagnoser {
	return &AnthropicDiagnoser{
		client:           anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:            modelName,
		maxTokens:        int64(maxTokens),
		perCallBudgetUSD: perCallBudgetUSD,
		breaker:          newDiagnosisBreaker("anthropic-diagnosis"),
	}
}

func (d *AnthropicDiagnoser) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now().UTC()
}

// EstimateCost returns the true estimated USD cost, never capped to
// any budget.
func (d *AnthropicDiagnoser) EstimateCost(ctx context.Context, investigation model.InvestigationContext) (float64, error) {
	return estimateCost(investigation), nil
}

// Diagnose refuses calls exceeding the per-call budget, then invokes
// the Anthropic Messages API behind a circuit breaker.
func (d *AnthropicDiagnoser) Diagnose(ctx context.Context, investigation model.InvestigationContext) (model.Diagnosis, error) {
	start := d.now()
	cost := estimateCost(investigation)
	if cost > d.perCallBudgetUSD {
		return model.Diagnosis{}, apperrors.NewBudgetExceededError(
			fmt.Sprintf("diagnosis cost $%.2f exceeds per-call budget $%.2f", cost, d.perCallBudgetUSD))
	}

	prompt, err := buildInvestigationPrompt(investigation)
	if err != nil {
		return model.Diagnosis{}, err
	}

	result, err := d.breaker.Execute(func() (interface{}, error) {
		return d.client.Messages.New(ctx, anthropic.MessageNewParams{
			Model:     anthropic.Model(d.model),
			MaxTokens: d.maxTokens,
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
			},
		})
	})
	if err != nil {
		return model.Diagnosis{}, apperrors.Wrap(err, apperrors.ErrorTypeNetwork, "anthropic diagnosis call failed")
	}

	message, ok := result.(*anthropic.Message)
	if !ok || len(message.Content) == 0 {
		return model.Diagnosis{}, fmt.Errorf("anthropic response contained no content blocks")
	}

	diagnosis, err := parseDiagnosisResponse(message.Content[0].Text, d.model, cost, d.now())
	if err != nil {
		return model.Diagnosis{}, err
	}
	recordDiagnosisMetrics(d.Metrics, "anthropic", start, cost)
	return diagnosis, nil
}
