package diagnosis

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/sony/gobreaker"

	apperrors "github.com/jordigilh/rounds/internal/errors"
	"github.com/jordigilh/rounds/pkg/metrics"
	"github.com/jordigilh/rounds/pkg/model"
)

// BedrockDiagnoser implements ports.DiagnosisPort against a
// Bedrock-hosted model via the Converse API, sharing the same prompt
// template, cost heuristic, and response contract as AnthropicDiagnoser.
type BedrockDiagnoser struct {
	client           *bedrockruntime.Client
	modelID          string
	maxTokens        int32
	temperature      float32
	perCallBudgetUSD float64
	breaker          *gobreaker.CircuitBreaker
	Now              func() time.Time
	Metrics          *metrics.Metrics
}

// NewBedrockDiagnoser builds a diagnoser calling modelID (a Bedrock
// model identifier, e.g. "anthropic.claude-3-opus-20240229-v1:0") in
// region, refusing any call whose estimated cost exceeds
// perCallBudgetUSD.
func NewBedrockDiagnoser(ctx context.Context, region, modelID string, maxTokens int, temperature float32, perCallBudgetUSD float64) (*BedrockDiagnoser, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return &BedrockDiagnoser{
		client:           bedrockruntime.NewFromConfig(cfg),
		modelID:          modelID,
		maxTokens:        int32(maxTokens),
		temperature:      temperature,
		perCallBudgetUSD: perCallBudgetUSD,
		breaker:          newDiagnosisBreaker("bedrock-diagnosis"),
	}, nil
}

func (d *BedrockDiagnoser) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now().UTC()
}

// EstimateCost returns the true estimated USD cost, never capped to
// any budget.
func (d *BedrockDiagnoser) EstimateCost(ctx context.Context, investigation model.InvestigationContext) (float64, error) {
	return estimateCost(investigation), nil
}

// Diagnose refuses calls exceeding the per-call budget, then invokes
// the Bedrock Converse API behind a circuit breaker.
func (d *BedrockDiagnoser) Diagnose(ctx context.Context, investigation model.InvestigationContext) (model.Diagnosis, error) {
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
		return d.client.Converse(ctx, &bedrockruntime.ConverseInput{
			ModelId: aws.String(d.modelID),
			Messages: []types.Message{
				{
					Role:    types.ConversationRoleUser,
					Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: prompt}},
				},
			},
			InferenceConfig: &types.InferenceConfiguration{
				MaxTokens:   aws.Int32(d.maxTokens),
				Temperature: aws.Float32(d.temperature),
			},
		})
	})
	if err != nil {
		return model.Diagnosis{}, apperrors.Wrap(err, apperrors.ErrorTypeNetwork, "bedrock diagnosis call failed")
	}

	output, ok := result.(*bedrockruntime.ConverseOutput)
	if !ok {
		return model.Diagnosis{}, fmt.Errorf("unexpected bedrock converse response type")
	}

	text, err := bedrockResponseText(output)
	if err != nil {
		return model.Diagnosis{}, err
	}

	diagnosis, err := parseDiagnosisResponse(text, d.modelID, cost, d.now())
	if err != nil {
		return model.Diagnosis{}, err
	}
	recordDiagnosisMetrics(d.Metrics, "bedrock", start, cost)
	return diagnosis, nil
}

// bedrockResponseText extracts the text content of the first message
// block in a Converse response.
func bedrockResponseText(output *bedrockruntime.ConverseOutput) (string, error) {
	message, ok := output.Output.(*types.ConverseOutputMemberMessage)
	if !ok || len(message.Value.Content) == 0 {
		return "", fmt.Errorf("bedrock response contained no content blocks")
	}

	block, ok := message.Value.Content[0].(*types.ContentBlockMemberText)
	if !ok {
		return "", fmt.Errorf("bedrock response content block was not text")
	}
	return block.Value, nil
}
