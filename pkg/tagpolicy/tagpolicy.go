// Package tagpolicy derives supplemental Signature tags (critical,
// flaky-test) from a Rego policy bundle, so the set of critical services
// and flaky-test name patterns lives in a policy document instead of
// being hardcoded into PollService.
package tagpolicy

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/rego"

	"github.com/jordigilh/rounds/pkg/model"
)

// DefaultModule is the bundled Rego policy used when no override is
// supplied. It classifies a signature as critical when its service is
// in the configured critical_services list, and as flaky-test when its
// error_type contains "flaky" or "Flaky".
const DefaultModule = `
package rounds.tags

critical_services := {"payments", "checkout", "auth"}

is_critical {
	input.service == critical_services[_]
}

is_flaky {
	contains(lower(input.error_type), "flaky")
}

tags[tag] {
	is_critical
	tag := "critical"
}

tags[tag] {
	is_flaky
	tag := "flaky-test"
}
`

// Policy evaluates a compiled Rego module against a signature's
// classification-relevant fields.
type Policy struct {
	query rego.PreparedEvalQuery
}

// Compile prepares a Policy from a Rego module's source text.
func Compile(ctx context.Context, module string) (*Policy, error) {
	query, err := rego.New(
		rego.Query("data.rounds.tags.tags"),
		rego.Module("tags.rego", module),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile tag policy: %w", err)
	}
	return &Policy{query: query}, nil
}

// CompileDefault prepares a Policy from DefaultModule.
func CompileDefault(ctx context.Context) (*Policy, error) {
	return Compile(ctx, DefaultModule)
}

// Classify evaluates the policy against sig and returns the derived
// tags (a subset of {"critical", "flaky-test"}). A policy error is
// non-fatal to the caller's workflow: it is returned so the caller can
// log it and proceed with no derived tags.
func (p *Policy) Classify(ctx context.Context, sig *model.Signature) ([]string, error) {
	input := map[string]interface{}{
		"service":          sig.Service,
		"error_type":       sig.ErrorType,
		"occurrence_count": sig.OccurrenceCount,
	}

	results, err := p.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate tag policy: %w", err)
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return nil, nil
	}

	raw, ok := results[0].Expressions[0].Value.([]interface{})
	if !ok {
		return nil, nil
	}

	tags := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			tags = append(tags, s)
		}
	}
	return tags, nil
}
