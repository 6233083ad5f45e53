// Package diagnosis implements DiagnosisPort against the Anthropic
// Messages API and Bedrock-hosted models, sharing one prompt template
// and JSON-response contract between backends.
package diagnosis

import (
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/prompts"

	"github.com/jordigilh/rounds/pkg/model"
)

const investigationPromptTemplate = `You are an expert software engineer analyzing a failure pattern in production code.

## Signature Details
Error Type: {{.error_type}}
Service: {{.service}}
Message Template: {{.message_template}}
Status: {{.status}}
Occurrence Count: {{.occurrence_count}}
First Seen: {{.first_seen}}
Last Seen: {{.last_seen}}

## Recent Error Events ({{.event_count}} total)
{{.events_section}}
{{.traces_section}}
{{.logs_section}}

## Codebase Path: {{.codebase_path}}
{{.historical_section}}

## Task
Based on the error events, traces, logs, and codebase context above, provide:

1. Root Cause: the underlying cause of this error pattern. Be specific and cite evidence.
2. Evidence: list 3-5 key pieces of evidence supporting your conclusion.
3. Suggested Fix: a concrete, actionable fix that would prevent this error.
4. Confidence: rate your confidence as HIGH, MEDIUM, or LOW.

Respond with a JSON object in exactly this format:
{
  "root_cause": "The root cause explanation",
  "evidence": ["evidence point 1", "evidence point 2", "evidence point 3"],
  "suggested_fix": "The suggested fix",
  "confidence": "HIGH|MEDIUM|LOW"
}
`

// maxEventsInPrompt, maxTracesInPrompt, etc. bound how much context is
// inlined into the prompt, mirroring the original adapter's slicing.
const (
	maxEventsInPrompt     = 5
	maxStackFramesInEvent = 10
	maxTracesInPrompt     = 2
	maxLogsInPrompt       = 10
	maxHistoricalInPrompt = 3
)

func eventsSection(events []model.ErrorEvent) string {
	var b strings.Builder
	for i, event := range events {
		if i >= maxEventsInPrompt {
			break
		}
		fmt.Fprintf(&b, "\n### Event %d\n", i+1)
		fmt.Fprintf(&b, "- Timestamp: %s\n", event.Timestamp.Format("2006-01-02T15:04:05Z07:00"))
		fmt.Fprintf(&b, "- Service: %s\n", event.Service)
		fmt.Fprintf(&b, "- Error: %s: %s\n", event.ErrorType, event.ErrorMessage)
		b.WriteString("- Stack Trace:\n")
		for j, frame := range event.Stack {
			if j >= maxStackFramesInEvent {
				break
			}
			fmt.Fprintf(&b, "  %s.%s (%s:%d)\n", frame.Module, frame.Function, frame.Filename, frame.Lineno)
		}
	}
	return b.String()
}

func tracesSection(traces []model.TraceTree) string {
	if len(traces) == 0 {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "\n## Distributed Traces (%d traces)\n", len(traces))
	for i, trace := range traces {
		if i >= maxTracesInPrompt {
			break
		}
		fmt.Fprintf(&b, "- Trace %s: %d error spans\n", trace.TraceID, len(trace.ErrorSpans()))
	}
	return b.String()
}

func logsSection(logs []model.LogEntry) string {
	if len(logs) == 0 {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "\n## Related Logs (%d logs)\n", len(logs))
	for i, log := range logs {
		if i >= maxLogsInPrompt {
			break
		}
		fmt.Fprintf(&b, "- [%s] %s: %s\n", log.Severity, log.Timestamp.Format("2006-01-02T15:04:05Z07:00"), log.Body)
	}
	return b.String()
}

func historicalSection(historical []model.Signature) string {
	if len(historical) == 0 {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "\n## Historical Context (%d similar signatures)\n", len(historical))
	for i, sig := range historical {
		if i >= maxHistoricalInPrompt {
			break
		}
		fmt.Fprintf(&b, "- %s in %s (%d occurrences)\n", sig.ErrorType, sig.Service, sig.OccurrenceCount)
	}
	return b.String()
}

// buildInvestigationPrompt renders investigationPromptTemplate against
// investigation, the same context every DiagnosisPort backend receives.
func buildInvestigationPrompt(investigation model.InvestigationContext) (string, error) {
	sig := investigation.Signature
	tmpl := prompts.NewPromptTemplate(investigationPromptTemplate, []string{
		"error_type", "service", "message_template", "status", "occurrence_count",
		"first_seen", "last_seen", "event_count", "events_section", "traces_section",
		"logs_section", "codebase_path", "historical_section",
	})

	rendered, err := tmpl.Format(map[string]interface{}{
		"error_type":          sig.ErrorType,
		"service":             sig.Service,
		"message_template":    sig.MessageTemplate,
		"status":              string(sig.Status),
		"occurrence_count":    sig.OccurrenceCount,
		"first_seen":          sig.FirstSeen.Format("2006-01-02T15:04:05Z07:00"),
		"last_seen":           sig.LastSeen.Format("2006-01-02T15:04:05Z07:00"),
		"event_count":         len(investigation.RecentEvents),
		"events_section":      eventsSection(investigation.RecentEvents),
		"traces_section":      tracesSection(investigation.Traces),
		"logs_section":        logsSection(investigation.Logs),
		"codebase_path":       investigation.CodebasePath,
		"historical_section":  historicalSection(investigation.HistoricalContext),
	})
	if err != nil {
		return "", fmt.Errorf("failed to render investigation prompt: %w", err)
	}
	return rendered, nil
}
