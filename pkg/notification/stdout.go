package notification

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/jordigilh/rounds/pkg/model"
	"github.com/jordigilh/rounds/pkg/shared/logging"
)

const ruleWidth = 80

// StdoutNotifier prints diagnoses and summaries to stdout with
// human-readable formatting, for local runs and development.
type StdoutNotifier struct {
	Verbose bool
	logger  *logrus.Entry
}

// NewStdoutNotifier builds a StdoutNotifier. verbose currently has no
// effect beyond being threaded through for future detail levels.
func NewStdoutNotifier(verbose bool) *StdoutNotifier {
	return &StdoutNotifier{
		Verbose: verbose,
		logger:  logrus.WithFields(logging.NewFields().Component("notification.stdout").ToLogrus()),
	}
}

// Report prints a diagnosed signature in a bordered, section-by-section
// layout.
func (n *StdoutNotifier) Report(ctx context.Context, sig *model.Signature, diagnosis *model.Diagnosis) error {
	fmt.Println(formatHeader(sig))
	fmt.Println(formatSignatureDetails(sig))
	fmt.Println(formatDiagnosis(diagnosis))
	fmt.Println(strings.Repeat("=", ruleWidth))
	n.logger.WithFields(logging.NewFields().Resource("signature", sig.ID).ToLogrus()).Info("printed diagnosis report to stdout")
	return nil
}

// ReportSummary prints a periodic store-wide summary.
func (n *StdoutNotifier) ReportSummary(ctx context.Context, stats model.StoreStats) error {
	fmt.Println(formatSummary(stats))
	n.logger.Info("printed summary report to stdout")
	return nil
}

func formatHeader(sig *model.Signature) string {
	var b strings.Builder
	b.WriteString(strings.Repeat("=", ruleWidth) + "\n")
	b.WriteString("DIAGNOSIS REPORT\n")
	b.WriteString(strings.Repeat("=", ruleWidth) + "\n")
	fmt.Fprintf(&b, "Error Type: %s\n", sig.ErrorType)
	fmt.Fprintf(&b, "Service: %s\n", sig.Service)
	fmt.Fprintf(&b, "Status: %s", strings.ToUpper(string(sig.Status)))
	return b.String()
}

func formatSignatureDetails(sig *model.Signature) string {
	var b strings.Builder
	b.WriteString("\n" + strings.Repeat("-", ruleWidth) + "\n")
	b.WriteString("FAILURE PATTERN\n")
	b.WriteString(strings.Repeat("-", ruleWidth) + "\n")
	fmt.Fprintf(&b, "Fingerprint: %s\n", sig.Fingerprint)
	fmt.Fprintf(&b, "Message Template: %s\n", sig.MessageTemplate)
	fmt.Fprintf(&b, "Stack Hash: %s\n", sig.StackHash)
	b.WriteString("\n")
	fmt.Fprintf(&b, "Occurrences: %d\n", sig.OccurrenceCount)
	fmt.Fprintf(&b, "First Seen: %s\n", sig.FirstSeen.Format("2006-01-02T15:04:05Z07:00"))
	fmt.Fprintf(&b, "Last Seen: %s", sig.LastSeen.Format("2006-01-02T15:04:05Z07:00"))

	if len(sig.Tags) > 0 {
		tags := append([]string(nil), sig.Tags...)
		sort.Strings(tags)
		fmt.Fprintf(&b, "\nTags: %s", strings.Join(tags, ", "))
	}
	return b.String()
}

func formatDiagnosis(diagnosis *model.Diagnosis) string {
	var b strings.Builder
	b.WriteString("\n" + strings.Repeat("-", ruleWidth) + "\n")
	b.WriteString("ANALYSIS\n")
	b.WriteString(strings.Repeat("-", ruleWidth) + "\n")
	fmt.Fprintf(&b, "Model: %s\n", diagnosis.Model)
	fmt.Fprintf(&b, "Confidence: %s\n", strings.ToUpper(string(diagnosis.Confidence)))
	fmt.Fprintf(&b, "Cost: $%.2f\n", diagnosis.CostUSD)
	b.WriteString("\nROOT CAUSE:\n")
	b.WriteString(diagnosis.RootCause)
	b.WriteString("\n\nEVIDENCE:\n")
	for i, evidence := range diagnosis.Evidence {
		fmt.Fprintf(&b, "  %d. %s\n", i+1, evidence)
	}
	b.WriteString("\nSUGGESTED FIX:\n")
	b.WriteString(diagnosis.SuggestedFix)
	return b.String()
}

func formatSummary(stats model.StoreStats) string {
	var b strings.Builder
	b.WriteString(strings.Repeat("=", ruleWidth) + "\n")
	b.WriteString("SUMMARY REPORT\n")
	b.WriteString(strings.Repeat("=", ruleWidth) + "\n\n")
	fmt.Fprintf(&b, "Total Signatures: %d\n", stats.TotalSignatures)
	if stats.TotalErrorsSeen != nil {
		fmt.Fprintf(&b, "Total Errors Seen: %d\n", *stats.TotalErrorsSeen)
	} else {
		b.WriteString("Total Errors Seen: 0\n")
	}

	if len(stats.ByStatus) > 0 {
		b.WriteString("\nBy Status:\n")
		statuses := make([]string, 0, len(stats.ByStatus))
		for status := range stats.ByStatus {
			statuses = append(statuses, string(status))
		}
		sort.Strings(statuses)
		for _, status := range statuses {
			fmt.Fprintf(&b, "  %s: %d\n", strings.ToUpper(status), stats.ByStatus[model.Status(status)])
		}
	}

	if len(stats.ByService) > 0 {
		b.WriteString("\nBy Service:\n")
		for _, service := range topServicesByCount(stats.ByService, 10) {
			fmt.Fprintf(&b, "  %s: %d\n", service, stats.ByService[service])
		}
	}

	b.WriteString("\n" + strings.Repeat("=", ruleWidth))
	return b.String()
}

// topServicesByCount returns up to limit service names sorted by
// descending occurrence count, ties broken alphabetically for
// determinism.
func topServicesByCount(byService map[string]int, limit int) []string {
	services := make([]string, 0, len(byService))
	for service := range byService {
		services = append(services, service)
	}
	sort.Slice(services, func(i, j int) bool {
		if byService[services[i]] != byService[services[j]] {
			return byService[services[i]] > byService[services[j]]
		}
		return services[i] < services[j]
	})
	if len(services) > limit {
		services = services[:limit]
	}
	return services
}
