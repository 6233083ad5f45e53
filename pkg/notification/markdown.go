package notification

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jordigilh/rounds/pkg/model"
	"github.com/jordigilh/rounds/pkg/shared/logging"
)

var filenameSanitizer = regexp.MustCompile(`[^\w\-]`)

// MarkdownNotifier appends each diagnosis as its own markdown report
// file under baseDir/YYYY-MM-DD/, and overwrites a summary.md file
// alongside baseDir on every ReportSummary call.
type MarkdownNotifier struct {
	baseDir string
	mu      sync.Mutex
	logger  *logrus.Entry
	Now     func() time.Time
}

// NewMarkdownNotifier creates baseDir (and parents) if needed.
func NewMarkdownNotifier(baseDir string) (*MarkdownNotifier, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create base directory %s: %w", baseDir, err)
	}
	return &MarkdownNotifier{
		baseDir: baseDir,
		logger:  logrus.WithFields(logging.NewFields().Component("notification.markdown").ToLogrus()),
	}, nil
}

func (n *MarkdownNotifier) now() time.Time {
	if n.Now != nil {
		return n.Now()
	}
	return time.Now().UTC()
}

func sanitizeFilename(text string) string {
	return filenameSanitizer.ReplaceAllString(text, "_")
}

// reportFilePath returns baseDir/YYYY-MM-DD/HH-MM-SS_service_ErrorType.md
// for diagnosis, keyed off diagnosis.DiagnosedAt.
func (n *MarkdownNotifier) reportFilePath(sig *model.Signature, diagnosis *model.Diagnosis) string {
	dateDir := diagnosis.DiagnosedAt.Format("2006-01-02")
	timePart := diagnosis.DiagnosedAt.Format("15-04-05")

	service := sig.Service
	if service == "" {
		service = "unknown"
	}
	errorType := sig.ErrorType
	if errorType == "" {
		errorType = "UnknownError"
	}

	filename := fmt.Sprintf("%s_%s_%s.md", timePart, sanitizeFilename(service), sanitizeFilename(errorType))
	return filepath.Join(n.baseDir, dateDir, filename)
}

// Report writes one markdown file per diagnosis.
func (n *MarkdownNotifier) Report(ctx context.Context, sig *model.Signature, diagnosis *model.Diagnosis) error {
	entry := n.formatReportEntry(sig, diagnosis)

	n.mu.Lock()
	defer n.mu.Unlock()

	path := n.reportFilePath(sig, diagnosis)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create date directory %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(entry), 0o644); err != nil {
		n.logger.WithFields(logging.NewFields().Custom("path", path).Error(err).ToLogrus()).Error("failed to write markdown report")
		return fmt.Errorf("failed to write markdown report %s: %w", path, err)
	}

	n.logger.WithFields(logging.NewFields().Resource("signature", sig.ID).Custom("path", path).ToLogrus()).Info("wrote diagnosis report")
	return nil
}

// ReportSummary overwrites baseDir/../summary.md.
func (n *MarkdownNotifier) ReportSummary(ctx context.Context, stats model.StoreStats) error {
	summary := n.formatSummary(stats)

	n.mu.Lock()
	defer n.mu.Unlock()

	summaryPath := filepath.Join(filepath.Dir(n.baseDir), "summary.md")
	if err := os.MkdirAll(filepath.Dir(summaryPath), 0o755); err != nil {
		return fmt.Errorf("failed to create summary directory %s: %w", filepath.Dir(summaryPath), err)
	}
	if err := os.WriteFile(summaryPath, []byte(summary), 0o644); err != nil {
		n.logger.WithFields(logging.NewFields().Custom("path", summaryPath).Error(err).ToLogrus()).Error("failed to write markdown summary")
		return fmt.Errorf("failed to write markdown summary %s: %w", summaryPath, err)
	}

	n.logger.Info("wrote summary report")
	return nil
}

func (n *MarkdownNotifier) formatReportEntry(sig *model.Signature, diagnosis *model.Diagnosis) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Diagnosis Report - %s\n\n", n.now().Format("2006-01-02T15:04:05Z07:00"))

	b.WriteString("### Error Information\n")
	fmt.Fprintf(&b, "- **Error Type**: %s\n", sig.ErrorType)
	fmt.Fprintf(&b, "- **Service**: %s\n", sig.Service)
	fmt.Fprintf(&b, "- **Signature ID**: %s\n", sig.ID)
	fmt.Fprintf(&b, "- **Fingerprint**: `%s`\n", sig.Fingerprint)
	fmt.Fprintf(&b, "- **Status**: %s\n\n", string(sig.Status))

	b.WriteString("### Failure Pattern\n")
	fmt.Fprintf(&b, "- **Message Template**: %s\n", sig.MessageTemplate)
	fmt.Fprintf(&b, "- **Stack Hash**: `%s`\n", sig.StackHash)
	fmt.Fprintf(&b, "- **Occurrences**: %d\n", sig.OccurrenceCount)
	fmt.Fprintf(&b, "- **First Seen**: %s\n", sig.FirstSeen.Format("2006-01-02T15:04:05Z07:00"))
	fmt.Fprintf(&b, "- **Last Seen**: %s\n", sig.LastSeen.Format("2006-01-02T15:04:05Z07:00"))
	if len(sig.Tags) > 0 {
		tags := append([]string(nil), sig.Tags...)
		sort.Strings(tags)
		quoted := make([]string, len(tags))
		for i, tag := range tags {
			quoted[i] = "`" + tag + "`"
		}
		fmt.Fprintf(&b, "- **Tags**: %s\n", strings.Join(quoted, ", "))
	}
	b.WriteString("\n")

	b.WriteString("### Root Cause Analysis\n")
	fmt.Fprintf(&b, "- **Model**: %s\n", diagnosis.Model)
	fmt.Fprintf(&b, "- **Confidence**: **%s**\n", strings.ToUpper(string(diagnosis.Confidence)))
	fmt.Fprintf(&b, "- **Cost**: $%.2f\n", diagnosis.CostUSD)
	fmt.Fprintf(&b, "- **Diagnosed At**: %s\n\n", diagnosis.DiagnosedAt.Format("2006-01-02T15:04:05Z07:00"))

	b.WriteString("#### Root Cause\n")
	b.WriteString(diagnosis.RootCause + "\n\n")

	b.WriteString("#### Evidence\n")
	for i, evidence := range diagnosis.Evidence {
		fmt.Fprintf(&b, "%d. %s\n", i+1, evidence)
	}
	b.WriteString("\n")

	b.WriteString("#### Suggested Fix\n")
	b.WriteString(diagnosis.SuggestedFix + "\n\n")

	b.WriteString("---")
	return b.String()
}

func (n *MarkdownNotifier) formatSummary(stats model.StoreStats) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Summary Report - %s\n\n", n.now().Format("2006-01-02T15:04:05Z07:00"))

	b.WriteString("### Overall Statistics\n")
	fmt.Fprintf(&b, "- **Total Signatures**: %d\n", stats.TotalSignatures)
	totalErrors := int64(0)
	if stats.TotalErrorsSeen != nil {
		totalErrors = *stats.TotalErrorsSeen
	}
	fmt.Fprintf(&b, "- **Total Errors Seen**: %d\n\n", totalErrors)

	if len(stats.ByStatus) > 0 {
		b.WriteString("### By Status\n")
		statuses := make([]string, 0, len(stats.ByStatus))
		for status := range stats.ByStatus {
			statuses = append(statuses, string(status))
		}
		sort.Strings(statuses)
		for _, status := range statuses {
			fmt.Fprintf(&b, "- **%s**: %d\n", strings.ToUpper(status), stats.ByStatus[model.Status(status)])
		}
		b.WriteString("\n")
	}

	if len(stats.ByService) > 0 {
		b.WriteString("### By Service (Top 10)\n")
		for _, service := range topServicesByCount(stats.ByService, 10) {
			fmt.Fprintf(&b, "- **%s**: %d\n", service, stats.ByService[service])
		}
		b.WriteString("\n")
	}

	b.WriteString("---")
	return b.String()
}
