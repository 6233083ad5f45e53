package notification

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/slack-go/slack"
	"github.com/sirupsen/logrus"

	"github.com/jordigilh/rounds/pkg/model"
	"github.com/jordigilh/rounds/pkg/shared/logging"
)

// SlackNotifier posts diagnoses and summaries to a Slack incoming
// webhook, the operator-facing sink for a production deployment.
type SlackNotifier struct {
	webhookURL string
	channel    string
	logger     *logrus.Entry
	postFn     func(ctx context.Context, webhookURL string, msg *slack.WebhookMessage) error
}

// NewSlackNotifier posts to webhookURL, overriding the message's
// destination channel when channel is non-empty (the webhook's
// configured default channel otherwise applies).
func NewSlackNotifier(webhookURL, channel string) *SlackNotifier {
	return &SlackNotifier{
		webhookURL: webhookURL,
		channel:    channel,
		logger:     logrus.WithFields(logging.NewFields().Component("notification.slack").ToLogrus()),
		postFn:     slack.PostWebhookContext,
	}
}

// Report posts a diagnosed signature as a block-formatted Slack message.
func (n *SlackNotifier) Report(ctx context.Context, sig *model.Signature, diagnosis *model.Diagnosis) error {
	msg := n.buildReportMessage(sig, diagnosis)
	if err := n.postFn(ctx, n.webhookURL, msg); err != nil {
		n.logger.WithFields(logging.NewFields().Resource("signature", sig.ID).Error(err).ToLogrus()).Error("failed to post diagnosis to slack")
		return fmt.Errorf("failed to post diagnosis to slack: %w", err)
	}
	n.logger.WithFields(logging.NewFields().Resource("signature", sig.ID).ToLogrus()).Info("posted diagnosis to slack")
	return nil
}

// ReportSummary posts a periodic store-wide summary.
func (n *SlackNotifier) ReportSummary(ctx context.Context, stats model.StoreStats) error {
	msg := n.buildSummaryMessage(stats)
	if err := n.postFn(ctx, n.webhookURL, msg); err != nil {
		n.logger.WithFields(logging.NewFields().Error(err).ToLogrus()).Error("failed to post summary to slack")
		return fmt.Errorf("failed to post summary to slack: %w", err)
	}
	n.logger.Info("posted summary to slack")
	return nil
}

func (n *SlackNotifier) buildReportMessage(sig *model.Signature, diagnosis *model.Diagnosis) *slack.WebhookMessage {
	var evidence strings.Builder
	for i, e := range diagnosis.Evidence {
		fmt.Fprintf(&evidence, "%d. %s\n", i+1, e)
	}

	headerText := fmt.Sprintf(":rotating_light: *%s* in `%s`", sig.ErrorType, sig.Service)
	detailText := fmt.Sprintf(
		"*Confidence:* %s  |  *Cost:* $%.2f  |  *Model:* %s\n\n*Root Cause*\n%s\n\n*Evidence*\n%s\n*Suggested Fix*\n%s",
		strings.ToUpper(string(diagnosis.Confidence)), diagnosis.CostUSD, diagnosis.Model,
		diagnosis.RootCause, evidence.String(), diagnosis.SuggestedFix,
	)

	blocks := []slack.Block{
		slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, headerText, false, false), nil, nil),
		slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, detailText, false, false), nil, nil),
		slack.NewContextBlock("", slack.NewTextBlockObject(slack.MarkdownType,
			fmt.Sprintf("fingerprint `%s`  |  %d occurrences", sig.Fingerprint, sig.OccurrenceCount), false, false)),
	}

	msg := &slack.WebhookMessage{Blocks: &slack.Blocks{BlockSet: blocks}}
	if n.channel != "" {
		msg.Channel = n.channel
	}
	return msg
}

func (n *SlackNotifier) buildSummaryMessage(stats model.StoreStats) *slack.WebhookMessage {
	totalErrors := int64(0)
	if stats.TotalErrorsSeen != nil {
		totalErrors = *stats.TotalErrorsSeen
	}

	var byService strings.Builder
	for _, service := range topServicesByCount(stats.ByService, 10) {
		fmt.Fprintf(&byService, "%s: %d\n", service, stats.ByService[service])
	}

	statuses := make([]string, 0, len(stats.ByStatus))
	for status := range stats.ByStatus {
		statuses = append(statuses, string(status))
	}
	sort.Strings(statuses)
	var byStatus strings.Builder
	for _, status := range statuses {
		fmt.Fprintf(&byStatus, "%s: %d\n", strings.ToUpper(status), stats.ByStatus[model.Status(status)])
	}

	text := fmt.Sprintf(
		"*Summary Report*\nTotal Signatures: %d  |  Total Errors Seen: %d\n\n*By Status*\n%s\n*By Service (top 10)*\n%s",
		stats.TotalSignatures, totalErrors, byStatus.String(), byService.String(),
	)

	msg := &slack.WebhookMessage{
		Blocks: &slack.Blocks{BlockSet: []slack.Block{
			slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, text, false, false), nil, nil),
		}},
	}
	if n.channel != "" {
		msg.Channel = n.channel
	}
	return msg
}
