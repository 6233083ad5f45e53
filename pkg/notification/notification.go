// Package notification implements NotificationPort against stdout,
// markdown report files, and Slack, matching the three delivery
// backends a deployment selects between via configuration.
package notification

import "github.com/jordigilh/rounds/pkg/ports"

var (
	_ ports.NotificationPort = (*StdoutNotifier)(nil)
	_ ports.NotificationPort = (*MarkdownNotifier)(nil)
	_ ports.NotificationPort = (*SlackNotifier)(nil)
)
