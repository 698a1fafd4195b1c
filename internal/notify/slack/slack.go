// Package slack posts run summaries to a Slack Incoming Webhook.
package slack

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	goslack "github.com/slack-go/slack"

	"tap_notify/internal/config"
	"tap_notify/internal/domain"
)

const (
	EmojiSuccess = ":large_green_circle:"
	EmojiFailure = ":red_circle:"
)

// Notifier sends run summaries to a Slack webhook. Delivery failures are
// returned to the caller.
type Notifier struct {
	webhookURL string
	title      string
	client     *http.Client
	logger     *slog.Logger
}

// New builds a notifier posting to {BaseURL}/{WebhookToken}.
func New(cfg config.SlackConfig, title string, logger *slog.Logger) (*Notifier, error) {
	if cfg.WebhookToken == "" {
		return nil, domain.ErrMissingWebhookToken
	}

	client := &http.Client{}
	if cfg.Timeout > 0 {
		client.Timeout = cfg.Timeout
	}

	return &Notifier{
		webhookURL: WebhookURL(cfg.BaseURL, cfg.WebhookToken),
		title:      title,
		client:     client,
		logger:     logger.With("channel", "slack"),
	}, nil
}

// WebhookURL joins the webhook base URL and token.
func WebhookURL(baseURL, token string) string {
	return strings.TrimRight(baseURL, "/") + "/" + strings.TrimLeft(token, "/")
}

func (n *Notifier) Name() string {
	return "slack"
}

// Notify posts the run summary. Network errors and non-2xx responses are
// returned wrapped.
func (n *Notifier) Notify(ctx context.Context, run domain.RunSummary) error {
	msg := &goslack.WebhookMessage{
		Text: Message(n.title, run),
	}

	if err := goslack.PostWebhookCustomHTTPContext(ctx, n.webhookURL, n.client, msg); err != nil {
		return fmt.Errorf("post slack webhook: %w", err)
	}

	n.logger.InfoContext(ctx, "slack notification sent",
		"run_id", run.RunID,
		"status", run.Status(),
	)
	return nil
}

// StatusEmoji maps a run status to the Slack emoji shown in the summary.
func StatusEmoji(status domain.Status) string {
	if status == domain.StatusFailure {
		return EmojiFailure
	}
	return EmojiSuccess
}

// Message formats the text block posted for a run.
func Message(title string, run domain.RunSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s Update:\n", title)
	fmt.Fprintf(&b, "- Run Id: %d,\n", run.RunID)
	fmt.Fprintf(&b, "- Status: %s,\n", StatusEmoji(run.Status()))
	fmt.Fprintf(&b, "- Start Time: %s,\n", run.StartTimeString())
	fmt.Fprintf(&b, "- Run Time: %s\n", strconv.FormatFloat(run.RunTimeSeconds(), 'f', -1, 64))
	fmt.Fprintf(&b, "- Records Synced: %d,\n", run.RecordCount)
	fmt.Fprintf(&b, "- Comments: %s", run.Comments)
	return b.String()
}
