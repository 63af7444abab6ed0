// Package notify delivers Hydra notifications to external channels.
package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/slack-go/slack"

	"github.com/ahrav/go-hydra/internal/domain"
	"github.com/ahrav/go-hydra/internal/ports"
)

// ErrMissingWebhook is returned when a Slack notifier is built without a
// webhook URL.
var ErrMissingWebhook = errors.New("slack webhook url is required")

// SlackNotifier posts notifications to a Slack incoming webhook. Every
// notification lands in the webhook's channel and names its recipient.
type SlackNotifier struct {
	webhookURL string
	client     *http.Client
}

var _ ports.Notifier = (*SlackNotifier)(nil)

// SlackOption customizes a SlackNotifier.
type SlackOption func(*SlackNotifier)

// WithHTTPClient overrides the HTTP client used for webhook posts.
func WithHTTPClient(c *http.Client) SlackOption {
	return func(n *SlackNotifier) { n.client = c }
}

// NewSlackNotifier creates a notifier for webhookURL.
func NewSlackNotifier(webhookURL string, opts ...SlackOption) (*SlackNotifier, error) {
	if webhookURL == "" {
		return nil, ErrMissingWebhook
	}
	n := &SlackNotifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

// Name implements ports.Notifier.
func (n *SlackNotifier) Name() string { return "slack" }

// Notify implements ports.Notifier.
func (n *SlackNotifier) Notify(ctx context.Context, note domain.Notification) error {
	msg := BuildSlackMessage(note)
	if err := slack.PostWebhookCustomHTTPContext(ctx, n.webhookURL, n.client, msg); err != nil {
		return fmt.Errorf("post slack webhook for %s: %w", note.UserID, err)
	}
	return nil
}

// BuildSlackMessage renders a notification as a webhook message with a
// header, a markdown body and a context line naming the recipient.
func BuildSlackMessage(note domain.Notification) *slack.WebhookMessage {
	title := note.Title
	if title == "" {
		title = string(note.Kind)
	}

	blocks := []slack.Block{
		slack.NewHeaderBlock(slack.NewTextBlockObject(slack.PlainTextType, title, false, false)),
	}
	if note.Body != "" {
		blocks = append(blocks, slack.NewSectionBlock(
			slack.NewTextBlockObject(slack.MarkdownType, note.Body, false, false),
			nil, nil,
		))
	}

	meta := fmt.Sprintf("for *%s* | %s", note.UserID, note.Kind)
	if note.Reference != "" {
		meta += fmt.Sprintf(" | `%s`", note.Reference)
	}
	blocks = append(blocks, slack.NewContextBlock("",
		slack.NewTextBlockObject(slack.MarkdownType, meta, false, false),
	))

	return &slack.WebhookMessage{
		Text:   fmt.Sprintf("%s (for %s)", title, note.UserID),
		Blocks: &slack.Blocks{BlockSet: blocks},
	}
}
