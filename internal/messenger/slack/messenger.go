package slack

import (
	"context"
	"fmt"

	slacklib "github.com/slack-go/slack"

	"github.com/gosuda/evidra/internal/messenger"
)

// SlackAPI abstracts the subset of the Slack client used by SlackMessenger.
// This allows testing without real HTTP calls.
type SlackAPI interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slacklib.MsgOption) (string, string, error)
}

// SlackMessenger implements messenger.Messenger for Slack.
type SlackMessenger struct {
	api SlackAPI
}

// Compile-time interface check.
var _ messenger.Messenger = (*SlackMessenger)(nil) //nolint:gochecknoglobals // compile-time check

// NewSlackMessenger creates a SlackMessenger with the given API client.
func NewSlackMessenger(api SlackAPI) *SlackMessenger {
	return &SlackMessenger{api: api}
}

// SendMessage posts a text message to a Slack channel and returns the message timestamp as MessageID.
func (m *SlackMessenger) SendMessage(ctx context.Context, channelID, text string) (messenger.MessageID, error) {
	_, ts, err := m.api.PostMessageContext(ctx, channelID, slacklib.MsgOptionText(text, false))
	if err != nil {
		return "", fmt.Errorf("slack.SlackMessenger.SendMessage: %w", err)
	}

	return messenger.MessageID(ts), nil
}

// SendNotice posts a Block Kit notice. The plain text rendering is attached
// as the notification fallback.
func (m *SlackMessenger) SendNotice(ctx context.Context, channelID string, n messenger.Notice) (messenger.MessageID, error) {
	_, ts, err := m.api.PostMessageContext(ctx, channelID,
		slacklib.MsgOptionText(n.Text(), false),
		slacklib.MsgOptionBlocks(BuildNoticeBlocks(n)...),
	)
	if err != nil {
		return "", fmt.Errorf("slack.SlackMessenger.SendNotice: %w", err)
	}

	return messenger.MessageID(ts), nil
}

// Platform returns the messenger platform identifier.
func (m *SlackMessenger) Platform() string {
	return "slack"
}
