package slack_test

import (
	"context"
	"errors"
	"testing"

	slacklib "github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/evidra/internal/messenger"
	evidraslack "github.com/gosuda/evidra/internal/messenger/slack"
)

// --- mock SlackAPI ---

type mockSlackAPI struct {
	channel string
	opts    []slacklib.MsgOption
	ts      string
	err     error
}

func (m *mockSlackAPI) PostMessageContext(_ context.Context, channelID string, options ...slacklib.MsgOption) (string, string, error) {
	m.channel = channelID
	m.opts = options
	if m.err != nil {
		return "", "", m.err
	}
	return channelID, m.ts, nil
}

func TestSlackMessenger_SendMessage(t *testing.T) {
	t.Parallel()

	t.Run("success returns message timestamp as MessageID", func(t *testing.T) {
		t.Parallel()

		api := &mockSlackAPI{ts: "1234567890.123456"}
		m := evidraslack.NewSlackMessenger(api)

		msgID, err := m.SendMessage(t.Context(), "C123", "hello world")

		require.NoError(t, err)
		assert.Equal(t, messenger.MessageID("1234567890.123456"), msgID)
		assert.Equal(t, "C123", api.channel)
		assert.Len(t, api.opts, 1)
	})

	t.Run("api error is wrapped", func(t *testing.T) {
		t.Parallel()

		api := &mockSlackAPI{err: errors.New("channel_not_found")}
		m := evidraslack.NewSlackMessenger(api)

		msgID, err := m.SendMessage(t.Context(), "C404", "hello")

		require.Error(t, err)
		assert.Empty(t, msgID)
		assert.Contains(t, err.Error(), "SendMessage")
		assert.Contains(t, err.Error(), "channel_not_found")
	})
}

func TestSlackMessenger_SendNotice(t *testing.T) {
	t.Parallel()

	t.Run("posts fallback text and blocks", func(t *testing.T) {
		t.Parallel()

		api := &mockSlackAPI{ts: "1700000000.000100"}
		m := evidraslack.NewSlackMessenger(api)

		msgID, err := m.SendNotice(t.Context(), "C0REVIEW", messenger.Notice{
			Headline: "Mapping review opened",
			Fields:   []messenger.Field{{Label: "Priority", Value: "HIGH"}},
		})

		require.NoError(t, err)
		assert.Equal(t, messenger.MessageID("1700000000.000100"), msgID)
		assert.Equal(t, "C0REVIEW", api.channel)
		assert.Len(t, api.opts, 2)
	})

	t.Run("api error is wrapped", func(t *testing.T) {
		t.Parallel()

		api := &mockSlackAPI{err: errors.New("not_in_channel")}
		m := evidraslack.NewSlackMessenger(api)

		_, err := m.SendNotice(t.Context(), "C0REVIEW", messenger.Notice{Headline: "x"})

		require.Error(t, err)
		assert.Contains(t, err.Error(), "SendNotice")
	})
}

func TestSlackMessenger_Platform(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "slack", evidraslack.NewSlackMessenger(&mockSlackAPI{}).Platform())
}
