package slack_test

import (
	"testing"

	slacklib "github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/evidra/internal/messenger"
	evidraslack "github.com/gosuda/evidra/internal/messenger/slack"
)

func TestBuildNoticeBlocks(t *testing.T) {
	t.Parallel()

	t.Run("header, body and fields", func(t *testing.T) {
		t.Parallel()

		blocks := evidraslack.BuildNoticeBlocks(messenger.Notice{
			Headline: "Mapping review opened",
			Body:     "Manually entered evidence needs review.",
			Fields: []messenger.Field{
				{Label: "Priority", Value: "MEDIUM"},
				{Label: "Type", Value: "MAPPING_REVIEW"},
			},
		})
		require.Len(t, blocks, 3)

		header, ok := blocks[0].(*slacklib.HeaderBlock)
		require.True(t, ok, "first block should be a HeaderBlock")
		assert.Equal(t, slacklib.MBTHeader, header.Type)
		assert.Equal(t, "Mapping review opened", header.Text.Text)

		body, ok := blocks[1].(*slacklib.SectionBlock)
		require.True(t, ok, "second block should be a SectionBlock")
		require.NotNil(t, body.Text)
		assert.Contains(t, body.Text.Text, "needs review")

		fields, ok := blocks[2].(*slacklib.SectionBlock)
		require.True(t, ok, "third block should be a SectionBlock")
		require.Len(t, fields.Fields, 2)
		assert.Equal(t, "*Priority:*\nMEDIUM", fields.Fields[0].Text)
	})

	t.Run("headline only", func(t *testing.T) {
		t.Parallel()

		blocks := evidraslack.BuildNoticeBlocks(messenger.Notice{Headline: "Resolved"})
		require.Len(t, blocks, 1)
	})
}
