package slack

import (
	slacklib "github.com/slack-go/slack"

	"github.com/gosuda/evidra/internal/messenger"
)

// BuildNoticeBlocks builds Slack Block Kit blocks for a notice: a header, an
// optional body section and a fields section.
func BuildNoticeBlocks(n messenger.Notice) []slacklib.Block {
	blocks := []slacklib.Block{
		slacklib.NewHeaderBlock(slacklib.NewTextBlockObject(slacklib.PlainTextType, n.Headline, false, false)),
	}

	if n.Body != "" {
		blocks = append(blocks, slacklib.NewSectionBlock(
			slacklib.NewTextBlockObject(slacklib.MarkdownType, n.Body, false, false),
			nil,
			nil,
		))
	}

	if len(n.Fields) > 0 {
		fields := make([]*slacklib.TextBlockObject, 0, len(n.Fields))
		for _, f := range n.Fields {
			fields = append(fields, slacklib.NewTextBlockObject(slacklib.MarkdownType, "*"+f.Label+":*\n"+f.Value, false, false))
		}
		blocks = append(blocks, slacklib.NewSectionBlock(nil, fields, nil))
	}

	return blocks
}
