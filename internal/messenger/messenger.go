package messenger

import "context"

// MessageID uniquely identifies a message within a messenger platform.
type MessageID string

// Field is a labelled value rendered beneath a notice headline.
type Field struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Notice is a structured alert posted to a review channel.
type Notice struct {
	Headline string  `json:"headline"`
	Body     string  `json:"body,omitempty"`
	Fields   []Field `json:"fields,omitempty"`
}

// Text renders the notice as plain text for platforms or clients that cannot
// show structured content.
func (n Notice) Text() string {
	out := n.Headline
	if n.Body != "" {
		out += "\n" + n.Body
	}
	for _, f := range n.Fields {
		out += "\n" + f.Label + ": " + f.Value
	}
	return out
}

// Messenger abstracts communication with a chat platform.
// Implementations handle platform-specific API calls; the interface is platform-agnostic.
type Messenger interface {
	// SendMessage posts a text message to a channel and returns its platform message ID.
	SendMessage(ctx context.Context, channelID, text string) (MessageID, error)

	// SendNotice posts a structured notice to a channel.
	SendNotice(ctx context.Context, channelID string, n Notice) (MessageID, error)

	// Platform returns the messenger platform identifier (e.g. "slack").
	Platform() string
}
