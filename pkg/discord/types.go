package discord

import "context"

// Client is the subset of the incoming-webhook API the relay uses
type Client interface {
	PostText(ctx context.Context, endpoint, content string) (*Delivery, error)
	PostFile(ctx context.Context, endpoint, path, filename, content string) (*Delivery, error)
	EditMessage(ctx context.Context, endpoint, messageID, content, threadID string) error
	DeleteMessage(ctx context.Context, endpoint, messageID, threadID string) error
}

// Delivery identifies a message created through a webhook
type Delivery struct {
	MessageID string
	ChannelID string
	ThreadID  string
}

// TombstoneText replaces a message that could not be deleted.
const TombstoneText = "*(deleted at source)*"

type webhookMessage struct {
	ID        string `json:"id"`
	ChannelID string `json:"channel_id"`
}

type contentPayload struct {
	Content         string          `json:"content"`
	AllowedMentions allowedMentions `json:"allowed_mentions"`
}

// allowedMentions with an empty parse list disables every ping.
type allowedMentions struct {
	Parse []string `json:"parse"`
}

type rateLimitBody struct {
	Message    string  `json:"message"`
	RetryAfter float64 `json:"retry_after"`
	Global     bool    `json:"global"`
}
