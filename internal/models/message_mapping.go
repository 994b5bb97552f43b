package models

import "time"

// MessageKey identifies a source message.
type MessageKey struct {
	ChatID    int64 `json:"chatId"`
	MessageID int64 `json:"messageId"`
}

// MessageMapping correlates one relayed Telegram message with its Discord copy
type MessageMapping struct {
	SourceChatID         int64     `json:"sourceChatId"`
	SourceMessageID      int64     `json:"sourceMessageId"`
	LastEditTimestamp    int64     `json:"lastEditTimestamp"`
	DestinationMessageID string    `json:"destinationMessageId"`
	DestinationChannelID string    `json:"destinationChannelId"`
	DestinationThreadID  string    `json:"destinationThreadId,omitempty"`
	DestinationEndpoint  string    `json:"-"`
	LastContentSnapshot  string    `json:"lastContentSnapshot"`
	Deleted              bool      `json:"deleted"`
	CreatedAt            time.Time `json:"createdAt"`
	UpdatedAt            time.Time `json:"updatedAt"`
}

// Key returns the composite identity of the mapping.
func (m *MessageMapping) Key() MessageKey {
	return MessageKey{ChatID: m.SourceChatID, MessageID: m.SourceMessageID}
}
