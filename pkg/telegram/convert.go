package telegram

import (
	"strings"

	"tgcord/internal/models"
)

// Event returns the relay event carried by an update, or nil when the update
// holds no message.
func (u *Update) Event() *models.MessageEvent {
	switch {
	case u.Message != nil:
		return ToEvent(u.Message, false)
	case u.ChannelPost != nil:
		return ToEvent(u.ChannelPost, false)
	case u.EditedMessage != nil:
		return ToEvent(u.EditedMessage, true)
	case u.EditedChannelPost != nil:
		return ToEvent(u.EditedChannelPost, true)
	}
	return nil
}

// ToEvent normalizes a Bot API message into a relay event.
func ToEvent(msg *Message, isEdit bool) *models.MessageEvent {
	text, entities := msg.Text, msg.Entities
	if text == "" {
		text, entities = msg.Caption, msg.CaptionEntities
	}

	return &models.MessageEvent{
		ChatID:     msg.Chat.ID,
		MessageID:  msg.MessageID,
		HTML:       RenderHTML(text, entities),
		Attachment: attachmentOf(msg),
		Author:     authorOf(msg),
		Date:       msg.Date,
		EditDate:   msg.EditDate,
		IsEdit:     isEdit || msg.EditDate > 0,
	}
}

func attachmentOf(msg *Message) *models.Attachment {
	fromMeta := func(kind models.AttachmentKind, m *FileMeta) *models.Attachment {
		return models.NewAttachment(kind, m.FileID, m.FileSize, m.FileName, m.MimeType)
	}

	switch {
	case len(msg.Photo) > 0:
		// sizes are ordered smallest first
		largest := msg.Photo[len(msg.Photo)-1]
		return models.NewAttachment(models.AttachmentPhoto, largest.FileID, largest.FileSize, "", "image/jpeg")
	case msg.Animation != nil:
		// animations also carry a document field
		return fromMeta(models.AttachmentAnimation, msg.Animation)
	case msg.Video != nil:
		return fromMeta(models.AttachmentVideo, msg.Video)
	case msg.Document != nil:
		return fromMeta(models.AttachmentDocument, msg.Document)
	case msg.Audio != nil:
		return fromMeta(models.AttachmentAudio, msg.Audio)
	case msg.Voice != nil:
		return fromMeta(models.AttachmentVoice, msg.Voice)
	case msg.Sticker != nil:
		return fromMeta(models.AttachmentSticker, msg.Sticker)
	}
	return nil
}

func authorOf(msg *Message) *models.Author {
	switch {
	case msg.From != nil && !msg.From.IsBot:
		name := strings.TrimSpace(msg.From.FirstName + " " + msg.From.LastName)
		return &models.Author{Name: name, Username: msg.From.Username}
	case msg.AuthorSignature != "":
		return &models.Author{Name: msg.AuthorSignature}
	case msg.SenderChat != nil:
		return &models.Author{Name: msg.SenderChat.Title, Username: msg.SenderChat.Username}
	}
	return nil
}
