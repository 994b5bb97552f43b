package models

import (
	"path/filepath"
	"strings"

	"tgcord/internal/constants"
)

// AttachmentKind is the normalized media variant of a source message
type AttachmentKind string

const (
	AttachmentPhoto     AttachmentKind = "photo"
	AttachmentVideo     AttachmentKind = "video"
	AttachmentDocument  AttachmentKind = "document"
	AttachmentAnimation AttachmentKind = "animation"
	AttachmentAudio     AttachmentKind = "audio"
	AttachmentVoice     AttachmentKind = "voice"
	AttachmentSticker   AttachmentKind = "sticker"
)

// Attachment is the normalized descriptor computed once at ingestion
type Attachment struct {
	Kind         AttachmentKind `json:"kind"`
	FileID       string         `json:"fileId"`
	DeclaredSize int64          `json:"declaredSize"` // 0 when unknown
	FilenameHint string         `json:"filenameHint,omitempty"`
	MIMEType     string         `json:"mimeType,omitempty"`
	IsVideoLike  bool           `json:"isVideoLike"`
}

// NewAttachment builds a descriptor and derives video-likeness from the kind
// and, for documents, the filename or MIME hint.
func NewAttachment(kind AttachmentKind, fileID string, size int64, filename, mimeType string) *Attachment {
	a := &Attachment{
		Kind:         kind,
		FileID:       fileID,
		DeclaredSize: size,
		FilenameHint: filename,
		MIMEType:     mimeType,
	}
	switch kind {
	case AttachmentVideo, AttachmentAnimation:
		a.IsVideoLike = true
	case AttachmentDocument:
		ext := strings.ToLower(filepath.Ext(filename))
		a.IsVideoLike = constants.VideoExtensions[ext] || strings.HasPrefix(mimeType, "video/")
	}
	return a
}

// SizeKnown reports whether the source declared a byte size.
func (a *Attachment) SizeKnown() bool {
	return a.DeclaredSize > 0
}

// Author identifies the sender of a source message
type Author struct {
	Name     string `json:"name"`
	Username string `json:"username,omitempty"`
}

// MessageEvent is an inbound source message, new or edited
type MessageEvent struct {
	ChatID     int64       `json:"chatId"`
	MessageID  int64       `json:"messageId"`
	HTML       string      `json:"html"`
	Attachment *Attachment `json:"attachment,omitempty"`
	Author     *Author     `json:"author,omitempty"`
	Date       int64       `json:"date"`
	EditDate   int64       `json:"editDate,omitempty"`
	IsEdit     bool        `json:"isEdit"`
}

// Key returns the composite identity of the event's message.
func (e *MessageEvent) Key() MessageKey {
	return MessageKey{ChatID: e.ChatID, MessageID: e.MessageID}
}

// Timestamp is the edit time when present, else the send time.
func (e *MessageEvent) Timestamp() int64 {
	if e.EditDate > 0 {
		return e.EditDate
	}
	return e.Date
}
