package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewAttachment_VideoLikeness(t *testing.T) {
	tests := []struct {
		name     string
		kind     AttachmentKind
		filename string
		mimeType string
		want     bool
	}{
		{"video", AttachmentVideo, "", "", true},
		{"animation", AttachmentAnimation, "", "", true},
		{"photo", AttachmentPhoto, "", "", false},
		{"mkv document", AttachmentDocument, "clip.MKV", "", true},
		{"m4v document", AttachmentDocument, "clip.m4v", "", true},
		{"pdf document", AttachmentDocument, "report.pdf", "application/pdf", false},
		{"document with video mime", AttachmentDocument, "noext", "video/mp4", true},
		{"voice", AttachmentVoice, "voice.ogg", "audio/ogg", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAttachment(tt.kind, "file-1", 10, tt.filename, tt.mimeType)
			assert.Equal(t, tt.want, a.IsVideoLike)
		})
	}
}

func TestMessageEvent_Timestamp(t *testing.T) {
	ev := &MessageEvent{Date: 100}
	assert.Equal(t, int64(100), ev.Timestamp())

	ev.EditDate = 150
	assert.Equal(t, int64(150), ev.Timestamp())
}

func TestAccessState_String(t *testing.T) {
	assert.Equal(t, "ACCESS_OK", AccessOK.String())
	assert.Equal(t, "JOIN_BACKOFF", JoinBackoff.String())
	assert.Equal(t, "UNKNOWN", AccessState(42).String())
}
