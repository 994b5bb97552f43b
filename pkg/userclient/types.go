// Package userclient talks to the user-session sidecar: a peer session that
// can read chats it has joined and download media above the bot limit.
package userclient

import (
	"errors"
	"fmt"
	"time"
)

type Chat struct {
	ID       int64  `json:"id"`
	Title    string `json:"title"`
	Username string `json:"username,omitempty"`
}

type Author struct {
	Name     string `json:"name"`
	Username string `json:"username,omitempty"`
}

// Message is a source message as read by the user session. Empty marks a
// placeholder returned for ids that no longer resolve to a message.
type Message struct {
	ID       int64   `json:"id"`
	ChatID   int64   `json:"chat_id"`
	Text     string  `json:"text"`
	HTML     string  `json:"html"`
	Date     int64   `json:"date"`
	EditDate int64   `json:"edit_date,omitempty"`
	Empty    bool    `json:"empty,omitempty"`
	Author   *Author `json:"author,omitempty"`
	Media    *Media  `json:"media,omitempty"`
}

type Media struct {
	Kind     string `json:"kind"`
	FileName string `json:"file_name,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

// Timestamp is the edit time when present, else the send time.
func (m *Message) Timestamp() int64 {
	if m.EditDate > 0 {
		return m.EditDate
	}
	return m.Date
}

// EventType distinguishes live events pushed by the sidecar
type EventType string

const (
	EventDeleted EventType = "deleted"
	EventEdited  EventType = "edited"
)

// Event is one live change notification. Deleted events carry MessageIDs,
// edited events carry Message.
type Event struct {
	Type       EventType `json:"type"`
	ChatID     int64     `json:"chat_id"`
	MessageIDs []int64   `json:"message_ids,omitempty"`
	Message    *Message  `json:"message,omitempty"`
}

// ErrorKind classifies sidecar failures
type ErrorKind int

const (
	KindTransient ErrorKind = iota
	KindNotFound
	KindRateLimited
	KindPermissionDenied
	KindAlreadyParticipant
)

func (k ErrorKind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindRateLimited:
		return "rate_limited"
	case KindPermissionDenied:
		return "permission_denied"
	case KindAlreadyParticipant:
		return "already_participant"
	default:
		return "transient"
	}
}

// Error is a classified sidecar failure. Wait is set for rate limits.
type Error struct {
	Op   string
	Kind ErrorKind
	Wait time.Duration
	Err  error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("userclient %s: %s", e.Op, e.Kind)
	if e.Kind == KindRateLimited {
		msg += fmt.Sprintf(" (wait %s)", e.Wait)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the classification of err, KindTransient for foreign errors.
func KindOf(err error) ErrorKind {
	var ucErr *Error
	if errors.As(err, &ucErr) {
		return ucErr.Kind
	}
	return KindTransient
}

func IsNotFound(err error) bool {
	return err != nil && KindOf(err) == KindNotFound
}

func IsPermissionDenied(err error) bool {
	return err != nil && KindOf(err) == KindPermissionDenied
}

// RateLimitWait returns the wait carried by a rate-limit error.
func RateLimitWait(err error) (time.Duration, bool) {
	var ucErr *Error
	if errors.As(err, &ucErr) && ucErr.Kind == KindRateLimited {
		return ucErr.Wait, true
	}
	return 0, false
}

type errorBody struct {
	Error      string  `json:"error"`
	Kind       string  `json:"kind"`
	RetryAfter float64 `json:"retry_after"`
}

type joinRequest struct {
	Invite string `json:"invite"`
}
