package service

// Logging Standards for tgcord
//
// Field names and message patterns shared by the relay, the reconciler and
// the live event handler so their log lines can be joined on the same keys.

// Standard Field Names
const (
	// Source identifiers
	LogFieldChatID    = "chat_id"
	LogFieldMessageID = "message_id"
	LogFieldUpdateID  = "update_id"
	LogFieldOffset    = "offset"

	// Destination identifiers
	LogFieldEndpoint      = "endpoint"
	LogFieldTag           = "tag"
	LogFieldDestMessageID = "dest_message_id"
	LogFieldThreadID      = "thread_id"

	// Service and operation fields
	LogFieldComponent = "component"
	LogFieldOperation = "operation"
	LogFieldEvent     = "event"
	LogFieldIsEdit    = "is_edit"

	// Media
	LogFieldMediaType = "media_type"
	LogFieldFileSize  = "file_size"
	LogFieldVia       = "via"
	LogFieldProfile   = "profile"

	// Performance and metrics
	LogFieldDuration = "duration_ms"
	LogFieldCount    = "count"

	// Error and debugging
	LogFieldErrorCode = "error_code"
	LogFieldAttempt   = "attempt"

	// HTTP surface
	LogFieldRequestID  = "request_id"
	LogFieldTraceID    = "trace_id"
	LogFieldMethod     = "method"
	LogFieldURL        = "url"
	LogFieldStatusCode = "status_code"
	LogFieldRemoteIP   = "remote_ip"
	LogFieldUserAgent  = "user_agent"
	LogFieldSize       = "size"
)

// Log Level Usage Guidelines
//
// DEBUG: per-message flow, skipped no-op edits, ignored events.
// INFO: relayed messages, reconciled edits and deletes, loop start/stop.
// WARN: retried deliveries, fallback downloads, skipped reconcile ticks.
// ERROR: failed deliveries and acquisitions that reach the admin chat.
//
// Message patterns:
//
// "Relayed message" / "Relayed edit" / "Deleted relayed message"
// "Failed to [operation]"
// "Skipping [operation]: [reason]"

// Example Usage:
//
// logger.WithFields(logrus.Fields{
//     LogFieldChatID:    SanitizeChatID(ctx, chatID),
//     LogFieldMessageID: messageID,
//     LogFieldEndpoint:  SanitizeEndpoint(endpoint),
// }).Info("Relayed message")
