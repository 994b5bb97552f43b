package service

import (
	"context"
	"strconv"

	"tgcord/internal/privacy"

	"github.com/sirupsen/logrus"
)

// ContextKey is a package-local type to prevent context key collisions
// See staticcheck SA1029 guidance
type ContextKey string

// VerboseContextKey is the strongly-typed context key for verbose logging flag
const VerboseContextKey ContextKey = "verbose"

// WithVerbose marks ctx so identifiers are logged unmasked.
func WithVerbose(ctx context.Context, verbose bool) context.Context {
	return context.WithValue(ctx, VerboseContextKey, verbose)
}

// IsVerboseLogging checks if verbose logging is enabled from context
func IsVerboseLogging(ctx context.Context) bool {
	if verbose, ok := ctx.Value(VerboseContextKey).(bool); ok {
		return verbose
	}
	return false
}

// SanitizeChatID masks a chat id unless verbose logging is on.
func SanitizeChatID(ctx context.Context, chatID int64) string {
	if IsVerboseLogging(ctx) {
		return strconv.FormatInt(chatID, 10)
	}
	return privacy.MaskChatID(chatID)
}

// SanitizeEndpoint masks a webhook URL. Tokens are secrets, so verbose
// logging does not apply here.
func SanitizeEndpoint(endpoint string) string {
	if endpoint == "" {
		return ""
	}
	return privacy.MaskWebhookURL(endpoint)
}

// SanitizeContent completely hides message content for privacy
func SanitizeContent(content string) string {
	if content == "" {
		return ""
	}
	return "[hidden]"
}

// LogWithContext creates a logger entry with optional sensitive information
func LogWithContext(ctx context.Context, logger *logrus.Logger) *logrus.Entry {
	return logger.WithField("verbose", IsVerboseLogging(ctx))
}

func defaultLogger(logger *logrus.Logger) *logrus.Logger {
	if logger != nil {
		return logger
	}
	l := logrus.New()
	l.SetLevel(logrus.WarnLevel)
	return l
}
