package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"tgcord/internal/constants"
	apperrors "tgcord/internal/errors"

	"github.com/sirupsen/logrus"
)

// Alert describes a relay failure for the operator
type Alert struct {
	ChatID    int64
	MessageID int64
	Summary   string
	Err       error
}

// Notifier delivers operator alerts
type Notifier interface {
	Notify(ctx context.Context, alert Alert)
}

// MessageSender is the part of the bot client the notifier needs
type MessageSender interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
}

// AdminNotifier posts alerts to the admin chat through the bot. Without an
// admin chat alerts are only logged.
type AdminNotifier struct {
	sender      MessageSender
	adminChatID int64
	logger      *logrus.Logger
	errLog      *apperrors.Logger
}

func NewAdminNotifier(sender MessageSender, adminChatID int64, logger *logrus.Logger) *AdminNotifier {
	logger = defaultLogger(logger)
	return &AdminNotifier{
		sender:      sender,
		adminChatID: adminChatID,
		logger:      logger,
		errLog:      apperrors.NewLogger(logger),
	}
}

// Notify never fails the caller; a failed send is logged.
func (n *AdminNotifier) Notify(ctx context.Context, alert Alert) {
	fields := logrus.Fields{LogFieldMessageID: alert.MessageID}
	if alert.Err != nil {
		n.errLog.LogError(alert.Err, alert.Summary, fields)
	} else {
		n.logger.WithFields(fields).Error(alert.Summary)
	}

	if n.adminChatID == 0 || n.sender == nil {
		return
	}
	if err := n.sender.SendMessage(ctx, n.adminChatID, FormatAlert(alert)); err != nil {
		n.logger.WithError(err).Warn("Failed to notify admin chat")
	}
}

// FormatAlert renders an alert as plain text within Telegram's message
// limit, with a link back to the source message when one can be built.
func FormatAlert(alert Alert) string {
	var b strings.Builder
	b.WriteString("⚠️ ")
	b.WriteString(alert.Summary)
	if alert.Err != nil {
		b.WriteString("\nCause: ")
		if ae, ok := apperrors.As(alert.Err); ok && ae.UserMessage != "" {
			b.WriteString(ae.UserMessage)
		} else {
			b.WriteString(alert.Err.Error())
		}
	}
	if link := MessageLink(alert.ChatID, alert.MessageID); link != "" {
		b.WriteString("\n")
		b.WriteString(link)
	}
	return truncateRunes(b.String(), constants.MaxNotificationChars)
}

// MessageLink builds a t.me/c link for a supergroup or channel message.
// Other chat kinds have no public message link.
func MessageLink(chatID, messageID int64) string {
	if messageID <= 0 {
		return ""
	}
	id := strconv.FormatInt(chatID, 10)
	if !strings.HasPrefix(id, "-100") || len(id) <= 4 {
		return ""
	}
	return fmt.Sprintf("https://t.me/c/%s/%d", id[4:], messageID)
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
