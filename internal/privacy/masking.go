package privacy

import (
	"net/url"
	"strconv"
	"strings"
)

// MaskWebhookURL hides the token of an incoming-webhook URL and most of its id.
// Example: "https://discord.com/api/webhooks/123456789/abcdef" -> "https://discord.com/api/webhooks/*****6789/***"
func MaskWebhookURL(raw string) string {
	if raw == "" {
		return ""
	}

	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}

	parts := strings.Split(u.Path, "/")
	for i, p := range parts {
		if p == "webhooks" && i+1 < len(parts) {
			parts[i+1] = maskString(parts[i+1], 4)
			for j := i + 2; j < len(parts); j++ {
				if parts[j] != "" {
					parts[j] = "***"
				}
			}
			break
		}
	}
	u.Path = strings.Join(parts, "/")
	u.RawPath = ""

	masked := u.Scheme + "://" + u.Host + u.Path
	if thread := u.Query().Get("thread_id"); thread != "" {
		masked += "?thread_id=" + thread
	}
	return masked
}

// MaskBotToken keeps the bot id of a Telegram token and hides the secret.
// Example: "123456:ABC-DEF" -> "123456:***"
func MaskBotToken(token string) string {
	if token == "" {
		return ""
	}
	id, _, ok := strings.Cut(token, ":")
	if !ok {
		return "***"
	}
	return id + ":***"
}

// MaskChatID masks a numeric chat id, keeping the sign and last digits.
// Example: -1001234567890 -> "-*********7890"
func MaskChatID(chatID int64) string {
	s := strconv.FormatInt(chatID, 10)
	if strings.HasPrefix(s, "-") {
		return "-" + maskString(s[1:], 4)
	}
	return maskString(s, 4)
}

// MaskInvite hides the hash part of an invite link.
func MaskInvite(invite string) string {
	if invite == "" {
		return ""
	}
	idx := strings.LastIndexAny(invite, "/+")
	if idx < 0 || idx == len(invite)-1 {
		return maskString(invite, 3)
	}
	return invite[:idx+1] + maskString(invite[idx+1:], 3)
}

// maskString masks a string showing only the last n characters
func maskString(s string, keepLast int) string {
	if s == "" {
		return ""
	}

	if len(s) <= keepLast {
		return strings.Repeat("*", len(s))
	}

	return strings.Repeat("*", len(s)-keepLast) + s[len(s)-keepLast:]
}

// MaskSensitiveFields applies appropriate masking to common logging fields
func MaskSensitiveFields(fields map[string]interface{}) map[string]interface{} {
	if fields == nil {
		return nil
	}

	masked := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		switch k {
		case "endpoint", "webhook", "webhook_url":
			if s, ok := v.(string); ok {
				masked[k] = MaskWebhookURL(s)
				continue
			}
		case "chat_id", "source_chat_id", "admin_chat_id":
			if id, ok := v.(int64); ok {
				masked[k] = MaskChatID(id)
				continue
			}
		case "invite", "invite_link":
			if s, ok := v.(string); ok {
				masked[k] = MaskInvite(s)
				continue
			}
		case "token", "bot_token":
			if s, ok := v.(string); ok {
				masked[k] = MaskBotToken(s)
				continue
			}
		}
		masked[k] = v
	}
	return masked
}
