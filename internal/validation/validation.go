package validation

import (
	"fmt"
	"net/url"
	"strings"
	"unicode"

	"tgcord/internal/errors"
)

// ValidateWebhookURL checks that an endpoint looks like a Discord-style
// incoming webhook: absolute http(s) URL with a /webhooks/{id}/{token} path.
func ValidateWebhookURL(raw string) error {
	if raw == "" {
		return errors.New(errors.ErrCodeInvalidInput, "webhook URL cannot be empty")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInvalidInput, "webhook URL is not a valid URL")
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return errors.New(errors.ErrCodeInvalidInput, "webhook URL must use http or https")
	}
	if u.Host == "" {
		return errors.New(errors.ErrCodeInvalidInput, "webhook URL has no host")
	}

	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i, p := range parts {
		if p == "webhooks" && i+2 < len(parts) && parts[i+1] != "" && parts[i+2] != "" {
			return nil
		}
	}
	return errors.New(errors.ErrCodeInvalidInput, "webhook URL path must contain /webhooks/{id}/{token}")
}

// ValidateTag validates a routing tag. Tags are matched as whole words, so
// they may only contain letters, digits and underscores.
func ValidateTag(tag string) error {
	tag = strings.TrimPrefix(tag, "#")
	if tag == "" {
		return errors.New(errors.ErrCodeInvalidInput, "routing tag cannot be empty")
	}
	if len(tag) > 64 {
		return errors.New(errors.ErrCodeInvalidInput, "routing tag too long (max 64 characters)")
	}
	for _, r := range tag {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
			return errors.New(errors.ErrCodeInvalidInput,
				fmt.Sprintf("routing tag %q must contain only letters, digits and underscores", tag))
		}
	}
	return nil
}

// ValidateChatID validates a Telegram chat id. Groups and channels are negative.
func ValidateChatID(id int64, fieldName string) error {
	if id == 0 {
		return errors.New(errors.ErrCodeInvalidInput, fmt.Sprintf("%s cannot be zero", fieldName))
	}
	return nil
}

// ValidateNumericRange validates numeric values against bounds
func ValidateNumericRange(value int, fieldName string, min, max int) error {
	if value < min {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("%s too small (min %d)", fieldName, min))
	}

	if value > max {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("%s too large (max %d)", fieldName, max))
	}

	return nil
}

// ValidateTimeout validates timeout values
func ValidateTimeout(timeoutSec int, fieldName string) error {
	if timeoutSec < 1 {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("%s must be at least 1 second", fieldName))
	}

	if timeoutSec > 3600 {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("%s too large (max 3600 seconds)", fieldName))
	}

	return nil
}
