package main

import (
	"crypto/subtle"
	"fmt"
	"net/http"
)

// telegramSecretHeader carries the secret_token passed to setWebhook.
const telegramSecretHeader = "X-Telegram-Bot-Api-Secret-Token"

func verifySecretToken(r *http.Request, secret string) error {
	if secret == "" {
		return fmt.Errorf("webhook secret is not configured")
	}

	got := r.Header.Get(telegramSecretHeader)
	if got == "" {
		return fmt.Errorf("missing header: %s", telegramSecretHeader)
	}

	if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
		return fmt.Errorf("secret token mismatch")
	}
	return nil
}
