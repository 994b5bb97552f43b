package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"tgcord/internal/constants"
	"tgcord/internal/models"
	"tgcord/internal/security"
	"tgcord/internal/validation"
)

var (
	ErrMissingBotToken     = models.ConfigError{Message: "missing Telegram bot token"}
	ErrMissingSourceChat   = models.ConfigError{Message: "missing Telegram source chat id"}
	ErrMissingDBPath       = models.ConfigError{Message: "missing database path"}
	ErrNoDestination       = models.ConfigError{Message: "no Discord routes and no default webhook configured"}
	ErrInvalidUpdateMode   = models.ConfigError{Message: "telegram.updateMode must be \"polling\" or \"webhook\""}
	ErrMissingWebhookToken = models.ConfigError{Message: "webhook update mode requires telegram.webhookSecret"}
)

// LoadEnvFile loads KEY=VALUE pairs from path into the process environment
// without overriding variables that are already set. A missing file is not
// an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

func LoadConfig(path string) (*models.Config, error) {
	if err := security.ValidateFilePath(path); err != nil {
		return nil, fmt.Errorf("invalid config path: %w", err)
	}

	file, err := os.ReadFile(path) // #nosec G304 - Path validated by security.ValidateFilePath above
	if err != nil {
		return nil, err
	}

	var config models.Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, err
	}

	applyEnvironmentOverrides(&config)
	applyDefaults(&config)

	if err := validate(&config); err != nil {
		return nil, err
	}

	if err := validateSecurity(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func applyDefaults(c *models.Config) {
	if c.Telegram.UpdateMode == "" {
		c.Telegram.UpdateMode = constants.DefaultUpdateMode
	}
	if c.Telegram.PollTimeoutSec <= 0 {
		c.Telegram.PollTimeoutSec = constants.DefaultPollTimeoutSec
	}

	if c.Discord.MaxUploadBytes <= 0 {
		c.Discord.MaxUploadBytes = constants.DefaultMaxUploadBytes
	}
	if c.Discord.RequestTimeoutSec <= 0 {
		c.Discord.RequestTimeoutSec = constants.DefaultRequestTimeoutSec
	}
	if c.Discord.UploadTimeoutSec <= 0 {
		c.Discord.UploadTimeoutSec = constants.DefaultUploadTimeoutSec
	}

	if c.UserClient.TimeoutSec <= 0 {
		c.UserClient.TimeoutSec = constants.DefaultUserClientTimeoutSec
	}
	if c.UserClient.HeartbeatIntervalSec <= 0 {
		c.UserClient.HeartbeatIntervalSec = constants.DefaultHeartbeatIntervalSec
	}
	if c.UserClient.JoinBackoffMarginSec <= 0 {
		c.UserClient.JoinBackoffMarginSec = constants.DefaultJoinBackoffMarginSec
	}

	if c.Media.WorkDir == "" {
		c.Media.WorkDir = filepath.Join(os.TempDir(), "tgcord")
	}
	if c.Media.BotDownloadLimitBytes <= 0 {
		c.Media.BotDownloadLimitBytes = constants.DefaultBotDownloadLimitBytes
	}
	if c.Media.FFmpegPath == "" {
		c.Media.FFmpegPath = "ffmpeg"
	}
	if c.Media.FFprobePath == "" {
		c.Media.FFprobePath = "ffprobe"
	}
	if c.Media.CompressionWorkers <= 0 {
		c.Media.CompressionWorkers = constants.DefaultCompressionWorkers
	}
	if c.Media.CleanupMaxAgeHours <= 0 {
		c.Media.CleanupMaxAgeHours = constants.DefaultMediaMaxAgeHours
	}

	switch {
	case c.Reconcile.IntervalSec <= 0:
		c.Reconcile.IntervalSec = constants.DefaultReconcileIntervalSec
	case c.Reconcile.IntervalSec < constants.MinReconcileIntervalSec:
		c.Reconcile.IntervalSec = constants.MinReconcileIntervalSec
	case c.Reconcile.IntervalSec > constants.MaxReconcileIntervalSec:
		c.Reconcile.IntervalSec = constants.MaxReconcileIntervalSec
	}
	if c.Reconcile.Limit <= 0 {
		c.Reconcile.Limit = constants.DefaultReconcileLimit
	}

	if c.Retry.InitialBackoffMs <= 0 {
		c.Retry.InitialBackoffMs = constants.DefaultRetryBackoffMs
	}
	if c.Retry.MaxBackoffMs <= 0 {
		c.Retry.MaxBackoffMs = constants.DefaultMaxBackoffMs
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = constants.DefaultMaxAttempts
	}

	if c.Server.Port <= 0 {
		c.Server.Port = constants.DefaultServerPort
	}
	if c.Server.ReadTimeoutSec <= 0 {
		c.Server.ReadTimeoutSec = constants.DefaultServerReadTimeoutSec
	}
	if c.Server.WriteTimeoutSec <= 0 {
		c.Server.WriteTimeoutSec = constants.DefaultServerWriteTimeoutSec
	}

	if c.Tracing.SampleRate <= 0 {
		c.Tracing.SampleRate = 1.0
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.WorkerConcurrency <= 0 {
		c.WorkerConcurrency = constants.DefaultWorkerConcurrency
	}
}

func validate(c *models.Config) error {
	if c.Telegram.BotToken == "" {
		return ErrMissingBotToken
	}
	if err := validation.ValidateChatID(c.Telegram.SourceChatID, "telegram.sourceChatId"); err != nil {
		return ErrMissingSourceChat
	}
	if c.Database.Path == "" {
		return ErrMissingDBPath
	}
	if err := security.ValidateFilePath(c.Database.Path); err != nil {
		return models.ConfigError{Message: fmt.Sprintf("invalid database path: %v", err)}
	}
	if err := security.ValidateFilePath(c.Media.WorkDir); err != nil {
		return models.ConfigError{Message: fmt.Sprintf("invalid media work dir: %v", err)}
	}

	if c.Telegram.UpdateMode != "polling" && c.Telegram.UpdateMode != "webhook" {
		return ErrInvalidUpdateMode
	}

	if len(c.Discord.Routes) == 0 && c.Discord.DefaultWebhookURL == "" {
		return ErrNoDestination
	}

	seen := make(map[string]bool)
	for i, route := range c.Discord.Routes {
		if err := validation.ValidateTag(route.Tag); err != nil {
			return models.ConfigError{Message: fmt.Sprintf("route %d: %v", i, err)}
		}
		tag := strings.ToUpper(strings.TrimPrefix(route.Tag, "#"))
		if seen[tag] {
			return models.ConfigError{Message: fmt.Sprintf("duplicate routing tag: %s", tag)}
		}
		seen[tag] = true

		// A blank webhook is allowed: matching that tag falls through to the default.
		if route.WebhookURL != "" {
			if err := validation.ValidateWebhookURL(route.WebhookURL); err != nil {
				return models.ConfigError{Message: fmt.Sprintf("route %s: %v", tag, err)}
			}
		}
	}

	if c.Discord.DefaultWebhookURL != "" {
		if err := validation.ValidateWebhookURL(c.Discord.DefaultWebhookURL); err != nil {
			return models.ConfigError{Message: fmt.Sprintf("default webhook: %v", err)}
		}
	}

	if err := validation.ValidateTimeout(c.Discord.UploadTimeoutSec, "discord.uploadTimeoutSec"); err != nil {
		return models.ConfigError{Message: err.Error()}
	}
	if err := validation.ValidateNumericRange(c.Reconcile.Limit, "reconcile.limit", 1, 1000); err != nil {
		return models.ConfigError{Message: err.Error()}
	}

	return nil
}

func applyEnvironmentOverrides(c *models.Config) {
	if v := os.Getenv("TGCORD_TELEGRAM_BOT_TOKEN"); v != "" {
		c.Telegram.BotToken = v
	}
	if v, ok := envInt64("TGCORD_SOURCE_CHAT_ID"); ok {
		c.Telegram.SourceChatID = v
	}
	if v, ok := envInt64("TGCORD_ADMIN_CHAT_ID"); ok {
		c.Telegram.AdminChatID = v
	}
	if v := os.Getenv("TGCORD_INVITE_LINK"); v != "" {
		c.Telegram.InviteLink = v
	}

	if v := os.Getenv("TGCORD_PUBLIC_WEBHOOK_URL"); v != "" {
		c.Telegram.WebhookURL = v
	}
	// SECURITY: Webhook secrets should be set via environment variables
	if v := os.Getenv("TGCORD_WEBHOOK_SECRET"); v != "" {
		c.Telegram.WebhookSecret = v
	}

	if v, ok := envBool("TGCORD_INCLUDE_AUTHOR"); ok {
		c.Telegram.IncludeAuthor = v
	}
	if v, ok := envBool("TGCORD_FORWARD_EDITS"); ok {
		c.Telegram.ForwardEdits = v
	}
	if v := os.Getenv("TGCORD_DEFAULT_WEBHOOK_URL"); v != "" {
		c.Discord.DefaultWebhookURL = v
	}
	if v := os.Getenv("TGCORD_USERCLIENT_URL"); v != "" {
		c.UserClient.BaseURL = v
	}
	if v := os.Getenv("TGCORD_DB_PATH"); v != "" {
		c.Database.Path = v
	}
	if v, ok := envInt64("TGCORD_RECONCILE_INTERVAL_SEC"); ok {
		c.Reconcile.IntervalSec = int(v)
	}
}

// validateSecurity performs security-specific validation
func validateSecurity(c *models.Config) error {
	isProduction := os.Getenv("TGCORD_ENV") == "production"

	if c.Telegram.UpdateMode == "webhook" && c.Telegram.WebhookSecret == "" {
		return ErrMissingWebhookToken
	}

	if isProduction {
		if c.Telegram.UpdateMode == "webhook" && len(c.Telegram.WebhookSecret) < 32 {
			return models.ConfigError{Message: "webhook secret must be at least 32 characters long in production"}
		}
		if c.LogLevel == "debug" {
			return models.ConfigError{Message: "debug logging should not be used in production (security risk)"}
		}
	} else if c.Telegram.AdminChatID == 0 {
		fmt.Fprintf(os.Stderr, "WARNING: telegram.adminChatId not set. Relay failures will only be logged.\n")
	}

	return nil
}

func envInt64(key string) (int64, bool) {
	raw := os.Getenv(key)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func envBool(key string) (bool, bool) {
	raw := os.Getenv(key)
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return false, false
	}
	return v, true
}
