package models

// Config holds the application configuration
type Config struct {
	Telegram          TelegramConfig   `json:"telegram"`
	Discord           DiscordConfig    `json:"discord"`
	UserClient        UserClientConfig `json:"userClient"`
	Media             MediaConfig      `json:"media"`
	Reconcile         ReconcileConfig  `json:"reconcile"`
	Database          DatabaseConfig   `json:"database"`
	Retry             RetryConfig      `json:"retry"`
	Server            ServerConfig     `json:"server"`
	Tracing           TracingConfig    `json:"tracing"`
	LogLevel          string           `json:"logLevel"`
	WorkerConcurrency int              `json:"workerConcurrency"`
}

// TelegramConfig holds the Bot API side of the relay
type TelegramConfig struct {
	BotToken       string `json:"botToken"`
	APIURL         string `json:"apiUrl"`
	SourceChatID   int64  `json:"sourceChatId"`
	AdminChatID    int64  `json:"adminChatId"`
	InviteLink     string `json:"inviteLink"`
	UpdateMode     string `json:"updateMode"` // "polling" or "webhook"
	WebhookURL     string `json:"webhookUrl"` // public URL registered with setWebhook; empty leaves registration to the operator
	WebhookSecret  string `json:"webhookSecret"`
	PollTimeoutSec int    `json:"pollTimeoutSec"`
	IncludeAuthor  bool   `json:"includeAuthor"`
	ForwardEdits   bool   `json:"forwardEdits"`
}

// Route binds a routing tag to a Discord webhook
type Route struct {
	Tag        string `json:"tag"`
	WebhookURL string `json:"webhookUrl"`
}

// DiscordConfig holds the destination webhooks, in routing order
type DiscordConfig struct {
	Routes            []Route `json:"routes"`
	DefaultWebhookURL string  `json:"defaultWebhookUrl"`
	MaxUploadBytes    int64   `json:"maxUploadBytes"`
	RequestTimeoutSec int     `json:"requestTimeoutSec"`
	UploadTimeoutSec  int     `json:"uploadTimeoutSec"`
}

// UserClientConfig holds the secondary (user session) client sidecar settings
type UserClientConfig struct {
	BaseURL              string `json:"baseUrl"`
	EventsEnabled        bool   `json:"eventsEnabled"`
	TimeoutSec           int    `json:"timeoutSec"`
	HeartbeatIntervalSec int    `json:"heartbeatIntervalSec"`
	JoinBackoffMarginSec int    `json:"joinBackoffMarginSec"`
}

// MediaConfig holds media related configurations
type MediaConfig struct {
	WorkDir               string `json:"workDir"`
	BotDownloadLimitBytes int64  `json:"botDownloadLimitBytes"`
	FFmpegPath            string `json:"ffmpegPath"`
	FFprobePath           string `json:"ffprobePath"`
	CompressionWorkers    int    `json:"compressionWorkers"`
	CleanupMaxAgeHours    int    `json:"cleanupMaxAgeHours"`
}

// ReconcileConfig holds reconciliation loop settings
type ReconcileConfig struct {
	IntervalSec int `json:"intervalSec"`
	Limit       int `json:"limit"`
}

// DatabaseConfig holds database related configurations
type DatabaseConfig struct {
	Path string `json:"path"`
}

// RetryConfig holds retry related configurations
type RetryConfig struct {
	InitialBackoffMs int `json:"initialBackoffMs"`
	MaxBackoffMs     int `json:"maxBackoffMs"`
	MaxAttempts      int `json:"maxAttempts"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port            int `json:"port"`
	ReadTimeoutSec  int `json:"readTimeoutSec"`
	WriteTimeoutSec int `json:"writeTimeoutSec"`
}

// TracingConfig holds OpenTelemetry settings
type TracingConfig struct {
	Enabled      bool    `json:"enabled"`
	OTLPEndpoint string  `json:"otlpEndpoint"`
	SampleRate   float64 `json:"sampleRate"`
	UseStdout    bool    `json:"useStdout"`
	Environment  string  `json:"environment"`
}

// HasSecondaryClient reports whether a user-session sidecar is configured.
func (c *Config) HasSecondaryClient() bool {
	return c.UserClient.BaseURL != ""
}

type ConfigError struct {
	Message string
}

func (e ConfigError) Error() string {
	return e.Message
}
