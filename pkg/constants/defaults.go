package constants

// Default timeout values used by client packages
const (
	DefaultHTTPTimeoutSec          = 30
	DefaultTelegramTimeoutSec      = 60
	DefaultUserClientTimeoutSec    = 60
	DefaultMediaDownloadTimeoutSec = 300
)

// Discord webhook limits
const (
	DiscordMaxContentChars = 2000
	DiscordMaxAttempts     = 5
	DiscordMaxBackoffSec   = 30
	DiscordRequestTimeout  = 60
	DiscordUploadTimeout   = 600
)

// Telegram limits
const (
	TelegramAPIBaseURL       = "https://api.telegram.org"
	TelegramMaxMessageChars  = 4096
	TelegramFileTooBigSubstr = "file is too big"
)

// File size constants used by media packages
const (
	BytesPerMegabyte         = 1024 * 1024
	MimeDetectionBufferSize  = 3072
	CompressionTargetPercent = 95
)

// File permission constants
const (
	DefaultFilePermissions      = 0600
	DefaultDirectoryPermissions = 0750
)
