package constants

// Default relay configuration values
const (
	DefaultReconcileIntervalSec = 10
	MinReconcileIntervalSec     = 10
	MaxReconcileIntervalSec     = 180
	DefaultReconcileLimit       = 10
	DefaultPollTimeoutSec       = 30
	DefaultWorkerConcurrency    = 4
	DefaultCompressionWorkers   = 1
	DefaultServerPort           = 8082
	DefaultUpdateMode           = "polling"
)

// Default size ceilings
const (
	DefaultBotDownloadLimitBytes = 20 * 1024 * 1024
	DefaultMaxUploadBytes        = 100 * 1024 * 1024
	MaxSnapshotChars             = 2000
	MaxNotificationChars         = 4000
)

// Default retry configuration values
const (
	DefaultRetryBackoffMs = 1000
	DefaultMaxBackoffMs   = 30000
	DefaultMaxAttempts    = 5
)

// Default timeout values
const (
	DefaultRequestTimeoutSec      = 60
	DefaultUploadTimeoutSec       = 600
	DefaultUserClientTimeoutSec   = 60
	DefaultHeartbeatIntervalSec   = 600
	DefaultJoinBackoffMarginSec   = 5
	DefaultGracefulShutdownSec    = 30
	DefaultServerReadTimeoutSec   = 15
	DefaultServerWriteTimeoutSec  = 15
	DefaultServerIdleTimeoutSec   = 60
	DefaultDatabaseRetryAttempts  = 3
	DefaultMediaCleanupIntervalHr = 1
	DefaultMediaMaxAgeHours       = 6
	DefaultConfigWatchIntervalSec = 5
)

// Invite links minted by the bot carry this name so operators can spot them.
const AutoInviteName = "bridge-autoinvite"

// Privacy settings
const (
	DefaultIDMaskLength = 4
)

// Encryption settings for the destination endpoint column
const (
	EncryptionSalt       = "tgcord-endpoint-encryption-v1"
	EncryptionEnabledEnv = "TGCORD_ENABLE_ENCRYPTION"
	EncryptionSecretEnv  = "TGCORD_ENCRYPTION_SECRET"
)
