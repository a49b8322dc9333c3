package constants

// Routing configuration
const (
	// SessionWindowSec is the provider response window: free-text sends are
	// only permitted within this many seconds of the last inbound message.
	SessionWindowSec = 86400

	// PreferredTemplateName is tried first for template-mode sends before
	// falling back to any approved template of FallbackTemplateCategory.
	PreferredTemplateName    = "sale"
	FallbackTemplateCategory = "utility"
)

// Default timeout values
const (
	DefaultSendTimeoutSec        = 10
	DefaultUploadTimeoutSec      = 30
	DefaultGracefulShutdownSec   = 30
	DefaultServerReadTimeoutSec  = 15
	DefaultServerWriteTimeoutSec = 15
	DefaultServerIdleTimeoutSec  = 60
)

// Default retry configuration values
const (
	DefaultRetryBackoffMs         = 1000
	DefaultMaxBackoffMs           = 60000
	DefaultMaxAttempts            = 5
	DefaultRetryWorkerIntervalSec = 60
	DefaultDatabaseRetryAttempts  = 3
	DefaultRetryBatchSize         = 25
)

// Pagination defaults
const (
	DefaultConversationPageSize = 20
	DefaultMessagePageSize      = 50
	MaxPageSize                 = 200
)

// Server defaults
const (
	DefaultServerPort      = 8082
	ServerErrorChannelSize = 1
)

// Validation limits
const (
	MinPhoneNumberLength = 6
	MaxPhoneNumberLength = 20
	MaxMessageBodyLength = 65536
)

// Encryption settings
const (
	EncryptionSalt       = "wachat-db-salt-v1"
	EncryptionLookupSalt = "wachat-lookup-salt-v1"
)

// Data retention
const (
	DefaultRetentionDays = 30
)
