package staging

import "github.com/goliatone/go-staging/internal/runtimeconfig"

var (
	ErrStorageProviderUnknown            = runtimeconfig.ErrStorageProviderUnknown
	ErrAdvancedCacheRequiresEnabledCache = runtimeconfig.ErrAdvancedCacheRequiresEnabledCache
	ErrCommandsCronRequiresCommands      = runtimeconfig.ErrCommandsCronRequiresCommands
	ErrLoggingProviderRequired           = runtimeconfig.ErrLoggingProviderRequired
	ErrLoggingProviderUnknown            = runtimeconfig.ErrLoggingProviderUnknown
	ErrLoggingLevelInvalid               = runtimeconfig.ErrLoggingLevelInvalid
	ErrLoggingFormatInvalid              = runtimeconfig.ErrLoggingFormatInvalid
	ErrAuditRetentionInvalid             = runtimeconfig.ErrAuditRetentionInvalid
)

type (
	Config          = runtimeconfig.Config
	StorageConfig   = runtimeconfig.StorageConfig
	CacheConfig     = runtimeconfig.CacheConfig
	RetentionConfig = runtimeconfig.RetentionConfig
	Features        = runtimeconfig.Features
	CommandsConfig  = runtimeconfig.CommandsConfig
	LoggingConfig   = runtimeconfig.LoggingConfig
)

func DefaultConfig() Config {
	return runtimeconfig.DefaultConfig()
}
