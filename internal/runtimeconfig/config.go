package runtimeconfig

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrStorageProviderUnknown indicates an unsupported storage provider identifier.
var ErrStorageProviderUnknown = errors.New("staging config: storage provider is invalid")

// ErrAdvancedCacheRequiresEnabledCache ensures advanced cache builds only when cache is enabled.
var ErrAdvancedCacheRequiresEnabledCache = errors.New("staging config: advanced cache feature requires cache to be enabled")

// ErrCommandsCronRequiresCommands ensures cron wiring only runs when the command layer is enabled.
var ErrCommandsCronRequiresCommands = errors.New("staging config: command cron auto-registration requires commands to be enabled")

var ErrLoggingProviderRequired = errors.New("staging config: logging provider is required when logging feature is enabled")
var ErrLoggingProviderUnknown = errors.New("staging config: logging provider is invalid")
var ErrLoggingLevelInvalid = errors.New("staging config: logging level is invalid")
var ErrLoggingFormatInvalid = errors.New("staging config: logging format is invalid")
var ErrAuditRetentionInvalid = errors.New("staging config: audit retention must be zero or positive")

// Config aggregates feature flags and adapter bindings for the staging module.
// Fields intentionally use simple types so host applications can extend them later.
type Config struct {
	Enabled   bool
	Storage   StorageConfig
	Cache     CacheConfig
	Retention RetentionConfig
	Features  Features
	Commands  CommandsConfig
	Logging   LoggingConfig
}

// StorageConfig lists identifiers for storage-related dependencies.
type StorageConfig struct {
	Provider string
}

// CacheConfig captures cache behaviour toggles.
type CacheConfig struct {
	Enabled    bool
	DefaultTTL time.Duration
}

// RetentionConfig captures audit retention limits. Zero keeps events forever.
type RetentionConfig struct {
	// AuditEvents is the retention window, in days, the cleanup command
	// applies when a message does not carry its own.
	AuditEvents int
}

// Features toggles module functionality.
type Features struct {
	ConflictDetection bool
	Audit             bool
	AdvancedCache     bool
	Logger            bool
}

// CommandsConfig captures optional command-layer behaviour.
type CommandsConfig struct {
	Enabled          bool
	AutoRegisterCron bool
	CleanupAuditCron string
}

// LoggingConfig captures provider-specific options for runtime logging.
type LoggingConfig struct {
	Provider  string
	Level     string
	Format    string
	AddSource bool
	Focus     []string
}

// DefaultConfig returns opinionated defaults for library consumers.
func DefaultConfig() Config {
	return Config{
		Enabled: true,
		Storage: StorageConfig{
			Provider: "bun",
		},
		Cache: CacheConfig{
			Enabled:    true,
			DefaultTTL: time.Minute,
		},
		Retention: RetentionConfig{},
		Features: Features{
			ConflictDetection: true,
			Audit:             true,
		},
		Commands: CommandsConfig{},
		Logging: LoggingConfig{
			Provider: "console",
			Level:    "info",
			Format:   "",
		},
	}
}

// Validate performs high-level consistency checks.
func (cfg Config) Validate() error {
	if provider := normalizeProvider(cfg.Storage.Provider); provider != "" && !isSupportedStorage(provider) {
		return fmt.Errorf("%w: %s", ErrStorageProviderUnknown, provider)
	}
	if cfg.Features.AdvancedCache && !cfg.Cache.Enabled {
		return ErrAdvancedCacheRequiresEnabledCache
	}
	if cfg.Commands.AutoRegisterCron && !cfg.Commands.Enabled {
		return ErrCommandsCronRequiresCommands
	}
	if cfg.Retention.AuditEvents < 0 {
		return ErrAuditRetentionInvalid
	}
	if cfg.Features.Logger {
		provider := normalizeProvider(cfg.Logging.Provider)
		if provider == "" {
			return ErrLoggingProviderRequired
		}
		if !isSupportedProvider(provider) {
			return fmt.Errorf("%w: %s", ErrLoggingProviderUnknown, provider)
		}
		if level := strings.TrimSpace(cfg.Logging.Level); level != "" && !isSupportedLevel(level) {
			return fmt.Errorf("%w: %s", ErrLoggingLevelInvalid, level)
		}
		if provider == "gologger" {
			if format := strings.TrimSpace(cfg.Logging.Format); format != "" && !isSupportedFormat(format) {
				return fmt.Errorf("%w: %s", ErrLoggingFormatInvalid, format)
			}
		}
	}
	return nil
}

func normalizeProvider(provider string) string {
	return strings.ToLower(strings.TrimSpace(provider))
}

func isSupportedStorage(provider string) bool {
	switch provider {
	case "memory", "bun":
		return true
	default:
		return false
	}
}

func isSupportedProvider(provider string) bool {
	switch provider {
	case "console", "gologger":
		return true
	default:
		return false
	}
}

func isSupportedLevel(level string) bool {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace", "debug", "info", "warn", "warning", "error", "fatal":
		return true
	default:
		return false
	}
}

func isSupportedFormat(format string) bool {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "json", "console", "pretty":
		return true
	default:
		return false
	}
}
