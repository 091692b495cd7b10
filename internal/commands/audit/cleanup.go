package auditcmd

import (
	"context"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	command "github.com/goliatone/go-command"
	"github.com/goliatone/go-staging/internal/commands"
	"github.com/goliatone/go-staging/internal/ledger"
	"github.com/goliatone/go-staging/internal/logging"
	"github.com/goliatone/go-staging/pkg/interfaces"
)

const cleanupAuditMessageType = "staging.audit.cleanup"

// DefaultRetentionDays is the audit retention window applied when the command omits one.
const DefaultRetentionDays = 90

// AuditCleaner extends AuditLog with retention enforcement.
type AuditCleaner interface {
	AuditLog
	PurgeAuditEvents(ctx context.Context, olderThan time.Time) (int64, error)
}

// CleanupAuditCommand purges audit events older than the retention window. When
// DryRun is true only the candidate count is reported.
type CleanupAuditCommand struct {
	RetentionDays int  `json:"retention_days,omitempty"`
	DryRun        bool `json:"dry_run,omitempty"`
}

// Type implements command.Message.
func (CleanupAuditCommand) Type() string { return cleanupAuditMessageType }

// Validate satisfies command.Message.
func (m CleanupAuditCommand) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.RetentionDays, validation.Min(0)),
	)
}

type cleanupHandlerConfig struct {
	cronConfig    command.HandlerConfig
	timeout       time.Duration
	now           func() time.Time
	retentionDays int
}

// CleanupHandlerOption customises the cleanup handler.
type CleanupHandlerOption func(*cleanupHandlerConfig)

// CleanupWithCronConfig overrides the cron registration options for the cleanup handler.
func CleanupWithCronConfig(config command.HandlerConfig) CleanupHandlerOption {
	return func(cfg *cleanupHandlerConfig) {
		cfg.cronConfig = config
	}
}

// CleanupWithCronExpression overrides the cron expression for the cleanup handler.
func CleanupWithCronExpression(expression string) CleanupHandlerOption {
	return func(cfg *cleanupHandlerConfig) {
		if trimmed := strings.TrimSpace(expression); trimmed != "" {
			cfg.cronConfig.Expression = trimmed
		}
	}
}

// CleanupWithTimeout overrides the default execution timeout.
func CleanupWithTimeout(timeout time.Duration) CleanupHandlerOption {
	return func(cfg *cleanupHandlerConfig) {
		cfg.timeout = timeout
	}
}

// CleanupWithRetentionDays overrides the retention window applied when the
// command message omits one. Non-positive values keep the built-in default.
func CleanupWithRetentionDays(days int) CleanupHandlerOption {
	return func(cfg *cleanupHandlerConfig) {
		if days > 0 {
			cfg.retentionDays = days
		}
	}
}

// CleanupWithNow overrides the clock used to compute the retention cutoff.
func CleanupWithNow(now func() time.Time) CleanupHandlerOption {
	return func(cfg *cleanupHandlerConfig) {
		if now != nil {
			cfg.now = now
		}
	}
}

// CleanupAuditHandler purges stale audit events via the supplied cleaner implementation.
type CleanupAuditHandler struct {
	cleaner       AuditCleaner
	logger        interfaces.Logger
	cronConfig    command.HandlerConfig
	timeout       time.Duration
	now           func() time.Time
	retentionDays int
}

// NewCleanupAuditHandler constructs a handler that delegates to the provided cleaner instance.
func NewCleanupAuditHandler(cleaner AuditCleaner, logger interfaces.Logger, opts ...CleanupHandlerOption) *CleanupAuditHandler {
	cfg := cleanupHandlerConfig{
		cronConfig: command.HandlerConfig{
			Expression: "@daily",
		},
		timeout:       commands.DefaultCommandTimeout,
		now:           time.Now,
		retentionDays: DefaultRetentionDays,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	return &CleanupAuditHandler{
		cleaner:       cleaner,
		logger:        commands.EnsureLogger(logger),
		cronConfig:    cfg.cronConfig,
		timeout:       cfg.timeout,
		now:           cfg.now,
		retentionDays: cfg.retentionDays,
	}
}

// Execute satisfies command.Commander[CleanupAuditCommand].
func (h *CleanupAuditHandler) Execute(ctx context.Context, msg CleanupAuditCommand) error {
	if err := commands.WrapValidationError(command.ValidateMessage(msg)); err != nil {
		return err
	}
	ctx = commands.EnsureContext(ctx)
	ctx, cancel := commands.WithCommandTimeout(ctx, h.timeout)
	defer cancel()

	if err := ctx.Err(); err != nil {
		return commands.WrapContextError(err)
	}

	retention := msg.RetentionDays
	if retention == 0 {
		retention = h.retentionDays
	}
	cutoff := h.now().AddDate(0, 0, -retention)

	logger := logging.WithFields(h.logger, map[string]any{
		"operation":      "audit.cleanup",
		"retention_days": retention,
	})

	if msg.DryRun {
		events, err := h.cleaner.ListAuditEvents(ctx, ledger.AuditFilter{Until: &cutoff})
		if err != nil {
			return commands.WrapExecuteError(err)
		}
		logging.WithFields(logger, map[string]any{
			"dry_run":    true,
			"candidates": len(events),
		}).Debug("audit.command.cleanup.dry_run")
		return nil
	}

	purged, err := h.cleaner.PurgeAuditEvents(ctx, cutoff)
	if err != nil {
		return commands.WrapExecuteError(err)
	}

	logging.WithFields(logger, map[string]any{
		"removed": purged,
	}).Debug("audit.command.cleanup.removed")
	return nil
}

// CronHandler satisfies command.CronCommand by binding cleanup execution to a cron runner.
func (h *CleanupAuditHandler) CronHandler() func() error {
	return func() error {
		return h.Execute(context.Background(), CleanupAuditCommand{})
	}
}

// CronOptions satisfies command.CronCommand by returning the configured cron metadata.
func (h *CleanupAuditHandler) CronOptions() command.HandlerConfig {
	return h.cronConfig
}

// CLIHandler exposes the cleanup handler to CLI integrations.
func (h *CleanupAuditHandler) CLIHandler() any {
	return h
}

// CLIOptions describes the CLI metadata for audit cleanup.
func (h *CleanupAuditHandler) CLIOptions() command.CLIConfig {
	return command.CLIConfig{
		Path:        []string{"audit", "cleanup"},
		Group:       "audit",
		Description: "Purge audit events beyond the retention window; supports dry-run",
	}
}
