package di

import (
	"context"
	"strings"
	"time"

	repocache "github.com/goliatone/go-repository-cache/cache"
	"github.com/goliatone/go-staging/internal/commands"
	auditcmd "github.com/goliatone/go-staging/internal/commands/audit"
	releasescmd "github.com/goliatone/go-staging/internal/commands/releases"
	"github.com/goliatone/go-staging/internal/conflicts"
	"github.com/goliatone/go-staging/internal/diff"
	"github.com/goliatone/go-staging/internal/ledger"
	"github.com/goliatone/go-staging/internal/logging"
	"github.com/goliatone/go-staging/internal/logging/console"
	"github.com/goliatone/go-staging/internal/logging/gologger"
	"github.com/goliatone/go-staging/internal/releases"
	"github.com/goliatone/go-staging/internal/resolver"
	"github.com/goliatone/go-staging/internal/runtimeconfig"
	"github.com/goliatone/go-staging/internal/validation"
	"github.com/goliatone/go-staging/pkg/interfaces"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Container wires module dependencies. Memory-backed repositories are the
// default; supplying a bun.DB switches storage to the SQL implementations.
type Container struct {
	Config runtimeconfig.Config

	bunDB         *bun.DB
	cacheTTL      time.Duration
	cacheService  repocache.CacheService
	keySerializer repocache.KeySerializer

	loggerProvider interfaces.LoggerProvider

	releaseRepo releases.Repository
	store       ledger.Store

	schemaRegistry *validation.SchemaRegistry
	detector       releases.ConflictDetector

	releaseSvc  releases.Service
	ledgerSvc   ledger.Service
	resolverSvc resolver.Service
	diffSvc     diff.Service

	closeHandler    *releasescmd.CloseReleaseHandler
	deployHandler   *releasescmd.DeployReleaseHandler
	rollbackHandler *releasescmd.RollbackReleaseHandler
	auditExport     *auditcmd.ExportAuditHandler
	auditCleanup    *auditcmd.CleanupAuditHandler
}

// Option mutates the container before it is finalised.
type Option func(*Container)

// WithBunDB switches storage to the bun-backed implementations.
func WithBunDB(db *bun.DB) Option {
	return func(c *Container) {
		c.bunDB = db
	}
}

// WithCache overrides the default cache service and key serializer.
func WithCache(service repocache.CacheService, serializer repocache.KeySerializer) Option {
	return func(c *Container) {
		c.cacheService = service
		c.keySerializer = serializer
	}
}

// WithLoggerProvider overrides the logger provider derived from configuration.
func WithLoggerProvider(provider interfaces.LoggerProvider) Option {
	return func(c *Container) {
		c.loggerProvider = provider
	}
}

// WithReleaseRepository overrides the default release repository binding.
func WithReleaseRepository(repo releases.Repository) Option {
	return func(c *Container) {
		c.releaseRepo = repo
	}
}

// WithStore overrides the default ledger store binding.
func WithStore(store ledger.Store) Option {
	return func(c *Container) {
		c.store = store
	}
}

// WithSchemaRegistry overrides the payload schema registry.
func WithSchemaRegistry(registry *validation.SchemaRegistry) Option {
	return func(c *Container) {
		c.schemaRegistry = registry
	}
}

// WithConflictDetector overrides the detector consulted when releases close.
func WithConflictDetector(detector releases.ConflictDetector) Option {
	return func(c *Container) {
		c.detector = detector
	}
}

// WithReleaseService overrides the default release service binding.
func WithReleaseService(svc releases.Service) Option {
	return func(c *Container) {
		c.releaseSvc = svc
	}
}

// WithLedgerService overrides the default ledger service binding.
func WithLedgerService(svc ledger.Service) Option {
	return func(c *Container) {
		c.ledgerSvc = svc
	}
}

// WithResolverService overrides the default resolver binding.
func WithResolverService(svc resolver.Service) Option {
	return func(c *Container) {
		c.resolverSvc = svc
	}
}

// WithDiffService overrides the default diff service binding.
func WithDiffService(svc diff.Service) Option {
	return func(c *Container) {
		c.diffSvc = svc
	}
}

// NewContainer creates a container with the provided configuration.
func NewContainer(cfg runtimeconfig.Config, opts ...Option) (*Container, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	cacheTTL := cfg.Cache.DefaultTTL
	if cacheTTL <= 0 {
		cacheTTL = time.Minute
	}

	c := &Container{
		Config:   cfg,
		cacheTTL: cacheTTL,
	}

	for _, opt := range opts {
		opt(c)
	}

	if err := c.configureLogging(); err != nil {
		return nil, err
	}
	c.configureCacheDefaults()
	c.configureStorage()
	c.configureServices()
	c.configureCommands()

	return c, nil
}

func (c *Container) configureLogging() error {
	if c.loggerProvider != nil || !c.Config.Features.Logger {
		return nil
	}

	switch strings.ToLower(strings.TrimSpace(c.Config.Logging.Provider)) {
	case "gologger":
		provider, err := gologger.NewProvider(gologger.Config{
			Level:     c.Config.Logging.Level,
			Format:    c.Config.Logging.Format,
			AddSource: c.Config.Logging.AddSource,
			Focus:     c.Config.Logging.Focus,
		})
		if err != nil {
			return err
		}
		c.loggerProvider = provider
	default:
		options := console.Options{}
		if level, ok := consoleLevel(c.Config.Logging.Level); ok {
			options.MinLevel = &level
		}
		c.loggerProvider = console.NewProvider(options)
	}
	return nil
}

func (c *Container) configureCacheDefaults() {
	if !c.Config.Cache.Enabled {
		return
	}

	if c.cacheService == nil {
		cfg := repocache.DefaultConfig()
		if c.cacheTTL > 0 {
			cfg.TTL = c.cacheTTL
		}
		service, err := repocache.NewCacheService(cfg)
		if err == nil {
			c.cacheService = service
		}
	}

	if c.cacheService != nil && c.keySerializer == nil {
		c.keySerializer = repocache.NewDefaultKeySerializer()
	}
}

func (c *Container) configureStorage() {
	if c.releaseRepo == nil {
		if c.bunDB != nil {
			c.releaseRepo = releases.NewBunRepositoryWithCache(c.bunDB, c.cacheService, c.keySerializer)
		} else {
			c.releaseRepo = releases.NewMemoryRepository()
		}
	}

	if c.store == nil {
		if c.bunDB != nil {
			c.store = ledger.NewBunStoreWithCache(c.bunDB, c.cacheService, c.keySerializer)
		} else {
			c.store = ledger.NewMemoryStore(ledger.WithReleaseGate(releaseGate(c.releaseRepo)))
		}
	}

	if c.schemaRegistry == nil {
		c.schemaRegistry = validation.NewSchemaRegistry()
	}
}

func (c *Container) configureServices() {
	if c.detector == nil && c.Config.Features.ConflictDetection {
		c.detector = conflicts.NewDetector(c.releaseRepo, c.store,
			conflicts.WithLogger(logging.ModuleLogger(c.loggerProvider, "staging.conflicts")))
	}

	if c.releaseSvc == nil {
		releaseOpts := []releases.ServiceOption{
			releases.WithLogger(logging.ModuleLogger(c.loggerProvider, "staging.releases")),
		}
		if c.detector != nil {
			releaseOpts = append(releaseOpts, releases.WithConflictDetector(c.detector))
		}
		c.releaseSvc = releases.NewService(c.releaseRepo, releaseOpts...)
	}

	if c.ledgerSvc == nil {
		c.ledgerSvc = ledger.NewService(c.store,
			ledger.WithLogger(logging.ModuleLogger(c.loggerProvider, "staging.ledger")),
			ledger.WithPayloadValidator(c.schemaRegistry),
		)
	}

	if c.resolverSvc == nil {
		c.resolverSvc = resolver.NewService(c.releaseRepo, c.store,
			resolver.WithLogger(logging.ModuleLogger(c.loggerProvider, "staging.resolver")))
	}

	if c.diffSvc == nil {
		c.diffSvc = diff.NewService(c.resolverSvc,
			diff.WithLogger(logging.ModuleLogger(c.loggerProvider, "staging.diff")))
	}
}

func (c *Container) configureCommands() {
	if !c.Config.Commands.Enabled {
		return
	}

	releaseLogger := commands.CommandLogger(c.loggerProvider, "releases")
	c.closeHandler = releasescmd.NewCloseReleaseHandler(c.releaseSvc, releaseLogger)
	c.deployHandler = releasescmd.NewDeployReleaseHandler(c.releaseSvc, releaseLogger)
	c.rollbackHandler = releasescmd.NewRollbackReleaseHandler(c.releaseSvc, releaseLogger)

	if !c.Config.Features.Audit {
		return
	}

	auditLogger := commands.CommandLogger(c.loggerProvider, "audit")
	c.auditExport = auditcmd.NewExportAuditHandler(c.ledgerSvc, auditLogger)

	cleanupOpts := []auditcmd.CleanupHandlerOption{}
	if expr := strings.TrimSpace(c.Config.Commands.CleanupAuditCron); expr != "" {
		cleanupOpts = append(cleanupOpts, auditcmd.CleanupWithCronExpression(expr))
	}
	if days := c.Config.Retention.AuditEvents; days > 0 {
		cleanupOpts = append(cleanupOpts, auditcmd.CleanupWithRetentionDays(days))
	}
	c.auditCleanup = auditcmd.NewCleanupAuditHandler(c.ledgerSvc, auditLogger, cleanupOpts...)
}

// releaseGate adapts the release repository into the write gate the memory
// store checks before accepting a version write.
func releaseGate(repo releases.Repository) ledger.ReleaseGate {
	return ledger.ReleaseGateFunc(func(ctx context.Context, releaseID uuid.UUID) (releases.Status, error) {
		release, err := repo.GetByID(ctx, releaseID)
		if err != nil {
			return "", err
		}
		return release.Status, nil
	})
}

// LoggerProvider exposes the configured logger provider.
func (c *Container) LoggerProvider() interfaces.LoggerProvider {
	return c.loggerProvider
}

// ReleaseRepository exposes the configured release repository.
func (c *Container) ReleaseRepository() releases.Repository {
	return c.releaseRepo
}

// Store exposes the configured ledger store.
func (c *Container) Store() ledger.Store {
	return c.store
}

// SchemaRegistry exposes the payload schema registry.
func (c *Container) SchemaRegistry() *validation.SchemaRegistry {
	return c.schemaRegistry
}

// ConflictDetector exposes the configured detector, nil when detection is disabled.
func (c *Container) ConflictDetector() releases.ConflictDetector {
	return c.detector
}

// ReleaseService returns the configured release service.
func (c *Container) ReleaseService() releases.Service {
	return c.releaseSvc
}

// LedgerService returns the configured ledger service.
func (c *Container) LedgerService() ledger.Service {
	return c.ledgerSvc
}

// ResolverService returns the configured resolver service.
func (c *Container) ResolverService() resolver.Service {
	return c.resolverSvc
}

// DiffService returns the configured diff service.
func (c *Container) DiffService() diff.Service {
	return c.diffSvc
}

// CloseReleaseHandler returns the close command handler, nil when commands are disabled.
func (c *Container) CloseReleaseHandler() *releasescmd.CloseReleaseHandler {
	return c.closeHandler
}

// DeployReleaseHandler returns the deploy command handler, nil when commands are disabled.
func (c *Container) DeployReleaseHandler() *releasescmd.DeployReleaseHandler {
	return c.deployHandler
}

// RollbackReleaseHandler returns the rollback command handler, nil when commands are disabled.
func (c *Container) RollbackReleaseHandler() *releasescmd.RollbackReleaseHandler {
	return c.rollbackHandler
}

// ExportAuditHandler returns the audit export command handler, nil when commands are disabled.
func (c *Container) ExportAuditHandler() *auditcmd.ExportAuditHandler {
	return c.auditExport
}

// CleanupAuditHandler returns the audit cleanup command handler, nil when commands are disabled.
func (c *Container) CleanupAuditHandler() *auditcmd.CleanupAuditHandler {
	return c.auditCleanup
}

func consoleLevel(level string) (console.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return console.LevelTrace, true
	case "debug":
		return console.LevelDebug, true
	case "info":
		return console.LevelInfo, true
	case "warn", "warning":
		return console.LevelWarn, true
	case "error":
		return console.LevelError, true
	case "fatal":
		return console.LevelFatal, true
	default:
		return console.LevelInfo, false
	}
}
