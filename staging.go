package staging

import (
	"github.com/goliatone/go-staging/internal/di"
	"github.com/goliatone/go-staging/internal/diff"
	"github.com/goliatone/go-staging/internal/ledger"
	"github.com/goliatone/go-staging/internal/releases"
	"github.com/goliatone/go-staging/internal/resolver"
	"github.com/goliatone/go-staging/pkg/interfaces"
)

// LedgerService exports the entity ledger contract for consumers of the staging package.
type LedgerService = ledger.Service

// ReleaseService exports the release lifecycle contract.
type ReleaseService = releases.Service

// ResolverService exports the canonical state resolver contract.
type ResolverService = resolver.Service

// DiffService exports the release diff contract.
type DiffService = diff.Service

// Resolution exports the resolver output type.
type Resolution = resolver.Resolution

// Module represents the top level staging runtime façade.
type Module struct {
	container *di.Container
}

// New constructs a staging module using the provided configuration and optional DI overrides.
func New(cfg Config, opts ...di.Option) (*Module, error) {
	container, err := di.NewContainer(cfg, opts...)
	if err != nil {
		return nil, err
	}
	return &Module{container: container}, nil
}

// Container exposes the underlying DI container for advanced integrations.
func (m *Module) Container() *di.Container {
	return m.container
}

// Ledger returns the configured entity ledger service.
func (m *Module) Ledger() LedgerService {
	return m.container.LedgerService()
}

// Releases returns the configured release service.
func (m *Module) Releases() ReleaseService {
	return m.container.ReleaseService()
}

// Resolver returns the configured canonical state resolver.
func (m *Module) Resolver() ResolverService {
	return m.container.ResolverService()
}

// Diff returns the configured release diff service.
func (m *Module) Diff() DiffService {
	return m.container.DiffService()
}

// LoggerProvider exposes the logger provider backing module services.
func (m *Module) LoggerProvider() interfaces.LoggerProvider {
	if m == nil || m.container == nil {
		return nil
	}
	return m.container.LoggerProvider()
}

// RegisterSchema binds a JSON schema to an entity type. Writes for that type
// are validated against it before reaching the store.
func (m *Module) RegisterSchema(entityType string, schema map[string]any) error {
	return m.container.SchemaRegistry().Register(entityType, schema)
}

// UnregisterSchema removes the schema bound to an entity type.
func (m *Module) UnregisterSchema(entityType string) {
	m.container.SchemaRegistry().Unregister(entityType)
}
