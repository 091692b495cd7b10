package logging

import (
	"context"

	"github.com/goliatone/go-staging/pkg/interfaces"
)

const (
	rootModule      = "staging"
	ledgerModule    = "staging.ledger"
	releasesModule  = "staging.releases"
	resolverModule  = "staging.resolver"
	diffModule      = "staging.diff"
	conflictsModule = "staging.conflicts"
)

// ModuleLogger returns a module-scoped logger, defaulting to a no-op
// implementation when no provider is supplied. The returned logger attaches
// the module identifier as structured context so downstream entries can be
// filtered predictably.
func ModuleLogger(provider interfaces.LoggerProvider, module string) interfaces.Logger {
	if module == "" {
		module = rootModule
	}

	logger := NoOp()
	if provider != nil {
		if provided := provider.GetLogger(module); provided != nil {
			logger = provided
		}
	}

	if fieldsLogger, ok := logger.(interfaces.FieldsLogger); ok {
		return fieldsLogger.WithFields(map[string]any{
			"module": module,
		})
	}

	return WithFields(logger, map[string]any{
		"module": module,
	})
}

// LedgerLogger returns the logger namespace reserved for the version ledger.
func LedgerLogger(provider interfaces.LoggerProvider) interfaces.Logger {
	return ModuleLogger(provider, ledgerModule)
}

// ReleasesLogger returns the logger namespace reserved for release lifecycle services.
func ReleasesLogger(provider interfaces.LoggerProvider) interfaces.Logger {
	return ModuleLogger(provider, releasesModule)
}

// ResolverLogger returns the logger namespace reserved for canonical resolution.
func ResolverLogger(provider interfaces.LoggerProvider) interfaces.Logger {
	return ModuleLogger(provider, resolverModule)
}

// DiffLogger returns the logger namespace reserved for the diff engine.
func DiffLogger(provider interfaces.LoggerProvider) interfaces.Logger {
	return ModuleLogger(provider, diffModule)
}

// ConflictsLogger returns the logger namespace reserved for conflict detection.
func ConflictsLogger(provider interfaces.LoggerProvider) interfaces.Logger {
	return ModuleLogger(provider, conflictsModule)
}

// NoOp returns a logger that drops every log entry. It satisfies the Logger
// contract so services can safely operate when logging is disabled.
func NoOp() interfaces.Logger {
	return noopLogger{}
}

type noopLogger struct{}

var _ interfaces.Logger = noopLogger{}

func (noopLogger) Trace(string, ...any) {}
func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
func (noopLogger) Fatal(string, ...any) {}

func (n noopLogger) WithFields(map[string]any) interfaces.Logger {
	return n
}

func (n noopLogger) WithContext(context.Context) interfaces.Logger {
	return n
}
