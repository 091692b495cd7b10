package staging

import (
	"context"
	"embed"
	"fmt"
	"sort"

	"github.com/uptrace/bun"
)

//go:embed data/sql/migrations/*.sql
var migrationsFS embed.FS

// GetMigrationsFS returns the embedded migration files for this package.
func GetMigrationsFS() embed.FS {
	return migrationsFS
}

// RunMigrations applies the embedded schema migrations in lexical order.
// Statements are idempotent, so re-running against an existing database is safe.
func RunMigrations(ctx context.Context, db *bun.DB) error {
	entries, err := migrationsFS.ReadDir("data/sql/migrations")
	if err != nil {
		return fmt.Errorf("staging: read migrations: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		contents, err := migrationsFS.ReadFile("data/sql/migrations/" + name)
		if err != nil {
			return fmt.Errorf("staging: read migration %s: %w", name, err)
		}
		if _, err := db.ExecContext(ctx, string(contents)); err != nil {
			return fmt.Errorf("staging: apply migration %s: %w", name, err)
		}
	}
	return nil
}
