package staging_test

import (
	"context"
	"errors"
	"testing"
	"time"

	staging "github.com/goliatone/go-staging"
	"github.com/goliatone/go-staging/internal/di"
	"github.com/goliatone/go-staging/internal/ledger"
	"github.com/goliatone/go-staging/internal/releases"
	"github.com/goliatone/go-staging/pkg/testsupport"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

func bunModule(t *testing.T, name string) (*staging.Module, *bun.DB) {
	t.Helper()

	bunDB, err := testsupport.NewBunSQLiteDB(name)
	if err != nil {
		t.Fatalf("new sqlite db: %v", err)
	}
	t.Cleanup(func() { _ = bunDB.Close() })

	if err := staging.RunMigrations(context.Background(), bunDB); err != nil {
		t.Fatalf("run migrations: %v", err)
	}

	cfg := staging.DefaultConfig()
	cfg.Cache.Enabled = true
	cfg.Cache.DefaultTTL = 50 * time.Millisecond

	module, err := staging.New(cfg, di.WithBunDB(bunDB))
	if err != nil {
		t.Fatalf("new module: %v", err)
	}
	return module, bunDB
}

func TestModuleReleaseLifecycleWithBunStorage(t *testing.T) {
	ctx := context.Background()
	module, _ := bunModule(t, "staging_lifecycle")
	actor := uuid.New()

	release, err := module.Releases().CreateRelease(ctx, releases.CreateReleaseInput{
		Name:      "autumn-launch",
		CreatedBy: actor,
	})
	if err != nil {
		t.Fatalf("create release: %v", err)
	}

	version, err := module.Ledger().WriteVersion(ctx, ledger.WriteVersionInput{
		EntityType: "page",
		Key:        "pricing",
		ReleaseID:  release.ID,
		Payload:    map[string]any{"title": "Pricing", "tier": "standard"},
		ActorID:    actor,
	})
	if err != nil {
		t.Fatalf("write version: %v", err)
	}

	// Repeat writes reuse the row instead of appending.
	repeat, err := module.Ledger().WriteVersion(ctx, ledger.WriteVersionInput{
		EntityType: "page",
		Key:        "pricing",
		ReleaseID:  release.ID,
		Payload:    map[string]any{"title": "Pricing", "tier": "premium"},
		ActorID:    actor,
	})
	if err != nil {
		t.Fatalf("repeat write: %v", err)
	}
	if repeat.ID != version.ID {
		t.Fatalf("expected upsert to reuse row %s, got %s", version.ID, repeat.ID)
	}

	if _, err := module.Releases().CloseRelease(ctx, releases.CloseReleaseInput{ReleaseID: release.ID, ClosedBy: actor}); err != nil {
		t.Fatalf("close release: %v", err)
	}

	// The store re-checks the release inside the write transaction.
	_, err = module.Ledger().WriteVersion(ctx, ledger.WriteVersionInput{
		EntityType: "page",
		Key:        "pricing",
		ReleaseID:  release.ID,
		Payload:    map[string]any{"title": "Pricing", "tier": "late"},
		ActorID:    actor,
	})
	if !errors.Is(err, releases.ErrReleaseNotEditable) {
		t.Fatalf("expected ErrReleaseNotEditable, got %v", err)
	}

	deployed, err := module.Releases().DeployRelease(ctx, releases.DeployReleaseInput{ReleaseID: release.ID, DeployedBy: actor})
	if err != nil {
		t.Fatalf("deploy release: %v", err)
	}
	if deployed.DeploySeq == nil || *deployed.DeploySeq != 1 {
		t.Fatalf("expected deploy seq 1, got %v", deployed.DeploySeq)
	}

	production, err := module.Resolver().ResolveProduction(ctx)
	if err != nil {
		t.Fatalf("resolve production: %v", err)
	}
	resolved, ok := production.Versions[version.EntityID]
	if !ok {
		t.Fatal("expected deployed entity in production state")
	}
	if got := resolved.Payload["tier"]; got != "premium" {
		t.Fatalf("expected repeat write to win, got %v", got)
	}

	active, err := module.Releases().ActiveRelease(ctx)
	if err != nil {
		t.Fatalf("active release: %v", err)
	}
	if active.ID != release.ID {
		t.Fatalf("expected active release %s, got %s", release.ID, active.ID)
	}
}

func TestMigrationTriggersGuardDirectWrites(t *testing.T) {
	ctx := context.Background()
	module, bunDB := bunModule(t, "staging_triggers")
	actor := uuid.New()

	release, err := module.Releases().CreateRelease(ctx, releases.CreateReleaseInput{Name: "guarded", CreatedBy: actor})
	if err != nil {
		t.Fatalf("create release: %v", err)
	}
	version, err := module.Ledger().WriteVersion(ctx, ledger.WriteVersionInput{
		EntityType: "page",
		Key:        "home",
		ReleaseID:  release.ID,
		Payload:    map[string]any{"title": "Home"},
		ActorID:    actor,
	})
	if err != nil {
		t.Fatalf("write version: %v", err)
	}
	if _, err := module.Releases().CloseRelease(ctx, releases.CloseReleaseInput{ReleaseID: release.ID, ClosedBy: actor}); err != nil {
		t.Fatalf("close release: %v", err)
	}

	// Bypassing the store does not bypass the guard: the trigger rejects
	// updates to version rows of a non-open release.
	_, err = bunDB.NewUpdate().
		Model((*ledger.EntityVersion)(nil)).
		Set("status = ?", "published").
		Where("id = ?", version.ID).
		Exec(ctx)
	if err == nil {
		t.Fatal("expected trigger to reject direct update of closed release row")
	}

	var status string
	if err := bunDB.NewSelect().
		Model((*ledger.EntityVersion)(nil)).
		Column("status").
		Where("id = ?", version.ID).
		Scan(ctx, &status); err != nil {
		t.Fatalf("read status: %v", err)
	}
	if status != ledger.StatusDraft {
		t.Fatalf("expected status untouched, got %q", status)
	}
}
