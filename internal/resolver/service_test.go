package resolver

import (
	"context"
	"testing"
	"time"

	"github.com/goliatone/go-staging/internal/ledger"
	"github.com/goliatone/go-staging/internal/releases"
	releasespub "github.com/goliatone/go-staging/releases"
	"github.com/google/uuid"
)

type harness struct {
	releases releases.Service
	ledger   ledger.Service
	resolver Service
	actor    uuid.UUID
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	base := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)
	step := 0
	now := func() time.Time {
		step++
		return base.Add(time.Duration(step) * time.Second)
	}

	releaseRepo := releases.NewMemoryRepository()
	gate := ledger.ReleaseGateFunc(func(ctx context.Context, id uuid.UUID) (releasespub.Status, error) {
		release, err := releaseRepo.GetByID(ctx, id)
		if err != nil {
			return "", err
		}
		return release.Status, nil
	})
	store := ledger.NewMemoryStore(ledger.WithReleaseGate(gate))

	return &harness{
		releases: releases.NewService(releaseRepo, releases.WithNow(now)),
		ledger:   ledger.NewService(store, ledger.WithNow(now)),
		resolver: NewService(releaseRepo, store),
		actor:    uuid.New(),
	}
}

func (h *harness) openRelease(t *testing.T, name string) *releases.Release {
	t.Helper()
	release, err := h.releases.CreateRelease(context.Background(), releases.CreateReleaseInput{Name: name, CreatedBy: h.actor})
	if err != nil {
		t.Fatalf("create release %s: %v", name, err)
	}
	return release
}

func (h *harness) write(t *testing.T, releaseID uuid.UUID, entityType, key string, payload map[string]any) *ledger.EntityVersion {
	t.Helper()
	version, err := h.ledger.WriteVersion(context.Background(), ledger.WriteVersionInput{
		EntityType: entityType,
		Key:        key,
		ReleaseID:  releaseID,
		Payload:    payload,
		ActorID:    h.actor,
	})
	if err != nil {
		t.Fatalf("write %s/%s: %v", entityType, key, err)
	}
	return version
}

func (h *harness) ship(t *testing.T, releaseID uuid.UUID) {
	t.Helper()
	ctx := context.Background()
	if _, err := h.releases.CloseRelease(ctx, releases.CloseReleaseInput{ReleaseID: releaseID, ClosedBy: h.actor}); err != nil {
		t.Fatalf("close release: %v", err)
	}
	if _, err := h.releases.DeployRelease(ctx, releases.DeployReleaseInput{ReleaseID: releaseID, DeployedBy: h.actor}); err != nil {
		t.Fatalf("deploy release: %v", err)
	}
}

func TestResolvePrefersLocalEdit(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	trunk := h.openRelease(t, "trunk")
	trunkVersion := h.write(t, trunk.ID, "page", "home", map[string]any{"v": 1})
	h.ship(t, trunk.ID)

	branch := h.openRelease(t, "branch")
	branchVersion := h.write(t, branch.ID, "page", "home", map[string]any{"v": 2})

	resolution, err := h.resolver.Resolve(ctx, branch.ID)
	if err != nil {
		t.Fatalf("resolve branch: %v", err)
	}
	got, ok := resolution.Versions[branchVersion.EntityID]
	if !ok {
		t.Fatal("expected entity in resolution")
	}
	if got.ID != branchVersion.ID {
		t.Fatalf("expected local version %s to win, got %s", branchVersion.ID, got.ID)
	}

	production, err := h.resolver.ResolveProduction(ctx)
	if err != nil {
		t.Fatalf("resolve production: %v", err)
	}
	if got := production.Versions[trunkVersion.EntityID]; got == nil || got.ID != trunkVersion.ID {
		t.Fatalf("expected production to keep trunk version %s", trunkVersion.ID)
	}
}

func TestResolveWalksDeployHistory(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first := h.openRelease(t, "first")
	older := h.write(t, first.ID, "page", "about", map[string]any{"v": 1})
	h.ship(t, first.ID)

	second := h.openRelease(t, "second")
	h.write(t, second.ID, "page", "pricing", map[string]any{"v": 1})
	h.ship(t, second.ID)

	branch := h.openRelease(t, "branch")
	resolution, err := h.resolver.Resolve(ctx, branch.ID)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(resolution.Versions) != 2 {
		t.Fatalf("expected two entities from the trunk walk, got %d", len(resolution.Versions))
	}
	if got := resolution.Versions[older.EntityID]; got == nil || got.ID != older.ID {
		t.Fatal("expected the walk to fall through to the older deployed release")
	}
}

func TestResolveSkipsRolledBackReleases(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	stable := h.openRelease(t, "stable")
	goodVersion := h.write(t, stable.ID, "page", "home", map[string]any{"v": 1})
	h.ship(t, stable.ID)

	broken := h.openRelease(t, "broken")
	h.write(t, broken.ID, "page", "home", map[string]any{"v": 2})
	h.ship(t, broken.ID)

	if _, err := h.releases.RollbackRelease(ctx, releases.RollbackReleaseInput{TargetReleaseID: stable.ID, RequestedBy: h.actor}); err != nil {
		t.Fatalf("rollback: %v", err)
	}

	production, err := h.resolver.ResolveProduction(ctx)
	if err != nil {
		t.Fatalf("resolve production: %v", err)
	}
	got := production.Versions[goodVersion.EntityID]
	if got == nil || got.ID != goodVersion.ID {
		t.Fatal("expected rolled back release to be excluded from resolution")
	}
}

func TestListVisibleFiltersSoftDeletedEntities(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	trunk := h.openRelease(t, "trunk")
	keep := h.write(t, trunk.ID, "page", "keep", map[string]any{"v": 1})
	drop := h.write(t, trunk.ID, "page", "drop", map[string]any{"v": 1})
	h.ship(t, trunk.ID)

	branch := h.openRelease(t, "branch")
	if _, err := h.ledger.DeleteVersion(ctx, ledger.DeleteVersionInput{
		EntityID:  drop.EntityID,
		ReleaseID: branch.ID,
		ActorID:   h.actor,
	}); err != nil {
		t.Fatalf("delete version: %v", err)
	}

	visible, err := h.resolver.ListVisible(ctx, branch.ID)
	if err != nil {
		t.Fatalf("list visible: %v", err)
	}
	if len(visible) != 1 {
		t.Fatalf("expected one visible entity, got %d", len(visible))
	}
	if visible[0].EntityID != keep.EntityID {
		t.Fatalf("expected %s visible, got %s", keep.EntityID, visible[0].EntityID)
	}

	// The deletion still resolves; it is only hidden from the visible view.
	resolution, err := h.resolver.Resolve(ctx, branch.ID)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	deleted, ok := resolution.Versions[drop.EntityID]
	if !ok || !deleted.IsDeleted {
		t.Fatal("expected soft-deleted entity present in full resolution")
	}
}

func TestResolveEntityFallsBackToTrunk(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	trunk := h.openRelease(t, "trunk")
	version := h.write(t, trunk.ID, "promo", "summer", map[string]any{"discount": 10})
	h.ship(t, trunk.ID)

	branch := h.openRelease(t, "branch")
	resolved, err := h.resolver.ResolveEntity(ctx, branch.ID, version.EntityID)
	if err != nil {
		t.Fatalf("resolve entity: %v", err)
	}
	if resolved.ID != version.ID {
		t.Fatalf("expected trunk version %s, got %s", version.ID, resolved.ID)
	}
}
