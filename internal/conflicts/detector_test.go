package conflicts

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
	repo     releases.Repository
	releases releases.Service
	ledger   ledger.Service
	detector Detector
	actor    uuid.UUID
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	base := time.Date(2025, 7, 1, 8, 0, 0, 0, time.UTC)
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
		repo:     releaseRepo,
		releases: releases.NewService(releaseRepo, releases.WithNow(now)),
		ledger:   ledger.NewService(store, ledger.WithNow(now)),
		detector: NewDetector(releaseRepo, store),
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

func (h *harness) detect(t *testing.T, releaseID uuid.UUID) *releases.ConflictSummary {
	t.Helper()
	release, err := h.repo.GetByID(context.Background(), releaseID)
	if err != nil {
		t.Fatalf("get release: %v", err)
	}
	summary, err := h.detector.Detect(context.Background(), release)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	return summary
}

func TestDetectEmptyReleaseHasNoConflicts(t *testing.T) {
	h := newHarness(t)
	release := h.openRelease(t, "empty")
	summary := h.detect(t, release.ID)
	if summary.HasConflicts || summary.TotalCount != 0 {
		t.Fatalf("expected no conflicts, got %+v", summary)
	}
}

func TestDetectCleanBranchHasNoConflicts(t *testing.T) {
	h := newHarness(t)

	trunk := h.openRelease(t, "trunk")
	h.write(t, trunk.ID, "page", "home", map[string]any{"v": 1})
	h.ship(t, trunk.ID)

	branch := h.openRelease(t, "branch")
	h.write(t, branch.ID, "page", "home", map[string]any{"v": 2})

	summary := h.detect(t, branch.ID)
	if summary.HasConflicts {
		t.Fatalf("expected no conflicts for an up-to-date branch, got %+v", summary)
	}
}

func TestDetectFlagsOverwriteWhenProductionMoves(t *testing.T) {
	h := newHarness(t)

	trunk := h.openRelease(t, "trunk")
	h.write(t, trunk.ID, "page", "home", map[string]any{"v": 1})
	h.ship(t, trunk.ID)

	// Both branches fork from the same baseline.
	slow := h.openRelease(t, "slow")
	fast := h.openRelease(t, "fast")

	touched := h.write(t, slow.ID, "page", "home", map[string]any{"v": 2})
	h.write(t, fast.ID, "page", "home", map[string]any{"v": 3})
	h.ship(t, fast.ID)

	summary := h.detect(t, slow.ID)
	if !summary.HasConflicts || summary.OverwriteCount != 1 {
		t.Fatalf("expected one overwrite conflict, got %+v", summary)
	}
	conflict := summary.Conflicts[0]
	if conflict.Kind != releases.ConflictOverwrite {
		t.Fatalf("expected overwrite kind, got %s", conflict.Kind)
	}
	if conflict.EntityID != touched.EntityID {
		t.Fatalf("expected conflict on %s, got %s", touched.EntityID, conflict.EntityID)
	}
	if conflict.ReleaseID != fast.ID {
		t.Fatalf("expected conflict sourced from %s, got %s", fast.ID, conflict.ReleaseID)
	}
}

func TestDetectFlagsOverwriteForEntityCreatedAfterBranch(t *testing.T) {
	h := newHarness(t)

	trunk := h.openRelease(t, "trunk")
	h.write(t, trunk.ID, "page", "home", map[string]any{"v": 1})
	h.ship(t, trunk.ID)

	branch := h.openRelease(t, "branch")

	other := h.openRelease(t, "other")
	h.write(t, other.ID, "page", "pricing", map[string]any{"v": 1})
	h.ship(t, other.ID)

	// The branch edits the same key after production introduced it.
	h.write(t, branch.ID, "page", "pricing", map[string]any{"v": 2})

	summary := h.detect(t, branch.ID)
	if summary.OverwriteCount != 1 {
		t.Fatalf("expected one overwrite conflict, got %+v", summary)
	}
}

func TestDetectFlagsParallelEdits(t *testing.T) {
	h := newHarness(t)

	left := h.openRelease(t, "left")
	right := h.openRelease(t, "right")

	shared := h.write(t, left.ID, "page", "home", map[string]any{"v": 1})
	h.write(t, right.ID, "page", "home", map[string]any{"v": 2})
	h.write(t, right.ID, "page", "unrelated", map[string]any{"v": 1})

	summary := h.detect(t, left.ID)
	if !summary.HasConflicts || summary.ParallelCount != 1 {
		t.Fatalf("expected one parallel conflict, got %+v", summary)
	}
	conflict := summary.Conflicts[0]
	if conflict.Kind != releases.ConflictParallel {
		t.Fatalf("expected parallel kind, got %s", conflict.Kind)
	}
	if conflict.EntityID != shared.EntityID || conflict.ReleaseID != right.ID {
		t.Fatalf("unexpected conflict %+v", conflict)
	}
}

func TestDetectIgnoresClosedReleasesForParallel(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	left := h.openRelease(t, "left")
	right := h.openRelease(t, "right")

	h.write(t, left.ID, "page", "home", map[string]any{"v": 1})
	h.write(t, right.ID, "page", "home", map[string]any{"v": 2})

	if _, err := h.releases.CloseRelease(ctx, releases.CloseReleaseInput{ReleaseID: right.ID, ClosedBy: h.actor}); err != nil {
		t.Fatalf("close right: %v", err)
	}

	summary := h.detect(t, left.ID)
	if summary.ParallelCount != 0 {
		t.Fatalf("expected closed releases to be excluded from parallel detection, got %+v", summary)
	}
}

func TestCloseAndDeployFlowWithDetector(t *testing.T) {
	base := time.Date(2025, 7, 2, 8, 0, 0, 0, time.UTC)
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
	detector := NewDetector(releaseRepo, store)
	releaseSvc := releases.NewService(releaseRepo, releases.WithNow(now), releases.WithConflictDetector(detector))
	ledgerSvc := ledger.NewService(store, ledger.WithNow(now))

	ctx := context.Background()
	actor := uuid.New()

	trunk, err := releaseSvc.CreateRelease(ctx, releases.CreateReleaseInput{Name: "trunk", CreatedBy: actor})
	if err != nil {
		t.Fatalf("create trunk: %v", err)
	}
	if _, err := ledgerSvc.WriteVersion(ctx, ledger.WriteVersionInput{
		EntityType: "page", Key: "home", ReleaseID: trunk.ID, Payload: map[string]any{"v": 1}, ActorID: actor,
	}); err != nil {
		t.Fatalf("trunk write: %v", err)
	}
	if _, err := releaseSvc.CloseRelease(ctx, releases.CloseReleaseInput{ReleaseID: trunk.ID, ClosedBy: actor}); err != nil {
		t.Fatalf("close trunk: %v", err)
	}
	if _, err := releaseSvc.DeployRelease(ctx, releases.DeployReleaseInput{ReleaseID: trunk.ID, DeployedBy: actor}); err != nil {
		t.Fatalf("deploy trunk: %v", err)
	}

	slow, err := releaseSvc.CreateRelease(ctx, releases.CreateReleaseInput{Name: "slow", CreatedBy: actor})
	if err != nil {
		t.Fatalf("create slow: %v", err)
	}
	fast, err := releaseSvc.CreateRelease(ctx, releases.CreateReleaseInput{Name: "fast", CreatedBy: actor})
	if err != nil {
		t.Fatalf("create fast: %v", err)
	}
	if _, err := ledgerSvc.WriteVersion(ctx, ledger.WriteVersionInput{
		EntityType: "page", Key: "home", ReleaseID: slow.ID, Payload: map[string]any{"v": 2}, ActorID: actor,
	}); err != nil {
		t.Fatalf("slow write: %v", err)
	}
	if _, err := ledgerSvc.WriteVersion(ctx, ledger.WriteVersionInput{
		EntityType: "page", Key: "home", ReleaseID: fast.ID, Payload: map[string]any{"v": 3}, ActorID: actor,
	}); err != nil {
		t.Fatalf("fast write: %v", err)
	}
	if _, err := releaseSvc.CloseRelease(ctx, releases.CloseReleaseInput{ReleaseID: fast.ID, ClosedBy: actor}); err != nil {
		t.Fatalf("close fast: %v", err)
	}
	if _, err := releaseSvc.DeployRelease(ctx, releases.DeployReleaseInput{ReleaseID: fast.ID, DeployedBy: actor}); err != nil {
		t.Fatalf("deploy fast: %v", err)
	}

	closed, err := releaseSvc.CloseRelease(ctx, releases.CloseReleaseInput{ReleaseID: slow.ID, ClosedBy: actor})
	if err != nil {
		t.Fatalf("close slow: %v", err)
	}
	if !closed.HasConflicts {
		t.Fatal("expected slow release to close with conflicts recorded")
	}
	if _, err := releaseSvc.DeployRelease(ctx, releases.DeployReleaseInput{ReleaseID: slow.ID, DeployedBy: actor}); err == nil {
		t.Fatal("expected deploy of conflicted release to be refused")
	}

	// Reopening reruns detection at the next close; an edit that still
	// touches the moved entity stays flagged.
	if _, err := releaseSvc.ReopenRelease(ctx, slow.ID); err != nil {
		t.Fatalf("reopen slow: %v", err)
	}
	if _, err := ledgerSvc.DeleteVersion(ctx, ledger.DeleteVersionInput{
		EntityID: mustEntityID(t, store, "page", "home"), ReleaseID: slow.ID, ActorID: actor,
	}); err != nil {
		t.Fatalf("drop conflicting edit: %v", err)
	}
	reclosed, err := releaseSvc.CloseRelease(ctx, releases.CloseReleaseInput{ReleaseID: slow.ID, ClosedBy: actor})
	if err != nil {
		t.Fatalf("re-close slow: %v", err)
	}
	if !reclosed.HasConflicts {
		t.Fatal("expected delete edit to still conflict with moved baseline")
	}
}

func mustEntityID(t *testing.T, store ledger.Store, entityType, key string) uuid.UUID {
	t.Helper()
	entity, err := store.GetEntityByKey(context.Background(), entityType, key)
	if err != nil {
		t.Fatalf("get entity %s/%s: %v", entityType, key, err)
	}
	return entity.ID
}
