package diff

import (
	"context"
	"testing"
	"time"

	"github.com/goliatone/go-staging/internal/ledger"
	"github.com/goliatone/go-staging/internal/releases"
	"github.com/goliatone/go-staging/internal/resolver"
	releasespub "github.com/goliatone/go-staging/releases"
	"github.com/google/uuid"
)

type harness struct {
	releases releases.Service
	ledger   ledger.Service
	diff     Service
	actor    uuid.UUID
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	base := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
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
		diff:     NewService(resolver.NewService(releaseRepo, store)),
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

func TestCompareReleaseAgainstItselfIsEmpty(t *testing.T) {
	h := newHarness(t)

	release := h.openRelease(t, "only")
	h.write(t, release.ID, "page", "home", map[string]any{"title": "Home"})

	result, err := h.diff.Compare(context.Background(), release.ID, release.ID)
	if err != nil {
		t.Fatalf("compare: %v", err)
	}
	if result.Summary.Total != 0 || len(result.Changes) != 0 {
		t.Fatalf("expected empty diff, got %+v", result)
	}
}

func TestCompareReportsPayloadFieldDelta(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	deployed := h.openRelease(t, "deployed")
	h.write(t, deployed.ID, "page", "home", map[string]any{"v": 1})
	h.ship(t, deployed.ID)

	branch := h.openRelease(t, "branch")
	h.write(t, branch.ID, "page", "home", map[string]any{"v": 2})

	result, err := h.diff.Compare(ctx, deployed.ID, branch.ID)
	if err != nil {
		t.Fatalf("compare: %v", err)
	}
	if result.Summary.Total != 1 || result.Summary.Modified != 1 {
		t.Fatalf("expected one MODIFIED change, got %+v", result.Summary)
	}
	change := result.Changes[0]
	if change.Kind != ChangeModified {
		t.Fatalf("expected MODIFIED, got %s", change.Kind)
	}
	delta, ok := change.Fields["payload.v"]
	if !ok {
		t.Fatalf("expected payload.v delta, got fields %v", change.Fields)
	}
	if delta.From != 1 || delta.To != 2 {
		t.Fatalf("expected delta 1 -> 2, got %v -> %v", delta.From, delta.To)
	}
}

func TestCompareClassifiesAddedAndDeleted(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	deployed := h.openRelease(t, "deployed")
	kept := h.write(t, deployed.ID, "page", "kept", map[string]any{"v": 1})
	doomed := h.write(t, deployed.ID, "page", "doomed", map[string]any{"v": 1})
	h.ship(t, deployed.ID)

	branch := h.openRelease(t, "branch")
	added := h.write(t, branch.ID, "page", "fresh", map[string]any{"v": 1})
	if _, err := h.ledger.DeleteVersion(ctx, ledger.DeleteVersionInput{
		EntityID:  doomed.EntityID,
		ReleaseID: branch.ID,
		ActorID:   h.actor,
	}); err != nil {
		t.Fatalf("delete version: %v", err)
	}

	result, err := h.diff.CompareWithProduction(ctx, branch.ID)
	if err != nil {
		t.Fatalf("compare with production: %v", err)
	}
	if result.Summary.Added != 1 || result.Summary.Deleted != 1 || result.Summary.Modified != 0 {
		t.Fatalf("expected one ADDED and one DELETED, got %+v", result.Summary)
	}

	kinds := make(map[uuid.UUID]ChangeKind, len(result.Changes))
	for _, change := range result.Changes {
		kinds[change.EntityID] = change.Kind
	}
	if kinds[added.EntityID] != ChangeAdded {
		t.Fatalf("expected %s ADDED, got %s", added.EntityID, kinds[added.EntityID])
	}
	if kinds[doomed.EntityID] != ChangeDeleted {
		t.Fatalf("expected %s DELETED, got %s", doomed.EntityID, kinds[doomed.EntityID])
	}
	if _, ok := kinds[kept.EntityID]; ok {
		t.Fatal("expected untouched entity to be absent from the diff")
	}
}

func TestCompareTracksPayloadKeyAdditionsAndRemovals(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	deployed := h.openRelease(t, "deployed")
	h.write(t, deployed.ID, "page", "home", map[string]any{"title": "Home", "footer": "old"})
	h.ship(t, deployed.ID)

	branch := h.openRelease(t, "branch")
	h.write(t, branch.ID, "page", "home", map[string]any{"title": "Home", "hero": "new"})

	result, err := h.diff.Compare(ctx, deployed.ID, branch.ID)
	if err != nil {
		t.Fatalf("compare: %v", err)
	}
	if result.Summary.Modified != 1 {
		t.Fatalf("expected one MODIFIED change, got %+v", result.Summary)
	}
	fields := result.Changes[0].Fields
	if delta, ok := fields["payload.footer"]; !ok || delta.To != nil {
		t.Fatalf("expected footer removal delta, got %v", fields)
	}
	if delta, ok := fields["payload.hero"]; !ok || delta.From != nil {
		t.Fatalf("expected hero addition delta, got %v", fields)
	}
	if _, ok := fields["payload.title"]; ok {
		t.Fatal("expected unchanged title to be absent from deltas")
	}
}

func TestCompareIgnoresUnchangedScalars(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	deployed := h.openRelease(t, "deployed")
	name := "Home"
	if _, err := h.ledger.WriteVersion(ctx, ledger.WriteVersionInput{
		EntityType: "page",
		Key:        "home",
		ReleaseID:  deployed.ID,
		Name:       &name,
		Status:     "published",
		ActorID:    h.actor,
	}); err != nil {
		t.Fatalf("write: %v", err)
	}
	h.ship(t, deployed.ID)

	branch := h.openRelease(t, "branch")
	renamed := "Start"
	if _, err := h.ledger.WriteVersion(ctx, ledger.WriteVersionInput{
		EntityType: "page",
		Key:        "home",
		ReleaseID:  branch.ID,
		Name:       &renamed,
		Status:     "published",
		ActorID:    h.actor,
	}); err != nil {
		t.Fatalf("branch write: %v", err)
	}

	result, err := h.diff.Compare(ctx, deployed.ID, branch.ID)
	if err != nil {
		t.Fatalf("compare: %v", err)
	}
	if result.Summary.Modified != 1 {
		t.Fatalf("expected one MODIFIED change, got %+v", result.Summary)
	}
	fields := result.Changes[0].Fields
	if delta, ok := fields["name"]; !ok || delta.From != "Home" || delta.To != "Start" {
		t.Fatalf("expected name delta Home -> Start, got %v", fields)
	}
	if _, ok := fields["status"]; ok {
		t.Fatal("expected unchanged status to be absent from deltas")
	}
}
