package conflicts

import (
	"context"
	"errors"
	"sort"

	"github.com/goliatone/go-staging/internal/ledger"
	"github.com/goliatone/go-staging/internal/logging"
	"github.com/goliatone/go-staging/internal/releases"
	"github.com/goliatone/go-staging/pkg/interfaces"
	"github.com/google/uuid"
)

// Detector flags release edits that collide with work done elsewhere. It runs
// when a release closes and its findings are frozen onto the release row.
//
// Two kinds are reported:
//
//   - overwrite: production moved past the release's branch point for an
//     entity the release also touched, so deploying would clobber a newer
//     baseline version.
//   - parallel: another open release is editing the same entity, so whichever
//     deploys second overwrites the first.
type Detector interface {
	Detect(ctx context.Context, release *releases.Release) (*releases.ConflictSummary, error)
}

var (
	ErrReleaseRepositoryRequired = errors.New("conflicts: release repository required")
	ErrLedgerStoreRequired       = errors.New("conflicts: ledger store required")
)

// DetectorOption configures detector behaviour.
type DetectorOption func(*detector)

// WithLogger attaches a logger to the detector.
func WithLogger(logger interfaces.Logger) DetectorOption {
	return func(d *detector) {
		if logger != nil {
			d.logger = logger
		}
	}
}

type detector struct {
	releases releases.Repository
	store    ledger.Store
	logger   interfaces.Logger
}

// NewDetector constructs a conflict detector.
func NewDetector(releaseRepo releases.Repository, store ledger.Store, opts ...DetectorOption) Detector {
	if releaseRepo == nil {
		panic(ErrReleaseRepositoryRequired)
	}
	if store == nil {
		panic(ErrLedgerStoreRequired)
	}

	d := &detector{
		releases: releaseRepo,
		store:    store,
		logger:   logging.NoOp(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *detector) Detect(ctx context.Context, release *releases.Release) (*releases.ConflictSummary, error) {
	summary := &releases.ConflictSummary{}
	if release == nil {
		return summary, nil
	}

	versions, err := d.store.ListReleaseVersions(ctx, release.ID)
	if err != nil {
		return nil, err
	}
	if len(versions) == 0 {
		return summary, nil
	}

	overwrites, err := d.detectOverwrites(ctx, release, versions)
	if err != nil {
		return nil, err
	}
	parallels, err := d.detectParallels(ctx, release, versions)
	if err != nil {
		return nil, err
	}

	conflicts := append(overwrites, parallels...)
	sort.Slice(conflicts, func(i, j int) bool {
		a, b := conflicts[i], conflicts[j]
		if a.EntityType != b.EntityType {
			return a.EntityType < b.EntityType
		}
		if a.Key != b.Key {
			return a.Key < b.Key
		}
		return a.EntityID.String() < b.EntityID.String()
	})

	summary.Conflicts = conflicts
	summary.TotalCount = len(conflicts)
	summary.OverwriteCount = len(overwrites)
	summary.ParallelCount = len(parallels)
	summary.HasConflicts = len(conflicts) > 0

	if summary.HasConflicts {
		d.logger.Warn("conflicts detected",
			"release_id", release.ID,
			"overwrites", summary.OverwriteCount,
			"parallels", summary.ParallelCount,
		)
	}
	return summary, nil
}

// detectOverwrites compares, for every entity the release touched, the
// current effective baseline version against the effective version at the
// release's branch point. Any movement between the two means production
// advanced underneath the release.
func (d *detector) detectOverwrites(ctx context.Context, release *releases.Release, versions []*ledger.EntityVersion) ([]releases.Conflict, error) {
	history, err := d.releases.ListDeployHistory(ctx)
	if err != nil {
		return nil, err
	}
	if len(history) == 0 {
		return nil, nil
	}

	var branchSeq int64
	if release.BranchReleaseID != nil {
		branch, err := d.releases.GetByID(ctx, *release.BranchReleaseID)
		if err != nil {
			return nil, err
		}
		if branch.DeploySeq != nil {
			branchSeq = *branch.DeploySeq
		}
	}

	currentIDs := make([]uuid.UUID, 0, len(history))
	baselineIDs := make([]uuid.UUID, 0, len(history))
	for _, deployed := range history {
		currentIDs = append(currentIDs, deployed.ID)
		if deployed.DeploySeq != nil && *deployed.DeploySeq <= branchSeq {
			baselineIDs = append(baselineIDs, deployed.ID)
		}
	}

	current, err := d.effectiveVersions(ctx, currentIDs, history)
	if err != nil {
		return nil, err
	}
	baseline, err := d.effectiveVersions(ctx, baselineIDs, history)
	if err != nil {
		return nil, err
	}

	var conflicts []releases.Conflict
	for _, version := range versions {
		now, nowOK := current[version.EntityID]
		then, thenOK := baseline[version.EntityID]
		if nowOK != thenOK || (nowOK && now.ID != then.ID) {
			conflicts = append(conflicts, releases.Conflict{
				EntityID:   version.EntityID,
				EntityType: version.EntityType,
				Key:        version.Key,
				Kind:       releases.ConflictOverwrite,
				ReleaseID:  conflictSourceRelease(now, then),
			})
		}
	}
	return conflicts, nil
}

// detectParallels reports entities this release touched that another open
// release is also editing.
func (d *detector) detectParallels(ctx context.Context, release *releases.Release, versions []*ledger.EntityVersion) ([]releases.Conflict, error) {
	open, err := d.releases.ListByStatus(ctx, releases.StatusOpen)
	if err != nil {
		return nil, err
	}
	otherIDs := make([]uuid.UUID, 0, len(open))
	for _, other := range open {
		if other.ID == release.ID {
			continue
		}
		otherIDs = append(otherIDs, other.ID)
	}
	if len(otherIDs) == 0 {
		return nil, nil
	}

	otherVersions, err := d.store.ListVersionsForReleases(ctx, otherIDs)
	if err != nil {
		return nil, err
	}
	touchedBy := make(map[uuid.UUID]uuid.UUID, len(otherVersions))
	for _, other := range otherVersions {
		if _, seen := touchedBy[other.EntityID]; !seen {
			touchedBy[other.EntityID] = other.ReleaseID
		}
	}

	var conflicts []releases.Conflict
	for _, version := range versions {
		otherRelease, ok := touchedBy[version.EntityID]
		if !ok {
			continue
		}
		conflicts = append(conflicts, releases.Conflict{
			EntityID:   version.EntityID,
			EntityType: version.EntityType,
			Key:        version.Key,
			Kind:       releases.ConflictParallel,
			ReleaseID:  otherRelease,
		})
	}
	return conflicts, nil
}

// effectiveVersions resolves the winning version per entity across a set of
// deployed releases, walking them in descending sequence order.
func (d *detector) effectiveVersions(ctx context.Context, layerIDs []uuid.UUID, history []*releases.Release) (map[uuid.UUID]*ledger.EntityVersion, error) {
	effective := make(map[uuid.UUID]*ledger.EntityVersion)
	if len(layerIDs) == 0 {
		return effective, nil
	}

	wanted := make(map[uuid.UUID]struct{}, len(layerIDs))
	for _, id := range layerIDs {
		wanted[id] = struct{}{}
	}

	versions, err := d.store.ListVersionsForReleases(ctx, layerIDs)
	if err != nil {
		return nil, err
	}
	byRelease := make(map[uuid.UUID][]*ledger.EntityVersion, len(layerIDs))
	for _, version := range versions {
		byRelease[version.ReleaseID] = append(byRelease[version.ReleaseID], version)
	}

	// History arrives ordered by descending deploy sequence.
	for _, deployed := range history {
		if _, ok := wanted[deployed.ID]; !ok {
			continue
		}
		for _, version := range byRelease[deployed.ID] {
			if _, seen := effective[version.EntityID]; seen {
				continue
			}
			effective[version.EntityID] = version
		}
	}
	return effective, nil
}

// conflictSourceRelease names the release whose version evidences the
// baseline movement.
func conflictSourceRelease(now, then *ledger.EntityVersion) uuid.UUID {
	if now != nil {
		return now.ReleaseID
	}
	if then != nil {
		return then.ReleaseID
	}
	return uuid.Nil
}
