package resolver

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/goliatone/go-staging/internal/ledger"
	"github.com/goliatone/go-staging/internal/logging"
	"github.com/goliatone/go-staging/internal/releases"
	"github.com/goliatone/go-staging/pkg/interfaces"
	"github.com/google/uuid"
)

// Service computes the canonical view of content for a release: the release's
// own edits layered over the production baseline. The baseline is the deploy
// history walked from the newest sequence down, with rolled back releases
// excluded, so resolution never needs a materialized snapshot.
type Service interface {
	// Resolve returns the effective version of every entity as seen from the
	// given release, soft-deleted entries included.
	Resolve(ctx context.Context, releaseID uuid.UUID) (*Resolution, error)
	// ResolveProduction returns the effective version of every entity in the
	// production baseline, with no release overlay.
	ResolveProduction(ctx context.Context) (*Resolution, error)
	// ResolveEntity returns the effective version of one entity as seen from
	// the given release.
	ResolveEntity(ctx context.Context, releaseID, entityID uuid.UUID) (*ledger.EntityVersion, error)
	// ListVisible returns the resolved versions a consumer would see:
	// soft-deleted entities are filtered out.
	ListVisible(ctx context.Context, releaseID uuid.UUID) ([]*ledger.EntityVersion, error)
}

// Resolution is the outcome of one resolve pass.
type Resolution struct {
	ReleaseID uuid.UUID
	// Versions maps entity ID to its effective version. Deleted entities are
	// present with IsDeleted set; callers that only want consumer-visible
	// content should use Visible.
	Versions map[uuid.UUID]*ledger.EntityVersion
	// Layers records the releases consulted, overlay first, in walk order.
	Layers []uuid.UUID
}

// Visible returns the non-deleted versions sorted by entity type and key.
func (r *Resolution) Visible() []*ledger.EntityVersion {
	if r == nil {
		return nil
	}
	visible := make([]*ledger.EntityVersion, 0, len(r.Versions))
	for _, version := range r.Versions {
		if version.IsDeleted || version.ChangeType == ledger.ChangeDelete {
			continue
		}
		visible = append(visible, version)
	}
	sort.Slice(visible, func(i, j int) bool {
		if visible[i].EntityType == visible[j].EntityType {
			return visible[i].Key < visible[j].Key
		}
		return visible[i].EntityType < visible[j].EntityType
	})
	return visible
}

var (
	ErrReleaseRepositoryRequired = errors.New("resolver: release repository required")
	ErrLedgerStoreRequired       = errors.New("resolver: ledger store required")
)

// ServiceOption configures service behaviour.
type ServiceOption func(*service)

// WithLogger attaches a logger to the service.
func WithLogger(logger interfaces.Logger) ServiceOption {
	return func(s *service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

type service struct {
	releases releases.Repository
	store    ledger.Store
	logger   interfaces.Logger
}

// NewService constructs a resolver instance.
func NewService(releaseRepo releases.Repository, store ledger.Store, opts ...ServiceOption) Service {
	if releaseRepo == nil {
		panic(ErrReleaseRepositoryRequired)
	}
	if store == nil {
		panic(ErrLedgerStoreRequired)
	}

	s := &service{
		releases: releaseRepo,
		store:    store,
		logger:   logging.NoOp(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *service) Resolve(ctx context.Context, releaseID uuid.UUID) (*Resolution, error) {
	if releaseID == uuid.Nil {
		return nil, releases.ErrReleaseIDRequired
	}
	release, err := s.releases.GetByID(ctx, releaseID)
	if err != nil {
		return nil, err
	}
	layers, err := s.layerOrder(ctx, release)
	if err != nil {
		return nil, err
	}
	return s.resolveLayers(ctx, releaseID, layers)
}

func (s *service) ResolveProduction(ctx context.Context) (*Resolution, error) {
	history, err := s.releases.ListDeployHistory(ctx)
	if err != nil {
		return nil, err
	}
	layers := make([]uuid.UUID, 0, len(history))
	for _, release := range history {
		layers = append(layers, release.ID)
	}
	return s.resolveLayers(ctx, uuid.Nil, layers)
}

func (s *service) ResolveEntity(ctx context.Context, releaseID, entityID uuid.UUID) (*ledger.EntityVersion, error) {
	if entityID == uuid.Nil {
		return nil, ledger.ErrEntityIDRequired
	}
	resolution, err := s.Resolve(ctx, releaseID)
	if err != nil {
		return nil, err
	}
	version, ok := resolution.Versions[entityID]
	if !ok {
		return nil, &ledger.NotFoundError{Resource: "entity version", Key: entityID.String()}
	}
	return version, nil
}

func (s *service) ListVisible(ctx context.Context, releaseID uuid.UUID) ([]*ledger.EntityVersion, error) {
	resolution, err := s.Resolve(ctx, releaseID)
	if err != nil {
		return nil, err
	}
	return resolution.Visible(), nil
}

// layerOrder builds the precedence chain for a release: its own edits first,
// then the deploy history from the newest sequence down. A deployed release
// resolving itself appears once, at the front.
func (s *service) layerOrder(ctx context.Context, release *releases.Release) ([]uuid.UUID, error) {
	history, err := s.releases.ListDeployHistory(ctx)
	if err != nil {
		return nil, err
	}
	layers := make([]uuid.UUID, 0, len(history)+1)
	layers = append(layers, release.ID)
	for _, deployed := range history {
		if deployed.ID == release.ID {
			continue
		}
		layers = append(layers, deployed.ID)
	}
	return layers, nil
}

func (s *service) resolveLayers(ctx context.Context, releaseID uuid.UUID, layers []uuid.UUID) (*Resolution, error) {
	resolution := &Resolution{
		ReleaseID: releaseID,
		Versions:  make(map[uuid.UUID]*ledger.EntityVersion),
		Layers:    layers,
	}
	if len(layers) == 0 {
		return resolution, nil
	}

	started := time.Now()
	versions, err := s.store.ListVersionsForReleases(ctx, layers)
	if err != nil {
		return nil, err
	}

	byRelease := make(map[uuid.UUID][]*ledger.EntityVersion, len(layers))
	for _, version := range versions {
		byRelease[version.ReleaseID] = append(byRelease[version.ReleaseID], version)
	}

	// First layer that carries a version for an entity wins.
	for _, layer := range layers {
		for _, version := range byRelease[layer] {
			if _, seen := resolution.Versions[version.EntityID]; seen {
				continue
			}
			resolution.Versions[version.EntityID] = version
		}
	}

	s.logger.Debug("release resolved",
		"release_id", releaseID,
		"layers", len(layers),
		"entities", len(resolution.Versions),
		"elapsed", time.Since(started),
	)
	return resolution, nil
}
