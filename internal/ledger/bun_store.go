package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-repository-cache/cache"
	repositorycache "github.com/goliatone/go-repository-cache/repositorycache"
	"github.com/goliatone/go-staging/releases"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// BunStore implements Store on top of bun. Reads go through go-repository-bun
// repositories (optionally cached); WriteVersion runs raw statements inside a
// transaction so the entity insert, version upsert, audit append, and release
// check commit or fail as one unit.
type BunStore struct {
	db       *bun.DB
	entities repository.Repository[*Entity]
	versions repository.Repository[*EntityVersion]
	audits   repository.Repository[*AuditEvent]
}

// NewBunStore creates a ledger store without caching.
func NewBunStore(db *bun.DB) *BunStore {
	return NewBunStoreWithCache(db, nil, nil)
}

// NewBunStoreWithCache creates a ledger store with entity read caching.
// Version and audit reads stay uncached: versions mutate for the lifetime of
// an open release and audit queries are operator-driven.
func NewBunStoreWithCache(db *bun.DB, cacheService cache.CacheService, serializer cache.KeySerializer) *BunStore {
	entities := NewEntityRepository(db)
	if cacheService != nil && serializer != nil {
		entities = repositorycache.New(entities, cacheService, serializer)
	}
	return &BunStore{
		db:       db,
		entities: entities,
		versions: NewVersionRepository(db),
		audits:   NewAuditRepository(db),
	}
}

func (s *BunStore) WriteVersion(ctx context.Context, record WriteRecord) (*EntityVersion, error) {
	version := record.Version
	var written EntityVersion
	err := s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		release := &releases.Release{}
		if err := tx.NewSelect().Model(release).Where("r.id = ?", version.ReleaseID).Scan(ctx); err != nil {
			if err == sql.ErrNoRows {
				return &releases.NotFoundError{Resource: "release", Key: version.ReleaseID.String()}
			}
			return err
		}
		if !release.Status.Editable() {
			return &releases.ReleaseNotEditableError{ReleaseID: release.ID, Status: release.Status}
		}

		if record.Entity != nil {
			if _, err := tx.NewInsert().
				Model(record.Entity).
				On("CONFLICT (id) DO NOTHING").
				Exec(ctx); err != nil {
				return err
			}
		}

		// One row per (entity, release): repeat writes inside an open release
		// land on the existing row.
		if _, err := tx.NewInsert().
			Model(version).
			On("CONFLICT (entity_id, release_id) DO UPDATE").
			Set("entity_type = EXCLUDED.entity_type").
			Set("key = EXCLUDED.key").
			Set("name = EXCLUDED.name").
			Set("brand_id = EXCLUDED.brand_id").
			Set("jurisdiction_id = EXCLUDED.jurisdiction_id").
			Set("locale_id = EXCLUDED.locale_id").
			Set("payload = EXCLUDED.payload").
			Set("status = EXCLUDED.status").
			Set("change_type = EXCLUDED.change_type").
			Set("is_deleted = EXCLUDED.is_deleted").
			Set("change_reason = EXCLUDED.change_reason").
			Set("updated_at = EXCLUDED.updated_at").
			Exec(ctx); err != nil {
			return err
		}

		if record.Audit != nil {
			if _, err := tx.NewInsert().Model(record.Audit).Exec(ctx); err != nil {
				return err
			}
		}
		written = *version
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &written, nil
}

func (s *BunStore) GetEntity(ctx context.Context, id uuid.UUID) (*Entity, error) {
	record, err := s.entities.GetByID(ctx, id.String())
	if err != nil {
		return nil, mapRepositoryError(err, "entity", id.String())
	}
	return record, nil
}

func (s *BunStore) GetEntityByKey(ctx context.Context, entityType, key string) (*Entity, error) {
	records, _, err := s.entities.List(ctx,
		repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("?TableAlias.entity_type = ?", entityType).
				Where("?TableAlias.key = ?", key)
		}),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, &NotFoundError{Resource: "entity", Key: key}
	}
	return records[0], nil
}

func (s *BunStore) ListEntities(ctx context.Context, entityType string) ([]*Entity, error) {
	records, _, err := s.entities.List(ctx, repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
		if entityType != "" {
			q = q.Where("?TableAlias.entity_type = ?", entityType)
		}
		return q.Order("entity_type ASC", "key ASC")
	}))
	return records, err
}

func (s *BunStore) GetVersion(ctx context.Context, entityID, releaseID uuid.UUID) (*EntityVersion, error) {
	records, _, err := s.versions.List(ctx,
		repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("?TableAlias.entity_id = ?", entityID).
				Where("?TableAlias.release_id = ?", releaseID)
		}),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, &NotFoundError{Resource: "entity version", Key: entityID.String()}
	}
	return records[0], nil
}

func (s *BunStore) ListReleaseVersions(ctx context.Context, releaseID uuid.UUID) ([]*EntityVersion, error) {
	records, _, err := s.versions.List(ctx, repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("?TableAlias.release_id = ?", releaseID).
			Order("entity_type ASC", "key ASC")
	}))
	return records, err
}

func (s *BunStore) ListEntityVersions(ctx context.Context, entityID uuid.UUID) ([]*EntityVersion, error) {
	records, _, err := s.versions.List(ctx, repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("?TableAlias.entity_id = ?", entityID).
			Order("updated_at ASC")
	}))
	return records, err
}

func (s *BunStore) ListVersionsForReleases(ctx context.Context, releaseIDs []uuid.UUID) ([]*EntityVersion, error) {
	if len(releaseIDs) == 0 {
		return nil, nil
	}
	records, _, err := s.versions.List(ctx, repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("?TableAlias.release_id IN (?)", bun.In(releaseIDs)).
			Order("entity_type ASC", "key ASC")
	}))
	return records, err
}

func (s *BunStore) ListAuditEvents(ctx context.Context, filter AuditFilter) ([]*AuditEvent, error) {
	processors := []repository.SelectCriteria{
		repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
			if filter.EntityID != nil {
				q = q.Where("?TableAlias.entity_id = ?", *filter.EntityID)
			}
			if filter.ReleaseID != nil {
				q = q.Where("?TableAlias.release_id = ?", *filter.ReleaseID)
			}
			if filter.Since != nil {
				q = q.Where("?TableAlias.changed_at >= ?", *filter.Since)
			}
			if filter.Until != nil {
				q = q.Where("?TableAlias.changed_at < ?", *filter.Until)
			}
			return q.Order("changed_at ASC")
		}),
	}
	if filter.Limit > 0 {
		processors = append(processors, repository.SelectPaginate(filter.Limit, 0))
	}
	records, _, err := s.audits.List(ctx, processors...)
	return records, err
}

func (s *BunStore) PurgeAuditEvents(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.NewDelete().
		Model((*AuditEvent)(nil)).
		Where("changed_at < ?", olderThan).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	purged, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return purged, nil
}

func mapRepositoryError(err error, resource, key string) error {
	if err == nil {
		return nil
	}
	if errors.IsCategory(err, repository.CategoryDatabaseNotFound) {
		return &NotFoundError{Resource: resource, Key: key}
	}
	return fmt.Errorf("%s repository error: %w", resource, err)
}
