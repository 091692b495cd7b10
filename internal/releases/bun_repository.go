package releases

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-repository-cache/cache"
	repositorycache "github.com/goliatone/go-repository-cache/repositorycache"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// BunRepository implements Repository on top of bun with optional caching.
// Deploy and Rollback bypass the cached CRUD layer and run inside explicit
// transactions so sequence assignment stays serialized.
type BunRepository struct {
	db   *bun.DB
	repo repository.Repository[*Release]
}

// NewBunRepository creates a release repository without caching.
func NewBunRepository(db *bun.DB) *BunRepository {
	return NewBunRepositoryWithCache(db, nil, nil)
}

// NewBunRepositoryWithCache creates a release repository with caching support.
func NewBunRepositoryWithCache(db *bun.DB, cacheService cache.CacheService, serializer cache.KeySerializer) *BunRepository {
	base := NewReleaseRepository(db)
	if cacheService != nil && serializer != nil {
		base = repositorycache.New(base, cacheService, serializer)
	}
	return &BunRepository{db: db, repo: base}
}

func (r *BunRepository) Create(ctx context.Context, release *Release) (*Release, error) {
	record, err := r.repo.Create(ctx, release)
	if err != nil {
		return nil, err
	}
	return record, nil
}

func (r *BunRepository) Update(ctx context.Context, release *Release) (*Release, error) {
	updated, err := r.repo.Update(ctx, release,
		repository.UpdateByID(release.ID.String()),
		repository.UpdateColumns(
			"name",
			"description",
			"status",
			"has_conflicts",
			"conflict_detail",
			"closed_by",
			"closed_at",
		),
	)
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (r *BunRepository) GetByID(ctx context.Context, id uuid.UUID) (*Release, error) {
	record, err := r.repo.GetByID(ctx, id.String())
	if err != nil {
		return nil, mapRepositoryError(err, "release", id.String())
	}
	return record, nil
}

func (r *BunRepository) GetByName(ctx context.Context, name string) (*Release, error) {
	record, err := r.repo.GetByIdentifier(ctx, name)
	if err != nil {
		return nil, mapRepositoryError(err, "release", name)
	}
	return record, nil
}

func (r *BunRepository) List(ctx context.Context) ([]*Release, error) {
	records, _, err := r.repo.List(ctx, repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Order("created_at ASC")
	}))
	return records, err
}

func (r *BunRepository) ListByStatus(ctx context.Context, status Status) ([]*Release, error) {
	records, _, err := r.repo.List(ctx, repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("?TableAlias.status = ?", string(status)).Order("created_at ASC")
	}))
	return records, err
}

func (r *BunRepository) ListDeployHistory(ctx context.Context) ([]*Release, error) {
	records, _, err := r.repo.List(ctx, repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("?TableAlias.status = ?", string(StatusDeployed)).
			Where("?TableAlias.deploy_seq IS NOT NULL").
			Order("deploy_seq DESC")
	}))
	return records, err
}

func (r *BunRepository) Active(ctx context.Context) (*Release, error) {
	records, _, err := r.repo.List(ctx,
		repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("?TableAlias.status = ?", string(StatusDeployed)).
				Where("?TableAlias.deploy_seq IS NOT NULL").
				Order("deploy_seq DESC")
		}),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, &NotFoundError{Resource: "release", Key: "active"}
	}
	return records[0], nil
}

func (r *BunRepository) Deploy(ctx context.Context, id uuid.UUID, deployedBy uuid.UUID, at time.Time) (*Release, error) {
	var deployed Release
	err := r.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		current := &Release{}
		if err := tx.NewSelect().Model(current).Where("r.id = ?", id).Scan(ctx); err != nil {
			if err == sql.ErrNoRows {
				return &NotFoundError{Resource: "release", Key: id.String()}
			}
			return err
		}
		if current.Status != StatusClosed {
			return &StatusInvalidError{ReleaseID: id, From: current.Status, To: StatusDeployed}
		}

		var maxSeq sql.NullInt64
		if err := tx.NewSelect().
			Model((*Release)(nil)).
			ColumnExpr("MAX(deploy_seq)").
			Scan(ctx, &maxSeq); err != nil {
			return err
		}
		seq := maxSeq.Int64 + 1

		current.DeploySeq = &seq
		current.Status = StatusDeployed
		current.DeployedBy = &deployedBy
		deployedAt := at
		current.DeployedAt = &deployedAt

		// The unique index on deploy_seq rejects a concurrent deploy that
		// computed the same number.
		res, err := tx.NewUpdate().
			Model(current).
			Column("status", "deploy_seq", "deployed_by", "deployed_at").
			Where("id = ?", id).
			Where("status = ?", string(StatusClosed)).
			Exec(ctx)
		if err != nil {
			return err
		}
		if rows, err := res.RowsAffected(); err == nil && rows == 0 {
			return &StatusInvalidError{ReleaseID: id, From: current.Status, To: StatusDeployed}
		}
		deployed = *current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &deployed, nil
}

func (r *BunRepository) Rollback(ctx context.Context, targetID uuid.UUID, at time.Time) (*Release, error) {
	var restored Release
	err := r.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		target := &Release{}
		if err := tx.NewSelect().Model(target).Where("r.id = ?", targetID).Scan(ctx); err != nil {
			if err == sql.ErrNoRows {
				return &NotFoundError{Resource: "release", Key: targetID.String()}
			}
			return err
		}
		if target.DeploySeq == nil {
			return &InvalidRollbackTargetError{ReleaseID: targetID, Reason: "release was never deployed"}
		}

		if _, err := tx.NewUpdate().
			Model((*Release)(nil)).
			Set("status = ?", string(StatusRolledBack)).
			Where("status = ?", string(StatusDeployed)).
			Where("deploy_seq > ?", *target.DeploySeq).
			Exec(ctx); err != nil {
			return err
		}
		if _, err := tx.NewUpdate().
			Model((*Release)(nil)).
			Set("status = ?", string(StatusDeployed)).
			Where("id = ?", targetID).
			Exec(ctx); err != nil {
			return err
		}
		target.Status = StatusDeployed
		restored = *target
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &restored, nil
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
