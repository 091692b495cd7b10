package releases

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository exposes persistence operations for releases.
//
// Deploy and Rollback are transactional: implementations must apply the
// status transition, sequence assignment, and any demotions atomically so
// a failed call leaves the deploy history untouched.
type Repository interface {
	Create(ctx context.Context, release *Release) (*Release, error)
	Update(ctx context.Context, release *Release) (*Release, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Release, error)
	GetByName(ctx context.Context, name string) (*Release, error)
	List(ctx context.Context) ([]*Release, error)
	ListByStatus(ctx context.Context, status Status) ([]*Release, error)
	// ListDeployHistory returns releases that hold a deploy sequence and have
	// not been rolled back, ordered by descending sequence. The first element,
	// when present, is the active production release.
	ListDeployHistory(ctx context.Context) ([]*Release, error)
	// Active returns the production release: the deployed release with the
	// greatest deploy sequence. Returns NotFoundError when nothing has been
	// deployed yet.
	Active(ctx context.Context) (*Release, error)
	// Deploy assigns the next deploy sequence to the release and marks it
	// deployed. Implementations must derive the sequence and persist it in
	// the same transaction so concurrent deploys cannot share a number.
	Deploy(ctx context.Context, id uuid.UUID, deployedBy uuid.UUID, at time.Time) (*Release, error)
	// Rollback marks every deployed release with a sequence greater than the
	// target's as rolled back, restoring the target as production. Deploy
	// sequences are never cleared or reused.
	Rollback(ctx context.Context, targetID uuid.UUID, at time.Time) (*Release, error)
}
