package ledger

import (
	"context"
	"time"

	"github.com/goliatone/go-staging/releases"
	"github.com/google/uuid"
)

// ReleaseGate answers whether a release still accepts version writes. The
// store consults it inside the write transaction so a release closing
// mid-flight cannot take a late edit.
type ReleaseGate interface {
	StatusOf(ctx context.Context, releaseID uuid.UUID) (releases.Status, error)
}

// ReleaseGateFunc adapts a function to the ReleaseGate interface.
type ReleaseGateFunc func(ctx context.Context, releaseID uuid.UUID) (releases.Status, error)

func (f ReleaseGateFunc) StatusOf(ctx context.Context, releaseID uuid.UUID) (releases.Status, error) {
	return f(ctx, releaseID)
}

// WriteRecord carries one version write through the store. Entity is set only
// when the write introduces a new entity; Version is the full row to persist,
// with its ID preserved on repeat writes so each (entity, release) pair keeps
// a single row.
type WriteRecord struct {
	Entity  *Entity
	Version *EntityVersion
	Audit   *AuditEvent
}

// AuditFilter narrows audit event listings. Zero-value fields are ignored.
type AuditFilter struct {
	EntityID  *uuid.UUID
	ReleaseID *uuid.UUID
	Since     *time.Time
	Until     *time.Time
	Limit     int
}

// Store persists entities, versions, and audit events. WriteVersion applies
// the entity insert, version upsert, and audit append atomically; a failure
// in any part leaves no trace of the write.
type Store interface {
	WriteVersion(ctx context.Context, record WriteRecord) (*EntityVersion, error)

	GetEntity(ctx context.Context, id uuid.UUID) (*Entity, error)
	GetEntityByKey(ctx context.Context, entityType, key string) (*Entity, error)
	ListEntities(ctx context.Context, entityType string) ([]*Entity, error)

	GetVersion(ctx context.Context, entityID, releaseID uuid.UUID) (*EntityVersion, error)
	ListReleaseVersions(ctx context.Context, releaseID uuid.UUID) ([]*EntityVersion, error)
	ListEntityVersions(ctx context.Context, entityID uuid.UUID) ([]*EntityVersion, error)
	// ListVersionsForReleases fetches the version rows for a set of releases
	// in one round trip. The resolver feeds it the deploy history.
	ListVersionsForReleases(ctx context.Context, releaseIDs []uuid.UUID) ([]*EntityVersion, error)

	ListAuditEvents(ctx context.Context, filter AuditFilter) ([]*AuditEvent, error)
	PurgeAuditEvents(ctx context.Context, olderThan time.Time) (int64, error)
}
