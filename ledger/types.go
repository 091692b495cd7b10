package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ChangeType records how a version altered its entity.
type ChangeType string

const (
	ChangeCreate ChangeType = "CREATE"
	ChangeUpdate ChangeType = "UPDATE"
	ChangeDelete ChangeType = "DELETE"
)

// Workflow states carried on entity versions. The resolver and diff engine
// treat status as an opaque field; these values are the conventional set.
const (
	StatusDraft     = "draft"
	StatusPublished = "published"
	StatusArchived  = "archived"
)

// Valid reports whether the change type is one of the known markers.
func (c ChangeType) Valid() bool {
	switch c {
	case ChangeCreate, ChangeUpdate, ChangeDelete:
		return true
	default:
		return false
	}
}

// Entity is a logical content item with a stable identity across releases.
// Entities are never physically removed; deletion happens through versions
// carrying the DELETE change type.
type Entity struct {
	bun.BaseModel `bun:"table:entities,alias:e"`

	ID         uuid.UUID  `bun:",pk,type:uuid" json:"id"`
	EntityType string     `bun:"entity_type,notnull" json:"entity_type"`
	Key        string     `bun:"key" json:"key,omitempty"`
	DeletedAt  *time.Time `bun:"deleted_at,nullzero" json:"deleted_at,omitempty"`
	CreatedAt  time.Time  `bun:"created_at,nullzero,default:current_timestamp" json:"created_at"`

	Versions []*EntityVersion `bun:"rel:has-many,join:id=entity_id" json:"versions,omitempty"`
}

// EntityVersion is an immutable snapshot of one entity as edited inside one
// release. A release touches an entity at most once: repeated edits within the
// same open release overwrite this row instead of appending new ones.
type EntityVersion struct {
	bun.BaseModel `bun:"table:entity_versions,alias:ev"`

	ID        uuid.UUID `bun:",pk,type:uuid" json:"id"`
	EntityID  uuid.UUID `bun:"entity_id,notnull,type:uuid" json:"entity_id"`
	ReleaseID uuid.UUID `bun:"release_id,notnull,type:uuid" json:"release_id"`

	EntityType string  `bun:"entity_type,notnull" json:"entity_type"`
	Key        string  `bun:"key" json:"key,omitempty"`
	Name       *string `bun:"name" json:"name,omitempty"`

	// Reference-data associations are opaque, pre-validated identifiers.
	BrandID        *int64 `bun:"brand_id,nullzero" json:"brand_id,omitempty"`
	JurisdictionID *int64 `bun:"jurisdiction_id,nullzero" json:"jurisdiction_id,omitempty"`
	LocaleID       *int64 `bun:"locale_id,nullzero" json:"locale_id,omitempty"`

	Payload      map[string]any `bun:"payload,type:jsonb" json:"payload,omitempty"`
	Status       string         `bun:"status,notnull,default:'draft'" json:"status"`
	ChangeType   ChangeType     `bun:"change_type,notnull" json:"change_type"`
	IsDeleted    bool           `bun:"is_deleted,notnull,default:false" json:"is_deleted"`
	ChangeReason *string        `bun:"change_reason" json:"change_reason,omitempty"`

	CreatedBy uuid.UUID `bun:"created_by,notnull,type:uuid" json:"created_by"`
	CreatedAt time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at"`
	UpdatedAt time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at"`

	Entity *Entity `bun:"rel:belongs-to,join:entity_id=id" json:"entity,omitempty"`
}

// AuditEvent is an append-only forensic record of one entity mutation. It is
// written in the same transaction as the version it describes.
type AuditEvent struct {
	bun.BaseModel `bun:"table:audit_events,alias:ae"`

	ID         uuid.UUID      `bun:",pk,type:uuid" json:"id"`
	EntityID   uuid.UUID      `bun:"entity_id,notnull,type:uuid" json:"entity_id"`
	ReleaseID  uuid.UUID      `bun:"release_id,notnull,type:uuid" json:"release_id"`
	EntityType string         `bun:"entity_type,notnull" json:"entity_type"`
	Operation  string         `bun:"operation,notnull" json:"operation"`
	OldData    map[string]any `bun:"old_data,type:jsonb" json:"old_data,omitempty"`
	NewData    map[string]any `bun:"new_data,type:jsonb" json:"new_data,omitempty"`
	ChangedBy  uuid.UUID      `bun:"changed_by,notnull,type:uuid" json:"changed_by"`
	ChangedAt  time.Time      `bun:"changed_at,nullzero,default:current_timestamp" json:"changed_at"`
	RequestCtx map[string]any `bun:"request_ctx,type:jsonb" json:"request_ctx,omitempty"`
}
