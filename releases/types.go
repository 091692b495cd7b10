package releases

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Status represents the lifecycle state of a release.
type Status string

const (
	// StatusOpen accepts entity version writes.
	StatusOpen Status = "open"
	// StatusClosed is frozen for review; conflict results are recorded at this point.
	StatusClosed Status = "closed"
	// StatusDeployed marks the release as part of production history. The
	// deployed release with the highest deploy sequence is the active baseline.
	StatusDeployed Status = "deployed"
	// StatusRolledBack excludes a previously deployed release from the active
	// baseline without erasing its deploy sequence.
	StatusRolledBack Status = "rolled_back"
)

// Valid reports whether the status is one of the known lifecycle states.
func (s Status) Valid() bool {
	switch s {
	case StatusOpen, StatusClosed, StatusDeployed, StatusRolledBack:
		return true
	default:
		return false
	}
}

// Editable reports whether version writes are accepted for a release in this state.
func (s Status) Editable() bool {
	return s == StatusOpen
}

// Release is an isolated batch of entity edits with its own lifecycle.
type Release struct {
	bun.BaseModel `bun:"table:releases,alias:r"`

	ID          uuid.UUID `bun:",pk,type:uuid" json:"id"`
	Name        string    `bun:"name,notnull" json:"name"`
	Description *string   `bun:"description" json:"description,omitempty"`
	Status      Status    `bun:"status,notnull,default:'open'" json:"status"`

	// DeploySeq is assigned exactly once at deploy time and never reused.
	DeploySeq *int64 `bun:"deploy_seq,nullzero" json:"deploy_seq,omitempty"`

	// BranchReleaseID records the production release that was active when this
	// release was created. Conflict detection compares against this baseline.
	BranchReleaseID *uuid.UUID `bun:"branch_release_id,nullzero,type:uuid" json:"branch_release_id,omitempty"`

	HasConflicts   bool           `bun:"has_conflicts,notnull,default:false" json:"has_conflicts"`
	ConflictDetail map[string]any `bun:"conflict_detail,type:jsonb" json:"conflict_detail,omitempty"`

	CreatedBy  uuid.UUID  `bun:"created_by,notnull,type:uuid" json:"created_by"`
	CreatedAt  time.Time  `bun:"created_at,nullzero,default:current_timestamp" json:"created_at"`
	ClosedBy   *uuid.UUID `bun:"closed_by,nullzero,type:uuid" json:"closed_by,omitempty"`
	ClosedAt   *time.Time `bun:"closed_at,nullzero" json:"closed_at,omitempty"`
	DeployedBy *uuid.UUID `bun:"deployed_by,nullzero,type:uuid" json:"deployed_by,omitempty"`
	DeployedAt *time.Time `bun:"deployed_at,nullzero" json:"deployed_at,omitempty"`
}

// ConflictKind distinguishes how a conflicting edit was produced.
type ConflictKind string

const (
	// ConflictOverwrite means production moved past the release's branch point
	// for an entity this release also touched.
	ConflictOverwrite ConflictKind = "overwrite"
	// ConflictParallel means another open release touched the same entity.
	ConflictParallel ConflictKind = "parallel"
)

// Conflict names one entity whose edits collide with work outside the release.
type Conflict struct {
	EntityID   uuid.UUID    `json:"entity_id"`
	EntityType string       `json:"entity_type"`
	Key        string       `json:"key,omitempty"`
	Kind       ConflictKind `json:"kind"`
	ReleaseID  uuid.UUID    `json:"release_id"`
}

// ConflictSummary aggregates the conflicts recorded when a release closes.
type ConflictSummary struct {
	HasConflicts   bool       `json:"has_conflicts"`
	TotalCount     int        `json:"total_count"`
	OverwriteCount int        `json:"overwrite_count"`
	ParallelCount  int        `json:"parallel_count"`
	Conflicts      []Conflict `json:"conflicts,omitempty"`
}
