package diff

import "github.com/google/uuid"

// ChangeKind classifies an entity-level difference between two release states.
type ChangeKind string

const (
	ChangeAdded    ChangeKind = "ADDED"
	ChangeModified ChangeKind = "MODIFIED"
	ChangeDeleted  ChangeKind = "DELETED"
)

// FieldDelta captures one field whose value differs between the two sides.
type FieldDelta struct {
	From any `json:"from"`
	To   any `json:"to"`
}

// Change describes how one entity differs between the compared releases.
// Fields is populated for MODIFIED entries only, keyed by scalar field name
// or "payload.<key>" for top-level payload keys.
type Change struct {
	EntityID   uuid.UUID             `json:"entity_id"`
	EntityType string                `json:"entity_type"`
	Key        string                `json:"key,omitempty"`
	Kind       ChangeKind            `json:"kind"`
	Fields     map[string]FieldDelta `json:"fields,omitempty"`
}

// Summary aggregates entity-level counts for a comparison.
type Summary struct {
	Total    int `json:"total"`
	Added    int `json:"added"`
	Modified int `json:"modified"`
	Deleted  int `json:"deleted"`
}

// Result is the full outcome of comparing two releases' canonical states.
type Result struct {
	FromReleaseID uuid.UUID `json:"from_release_id"`
	ToReleaseID   uuid.UUID `json:"to_release_id"`
	Changes       []Change  `json:"changes"`
	Summary       Summary   `json:"summary"`
}
