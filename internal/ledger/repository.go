package ledger

import (
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// NewEntityRepository creates a repository for entity records.
func NewEntityRepository(db *bun.DB) repository.Repository[*Entity] {
	return repository.MustNewRepository(db, repository.ModelHandlers[*Entity]{
		NewRecord: func() *Entity { return &Entity{} },
		GetID: func(entity *Entity) uuid.UUID {
			return entity.ID
		},
		SetID: func(entity *Entity, id uuid.UUID) {
			entity.ID = id
		},
		GetIdentifier: func() string {
			return "key"
		},
		GetIdentifierValue: func(entity *Entity) string {
			return entity.Key
		},
	})
}

// NewVersionRepository creates a repository for entity version records.
func NewVersionRepository(db *bun.DB) repository.Repository[*EntityVersion] {
	return repository.MustNewRepository(db, repository.ModelHandlers[*EntityVersion]{
		NewRecord: func() *EntityVersion { return &EntityVersion{} },
		GetID: func(version *EntityVersion) uuid.UUID {
			return version.ID
		},
		SetID: func(version *EntityVersion, id uuid.UUID) {
			version.ID = id
		},
	})
}

// NewAuditRepository creates a repository for audit event records.
func NewAuditRepository(db *bun.DB) repository.Repository[*AuditEvent] {
	return repository.MustNewRepository(db, repository.ModelHandlers[*AuditEvent]{
		NewRecord: func() *AuditEvent { return &AuditEvent{} },
		GetID: func(event *AuditEvent) uuid.UUID {
			return event.ID
		},
		SetID: func(event *AuditEvent, id uuid.UUID) {
			event.ID = id
		},
	})
}
