package ledger

import "github.com/goliatone/go-staging/ledger"

// Re-export public ledger types so internal packages share one set of models.
type (
	Entity        = ledger.Entity
	EntityVersion = ledger.EntityVersion
	AuditEvent    = ledger.AuditEvent
	ChangeType    = ledger.ChangeType

	NotFoundError        = ledger.NotFoundError
	DuplicateEntityError = ledger.DuplicateEntityError
)

const (
	ChangeCreate = ledger.ChangeCreate
	ChangeUpdate = ledger.ChangeUpdate
	ChangeDelete = ledger.ChangeDelete

	StatusDraft     = ledger.StatusDraft
	StatusPublished = ledger.StatusPublished
	StatusArchived  = ledger.StatusArchived
)

var (
	ErrEntityTypeRequired  = ledger.ErrEntityTypeRequired
	ErrReleaseIDRequired   = ledger.ErrReleaseIDRequired
	ErrEntityIDRequired    = ledger.ErrEntityIDRequired
	ErrActorRequired       = ledger.ErrActorRequired
	ErrChangeTypeInvalid   = ledger.ErrChangeTypeInvalid
	ErrEntityKeyInvalid    = ledger.ErrEntityKeyInvalid
	ErrDuplicateEntity     = ledger.ErrDuplicateEntity
	ErrEntityNotFound      = ledger.ErrEntityNotFound
	ErrPayloadSchemaFailed = ledger.ErrPayloadSchemaFailed
)
