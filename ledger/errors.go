package ledger

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrEntityTypeRequired  = errors.New("ledger: entity type is required")
	ErrReleaseIDRequired   = errors.New("ledger: release id required")
	ErrEntityIDRequired    = errors.New("ledger: entity id required")
	ErrActorRequired       = errors.New("ledger: actor id required")
	ErrChangeTypeInvalid   = errors.New("ledger: change type is invalid")
	ErrEntityKeyInvalid    = errors.New("ledger: entity key contains invalid characters")
	ErrDuplicateEntity     = errors.New("ledger: entity key already exists")
	ErrEntityNotFound      = errors.New("ledger: entity not found")
	ErrPayloadSchemaFailed = errors.New("ledger: payload failed schema validation")
)

// NotFoundError represents missing records from repository lookups.
type NotFoundError struct {
	Resource string
	Key      string
}

func (e *NotFoundError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	return fmt.Sprintf("%s %q not found", e.Resource, e.Key)
}

func (e *NotFoundError) Unwrap() error {
	return ErrEntityNotFound
}

// DuplicateEntityError reports a uniqueness violation on a keyed entity.
type DuplicateEntityError struct {
	EntityType string
	Key        string
	ExistingID uuid.UUID
}

func (e *DuplicateEntityError) Error() string {
	if e == nil {
		return ErrDuplicateEntity.Error()
	}
	key := strings.TrimSpace(e.Key)
	if key == "" {
		return ErrDuplicateEntity.Error()
	}
	return fmt.Sprintf("%s: type=%s key=%s", ErrDuplicateEntity.Error(), e.EntityType, key)
}

func (e *DuplicateEntityError) Unwrap() error {
	return ErrDuplicateEntity
}
