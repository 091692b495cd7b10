package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/goliatone/go-slug"
	"github.com/goliatone/go-staging/internal/identity"
	"github.com/goliatone/go-staging/internal/logging"
	"github.com/goliatone/go-staging/pkg/interfaces"
	"github.com/google/uuid"
)

// Service owns entity version writes. Every mutation lands in exactly one
// open release and leaves an audit event behind; there is no way to change
// an entity outside a release.
type Service interface {
	WriteVersion(ctx context.Context, input WriteVersionInput) (*EntityVersion, error)
	DeleteVersion(ctx context.Context, input DeleteVersionInput) (*EntityVersion, error)
	GetVersion(ctx context.Context, entityID, releaseID uuid.UUID) (*EntityVersion, error)
	ListReleaseVersions(ctx context.Context, releaseID uuid.UUID) ([]*EntityVersion, error)
	ListEntityVersions(ctx context.Context, entityID uuid.UUID) ([]*EntityVersion, error)
	GetEntity(ctx context.Context, id uuid.UUID) (*Entity, error)
	GetEntityByKey(ctx context.Context, entityType, key string) (*Entity, error)
	ListEntities(ctx context.Context, entityType string) ([]*Entity, error)
	ListAuditEvents(ctx context.Context, filter AuditFilter) ([]*AuditEvent, error)
	PurgeAuditEvents(ctx context.Context, olderThan time.Time) (int64, error)
}

// PayloadValidator checks a version payload against the schema registered for
// its entity type. Implementations return nil for unknown types.
type PayloadValidator interface {
	ValidatePayload(entityType string, payload map[string]any) error
}

// WriteVersionInput captures one entity edit inside a release. The entity is
// addressed either by EntityID or by (EntityType, Key); a keyed entity that
// does not exist yet is created as part of the write.
type WriteVersionInput struct {
	EntityID   *uuid.UUID
	EntityType string
	Key        string
	ReleaseID  uuid.UUID

	Name           *string
	BrandID        *int64
	JurisdictionID *int64
	LocaleID       *int64
	Payload        map[string]any
	Status         string
	ChangeReason   *string

	ActorID    uuid.UUID
	RequestCtx map[string]any
}

// DeleteVersionInput marks an entity deleted within a release.
type DeleteVersionInput struct {
	EntityID     uuid.UUID
	ReleaseID    uuid.UUID
	ChangeReason *string
	ActorID      uuid.UUID
	RequestCtx   map[string]any
}

var ErrLedgerStoreRequired = errors.New("ledger: store required")

const (
	opVersionCreate = "entity_version.create"
	opVersionUpdate = "entity_version.update"
	opVersionDelete = "entity_version.delete"
)

// IDGenerator produces identifiers for new rows.
type IDGenerator func() uuid.UUID

// ServiceOption configures service behaviour.
type ServiceOption func(*service)

// WithNow overrides the time source (primarily for tests).
func WithNow(now func() time.Time) ServiceOption {
	return func(s *service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator overrides row ID generation.
func WithIDGenerator(generator IDGenerator) ServiceOption {
	return func(s *service) {
		if generator != nil {
			s.idgen = generator
		}
	}
}

// WithPayloadValidator installs schema validation for version payloads.
func WithPayloadValidator(validator PayloadValidator) ServiceOption {
	return func(s *service) {
		s.validator = validator
	}
}

// WithLogger attaches a logger to the service.
func WithLogger(logger interfaces.Logger) ServiceOption {
	return func(s *service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

type service struct {
	store     Store
	validator PayloadValidator
	idgen     IDGenerator
	now       func() time.Time
	logger    interfaces.Logger
}

// NewService constructs a ledger service instance.
func NewService(store Store, opts ...ServiceOption) Service {
	if store == nil {
		panic(ErrLedgerStoreRequired)
	}

	s := &service{
		store:  store,
		idgen:  uuid.New,
		now:    time.Now,
		logger: logging.NoOp(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *service) WriteVersion(ctx context.Context, input WriteVersionInput) (*EntityVersion, error) {
	entityType := strings.TrimSpace(input.EntityType)
	if entityType == "" {
		return nil, ErrEntityTypeRequired
	}
	if input.ReleaseID == uuid.Nil {
		return nil, ErrReleaseIDRequired
	}
	if input.ActorID == uuid.Nil {
		return nil, ErrActorRequired
	}

	key, err := normalizeEntityKey(input.Key)
	if err != nil {
		return nil, err
	}

	if s.validator != nil {
		if err := s.validator.ValidatePayload(entityType, input.Payload); err != nil {
			return nil, errors.Join(ErrPayloadSchemaFailed, err)
		}
	}

	entity, created, err := s.resolveEntity(ctx, input.EntityID, entityType, key)
	if err != nil {
		return nil, err
	}
	if key == "" {
		// Writes addressed by entity ID inherit the entity's key so version
		// rows stay self-describing.
		key = entity.Key
	}

	existing, err := s.existingVersion(ctx, entity.ID, input.ReleaseID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	version := &EntityVersion{
		ID:             s.idgen(),
		EntityID:       entity.ID,
		ReleaseID:      input.ReleaseID,
		EntityType:     entityType,
		Key:            key,
		Name:           input.Name,
		BrandID:        input.BrandID,
		JurisdictionID: input.JurisdictionID,
		LocaleID:       input.LocaleID,
		Payload:        input.Payload,
		Status:         versionStatus(input.Status),
		ChangeType:     ChangeCreate,
		ChangeReason:   input.ChangeReason,
		CreatedBy:      input.ActorID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	operation := opVersionCreate
	if existing != nil {
		// Repeat writes inside the same open release land on the existing
		// row and keep its original change marker.
		version.ID = existing.ID
		version.CreatedBy = existing.CreatedBy
		version.CreatedAt = existing.CreatedAt
		version.ChangeType = repeatChangeType(existing.ChangeType)
		operation = opVersionUpdate
	} else if !created {
		version.ChangeType = ChangeUpdate
	}

	record := WriteRecord{
		Version: version,
		Audit: &AuditEvent{
			ID:         s.idgen(),
			EntityID:   entity.ID,
			ReleaseID:  input.ReleaseID,
			EntityType: entityType,
			Operation:  operation,
			OldData:    versionSnapshot(existing),
			NewData:    versionSnapshot(version),
			ChangedBy:  input.ActorID,
			ChangedAt:  now,
			RequestCtx: input.RequestCtx,
		},
	}
	if created {
		record.Entity = entity
	}

	written, err := s.store.WriteVersion(ctx, record)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("version written",
		"entity_id", written.EntityID,
		"release_id", written.ReleaseID,
		"entity_type", written.EntityType,
		"change_type", written.ChangeType,
	)
	return written, nil
}

func (s *service) DeleteVersion(ctx context.Context, input DeleteVersionInput) (*EntityVersion, error) {
	if input.EntityID == uuid.Nil {
		return nil, ErrEntityIDRequired
	}
	if input.ReleaseID == uuid.Nil {
		return nil, ErrReleaseIDRequired
	}
	if input.ActorID == uuid.Nil {
		return nil, ErrActorRequired
	}

	entity, err := s.store.GetEntity(ctx, input.EntityID)
	if err != nil {
		return nil, err
	}

	existing, err := s.existingVersion(ctx, entity.ID, input.ReleaseID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	version := &EntityVersion{
		ID:           s.idgen(),
		EntityID:     entity.ID,
		ReleaseID:    input.ReleaseID,
		EntityType:   entity.EntityType,
		Key:          entity.Key,
		ChangeType:   ChangeDelete,
		IsDeleted:    true,
		ChangeReason: input.ChangeReason,
		CreatedBy:    input.ActorID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if existing != nil {
		version.ID = existing.ID
		version.CreatedBy = existing.CreatedBy
		version.CreatedAt = existing.CreatedAt
		// The prior edit content stays on the row so undelete within the
		// release can restore it from audit history.
		version.Name = existing.Name
		version.BrandID = existing.BrandID
		version.JurisdictionID = existing.JurisdictionID
		version.LocaleID = existing.LocaleID
		version.Payload = existing.Payload
		version.Status = existing.Status
	}

	record := WriteRecord{
		Version: version,
		Audit: &AuditEvent{
			ID:         s.idgen(),
			EntityID:   entity.ID,
			ReleaseID:  input.ReleaseID,
			EntityType: entity.EntityType,
			Operation:  opVersionDelete,
			OldData:    versionSnapshot(existing),
			NewData:    versionSnapshot(version),
			ChangedBy:  input.ActorID,
			ChangedAt:  now,
			RequestCtx: input.RequestCtx,
		},
	}

	written, err := s.store.WriteVersion(ctx, record)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("version deleted",
		"entity_id", written.EntityID,
		"release_id", written.ReleaseID,
	)
	return written, nil
}

func (s *service) GetVersion(ctx context.Context, entityID, releaseID uuid.UUID) (*EntityVersion, error) {
	if entityID == uuid.Nil {
		return nil, ErrEntityIDRequired
	}
	if releaseID == uuid.Nil {
		return nil, ErrReleaseIDRequired
	}
	return s.store.GetVersion(ctx, entityID, releaseID)
}

func (s *service) ListReleaseVersions(ctx context.Context, releaseID uuid.UUID) ([]*EntityVersion, error) {
	if releaseID == uuid.Nil {
		return nil, ErrReleaseIDRequired
	}
	return s.store.ListReleaseVersions(ctx, releaseID)
}

func (s *service) ListEntityVersions(ctx context.Context, entityID uuid.UUID) ([]*EntityVersion, error) {
	if entityID == uuid.Nil {
		return nil, ErrEntityIDRequired
	}
	return s.store.ListEntityVersions(ctx, entityID)
}

func (s *service) GetEntity(ctx context.Context, id uuid.UUID) (*Entity, error) {
	if id == uuid.Nil {
		return nil, ErrEntityIDRequired
	}
	return s.store.GetEntity(ctx, id)
}

func (s *service) GetEntityByKey(ctx context.Context, entityType, key string) (*Entity, error) {
	entityType = strings.TrimSpace(entityType)
	if entityType == "" {
		return nil, ErrEntityTypeRequired
	}
	normalized, err := normalizeEntityKey(key)
	if err != nil {
		return nil, err
	}
	return s.store.GetEntityByKey(ctx, entityType, normalized)
}

func (s *service) ListEntities(ctx context.Context, entityType string) ([]*Entity, error) {
	return s.store.ListEntities(ctx, strings.TrimSpace(entityType))
}

func (s *service) ListAuditEvents(ctx context.Context, filter AuditFilter) ([]*AuditEvent, error) {
	return s.store.ListAuditEvents(ctx, filter)
}

func (s *service) PurgeAuditEvents(ctx context.Context, olderThan time.Time) (int64, error) {
	purged, err := s.store.PurgeAuditEvents(ctx, olderThan)
	if err != nil {
		return 0, err
	}
	if purged > 0 {
		s.logger.Info("audit events purged", "count", purged, "older_than", olderThan)
	}
	return purged, nil
}

// resolveEntity locates the target entity, creating a row for keyed entities
// seen for the first time. The returned bool reports whether the entity is new.
func (s *service) resolveEntity(ctx context.Context, entityID *uuid.UUID, entityType, key string) (*Entity, bool, error) {
	if entityID != nil && *entityID != uuid.Nil {
		entity, err := s.store.GetEntity(ctx, *entityID)
		if err != nil {
			return nil, false, err
		}
		return entity, false, nil
	}

	if key != "" {
		existing, err := s.store.GetEntityByKey(ctx, entityType, key)
		if err == nil && existing != nil {
			return existing, false, nil
		}
		var nf *NotFoundError
		if err != nil && !errors.As(err, &nf) {
			return nil, false, err
		}
		entity := &Entity{
			ID:         identity.EntityUUID(entityType, key),
			EntityType: entityType,
			Key:        key,
			CreatedAt:  s.now().UTC(),
		}
		// Deterministic IDs make key collisions show up as the same row:
		// a different key that hashes into an existing entity cannot happen,
		// but a re-registered key maps back to its original entity.
		if _, err := s.store.GetEntity(ctx, entity.ID); err == nil {
			return nil, false, &DuplicateEntityError{EntityType: entityType, Key: key, ExistingID: entity.ID}
		}
		return entity, true, nil
	}

	entity := &Entity{
		ID:         s.idgen(),
		EntityType: entityType,
		CreatedAt:  s.now().UTC(),
	}
	return entity, true, nil
}

func (s *service) existingVersion(ctx context.Context, entityID, releaseID uuid.UUID) (*EntityVersion, error) {
	existing, err := s.store.GetVersion(ctx, entityID, releaseID)
	if err != nil {
		var nf *NotFoundError
		if errors.As(err, &nf) {
			return nil, nil
		}
		return nil, err
	}
	return existing, nil
}

// repeatChangeType keeps the original marker for repeat edits; a write on top
// of an in-release delete flips the row back to a live update.
func repeatChangeType(previous ChangeType) ChangeType {
	if previous == ChangeDelete {
		return ChangeUpdate
	}
	return previous
}

func normalizeEntityKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", nil
	}
	normalized, err := slug.Normalize(key)
	if err != nil || normalized == "" {
		return "", ErrEntityKeyInvalid
	}
	return normalized, nil
}

func versionStatus(status string) string {
	status = strings.TrimSpace(status)
	if status == "" {
		return StatusDraft
	}
	return status
}

// versionSnapshot converts a version row into the generic map stored on audit
// events. Encoding through JSON keeps the snapshot shape identical to what
// API consumers see.
func versionSnapshot(version *EntityVersion) map[string]any {
	if version == nil {
		return nil
	}
	raw, err := json.Marshal(version)
	if err != nil {
		return nil
	}
	var snapshot map[string]any
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		return nil
	}
	return snapshot
}
