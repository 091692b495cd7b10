package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/goliatone/go-staging/releases"
	"github.com/google/uuid"
)

type memoryStore struct {
	mu       sync.RWMutex
	gate     ReleaseGate
	entities map[uuid.UUID]*Entity
	byKey    map[string]uuid.UUID
	versions map[uuid.UUID]map[uuid.UUID]*EntityVersion
	audits   []*AuditEvent
}

// MemoryStoreOption configures the in-memory store.
type MemoryStoreOption func(*memoryStore)

// WithReleaseGate installs the release editability check the store runs before
// accepting a write. It is the in-memory analogue of the database trigger that
// guards the version table.
func WithReleaseGate(gate ReleaseGate) MemoryStoreOption {
	return func(m *memoryStore) {
		m.gate = gate
	}
}

// NewMemoryStore constructs an in-memory ledger store.
func NewMemoryStore(opts ...MemoryStoreOption) Store {
	m := &memoryStore{
		entities: make(map[uuid.UUID]*Entity),
		byKey:    make(map[string]uuid.UUID),
		versions: make(map[uuid.UUID]map[uuid.UUID]*EntityVersion),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func entityKeyIndex(entityType, key string) string {
	return entityType + "\x00" + key
}

func (m *memoryStore) WriteVersion(ctx context.Context, record WriteRecord) (*EntityVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	version := record.Version
	if m.gate != nil {
		status, err := m.gate.StatusOf(ctx, version.ReleaseID)
		if err != nil {
			return nil, err
		}
		if !status.Editable() {
			return nil, &releases.ReleaseNotEditableError{ReleaseID: version.ReleaseID, Status: status}
		}
	}

	if record.Entity != nil {
		entity := cloneEntity(record.Entity)
		m.entities[entity.ID] = entity
		if entity.Key != "" {
			m.byKey[entityKeyIndex(entity.EntityType, entity.Key)] = entity.ID
		}
	}

	byRelease, ok := m.versions[version.EntityID]
	if !ok {
		byRelease = make(map[uuid.UUID]*EntityVersion)
		m.versions[version.EntityID] = byRelease
	}
	byRelease[version.ReleaseID] = cloneVersion(version)

	if record.Audit != nil {
		m.audits = append(m.audits, cloneAudit(record.Audit))
	}
	return cloneVersion(version), nil
}

func (m *memoryStore) GetEntity(_ context.Context, id uuid.UUID) (*Entity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entity, ok := m.entities[id]
	if !ok {
		return nil, &NotFoundError{Resource: "entity", Key: id.String()}
	}
	return cloneEntity(entity), nil
}

func (m *memoryStore) GetEntityByKey(_ context.Context, entityType, key string) (*Entity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byKey[entityKeyIndex(entityType, key)]
	if !ok {
		return nil, &NotFoundError{Resource: "entity", Key: key}
	}
	return cloneEntity(m.entities[id]), nil
}

func (m *memoryStore) ListEntities(_ context.Context, entityType string) ([]*Entity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	records := make([]*Entity, 0, len(m.entities))
	for _, entity := range m.entities {
		if entityType != "" && entity.EntityType != entityType {
			continue
		}
		records = append(records, cloneEntity(entity))
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].EntityType == records[j].EntityType {
			return records[i].Key < records[j].Key
		}
		return records[i].EntityType < records[j].EntityType
	})
	return records, nil
}

func (m *memoryStore) GetVersion(_ context.Context, entityID, releaseID uuid.UUID) (*EntityVersion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if byRelease, ok := m.versions[entityID]; ok {
		if version, ok := byRelease[releaseID]; ok {
			return cloneVersion(version), nil
		}
	}
	return nil, &NotFoundError{Resource: "entity version", Key: entityID.String()}
}

func (m *memoryStore) ListReleaseVersions(_ context.Context, releaseID uuid.UUID) ([]*EntityVersion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var records []*EntityVersion
	for _, byRelease := range m.versions {
		if version, ok := byRelease[releaseID]; ok {
			records = append(records, cloneVersion(version))
		}
	}
	sortVersions(records)
	return records, nil
}

func (m *memoryStore) ListEntityVersions(_ context.Context, entityID uuid.UUID) ([]*EntityVersion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var records []*EntityVersion
	for _, version := range m.versions[entityID] {
		records = append(records, cloneVersion(version))
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].UpdatedAt.Before(records[j].UpdatedAt)
	})
	return records, nil
}

func (m *memoryStore) ListVersionsForReleases(_ context.Context, releaseIDs []uuid.UUID) ([]*EntityVersion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	wanted := make(map[uuid.UUID]struct{}, len(releaseIDs))
	for _, id := range releaseIDs {
		wanted[id] = struct{}{}
	}
	var records []*EntityVersion
	for _, byRelease := range m.versions {
		for releaseID, version := range byRelease {
			if _, ok := wanted[releaseID]; ok {
				records = append(records, cloneVersion(version))
			}
		}
	}
	sortVersions(records)
	return records, nil
}

func (m *memoryStore) ListAuditEvents(_ context.Context, filter AuditFilter) ([]*AuditEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var records []*AuditEvent
	for _, event := range m.audits {
		if filter.EntityID != nil && event.EntityID != *filter.EntityID {
			continue
		}
		if filter.ReleaseID != nil && event.ReleaseID != *filter.ReleaseID {
			continue
		}
		if filter.Since != nil && event.ChangedAt.Before(*filter.Since) {
			continue
		}
		if filter.Until != nil && !event.ChangedAt.Before(*filter.Until) {
			continue
		}
		records = append(records, cloneAudit(event))
		if filter.Limit > 0 && len(records) >= filter.Limit {
			break
		}
	}
	return records, nil
}

func (m *memoryStore) PurgeAuditEvents(_ context.Context, olderThan time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.audits[:0]
	var purged int64
	for _, event := range m.audits {
		if event.ChangedAt.Before(olderThan) {
			purged++
			continue
		}
		kept = append(kept, event)
	}
	m.audits = kept
	return purged, nil
}

func sortVersions(records []*EntityVersion) {
	sort.Slice(records, func(i, j int) bool {
		if records[i].EntityType == records[j].EntityType {
			return records[i].Key < records[j].Key
		}
		return records[i].EntityType < records[j].EntityType
	})
}

func cloneEntity(entity *Entity) *Entity {
	if entity == nil {
		return nil
	}
	cloned := *entity
	cloned.Versions = nil
	if entity.DeletedAt != nil {
		deletedAt := *entity.DeletedAt
		cloned.DeletedAt = &deletedAt
	}
	return &cloned
}

func cloneVersion(version *EntityVersion) *EntityVersion {
	if version == nil {
		return nil
	}
	cloned := *version
	cloned.Entity = nil
	if version.Name != nil {
		name := *version.Name
		cloned.Name = &name
	}
	if version.BrandID != nil {
		brand := *version.BrandID
		cloned.BrandID = &brand
	}
	if version.JurisdictionID != nil {
		jurisdiction := *version.JurisdictionID
		cloned.JurisdictionID = &jurisdiction
	}
	if version.LocaleID != nil {
		locale := *version.LocaleID
		cloned.LocaleID = &locale
	}
	if version.ChangeReason != nil {
		reason := *version.ChangeReason
		cloned.ChangeReason = &reason
	}
	cloned.Payload = cloneMap(version.Payload)
	return &cloned
}

func cloneAudit(event *AuditEvent) *AuditEvent {
	if event == nil {
		return nil
	}
	cloned := *event
	cloned.OldData = cloneMap(event.OldData)
	cloned.NewData = cloneMap(event.NewData)
	cloned.RequestCtx = cloneMap(event.RequestCtx)
	return &cloned
}

func cloneMap(source map[string]any) map[string]any {
	if source == nil {
		return nil
	}
	cloned := make(map[string]any, len(source))
	for k, v := range source {
		cloned[k] = v
	}
	return cloned
}
