package releases

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memoryRepository struct {
	mu     sync.RWMutex
	byID   map[uuid.UUID]*Release
	byName map[string]uuid.UUID
}

// NewMemoryRepository constructs an in-memory release repository.
func NewMemoryRepository() Repository {
	return &memoryRepository{
		byID:   make(map[uuid.UUID]*Release),
		byName: make(map[string]uuid.UUID),
	}
}

func (m *memoryRepository) Create(_ context.Context, release *Release) (*Release, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cloned := cloneRelease(release)
	m.byID[cloned.ID] = cloned
	if name := normalizeReleaseName(cloned.Name); name != "" {
		m.byName[name] = cloned.ID
	}
	return cloneRelease(cloned), nil
}

func (m *memoryRepository) Update(_ context.Context, release *Release) (*Release, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.byID[release.ID]
	if !ok {
		return nil, &NotFoundError{Resource: "release", Key: release.ID.String()}
	}
	oldName := normalizeReleaseName(existing.Name)
	cloned := cloneRelease(release)
	m.byID[cloned.ID] = cloned

	newName := normalizeReleaseName(cloned.Name)
	if oldName != "" && oldName != newName {
		delete(m.byName, oldName)
	}
	if newName != "" {
		m.byName[newName] = cloned.ID
	}
	return cloneRelease(cloned), nil
}

func (m *memoryRepository) GetByID(_ context.Context, id uuid.UUID) (*Release, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	record, ok := m.byID[id]
	if !ok {
		return nil, &NotFoundError{Resource: "release", Key: id.String()}
	}
	return cloneRelease(record), nil
}

func (m *memoryRepository) GetByName(_ context.Context, name string) (*Release, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	normalized := normalizeReleaseName(name)
	id, ok := m.byName[normalized]
	if !ok {
		return nil, &NotFoundError{Resource: "release", Key: normalized}
	}
	return cloneRelease(m.byID[id]), nil
}

func (m *memoryRepository) List(_ context.Context) ([]*Release, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	records := make([]*Release, 0, len(m.byID))
	for _, record := range m.byID {
		records = append(records, cloneRelease(record))
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].Name < records[j].Name
		}
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})
	return records, nil
}

func (m *memoryRepository) ListByStatus(_ context.Context, status Status) ([]*Release, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	records := make([]*Release, 0, len(m.byID))
	for _, record := range m.byID {
		if record == nil || record.Status != status {
			continue
		}
		records = append(records, cloneRelease(record))
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})
	return records, nil
}

func (m *memoryRepository) ListDeployHistory(_ context.Context) ([]*Release, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.deployHistoryLocked(), nil
}

func (m *memoryRepository) Active(_ context.Context) (*Release, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	history := m.deployHistoryLocked()
	if len(history) == 0 {
		return nil, &NotFoundError{Resource: "release", Key: "active"}
	}
	return history[0], nil
}

func (m *memoryRepository) Deploy(_ context.Context, id uuid.UUID, deployedBy uuid.UUID, at time.Time) (*Release, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	record, ok := m.byID[id]
	if !ok {
		return nil, &NotFoundError{Resource: "release", Key: id.String()}
	}
	if record.Status != StatusClosed {
		return nil, &StatusInvalidError{ReleaseID: id, From: record.Status, To: StatusDeployed}
	}

	seq := m.nextDeploySeqLocked()
	record.DeploySeq = &seq
	record.Status = StatusDeployed
	record.DeployedBy = &deployedBy
	deployedAt := at
	record.DeployedAt = &deployedAt
	return cloneRelease(record), nil
}

func (m *memoryRepository) Rollback(_ context.Context, targetID uuid.UUID, at time.Time) (*Release, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	target, ok := m.byID[targetID]
	if !ok {
		return nil, &NotFoundError{Resource: "release", Key: targetID.String()}
	}
	if target.DeploySeq == nil {
		return nil, &InvalidRollbackTargetError{ReleaseID: targetID, Reason: "release was never deployed"}
	}

	for _, record := range m.byID {
		if record == nil || record.Status != StatusDeployed || record.DeploySeq == nil {
			continue
		}
		if *record.DeploySeq > *target.DeploySeq {
			record.Status = StatusRolledBack
		}
	}
	target.Status = StatusDeployed
	return cloneRelease(target), nil
}

// deployHistoryLocked returns deployed releases ordered by descending
// sequence. Callers must hold at least a read lock.
func (m *memoryRepository) deployHistoryLocked() []*Release {
	records := make([]*Release, 0, len(m.byID))
	for _, record := range m.byID {
		if record == nil || record.Status != StatusDeployed || record.DeploySeq == nil {
			continue
		}
		records = append(records, cloneRelease(record))
	}
	sort.Slice(records, func(i, j int) bool {
		return *records[i].DeploySeq > *records[j].DeploySeq
	})
	return records
}

// nextDeploySeqLocked derives the next sequence from every release that ever
// deployed, rolled back included, so a number is never handed out twice.
func (m *memoryRepository) nextDeploySeqLocked() int64 {
	var max int64
	for _, record := range m.byID {
		if record == nil || record.DeploySeq == nil {
			continue
		}
		if *record.DeploySeq > max {
			max = *record.DeploySeq
		}
	}
	return max + 1
}

func normalizeReleaseName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func cloneRelease(release *Release) *Release {
	if release == nil {
		return nil
	}
	cloned := *release
	if release.Description != nil {
		desc := *release.Description
		cloned.Description = &desc
	}
	if release.DeploySeq != nil {
		seq := *release.DeploySeq
		cloned.DeploySeq = &seq
	}
	if release.BranchReleaseID != nil {
		branch := *release.BranchReleaseID
		cloned.BranchReleaseID = &branch
	}
	if release.ConflictDetail != nil {
		detail := make(map[string]any, len(release.ConflictDetail))
		for k, v := range release.ConflictDetail {
			detail[k] = v
		}
		cloned.ConflictDetail = detail
	}
	if release.ClosedBy != nil {
		closedBy := *release.ClosedBy
		cloned.ClosedBy = &closedBy
	}
	if release.ClosedAt != nil {
		closedAt := *release.ClosedAt
		cloned.ClosedAt = &closedAt
	}
	if release.DeployedBy != nil {
		deployedBy := *release.DeployedBy
		cloned.DeployedBy = &deployedBy
	}
	if release.DeployedAt != nil {
		deployedAt := *release.DeployedAt
		cloned.DeployedAt = &deployedAt
	}
	return &cloned
}
