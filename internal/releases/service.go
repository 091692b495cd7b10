package releases

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/goliatone/go-staging/internal/identity"
	"github.com/goliatone/go-staging/internal/logging"
	"github.com/goliatone/go-staging/pkg/interfaces"
	"github.com/google/uuid"
)

// Service drives the release lifecycle: open for edits, close for review,
// deploy into the production history, roll back when a deploy goes bad.
type Service interface {
	CreateRelease(ctx context.Context, input CreateReleaseInput) (*Release, error)
	GetRelease(ctx context.Context, id uuid.UUID) (*Release, error)
	GetReleaseByName(ctx context.Context, name string) (*Release, error)
	ListReleases(ctx context.Context) ([]*Release, error)
	ListReleasesByStatus(ctx context.Context, status Status) ([]*Release, error)
	CloseRelease(ctx context.Context, input CloseReleaseInput) (*Release, error)
	ReopenRelease(ctx context.Context, id uuid.UUID) (*Release, error)
	DeployRelease(ctx context.Context, input DeployReleaseInput) (*Release, error)
	RollbackRelease(ctx context.Context, input RollbackReleaseInput) (*Release, error)
	ActiveRelease(ctx context.Context) (*Release, error)
	DeployHistory(ctx context.Context) ([]*Release, error)
}

// ConflictDetector inspects a release for edits that collide with production
// movement or with other open releases. Results are recorded at close time.
type ConflictDetector interface {
	Detect(ctx context.Context, release *Release) (*ConflictSummary, error)
}

// CreateReleaseInput captures the information required to open a release.
type CreateReleaseInput struct {
	Name        string
	Description *string
	CreatedBy   uuid.UUID
}

// CloseReleaseInput freezes a release and records its conflict summary.
type CloseReleaseInput struct {
	ReleaseID uuid.UUID
	ClosedBy  uuid.UUID
}

// DeployReleaseInput promotes a closed release into the production history.
type DeployReleaseInput struct {
	ReleaseID  uuid.UUID
	DeployedBy uuid.UUID
}

// RollbackReleaseInput restores a previously deployed release as production.
type RollbackReleaseInput struct {
	TargetReleaseID uuid.UUID
	RequestedBy     uuid.UUID
}

var ErrReleaseRepositoryRequired = errors.New("releases: repository required")

// IDDeriver produces release IDs from names.
type IDDeriver func(name string) uuid.UUID

// ServiceOption configures service behaviour.
type ServiceOption func(*service)

// WithIDDeriver overrides release ID derivation.
func WithIDDeriver(deriver IDDeriver) ServiceOption {
	return func(s *service) {
		if deriver != nil {
			s.id = deriver
		}
	}
}

// WithNow overrides the time source (primarily for tests).
func WithNow(now func() time.Time) ServiceOption {
	return func(s *service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithConflictDetector installs the detector consulted when a release closes.
func WithConflictDetector(detector ConflictDetector) ServiceOption {
	return func(s *service) {
		s.detector = detector
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
	repo     Repository
	detector ConflictDetector
	id       IDDeriver
	now      func() time.Time
	logger   interfaces.Logger
}

// NewService constructs a release service instance.
func NewService(repo Repository, opts ...ServiceOption) Service {
	if repo == nil {
		panic(ErrReleaseRepositoryRequired)
	}

	s := &service{
		repo:   repo,
		id:     identity.ReleaseUUID,
		now:    time.Now,
		logger: logging.NoOp(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *service) CreateRelease(ctx context.Context, input CreateReleaseInput) (*Release, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, ErrReleaseNameRequired
	}

	if existing, err := s.repo.GetByName(ctx, name); err == nil && existing != nil {
		return nil, ErrReleaseNameExists
	} else if err != nil {
		var nf *NotFoundError
		if !errors.As(err, &nf) {
			return nil, err
		}
	}

	release := &Release{
		ID:          s.id(name),
		Name:        name,
		Description: input.Description,
		Status:      StatusOpen,
		CreatedBy:   input.CreatedBy,
		CreatedAt:   s.now().UTC(),
	}

	// Capture the branch point: the production release that was active when
	// this release opened. Conflict detection diffs against this baseline.
	if active, err := s.repo.Active(ctx); err == nil && active != nil {
		branchID := active.ID
		release.BranchReleaseID = &branchID
	} else if err != nil {
		var nf *NotFoundError
		if !errors.As(err, &nf) {
			return nil, err
		}
	}

	created, err := s.repo.Create(ctx, release)
	if err != nil {
		return nil, err
	}
	s.logger.Info("release created", "release_id", created.ID, "name", created.Name)
	return created, nil
}

func (s *service) GetRelease(ctx context.Context, id uuid.UUID) (*Release, error) {
	if id == uuid.Nil {
		return nil, ErrReleaseIDRequired
	}
	return s.repo.GetByID(ctx, id)
}

func (s *service) GetReleaseByName(ctx context.Context, name string) (*Release, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrReleaseNameRequired
	}
	return s.repo.GetByName(ctx, name)
}

func (s *service) ListReleases(ctx context.Context) ([]*Release, error) {
	return s.repo.List(ctx)
}

func (s *service) ListReleasesByStatus(ctx context.Context, status Status) ([]*Release, error) {
	if !status.Valid() {
		return nil, ErrReleaseStatusInvalid
	}
	return s.repo.ListByStatus(ctx, status)
}

func (s *service) CloseRelease(ctx context.Context, input CloseReleaseInput) (*Release, error) {
	release, err := s.GetRelease(ctx, input.ReleaseID)
	if err != nil {
		return nil, err
	}
	if release.Status == StatusClosed {
		return release, nil
	}
	if release.Status != StatusOpen {
		return nil, &StatusInvalidError{ReleaseID: release.ID, From: release.Status, To: StatusClosed}
	}

	summary := &ConflictSummary{}
	if s.detector != nil {
		summary, err = s.detector.Detect(ctx, release)
		if err != nil {
			return nil, err
		}
	}

	now := s.now().UTC()
	release.Status = StatusClosed
	closedBy := input.ClosedBy
	release.ClosedBy = &closedBy
	release.ClosedAt = &now
	release.HasConflicts = summary.HasConflicts
	release.ConflictDetail = summaryDetail(summary)

	updated, err := s.repo.Update(ctx, release)
	if err != nil {
		return nil, err
	}
	s.logger.Info("release closed",
		"release_id", updated.ID,
		"has_conflicts", updated.HasConflicts,
		"conflict_count", summary.TotalCount,
	)
	return updated, nil
}

func (s *service) ReopenRelease(ctx context.Context, id uuid.UUID) (*Release, error) {
	release, err := s.GetRelease(ctx, id)
	if err != nil {
		return nil, err
	}
	if release.Status == StatusOpen {
		return release, nil
	}
	if release.Status != StatusClosed {
		return nil, &StatusInvalidError{ReleaseID: release.ID, From: release.Status, To: StatusOpen}
	}

	// Conflict results are only meaningful for the frozen set of edits; a
	// reopened release gets a fresh detection pass at its next close.
	release.Status = StatusOpen
	release.HasConflicts = false
	release.ConflictDetail = nil
	release.ClosedBy = nil
	release.ClosedAt = nil

	updated, err := s.repo.Update(ctx, release)
	if err != nil {
		return nil, err
	}
	s.logger.Info("release reopened", "release_id", updated.ID)
	return updated, nil
}

func (s *service) DeployRelease(ctx context.Context, input DeployReleaseInput) (*Release, error) {
	release, err := s.GetRelease(ctx, input.ReleaseID)
	if err != nil {
		return nil, err
	}

	switch release.Status {
	case StatusDeployed:
		// Repeat deploys keep the original sequence. Handing out a new one
		// would reorder the production history.
		return release, nil
	case StatusRolledBack:
		return nil, &StatusInvalidError{ReleaseID: release.ID, From: release.Status, To: StatusDeployed}
	case StatusOpen:
		return nil, ErrReleaseNotClosed
	}

	if release.HasConflicts {
		return nil, &ConflictsUnresolvedError{
			ReleaseID: release.ID,
			Summary:   detailSummary(release.ConflictDetail),
		}
	}

	deployed, err := s.repo.Deploy(ctx, release.ID, input.DeployedBy, s.now().UTC())
	if err != nil {
		return nil, err
	}
	s.logger.Info("release deployed",
		"release_id", deployed.ID,
		"deploy_seq", derefSeq(deployed.DeploySeq),
	)
	return deployed, nil
}

func (s *service) RollbackRelease(ctx context.Context, input RollbackReleaseInput) (*Release, error) {
	target, err := s.GetRelease(ctx, input.TargetReleaseID)
	if err != nil {
		return nil, err
	}
	if target.DeploySeq == nil {
		return nil, &InvalidRollbackTargetError{ReleaseID: target.ID, Reason: "release was never deployed"}
	}

	if active, err := s.repo.Active(ctx); err == nil && active != nil {
		if active.ID == target.ID {
			return nil, &InvalidRollbackTargetError{ReleaseID: target.ID, Reason: "release is already active"}
		}
	} else if err != nil {
		var nf *NotFoundError
		if !errors.As(err, &nf) {
			return nil, err
		}
	}

	restored, err := s.repo.Rollback(ctx, target.ID, s.now().UTC())
	if err != nil {
		return nil, err
	}
	s.logger.Info("release rolled back",
		"target_release_id", restored.ID,
		"deploy_seq", derefSeq(restored.DeploySeq),
		"requested_by", input.RequestedBy,
	)
	return restored, nil
}

func (s *service) ActiveRelease(ctx context.Context) (*Release, error) {
	return s.repo.Active(ctx)
}

func (s *service) DeployHistory(ctx context.Context) ([]*Release, error) {
	return s.repo.ListDeployHistory(ctx)
}

// summaryDetail flattens a conflict summary into the jsonb column stored on
// the release row.
func summaryDetail(summary *ConflictSummary) map[string]any {
	if summary == nil || !summary.HasConflicts {
		return nil
	}
	conflicts := make([]any, 0, len(summary.Conflicts))
	for _, conflict := range summary.Conflicts {
		conflicts = append(conflicts, map[string]any{
			"entity_id":   conflict.EntityID.String(),
			"entity_type": conflict.EntityType,
			"key":         conflict.Key,
			"kind":        string(conflict.Kind),
			"release_id":  conflict.ReleaseID.String(),
		})
	}
	return map[string]any{
		"total_count":     summary.TotalCount,
		"overwrite_count": summary.OverwriteCount,
		"parallel_count":  summary.ParallelCount,
		"conflicts":       conflicts,
	}
}

// detailSummary rebuilds the counts recorded at close time. Entries come back
// from jsonb as float64.
func detailSummary(detail map[string]any) ConflictSummary {
	summary := ConflictSummary{HasConflicts: true}
	if detail == nil {
		return summary
	}
	summary.TotalCount = intDetail(detail["total_count"])
	summary.OverwriteCount = intDetail(detail["overwrite_count"])
	summary.ParallelCount = intDetail(detail["parallel_count"])
	return summary
}

func intDetail(value any) int {
	switch v := value.(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

func derefSeq(seq *int64) int64 {
	if seq == nil {
		return 0
	}
	return *seq
}
