package releases

import "github.com/goliatone/go-staging/releases"

// Re-export public release types so internal packages share one set of models.
type (
	Release         = releases.Release
	Status          = releases.Status
	Conflict        = releases.Conflict
	ConflictKind    = releases.ConflictKind
	ConflictSummary = releases.ConflictSummary

	NotFoundError              = releases.NotFoundError
	ReleaseNotEditableError    = releases.ReleaseNotEditableError
	ConflictsUnresolvedError   = releases.ConflictsUnresolvedError
	InvalidRollbackTargetError = releases.InvalidRollbackTargetError
	StatusInvalidError         = releases.StatusInvalidError
)

const (
	StatusOpen       = releases.StatusOpen
	StatusClosed     = releases.StatusClosed
	StatusDeployed   = releases.StatusDeployed
	StatusRolledBack = releases.StatusRolledBack

	ConflictOverwrite = releases.ConflictOverwrite
	ConflictParallel  = releases.ConflictParallel
)

var (
	ErrReleaseNameRequired   = releases.ErrReleaseNameRequired
	ErrReleaseNameExists     = releases.ErrReleaseNameExists
	ErrReleaseIDRequired     = releases.ErrReleaseIDRequired
	ErrReleaseNotFound       = releases.ErrReleaseNotFound
	ErrReleaseNotEditable    = releases.ErrReleaseNotEditable
	ErrReleaseNotClosed      = releases.ErrReleaseNotClosed
	ErrConflictsUnresolved   = releases.ErrConflictsUnresolved
	ErrInvalidRollbackTarget = releases.ErrInvalidRollbackTarget
	ErrReleaseStatusInvalid  = releases.ErrReleaseStatusInvalid
)
