package releases

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrReleaseNameRequired   = errors.New("releases: name is required")
	ErrReleaseNameExists     = errors.New("releases: name already exists")
	ErrReleaseIDRequired     = errors.New("releases: release id required")
	ErrReleaseNotFound       = errors.New("releases: release not found")
	ErrReleaseNotEditable    = errors.New("releases: release is not editable")
	ErrReleaseNotClosed      = errors.New("releases: release must be closed before deploy")
	ErrConflictsUnresolved   = errors.New("releases: unresolved conflicts block deployment")
	ErrInvalidRollbackTarget = errors.New("releases: invalid rollback target")
	ErrReleaseStatusInvalid  = errors.New("releases: status transition invalid")
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
	return ErrReleaseNotFound
}

// ReleaseNotEditableError reports a write attempted against a non-open release.
// It is always surfaced verbatim so callers can detect stale release contexts.
type ReleaseNotEditableError struct {
	ReleaseID uuid.UUID
	Status    Status
}

func (e *ReleaseNotEditableError) Error() string {
	if e == nil {
		return ErrReleaseNotEditable.Error()
	}
	return fmt.Sprintf("%s: id=%s status=%s", ErrReleaseNotEditable.Error(), e.ReleaseID, e.Status)
}

func (e *ReleaseNotEditableError) Unwrap() error {
	return ErrReleaseNotEditable
}

// ConflictsUnresolvedError rejects deployment of a release that still carries conflicts.
type ConflictsUnresolvedError struct {
	ReleaseID uuid.UUID
	Summary   ConflictSummary
}

func (e *ConflictsUnresolvedError) Error() string {
	if e == nil {
		return ErrConflictsUnresolved.Error()
	}
	if len(e.Summary.Conflicts) == 0 {
		return fmt.Sprintf("%s: id=%s total=%d", ErrConflictsUnresolved.Error(), e.ReleaseID, e.Summary.TotalCount)
	}
	ids := make([]string, 0, len(e.Summary.Conflicts))
	for _, conflict := range e.Summary.Conflicts {
		ids = append(ids, conflict.EntityID.String())
	}
	return fmt.Sprintf("%s: id=%s entities=%s", ErrConflictsUnresolved.Error(), e.ReleaseID, strings.Join(ids, ","))
}

func (e *ConflictsUnresolvedError) Unwrap() error {
	return ErrConflictsUnresolved
}

// InvalidRollbackTargetError explains why a rollback target was rejected.
type InvalidRollbackTargetError struct {
	ReleaseID uuid.UUID
	Reason    string
}

func (e *InvalidRollbackTargetError) Error() string {
	if e == nil {
		return ErrInvalidRollbackTarget.Error()
	}
	reason := strings.TrimSpace(e.Reason)
	if reason == "" {
		return fmt.Sprintf("%s: id=%s", ErrInvalidRollbackTarget.Error(), e.ReleaseID)
	}
	return fmt.Sprintf("%s: id=%s (%s)", ErrInvalidRollbackTarget.Error(), e.ReleaseID, reason)
}

func (e *InvalidRollbackTargetError) Unwrap() error {
	return ErrInvalidRollbackTarget
}

// StatusInvalidError reports an attempted lifecycle transition the state machine forbids.
type StatusInvalidError struct {
	ReleaseID uuid.UUID
	From      Status
	To        Status
}

func (e *StatusInvalidError) Error() string {
	if e == nil {
		return ErrReleaseStatusInvalid.Error()
	}
	return fmt.Sprintf("%s: id=%s %s->%s", ErrReleaseStatusInvalid.Error(), e.ReleaseID, e.From, e.To)
}

func (e *StatusInvalidError) Unwrap() error {
	return ErrReleaseStatusInvalid
}
