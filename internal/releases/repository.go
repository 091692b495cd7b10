package releases

import (
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// NewReleaseRepository creates a repository for release records.
func NewReleaseRepository(db *bun.DB) repository.Repository[*Release] {
	return repository.MustNewRepository(db, repository.ModelHandlers[*Release]{
		NewRecord: func() *Release { return &Release{} },
		GetID: func(release *Release) uuid.UUID {
			return release.ID
		},
		SetID: func(release *Release, id uuid.UUID) {
			release.ID = id
		},
		GetIdentifier: func() string {
			return "name"
		},
		GetIdentifierValue: func(release *Release) string {
			return release.Name
		},
	})
}
