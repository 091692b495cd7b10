package identity

import (
	"strings"

	hashid "github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
)

// UUID derives a deterministic UUID from a stable key using go-hashid.
//
// Callers must ensure key construction prevents cross-entity collisions (prefix by domain/type).
func UUID(key string) uuid.UUID {
	trimmed := strings.TrimSpace(key)
	if trimmed == "" {
		return uuid.Nil
	}
	uid, err := hashid.NewUUID(trimmed, hashid.WithHashAlgorithm(hashid.SHA256), hashid.WithNormalization(true))
	if err != nil || uid == uuid.Nil {
		return uuid.NewSHA1(uuid.NameSpaceOID, []byte(trimmed))
	}
	return uid
}

// EntityUUID derives a stable id for a keyed entity so repeated seeds converge.
func EntityUUID(entityType, key string) uuid.UUID {
	return UUID("go-staging:entity:" + strings.ToLower(strings.TrimSpace(entityType)) + ":" + strings.TrimSpace(key))
}

// ReleaseUUID derives a stable id for a named release.
func ReleaseUUID(name string) uuid.UUID {
	return UUID("go-staging:release:" + strings.TrimSpace(name))
}
