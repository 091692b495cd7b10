package diff

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sort"

	"github.com/goliatone/go-staging/diff"
	"github.com/goliatone/go-staging/internal/ledger"
	"github.com/goliatone/go-staging/internal/logging"
	"github.com/goliatone/go-staging/internal/resolver"
	"github.com/goliatone/go-staging/pkg/interfaces"
	"github.com/google/uuid"
)

// Re-export public diff types so internal packages share one set of models.
type (
	Result     = diff.Result
	Change     = diff.Change
	ChangeKind = diff.ChangeKind
	FieldDelta = diff.FieldDelta
	Summary    = diff.Summary
)

const (
	ChangeAdded    = diff.ChangeAdded
	ChangeModified = diff.ChangeModified
	ChangeDeleted  = diff.ChangeDeleted
)

// Service compares the canonical states of two releases. Both sides are fully
// resolved first, so the comparison reflects what a consumer would actually
// see, not just the rows each release touched.
type Service interface {
	Compare(ctx context.Context, fromReleaseID, toReleaseID uuid.UUID) (*Result, error)
	// CompareWithProduction diffs the production baseline against a release:
	// the answer to "what does deploying this release change?".
	CompareWithProduction(ctx context.Context, releaseID uuid.UUID) (*Result, error)
}

var ErrResolverRequired = errors.New("diff: resolver required")

// ServiceOption configures service behaviour.
type ServiceOption func(*service)

// WithLogger attaches a logger to the service.
func WithLogger(logger interfaces.Logger) ServiceOption {
	return func(s *service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

type service struct {
	resolver resolver.Service
	logger   interfaces.Logger
}

// NewService constructs a diff service instance.
func NewService(resolverService resolver.Service, opts ...ServiceOption) Service {
	if resolverService == nil {
		panic(ErrResolverRequired)
	}

	s := &service{
		resolver: resolverService,
		logger:   logging.NoOp(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *service) Compare(ctx context.Context, fromReleaseID, toReleaseID uuid.UUID) (*Result, error) {
	from, err := s.resolver.Resolve(ctx, fromReleaseID)
	if err != nil {
		return nil, err
	}
	to, err := s.resolver.Resolve(ctx, toReleaseID)
	if err != nil {
		return nil, err
	}
	return s.compareResolutions(fromReleaseID, toReleaseID, from, to), nil
}

func (s *service) CompareWithProduction(ctx context.Context, releaseID uuid.UUID) (*Result, error) {
	from, err := s.resolver.ResolveProduction(ctx)
	if err != nil {
		return nil, err
	}
	to, err := s.resolver.Resolve(ctx, releaseID)
	if err != nil {
		return nil, err
	}
	return s.compareResolutions(uuid.Nil, releaseID, from, to), nil
}

func (s *service) compareResolutions(fromID, toID uuid.UUID, from, to *resolver.Resolution) *Result {
	result := &Result{FromReleaseID: fromID, ToReleaseID: toID}

	entityIDs := make(map[uuid.UUID]struct{}, len(from.Versions)+len(to.Versions))
	for id := range from.Versions {
		entityIDs[id] = struct{}{}
	}
	for id := range to.Versions {
		entityIDs[id] = struct{}{}
	}

	for entityID := range entityIDs {
		before := liveVersion(from.Versions[entityID])
		after := liveVersion(to.Versions[entityID])

		switch {
		case before == nil && after == nil:
			// Deleted on both sides, or a deletion of something production
			// never had. Nothing a consumer can observe.
			continue
		case before == nil:
			result.Changes = append(result.Changes, Change{
				EntityID:   entityID,
				EntityType: after.EntityType,
				Key:        after.Key,
				Kind:       ChangeAdded,
			})
		case after == nil:
			result.Changes = append(result.Changes, Change{
				EntityID:   entityID,
				EntityType: before.EntityType,
				Key:        before.Key,
				Kind:       ChangeDeleted,
			})
		default:
			fields := fieldDeltas(before, after)
			if len(fields) == 0 {
				continue
			}
			result.Changes = append(result.Changes, Change{
				EntityID:   entityID,
				EntityType: after.EntityType,
				Key:        after.Key,
				Kind:       ChangeModified,
				Fields:     fields,
			})
		}
	}

	sort.Slice(result.Changes, func(i, j int) bool {
		a, b := result.Changes[i], result.Changes[j]
		if a.EntityType != b.EntityType {
			return a.EntityType < b.EntityType
		}
		if a.Key != b.Key {
			return a.Key < b.Key
		}
		return a.EntityID.String() < b.EntityID.String()
	})

	for _, change := range result.Changes {
		switch change.Kind {
		case ChangeAdded:
			result.Summary.Added++
		case ChangeModified:
			result.Summary.Modified++
		case ChangeDeleted:
			result.Summary.Deleted++
		}
	}
	result.Summary.Total = len(result.Changes)

	s.logger.Debug("releases compared",
		"from_release_id", fromID,
		"to_release_id", toID,
		"changes", result.Summary.Total,
	)
	return result
}

// liveVersion treats soft-deleted versions as absent for classification.
func liveVersion(version *ledger.EntityVersion) *ledger.EntityVersion {
	if version == nil || version.IsDeleted || version.ChangeType == ledger.ChangeDelete {
		return nil
	}
	return version
}

// fieldDeltas compares the scalar columns plus the top-level payload keys of
// two versions. Payload values are compared structurally so nested changes
// surface as a delta on their top-level key.
func fieldDeltas(before, after *ledger.EntityVersion) map[string]FieldDelta {
	fields := make(map[string]FieldDelta)

	compare := func(name string, from, to any) {
		if !jsonEqual(from, to) {
			fields[name] = FieldDelta{From: from, To: to}
		}
	}

	compare("key", before.Key, after.Key)
	compare("name", deref(before.Name), deref(after.Name))
	compare("status", before.Status, after.Status)
	compare("brand_id", derefInt(before.BrandID), derefInt(after.BrandID))
	compare("jurisdiction_id", derefInt(before.JurisdictionID), derefInt(after.JurisdictionID))
	compare("locale_id", derefInt(before.LocaleID), derefInt(after.LocaleID))

	payloadKeys := make(map[string]struct{}, len(before.Payload)+len(after.Payload))
	for key := range before.Payload {
		payloadKeys[key] = struct{}{}
	}
	for key := range after.Payload {
		payloadKeys[key] = struct{}{}
	}
	for key := range payloadKeys {
		fromValue, fromOK := lookup(before.Payload, key)
		toValue, toOK := lookup(after.Payload, key)
		if fromOK && toOK && jsonEqual(fromValue, toValue) {
			continue
		}
		fields["payload."+key] = FieldDelta{From: fromValue, To: toValue}
	}

	if len(fields) == 0 {
		return nil
	}
	return fields
}

func lookup(payload map[string]any, key string) (any, bool) {
	if payload == nil {
		return nil, false
	}
	value, ok := payload[key]
	return value, ok
}

// jsonEqual compares values through their JSON encoding, which irons out the
// int/float64 split between values written in-process and values read back
// from a jsonb column.
func jsonEqual(a, b any) bool {
	rawA, errA := json.Marshal(a)
	rawB, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(rawA, rawB)
}

func deref(value *string) any {
	if value == nil {
		return nil
	}
	return *value
}

func derefInt(value *int64) any {
	if value == nil {
		return nil
	}
	return *value
}
