package auditcmd

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goliatone/go-staging/internal/ledger"
	"github.com/goliatone/go-staging/internal/logging"
	"github.com/google/uuid"
)

type stubAuditLog struct {
	events     []*ledger.AuditEvent
	listErr    error
	purgeErr   error
	listCalls  int
	purgeCalls int
	lastFilter ledger.AuditFilter
	lastCutoff time.Time
}

func (s *stubAuditLog) ListAuditEvents(_ context.Context, filter ledger.AuditFilter) ([]*ledger.AuditEvent, error) {
	s.listCalls++
	s.lastFilter = filter
	if s.listErr != nil {
		return nil, s.listErr
	}
	out := make([]*ledger.AuditEvent, len(s.events))
	copy(out, s.events)
	return out, nil
}

func (s *stubAuditLog) PurgeAuditEvents(_ context.Context, olderThan time.Time) (int64, error) {
	s.purgeCalls++
	s.lastCutoff = olderThan
	if s.purgeErr != nil {
		return 0, s.purgeErr
	}
	return int64(len(s.events)), nil
}

func auditEvent(operation string) *ledger.AuditEvent {
	return &ledger.AuditEvent{
		ID:         uuid.New(),
		EntityID:   uuid.New(),
		ReleaseID:  uuid.New(),
		EntityType: "page",
		Operation:  operation,
		ChangedBy:  uuid.New(),
		ChangedAt:  time.Now(),
	}
}

func TestExportAuditHandlerRespectsLimit(t *testing.T) {
	log := &stubAuditLog{
		events: []*ledger.AuditEvent{
			auditEvent("entity_version.create"),
			auditEvent("entity_version.update"),
			auditEvent("entity_version.delete"),
		},
	}
	handler := NewExportAuditHandler(log, logging.NoOp())
	limit := 2

	if err := handler.Execute(context.Background(), ExportAuditCommand{MaxRecords: &limit}); err != nil {
		t.Fatalf("export execute: %v", err)
	}
	if log.listCalls != 1 {
		t.Fatalf("expected list to be called once, got %d", log.listCalls)
	}
}

func TestExportAuditHandlerForwardsFilter(t *testing.T) {
	log := &stubAuditLog{}
	handler := NewExportAuditHandler(log, logging.NoOp())
	releaseID := uuid.New()

	if err := handler.Execute(context.Background(), ExportAuditCommand{ReleaseID: &releaseID}); err != nil {
		t.Fatalf("export execute: %v", err)
	}
	if log.lastFilter.ReleaseID == nil || *log.lastFilter.ReleaseID != releaseID {
		t.Fatalf("expected release filter %s, got %v", releaseID, log.lastFilter.ReleaseID)
	}
}

func TestExportAuditHandlerRejectsNegativeLimit(t *testing.T) {
	log := &stubAuditLog{}
	handler := NewExportAuditHandler(log, logging.NoOp())
	limit := -1

	if err := handler.Execute(context.Background(), ExportAuditCommand{MaxRecords: &limit}); err == nil {
		t.Fatal("expected validation error")
	}
	if log.listCalls != 0 {
		t.Fatalf("expected list not to be called, got %d", log.listCalls)
	}
}

func TestExportAuditHandlerPropagatesError(t *testing.T) {
	log := &stubAuditLog{listErr: errors.New("list failed")}
	handler := NewExportAuditHandler(log, logging.NoOp())

	err := handler.Execute(context.Background(), ExportAuditCommand{})
	if err == nil {
		t.Fatal("expected list error")
	}
	if !errors.Is(err, log.listErr) {
		t.Fatalf("expected list error, got %v", err)
	}
}

func TestCleanupAuditHandlerDryRun(t *testing.T) {
	log := &stubAuditLog{
		events: []*ledger.AuditEvent{auditEvent("entity_version.create")},
	}
	handler := NewCleanupAuditHandler(log, logging.NoOp())

	if err := handler.Execute(context.Background(), CleanupAuditCommand{DryRun: true}); err != nil {
		t.Fatalf("cleanup dry run: %v", err)
	}
	if log.purgeCalls != 0 {
		t.Fatalf("expected purge not to be called, got %d", log.purgeCalls)
	}
	if log.lastFilter.Until == nil {
		t.Fatal("expected dry run to compute a cutoff filter")
	}
}

func TestCleanupAuditHandlerPurgesWithRetentionCutoff(t *testing.T) {
	now := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)
	log := &stubAuditLog{
		events: []*ledger.AuditEvent{auditEvent("entity_version.create")},
	}
	handler := NewCleanupAuditHandler(log, logging.NoOp(), CleanupWithNow(func() time.Time { return now }))

	if err := handler.Execute(context.Background(), CleanupAuditCommand{RetentionDays: 30}); err != nil {
		t.Fatalf("cleanup execute: %v", err)
	}
	if log.purgeCalls != 1 {
		t.Fatalf("expected purge calls 1, got %d", log.purgeCalls)
	}
	want := now.AddDate(0, 0, -30)
	if !log.lastCutoff.Equal(want) {
		t.Fatalf("expected cutoff %s, got %s", want, log.lastCutoff)
	}
}

func TestCleanupAuditHandlerDefaultsRetention(t *testing.T) {
	now := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)
	log := &stubAuditLog{}
	handler := NewCleanupAuditHandler(log, logging.NoOp(), CleanupWithNow(func() time.Time { return now }))

	if err := handler.Execute(context.Background(), CleanupAuditCommand{}); err != nil {
		t.Fatalf("cleanup execute: %v", err)
	}
	want := now.AddDate(0, 0, -DefaultRetentionDays)
	if !log.lastCutoff.Equal(want) {
		t.Fatalf("expected cutoff %s, got %s", want, log.lastCutoff)
	}
}

func TestCleanupAuditHandlerUsesConfiguredRetention(t *testing.T) {
	now := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)
	log := &stubAuditLog{}
	handler := NewCleanupAuditHandler(log, logging.NoOp(),
		CleanupWithRetentionDays(7),
		CleanupWithNow(func() time.Time { return now }),
	)

	if err := handler.Execute(context.Background(), CleanupAuditCommand{}); err != nil {
		t.Fatalf("cleanup execute: %v", err)
	}
	want := now.AddDate(0, 0, -7)
	if !log.lastCutoff.Equal(want) {
		t.Fatalf("expected cutoff %s, got %s", want, log.lastCutoff)
	}

	// An explicit message retention still wins over the configured default.
	if err := handler.Execute(context.Background(), CleanupAuditCommand{RetentionDays: 3}); err != nil {
		t.Fatalf("cleanup execute: %v", err)
	}
	want = now.AddDate(0, 0, -3)
	if !log.lastCutoff.Equal(want) {
		t.Fatalf("expected cutoff %s, got %s", want, log.lastCutoff)
	}
}

func TestCleanupAuditHandlerPropagatesErrors(t *testing.T) {
	log := &stubAuditLog{purgeErr: errors.New("purge boom")}
	handler := NewCleanupAuditHandler(log, logging.NoOp())

	err := handler.Execute(context.Background(), CleanupAuditCommand{})
	if err == nil {
		t.Fatal("expected purge error")
	}
	if !errors.Is(err, log.purgeErr) {
		t.Fatalf("expected purge error, got %v", err)
	}
}

func TestCleanupAuditHandlerCronDefaults(t *testing.T) {
	handler := NewCleanupAuditHandler(&stubAuditLog{}, logging.NoOp())

	if got := handler.CronOptions().Expression; got != "@daily" {
		t.Fatalf("expected @daily expression, got %q", got)
	}

	handler = NewCleanupAuditHandler(&stubAuditLog{}, logging.NoOp(), CleanupWithCronExpression("@hourly"))
	if got := handler.CronOptions().Expression; got != "@hourly" {
		t.Fatalf("expected @hourly expression, got %q", got)
	}
}
