package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"os"
	"time"

	staging "github.com/goliatone/go-staging"
	"github.com/goliatone/go-staging/internal/diff"
	"github.com/goliatone/go-staging/internal/ledger"
	"github.com/goliatone/go-staging/internal/releases"
	"github.com/google/uuid"
)

func main() {
	ctx := context.Background()

	cfg := staging.DefaultConfig()
	cfg.Storage.Provider = "memory"
	cfg.Cache.Enabled = false
	cfg.Features.ConflictDetection = true
	cfg.Logging.Level = "info"

	module, err := staging.New(cfg)
	if err != nil {
		log.Fatalf("initialise staging: %v", err)
	}

	if err := module.RegisterSchema("page", map[string]any{
		"type":     "object",
		"required": []any{"title"},
		"properties": map[string]any{
			"title": map[string]any{"type": "string"},
			"hero":  map[string]any{"type": "string"},
			"body":  map[string]any{"type": "string"},
		},
	}); err != nil {
		log.Fatalf("register page schema: %v", err)
	}

	releaseSvc := module.Releases()
	ledgerSvc := module.Ledger()
	resolverSvc := module.Resolver()
	diffSvc := module.Diff()

	editorID := uuid.MustParse("aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa")
	reviewerID := uuid.MustParse("bbbbbbbb-bbbb-bbbb-bbbb-bbbbbbbbbbbb")

	launch, err := releaseSvc.CreateRelease(ctx, releases.CreateReleaseInput{
		Name:        "spring-launch",
		Description: strPtr("Initial site content for the spring campaign"),
		CreatedBy:   editorID,
	})
	if err != nil {
		if errors.Is(err, releases.ErrReleaseNameExists) {
			launch, err = releaseSvc.GetReleaseByName(ctx, "spring-launch")
			if err != nil {
				log.Fatalf("resolve release: %v", err)
			}
		} else {
			log.Fatalf("create release: %v", err)
		}
	}

	landing, err := ledgerSvc.WriteVersion(ctx, ledger.WriteVersionInput{
		EntityType: "page",
		Key:        "landing-page",
		ReleaseID:  launch.ID,
		Name:       strPtr("Landing Page"),
		Payload: map[string]any{
			"title": "Welcome",
			"hero":  "Spring is here",
			"body":  "Everything you need for the season.",
		},
		Status:  ledger.StatusPublished,
		ActorID: editorID,
	})
	if err != nil {
		log.Fatalf("write landing page: %v", err)
	}

	if _, err := ledgerSvc.WriteVersion(ctx, ledger.WriteVersionInput{
		EntityType: "page",
		Key:        "pricing",
		ReleaseID:  launch.ID,
		Name:       strPtr("Pricing"),
		Payload: map[string]any{
			"title": "Pricing",
			"body":  "Plans for every team size.",
		},
		Status:  ledger.StatusPublished,
		ActorID: editorID,
	}); err != nil {
		log.Fatalf("write pricing page: %v", err)
	}

	if _, err := releaseSvc.CloseRelease(ctx, releases.CloseReleaseInput{
		ReleaseID: launch.ID,
		ClosedBy:  reviewerID,
	}); err != nil {
		log.Fatalf("close release: %v", err)
	}
	if _, err := releaseSvc.DeployRelease(ctx, releases.DeployReleaseInput{
		ReleaseID:  launch.ID,
		DeployedBy: reviewerID,
	}); err != nil {
		log.Fatalf("deploy release: %v", err)
	}

	patch, err := releaseSvc.CreateRelease(ctx, releases.CreateReleaseInput{
		Name:        "spring-patch",
		Description: strPtr("Hero copy refresh"),
		CreatedBy:   editorID,
	})
	if err != nil {
		log.Fatalf("create patch release: %v", err)
	}

	if _, err := ledgerSvc.WriteVersion(ctx, ledger.WriteVersionInput{
		EntityID:   &landing.EntityID,
		EntityType: "page",
		ReleaseID:  patch.ID,
		Payload: map[string]any{
			"title": "Welcome",
			"hero":  "Spring sale: 20% off",
			"body":  "Everything you need for the season.",
		},
		Status:       ledger.StatusPublished,
		ChangeReason: strPtr("Marketing requested a sale banner"),
		ActorID:      editorID,
	}); err != nil {
		log.Fatalf("write patched landing page: %v", err)
	}

	pending, err := diffSvc.CompareWithProduction(ctx, patch.ID)
	if err != nil {
		log.Fatalf("diff patch against production: %v", err)
	}

	if _, err := releaseSvc.CloseRelease(ctx, releases.CloseReleaseInput{
		ReleaseID: patch.ID,
		ClosedBy:  reviewerID,
	}); err != nil {
		log.Fatalf("close patch release: %v", err)
	}
	if _, err := releaseSvc.DeployRelease(ctx, releases.DeployReleaseInput{
		ReleaseID:  patch.ID,
		DeployedBy: reviewerID,
	}); err != nil {
		log.Fatalf("deploy patch release: %v", err)
	}

	afterPatch, err := resolverSvc.ResolveProduction(ctx)
	if err != nil {
		log.Fatalf("resolve production: %v", err)
	}

	if _, err := releaseSvc.RollbackRelease(ctx, releases.RollbackReleaseInput{
		TargetReleaseID: launch.ID,
		RequestedBy:     reviewerID,
	}); err != nil {
		log.Fatalf("rollback to launch: %v", err)
	}

	afterRollback, err := resolverSvc.ResolveProduction(ctx)
	if err != nil {
		log.Fatalf("resolve production after rollback: %v", err)
	}

	history, err := releaseSvc.DeployHistory(ctx)
	if err != nil {
		log.Fatalf("deploy history: %v", err)
	}

	auditTrail, err := ledgerSvc.ListAuditEvents(ctx, ledger.AuditFilter{
		EntityID: &landing.EntityID,
	})
	if err != nil {
		log.Fatalf("list audit events: %v", err)
	}

	payload := map[string]any{
		"releases": map[string]any{
			"launch":  launch.ID,
			"patch":   patch.ID,
			"history": summarizeHistory(history),
		},
		"pending_diff": summarizeDiff(pending),
		"production": map[string]any{
			"after_patch":    summarizeResolution(afterPatch),
			"after_rollback": summarizeResolution(afterRollback),
		},
		"audit": summarizeAudit(auditTrail),
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(payload); err != nil {
		log.Fatalf("encode output: %v", err)
	}
}

func summarizeHistory(history []*releases.Release) []map[string]any {
	entries := make([]map[string]any, 0, len(history))
	for _, release := range history {
		if release == nil {
			continue
		}
		entry := map[string]any{
			"name":   release.Name,
			"status": release.Status,
		}
		if release.DeploySeq != nil {
			entry["deploy_seq"] = *release.DeploySeq
		}
		entries = append(entries, entry)
	}
	return entries
}

func summarizeDiff(result *diff.Result) map[string]any {
	if result == nil {
		return nil
	}
	changes := make([]map[string]any, 0, len(result.Changes))
	for _, change := range result.Changes {
		entry := map[string]any{
			"entity_type": change.EntityType,
			"key":         change.Key,
			"kind":        change.Kind,
		}
		fields := make(map[string]any, len(change.Fields))
		for path, delta := range change.Fields {
			fields[path] = map[string]any{"from": delta.From, "to": delta.To}
		}
		if len(fields) > 0 {
			entry["fields"] = fields
		}
		changes = append(changes, entry)
	}
	return map[string]any{
		"summary": result.Summary,
		"changes": changes,
	}
}

func summarizeResolution(resolution *staging.Resolution) []map[string]any {
	if resolution == nil {
		return nil
	}
	entries := make([]map[string]any, 0, len(resolution.Versions))
	for _, version := range resolution.Visible() {
		entries = append(entries, map[string]any{
			"entity_type": version.EntityType,
			"key":         version.Key,
			"payload":     version.Payload,
		})
	}
	return entries
}

func summarizeAudit(events []*ledger.AuditEvent) []map[string]any {
	entries := make([]map[string]any, 0, len(events))
	for _, event := range events {
		if event == nil {
			continue
		}
		entries = append(entries, map[string]any{
			"operation":  event.Operation,
			"changed_by": event.ChangedBy,
			"changed_at": event.ChangedAt.Format(time.RFC3339),
		})
	}
	return entries
}

func strPtr(value string) *string {
	return &value
}
