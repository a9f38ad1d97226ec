package storage_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/webglow/voice-support/backend/internal/model/call"
	"github.com/webglow/voice-support/backend/internal/service/storage"
)

func strPtr(v string) *string { return &v }

func intPtr(v int) *int { return &v }

func TestCreateAndGetCallLog(t *testing.T) {
	store := storage.NewMemoryStorage()
	ctx := context.Background()

	created, err := store.CreateCallLog(ctx, call.Log{Duration: 42, Status: "completed"})
	if err != nil {
		t.Fatalf("CreateCallLog err: %v", err)
	}
	if created.ID == "" {
		t.Fatal("expected generated id")
	}
	if created.StartedAt.IsZero() {
		t.Fatal("expected startedAt to be filled")
	}

	got, err := store.GetCallLog(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetCallLog err: %v", err)
	}
	if got.Duration != 42 {
		t.Fatalf("unexpected duration: %d", got.Duration)
	}
}

func TestGetCallLogNotFound(t *testing.T) {
	store := storage.NewMemoryStorage()

	if _, err := store.GetCallLog(context.Background(), "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCallLogsSortedNewestFirst(t *testing.T) {
	store := storage.NewMemoryStorage()
	ctx := context.Background()

	older := time.Now().Add(-time.Hour)
	newer := time.Now()
	store.CreateCallLog(ctx, call.Log{Duration: 1, Status: "completed", StartedAt: older})
	store.CreateCallLog(ctx, call.Log{Duration: 2, Status: "completed", StartedAt: newer})

	logs, err := store.GetCallLogs(ctx)
	if err != nil {
		t.Fatalf("GetCallLogs err: %v", err)
	}
	if len(logs) != 2 {
		t.Fatalf("expected 2 logs, got %d", len(logs))
	}
	if logs[0].Duration != 2 {
		t.Fatalf("expected newest log first, got duration %d", logs[0].Duration)
	}
}

func TestUpdateCallLog(t *testing.T) {
	store := storage.NewMemoryStorage()
	ctx := context.Background()

	created, _ := store.CreateCallLog(ctx, call.Log{Duration: 10, Status: "pending"})

	updated, err := store.UpdateCallLog(ctx, created.ID, storage.CallLogUpdate{
		Duration: intPtr(25),
		Status:   strPtr("completed"),
	})
	if err != nil {
		t.Fatalf("UpdateCallLog err: %v", err)
	}
	if updated.Duration != 25 || updated.Status != "completed" {
		t.Fatalf("unexpected update result: %+v", updated)
	}

	if _, err := store.UpdateCallLog(ctx, "missing", storage.CallLogUpdate{}); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCallStats(t *testing.T) {
	store := storage.NewMemoryStorage()
	ctx := context.Background()

	store.CreateCallLog(ctx, call.Log{Duration: 30, Status: "completed"})
	store.CreateCallLog(ctx, call.Log{Duration: 10, Status: "failed"})

	stats, err := store.GetCallStats(ctx)
	if err != nil {
		t.Fatalf("GetCallStats err: %v", err)
	}
	if stats.TotalCalls != 2 || stats.TotalDuration != 40 || stats.AvgDuration != 20 || stats.CompletedCalls != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestEmptyCallStats(t *testing.T) {
	store := storage.NewMemoryStorage()

	stats, err := store.GetCallStats(context.Background())
	if err != nil {
		t.Fatalf("GetCallStats err: %v", err)
	}
	if stats.TotalCalls != 0 || stats.AvgDuration != 0 {
		t.Fatalf("expected zero stats, got %+v", stats)
	}
}

func TestLeadLifecycle(t *testing.T) {
	store := storage.NewMemoryStorage()
	ctx := context.Background()

	logEntry, _ := store.CreateCallLog(ctx, call.Log{Duration: 5, Status: "completed"})

	lead, err := store.CreateLead(ctx, call.Lead{
		CallLogID: &logEntry.ID,
		Name:      strPtr("Ada"),
		Email:     strPtr("ada@example.com"),
	})
	if err != nil {
		t.Fatalf("CreateLead err: %v", err)
	}
	if lead.ID == "" || lead.CreatedAt.IsZero() {
		t.Fatalf("expected generated id and timestamp, got %+v", lead)
	}

	byCall, err := store.GetLeadByCallID(ctx, logEntry.ID)
	if err != nil {
		t.Fatalf("GetLeadByCallID err: %v", err)
	}
	if byCall.ID != lead.ID {
		t.Fatalf("unexpected lead: %+v", byCall)
	}

	if _, err := store.GetLead(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
