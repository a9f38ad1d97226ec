package calls_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/webglow/voice-support/backend/internal/handler/calls"
	"github.com/webglow/voice-support/backend/internal/model/call"
	"github.com/webglow/voice-support/backend/internal/service/storage"
)

func newTestRouter(store storage.Storage) http.Handler {
	r := chi.NewRouter()
	calls.New(store).RegisterRoutes(r)
	return r
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestCreateCallLog(t *testing.T) {
	store := storage.NewMemoryStorage()
	router := newTestRouter(store)

	rec := doJSON(t, router, http.MethodPost, "/calls", map[string]any{
		"duration": 37,
		"status":   "completed",
		"endedAt":  "2026-08-30T10:00:00Z",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var created call.Log
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if created.ID == "" || created.Duration != 37 || created.Status != "completed" {
		t.Fatalf("unexpected created log: %+v", created)
	}
	if created.EndedAt == nil {
		t.Fatal("expected endedAt to be set")
	}
}

func TestCreateCallLogRejectsMissingDuration(t *testing.T) {
	router := newTestRouter(storage.NewMemoryStorage())

	rec := doJSON(t, router, http.MethodPost, "/calls", map[string]any{"status": "completed"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestCreateCallLogRejectsNegativeDuration(t *testing.T) {
	router := newTestRouter(storage.NewMemoryStorage())

	rec := doJSON(t, router, http.MethodPost, "/calls", map[string]any{"duration": -1, "status": "completed"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestCreateCallLogRejectsBadTimestamp(t *testing.T) {
	router := newTestRouter(storage.NewMemoryStorage())

	rec := doJSON(t, router, http.MethodPost, "/calls", map[string]any{
		"duration": 5,
		"status":   "completed",
		"endedAt":  "yesterday",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestGetCallLogNotFound(t *testing.T) {
	router := newTestRouter(storage.NewMemoryStorage())

	rec := doJSON(t, router, http.MethodGet, "/calls/missing", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestUpdateCallLog(t *testing.T) {
	store := storage.NewMemoryStorage()
	router := newTestRouter(store)

	created, err := store.CreateCallLog(context.Background(), call.Log{Duration: 5, Status: "pending"})
	if err != nil {
		t.Fatalf("seed call log: %v", err)
	}

	rec := doJSON(t, router, http.MethodPatch, "/calls/"+created.ID, map[string]any{"status": "completed"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var updated call.Log
	if err := json.Unmarshal(rec.Body.Bytes(), &updated); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if updated.Status != "completed" || updated.Duration != 5 {
		t.Fatalf("unexpected updated log: %+v", updated)
	}
}

func TestUpdateCallLogNotFound(t *testing.T) {
	router := newTestRouter(storage.NewMemoryStorage())

	rec := doJSON(t, router, http.MethodPatch, "/calls/missing", map[string]any{"status": "completed"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestStatsIncludesLeadCaptureRate(t *testing.T) {
	store := storage.NewMemoryStorage()
	router := newTestRouter(store)
	ctx := context.Background()

	logEntry, _ := store.CreateCallLog(ctx, call.Log{Duration: 30, Status: "completed"})
	store.CreateCallLog(ctx, call.Log{Duration: 10, Status: "failed"})
	store.CreateLead(ctx, call.Lead{CallLogID: &logEntry.ID})

	rec := doJSON(t, router, http.MethodGet, "/stats", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var stats map[string]float64
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if stats["totalCalls"] != 2 || stats["completedCalls"] != 1 {
		t.Fatalf("unexpected call counts: %v", stats)
	}
	if stats["totalLeads"] != 1 || stats["leadCaptureRate"] != 50 {
		t.Fatalf("unexpected lead metrics: %v", stats)
	}
}
