package calls

import (
	"encoding/json"
	"errors"
	"log"
	"math"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/webglow/voice-support/backend/internal/model/call"
	"github.com/webglow/voice-support/backend/internal/service/storage"
	"github.com/webglow/voice-support/backend/pkg/utils"
)

// Handler 通话记录的HTTP处理器
type Handler struct {
	storage storage.Storage
}

// New 创建通话记录处理器
func New(store storage.Storage) *Handler {
	return &Handler{storage: store}
}

// RegisterRoutes 注册通话记录相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/calls", h.handleCreateCallLog)
	r.Get("/calls", h.handleListCallLogs)
	r.Get("/calls/{id}", h.handleGetCallLog)
	r.Patch("/calls/{id}", h.handleUpdateCallLog)
	r.Get("/stats", h.handleStats)
}

type callLogPayload struct {
	EngineCallID *string `json:"engineCallId"`
	Duration     *int    `json:"duration"`
	Status       *string `json:"status"`
	EndedAt      *string `json:"endedAt"`
	RecordingURL *string `json:"recordingUrl"`
	Transcript   *string `json:"transcript"`
}

// handleCreateCallLog 落盘一条完成的通话记录
func (h *Handler) handleCreateCallLog(w http.ResponseWriter, r *http.Request) {
	var payload callLogPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if payload.Duration == nil || *payload.Duration < 0 {
		utils.RespondError(w, http.StatusBadRequest, "duration must be a non-negative integer")
		return
	}
	if payload.Status == nil || *payload.Status == "" {
		utils.RespondError(w, http.StatusBadRequest, "status is required")
		return
	}

	endedAt, err := parseOptionalTime(payload.EndedAt)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid endedAt timestamp")
		return
	}

	logEntry := call.Log{
		EngineCallID: payload.EngineCallID,
		Duration:     *payload.Duration,
		Status:       *payload.Status,
		EndedAt:      endedAt,
		RecordingURL: payload.RecordingURL,
		Transcript:   payload.Transcript,
	}

	created, err := h.storage.CreateCallLog(r.Context(), logEntry)
	if err != nil {
		log.Printf("[calls] create call log failed: %v", err)
		utils.RespondError(w, http.StatusInternalServerError, "failed to create call log")
		return
	}

	utils.RespondJSON(w, http.StatusCreated, created)
}

// handleListCallLogs 返回全部通话记录，按开始时间倒序
func (h *Handler) handleListCallLogs(w http.ResponseWriter, r *http.Request) {
	logs, err := h.storage.GetCallLogs(r.Context())
	if err != nil {
		log.Printf("[calls] list call logs failed: %v", err)
		utils.RespondError(w, http.StatusInternalServerError, "failed to fetch call logs")
		return
	}
	utils.RespondJSON(w, http.StatusOK, logs)
}

// handleGetCallLog 查询单条通话记录
func (h *Handler) handleGetCallLog(w http.ResponseWriter, r *http.Request) {
	logEntry, err := h.storage.GetCallLog(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, storage.ErrNotFound) {
		utils.RespondError(w, http.StatusNotFound, "call log not found")
		return
	}
	if err != nil {
		log.Printf("[calls] get call log failed: %v", err)
		utils.RespondError(w, http.StatusInternalServerError, "failed to fetch call log")
		return
	}
	utils.RespondJSON(w, http.StatusOK, logEntry)
}

// handleUpdateCallLog 部分更新一条通话记录
func (h *Handler) handleUpdateCallLog(w http.ResponseWriter, r *http.Request) {
	var payload callLogPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	endedAt, err := parseOptionalTime(payload.EndedAt)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid endedAt timestamp")
		return
	}

	updates := storage.CallLogUpdate{
		EngineCallID: payload.EngineCallID,
		Duration:     payload.Duration,
		Status:       payload.Status,
		EndedAt:      endedAt,
		RecordingURL: payload.RecordingURL,
		Transcript:   payload.Transcript,
	}

	updated, err := h.storage.UpdateCallLog(r.Context(), chi.URLParam(r, "id"), updates)
	if errors.Is(err, storage.ErrNotFound) {
		utils.RespondError(w, http.StatusNotFound, "call log not found")
		return
	}
	if err != nil {
		log.Printf("[calls] update call log failed: %v", err)
		utils.RespondError(w, http.StatusInternalServerError, "failed to update call log")
		return
	}
	utils.RespondJSON(w, http.StatusOK, updated)
}

// handleStats 返回通话与线索的汇总指标
func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.storage.GetCallStats(r.Context())
	if err != nil {
		log.Printf("[calls] stats failed: %v", err)
		utils.RespondError(w, http.StatusInternalServerError, "failed to fetch stats")
		return
	}

	leads, err := h.storage.GetLeads(r.Context())
	if err != nil {
		log.Printf("[calls] stats leads failed: %v", err)
		utils.RespondError(w, http.StatusInternalServerError, "failed to fetch stats")
		return
	}

	leadCaptureRate := 0
	if stats.TotalCalls > 0 {
		leadCaptureRate = int(math.Round(float64(len(leads)) / float64(stats.TotalCalls) * 100))
	}

	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"totalCalls":      stats.TotalCalls,
		"avgDuration":     stats.AvgDuration,
		"totalDuration":   stats.TotalDuration,
		"completedCalls":  stats.CompletedCalls,
		"totalLeads":      len(leads),
		"leadCaptureRate": leadCaptureRate,
	})
}

func parseOptionalTime(raw *string) (*time.Time, error) {
	if raw == nil || *raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, *raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
