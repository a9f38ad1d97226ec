package leads

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/mail"

	"github.com/go-chi/chi/v5"

	"github.com/webglow/voice-support/backend/internal/model/call"
	"github.com/webglow/voice-support/backend/internal/service/storage"
	"github.com/webglow/voice-support/backend/pkg/utils"
)

// Handler 线索的HTTP处理器
type Handler struct {
	storage storage.Storage
}

// New 创建线索处理器
func New(store storage.Storage) *Handler {
	return &Handler{storage: store}
}

// RegisterRoutes 注册线索相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/leads", h.handleCreateLead)
	r.Get("/leads", h.handleListLeads)
	r.Get("/leads/{id}", h.handleGetLead)
}

type leadPayload struct {
	CallLogID     *string        `json:"callLogId"`
	Name          *string        `json:"name"`
	Email         *string        `json:"email"`
	Phone         *string        `json:"phone"`
	Company       *string        `json:"company"`
	Notes         *string        `json:"notes"`
	ExtractedData map[string]any `json:"extractedData"`
}

// handleCreateLead 保存一条访客线索
func (h *Handler) handleCreateLead(w http.ResponseWriter, r *http.Request) {
	var payload leadPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if payload.Email != nil && *payload.Email != "" {
		if _, err := mail.ParseAddress(*payload.Email); err != nil {
			utils.RespondError(w, http.StatusBadRequest, "invalid email address")
			return
		}
	}

	lead := call.Lead{
		CallLogID:     payload.CallLogID,
		Name:          payload.Name,
		Email:         payload.Email,
		Phone:         payload.Phone,
		Company:       payload.Company,
		Notes:         payload.Notes,
		ExtractedData: payload.ExtractedData,
	}

	created, err := h.storage.CreateLead(r.Context(), lead)
	if err != nil {
		log.Printf("[leads] create lead failed: %v", err)
		utils.RespondError(w, http.StatusInternalServerError, "failed to create lead")
		return
	}
	utils.RespondJSON(w, http.StatusCreated, created)
}

// handleListLeads 返回全部线索，按捕获时间倒序
func (h *Handler) handleListLeads(w http.ResponseWriter, r *http.Request) {
	leads, err := h.storage.GetLeads(r.Context())
	if err != nil {
		log.Printf("[leads] list leads failed: %v", err)
		utils.RespondError(w, http.StatusInternalServerError, "failed to fetch leads")
		return
	}
	utils.RespondJSON(w, http.StatusOK, leads)
}

// handleGetLead 查询单条线索
func (h *Handler) handleGetLead(w http.ResponseWriter, r *http.Request) {
	lead, err := h.storage.GetLead(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, storage.ErrNotFound) {
		utils.RespondError(w, http.StatusNotFound, "lead not found")
		return
	}
	if err != nil {
		log.Printf("[leads] get lead failed: %v", err)
		utils.RespondError(w, http.StatusInternalServerError, "failed to fetch lead")
		return
	}
	utils.RespondJSON(w, http.StatusOK, lead)
}
