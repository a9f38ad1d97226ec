package notify

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	notifyService "github.com/webglow/voice-support/backend/internal/service/notify"
	"github.com/webglow/voice-support/backend/pkg/utils"
)

// Handler 转写邮件通知的HTTP处理器
type Handler struct {
	notifier *notifyService.Notifier
}

// New 创建通知处理器。notifier 为 nil 时表示通知服务未配置。
func New(notifier *notifyService.Notifier) *Handler {
	return &Handler{notifier: notifier}
}

// RegisterRoutes 注册通知相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/notify", h.handleNotify)
}

type notifyPayload struct {
	Transcript    string `json:"transcript"`
	CallStartTime string `json:"callStartTime"`
	CallEndTime   string `json:"callEndTime"`
	Duration      string `json:"duration"`
	BrowserInfo   string `json:"browserInfo"`
}

// handleNotify 发送一封通话转写邮件
func (h *Handler) handleNotify(w http.ResponseWriter, r *http.Request) {
	var payload notifyPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if strings.TrimSpace(payload.Transcript) == "" {
		utils.RespondError(w, http.StatusBadRequest, "No transcript provided")
		return
	}

	if h.notifier == nil {
		utils.RespondError(w, http.StatusServiceUnavailable, "notification service unavailable")
		return
	}

	duration, err := strconv.Atoi(strings.TrimSpace(payload.Duration))
	if err != nil {
		duration = 0
	}

	email := notifyService.TranscriptEmail{
		Transcript:    payload.Transcript,
		CallStartTime: parseTimeOrNow(payload.CallStartTime),
		CallEndTime:   parseTimeOrNow(payload.CallEndTime),
		Duration:      duration,
		BrowserInfo:   payload.BrowserInfo,
	}

	if err := h.notifier.SendTranscript(r.Context(), email); err != nil {
		log.Printf("[notify] send failed: %v", err)
		utils.RespondError(w, http.StatusInternalServerError, "Failed to send notification")
		return
	}

	log.Printf("[notify] transcript notification sent")
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Notification sent successfully",
	})
}

func parseTimeOrNow(raw string) time.Time {
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Now()
	}
	return t
}
