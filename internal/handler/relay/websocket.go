package relay

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/webglow/voice-support/backend/internal/service/session"
)

const readDeadline = 60 * time.Second

// Handler 通话会话中继的WebSocket处理器
type Handler struct {
	store    *session.Store
	grace    time.Duration
	upgrader websocket.Upgrader
}

// New 创建中继处理器。grace 是连接断开后到会话可被回收之间的宽限期。
func New(store *session.Store, grace time.Duration) *Handler {
	return &Handler{
		store: store,
		grace: grace,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes 注册WebSocket路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws/call", h.handleWebSocket)
}

type inboundMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	Role      string `json:"role"`
	Content   string `json:"content"`
}

// handleWebSocket 处理一条客户端连接的完整生命周期。
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[relay] upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	c := newWSConn(conn)
	boundID := ""

	conn.SetReadDeadline(time.Now().Add(readDeadline))

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Printf("[relay] read error: %v", err)
			}
			h.handleClose(c, boundID)
			return
		}

		conn.SetReadDeadline(time.Now().Add(readDeadline))

		var msg inboundMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			// 畸形帧只记录并丢弃，连接保持。
			log.Printf("[relay] dropping malformed message: %v", err)
			continue
		}

		boundID = h.handleMessage(c, boundID, &msg)
	}
}

// handleMessage 分发单条协议消息，返回之后生效的会话绑定。
// 除 start_session 外，未绑定会话的生命周期消息都被静默忽略。
func (h *Handler) handleMessage(c *wsConn, boundID string, msg *inboundMessage) string {
	switch msg.Type {
	case "start_session":
		return h.handleStartSession(c, msg.SessionID)

	case "call_start":
		if boundID == "" {
			return boundID
		}
		if h.store.StartCall(boundID) {
			h.store.Broadcast(boundID, map[string]any{
				"type":   "status_update",
				"status": "connecting",
			})
		}

	case "call_connected":
		if boundID == "" {
			return boundID
		}
		if h.store.MarkConnected(boundID) {
			h.store.Broadcast(boundID, map[string]any{
				"type":   "status_update",
				"status": "connected",
			})
		}

	case "call_end":
		if boundID == "" {
			return boundID
		}
		if duration, ok := h.store.EndCall(boundID); ok {
			h.store.Broadcast(boundID, map[string]any{
				"type":     "status_update",
				"status":   "ended",
				"duration": duration,
			})
		}

	case "transcript":
		if boundID == "" {
			return boundID
		}
		if transcript, ok := h.store.AppendTranscript(boundID, msg.Role, msg.Content); ok {
			h.store.Broadcast(boundID, map[string]any{
				"type":       "transcript_update",
				"transcript": transcript,
			})
		}

	case "ping":
		if boundID != "" {
			h.store.Touch(boundID)
		}
		h.send(c, map[string]any{
			"type":      "pong",
			"timestamp": time.Now().UnixMilli(),
		})

	case "get_session":
		if msg.SessionID == "" {
			return boundID
		}
		if snap, ok := h.store.Get(msg.SessionID); ok {
			h.send(c, map[string]any{
				"type":    "session_data",
				"session": snap,
			})
		} else {
			h.send(c, map[string]any{
				"type":      "session_not_found",
				"sessionId": msg.SessionID,
			})
		}

	default:
		log.Printf("[relay] ignoring unsupported message type: %q", msg.Type)
	}

	return boundID
}

// handleStartSession 恢复既有会话或创建新会话。携带未知 ID 的请求
// 沿用该 ID 建新会话，浏览器侧持有的标识因此在服务端重启后仍可复用。
func (h *Handler) handleStartSession(c *wsConn, requested string) string {
	if requested != "" {
		if snap, ok := h.store.Resume(requested, c); ok {
			log.Printf("[relay] session restored: %s status=%s transcript=%d", snap.ID, snap.Status, len(snap.Transcript))
			h.send(c, map[string]any{
				"type":       "session_restored",
				"sessionId":  snap.ID,
				"status":     snap.Status,
				"duration":   snap.Duration,
				"transcript": snap.Transcript,
			})
			return snap.ID
		}
	}

	snap := h.store.Create(requested, c)
	log.Printf("[relay] session created: %s", snap.ID)
	h.send(c, map[string]any{
		"type":      "session_created",
		"sessionId": snap.ID,
	})
	return snap.ID
}

// handleClose 在连接关闭时立即清除连接引用，并在宽限期之后
// 回收仍未重连且未接通的会话。接通中的通话不受影响。
func (h *Handler) handleClose(c *wsConn, boundID string) {
	if boundID == "" {
		return
	}

	h.store.Release(boundID, c)
	id := boundID
	time.AfterFunc(h.grace, func() {
		if h.store.EvictIfAbandoned(id) {
			log.Printf("[relay] session evicted after grace period: %s", id)
		}
	})
}

// send 发送直接应答，失败只记录。
func (h *Handler) send(c *wsConn, payload map[string]any) {
	if err := c.WriteJSON(payload); err != nil {
		log.Printf("[relay] write failed: %v", err)
	}
}
