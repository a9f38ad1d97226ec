package relay

import (
	"sync"

	"github.com/gorilla/websocket"
)

// wsConn 串行化对同一条 WebSocket 连接的写入。
// 处理器的直接应答与清理任务的 keep_alive 推送会并发到达同一连接，
// gorilla 的连接不允许并发写。
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func newWSConn(conn *websocket.Conn) *wsConn {
	return &wsConn{conn: conn}
}

// WriteJSON 实现 session.Conn。
func (c *wsConn) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}
