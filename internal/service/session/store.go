package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/webglow/voice-support/backend/internal/model/call"
)

// Conn 表示一条活跃客户端连接的写端。
// 由中继处理器提供实现，店内只负责持有与替换。
type Conn interface {
	WriteJSON(v any) error
}

// Session 记录一次通话尝试在服务端的全部状态，键为客户端持有的会话标识。
type Session struct {
	ID                string
	Status            call.Status
	StartTime         *time.Time
	EndTime           *time.Time
	Duration          int
	Transcript        []call.TranscriptEntry
	conn              Conn
	LastPing          time.Time
	ReconnectAttempts int
}

// Snapshot 是会话状态的只读副本，用于协议应答。
type Snapshot struct {
	ID         string                 `json:"id"`
	Status     call.Status            `json:"status"`
	Duration   int                    `json:"duration"`
	Transcript []call.TranscriptEntry `json:"transcript"`
}

// Store 是进程内所有通话会话状态的唯一持有者。
// 协议层的每一次状态变更都经过这里的方法，在同一把锁内完成，
// 保证单条消息的处理对会话而言是原子的。
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewStore 创建空的会话存储。
func NewStore() *Store {
	return &Store{
		sessions: make(map[string]*Session),
	}
}

// Create 分配一个新的 idle 会话并绑定连接。id 为空时自动生成。
func (s *Store) Create(id string, c Conn) Snapshot {
	if id == "" {
		id = uuid.NewString()
	}

	sess := &Session{
		ID:         id,
		Status:     call.StatusIdle,
		Transcript: make([]call.TranscriptEntry, 0, 8),
		conn:       c,
		LastPing:   time.Now(),
	}

	s.mu.Lock()
	s.sessions[id] = sess
	s.mu.Unlock()

	return snapshotOf(sess)
}

// Resume 将新连接重新绑定到既有会话上。旧连接的引用被直接替换，
// 不做任何合并；重连计数清零。
func (s *Store) Resume(id string, c Conn) (Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return Snapshot{}, false
	}

	sess.conn = c
	sess.LastPing = time.Now()
	sess.ReconnectAttempts = 0
	return snapshotOf(sess), true
}

// Get 查询会话快照，无副作用。
func (s *Store) Get(id string) (Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return Snapshot{}, false
	}
	return snapshotOf(sess), true
}

// Delete 删除会话，id 不存在时为空操作。
func (s *Store) Delete(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}

// Len 返回当前会话数量。
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// StartCall 将会话标记为 connecting 并记录开始时间。
func (s *Store) StartCall(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return false
	}

	now := time.Now()
	sess.Status = call.StatusConnecting
	sess.StartTime = &now
	return true
}

// MarkConnected 将会话标记为 connected。到达过 connected 的会话
// 被视为真正接通的通话，不会被清理任务按超时回收。
func (s *Store) MarkConnected(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return false
	}

	sess.Status = call.StatusConnected
	return true
}

// EndCall 将会话标记为 ended，记录结束时间并推导通话时长。
// 时长只在 StartTime 非空时计算，避免凭空出现的负值或漂移。
func (s *Store) EndCall(id string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return 0, false
	}

	now := time.Now()
	sess.Status = call.StatusEnded
	sess.EndTime = &now
	if sess.StartTime != nil {
		sess.Duration = int(now.Sub(*sess.StartTime) / time.Second)
	}
	return sess.Duration, true
}

// AppendTranscript 以服务器时间戳追加一条转写，返回追加后的完整转写副本。
// 转写只追加，不重排也不删除。
func (s *Store) AppendTranscript(id, role, content string) ([]call.TranscriptEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, false
	}

	sess.Transcript = append(sess.Transcript, call.TranscriptEntry{
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	})

	copied := make([]call.TranscriptEntry, len(sess.Transcript))
	copy(copied, sess.Transcript)
	return copied, true
}

// Touch 刷新会话的心跳时间。
func (s *Store) Touch(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return false
	}

	sess.LastPing = time.Now()
	return true
}

// Release 清除会话上的连接引用。仅当引用仍指向 c 时生效，
// 这样晚到的旧连接关闭事件不会抢走新连接的所有权。
func (s *Store) Release(id string, c Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return
	}
	if sess.conn == c {
		sess.conn = nil
	}
}

// Broadcast 向会话当前连接尽力投递一条消息。连接缺失或写入失败时
// 直接丢弃，不排队也不重试；服务端已落地的状态是兜底。
func (s *Store) Broadcast(id string, v any) {
	s.mu.RLock()
	c := Conn(nil)
	if sess, ok := s.sessions[id]; ok {
		c = sess.conn
	}
	s.mu.RUnlock()

	if c == nil {
		return
	}
	_ = c.WriteJSON(v)
}

// EvictIfAbandoned 在宽限期结束后回收没有连接且未接通的会话。
// connected 状态的会话即便没有连接也会保留，等待浏览器重连。
func (s *Store) EvictIfAbandoned(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return false
	}
	if sess.conn == nil && sess.Status != call.StatusConnected {
		delete(s.sessions, id)
		return true
	}
	return false
}

// KeepAliveTargets 返回所有持有活跃连接的会话写端快照。
func (s *Store) KeepAliveTargets() []Conn {
	s.mu.RLock()
	defer s.mu.RUnlock()

	targets := make([]Conn, 0, len(s.sessions))
	for _, sess := range s.sessions {
		if sess.conn != nil {
			targets = append(targets, sess.conn)
		}
	}
	return targets
}

// EvictStale 删除心跳超过 staleness 且未处于 connected 状态的会话，
// 返回被回收的会话 ID。接通中的通话永远不会按超时回收。
func (s *Store) EvictStale(staleness time.Duration) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	var evicted []string
	for id, sess := range s.sessions {
		if now.Sub(sess.LastPing) > staleness && sess.Status != call.StatusConnected {
			delete(s.sessions, id)
			evicted = append(evicted, id)
		}
	}
	return evicted
}

func snapshotOf(sess *Session) Snapshot {
	transcript := make([]call.TranscriptEntry, len(sess.Transcript))
	copy(transcript, sess.Transcript)
	return Snapshot{
		ID:         sess.ID,
		Status:     sess.Status,
		Duration:   sess.Duration,
		Transcript: transcript,
	}
}
