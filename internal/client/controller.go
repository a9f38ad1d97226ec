package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/webglow/voice-support/backend/internal/model/call"
)

// Config 描述客户端会话控制器的连接与行为参数。
type Config struct {
	// ServerURL 是中继的 WebSocket 地址，如 ws://host/ws/call。
	ServerURL string
	// APIBaseURL 是 REST 接口的基地址，如 http://host。
	APIBaseURL string
	// AssistantID 传递给语音引擎。
	AssistantID string
	// ClientInfo 随通知邮件上报，对应浏览器端的 UA 摘要。
	ClientInfo string
	// RequestMicrophone 在发起通话前申请麦克风权限；
	// 返回错误时直接进入 failed，不触碰引擎。nil 视为始终授权。
	RequestMicrophone func(ctx context.Context) error

	ReconnectInterval time.Duration
	PingInterval      time.Duration
	ResetDelay        time.Duration

	HTTPClient *http.Client
}

func (c *Config) applyDefaults() {
	if c.ReconnectInterval <= 0 {
		c.ReconnectInterval = 3 * time.Second
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 20 * time.Second
	}
	if c.ResetDelay <= 0 {
		c.ResetDelay = 2500 * time.Millisecond
	}
	if c.ClientInfo == "" {
		c.ClientInfo = "Go client"
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
}

// Controller 是中继协议的客户端镜像：维护本地通话状态机、驱动语音引擎，
// 并让 WebSocket 连接在网络抖动时自动重连。通话控制以引擎事件为准，
// socket 只是状态的旁路镜像。
type Controller struct {
	engine Engine
	cfg    Config

	ctx    context.Context
	cancel context.CancelFunc

	mu               sync.Mutex
	status           call.Status
	muted            bool
	volume           float64
	duration         int
	transcript       []call.TranscriptEntry
	reachedConnected bool
	callStart        *time.Time
	stopTimer        chan struct{}
	resetTimer       *time.Timer

	connMu    sync.Mutex
	conn      *websocket.Conn
	sessionID string
}

// New 创建控制器并订阅引擎事件。调用 Connect 之后 socket 才开始维护。
func New(engine Engine, cfg Config) *Controller {
	cfg.applyDefaults()

	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		engine: engine,
		cfg:    cfg,
		ctx:    ctx,
		cancel: cancel,
		status: call.StatusIdle,
	}

	engine.Subscribe(EngineEvents{
		CallStart:   c.onCallStart,
		CallEnd:     c.onCallEnd,
		Transcript:  c.onTranscript,
		VolumeLevel: c.onVolumeLevel,
		Error:       c.onEngineError,
	})

	return c
}

// Connect 启动 socket 维护循环：断开后以固定间隔无限重试。
func (c *Controller) Connect() {
	go c.socketLoop()
}

// Close 注销所有定时器并关闭连接。幂等。
func (c *Controller) Close() {
	c.cancel()

	c.mu.Lock()
	c.stopDurationTimerLocked()
	if c.resetTimer != nil {
		c.resetTimer.Stop()
		c.resetTimer = nil
	}
	c.mu.Unlock()

	c.connMu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connMu.Unlock()
}

// socketLoop 维护到中继的长连接。重试间隔固定、次数不设上限，
// 与浏览器端实现保持一致。
func (c *Controller) socketLoop() {
	for {
		if err := c.runConn(); err != nil {
			log.Printf("[client] relay connection lost: %v", err)
		}

		select {
		case <-c.ctx.Done():
			return
		case <-time.After(c.cfg.ReconnectInterval):
		}
	}
}

func (c *Controller) runConn() error {
	dialer := &websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(c.ctx, c.cfg.ServerURL, nil)
	if err != nil {
		return fmt.Errorf("dial relay: %w", err)
	}

	c.connMu.Lock()
	c.conn = conn
	sessionID := c.sessionID
	c.connMu.Unlock()

	defer func() {
		c.connMu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		c.connMu.Unlock()
		conn.Close()
	}()

	c.send("start_session", map[string]any{"sessionId": sessionID})

	connCtx, cancel := context.WithCancel(c.ctx)
	defer cancel()
	go c.pingLoop(connCtx)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read relay message: %w", err)
		}

		var msg struct {
			Type      string `json:"type"`
			SessionID string `json:"sessionId"`
		}
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Printf("[client] dropping malformed relay message: %v", err)
			continue
		}

		if msg.Type == "session_created" || msg.Type == "session_restored" {
			c.connMu.Lock()
			c.sessionID = msg.SessionID
			c.connMu.Unlock()
		}
	}
}

// pingLoop 在连接存活期间按固定间隔发送应用层心跳。
func (c *Controller) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.send("ping", nil)
		}
	}
}

// send 尽力向中继投递一条协议消息；连接缺失或写失败直接丢弃。
func (c *Controller) send(msgType string, fields map[string]any) {
	payload := map[string]any{"type": msgType}
	for k, v := range fields {
		payload[k] = v
	}

	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn == nil {
		return
	}
	if err := c.conn.WriteJSON(payload); err != nil {
		log.Printf("[client] relay write failed: %v", err)
	}
}

// StartCall 发起一次通话。麦克风授权失败时不触碰引擎，直接进入 failed。
func (c *Controller) StartCall(ctx context.Context) error {
	if c.cfg.RequestMicrophone != nil {
		if err := c.cfg.RequestMicrophone(ctx); err != nil {
			c.setStatus(call.StatusFailed)
			return fmt.Errorf("microphone permission denied: %w", err)
		}
	}

	c.mu.Lock()
	c.status = call.StatusConnecting
	c.muted = false
	c.reachedConnected = false
	c.transcript = nil
	c.mu.Unlock()

	c.send("call_start", nil)

	if err := c.engine.Start(ctx, c.cfg.AssistantID); err != nil {
		c.setStatus(call.StatusFailed)
		return fmt.Errorf("engine start failed: %w", err)
	}
	return nil
}

// EndCall 直接命令引擎挂断，后续状态变化由引擎事件驱动。
func (c *Controller) EndCall() {
	c.engine.Stop()
}

// ToggleMute 切换静音，返回新的静音状态。
func (c *Controller) ToggleMute() bool {
	c.mu.Lock()
	c.muted = !c.muted
	muted := c.muted
	c.mu.Unlock()

	c.engine.SetMuted(muted)
	return muted
}

// Reset 将控制器恢复到 idle，清空本地通话痕迹。
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopDurationTimerLocked()
	c.status = call.StatusIdle
	c.muted = false
	c.duration = 0
	c.reachedConnected = false
	c.transcript = nil
	c.callStart = nil
}

// Status 返回当前通话状态。
func (c *Controller) Status() call.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Duration 返回当前已接通的秒数。
func (c *Controller) Duration() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.duration
}

// IsMuted 返回当前静音状态。
func (c *Controller) IsMuted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.muted
}

// VolumeLevel 返回引擎上报的最新音量。
func (c *Controller) VolumeLevel() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.volume
}

// Transcript 返回本地转写副本。
func (c *Controller) Transcript() []call.TranscriptEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	copied := make([]call.TranscriptEntry, len(c.transcript))
	copy(copied, c.transcript)
	return copied
}

// SessionID 返回服务端分配的会话标识。
func (c *Controller) SessionID() string {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	return c.sessionID
}

func (c *Controller) setStatus(status call.Status) {
	c.mu.Lock()
	c.status = status
	c.mu.Unlock()
}

// onCallStart 引擎真正接通：记为 connected 并开始计时。
// reachedConnected 是 ended 与 failed 分岔的唯一依据。
func (c *Controller) onCallStart() {
	c.mu.Lock()
	c.reachedConnected = true
	c.status = call.StatusConnected
	c.duration = 0
	c.muted = false
	c.transcript = nil
	now := time.Now()
	c.callStart = &now
	c.startDurationTimerLocked()
	c.mu.Unlock()

	c.send("call_connected", nil)
}

// onCallEnd 引擎挂断：接通过则走 ended 与落盘/通知，否则判定 failed。
func (c *Controller) onCallEnd() {
	c.mu.Lock()
	c.stopDurationTimerLocked()
	reached := c.reachedConnected
	duration := c.duration
	start := c.callStart
	transcript := make([]call.TranscriptEntry, len(c.transcript))
	copy(transcript, c.transcript)
	c.mu.Unlock()

	c.send("call_end", nil)

	if !reached {
		c.setStatus(call.StatusFailed)
		return
	}

	c.setStatus(call.StatusEnded)

	c.sendTranscriptNotification(start, duration, transcript)

	if duration > 0 {
		c.postCallLog(duration)
	}

	c.mu.Lock()
	if c.resetTimer != nil {
		c.resetTimer.Stop()
	}
	c.resetTimer = time.AfterFunc(c.cfg.ResetDelay, c.Reset)
	c.mu.Unlock()
}

func (c *Controller) onTranscript(role, content string) {
	entry := call.TranscriptEntry{
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	}

	c.mu.Lock()
	c.transcript = append(c.transcript, entry)
	c.mu.Unlock()

	c.send("transcript", map[string]any{"role": role, "content": content})
}

func (c *Controller) onVolumeLevel(level float64) {
	c.mu.Lock()
	c.volume = level
	c.mu.Unlock()
}

// onEngineError 引擎失败：清掉所有定时器再切状态，避免残留计时器
// 打进失效的状态里。失败的尝试不产生任何服务端记录。
func (c *Controller) onEngineError(err error) {
	log.Printf("[client] engine error: %v", err)

	c.mu.Lock()
	c.stopDurationTimerLocked()
	c.status = call.StatusFailed
	c.muted = false
	c.reachedConnected = false
	c.transcript = nil
	c.callStart = nil
	c.mu.Unlock()
}

func (c *Controller) startDurationTimerLocked() {
	c.stopDurationTimerLocked()
	stop := make(chan struct{})
	c.stopTimer = stop

	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				c.mu.Lock()
				c.duration++
				c.mu.Unlock()
			}
		}
	}()
}

func (c *Controller) stopDurationTimerLocked() {
	if c.stopTimer != nil {
		close(c.stopTimer)
		c.stopTimer = nil
	}
}

// sendTranscriptNotification 通过 REST 侧发送转写邮件；失败只记录。
func (c *Controller) sendTranscriptNotification(start *time.Time, duration int, transcript []call.TranscriptEntry) {
	lines := make([]string, 0, len(transcript))
	for _, entry := range transcript {
		lines = append(lines, fmt.Sprintf("[%s]: %s", strings.ToUpper(entry.Role), entry.Content))
	}
	full := strings.Join(lines, "\n")
	if strings.TrimSpace(full) == "" {
		return
	}

	startTime := time.Now()
	if start != nil {
		startTime = *start
	}

	c.postJSON("/api/notify", map[string]any{
		"transcript":    full,
		"callStartTime": startTime.Format(time.RFC3339),
		"callEndTime":   time.Now().Format(time.RFC3339),
		"duration":      strconv.Itoa(duration),
		"browserInfo":   c.cfg.ClientInfo,
	})
}

// postCallLog 记录一次完成的通话。只有接通过且时长大于零的通话才会走到这里。
func (c *Controller) postCallLog(duration int) {
	c.postJSON("/api/calls", map[string]any{
		"duration": duration,
		"status":   "completed",
		"endedAt":  time.Now().Format(time.RFC3339),
	})
}

func (c *Controller) postJSON(path string, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		log.Printf("[client] marshal %s payload failed: %v", path, err)
		return
	}

	req, err := http.NewRequestWithContext(c.ctx, http.MethodPost, c.cfg.APIBaseURL+path, bytes.NewReader(body))
	if err != nil {
		log.Printf("[client] build %s request failed: %v", path, err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		log.Printf("[client] %s request failed: %v", path, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		log.Printf("[client] %s returned status %d", path, resp.StatusCode)
	}
}
