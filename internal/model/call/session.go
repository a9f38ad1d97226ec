package call

import "time"

// Status 表示一次通话在生命周期中的状态。
type Status string

const (
	StatusIdle       Status = "idle"
	StatusConnecting Status = "connecting"
	StatusConnected  Status = "connected"
	StatusEnded      Status = "ended"
	StatusFailed     Status = "failed"
)

// TranscriptEntry 记录通话转写中的一条发言。
type TranscriptEntry struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}
