package client

import "context"

// EngineEvents 是语音引擎在通话过程中回调宿主的事件集合。
// 未设置的回调会被忽略。
type EngineEvents struct {
	CallStart   func()
	CallEnd     func()
	Transcript  func(role, content string)
	VolumeLevel func(level float64)
	Error       func(err error)
}

// Engine 抽象第三方语音引擎。引擎自己负责音频与通话控制，
// 控制器只消费它的事件并镜像到服务端中继。
type Engine interface {
	// Subscribe 注册事件回调，必须在 Start 之前调用。
	Subscribe(events EngineEvents)
	// Start 发起一次通话。
	Start(ctx context.Context, assistantID string) error
	// Stop 结束当前通话。
	Stop()
	// SetMuted 切换麦克风静音。
	SetMuted(muted bool)
}
