package session

import (
	"context"
	"log"
	"time"
)

// Sweeper 周期性地向活跃连接推送 keep_alive，并回收心跳过期的会话。
type Sweeper struct {
	store     *Store
	interval  time.Duration
	staleness time.Duration
}

// NewSweeper 创建清理任务。interval 为扫描周期，staleness 为心跳过期阈值。
func NewSweeper(store *Store, interval, staleness time.Duration) *Sweeper {
	return &Sweeper{
		store:     store,
		interval:  interval,
		staleness: staleness,
	}
}

type keepAliveMessage struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

// Run 阻塞运行清理循环，直到 ctx 取消。
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

// sweep 执行单轮扫描。单个连接的发送失败只影响它自己，不会中断整轮扫描。
func (s *Sweeper) sweep() {
	msg := keepAliveMessage{
		Type:      "keep_alive",
		Timestamp: time.Now().UnixMilli(),
	}

	for _, c := range s.store.KeepAliveTargets() {
		if err := c.WriteJSON(msg); err != nil {
			log.Printf("[sweeper] keep_alive send failed: %v", err)
		}
	}

	if evicted := s.store.EvictStale(s.staleness); len(evicted) > 0 {
		log.Printf("[sweeper] evicted %d stale session(s)", len(evicted))
	}
}
