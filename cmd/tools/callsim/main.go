package main

import (
	"context"
	"flag"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/webglow/voice-support/backend/internal/client"
)

// callsim 用脚本化的语音引擎驱动客户端会话控制器，对一套运行中的
// 后端完整走一遍通话流程，用于手工验证中继、落盘与通知链路。
func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if err := godotenv.Load(); err != nil {
		log.Printf("[WARN] 无法加载 .env，改用系统环境变量: %v", err)
	}

	server := flag.String("server", "ws://127.0.0.1:8080/ws/call", "中继 WebSocket 地址")
	api := flag.String("api", "http://127.0.0.1:8080", "REST 接口基地址")
	script := flag.String("script", "user:hi|assistant:Hello, how can I help?|user:just testing", "转写脚本, 竖线分隔的 role:content")
	talkDelay := flag.Duration("delay", 500*time.Millisecond, "相邻转写之间的间隔")
	hold := flag.Duration("hold", 2*time.Second, "最后一条转写后到挂断的等待")
	fail := flag.Bool("fail", false, "模拟引擎在接通前失败")

	flag.Parse()

	engine := &scriptedEngine{
		script:    parseScript(*script),
		talkDelay: *talkDelay,
		hold:      *hold,
		fail:      *fail,
	}

	controller := client.New(engine, client.Config{
		ServerURL:   *server,
		APIBaseURL:  *api,
		AssistantID: "callsim",
		ClientInfo:  "callsim on CLI",
	})
	defer controller.Close()

	controller.Connect()
	// 给 start_session 一点时间完成握手。
	time.Sleep(500 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	log.Printf("发起模拟通话: session=%s", controller.SessionID())
	if err := controller.StartCall(ctx); err != nil {
		log.Fatalf("通话发起失败: %v", err)
	}

	engine.wait()
	// 留出落盘与通知副作用的时间。
	time.Sleep(time.Second)

	log.Printf("模拟结束: status=%s duration=%ds transcript=%d",
		controller.Status(), controller.Duration(), len(controller.Transcript()))
}

type scriptLine struct {
	role    string
	content string
}

func parseScript(raw string) []scriptLine {
	var lines []scriptLine
	for _, part := range strings.Split(raw, "|") {
		role, content, ok := strings.Cut(strings.TrimSpace(part), ":")
		if !ok || content == "" {
			continue
		}
		lines = append(lines, scriptLine{role: strings.TrimSpace(role), content: strings.TrimSpace(content)})
	}
	return lines
}

// scriptedEngine 按脚本回放一次通话的引擎事件。
type scriptedEngine struct {
	script    []scriptLine
	talkDelay time.Duration
	hold      time.Duration
	fail      bool

	events client.EngineEvents
	done   chan struct{}
}

func (e *scriptedEngine) Subscribe(events client.EngineEvents) {
	e.events = events
	e.done = make(chan struct{})
}

func (e *scriptedEngine) Start(_ context.Context, _ string) error {
	go e.run()
	return nil
}

func (e *scriptedEngine) run() {
	defer close(e.done)

	if e.fail {
		time.Sleep(e.talkDelay)
		if e.events.Error != nil {
			e.events.Error(context.DeadlineExceeded)
		}
		if e.events.CallEnd != nil {
			e.events.CallEnd()
		}
		return
	}

	if e.events.CallStart != nil {
		e.events.CallStart()
	}

	for _, line := range e.script {
		time.Sleep(e.talkDelay)
		if e.events.Transcript != nil {
			e.events.Transcript(line.role, line.content)
		}
	}

	time.Sleep(e.hold)
	if e.events.CallEnd != nil {
		e.events.CallEnd()
	}
}

func (e *scriptedEngine) Stop() {}

func (e *scriptedEngine) SetMuted(bool) {}

func (e *scriptedEngine) wait() {
	<-e.done
}
