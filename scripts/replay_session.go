// 回放一段录制的学习会话，驱动进度同步引擎对真实服务端写入。
//
// 用于联调：把前端录下的播放/小节事件序列整理成 YAML，
// 按时间轴回放并在结束时打印模块聚合进度。
//
// 用法: go run scripts/replay_session.go session.yaml
//
// YAML 格式:
//
//	base_url: http://localhost:8080
//	token: <jwt>
//	module_id: 1
//	speed: 10        # 回放倍速，默认 10
//	events:
//	  - type: playback
//	    lesson_id: 3
//	    at_ms: 0
//	    position_seconds: 12.5
//	    progress: 0.1
//	  - type: section
//	    lesson_id: 3
//	    at_ms: 4000
//	    progress: 0.5
//	    mark_completed: true
package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"vent_edu_backend/pkg/progresssync"

	"gopkg.in/yaml.v3"
)

type recordedEvent struct {
	Type            string  `yaml:"type"`
	LessonID        uint    `yaml:"lesson_id"`
	AtMs            int64   `yaml:"at_ms"`
	PositionSeconds float64 `yaml:"position_seconds"`
	Progress        float64 `yaml:"progress"`
	MarkCompleted   bool    `yaml:"mark_completed"`
}

type recordedSession struct {
	BaseURL  string          `yaml:"base_url"`
	Token    string          `yaml:"token"`
	ModuleID uint            `yaml:"module_id"`
	Speed    float64         `yaml:"speed"`
	Events   []recordedEvent `yaml:"events"`
}

func main() {
	if len(os.Args) < 2 {
		log.Fatal("用法: go run scripts/replay_session.go <session.yaml>")
	}

	data, err := os.ReadFile(os.Args[1])
	if err != nil {
		log.Fatalf("无法读取会话文件: %v", err)
	}

	var session recordedSession
	if err := yaml.Unmarshal(data, &session); err != nil {
		log.Fatalf("解析会话文件失败: %v", err)
	}
	if session.Speed <= 0 {
		session.Speed = 10
	}
	if len(session.Events) == 0 {
		log.Fatal("会话中没有事件")
	}

	client := progresssync.NewClient(session.BaseURL, session.Token)
	store := progresssync.NewStore()
	engine := progresssync.NewEngine(store, client,
		progresssync.WithFlushInterval(3*time.Second))
	engine.Start()
	defer engine.Close()

	// 状态变化输出到终端
	statusCh := engine.Subscribe()
	go func() {
		for update := range statusCh {
			if update.Err != "" {
				log.Printf("status=%s err=%s", update.Status, update.Err)
			} else {
				log.Printf("status=%s", update.Status)
			}
		}
	}()

	log.Printf("回放会话: module=%d events=%d speed=%.0fx session=%s",
		session.ModuleID, len(session.Events), session.Speed, client.Session())

	engine.SetCurrentLesson(session.Events[0].LessonID, session.ModuleID)

	var lastAt int64
	for _, ev := range session.Events {
		if gap := ev.AtMs - lastAt; gap > 0 {
			time.Sleep(time.Duration(float64(gap)/session.Speed) * time.Millisecond)
		}
		lastAt = ev.AtMs

		switch ev.Type {
		case "playback":
			engine.PublishPlayback(progresssync.PlaybackEvent{
				LessonID:        ev.LessonID,
				PositionSeconds: ev.PositionSeconds,
				Progress:        ev.Progress,
			})
		case "section":
			engine.PublishSectionComplete(progresssync.SectionCompleteEvent{
				LessonID:      ev.LessonID,
				Progress:      ev.Progress,
				MarkCompleted: ev.MarkCompleted,
			})
		default:
			log.Printf("跳过未知事件类型: %q", ev.Type)
		}
	}

	// 等最后一批写入落地
	time.Sleep(4 * time.Second)

	summary := engine.ModuleProgress(session.ModuleID)
	fmt.Printf("模块进度: %d/%d 课完成 (%d%%), 页数 %d/%d, 已完成=%v\n",
		summary.CompletedLessons, summary.TotalLessons, summary.Percentage,
		summary.CompletedPages, summary.TotalPages, summary.IsCompleted)
}
