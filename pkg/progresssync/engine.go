package progresssync

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"
)

// ProgressAPI 引擎依赖的远端进度接口，*Client 是默认实现
type ProgressAPI interface {
	FetchModuleProgress(ctx context.Context, moduleID uint) (*ModuleProgressResponse, error)
	PutLessonProgress(ctx context.Context, lessonID uint, req LessonUpdateRequest) (*LessonRecord, error)
}

const (
	defaultPositionDelta  = 5.0
	defaultFlushInterval  = 15 * time.Second
	defaultRequestTimeout = 10 * time.Second

	// 单次播放事件间可信的最大时长增量（秒），超过视为拖动
	maxTimeSpentStep = 30.0
)

// Option 引擎可选参数
type Option func(*Engine)

// WithPositionDelta 覆盖位置合并阈值（秒）
func WithPositionDelta(seconds float64) Option {
	return func(e *Engine) { e.positionDelta = seconds }
}

// WithFlushInterval 覆盖离线队列重试周期
func WithFlushInterval(d time.Duration) Option {
	return func(e *Engine) { e.flushEvery = d }
}

// WithRequestTimeout 覆盖单次请求超时
func WithRequestTimeout(d time.Duration) Option {
	return func(e *Engine) { e.reqTimeout = d }
}

type setLessonCmd struct {
	lessonID uint
	moduleID uint
}

type fetchResult struct {
	gen      uint64
	moduleID uint
	resp     *ModuleProgressResponse
	err      error
}

// pendingWrite 一节课待同步的增量。queued 表示因网络失败进入离线队列，
// 由周期 flush 重试；服务端拒绝的写不置 queued，等待下一次本地变更。
type pendingWrite struct {
	timeSpentDelta float64
	queued         bool
}

// Engine 同步引擎：把本地乐观更新按阈值合并后写到远端，
// 维护 idle/loading/saving/saved/offline-queued/error 状态机。
// 全部可变状态归属单个事件循环 goroutine。
type Engine struct {
	store *Store
	api   ProgressAPI

	positionDelta float64
	flushEvery    time.Duration
	reqTimeout    time.Duration

	playbackCh chan PlaybackEvent
	sectionCh  chan SectionCompleteEvent
	lessonCh   chan setLessonCmd
	fetchCh    chan fetchResult

	// 循环内状态
	lastSent        map[uint]float64
	pending         map[uint]*pendingWrite
	meta            map[uint]map[uint]LessonMeta
	moduleCompleted map[uint]*time.Time
	fetchGen        uint64

	mu     sync.Mutex
	status StatusUpdate
	subs   []chan StatusUpdate

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func NewEngine(store *Store, api ProgressAPI, opts ...Option) *Engine {
	e := &Engine{
		store:           store,
		api:             api,
		positionDelta:   defaultPositionDelta,
		flushEvery:      defaultFlushInterval,
		reqTimeout:      defaultRequestTimeout,
		playbackCh:      make(chan PlaybackEvent, 64),
		sectionCh:       make(chan SectionCompleteEvent, 16),
		lessonCh:        make(chan setLessonCmd, 4),
		fetchCh:         make(chan fetchResult, 4),
		lastSent:        make(map[uint]float64),
		pending:         make(map[uint]*pendingWrite),
		meta:            make(map[uint]map[uint]LessonMeta),
		moduleCompleted: make(map[uint]*time.Time),
		status:          StatusUpdate{Status: StatusIdle},
		stop:            make(chan struct{}),
		done:            make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start 启动事件循环
func (e *Engine) Start() {
	go e.run()
}

// Close 停止事件循环并等待退出
func (e *Engine) Close() {
	e.stopOnce.Do(func() { close(e.stop) })
	<-e.done
}

// PublishPlayback 投递播放位置事件（对应页面侧 lesson-progress 事件）
func (e *Engine) PublishPlayback(ev PlaybackEvent) {
	select {
	case e.playbackCh <- ev:
	case <-e.stop:
	}
}

// PublishSectionComplete 投递小节完成事件（对应 lesson-section-complete）
func (e *Engine) PublishSectionComplete(ev SectionCompleteEvent) {
	select {
	case e.sectionCh <- ev:
	case <-e.stop:
	}
}

// SetCurrentLesson 切换当前课程并触发该模块进度拉取。
// 之前课程的 in-flight 拉取结果到达后会因代际不匹配被丢弃。
func (e *Engine) SetCurrentLesson(lessonID, moduleID uint) {
	select {
	case e.lessonCh <- setLessonCmd{lessonID: lessonID, moduleID: moduleID}:
	case <-e.stop:
	}
}

// Status 当前同步状态快照
func (e *Engine) Status() StatusUpdate {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// Subscribe 订阅状态变化。慢消费者会丢最新一条而不是阻塞循环。
func (e *Engine) Subscribe() <-chan StatusUpdate {
	ch := make(chan StatusUpdate, 8)
	e.mu.Lock()
	e.subs = append(e.subs, ch)
	e.mu.Unlock()
	return ch
}

// ModuleProgress 由本地记录与目录元信息现算模块完成度
func (e *Engine) ModuleProgress(moduleID uint) ModuleProgress {
	e.mu.Lock()
	metas := make(map[uint]LessonMeta, len(e.meta[moduleID]))
	for id, m := range e.meta[moduleID] {
		metas[id] = m
	}
	completedAt := e.moduleCompleted[moduleID]
	e.mu.Unlock()

	records := e.store.Snapshot(moduleID)
	byLesson := make(map[uint]LessonProgress, len(records))
	for _, rec := range records {
		byLesson[rec.LessonID] = rec
	}

	states := make([]LessonState, 0, len(metas))
	seen := make(map[uint]bool, len(metas))
	for id, m := range metas {
		rec := byLesson[id]
		states = append(states, LessonState{
			Completed:      rec.IsCompleted,
			AllowEmpty:     m.AllowEmpty,
			TotalPages:     m.TotalPages,
			CompletedPages: rec.CompletedPages,
		})
		seen[id] = true
	}
	// 本地有记录但目录元信息未同步到的课程也计入
	for id, rec := range byLesson {
		if !seen[id] {
			states = append(states, LessonState{
				Completed:      rec.IsCompleted,
				CompletedPages: rec.CompletedPages,
			})
		}
	}

	return ComputeModuleProgress(states, completedAt)
}

func (e *Engine) setStatus(s Status, errMsg string) {
	e.mu.Lock()
	e.status = StatusUpdate{Status: s, Err: errMsg}
	update := e.status
	subs := e.subs
	e.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- update:
		default:
			// 腾出最旧的一条再试一次
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- update:
			default:
			}
		}
	}
}

func (e *Engine) run() {
	defer close(e.done)

	ticker := time.NewTicker(e.flushEvery)
	defer ticker.Stop()

	for {
		select {
		case ev := <-e.playbackCh:
			e.handlePlayback(ev)
		case ev := <-e.sectionCh:
			e.handleSection(ev)
		case cmd := <-e.lessonCh:
			e.handleSetLesson(cmd)
		case res := <-e.fetchCh:
			e.handleFetchResult(res)
		case <-ticker.C:
			e.retryQueued()
		case <-e.stop:
			return
		}
	}
}

func (e *Engine) handlePlayback(ev PlaybackEvent) {
	prev, had := e.store.Get(ev.LessonID)
	moduleID := e.moduleFor(prev, had)

	rec := e.store.Update(ev.LessonID, moduleID, Update{
		PositionSeconds: &ev.PositionSeconds,
		Progress:        &ev.Progress,
	})

	pw := e.pendingFor(ev.LessonID)
	if step := rec.PositionSeconds - prev.PositionSeconds; step > 0 && step <= maxTimeSpentStep {
		pw.timeSpentDelta += step
	}

	if e.shouldEmit(ev.LessonID, rec.PositionSeconds) {
		e.flush(ev.LessonID)
	}
}

// shouldEmit 位置变化 ≥ 阈值，或跨过分钟边界时才发写请求
func (e *Engine) shouldEmit(lessonID uint, position float64) bool {
	last, sentBefore := e.lastSent[lessonID]
	if !sentBefore {
		return true
	}
	if math.Abs(position-last) >= e.positionDelta {
		return true
	}
	return int(position/60) != int(last/60)
}

// moduleFor 课程已有记录时沿用其模块归属，只有新课程才落到当前模块。
// 切换课程后迟到的事件不会把旧课程挂到新模块下。
func (e *Engine) moduleFor(prev LessonProgress, had bool) uint {
	if had && prev.ModuleID != 0 {
		return prev.ModuleID
	}
	_, moduleID := e.store.CurrentLesson()
	return moduleID
}

func (e *Engine) handleSection(ev SectionCompleteEvent) {
	prev, had := e.store.Get(ev.LessonID)
	moduleID := e.moduleFor(prev, had)

	u := Update{Progress: &ev.Progress}
	if ev.MarkCompleted {
		completed := true
		u.IsCompleted = &completed
	}
	e.store.Update(ev.LessonID, moduleID, u)

	// 小节完成不参与合并，总是立即同步
	e.pendingFor(ev.LessonID)
	e.flush(ev.LessonID)
}

func (e *Engine) pendingFor(lessonID uint) *pendingWrite {
	pw, ok := e.pending[lessonID]
	if !ok {
		pw = &pendingWrite{}
		e.pending[lessonID] = pw
	}
	return pw
}

func (e *Engine) flush(lessonID uint) {
	rec, ok := e.store.Get(lessonID)
	if !ok {
		delete(e.pending, lessonID)
		return
	}
	pw := e.pendingFor(lessonID)

	e.setStatus(StatusSaving, "")

	percentage := rec.Progress * 100
	req := LessonUpdateRequest{
		Progress:             &rec.Progress,
		Completed:            &rec.IsCompleted,
		CompletionPercentage: &percentage,
		PositionSeconds:      &rec.PositionSeconds,
		CompletedPages:       &rec.CompletedPages,
		Attempts:             &rec.Attempts,
		Score:                &rec.Score,
		TimeSpentDelta:       pw.timeSpentDelta,
		Metadata:             rec.Metadata,
		LastAccessed:         rec.ClientUpdatedAt,
	}

	ctx, cancel := context.WithTimeout(context.Background(), e.reqTimeout)
	defer cancel()

	resp, err := e.api.PutLessonProgress(ctx, lessonID, req)
	switch {
	case err == nil:
		e.lastSent[lessonID] = rec.PositionSeconds
		delete(e.pending, lessonID)
		// 服务端可能裁决了一次迟到写并返回库内较新记录，
		// 走 ApplyRemote 的 last-write-wins 让本地收敛到权威状态
		moduleID := resp.ModuleID
		if moduleID == 0 {
			moduleID = rec.ModuleID
		}
		e.store.ApplyRemote(LessonProgress{
			LessonID:        lessonID,
			ModuleID:        moduleID,
			PositionSeconds: resp.PositionSeconds,
			Progress:        resp.Progress,
			IsCompleted:     resp.Completed,
			CompletedPages:  resp.CompletedPages,
			Attempts:        resp.Attempts,
			Score:           resp.Score,
			Metadata:        resp.Metadata,
			ServerUpdatedAt: resp.UpdatedAt,
		})
		e.setStatus(StatusSaved, "")
	case errors.Is(err, ErrOffline):
		// 本地记录原样保留，进入离线队列等周期重试
		pw.queued = true
		e.setStatus(StatusOfflineQueued, "")
	default:
		// 服务端拒绝：保留本地值，上报错误，不自动重试
		pw.queued = false
		e.setStatus(StatusError, err.Error())
	}
}

func (e *Engine) retryQueued() {
	for lessonID, pw := range e.pending {
		if pw.queued {
			e.flush(lessonID)
		}
	}
}

func (e *Engine) handleSetLesson(cmd setLessonCmd) {
	e.store.SetCurrentLesson(cmd.lessonID, cmd.moduleID)
	e.fetchGen++
	gen := e.fetchGen

	e.setStatus(StatusLoading, "")

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), e.reqTimeout)
		defer cancel()
		resp, err := e.api.FetchModuleProgress(ctx, cmd.moduleID)
		select {
		case e.fetchCh <- fetchResult{gen: gen, moduleID: cmd.moduleID, resp: resp, err: err}:
		case <-e.stop:
		}
	}()
}

func (e *Engine) handleFetchResult(res fetchResult) {
	if res.gen != e.fetchGen {
		// 课程已切换，过期结果直接丢弃
		return
	}
	if res.err != nil {
		e.setStatus(StatusError, res.err.Error())
		return
	}

	metas := make(map[uint]LessonMeta, len(res.resp.Lessons))
	for _, lr := range res.resp.Lessons {
		metas[lr.LessonID] = LessonMeta{
			LessonID:   lr.LessonID,
			AllowEmpty: lr.AllowEmpty,
			TotalPages: lr.TotalPages,
		}
		e.store.ApplyRemote(LessonProgress{
			LessonID:        lr.LessonID,
			ModuleID:        res.moduleID,
			PositionSeconds: lr.PositionSeconds,
			Progress:        lr.Progress,
			IsCompleted:     lr.Completed,
			CompletedPages:  lr.CompletedPages,
			Attempts:        lr.Attempts,
			Score:           lr.Score,
			Metadata:        lr.Metadata,
			ServerUpdatedAt: lr.UpdatedAt,
		})
	}

	e.mu.Lock()
	e.meta[res.moduleID] = metas
	e.moduleCompleted[res.moduleID] = res.resp.Summary.CompletedAt
	e.mu.Unlock()

	e.setStatus(StatusSaved, "")
}
