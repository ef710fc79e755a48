package progresssync

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAPI 可注入错误的 ProgressAPI 桩
type fakeAPI struct {
	mu        sync.Mutex
	puts      []LessonUpdateRequest
	putErr    error
	putResp   *LessonRecord // 非 nil 时覆盖回显，模拟服务端裁决后的库内记录
	fetchResp *ModuleProgressResponse
	fetchErr  error
	fetchGate chan struct{} // 非 nil 时，fetch 阻塞到收到信号
}

func (f *fakeAPI) FetchModuleProgress(ctx context.Context, moduleID uint) (*ModuleProgressResponse, error) {
	f.mu.Lock()
	gate := f.fetchGate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	if f.fetchResp != nil {
		return f.fetchResp, nil
	}
	return &ModuleProgressResponse{}, nil
}

func (f *fakeAPI) PutLessonProgress(ctx context.Context, lessonID uint, req LessonUpdateRequest) (*LessonRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.putErr != nil {
		return nil, f.putErr
	}
	f.puts = append(f.puts, req)
	if f.putResp != nil {
		return f.putResp, nil
	}
	// 正常路径下服务端回显合并后的记录，时间戳取 lastAccessed
	rec := &LessonRecord{LessonID: lessonID, UpdatedAt: req.LastAccessed}
	if req.Progress != nil {
		rec.Progress = *req.Progress
	}
	if req.Completed != nil {
		rec.Completed = *req.Completed
	}
	if req.PositionSeconds != nil {
		rec.PositionSeconds = *req.PositionSeconds
	}
	if req.CompletedPages != nil {
		rec.CompletedPages = *req.CompletedPages
	}
	if req.Attempts != nil {
		rec.Attempts = *req.Attempts
	}
	if req.Score != nil {
		rec.Score = *req.Score
	}
	return rec, nil
}

func (f *fakeAPI) putCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.puts)
}

func (f *fakeAPI) setPutErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.putErr = err
}

func newTestEngine(t *testing.T, api ProgressAPI, opts ...Option) (*Engine, *Store) {
	t.Helper()
	store := NewStore()
	engine := NewEngine(store, api, opts...)
	engine.Start()
	t.Cleanup(engine.Close)
	return engine, store
}

func TestEngineSubThresholdUpdateDoesNotWrite(t *testing.T) {
	api := &fakeAPI{}
	engine, _ := newTestEngine(t, api)

	// 第一个事件建立基线，会触发一次写
	engine.PublishPlayback(PlaybackEvent{LessonID: 1, PositionSeconds: 10, Progress: 0.1})
	require.Eventually(t, func() bool { return api.putCount() == 1 }, time.Second, 5*time.Millisecond)

	// 位移 3 秒，低于 5 秒阈值且未跨分钟边界：不应有第二次写
	engine.PublishPlayback(PlaybackEvent{LessonID: 1, PositionSeconds: 13, Progress: 0.12})
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, api.putCount())
}

func TestEngineThresholdCrossedTriggersWrite(t *testing.T) {
	api := &fakeAPI{}
	engine, _ := newTestEngine(t, api)

	engine.PublishPlayback(PlaybackEvent{LessonID: 1, PositionSeconds: 10, Progress: 0.1})
	require.Eventually(t, func() bool { return api.putCount() == 1 }, time.Second, 5*time.Millisecond)

	engine.PublishPlayback(PlaybackEvent{LessonID: 1, PositionSeconds: 16, Progress: 0.15})
	require.Eventually(t, func() bool { return api.putCount() == 2 }, time.Second, 5*time.Millisecond)
}

func TestEngineMinuteBoundaryTriggersWrite(t *testing.T) {
	api := &fakeAPI{}
	engine, _ := newTestEngine(t, api)

	engine.PublishPlayback(PlaybackEvent{LessonID: 1, PositionSeconds: 58, Progress: 0.1})
	require.Eventually(t, func() bool { return api.putCount() == 1 }, time.Second, 5*time.Millisecond)

	// 位移仅 3 秒但跨过 60 秒边界
	engine.PublishPlayback(PlaybackEvent{LessonID: 1, PositionSeconds: 61, Progress: 0.11})
	require.Eventually(t, func() bool { return api.putCount() == 2 }, time.Second, 5*time.Millisecond)
}

func TestEngineSectionCompleteAlwaysWrites(t *testing.T) {
	api := &fakeAPI{}
	engine, store := newTestEngine(t, api)

	engine.PublishSectionComplete(SectionCompleteEvent{LessonID: 2, Progress: 1.0, MarkCompleted: true})
	require.Eventually(t, func() bool { return api.putCount() == 1 }, time.Second, 5*time.Millisecond)

	rec, ok := store.Get(2)
	require.True(t, ok)
	assert.True(t, rec.IsCompleted)
	assert.Equal(t, 1.0, rec.Progress)
}

func TestEngineNetworkFailureQueuesOffline(t *testing.T) {
	api := &fakeAPI{}
	api.setPutErr(ErrOffline)
	engine, store := newTestEngine(t, api, WithFlushInterval(20*time.Millisecond))

	engine.PublishPlayback(PlaybackEvent{LessonID: 1, PositionSeconds: 30, Progress: 0.3})

	require.Eventually(t, func() bool {
		return engine.Status().Status == StatusOfflineQueued
	}, time.Second, 5*time.Millisecond)

	// 乐观值原样保留
	rec, ok := store.Get(1)
	require.True(t, ok)
	assert.Equal(t, 30.0, rec.PositionSeconds)
	assert.Equal(t, 0.3, rec.Progress)

	// 网络恢复后周期 flush 补发
	api.setPutErr(nil)
	require.Eventually(t, func() bool { return api.putCount() >= 1 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		return engine.Status().Status == StatusSaved
	}, time.Second, 5*time.Millisecond)
}

func TestEngineServerRejectionReportsError(t *testing.T) {
	api := &fakeAPI{}
	api.setPutErr(&ServerError{StatusCode: http.StatusUnprocessableEntity, Message: "bad payload"})
	engine, store := newTestEngine(t, api, WithFlushInterval(20*time.Millisecond))

	engine.PublishPlayback(PlaybackEvent{LessonID: 1, PositionSeconds: 30, Progress: 0.3})

	require.Eventually(t, func() bool {
		return engine.Status().Status == StatusError
	}, time.Second, 5*time.Millisecond)
	assert.Contains(t, engine.Status().Err, "bad payload")

	// 本地值保留，但不会自动重试
	rec, _ := store.Get(1)
	assert.Equal(t, 30.0, rec.PositionSeconds)
	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, 0, api.putCount())
}

func TestEngineFetchPopulatesStoreAndAggregation(t *testing.T) {
	api := &fakeAPI{
		fetchResp: &ModuleProgressResponse{
			Lessons: []LessonRecord{
				{LessonID: 1, ModuleID: 5, Completed: true, Progress: 1, UpdatedAt: time.Now()},
				{LessonID: 2, ModuleID: 5, Completed: false, Progress: 0.4, UpdatedAt: time.Now()},
				{LessonID: 3, ModuleID: 5, Completed: true, Progress: 1, UpdatedAt: time.Now()},
			},
		},
	}
	engine, store := newTestEngine(t, api)

	engine.SetCurrentLesson(1, 5)

	require.Eventually(t, func() bool {
		return engine.Status().Status == StatusSaved
	}, time.Second, 5*time.Millisecond)

	rec, ok := store.Get(2)
	require.True(t, ok)
	assert.Equal(t, 0.4, rec.Progress)

	mp := engine.ModuleProgress(5)
	assert.Equal(t, 2, mp.CompletedLessons)
	assert.Equal(t, 3, mp.TotalLessons)
	assert.Equal(t, 67, mp.Percentage)
}

func TestEngineStaleFetchDropped(t *testing.T) {
	gate := make(chan struct{})
	api := &fakeAPI{fetchGate: gate}
	engine, store := newTestEngine(t, api)

	// 第一次拉取被卡住
	engine.SetCurrentLesson(1, 5)
	require.Eventually(t, func() bool {
		return engine.Status().Status == StatusLoading
	}, time.Second, 5*time.Millisecond)

	// 切换课程，放开第二次拉取
	api.mu.Lock()
	api.fetchGate = nil
	api.fetchResp = &ModuleProgressResponse{
		Lessons: []LessonRecord{{LessonID: 9, ModuleID: 6, Progress: 0.9, UpdatedAt: time.Now()}},
	}
	api.mu.Unlock()
	engine.SetCurrentLesson(9, 6)

	require.Eventually(t, func() bool {
		return engine.Status().Status == StatusSaved
	}, time.Second, 5*time.Millisecond)

	// 放开第一次拉取：结果代际过期，必须被丢弃
	api.mu.Lock()
	api.fetchResp = &ModuleProgressResponse{
		Lessons: []LessonRecord{{LessonID: 1, ModuleID: 5, Progress: 0.1, UpdatedAt: time.Now()}},
	}
	api.mu.Unlock()
	close(gate)

	time.Sleep(50 * time.Millisecond)
	_, ok := store.Get(1)
	assert.False(t, ok)

	rec, ok := store.Get(9)
	require.True(t, ok)
	assert.Equal(t, 0.9, rec.Progress)
}

func TestEngineAppliesServerRecordAfterWrite(t *testing.T) {
	api := &fakeAPI{
		// 服务端丢弃了迟到写，返回库内较新的记录
		putResp: &LessonRecord{
			LessonID:        1,
			PositionSeconds: 120,
			Progress:        0.8,
			UpdatedAt:       time.Now().Add(time.Hour),
		},
	}
	engine, store := newTestEngine(t, api)

	engine.PublishPlayback(PlaybackEvent{LessonID: 1, PositionSeconds: 30, Progress: 0.3})
	require.Eventually(t, func() bool {
		return engine.Status().Status == StatusSaved
	}, time.Second, 5*time.Millisecond)

	// 本地收敛到服务端权威状态
	require.Eventually(t, func() bool {
		rec, ok := store.Get(1)
		return ok && rec.PositionSeconds == 120
	}, time.Second, 5*time.Millisecond)
	rec, _ := store.Get(1)
	assert.Equal(t, 0.8, rec.Progress)
}

func TestEngineLateEventKeepsLessonModule(t *testing.T) {
	api := &fakeAPI{}
	engine, store := newTestEngine(t, api)

	engine.SetCurrentLesson(1, 5)
	require.Eventually(t, func() bool {
		_, moduleID := store.CurrentLesson()
		return moduleID == 5
	}, time.Second, 5*time.Millisecond)

	engine.PublishPlayback(PlaybackEvent{LessonID: 1, PositionSeconds: 10, Progress: 0.1})
	require.Eventually(t, func() bool { return api.putCount() == 1 }, time.Second, 5*time.Millisecond)

	// 切到另一模块后，上一课程的迟到事件仍归属原模块
	engine.SetCurrentLesson(9, 6)
	require.Eventually(t, func() bool {
		lessonID, _ := store.CurrentLesson()
		return lessonID == 9
	}, time.Second, 5*time.Millisecond)

	engine.PublishPlayback(PlaybackEvent{LessonID: 1, PositionSeconds: 20, Progress: 0.2})
	require.Eventually(t, func() bool { return api.putCount() == 2 }, time.Second, 5*time.Millisecond)

	rec, ok := store.Get(1)
	require.True(t, ok)
	assert.Equal(t, uint(5), rec.ModuleID)
	assert.Empty(t, store.Snapshot(6))
}

func TestEngineStatusSubscription(t *testing.T) {
	api := &fakeAPI{}
	engine, _ := newTestEngine(t, api)

	updates := engine.Subscribe()
	engine.PublishPlayback(PlaybackEvent{LessonID: 1, PositionSeconds: 10, Progress: 0.1})

	seen := make(map[Status]bool)
	deadline := time.After(time.Second)
	for !seen[StatusSaved] {
		select {
		case u := <-updates:
			seen[u.Status] = true
		case <-deadline:
			t.Fatal("timed out waiting for saved status")
		}
	}
	assert.True(t, seen[StatusSaving])
	assert.True(t, seen[StatusSaved])
}
