package progresssync

import (
	"sync"
	"time"
)

// LessonProgress 单节课的本地进度记录
type LessonProgress struct {
	LessonID        uint                   `json:"lessonId"`
	ModuleID        uint                   `json:"moduleId"`
	PositionSeconds float64                `json:"positionSeconds"`
	Progress        float64                `json:"progress"`
	IsCompleted     bool                   `json:"isCompleted"`
	CompletedPages  int                    `json:"completedPages"`
	Attempts        int                    `json:"attempts"`
	Score           float64                `json:"score"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
	ClientUpdatedAt time.Time              `json:"clientUpdatedAt"`
	ServerUpdatedAt time.Time              `json:"serverUpdatedAt"`
}

// Update 部分更新，nil 字段保持原值
type Update struct {
	PositionSeconds *float64
	Progress        *float64
	IsCompleted     *bool
	CompletedPages  *int
	Attempts        *int
	Score           *float64
	Metadata        map[string]interface{}
}

// Store 本地进度缓存，按 lessonID 保存记录。
// 所有变更都经过 Update / ApplyRemote 两个入口，保证时间戳语义一致。
type Store struct {
	mu            sync.Mutex
	records       map[uint]*LessonProgress
	currentLesson uint
	currentModule uint

	now func() time.Time
}

func NewStore() *Store {
	return &Store{
		records: make(map[uint]*LessonProgress),
		now:     time.Now,
	}
}

func clampProgress(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

func clampPosition(pos float64) float64 {
	if pos < 0 {
		return 0
	}
	return pos
}

// Get 返回指定课程的进度副本
func (s *Store) Get(lessonID uint) (LessonProgress, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[lessonID]
	if !ok {
		return LessonProgress{}, false
	}
	return *rec, true
}

// Update 把部分字段合并进现有记录（不存在时基于零值记录创建），
// 同时做范围收敛并盖上 ClientUpdatedAt。返回合并后的副本。
func (s *Store) Update(lessonID, moduleID uint, u Update) LessonProgress {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[lessonID]
	if !ok {
		rec = &LessonProgress{LessonID: lessonID, ModuleID: moduleID}
		s.records[lessonID] = rec
	}
	if moduleID != 0 {
		rec.ModuleID = moduleID
	}

	if u.PositionSeconds != nil {
		rec.PositionSeconds = clampPosition(*u.PositionSeconds)
	}
	if u.Progress != nil {
		rec.Progress = clampProgress(*u.Progress)
	}
	if u.IsCompleted != nil {
		rec.IsCompleted = *u.IsCompleted
	}
	if u.CompletedPages != nil {
		if *u.CompletedPages >= 0 {
			rec.CompletedPages = *u.CompletedPages
		}
	}
	if u.Attempts != nil {
		rec.Attempts = *u.Attempts
	}
	if u.Score != nil {
		rec.Score = *u.Score
	}
	if u.Metadata != nil {
		if rec.Metadata == nil {
			rec.Metadata = make(map[string]interface{}, len(u.Metadata))
		}
		for k, v := range u.Metadata {
			rec.Metadata[k] = v
		}
	}

	rec.ClientUpdatedAt = s.now()
	return *rec
}

// ApplyRemote 应用服务端记录，last-write-wins：只有服务端时间戳更新时才覆盖本地。
// 返回是否实际应用。
func (s *Store) ApplyRemote(rec LessonProgress) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	local, ok := s.records[rec.LessonID]
	if ok && local.ClientUpdatedAt.After(rec.ServerUpdatedAt) {
		// 本地乐观更新更新，保留等待同步
		local.ServerUpdatedAt = rec.ServerUpdatedAt
		return false
	}

	applied := rec
	applied.Progress = clampProgress(applied.Progress)
	applied.PositionSeconds = clampPosition(applied.PositionSeconds)
	s.records[rec.LessonID] = &applied
	return true
}

// SetCurrentLesson 切换当前课程，隐式废弃对上一课程 in-flight 拉取的兴趣
func (s *Store) SetCurrentLesson(lessonID, moduleID uint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentLesson = lessonID
	s.currentModule = moduleID
}

func (s *Store) CurrentLesson() (lessonID, moduleID uint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentLesson, s.currentModule
}

// Snapshot 返回指定模块下所有记录的副本
func (s *Store) Snapshot(moduleID uint) []LessonProgress {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]LessonProgress, 0, len(s.records))
	for _, rec := range s.records {
		if rec.ModuleID == moduleID {
			out = append(out, *rec)
		}
	}
	return out
}
