package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"vent_edu_backend/internal/config"
	"vent_edu_backend/internal/model"
	"vent_edu_backend/internal/repository"
	"vent_edu_backend/internal/util"
	"vent_edu_backend/pkg/logger"
	"vent_edu_backend/pkg/monitoring"
	"vent_edu_backend/pkg/progresssync"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// 单次提交可累计的学习时长上限（秒），防御异常客户端
const maxTimeSpentDelta = 3600.0

// ProgressService 课程进度写入与模块级聚合
type ProgressService struct {
	ProgressRepo *repository.ProgressRepository
	ModuleRepo   *repository.ModuleRepository
	Redis        *redis.Client
	Cfg          *config.Config
}

func NewProgressService(progressRepo *repository.ProgressRepository, moduleRepo *repository.ModuleRepository, rdb *redis.Client, cfg *config.Config) *ProgressService {
	return &ProgressService{
		ProgressRepo: progressRepo,
		ModuleRepo:   moduleRepo,
		Redis:        rdb,
		Cfg:          cfg,
	}
}

// ApplyLessonUpdate 合并一次客户端进度提交。
// 以 lastAccessed 做 last-write-wins 裁决：迟到的旧写会被丢弃，返回当前库内记录。
func (s *ProgressService) ApplyLessonUpdate(ctx context.Context, userID, lessonID uint, req progresssync.LessonUpdateRequest, clientSession string) (*progresssync.LessonRecord, error) {
	lesson, err := s.ModuleRepo.FindLessonByID(lessonID)
	if err != nil {
		return nil, util.ErrLessonNotFound
	}

	if err := validateUpdate(req); err != nil {
		monitoring.ProgressWriteCounter.WithLabelValues("rejected").Inc()
		return nil, err
	}

	at := req.LastAccessed
	if at.IsZero() {
		at = time.Now()
	}

	record := model.LessonProgress{
		UserID:        userID,
		LessonID:      lessonID,
		ModuleID:      lesson.ModuleID,
		LastAccessed:  at,
		ClientSession: clientSession,
	}

	var stale *model.LessonProgress
	err = s.ProgressRepo.SaveLessonProgress(&record, func(existing *model.LessonProgress) error {
		if existing != nil {
			if at.Before(existing.LastAccessed) {
				stale = existing
				return util.ErrStaleWrite
			}
			record.PositionSeconds = existing.PositionSeconds
			record.Progress = existing.Progress
			record.Completed = existing.Completed
			record.CompletedPages = existing.CompletedPages
			record.Attempts = existing.Attempts
			record.Score = existing.Score
			record.TimeSpentSeconds = existing.TimeSpentSeconds
			record.Metadata = existing.Metadata
		}
		mergeUpdate(&record, req, lesson)
		return nil
	})

	if errors.Is(err, util.ErrStaleWrite) {
		// 迟到的写：保留库内较新状态，把它返回给客户端
		logger.Log.Debug("Dropped stale progress write",
			zap.Uint("userID", userID),
			zap.Uint("lessonID", lessonID),
			zap.Time("incoming", at),
			zap.Time("existing", stale.LastAccessed))
		monitoring.ProgressWriteCounter.WithLabelValues("stale").Inc()
		wire := toLessonRecord(stale, lesson)
		return &wire, nil
	}
	if err != nil {
		monitoring.ProgressWriteCounter.WithLabelValues("error").Inc()
		return nil, err
	}

	monitoring.ProgressWriteCounter.WithLabelValues("applied").Inc()
	s.invalidateModuleCache(ctx, userID, lesson.ModuleID)

	s.finalizeModuleCompletion(userID, lesson.ModuleID)

	wire := toLessonRecord(&record, lesson)
	return &wire, nil
}

// GetModuleProgress 模块进度：课程记录列表 + 现算的聚合摘要，短 TTL 缓存
func (s *ProgressService) GetModuleProgress(ctx context.Context, userID, moduleID uint) (*progresssync.ModuleProgressResponse, error) {
	cacheKey := moduleCacheKey(userID, moduleID)
	if s.Redis != nil {
		cached, err := s.Redis.Get(ctx, cacheKey).Result()
		if err == nil {
			var resp progresssync.ModuleProgressResponse
			if err := json.Unmarshal([]byte(cached), &resp); err == nil {
				return &resp, nil
			}
		}
	}

	module, err := s.ModuleRepo.FindByID(moduleID)
	if err != nil {
		return nil, util.ErrModuleNotFound
	}

	records, err := s.ProgressRepo.ListModuleProgress(userID, moduleID)
	if err != nil {
		return nil, err
	}
	byLesson := make(map[uint]*model.LessonProgress, len(records))
	for i := range records {
		byLesson[records[i].LessonID] = &records[i]
	}

	var completedAt *time.Time
	if completion, err := s.ProgressRepo.FindModuleCompletion(userID, moduleID); err == nil {
		completedAt = completion.CompletedAt
	}

	states := make([]progresssync.LessonState, 0, len(module.Lessons))
	wires := make([]progresssync.LessonRecord, 0, len(module.Lessons))
	for i := range module.Lessons {
		lesson := &module.Lessons[i]
		rec := byLesson[lesson.ID]

		state := progresssync.LessonState{
			AllowEmpty: lesson.AllowEmpty,
			TotalPages: lesson.TotalPages,
		}
		if rec != nil {
			state.Completed = rec.Completed
			state.CompletedPages = rec.CompletedPages
		}
		states = append(states, state)
		wires = append(wires, toLessonRecord(rec, lesson))
	}

	resp := progresssync.ModuleProgressResponse{
		Summary: progresssync.ComputeModuleProgress(states, completedAt),
		Lessons: wires,
	}

	if s.Redis != nil {
		if data, err := json.Marshal(&resp); err == nil {
			ttl := time.Duration(s.Cfg.Progress.CacheTTLSeconds) * time.Second
			s.Redis.Set(ctx, cacheKey, data, ttl)
		}
	}

	return &resp, nil
}

// finalizeModuleCompletion 聚合一次模块进度，首次到达全部完成则落完成标记
func (s *ProgressService) finalizeModuleCompletion(userID, moduleID uint) {
	summary, err := s.computeSummary(userID, moduleID)
	if err != nil {
		logger.Log.Error("Failed to compute module summary",
			zap.Uint("userID", userID),
			zap.Uint("moduleID", moduleID),
			zap.Error(err))
		return
	}
	if summary.IsCompleted && summary.CompletedAt == nil {
		if err := s.ProgressRepo.MarkModuleCompleted(userID, moduleID, time.Now()); err != nil {
			logger.Log.Error("Failed to mark module completed",
				zap.Uint("userID", userID),
				zap.Uint("moduleID", moduleID),
				zap.Error(err))
		}
	}
}

func (s *ProgressService) computeSummary(userID, moduleID uint) (*progresssync.ModuleProgress, error) {
	module, err := s.ModuleRepo.FindByID(moduleID)
	if err != nil {
		return nil, err
	}
	records, err := s.ProgressRepo.ListModuleProgress(userID, moduleID)
	if err != nil {
		return nil, err
	}
	byLesson := make(map[uint]*model.LessonProgress, len(records))
	for i := range records {
		byLesson[records[i].LessonID] = &records[i]
	}

	var completedAt *time.Time
	if completion, err := s.ProgressRepo.FindModuleCompletion(userID, moduleID); err == nil {
		completedAt = completion.CompletedAt
	}

	states := make([]progresssync.LessonState, 0, len(module.Lessons))
	for i := range module.Lessons {
		lesson := &module.Lessons[i]
		state := progresssync.LessonState{
			AllowEmpty: lesson.AllowEmpty,
			TotalPages: lesson.TotalPages,
		}
		if rec := byLesson[lesson.ID]; rec != nil {
			state.Completed = rec.Completed
			state.CompletedPages = rec.CompletedPages
		}
		states = append(states, state)
	}

	summary := progresssync.ComputeModuleProgress(states, completedAt)
	return &summary, nil
}

func (s *ProgressService) invalidateModuleCache(ctx context.Context, userID, moduleID uint) {
	if s.Redis != nil {
		s.Redis.Del(ctx, moduleCacheKey(userID, moduleID))
	}
}

func moduleCacheKey(userID, moduleID uint) string {
	return fmt.Sprintf("ventedu:progress:%d:%d", userID, moduleID)
}

func validateUpdate(req progresssync.LessonUpdateRequest) error {
	if req.Progress != nil && (*req.Progress < 0 || *req.Progress > 1) {
		return util.ErrProgressRange
	}
	if req.CompletionPercentage != nil && (*req.CompletionPercentage < 0 || *req.CompletionPercentage > 100) {
		return util.ErrProgressRange
	}
	if req.PositionSeconds != nil && *req.PositionSeconds < 0 {
		return util.ErrProgressRange
	}
	if req.CompletedPages != nil && *req.CompletedPages < 0 {
		return util.ErrProgressRange
	}
	if req.TimeSpentDelta < 0 {
		return util.ErrProgressRange
	}
	return nil
}

// mergeUpdate 把提交的字段合并进记录，缺省字段保持原值
func mergeUpdate(record *model.LessonProgress, req progresssync.LessonUpdateRequest, lesson *model.Lesson) {
	if req.Progress != nil {
		record.Progress = util.Clamp01(*req.Progress)
	} else if req.CompletionPercentage != nil {
		// completionPercentage 走 0-100 口径，落库统一为 0-1
		record.Progress = util.Clamp01(*req.CompletionPercentage / 100)
	}

	if req.PositionSeconds != nil {
		record.PositionSeconds = *req.PositionSeconds
	}

	if req.Completed != nil {
		record.Completed = *req.Completed
	}
	if record.Progress >= 1 {
		record.Completed = true
	}

	if req.CompletedPages != nil {
		pages := *req.CompletedPages
		if lesson.TotalPages > 0 && pages > lesson.TotalPages {
			pages = lesson.TotalPages
		}
		record.CompletedPages = pages
	}

	if req.Attempts != nil {
		record.Attempts = *req.Attempts
	}
	if req.Score != nil {
		record.Score = *req.Score
	}

	if req.TimeSpentDelta > 0 && req.TimeSpentDelta <= maxTimeSpentDelta {
		record.TimeSpentSeconds += req.TimeSpentDelta
	}

	if req.Metadata != nil {
		record.Metadata = req.Metadata
	}
}

func toLessonRecord(rec *model.LessonProgress, lesson *model.Lesson) progresssync.LessonRecord {
	wire := progresssync.LessonRecord{
		LessonID:   lesson.ID,
		ModuleID:   lesson.ModuleID,
		AllowEmpty: lesson.AllowEmpty,
		TotalPages: lesson.TotalPages,
	}
	if rec != nil {
		wire.PositionSeconds = rec.PositionSeconds
		wire.Progress = rec.Progress
		wire.Completed = rec.Completed
		wire.CompletedPages = rec.CompletedPages
		wire.Attempts = rec.Attempts
		wire.Score = rec.Score
		wire.Metadata = rec.Metadata
		wire.UpdatedAt = rec.LastAccessed
	}
	return wire
}
