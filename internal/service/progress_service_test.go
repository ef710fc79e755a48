package service

import (
	"testing"
	"time"

	"vent_edu_backend/internal/model"
	"vent_edu_backend/internal/util"
	"vent_edu_backend/pkg/progresssync"

	"github.com/stretchr/testify/assert"
)

func floatPtr(v float64) *float64 { return &v }
func intPtr(v int) *int           { return &v }
func boolPtr(v bool) *bool        { return &v }

func TestValidateUpdate(t *testing.T) {
	assert.NoError(t, validateUpdate(progresssync.LessonUpdateRequest{
		Progress:        floatPtr(0.5),
		PositionSeconds: floatPtr(120),
		CompletedPages:  intPtr(3),
	}))

	assert.ErrorIs(t, validateUpdate(progresssync.LessonUpdateRequest{
		Progress: floatPtr(1.2),
	}), util.ErrProgressRange)

	assert.ErrorIs(t, validateUpdate(progresssync.LessonUpdateRequest{
		CompletionPercentage: floatPtr(-0.1),
	}), util.ErrProgressRange)

	assert.ErrorIs(t, validateUpdate(progresssync.LessonUpdateRequest{
		CompletionPercentage: floatPtr(101),
	}), util.ErrProgressRange)

	assert.ErrorIs(t, validateUpdate(progresssync.LessonUpdateRequest{
		PositionSeconds: floatPtr(-1),
	}), util.ErrProgressRange)

	assert.ErrorIs(t, validateUpdate(progresssync.LessonUpdateRequest{
		TimeSpentDelta: -5,
	}), util.ErrProgressRange)
}

func TestMergeUpdatePartialFields(t *testing.T) {
	lesson := &model.Lesson{TotalPages: 10}
	record := model.LessonProgress{
		PositionSeconds:  30,
		Progress:         0.3,
		CompletedPages:   2,
		Attempts:         1,
		Score:            60,
		TimeSpentSeconds: 100,
	}

	mergeUpdate(&record, progresssync.LessonUpdateRequest{
		PositionSeconds: floatPtr(45),
		TimeSpentDelta:  15,
	}, lesson)

	// 只更新提交的字段，其余保持不变
	assert.Equal(t, 45.0, record.PositionSeconds)
	assert.Equal(t, 0.3, record.Progress)
	assert.Equal(t, 2, record.CompletedPages)
	assert.Equal(t, 115.0, record.TimeSpentSeconds)
}

func TestMergeUpdateCompletionPercentageFallback(t *testing.T) {
	lesson := &model.Lesson{}
	record := model.LessonProgress{}

	// completionPercentage 为 0-100 口径，落库折算为 0-1
	mergeUpdate(&record, progresssync.LessonUpdateRequest{
		CompletionPercentage: floatPtr(80),
	}, lesson)
	assert.Equal(t, 0.8, record.Progress)

	// progress 字段优先于 completionPercentage
	mergeUpdate(&record, progresssync.LessonUpdateRequest{
		Progress:             floatPtr(0.4),
		CompletionPercentage: floatPtr(90),
	}, lesson)
	assert.Equal(t, 0.4, record.Progress)
}

func TestValidateUpdateAcceptsPercentageScale(t *testing.T) {
	// 同步引擎同时带 0-1 的 progress 与 0-100 的 completionPercentage
	req := progresssync.LessonUpdateRequest{
		Progress:             floatPtr(0.5),
		Completed:            boolPtr(false),
		CompletionPercentage: floatPtr(50),
		PositionSeconds:      floatPtr(93),
		CompletedPages:       intPtr(0),
		TimeSpentDelta:       12,
		LastAccessed:         time.Now(),
	}
	assert.NoError(t, validateUpdate(req))

	record := model.LessonProgress{}
	mergeUpdate(&record, req, &model.Lesson{})
	assert.Equal(t, 0.5, record.Progress)
}

func TestMergeUpdateFullProgressMarksCompleted(t *testing.T) {
	lesson := &model.Lesson{}
	record := model.LessonProgress{}

	mergeUpdate(&record, progresssync.LessonUpdateRequest{
		Progress: floatPtr(1.0),
	}, lesson)
	assert.True(t, record.Completed)
}

func TestMergeUpdateClampsPagesToTotal(t *testing.T) {
	lesson := &model.Lesson{TotalPages: 5}
	record := model.LessonProgress{}

	mergeUpdate(&record, progresssync.LessonUpdateRequest{
		CompletedPages: intPtr(9),
	}, lesson)
	assert.Equal(t, 5, record.CompletedPages)

	// 未知总页数时不收敛
	lesson.TotalPages = 0
	mergeUpdate(&record, progresssync.LessonUpdateRequest{
		CompletedPages: intPtr(9),
	}, lesson)
	assert.Equal(t, 9, record.CompletedPages)
}

func TestMergeUpdateIgnoresOversizedTimeDelta(t *testing.T) {
	lesson := &model.Lesson{}
	record := model.LessonProgress{TimeSpentSeconds: 50}

	mergeUpdate(&record, progresssync.LessonUpdateRequest{
		TimeSpentDelta: maxTimeSpentDelta + 1,
	}, lesson)
	assert.Equal(t, 50.0, record.TimeSpentSeconds)
}

func TestMergeUpdateExplicitCompletedFlag(t *testing.T) {
	lesson := &model.Lesson{}
	record := model.LessonProgress{Completed: true}

	mergeUpdate(&record, progresssync.LessonUpdateRequest{
		Completed: boolPtr(false),
		Progress:  floatPtr(0.5),
	}, lesson)
	assert.False(t, record.Completed)
}

func TestToLessonRecordWithoutProgress(t *testing.T) {
	lesson := &model.Lesson{
		ModuleID:   2,
		AllowEmpty: true,
		TotalPages: 4,
	}
	lesson.ID = 7

	wire := toLessonRecord(nil, lesson)
	assert.Equal(t, uint(7), wire.LessonID)
	assert.Equal(t, uint(2), wire.ModuleID)
	assert.True(t, wire.AllowEmpty)
	assert.Equal(t, 4, wire.TotalPages)
	assert.Zero(t, wire.Progress)
	assert.True(t, wire.UpdatedAt.IsZero())
}

func TestToLessonRecordCopiesProgress(t *testing.T) {
	lesson := &model.Lesson{ModuleID: 2}
	lesson.ID = 7
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	rec := &model.LessonProgress{
		PositionSeconds: 88,
		Progress:        0.7,
		Completed:       true,
		CompletedPages:  3,
		Attempts:        2,
		Score:           95,
		LastAccessed:    at,
	}

	wire := toLessonRecord(rec, lesson)
	assert.Equal(t, 88.0, wire.PositionSeconds)
	assert.Equal(t, 0.7, wire.Progress)
	assert.True(t, wire.Completed)
	assert.Equal(t, at, wire.UpdatedAt)
}
