package repository

import (
	"errors"
	"time"

	"vent_edu_backend/internal/model"

	"gorm.io/gorm"
)

type ProgressRepository struct {
	DB *gorm.DB
}

func NewProgressRepository(db *gorm.DB) *ProgressRepository {
	return &ProgressRepository{DB: db}
}

func (r *ProgressRepository) FindLessonProgress(userID, lessonID uint) (*model.LessonProgress, error) {
	var progress model.LessonProgress
	err := r.DB.Where("user_id = ? AND lesson_id = ?", userID, lessonID).First(&progress).Error
	if err != nil {
		return nil, err
	}
	return &progress, nil
}

func (r *ProgressRepository) ListModuleProgress(userID, moduleID uint) ([]model.LessonProgress, error) {
	var records []model.LessonProgress
	err := r.DB.Where("user_id = ? AND module_id = ?", userID, moduleID).Find(&records).Error
	return records, err
}

// SaveLessonProgress 在事务中读改写，保证并发提交下 updated_at 比较与写入的原子性
func (r *ProgressRepository) SaveLessonProgress(progress *model.LessonProgress, mutate func(existing *model.LessonProgress) error) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		var existing model.LessonProgress
		err := tx.Where("user_id = ? AND lesson_id = ?", progress.UserID, progress.LessonID).
			First(&existing).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		if errors.Is(err, gorm.ErrRecordNotFound) {
			if mutate != nil {
				if err := mutate(nil); err != nil {
					return err
				}
			}
			return tx.Create(progress).Error
		}

		if mutate != nil {
			if err := mutate(&existing); err != nil {
				return err
			}
		}

		progress.ID = existing.ID
		progress.CreatedAt = existing.CreatedAt
		return tx.Save(progress).Error
	})
}

func (r *ProgressRepository) FindModuleCompletion(userID, moduleID uint) (*model.ModuleCompletion, error) {
	var completion model.ModuleCompletion
	err := r.DB.Where("user_id = ? AND module_id = ?", userID, moduleID).First(&completion).Error
	if err != nil {
		return nil, err
	}
	return &completion, nil
}

// MarkModuleCompleted 首次达成时写入完成标记，已存在则保留原时间戳
func (r *ProgressRepository) MarkModuleCompleted(userID, moduleID uint, at time.Time) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		var existing model.ModuleCompletion
		err := tx.Where("user_id = ? AND module_id = ?", userID, moduleID).First(&existing).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		completion := model.ModuleCompletion{
			UserID:      userID,
			ModuleID:    moduleID,
			CompletedAt: &at,
		}
		return tx.Create(&completion).Error
	})
}

// TotalTimeSpent 用户在某模块累计学习时长（秒）
func (r *ProgressRepository) TotalTimeSpent(userID, moduleID uint) (float64, error) {
	var total float64
	err := r.DB.Model(&model.LessonProgress{}).
		Where("user_id = ? AND module_id = ?", userID, moduleID).
		Select("COALESCE(SUM(time_spent_seconds), 0)").
		Scan(&total).Error
	return total, err
}
