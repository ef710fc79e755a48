package model

import (
	"time"

	"gorm.io/gorm"
)

// LessonProgress 用户对单节课的进度记录。updatedAt 是 last-write-wins 的裁决依据。
type LessonProgress struct {
	gorm.Model
	UserID           uint                   `gorm:"index:idx_user_lesson,unique;type:bigint unsigned"`
	LessonID         uint                   `gorm:"index:idx_user_lesson,unique;type:bigint unsigned"`
	ModuleID         uint                   `gorm:"index;type:bigint unsigned"`
	PositionSeconds  float64                `gorm:"default:0"`
	Progress         float64                `gorm:"default:0"`
	Completed        bool                   `gorm:"default:false"`
	CompletedPages   int                    `gorm:"default:0"`
	Attempts         int                    `gorm:"default:0"`
	Score            float64                `gorm:"default:0"`
	TimeSpentSeconds float64                `gorm:"default:0"`
	Metadata         map[string]interface{} `gorm:"type:json;serializer:json"`
	LastAccessed     time.Time
	ClientSession    string `gorm:"size:36"`
}

func (LessonProgress) TableName() string {
	return "lesson_progress"
}

// ModuleCompletion 模块级显式完成标记，聚合首次达到 100% 时写入
type ModuleCompletion struct {
	gorm.Model
	UserID      uint `gorm:"index:idx_user_module,unique;type:bigint unsigned"`
	ModuleID    uint `gorm:"index:idx_user_module,unique;type:bigint unsigned"`
	CompletedAt *time.Time
}

func (ModuleCompletion) TableName() string {
	return "module_completions"
}
