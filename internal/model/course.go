package model

import (
	"gorm.io/gorm"
)

// LearningModule 课程模块：一组有序的课程，如"呼吸力学基础"、"压控通气波形"
type LearningModule struct {
	gorm.Model
	Title       string   `gorm:"size:255;not null"`
	Slug        string   `gorm:"size:100;uniqueIndex;not null"`
	Description string   `gorm:"type:text"`
	Order       int      `gorm:"default:0"`
	Lessons     []Lesson `gorm:"foreignKey:ModuleID"`
}

func (LearningModule) TableName() string {
	return "learning_modules"
}

// Lesson 单节课。AllowEmpty 的课程（占位/选读）不计入模块完成度。
type Lesson struct {
	gorm.Model
	ModuleID        uint    `gorm:"index;type:bigint unsigned"`
	Title           string  `gorm:"size:255;not null"`
	Slug            string  `gorm:"size:100;index;not null"`
	Description     string  `gorm:"type:text"`
	Order           int     `gorm:"default:0"`
	AllowEmpty      bool    `gorm:"default:false"`
	TotalPages      int     `gorm:"default:0"`
	DurationSeconds float64 `gorm:"default:0"`
	VideoURL        string  `gorm:"size:512"`
}

func (Lesson) TableName() string {
	return "lessons"
}
