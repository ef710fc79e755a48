package database

import (
	"fmt"
	"log"

	"vent_edu_backend/internal/config"
	"vent_edu_backend/internal/model"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func InitDB(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=%t&loc=Local",
		cfg.User,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.DBName,
		cfg.Charset,
		cfg.ParseTime,
	)

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Info),
	})

	if err != nil {
		return nil, err
	}

	log.Println("Database connection established")

	err = db.AutoMigrate(
		&model.User{},
		&model.LearningModule{},
		&model.Lesson{},
		&model.LessonProgress{},
		&model.ModuleCompletion{},
	)

	if err != nil {
		return nil, err
	}

	log.Println("Database migration completed")

	// 默认课程目录（空库时写入）
	var count int64
	db.Model(&model.LearningModule{}).Count(&count)
	if count == 0 {
		seedCurriculum(db)
	}

	return db, nil
}

// seedCurriculum 内置的呼吸机力学课程目录
func seedCurriculum(db *gorm.DB) {
	modules := []model.LearningModule{
		{
			Title:       "Respiratory Mechanics Basics",
			Slug:        "respiratory-mechanics-basics",
			Description: "Compliance, resistance and the equation of motion.",
			Order:       1,
			Lessons: []model.Lesson{
				{Title: "Compliance and Elastance", Slug: "compliance-elastance", Order: 1, TotalPages: 6, DurationSeconds: 540},
				{Title: "Airway Resistance", Slug: "airway-resistance", Order: 2, TotalPages: 5, DurationSeconds: 480},
				{Title: "Equation of Motion", Slug: "equation-of-motion", Order: 3, TotalPages: 8, DurationSeconds: 720},
				{Title: "Module Glossary", Slug: "basics-glossary", Order: 4, AllowEmpty: true},
			},
		},
		{
			Title:       "Pressure-Controlled Ventilation",
			Slug:        "pressure-controlled-ventilation",
			Description: "PCV waveforms, inspiratory time and flow decay.",
			Order:       2,
			Lessons: []model.Lesson{
				{Title: "PCV Waveform Anatomy", Slug: "pcv-waveform-anatomy", Order: 1, TotalPages: 7, DurationSeconds: 660},
				{Title: "Setting Inspiratory Time", Slug: "setting-inspiratory-time", Order: 2, TotalPages: 4, DurationSeconds: 420},
			},
		},
		{
			Title:       "Volume-Controlled Ventilation",
			Slug:        "volume-controlled-ventilation",
			Description: "VCV flow patterns, plateau pressure and auto-PEEP.",
			Order:       3,
			Lessons: []model.Lesson{
				{Title: "Constant Flow Delivery", Slug: "constant-flow-delivery", Order: 1, TotalPages: 5, DurationSeconds: 510},
				{Title: "Plateau Pressure Maneuver", Slug: "plateau-pressure-maneuver", Order: 2, TotalPages: 6, DurationSeconds: 570},
				{Title: "Recognizing Auto-PEEP", Slug: "recognizing-auto-peep", Order: 3, TotalPages: 5, DurationSeconds: 600},
			},
		},
	}

	for i := range modules {
		db.Create(&modules[i])
	}
}
