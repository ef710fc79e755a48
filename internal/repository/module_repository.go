package repository

import (
	"vent_edu_backend/internal/model"

	"gorm.io/gorm"
)

type ModuleRepository struct {
	DB *gorm.DB
}

func NewModuleRepository(db *gorm.DB) *ModuleRepository {
	return &ModuleRepository{DB: db}
}

func (r *ModuleRepository) ListModules() ([]model.LearningModule, error) {
	var modules []model.LearningModule
	err := r.DB.Order("`order` ASC").Find(&modules).Error
	return modules, err
}

func (r *ModuleRepository) FindByID(id uint) (*model.LearningModule, error) {
	var module model.LearningModule
	err := r.DB.Preload("Lessons", func(db *gorm.DB) *gorm.DB {
		return db.Order("`order` ASC")
	}).First(&module, id).Error
	return &module, err
}

func (r *ModuleRepository) FindBySlug(slug string) (*model.LearningModule, error) {
	var module model.LearningModule
	err := r.DB.Preload("Lessons", func(db *gorm.DB) *gorm.DB {
		return db.Order("`order` ASC")
	}).Where("slug = ?", slug).First(&module).Error
	return &module, err
}

func (r *ModuleRepository) CreateModule(module *model.LearningModule) error {
	return r.DB.Create(module).Error
}

func (r *ModuleRepository) UpdateModule(module *model.LearningModule) error {
	return r.DB.Save(module).Error
}

func (r *ModuleRepository) FindLessonByID(id uint) (*model.Lesson, error) {
	var lesson model.Lesson
	err := r.DB.First(&lesson, id).Error
	return &lesson, err
}

func (r *ModuleRepository) ListLessons(moduleID uint) ([]model.Lesson, error) {
	var lessons []model.Lesson
	err := r.DB.Where("module_id = ?", moduleID).Order("`order` ASC").Find(&lessons).Error
	return lessons, err
}

func (r *ModuleRepository) CreateLesson(lesson *model.Lesson) error {
	return r.DB.Create(lesson).Error
}

func (r *ModuleRepository) UpdateLesson(lesson *model.Lesson) error {
	return r.DB.Save(lesson).Error
}
