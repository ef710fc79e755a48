package service

import (
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
	"time"

	"vent_edu_backend/internal/config"
	"vent_edu_backend/internal/model"
	"vent_edu_backend/internal/repository"
	"vent_edu_backend/internal/util"
	"vent_edu_backend/pkg/logger"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const catalogCacheKey = "ventedu:catalog"

// ContentService 课程目录与课件管理
type ContentService struct {
	ModuleRepo *repository.ModuleRepository
	Storage    *StorageService
	Redis      *redis.Client
	Cfg        *config.Config
}

func NewContentService(moduleRepo *repository.ModuleRepository, storage *StorageService, rdb *redis.Client, cfg *config.Config) *ContentService {
	return &ContentService{
		ModuleRepo: moduleRepo,
		Storage:    storage,
		Redis:      rdb,
		Cfg:        cfg,
	}
}

// ListModules 返回课程目录，优先读缓存
func (s *ContentService) ListModules(ctx context.Context) ([]model.LearningModule, error) {
	if s.Redis != nil {
		cached, err := s.Redis.Get(ctx, catalogCacheKey).Result()
		if err == nil {
			var modules []model.LearningModule
			if err := json.Unmarshal([]byte(cached), &modules); err == nil {
				return modules, nil
			}
		}
	}

	modules, err := s.ModuleRepo.ListModules()
	if err != nil {
		return nil, err
	}

	if s.Redis != nil {
		if data, err := json.Marshal(modules); err == nil {
			ttl := time.Duration(s.Cfg.Progress.CacheTTLSeconds) * time.Second
			s.Redis.Set(ctx, catalogCacheKey, data, ttl)
		}
	}

	return modules, nil
}

func (s *ContentService) GetModule(id uint) (*model.LearningModule, error) {
	module, err := s.ModuleRepo.FindByID(id)
	if err != nil {
		return nil, util.ErrModuleNotFound
	}
	return module, nil
}

func (s *ContentService) GetModuleBySlug(slug string) (*model.LearningModule, error) {
	module, err := s.ModuleRepo.FindBySlug(slug)
	if err != nil {
		return nil, util.ErrModuleNotFound
	}
	return module, nil
}

func (s *ContentService) GetLesson(id uint) (*model.Lesson, error) {
	lesson, err := s.ModuleRepo.FindLessonByID(id)
	if err != nil {
		return nil, util.ErrLessonNotFound
	}
	return lesson, nil
}

func (s *ContentService) CreateModule(ctx context.Context, module *model.LearningModule) error {
	if err := s.ModuleRepo.CreateModule(module); err != nil {
		return err
	}
	s.invalidateCatalog(ctx)
	return nil
}

func (s *ContentService) CreateLesson(ctx context.Context, lesson *model.Lesson) error {
	if _, err := s.ModuleRepo.FindByID(lesson.ModuleID); err != nil {
		return util.ErrModuleNotFound
	}
	if err := s.ModuleRepo.CreateLesson(lesson); err != nil {
		return err
	}
	s.invalidateCatalog(ctx)
	return nil
}

// UploadLessonVideo 上传课程视频：校验类型、探测时长、写入存储后回填课程记录
func (s *ContentService) UploadLessonVideo(ctx context.Context, lessonID uint, fileHeader *multipart.FileHeader) (*model.Lesson, error) {
	lesson, err := s.ModuleRepo.FindLessonByID(lessonID)
	if err != nil {
		return nil, util.ErrLessonNotFound
	}

	ext := strings.ToLower(filepath.Ext(fileHeader.Filename))
	allowed := false
	for _, e := range util.AllowedVideoExtensions {
		if ext == e {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, fmt.Errorf("unsupported video extension: %s", ext)
	}

	src, err := fileHeader.Open()
	if err != nil {
		return nil, err
	}
	defer src.Close()

	mimeType, err := util.ValidateMimeType(src, []string{util.MimeVideo, util.MimeOctetStream})
	if err != nil {
		return nil, err
	}
	if _, err := src.Seek(0, 0); err != nil {
		return nil, err
	}

	// 先落临时文件，ffprobe 需要真实路径
	tmp, err := os.CreateTemp("", "lesson-video-*"+ext)
	if err != nil {
		return nil, err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.ReadFrom(src); err != nil {
		tmp.Close()
		return nil, err
	}
	tmp.Close()

	info, err := util.GetVideoInfo(tmpPath)
	if err != nil {
		logger.Log.Warn("Video probe failed, duration left unset",
			zap.Uint("lessonID", lessonID),
			zap.Error(err))
	}

	objectName := fmt.Sprintf("lessons/%d/%s%s", lessonID, util.GenerateRandomString(8), ext)
	url, err := s.Storage.UploadFile(ctx, objectName, tmpPath, mimeType)
	if err != nil {
		return nil, err
	}

	lesson.VideoURL = url
	if info != nil {
		lesson.DurationSeconds = info.Duration
	}
	if err := s.ModuleRepo.UpdateLesson(lesson); err != nil {
		return nil, err
	}

	s.invalidateCatalog(ctx)
	return lesson, nil
}

func (s *ContentService) invalidateCatalog(ctx context.Context) {
	if s.Redis != nil {
		s.Redis.Del(ctx, catalogCacheKey)
	}
}
