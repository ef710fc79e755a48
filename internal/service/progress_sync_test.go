package service

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"vent_edu_backend/internal/config"
	"vent_edu_backend/internal/model"
	"vent_edu_backend/internal/repository"
	"vent_edu_backend/pkg/logger"
	"vent_edu_backend/pkg/progresssync"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// 同步引擎端到端走真实的校验与合并逻辑：
// 引擎发出的请求体必须原样通过 validateUpdate，合并结果回显给引擎。
func TestEngineSyncsAgainstValidatingHandler(t *testing.T) {
	lesson := &model.Lesson{ModuleID: 2, TotalPages: 0}
	lesson.ID = 4

	var mu sync.Mutex
	stored := model.LessonProgress{UserID: 1, LessonID: 4, ModuleID: 2}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		if r.Method == http.MethodPut {
			var req progresssync.LessonUpdateRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				json.NewEncoder(w).Encode(map[string]interface{}{"success": false, "error": err.Error()})
				return
			}

			if err := validateUpdate(req); err != nil {
				w.WriteHeader(http.StatusUnprocessableEntity)
				json.NewEncoder(w).Encode(map[string]interface{}{"success": false, "error": err.Error()})
				return
			}

			mu.Lock()
			mergeUpdate(&stored, req, lesson)
			stored.LastAccessed = req.LastAccessed
			wire := toLessonRecord(&stored, lesson)
			mu.Unlock()

			json.NewEncoder(w).Encode(map[string]interface{}{"success": true, "data": wire})
			return
		}

		mu.Lock()
		wire := toLessonRecord(&stored, lesson)
		mu.Unlock()
		json.NewEncoder(w).Encode(map[string]interface{}{"success": true, "data": progresssync.ModuleProgressResponse{
			Lessons: []progresssync.LessonRecord{wire},
		}})
	}))
	defer srv.Close()

	client := progresssync.NewClient(srv.URL, "")
	store := progresssync.NewStore()
	engine := progresssync.NewEngine(store, client)
	engine.Start()
	defer engine.Close()

	engine.PublishPlayback(progresssync.PlaybackEvent{LessonID: 4, PositionSeconds: 30, Progress: 0.5})

	require.Eventually(t, func() bool {
		return engine.Status().Status == progresssync.StatusSaved
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 0.5, stored.Progress)
	assert.Equal(t, 30.0, stored.PositionSeconds)
	assert.False(t, stored.Completed)
}

func newServiceMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	return db, mock
}

func TestFinalizeModuleCompletionLogsSummaryError(t *testing.T) {
	db, mock := newServiceMockDB(t)

	core, logs := observer.New(zap.ErrorLevel)
	old := logger.Log
	logger.Log = zap.New(core)
	t.Cleanup(func() { logger.Log = old })

	mock.ExpectQuery("SELECT \\* FROM `learning_modules`").
		WillReturnError(errors.New("db down"))

	svc := NewProgressService(repository.NewProgressRepository(db), repository.NewModuleRepository(db), nil, &config.Config{})
	svc.finalizeModuleCompletion(1, 2)

	require.Equal(t, 1, logs.FilterMessage("Failed to compute module summary").Len())
	assert.NoError(t, mock.ExpectationsWereMet())
}
