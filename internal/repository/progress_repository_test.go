package repository

import (
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	return db, mock
}

func TestFindLessonProgress(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewProgressRepository(db)

	rows := sqlmock.NewRows([]string{"id", "user_id", "lesson_id", "module_id", "progress", "completed"}).
		AddRow(1, 5, 3, 2, 0.4, false)

	mock.ExpectQuery("SELECT \\* FROM `lesson_progress` WHERE \\(user_id = \\? AND lesson_id = \\?\\)").
		WithArgs(5, 3, 1).
		WillReturnRows(rows)

	progress, err := repo.FindLessonProgress(5, 3)
	require.NoError(t, err)
	assert.Equal(t, uint(3), progress.LessonID)
	assert.Equal(t, uint(2), progress.ModuleID)
	assert.Equal(t, 0.4, progress.Progress)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindLessonProgressNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewProgressRepository(db)

	mock.ExpectQuery("SELECT \\* FROM `lesson_progress`").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.FindLessonProgress(5, 99)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestListModuleProgress(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewProgressRepository(db)

	rows := sqlmock.NewRows([]string{"id", "user_id", "lesson_id", "module_id", "completed"}).
		AddRow(1, 5, 3, 2, true).
		AddRow(2, 5, 4, 2, false)

	mock.ExpectQuery("SELECT \\* FROM `lesson_progress` WHERE \\(user_id = \\? AND module_id = \\?\\)").
		WithArgs(5, 2).
		WillReturnRows(rows)

	records, err := repo.ListModuleProgress(5, 2)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.True(t, records[0].Completed)
	assert.False(t, records[1].Completed)
}

func TestTotalTimeSpent(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewProgressRepository(db)

	mock.ExpectQuery("SELECT COALESCE\\(SUM\\(time_spent_seconds\\), 0\\) FROM `lesson_progress`").
		WithArgs(5, 2).
		WillReturnRows(sqlmock.NewRows([]string{"total"}).AddRow(345.5))

	total, err := repo.TotalTimeSpent(5, 2)
	require.NoError(t, err)
	assert.Equal(t, 345.5, total)
}

func TestFindModuleCompletionNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewProgressRepository(db)

	mock.ExpectQuery("SELECT \\* FROM `module_completions`").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.FindModuleCompletion(5, 2)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}
