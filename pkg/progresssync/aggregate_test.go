package progresssync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestComputeModuleProgressEmpty(t *testing.T) {
	mp := ComputeModuleProgress(nil, nil)

	assert.Equal(t, 0, mp.Percentage)
	assert.Equal(t, 0, mp.TotalLessons)
	assert.Equal(t, 0, mp.CompletedLessons)
	assert.False(t, mp.IsCompleted)
}

func TestComputeModuleProgressTwoOfThree(t *testing.T) {
	lessons := []LessonState{
		{Completed: true},
		{Completed: false},
		{Completed: true},
	}

	mp := ComputeModuleProgress(lessons, nil)

	assert.Equal(t, 2, mp.CompletedLessons)
	assert.Equal(t, 3, mp.TotalLessons)
	assert.Equal(t, 67, mp.Percentage)
	assert.False(t, mp.IsCompleted)
}

func TestComputeModuleProgressAllowEmptyExcluded(t *testing.T) {
	lessons := []LessonState{
		{Completed: true},
		{Completed: false, AllowEmpty: true},
	}

	mp := ComputeModuleProgress(lessons, nil)

	assert.Equal(t, 1, mp.TotalLessons)
	assert.Equal(t, 1, mp.CompletedLessons)
	assert.Equal(t, 100, mp.Percentage)
	assert.True(t, mp.IsCompleted)
}

func TestComputeModuleProgressOnlyAllowEmpty(t *testing.T) {
	lessons := []LessonState{
		{Completed: true, AllowEmpty: true},
	}

	mp := ComputeModuleProgress(lessons, nil)

	assert.Equal(t, 0, mp.TotalLessons)
	assert.Equal(t, 0, mp.Percentage)
	assert.False(t, mp.IsCompleted)
}

func TestComputeModuleProgressPages(t *testing.T) {
	lessons := []LessonState{
		{Completed: true, TotalPages: 4, CompletedPages: 4},
		{Completed: false, TotalPages: 6, CompletedPages: 2},
	}

	mp := ComputeModuleProgress(lessons, nil)

	assert.Equal(t, 10, mp.TotalPages)
	assert.Equal(t, 6, mp.CompletedPages)
}

func TestComputeModuleProgressPagesclampedToTotal(t *testing.T) {
	lessons := []LessonState{
		{Completed: true, TotalPages: 3, CompletedPages: 7},
	}

	mp := ComputeModuleProgress(lessons, nil)

	assert.Equal(t, 3, mp.CompletedPages)
}

func TestComputeModuleProgressPagelessLessonIgnored(t *testing.T) {
	lessons := []LessonState{
		{Completed: true, TotalPages: 0, CompletedPages: 3},
		{Completed: false, TotalPages: 5, CompletedPages: 2},
	}

	mp := ComputeModuleProgress(lessons, nil)

	assert.Equal(t, 5, mp.TotalPages)
	assert.Equal(t, 2, mp.CompletedPages)
}

func TestComputeModuleProgressExplicitCompletedAt(t *testing.T) {
	done := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	lessons := []LessonState{
		{Completed: true},
		{Completed: false},
	}

	mp := ComputeModuleProgress(lessons, &done)

	assert.True(t, mp.IsCompleted)
	assert.Equal(t, 50, mp.Percentage)
	assert.Equal(t, &done, mp.CompletedAt)
}
