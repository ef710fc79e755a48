package progresssync

import (
	"math"
	"time"
)

// LessonState 聚合计算的输入：一节课的完成状态与页数信息
type LessonState struct {
	Completed      bool
	AllowEmpty     bool // 不计入完成度统计
	TotalPages     int
	CompletedPages int
}

// ModuleProgress 模块级派生进度，永远由课程记录现算，不作为持久状态
type ModuleProgress struct {
	CompletedLessons int        `json:"completedLessons"`
	TotalLessons     int        `json:"totalLessons"`
	Percentage       int        `json:"percentage"`
	CompletedPages   int        `json:"completedPages"`
	TotalPages       int        `json:"totalPages"`
	IsCompleted      bool       `json:"isCompleted"`
	CompletedAt      *time.Time `json:"completedAt,omitempty"`
}

// ComputeModuleProgress 由模块下的课程状态集合计算完成度。
// AllowEmpty 的课程不计入 completed/total；total 为 0 时 percentage 恒为 0。
// completedAt 为服务端显式标记的模块完成时间，非 nil 时模块视为已完成。
func ComputeModuleProgress(lessons []LessonState, completedAt *time.Time) ModuleProgress {
	mp := ModuleProgress{CompletedAt: completedAt}

	for _, l := range lessons {
		// 无页数的课程（视频等）不参与页数统计，completedPages 永远不超过 totalPages
		if l.TotalPages > 0 {
			mp.TotalPages += l.TotalPages
			if l.CompletedPages > l.TotalPages {
				mp.CompletedPages += l.TotalPages
			} else if l.CompletedPages > 0 {
				mp.CompletedPages += l.CompletedPages
			}
		}

		if l.AllowEmpty {
			continue
		}
		mp.TotalLessons++
		if l.Completed {
			mp.CompletedLessons++
		}
	}

	if mp.TotalLessons > 0 {
		mp.Percentage = int(math.Round(100 * float64(mp.CompletedLessons) / float64(mp.TotalLessons)))
	}

	mp.IsCompleted = completedAt != nil ||
		(mp.TotalLessons > 0 && mp.CompletedLessons == mp.TotalLessons)

	return mp
}
