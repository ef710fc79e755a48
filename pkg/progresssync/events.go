package progresssync

// 播放器/交互组件产生的事件。原型是页面侧的 lesson-progress 与
// lesson-section-complete 自定义事件，这里收敛成显式的类型化事件，
// 通过 Engine 的 Publish* 入口投递。

// PlaybackEvent 播放位置变化
type PlaybackEvent struct {
	LessonID        uint
	PositionSeconds float64
	Progress        float64
}

// SectionCompleteEvent 小节完成
type SectionCompleteEvent struct {
	LessonID      uint
	Progress      float64
	MarkCompleted bool
}

// LessonMeta 课程目录元信息，随模块进度拉取返回，聚合计算需要
type LessonMeta struct {
	LessonID   uint
	AllowEmpty bool
	TotalPages int
}
