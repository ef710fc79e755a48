package util

import "errors"

var (
	ErrEmailRegistered = errors.New("email already registered")
	ErrModuleNotFound  = errors.New("module not found")
	ErrLessonNotFound  = errors.New("lesson not found")
	ErrProgressRange   = errors.New("progress out of range")
	ErrStaleWrite      = errors.New("stale write superseded by newer record")
)
