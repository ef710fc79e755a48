package controller

import (
	"errors"
	"net/http"

	"vent_edu_backend/internal/service"
	"vent_edu_backend/internal/util"
	"vent_edu_backend/pkg/progresssync"

	"github.com/gin-gonic/gin"
)

type ProgressController struct {
	ProgressService *service.ProgressService
}

func NewProgressController(progressService *service.ProgressService) *ProgressController {
	return &ProgressController{ProgressService: progressService}
}

// GetModuleProgress godoc
// @Summary 模块进度
// @Description 返回当前用户在某模块下的课程进度记录与聚合摘要
// @Tags 进度
// @Produce json
// @Security ApiKeyAuth
// @Param moduleId path int true "模块ID"
// @Success 200 {object} util.Response{data=progresssync.ModuleProgressResponse}
// @Failure 401 {object} util.Response
// @Failure 404 {object} util.Response "模块不存在"
// @Router /api/progress/modules/{moduleId} [get]
func (c *ProgressController) GetModuleProgress(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	moduleID := util.MustParseUint(ctx.Param("moduleId"))
	if moduleID == 0 {
		util.BadRequest(ctx, "invalid module id")
		return
	}

	resp, err := c.ProgressService.GetModuleProgress(ctx.Request.Context(), claims.UserID, moduleID)
	if err != nil {
		if errors.Is(err, util.ErrModuleNotFound) {
			util.NotFound(ctx, "module not found")
		} else {
			util.LogInternalError(ctx, err)
		}
		return
	}
	util.Success(ctx, resp)
}

// UpdateLessonProgress godoc
// @Summary 写入课程进度
// @Description 合并一次客户端进度提交，lastAccessed 较旧的写入会被丢弃
// @Tags 进度
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param lessonId path int true "课程ID"
// @Param body body progresssync.LessonUpdateRequest true "进度字段，缺省字段不变"
// @Success 200 {object} util.Response{data=progresssync.LessonRecord}
// @Failure 400 {object} util.Response
// @Failure 401 {object} util.Response
// @Failure 404 {object} util.Response "课程不存在"
// @Failure 422 {object} util.Response "字段越界"
// @Router /api/progress/lesson/{lessonId} [put]
func (c *ProgressController) UpdateLessonProgress(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	lessonID := util.MustParseUint(ctx.Param("lessonId"))
	if lessonID == 0 {
		util.BadRequest(ctx, "invalid lesson id")
		return
	}

	var req progresssync.LessonUpdateRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	session := ctx.GetHeader("X-Client-Session")

	record, err := c.ProgressService.ApplyLessonUpdate(ctx.Request.Context(), claims.UserID, lessonID, req, session)
	if err != nil {
		switch {
		case errors.Is(err, util.ErrLessonNotFound):
			util.NotFound(ctx, "lesson not found")
		case errors.Is(err, util.ErrProgressRange):
			util.Error(ctx, http.StatusUnprocessableEntity, err.Error())
		default:
			util.LogInternalError(ctx, err)
		}
		return
	}
	util.Success(ctx, record)
}
