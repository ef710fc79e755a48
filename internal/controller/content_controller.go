package controller

import (
	"errors"

	"vent_edu_backend/internal/model"
	"vent_edu_backend/internal/service"
	"vent_edu_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type ContentController struct {
	ContentService *service.ContentService
}

func NewContentController(contentService *service.ContentService) *ContentController {
	return &ContentController{ContentService: contentService}
}

// ListModules godoc
// @Summary 课程模块列表
// @Description 按排序返回全部课程模块
// @Tags 课程
// @Produce json
// @Success 200 {object} util.Response{data=[]model.LearningModule}
// @Router /api/modules [get]
func (c *ContentController) ListModules(ctx *gin.Context) {
	modules, err := c.ContentService.ListModules(ctx.Request.Context())
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, modules)
}

// GetModule godoc
// @Summary 模块详情
// @Description 返回模块及其课程列表
// @Tags 课程
// @Produce json
// @Param moduleId path int true "模块ID"
// @Success 200 {object} util.Response{data=model.LearningModule}
// @Failure 404 {object} util.Response "模块不存在"
// @Router /api/modules/{moduleId} [get]
func (c *ContentController) GetModule(ctx *gin.Context) {
	moduleID := util.MustParseUint(ctx.Param("moduleId"))
	if moduleID == 0 {
		util.BadRequest(ctx, "invalid module id")
		return
	}

	module, err := c.ContentService.GetModule(moduleID)
	if err != nil {
		util.NotFound(ctx, "module not found")
		return
	}
	util.Success(ctx, module)
}

type CreateModuleRequest struct {
	Title       string `json:"title" binding:"required"`
	Slug        string `json:"slug" binding:"required"`
	Description string `json:"description"`
	Order       int    `json:"order"`
}

// CreateModule godoc
// @Summary 创建课程模块
// @Tags 课程
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param body body CreateModuleRequest true "模块信息"
// @Success 201 {object} util.Response{data=model.LearningModule}
// @Failure 400 {object} util.Response
// @Router /api/modules [post]
func (c *ContentController) CreateModule(ctx *gin.Context) {
	var req CreateModuleRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	module := &model.LearningModule{
		Title:       req.Title,
		Slug:        req.Slug,
		Description: req.Description,
		Order:       req.Order,
	}
	if err := c.ContentService.CreateModule(ctx.Request.Context(), module); err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Created(ctx, module)
}

type CreateLessonRequest struct {
	ModuleID    uint   `json:"moduleId" binding:"required"`
	Title       string `json:"title" binding:"required"`
	Slug        string `json:"slug" binding:"required"`
	Description string `json:"description"`
	Order       int    `json:"order"`
	AllowEmpty  bool   `json:"allowEmpty"`
	TotalPages  int    `json:"totalPages"`
}

// CreateLesson godoc
// @Summary 创建课程
// @Tags 课程
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param body body CreateLessonRequest true "课程信息"
// @Success 201 {object} util.Response{data=model.Lesson}
// @Failure 400 {object} util.Response
// @Failure 404 {object} util.Response "模块不存在"
// @Router /api/lessons [post]
func (c *ContentController) CreateLesson(ctx *gin.Context) {
	var req CreateLessonRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	lesson := &model.Lesson{
		ModuleID:    req.ModuleID,
		Title:       req.Title,
		Slug:        req.Slug,
		Description: req.Description,
		Order:       req.Order,
		AllowEmpty:  req.AllowEmpty,
		TotalPages:  req.TotalPages,
	}
	if err := c.ContentService.CreateLesson(ctx.Request.Context(), lesson); err != nil {
		if errors.Is(err, util.ErrModuleNotFound) {
			util.NotFound(ctx, "module not found")
		} else {
			util.LogInternalError(ctx, err)
		}
		return
	}
	util.Created(ctx, lesson)
}

// UploadLessonVideo godoc
// @Summary 上传课程视频
// @Description 校验视频类型并探测时长，上传后回填课程记录
// @Tags 课程
// @Accept multipart/form-data
// @Produce json
// @Security ApiKeyAuth
// @Param lessonId path int true "课程ID"
// @Param file formData file true "视频文件"
// @Success 200 {object} util.Response{data=model.Lesson}
// @Failure 400 {object} util.Response
// @Failure 404 {object} util.Response "课程不存在"
// @Router /api/lessons/{lessonId}/video [post]
func (c *ContentController) UploadLessonVideo(ctx *gin.Context) {
	lessonID := util.MustParseUint(ctx.Param("lessonId"))
	if lessonID == 0 {
		util.BadRequest(ctx, "invalid lesson id")
		return
	}

	fileHeader, err := ctx.FormFile("file")
	if err != nil {
		util.BadRequest(ctx, "missing file")
		return
	}

	lesson, err := c.ContentService.UploadLessonVideo(ctx.Request.Context(), lessonID, fileHeader)
	if err != nil {
		if errors.Is(err, util.ErrLessonNotFound) {
			util.NotFound(ctx, "lesson not found")
		} else {
			util.BadRequest(ctx, err.Error())
		}
		return
	}
	util.Success(ctx, lesson)
}
