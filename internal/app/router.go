package app

import (
	"vent_edu_backend/docs"
	"vent_edu_backend/internal/config"
	"vent_edu_backend/internal/middleware"
	"vent_edu_backend/internal/model"
	"vent_edu_backend/pkg/monitoring"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, repos *repositories, cfg *config.Config) {
	docs.SwaggerInfo.BasePath = "/api"
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))

	router.GET("/metrics", monitoring.PrometheusHandler())

	// 公共路由(无需登录)
	public := router.Group("/api")
	{
		public.GET("/health", c.health.HealthCheck)
		public.POST("/register", c.auth.Register)
		public.POST("/login", c.auth.Login)

		// 课程目录对游客可见
		public.GET("/modules", c.content.ListModules)
		public.GET("/modules/:moduleId", c.content.GetModule)
	}

	// 需要授权的路由
	authGroup := router.Group("/api")
	authGroup.Use(middleware.AuthMiddleware(cfg), middleware.ActivityMiddleware(repos.user))
	{
		authGroup.GET("/profile", c.auth.GetProfile)

		// 学习进度
		authGroup.GET("/progress/modules/:moduleId", c.progress.GetModuleProgress)
		authGroup.PUT("/progress/lesson/:lessonId", c.progress.UpdateLessonProgress)

		// 课程管理（讲师/管理员）
		manage := authGroup.Group("/")
		manage.Use(middleware.RoleMiddleware(model.Instructor))
		{
			manage.POST("/modules", c.content.CreateModule)
			manage.POST("/lessons", c.content.CreateLesson)
			manage.POST("/lessons/:lessonId/video", c.content.UploadLessonVideo)
		}
	}
}
