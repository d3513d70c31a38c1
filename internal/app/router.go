package app

import (
	"context"
	"time"

	"retest_backend/docs"
	"retest_backend/internal/config"
	"retest_backend/internal/middleware"
	"retest_backend/internal/model"
	"retest_backend/internal/util"
	"retest_backend/pkg/monitoring"
	"retest_backend/pkg/security"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cast"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func (a *App) registerRoutes(ctx context.Context, router *gin.Engine, c *controllers, cfg *config.Config) {
	docs.SwaggerInfo.BasePath = "/api"
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))

	router.GET("/metrics", monitoring.PrometheusHandler())

	// 1. 公共路由(无需登录)
	router.GET("/api/health", c.health.HealthCheck)

	// 2. 需要授权的路由
	authGroup := router.Group("/api")
	authGroup.Use(middleware.AuthMiddleware(cfg))
	{
		submitLimiter := security.NewLimiter("submit", cfg.RateLimit.SubmitMaxRequests,
			time.Duration(cfg.RateLimit.WindowMinutes)*time.Minute, 0, studentKey)
		go submitLimiter.Run(ctx)

		a.registerStudentRoutes(authGroup, c, submitLimiter.Middleware())
		a.registerTeacherRoutes(authGroup, c)
	}
}

// studentKey 按登录用户限流提交接口，未登录的请求交给鉴权中间件处理
func studentKey(c *gin.Context) string {
	user := util.GetUserFromContext(c)
	if user == nil {
		return ""
	}
	return "user:" + cast.ToString(user.UserID)
}

func (a *App) registerStudentRoutes(group *gin.RouterGroup, c *controllers, submitLimit gin.HandlerFunc) {
	student := group.Group("")
	student.Use(middleware.RoleMiddleware(model.Student))
	{
		student.POST("/tests/submit", submitLimit, c.submission.Submit)

		retests := student.Group("/retests")
		{
			retests.GET("", c.retest.ListMine)
			retests.GET("/:assignmentId/status", c.retest.GetStatus)
			retests.GET("/tests/:parentTestId/attempts", c.retest.ListAttempts)
			retests.GET("/tests/:parentTestId/best", c.retest.GetBest)
		}
	}
}

func (a *App) registerTeacherRoutes(group *gin.RouterGroup, c *controllers) {
	teacher := group.Group("/teacher")
	teacher.Use(middleware.RoleMiddleware(model.Teacher))
	{
		teacher.GET("/retests/:assignmentId/targets", c.retest.ListTargets)
	}
}
