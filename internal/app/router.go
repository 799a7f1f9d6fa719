package app

import (
	"strconv"
	"time"

	"lms_assessment_backend/internal/config"
	"lms_assessment_backend/internal/middleware"
	"lms_assessment_backend/internal/model"
	"lms_assessment_backend/internal/util"
	"lms_assessment_backend/pkg/monitoring"
	"lms_assessment_backend/pkg/security"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, cfg *config.Config) error {
	if err := middleware.RegisterValidators(); err != nil {
		return err
	}

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))
	router.GET("/metrics", monitoring.PrometheusHandler())

	// public routes
	public := router.Group("/api")
	{
		public.GET("/health", c.health.HealthCheck)
	}

	// routes behind a bearer token
	authGroup := router.Group("/api")
	authGroup.Use(middleware.AuthMiddleware(cfg))
	{
		a.registerAttemptRoutes(authGroup, c, cfg)
		a.registerGradingRoutes(authGroup, c)
	}
	return nil
}

// perUser keys rate limits by the signed-in user, falling back to client IP.
func perUser(c *gin.Context) string {
	if user := util.GetUserFromContext(c); user != nil {
		return strconv.FormatUint(uint64(user.UserID), 10)
	}
	return c.ClientIP()
}

func (a *App) registerAttemptRoutes(group *gin.RouterGroup, c *controllers, cfg *config.Config) {
	answerLimit := security.KeyedRateLimiter(cfg.RateLimit.ResponsesPerMinute, time.Minute, perUser)

	attempts := group.Group("/attempts")
	{
		attempts.POST("", c.attempt.CreateAttempt)
		attempts.GET("/:id", c.attempt.GetAttempt)
		attempts.POST("/:id/responses", answerLimit, c.attempt.RecordResponses)
		attempts.POST("/:id/responses/upload", answerLimit, c.attempt.UploadResponse)
		attempts.PATCH("/:id/finish", c.attempt.FinishAttempt)
	}

	if cfg.Storage.Type == util.StorageLocal {
		group.GET("/uploads/*filepath", c.attempt.DownloadAnswerFile)
	}

	assessments := group.Group("/assessments")
	{
		assessments.GET("/:id/eligibility", c.attempt.Eligibility)
		assessments.GET("/:id/attempts", c.attempt.ListAttempts)
	}
}

// grading routes for teachers and admins
func (a *App) registerGradingRoutes(group *gin.RouterGroup, c *controllers) {
	grading := group.Group("/grading")
	grading.Use(middleware.RoleMiddleware(model.Teacher))
	{
		grading.POST("/responses/:id", c.grading.GradeResponse)
		grading.GET("/assessments/:id/pending", c.grading.ListPending)
	}
}
