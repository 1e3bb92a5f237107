package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/prepkit/examprep-service/internal/auth"
	"github.com/prepkit/examprep-service/internal/models"
	"github.com/prepkit/examprep-service/internal/services"
	"github.com/prepkit/examprep-service/internal/utils"
)

type HandlerManager struct {
	userHandler     *UserHandler
	questionHandler *QuestionHandler
	practiceHandler *PracticeHandler
	examHandler     *ExamHandler
	billingHandler  *BillingHandler
	authMiddleware  *JWTAuthMiddleware
	serviceManager  services.ServiceManager
}

func NewHandlerManager(
	serviceManager services.ServiceManager,
	tokenMaker *auth.Maker,
	logger utils.Logger,
) *HandlerManager {
	return &HandlerManager{
		userHandler:     NewUserHandler(serviceManager.User(), logger),
		questionHandler: NewQuestionHandler(serviceManager.Question(), serviceManager.ImportExport(), logger),
		practiceHandler: NewPracticeHandler(serviceManager.Practice(), serviceManager.Explanation(), logger),
		examHandler:     NewExamHandler(serviceManager.Exam(), logger),
		billingHandler:  NewBillingHandler(serviceManager.Billing(), serviceManager.ImportExport(), logger),
		authMiddleware:  NewJWTAuthMiddleware(tokenMaker),
		serviceManager:  serviceManager,
	}
}

// SetupRoutes sets up all API routes
func (hm *HandlerManager) SetupRoutes(router *gin.Engine) {
	router.GET("/health", hm.healthCheck)

	v1 := router.Group("/api/v1")

	// Public routes: registration, login and the signed payment webhook.
	authRoutes := v1.Group("/auth")
	{
		authRoutes.POST("/register", hm.userHandler.Register)
		authRoutes.POST("/login", hm.userHandler.Login)
	}
	v1.POST("/webhooks/payment", hm.billingHandler.PaymentWebhook)

	// All remaining API routes require a valid bearer token.
	authed := v1.Group("")
	authed.Use(hm.authMiddleware.AuthMiddleware())
	{
		users := authed.Group("/users")
		{
			users.GET("/me", hm.userHandler.GetProfile)
			users.PUT("/me", hm.userHandler.UpdateProfile)
			users.DELETE("/me", hm.userHandler.DeleteAccount)
			users.GET("/me/limits/practice", hm.userHandler.GetPracticeLimits)
			users.GET("/me/limits/exams", hm.userHandler.GetExamLimits)
		}

		questions := authed.Group("/questions")
		{
			questions.GET("", hm.questionHandler.ListQuestions)
			questions.GET("/:id", hm.questionHandler.GetQuestion)
			questions.GET("/:id/explanation", hm.practiceHandler.ExplainQuestion)

			// Content management - Admins only
			questions.POST("", hm.authMiddleware.RequireRoleMiddleware(models.RoleAdmin), hm.questionHandler.CreateQuestion)
			questions.POST("/import", hm.authMiddleware.RequireRoleMiddleware(models.RoleAdmin), hm.questionHandler.ImportQuestions)
			questions.DELETE("/:id", hm.authMiddleware.RequireRoleMiddleware(models.RoleAdmin), hm.questionHandler.DeleteQuestion)
		}

		practice := authed.Group("/practice")
		{
			practice.GET("/questions", hm.practiceHandler.GetPracticeQuestions)
			practice.POST("/answers", hm.practiceHandler.SubmitPracticeAnswer)
			practice.GET("/streak", hm.practiceHandler.GetStreak)
		}

		exams := authed.Group("/exams")
		{
			exams.POST("", hm.examHandler.CreateExam)
			exams.GET("", hm.examHandler.ListExams)
			exams.GET("/stats", hm.examHandler.GetExamStats)
			exams.GET("/:id", hm.examHandler.GetExamState)
			exams.PUT("/:id/answers", hm.examHandler.RecordExamAnswer)
			exams.PUT("/:id/flags", hm.examHandler.FlagExamQuestion)
			exams.POST("/:id/complete", hm.examHandler.CompleteExam)
			exams.POST("/:id/abandon", hm.examHandler.AbandonExam)
			exams.GET("/:id/results", hm.examHandler.GetExamResults)
		}

		billing := authed.Group("/billing")
		{
			billing.POST("/redeem", hm.billingHandler.RedeemCode)
			billing.GET("/subscription", hm.billingHandler.GetSubscription)
			billing.POST("/verifications", hm.billingHandler.SubmitVerification)
		}

		// Admin operations
		admin := authed.Group("/admin")
		admin.Use(hm.authMiddleware.RequireRoleMiddleware(models.RoleAdmin))
		{
			admin.GET("/verifications", hm.billingHandler.ListVerifications)
			admin.PUT("/verifications/:id", hm.billingHandler.DecideVerification)
			admin.POST("/codes", hm.billingHandler.GenerateCodes)
			admin.GET("/codes", hm.billingHandler.ListCodes)
			admin.GET("/codes/batches/:batch_id/stats", hm.billingHandler.GetBatchStats)
			admin.GET("/codes/batches/:batch_id/export", hm.billingHandler.ExportCodes)
		}
	}
}

func (hm *HandlerManager) healthCheck(c *gin.Context) {
	if err := hm.serviceManager.HealthCheck(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "examprep-service",
	})
}
