package app

import (
	"adaptive_exam_backend/docs"
	"adaptive_exam_backend/internal/config"
	"adaptive_exam_backend/internal/middleware"
	"adaptive_exam_backend/internal/model"
	"adaptive_exam_backend/pkg/monitoring"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, cfg *config.Config) {
	docs.SwaggerInfo.BasePath = "/api"
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))

	router.GET("/metrics", monitoring.PrometheusHandler())

	public := router.Group("/api")
	{
		public.GET("/health", c.health.HealthCheck)
		public.POST("/register", c.auth.Register)
		public.POST("/login", c.auth.Login)
	}

	authGroup := router.Group("/api")
	authGroup.Use(middleware.AuthMiddleware(cfg))
	{
		authGroup.GET("/profile", c.auth.GetProfile)

		// subjects and enrollment
		authGroup.GET("/subjects", c.subject.ListSubjects)
		authGroup.GET("/subjects/enrolled", c.subject.ListEnrolled)
		authGroup.POST("/subjects/:id/enroll", c.subject.Enroll)

		// exams and attempts (student side)
		authGroup.GET("/exams", c.exam.ListExams)
		authGroup.GET("/exams/:id", c.exam.GetExam)
		authGroup.POST("/exams/:id/attempts", c.exam.StartAttempt)
		authGroup.GET("/attempts", c.exam.ListAttempts)
		authGroup.GET("/assignments", c.exam.ListMyAssignments)
		authGroup.POST("/assignments/:id/start", c.exam.StartAssignedAttempt)
		authGroup.GET("/attempts/:id/current", c.exam.GetCurrentQuestion)
		authGroup.POST("/attempts/:id/answers", c.exam.SubmitAnswer)
		authGroup.POST("/attempts/:id/finish", c.exam.FinishAttempt)

		teacher := authGroup.Group("/teacher")
		teacher.Use(middleware.RoleMiddleware(model.Teacher))
		{
			teacher.POST("/subjects", c.subject.CreateSubject)

			teacher.POST("/questions", c.question.CreateQuestion)
			teacher.GET("/questions", c.question.ListQuestions)
			teacher.GET("/questions/import/template", c.question.ImportTemplate)
			teacher.POST("/questions/import", c.question.ImportQuestions)
			teacher.GET("/questions/:id", c.question.GetQuestion)
			teacher.DELETE("/questions/:id", c.question.DeleteQuestion)
			teacher.POST("/questions/:id/score", c.question.ScoreQuestion)

			teacher.POST("/exams", c.exam.CreateExam)
			teacher.GET("/exams", c.exam.ListTeacherExams)
			teacher.POST("/exams/:id/questions/ensure", c.exam.EnsureExamQuestions)
			teacher.POST("/exams/:id/assignments", c.exam.AssignExam)
			teacher.GET("/exams/:id/assignments", c.exam.ListExamAssignments)
		}
	}
}
