package app

import (
	"adaptive_exam_backend/internal/config"
	"adaptive_exam_backend/internal/controller"
	"adaptive_exam_backend/internal/repository"
	"adaptive_exam_backend/internal/service"
	"adaptive_exam_backend/pkg/configwatcher"
	"adaptive_exam_backend/pkg/database"
	"adaptive_exam_backend/pkg/logger"
	"adaptive_exam_backend/pkg/monitoring"
	"adaptive_exam_backend/pkg/security"
	"adaptive_exam_backend/pkg/tracing"
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type App struct {
	Config   *config.Config
	Router   *gin.Engine
	DB       *gorm.DB
	Redis    *redis.Client
	services *services
}

type repositories struct {
	user           *repository.UserRepository
	subject        *repository.SubjectRepository
	question       *repository.QuestionRepository
	exam           *repository.ExamRepository
	examAttempt    *repository.ExamAttemptRepository
	examAssignment *repository.ExamAssignmentRepository
}

type services struct {
	auth       *service.AuthService
	storage    *service.StorageService
	subject    *service.SubjectService
	question   *service.QuestionService
	aiUsage    *service.AIUsageService
	difficulty *service.AIDifficultyService
	adaptive   *service.AdaptiveService
	exam       *service.ExamService
}

type controllers struct {
	auth     *controller.AuthController
	subject  *controller.SubjectController
	question *controller.QuestionController
	exam     *controller.ExamController
	health   *controller.HealthController
}

func (a *App) initRepositories(db *gorm.DB) *repositories {
	return &repositories{
		user:           repository.NewUserRepository(db),
		subject:        repository.NewSubjectRepository(db),
		question:       repository.NewQuestionRepository(db),
		exam:           repository.NewExamRepository(db),
		examAttempt:    repository.NewExamAttemptRepository(db),
		examAssignment: repository.NewExamAssignmentRepository(db),
	}
}

func (a *App) initServices(repos *repositories, cfg *config.Config, db *gorm.DB, rdb *redis.Client) *services {
	s := &services{}

	s.storage = service.NewStorageService(cfg)
	s.auth = service.NewAuthService(repos.user, cfg)
	s.subject = service.NewSubjectService(repos.subject)
	s.question = service.NewQuestionService(db, repos.question, s.storage)
	s.aiUsage = service.NewAIUsageService(rdb, cfg.AI.DailyLimit)
	s.difficulty = service.NewAIDifficultyService(cfg.AI, repos.question, s.aiUsage)
	s.adaptive = service.NewAdaptiveService(db, cfg.Adaptive)
	s.exam = service.NewExamService(db, repos.exam, repos.examAttempt, repos.subject, repos.examAssignment, s.adaptive)

	return s
}

func (a *App) initControllers(s *services, db *gorm.DB) *controllers {
	return &controllers{
		auth:     controller.NewAuthController(s.auth),
		subject:  controller.NewSubjectController(s.subject),
		question: controller.NewQuestionController(s.question, s.difficulty),
		exam:     controller.NewExamController(s.exam, s.adaptive),
		health:   controller.NewHealthController(db),
	}
}

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	router.Use(security.CORS(cfg.CORS.AllowedOrigins))
	router.Use(security.Secure())

	maxRequests := cfg.RateLimit.MaxRequests
	if maxRequests <= 0 {
		maxRequests = 1000
	}
	window := time.Duration(cfg.RateLimit.WindowMinutes) * time.Minute
	if window <= 0 {
		window = time.Minute
	}
	router.Use(security.RateLimiter(maxRequests, window))

	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
}

// startBackgroundTasks periodically scores questions flagged for rescore so
// imported banks get difficulty ratings without manual triggering.
func (a *App) startBackgroundTasks(s *services) {
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		for range ticker.C {
			pending, err := s.question.ListPendingRescore(10)
			if err != nil {
				logger.Log.Error("pending rescore query failed", zap.Error(err))
				continue
			}
			for i := range pending {
				if _, err := s.difficulty.ScoreQuestion(context.Background(), &pending[i]); err != nil {
					logger.Log.Warn("background scoring stopped", zap.Error(err))
					break
				}
			}
		}
	}()
}

func NewApp(cfg *config.Config) *App {
	logger.InitLogger(cfg)
	defer logger.Log.Sync()

	logger.Log.Info("Logger initialized successfully")

	db, err := database.InitDB(&cfg.Database, cfg.Server.Mode != "release" || cfg.ForceMigrate)
	if err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
		log.Fatalf("Failed to initialize database: %v", err)
	}

	rdb, err := database.InitRedis(&cfg.Redis)
	if err != nil {
		logger.Log.Fatal("Failed to initialize redis", zap.Error(err))
		log.Fatalf("Failed to initialize redis: %v", err)
	}

	app := &App{
		Config: cfg,
		DB:     db,
		Redis:  rdb,
	}

	repos := app.initRepositories(db)
	services := app.initServices(repos, cfg, db, rdb)
	app.services = services
	controllers := app.initControllers(services, db)

	monitoring.Init()

	router := gin.Default()
	app.Router = router

	app.setupMiddlewares(router, cfg)

	if cfg.Tracing.Enabled {
		if _, err := tracing.InitTracer("adaptive-exam", cfg.Tracing.CollectorEndpoint); err != nil {
			logger.Log.Fatal("Failed to initialize tracing", zap.Error(err))
		}
	}

	app.registerRoutes(router, controllers, cfg)

	if cfg.Storage.Type == "local" {
		router.Static("/uploads", cfg.Storage.LocalPath)
	}

	app.startBackgroundTasks(services)

	// hot-reload the tunables that are safe to swap at runtime
	go configwatcher.WatchConfig("configs/config.yaml", cfg, func(raw interface{}) {
		newCfg, ok := raw.(*config.Config)
		if !ok {
			return
		}
		services.aiUsage.SetLimit(newCfg.AI.DailyLimit)
		services.adaptive.SetConfig(newCfg.Adaptive)
		logger.Log.Info("configuration reloaded",
			zap.Int("aiDailyLimit", newCfg.AI.DailyLimit),
			zap.Int("candidateWindow", newCfg.Adaptive.CandidateWindow))
	})

	return app
}

func (a *App) Run() {
	srv := &http.Server{
		Addr:    ":" + a.Config.Server.Port,
		Handler: a.Router,
	}

	go func() {
		log.Printf("Server running on port %s", a.Config.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exiting")
}
