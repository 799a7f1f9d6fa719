package app

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"lms_assessment_backend/internal/config"
	"lms_assessment_backend/internal/controller"
	"lms_assessment_backend/internal/repository"
	"lms_assessment_backend/internal/service"
	"lms_assessment_backend/pkg/configwatcher"
	"lms_assessment_backend/pkg/database"
	"lms_assessment_backend/pkg/logger"
	"lms_assessment_backend/pkg/monitoring"
	"lms_assessment_backend/pkg/security"
	"lms_assessment_backend/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type App struct {
	Config *config.Config
	Router *gin.Engine
	DB     *gorm.DB
	Redis  *redis.Client

	tracer          *sdktrace.TracerProvider
	configCallbacks []func(*config.Config)
}

type repositories struct {
	assessment *repository.AssessmentRepository
	attempt    *repository.AttemptRepository
	response   *repository.ResponseRepository
	progress   *repository.ProgressRepository
}

type services struct {
	storage  *service.StorageService
	policy   *service.PolicyService
	progress *service.ProgressService
	attempt  *service.AttemptService
	response *service.ResponseService
	grading  *service.GradingService
}

type controllers struct {
	attempt *controller.AttemptController
	grading *controller.GradingController
	health  *controller.HealthController
}

func (a *App) RegisterConfigCallback(callback func(*config.Config)) {
	a.configCallbacks = append(a.configCallbacks, callback)
}

func (a *App) initRepositories(db *gorm.DB, rdb *redis.Client, cfg *config.Config) *repositories {
	return &repositories{
		assessment: repository.NewAssessmentRepository(db, rdb, cfg.Assessment.BankCacheTTL()),
		attempt:    repository.NewAttemptRepository(db),
		response:   repository.NewResponseRepository(db),
		progress:   repository.NewProgressRepository(db),
	}
}

func (a *App) initServices(repos *repositories, cfg *config.Config, db *gorm.DB, rdb *redis.Client) (*services, error) {
	s := &services{}

	storage, err := service.NewStorageService(cfg)
	if err != nil {
		return nil, err
	}
	s.storage = storage

	locker := service.NewAttemptLocker(rdb, cfg.Assessment.LockWait())
	grace := cfg.Assessment.TimeLimitGrace()

	s.policy = service.NewPolicyService(repos.attempt, repos.progress)
	s.progress = service.NewProgressService(repos.progress)
	s.attempt = service.NewAttemptService(db, repos.assessment, repos.attempt, repos.response, s.policy, s.progress, locker, grace)
	s.response = service.NewResponseService(db, repos.assessment, repos.attempt, repos.response, s.storage, locker, grace)
	s.grading = service.NewGradingService(s.attempt)

	return s, nil
}

func (a *App) initControllers(s *services, db *gorm.DB, rdb *redis.Client) *controllers {
	return &controllers{
		attempt: controller.NewAttemptController(s.attempt, s.response),
		grading: controller.NewGradingController(s.grading),
		health:  controller.NewHealthController(db, rdb),
	}
}

// New wires repositories, services, controllers and routes on top of
// already opened connections. rdb may be nil.
func New(cfg *config.Config, db *gorm.DB, rdb *redis.Client) (*App, error) {
	app := &App{
		Config: cfg,
		DB:     db,
		Redis:  rdb,
	}

	repos := app.initRepositories(db, rdb, cfg)
	svcs, err := app.initServices(repos, cfg, db, rdb)
	if err != nil {
		return nil, err
	}
	ctrls := app.initControllers(svcs, db, rdb)

	monitoring.Init()

	gin.SetMode(cfg.Server.Mode)
	router := gin.New()
	router.Use(gin.Recovery())
	app.Router = router

	app.setupMiddlewares(router, cfg)
	if err := app.registerRoutes(router, ctrls, cfg); err != nil {
		return nil, err
	}

	return app, nil
}

// NewApp opens every external connection named by cfg and builds the App.
func NewApp(cfg *config.Config) *App {
	logger.InitLogger(cfg)
	logger.Log.Info("Logger initialized successfully")

	db, err := database.InitDB(&cfg.Database, cfg.Server.Mode, cfg.ForceMigrate)
	if err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
	}
	if cfg.MigrateOnly {
		return &App{Config: cfg, DB: db}
	}

	rdb, err := database.InitRedis(&cfg.Redis)
	if err != nil {
		logger.Log.Fatal("Failed to initialize redis", zap.Error(err))
	}

	app, err := New(cfg, db, rdb)
	if err != nil {
		logger.Log.Fatal("Failed to build application", zap.Error(err))
	}

	if cfg.Tracing.Enabled {
		tp, err := tracing.InitTracer(tracing.ServiceName, cfg.Tracing.CollectorEndpoint)
		if err != nil {
			logger.Log.Fatal("Failed to initialize tracing", zap.Error(err))
		}
		app.tracer = tp
	}

	// log level follows config reloads
	app.RegisterConfigCallback(func(newCfg *config.Config) {
		if logger.SetLevel(newCfg.Log.Level) {
			logger.Log.Info("Log level updated", zap.String("level", newCfg.Log.Level))
		}
	})

	return app
}

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	router.Use(security.CORS(cfg.CORS.AllowedOrigins))
	router.Use(security.Secure())
	router.Use(security.RateLimiter(cfg.RateLimit.MaxRequests, time.Duration(cfg.RateLimit.WindowMinutes)*time.Minute))

	// tracing
	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
}

func (a *App) watchConfig(ctx context.Context, path string) {
	if len(a.configCallbacks) == 0 {
		return
	}
	go func() {
		err := configwatcher.WatchConfig(ctx, path, func(cfg *config.Config) {
			for _, cb := range a.configCallbacks {
				cb(cfg)
			}
		})
		if err != nil {
			logger.Log.Error("Config watcher stopped", zap.Error(err))
		}
	}()
}

// Run serves until SIGINT/SIGTERM, then shuts down gracefully.
func (a *App) Run(configDir string) {
	srv := &http.Server{
		Addr:    ":" + a.Config.Server.Port,
		Handler: a.Router,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a.watchConfig(ctx, filepath.Join(configDir, "config.yaml"))

	go func() {
		logger.Log.Info("Server running", zap.String("port", a.Config.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Fatal("listen", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Log.Info("Shutting down server...")

	// let in-flight requests finish, 5s at most
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Log.Error("Server forced to shutdown", zap.Error(err))
	}

	if a.tracer != nil {
		if err := a.tracer.Shutdown(shutdownCtx); err != nil {
			logger.Log.Error("Failed to shutdown tracer provider", zap.Error(err))
		}
	}
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if sqlDB, err := a.DB.DB(); err == nil {
		_ = sqlDB.Close()
	}

	logger.Log.Info("Server exiting")
}
