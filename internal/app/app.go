package app

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"retest_backend/internal/config"
	"retest_backend/internal/controller"
	"retest_backend/internal/repository"
	"retest_backend/internal/service"
	"retest_backend/pkg/configwatcher"
	"retest_backend/pkg/database"
	"retest_backend/pkg/logger"
	"retest_backend/pkg/monitoring"
	"retest_backend/pkg/security"
	"retest_backend/pkg/tracing"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type App struct {
	Config          *config.Config
	Router          *gin.Engine
	DB              *gorm.DB
	Redis           *redis.Client
	services        *services
	tracer          *sdktrace.TracerProvider
	cancel          context.CancelFunc
	configCallbacks []func(*config.Config)
}

type repositories struct {
	remediation *repository.RemediationRepository
	attempts    *repository.AttemptRecordRepository
	results     *repository.TestResultRepository
	directory   *repository.DirectoryRepository
	summaries   *repository.BestSummaryRepository
	tasks       *repository.SummaryTaskRepository
	cache       *repository.SummaryCache
}

type services struct {
	aggregator *service.BestValueAggregator
	submission *service.SubmissionService
	query      *service.RetestQueryService
}

type controllers struct {
	submission *controller.SubmissionController
	retest     *controller.RetestController
	health     *controller.HealthController
}

func (a *App) RegisterConfigCallback(callback func(*config.Config)) {
	a.configCallbacks = append(a.configCallbacks, callback)
}

func (a *App) applyConfig(cfg *config.Config) {
	for _, cb := range a.configCallbacks {
		cb(cfg)
	}
}

func (a *App) initRepositories(db *gorm.DB, rdb *redis.Client, cfg *config.Config) *repositories {
	return &repositories{
		remediation: repository.NewRemediationRepository(db),
		attempts:    repository.NewAttemptRecordRepository(db),
		results:     repository.NewTestResultRepository(db),
		directory:   repository.NewDirectoryRepository(db),
		summaries:   repository.NewBestSummaryRepository(db),
		tasks:       repository.NewSummaryTaskRepository(db),
		cache:       repository.NewSummaryCache(rdb, cfg.Retest.SummaryCacheTTL),
	}
}

func (a *App) initServices(repos *repositories, cfg *config.Config, db *gorm.DB) *services {
	s := &services{}

	s.aggregator = service.NewBestValueAggregator(
		repos.attempts,
		repos.summaries,
		repos.tasks,
		repos.cache,
		cfg.Retest,
	)
	s.submission = service.NewSubmissionService(
		db,
		repos.remediation,
		repos.attempts,
		repos.results,
		repos.directory,
		s.aggregator,
		cfg.Retest,
	)
	s.query = service.NewRetestQueryService(repos.remediation, repos.attempts, s.aggregator, cfg.Retest)

	// 配置热更新只影响 retest 段
	a.RegisterConfigCallback(func(newCfg *config.Config) {
		s.submission.UpdateSettings(newCfg.Retest)
		s.query.UpdateSettings(newCfg.Retest)
	})

	return s
}

func (a *App) initControllers(s *services, db *gorm.DB, rdb *redis.Client) *controllers {
	return &controllers{
		submission: controller.NewSubmissionController(s.submission),
		retest:     controller.NewRetestController(s.query),
		health:     controller.NewHealthController(db, rdb),
	}
}

func (a *App) setupMiddlewares(ctx context.Context, router *gin.Engine, cfg *config.Config) {
	router.Use(security.CORS(cfg.CORS))
	router.Use(security.Secure())

	limiter := security.RateLimiter(cfg.RateLimit)
	go limiter.Run(ctx)
	router.Use(limiter.Middleware())

	// 分布式追踪中间件
	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
}

func (a *App) startBackgroundTasks(ctx context.Context, s *services) {
	// 汇总刷新补偿任务
	s.aggregator.Start(ctx)

	if a.Config.ConfigFile == "" {
		return
	}
	go func() {
		if err := configwatcher.WatchConfig(ctx, a.Config.ConfigFile, time.Second, a.applyConfig); err != nil {
			logger.Log.Error("Config watcher stopped", zap.Error(err))
		}
	}()
}

func NewApp(cfg *config.Config) *App {
	logger.InitLogger(cfg)
	defer logger.Log.Sync()

	logger.Log.Info("Logger initialized successfully")

	db, err := database.InitDB(cfg)
	if err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
		log.Fatalf("Failed to initialize database: %v", err)
	}

	app := &App{
		Config: cfg,
		DB:     db,
	}
	if cfg.MigrateOnly {
		return app
	}

	rdb, err := database.InitRedis(&cfg.Redis)
	if err != nil {
		logger.Log.Fatal("Failed to initialize redis", zap.Error(err))
		log.Fatalf("Failed to initialize redis: %v", err)
	}
	app.Redis = rdb

	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	repos := app.initRepositories(db, rdb, cfg)
	services := app.initServices(repos, cfg, db)
	app.services = services
	controllers := app.initControllers(services, db, rdb)

	// 监控初始化
	monitoring.Init()

	router := gin.Default()
	app.Router = router

	ctx, cancel := context.WithCancel(context.Background())
	app.cancel = cancel

	app.setupMiddlewares(ctx, router, cfg)

	if cfg.Tracing.Enabled {
		tp, err := tracing.InitTracer(cfg.Tracing.ServiceName, cfg.Tracing.CollectorEndpoint)
		if err != nil {
			logger.Log.Fatal("Failed to initialize tracing", zap.Error(err))
		}
		app.tracer = tp
	}

	app.registerRoutes(ctx, router, controllers, cfg)
	app.startBackgroundTasks(ctx, services)

	return app
}

func (a *App) Run() {
	srv := &http.Server{
		Addr:    ":" + a.Config.Server.Port,
		Handler: a.Router,
	}

	// 启动服务器
	go func() {
		logger.Log.Info("Server running", zap.String("port", a.Config.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	// 等待中断信号优雅地关闭服务器（设置5秒的超时时间）
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Log.Info("Shutting down server...")

	if a.cancel != nil {
		a.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			logger.Log.Error("Failed to shutdown tracer provider", zap.Error(err))
		}
	}
	if a.Redis != nil {
		_ = a.Redis.Close()
	}

	logger.Log.Info("Server exiting")
}
