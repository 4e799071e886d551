package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/noah-isme/classroom-insights/api/swagger"
	"github.com/noah-isme/classroom-insights/internal/classroom"
	"github.com/noah-isme/classroom-insights/internal/handler"
	"github.com/noah-isme/classroom-insights/internal/llm"
	internalmiddleware "github.com/noah-isme/classroom-insights/internal/middleware"
	"github.com/noah-isme/classroom-insights/internal/models"
	"github.com/noah-isme/classroom-insights/internal/repository"
	"github.com/noah-isme/classroom-insights/internal/service"
	"github.com/noah-isme/classroom-insights/pkg/cache"
	"github.com/noah-isme/classroom-insights/pkg/config"
	"github.com/noah-isme/classroom-insights/pkg/database"
	"github.com/noah-isme/classroom-insights/pkg/jobs"
	"github.com/noah-isme/classroom-insights/pkg/logger"
	corsmiddleware "github.com/noah-isme/classroom-insights/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/classroom-insights/pkg/middleware/requestid"
	"github.com/noah-isme/classroom-insights/pkg/storage"
)

// @title Classroom Insights API
// @version 0.1.0
// @description Classroom submission metrics and batched report classification
// @BasePath /api/v1
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	metrics := service.NewMetricsService()

	var cacheSvc *service.CacheService
	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
		cacheSvc = service.NewCacheService(nil, metrics, cfg.Classroom.CacheTTL, logr, false)
	} else {
		defer redisClient.Close() //nolint:errcheck
		cacheRepo := repository.NewCacheRepository(redisClient, logr)
		cacheSvc = service.NewCacheService(cacheRepo, metrics, cfg.Classroom.CacheTTL, logr, true)
	}

	store, err := storage.NewLocalStorage(cfg.Reports.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to prepare reports directory", "error", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Reports.SignedURLSecret, cfg.Reports.SignedURLTTL)

	classroomClient := classroom.NewClient(cfg.Classroom, logr)
	llmClient := llm.NewClient(cfg.Ollama, logr)

	runRepo := repository.NewRunRepository(db)
	reportRepo := repository.NewStudentReportRepository(db)

	exporter := service.NewExportService(store, signer, service.ExportConfig{
		APIPrefix: cfg.APIPrefix,
		ResultTTL: cfg.Reports.ResultTTL,
	}, logr, nil, nil)

	categories := make([]models.Category, 0, len(cfg.Classifier.Categories))
	for _, c := range cfg.Classifier.Categories {
		categories = append(categories, models.Category(c))
	}

	classifier := service.NewClassificationService(llmClient, service.ClassificationConfig{
		BatchSize:   cfg.Classifier.BatchSize,
		MaxRetries:  cfg.Classifier.MaxRetries,
		BackoffBase: cfg.Classifier.BackoffBase,
		BackoffCap:  cfg.Classifier.BackoffCap,
		Categories:  categories,
		Logger:      logr,
		Metrics:     metrics,
	})

	worker := service.NewRunWorker(runRepo, reportRepo, classroomClient,
		service.NewAnalysisService(logr), classifier, service.NewReportAssembler(logr),
		exporter, metrics, cfg.Reports.WorkerRetries, logr)

	queue := jobs.NewQueue("analysis-runs", worker.Handle, jobs.QueueConfig{
		Workers:    1,
		MaxRetries: cfg.Reports.WorkerRetries,
		Logger:     logr,
	})

	runSvc := service.NewRunService(runRepo, queue, exporter, logr, service.RunServiceConfig{
		ResultTTL:       cfg.Reports.ResultTTL,
		CleanupInterval: cfg.Reports.CleanupInterval,
		MaxRetries:      cfg.Reports.WorkerRetries,
	})
	reportQuerySvc := service.NewReportQueryService(reportRepo, logr)
	courseSvc := service.NewCourseService(classroomClient, llmClient, cacheSvc, cfg.Classroom.CacheTTL, logr)
	authSvc := service.NewAuthService(nil, logr, service.AuthConfig{
		OperatorEmail:        cfg.Auth.OperatorEmail,
		OperatorPasswordHash: cfg.Auth.OperatorPasswordHash,
		AccessTokenSecret:    cfg.JWT.Secret,
		AccessTokenExpiry:    cfg.JWT.Expiration,
		Issuer:               cfg.JWT.Issuer,
	})

	var chatSvc *service.ChatService
	if cfg.Chat.Enabled {
		chatSvc = service.NewChatService(reportRepo, llmClient, cacheSvc, service.ChatConfig{
			MaxTurns:  cfg.Chat.MaxTurns,
			MemoryTTL: cfg.Chat.MemoryTTL,
			KeyPrefix: cfg.Chat.KeyPrefix,
		}, logr)
	}

	authHandler := handler.NewAuthHandler(authSvc)
	runHandler := handler.NewRunHandler(runSvc, reportQuerySvc)
	courseHandler := handler.NewCourseHandler(courseSvc)
	chatHandler := handler.NewChatHandler(chatSvc)
	metricsHandler := handler.NewMetricsHandler(metrics)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.WithResponseMeta())
	r.Use(internalmiddleware.Metrics(metrics))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Health)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.POST("/auth/login", authHandler.Login)
	api.GET("/export/:token", runHandler.Download)

	protected := api.Group("")
	protected.Use(internalmiddleware.JWT(authSvc))
	protected.GET("/auth/me", authHandler.Me)
	protected.GET("/courses", courseHandler.List)
	protected.GET("/courses/:id/students", courseHandler.Students)
	protected.DELETE("/courses/cache", courseHandler.InvalidateCache)
	protected.GET("/models", courseHandler.Models)
	protected.POST("/runs", runHandler.Create)
	protected.GET("/runs", runHandler.List)
	protected.GET("/runs/:id", runHandler.Status)
	protected.GET("/runs/:id/reports", runHandler.Reports)
	protected.GET("/runs/:id/categories", runHandler.Categories)
	protected.GET("/status", metricsHandler.Status)
	if cfg.Chat.Enabled {
		protected.POST("/chat", chatHandler.Ask)
		protected.DELETE("/chat/:runId", chatHandler.Reset)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	queue.Start(ctx)
	defer queue.Stop()
	runSvc.RecoverPendingRuns(ctx)
	runSvc.StartCleanup(ctx)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Warnw("graceful shutdown failed", "error", err)
	}
}
