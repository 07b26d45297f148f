package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ramsalab/survey-api/internal/handler"
	"github.com/ramsalab/survey-api/internal/middleware"
	"github.com/ramsalab/survey-api/internal/repository"
	"github.com/ramsalab/survey-api/internal/service"
	"github.com/ramsalab/survey-api/internal/whatsapp"
	"github.com/ramsalab/survey-api/pkg/cache"
	"github.com/ramsalab/survey-api/pkg/config"
	"github.com/ramsalab/survey-api/pkg/database"
	"github.com/ramsalab/survey-api/pkg/jobs"
	"github.com/ramsalab/survey-api/pkg/lock"
	"github.com/ramsalab/survey-api/pkg/logger"
	corsmiddleware "github.com/ramsalab/survey-api/pkg/middleware/cors"
	reqidmiddleware "github.com/ramsalab/survey-api/pkg/middleware/requestid"
	"github.com/ramsalab/survey-api/pkg/storage"
)

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
		logr.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		// Dedupe degrades gracefully without Redis; the webhook keeps working.
		logr.Warn("redis unavailable, message dedupe disabled", zap.Error(err))
		redisClient = nil
	}
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	defer cacheRepo.Close() //nolint:errcheck

	mediaStore, err := storage.NewLocalStorage(cfg.Media.StorageDir)
	if err != nil {
		logr.Fatal("failed to init media storage", zap.Error(err))
	}
	exportStore, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
	if err != nil {
		logr.Fatal("failed to init export storage", zap.Error(err))
	}
	signer := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)

	participantRepo := repository.NewParticipantRepository(db)
	surveyRepo := repository.NewSurveyRepository(db)
	responseRepo := repository.NewResponseRepository(db)
	exportRepo := repository.NewExportRepository(db)

	metricsSvc := service.NewMetricsService()

	waClient := service.NewMeteredSender(whatsapp.NewClient(cfg.WhatsApp, logr), metricsSvc)
	ingestor := service.NewMeteredIngestor(whatsapp.NewIngestor(cfg.WhatsApp, cfg.Media, mediaStore, logr), metricsSvc)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	queueCfg := jobs.QueueConfig{
		Workers:    cfg.Exports.WorkerConcurrency,
		MaxRetries: cfg.Exports.WorkerRetries,
		Logger:     logr,
	}

	annotationSvc := service.NewAnnotationService(cfg.Annotation, mediaStore, queueCfg, logr)
	annotationSvc.Start(ctx)
	defer annotationSvc.Stop()

	exportSvc := service.NewExportService(exportRepo, responseRepo, exportStore, mediaStore, signer, metricsSvc, queueCfg, cfg.APIPrefix, logr)
	if cfg.Exports.Enabled {
		exportSvc.Start(ctx)
		defer exportSvc.Stop()
		go cleanupExports(ctx, exportStore, cfg.Exports, logr)
	}

	onboardingSvc := service.NewOnboardingService(participantRepo, waClient, logr)
	surveyFlowSvc := service.NewSurveyFlowService(participantRepo, surveyRepo, responseRepo, ingestor, waClient, annotationSvc, logr, nil)
	webhookSvc := service.NewWebhookService(
		participantRepo, surveyRepo, cacheRepo, lock.NewKeyedMutex(),
		onboardingSvc, surveyFlowSvc, metricsSvc,
		service.WebhookConfig{
			VerifyToken:   cfg.WhatsApp.VerifyToken,
			DefaultSurvey: cfg.WhatsApp.DefaultSurvey,
			DedupeTTL:     cfg.WhatsApp.DedupeTTL,
		},
		logr,
	)

	webhookHandler := handler.NewWebhookHandler(webhookSvc)
	exportHandler := handler.NewExportHandler(exportSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc, db)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(middleware.Metrics(metricsSvc))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))

	r.GET("/health", metricsHandler.Health)
	r.GET("/metrics", metricsHandler.Prometheus)

	r.GET("/webhook/whatsapp", webhookHandler.Verify)
	r.POST("/webhook/whatsapp", webhookHandler.Receive)

	api := r.Group(cfg.APIPrefix)
	if cfg.Exports.Enabled {
		api.POST("/exports", exportHandler.Create)
		api.GET("/exports", exportHandler.List)
		api.GET("/exports/download", exportHandler.Download)
		api.GET("/exports/:id", exportHandler.Get)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Error("server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("forced shutdown", zap.Error(err))
		os.Exit(1)
	}
}

// cleanupExports prunes expired artifacts so signed links never outlive the
// files they point at by more than one interval.
func cleanupExports(ctx context.Context, store *storage.LocalStorage, cfg config.ExportsConfig, logr *zap.Logger) {
	interval := cfg.CleanupInterval
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := store.CleanupOlderThan(cfg.SignedURLTTL + interval)
			if err != nil {
				logr.Warn("export cleanup failed", zap.Error(err))
				continue
			}
			if len(removed) > 0 {
				logr.Info("pruned expired exports", zap.Int("count", len(removed)))
			}
		}
	}
}
