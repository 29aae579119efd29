package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/docquiz-backend/internal/config"
	"github.com/stemsi/docquiz-backend/internal/database"
	"github.com/stemsi/docquiz-backend/internal/extractor"
	"github.com/stemsi/docquiz-backend/internal/forms"
	"github.com/stemsi/docquiz-backend/internal/generation"
	"github.com/stemsi/docquiz-backend/internal/handler"
	"github.com/stemsi/docquiz-backend/internal/handoff"
	"github.com/stemsi/docquiz-backend/internal/logger"
	"github.com/stemsi/docquiz-backend/internal/middleware"
	"github.com/stemsi/docquiz-backend/internal/repository"
	"github.com/stemsi/docquiz-backend/internal/router"
	"github.com/stemsi/docquiz-backend/internal/service"
	"github.com/stemsi/docquiz-backend/internal/validator"
	"github.com/stemsi/docquiz-backend/internal/worker"
)

const sweepInterval = time.Minute

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Msg("Starting DocQuiz Backend")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := os.MkdirAll(cfg.UploadDir, 0o750); err != nil {
		log.Fatal().Err(err).Str("dir", cfg.UploadDir).Msg("Failed to create upload directory")
	}

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// ─── Generation ────────────────────────────────────────────────────
	model, err := generation.NewGeminiModel(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, cfg.GenerationTemperature)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize generative model")
	}
	defer model.Close()

	generator := generation.NewClient(model, generation.Options{
		MinChars:   cfg.MinInputChars,
		Timeout:    cfg.GenerationTimeout,
		MaxRetries: cfg.GenerationMaxRetries,
	}, log)

	// ─── Export ────────────────────────────────────────────────────────
	store, err := handoff.NewRedisStore(rdb, cfg.SessionSecret, cfg.HandoffTTL, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize handoff store")
	}
	if cfg.OAuthClientID == "" || cfg.OAuthClientSecret == "" {
		log.Warn().Msg("OAuth client is not configured; form export will fail at token exchange")
	}

	exportRepo := repository.NewExportRepository(pool)

	// ─── Initialize Services ──────────────────────────────────────────
	ex := extractor.New(extractor.Options{
		Concurrency:     cfg.ExtractConcurrency,
		RemoveExtracted: true,
	}, log)
	uploadService := service.NewUploadService(cfg)
	quizService := service.NewQuizService(ex, generator, cfg.MaxTextChars, log)
	exportService := service.NewExportService(
		exportRepo,
		store,
		service.NewGoogleAuthorizer(cfg.OAuthClientID, cfg.OAuthClientSecret, cfg.OAuthRedirectURL),
		service.NewStateSigner(cfg.SessionSecret, cfg.HandoffTTL),
		func(ctx context.Context, client *http.Client) (forms.API, error) {
			return forms.NewGoogleAPI(ctx, client)
		},
		rdb,
		cfg.FormsTimeout,
		log,
	)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Quiz:    handler.NewQuizHandler(uploadService, quizService, cfg, log),
		Export:  handler.NewExportHandler(exportService, cfg, log),
		WS:      handler.NewWSHandler(rdb, exportService, log, cfg.AllowedOrigins),
		Monitor: handler.NewMonitorHandler(rdb, exportService, log),
		System:  handler.NewSystemHandler(pool, rdb, log),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	var workers sync.WaitGroup

	sweepWorker := worker.NewExportSweepWorker(exportService, cfg.HandoffTTL, sweepInterval, log)
	workers.Add(1)
	go func() {
		defer workers.Done()
		sweepWorker.Start(workerCtx)
	}()

	// ─── Setup Router ──────────────────────────────────────────────────
	limiter := middleware.NewRateLimiter(rdb, config.CacheKey.GenerateRateKey, cfg.GenerateRatePerMinute, time.Minute, log)
	r := router.SetupRouter(limiter, handlers, cfg)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests. Generation calls can be slow, so
	// in-flight requests get the generation timeout to finish.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.GenerationTimeout+5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Stop background workers.
	workerCancel()
	workers.Wait()

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
