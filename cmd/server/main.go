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
	"github.com/stemsi/exstem-attempt/internal/config"
	"github.com/stemsi/exstem-attempt/internal/database"
	"github.com/stemsi/exstem-attempt/internal/handler"
	"github.com/stemsi/exstem-attempt/internal/logger"
	"github.com/stemsi/exstem-attempt/internal/middleware"
	"github.com/stemsi/exstem-attempt/internal/repository"
	"github.com/stemsi/exstem-attempt/internal/router"
	"github.com/stemsi/exstem-attempt/internal/service"
	"github.com/stemsi/exstem-attempt/internal/validator"
	"github.com/stemsi/exstem-attempt/internal/worker"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat, os.Stdout)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Msg("Starting ExStem Attempt API")

	// ─── Initialize Validator ──────────────────────────────────────────
	if err := validator.Setup(); err != nil {
		log.Fatal().Err(err).Msg("Failed to set up validator")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

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

	// ─── Initialize Repositories ───────────────────────────────────────
	sessionRepo := repository.NewExamSessionRepository(pool)
	testRepo := repository.NewTestRepository(pool)
	questionRepo := repository.NewQuestionRepository(pool)
	answerCache := repository.NewAnswerCache(rdb, cfg.AnswerCacheTTL)
	jobQueue := repository.NewJobQueue(rdb)

	// ─── Initialize Services ──────────────────────────────────────────
	authService := service.NewAuthService(cfg)
	sessionService := service.NewSessionService(sessionRepo, testRepo, questionRepo, answerCache, jobQueue, log)

	// ─── Initialize Handlers ──────────────────────────────────────────
	saveLimiter := middleware.NewRateLimiter(cfg.SaveRatePerMinute, time.Minute)
	handlers := &router.Handlers{
		Session:     handler.NewSessionHandler(sessionService, log),
		WS:          handler.NewWSHandler(sessionService, saveLimiter, log, cfg.AllowedOrigins),
		SaveLimiter: saveLimiter,
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	var workers sync.WaitGroup

	autosaveWorker := worker.NewAutosaveWorker(sessionRepo, rdb, log)
	gradingWorker := worker.NewGradingWorker(sessionRepo, questionRepo, answerCache, rdb, cfg.GradeBatchSize, log)
	gradingSweeper := worker.NewGradingSweeper(sessionRepo, jobQueue, cfg.GradeSweepInterval, log)

	for _, start := range []func(context.Context){autosaveWorker.Start, gradingWorker.Start, gradingSweeper.Start} {
		workers.Add(1)
		go func(start func(context.Context)) {
			defer workers.Done()
			start(workerCtx)
		}(start)
	}

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(authService, handlers, cfg)

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

	// 1. Stop accepting new HTTP requests (5s timeout).
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Stop background workers and wait for queues to drain.
	workerCancel()
	drained := make(chan struct{})
	go func() {
		workers.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(15 * time.Second):
		log.Warn().Msg("Workers did not drain in time")
	}

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
