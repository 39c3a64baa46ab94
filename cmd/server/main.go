// Package main is the entrypoint for the inferflow API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Jacobjfiske/inferflow/internal/api"
	"github.com/Jacobjfiske/inferflow/internal/api/handler"
	"github.com/Jacobjfiske/inferflow/internal/config"
	"github.com/Jacobjfiske/inferflow/internal/inference"
	"github.com/Jacobjfiske/inferflow/internal/jobs"
	"github.com/Jacobjfiske/inferflow/internal/metrics"
	"github.com/Jacobjfiske/inferflow/internal/queue"
	"github.com/Jacobjfiske/inferflow/internal/store"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config — fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)
	slog.Info("config loaded", "app", cfg.App.Name, "model_version", cfg.Inference.ModelVersion, "inline", cfg.Queue.Inline)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database.URL, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	pgStore := store.NewPostgresStore(pool)

	// 4. Pick the executor: Redis-backed broker, or inline for local runs
	policy := queue.NewRetryPolicy(cfg.Queue.MaxRetries, cfg.Queue.BackoffBase)

	var q queue.Queue
	var inline *queue.Inline
	if cfg.Queue.Inline {
		inline = queue.NewInline(policy, cfg.Inference.Timeout)
		q = inline
		slog.Info("inline executor enabled, tasks run in-process")
	} else {
		redisQueue, err := queue.NewRedisQueue(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("create redis queue: %w", err)
		}
		defer redisQueue.Close()

		if err := redisQueue.Ping(ctx); err != nil {
			return fmt.Errorf("ping redis: %w", err)
		}
		q = redisQueue
		slog.Info("redis connected")
	}

	// 5. Build the orchestrator
	counters := metrics.NewCounters()
	scorer := inference.NewKeywordClassifier()
	svc := jobs.NewService(pgStore, q, scorer, counters,
		cfg.Inference.ModelVersion, cfg.Queue.MaxRetries, cfg.Inference.Timeout)
	if inline != nil {
		inline.Bind(svc.Handle)
	}

	// 6. Build router with dependencies
	deps := api.Dependencies{
		HealthHandler:  handler.NewHealthHandler(cfg.App.Name),
		ReadyHandler:   handler.NewReadyHandler(pgStore, q),
		MetricsHandler: handler.NewMetricsHandler(counters),
		SubmitHandler:  handler.NewSubmitHandler(svc),
		JobHandler:     handler.NewJobStatusHandler(svc),
	}

	router := api.NewRouter(deps)

	// 7. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.App.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}
