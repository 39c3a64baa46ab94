// Package main is the entrypoint for the inferflow background worker.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Jacobjfiske/inferflow/internal/config"
	"github.com/Jacobjfiske/inferflow/internal/inference"
	"github.com/Jacobjfiske/inferflow/internal/jobs"
	"github.com/Jacobjfiske/inferflow/internal/metrics"
	"github.com/Jacobjfiske/inferflow/internal/queue"
	"github.com/Jacobjfiske/inferflow/internal/store"
	"github.com/Jacobjfiske/inferflow/internal/worker"
)

func main() {
	if err := run(); err != nil {
		slog.Error("worker failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Queue.Inline {
		return fmt.Errorf("TASK_INLINE is enabled; the server executes tasks in-process and no worker is needed")
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)
	slog.Info("config loaded", "app", cfg.App.Name,
		"concurrency", cfg.Worker.Concurrency, "max_retries", cfg.Queue.MaxRetries)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	redisQueue, err := queue.NewRedisQueue(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis queue: %w", err)
	}
	defer redisQueue.Close()

	if err := redisQueue.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	pgStore := store.NewPostgresStore(pool)
	counters := metrics.NewCounters()
	scorer := inference.NewKeywordClassifier()
	svc := jobs.NewService(pgStore, redisQueue, scorer, counters,
		cfg.Inference.ModelVersion, cfg.Queue.MaxRetries, cfg.Inference.Timeout)

	policy := queue.NewRetryPolicy(cfg.Queue.MaxRetries, cfg.Queue.BackoffBase)
	workerPool := worker.NewPool(redisQueue, svc.Handle, policy,
		cfg.Worker.Concurrency, cfg.Inference.Timeout, cfg.Worker.PollInterval, logger)
	workerPool.Abandon = svc.Abandon

	slog.Info("worker started", "concurrency", cfg.Worker.Concurrency)
	if err := workerPool.Run(ctx); err != nil {
		return fmt.Errorf("worker pool: %w", err)
	}

	slog.Info("worker stopped gracefully")
	return nil
}
