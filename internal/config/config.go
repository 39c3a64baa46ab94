package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the inferflow server and worker.
type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Inference InferenceConfig
	Queue     QueueConfig
	Worker    WorkerConfig
}

type AppConfig struct {
	Name     string
	Port     int
	LogLevel string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

type InferenceConfig struct {
	ModelVersion string
	Timeout      time.Duration
}

type QueueConfig struct {
	MaxRetries  int
	BackoffBase time.Duration
	// Inline executes tasks synchronously inside the submit path instead of
	// dispatching them to the Redis-backed worker pool.
	Inline bool
}

type WorkerConfig struct {
	Concurrency  int
	PollInterval time.Duration
}

var validLogLevels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// Load reads configuration from environment variables and returns a validated
// Config. A local .env file is applied first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		App: AppConfig{
			Name:     envString("APP_NAME", "inferflow"),
			Port:     envInt("API_PORT", 8000),
			LogLevel: envString("LOG_LEVEL", "info"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Inference: InferenceConfig{
			ModelVersion: envString("MODEL_VERSION", "v1"),
			Timeout:      envDurationSecs("INFERENCE_TIMEOUT_SECONDS", 15*time.Second),
		},
		Queue: QueueConfig{
			MaxRetries:  envInt("MAX_RETRIES", 3),
			BackoffBase: envDurationSecs("RETRY_BACKOFF_SECONDS", 2*time.Second),
			Inline:      envBool("TASK_INLINE", false),
		},
		Worker: WorkerConfig{
			Concurrency:  envInt("WORKER_CONCURRENCY", 4),
			PollInterval: envDuration("WORKER_POLL_INTERVAL", 500*time.Millisecond),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" && !c.Queue.Inline {
		return fmt.Errorf("REDIS_URL is required unless TASK_INLINE is true")
	}

	if c.App.Port <= 0 || c.App.Port > 65535 {
		return fmt.Errorf("API_PORT must be between 1 and 65535, got %d", c.App.Port)
	}

	if c.Queue.MaxRetries < 0 {
		return fmt.Errorf("MAX_RETRIES must not be negative, got %d", c.Queue.MaxRetries)
	}

	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("WORKER_CONCURRENCY must be positive, got %d", c.Worker.Concurrency)
	}

	if _, ok := validLogLevels[strings.ToLower(c.App.LogLevel)]; !ok {
		return fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error; got %q", c.App.LogLevel)
	}

	return nil
}

// SlogLevel maps the configured log level onto a slog.Level.
func (c *Config) SlogLevel() slog.Level {
	return validLogLevels[strings.ToLower(c.App.LogLevel)]
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	return strings.EqualFold(v, "true") || v == "1"
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func envDurationSecs(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return time.Duration(secs) * time.Second
}
