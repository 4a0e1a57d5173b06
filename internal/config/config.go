package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Storage backend selectors.
const (
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
	BackendRedis    = "redis"
)

// Trim modes.
const (
	TrimModeDrop      = "drop"
	TrimModeSummarize = "summarize"
)

// Config holds all environment backed configuration for contextd.
type Config struct {
	// HTTP Server
	HTTPPort    int           `env:"HTTP_PORT" envDefault:"8080"`
	MetricsPort int           `env:"METRICS_PORT" envDefault:"9091"`
	HTTPTimeout time.Duration `env:"HTTP_TIMEOUT" envDefault:"30s"`

	// Storage
	StorageBackend       string `env:"STORAGE_BACKEND" envDefault:"sqlite"`
	SQLitePath           string `env:"SQLITE_PATH" envDefault:"contextd.db"`
	DBPostgresqlWriteDSN string `env:"DB_POSTGRESQL_WRITE_DSN"`
	DBPostgresqlRead1DSN string `env:"DB_POSTGRESQL_READ1_DSN"`
	RedisAddr            string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword        string `env:"REDIS_PASSWORD"`
	RedisDB              int    `env:"REDIS_DB" envDefault:"0"`
	AutoMigrate          bool   `env:"AUTO_MIGRATE" envDefault:"true"`

	// Trim policy
	MaxTurns    int    `env:"MAX_TURNS" envDefault:"20"`
	TrimOnWrite bool   `env:"TRIM_ON_WRITE" envDefault:"true"`
	TrimOnRead  bool   `env:"TRIM_ON_READ" envDefault:"true"`
	TrimMode    string `env:"TRIM_MODE" envDefault:"drop"`

	// Summarizer (only used when TRIM_MODE=summarize)
	SummarizerURL     string        `env:"SUMMARIZER_URL"`
	SummarizerAPIKey  string        `env:"SUMMARIZER_API_KEY"`
	SummarizerModel   string        `env:"SUMMARIZER_MODEL" envDefault:"gpt-4o-mini"`
	SummarizerTimeout time.Duration `env:"SUMMARIZER_TIMEOUT" envDefault:"30s"`

	// Retention
	RetentionEnabled    bool          `env:"RETENTION_ENABLED" envDefault:"true"`
	RetentionTTL        time.Duration `env:"RETENTION_TTL" envDefault:"720h"`
	RetentionSweepLimit int           `env:"RETENTION_SWEEP_LIMIT" envDefault:"100"`

	// Read cache
	CacheEnabled bool `env:"CACHE_ENABLED" envDefault:"true"`
	CacheSize    int  `env:"CACHE_SIZE" envDefault:"1024"`

	// Observability / Logging
	ServiceName string `env:"SERVICE_NAME" envDefault:"contextd"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat   string `env:"LOG_FORMAT" envDefault:"console"`

	// Internal
	EnvReloadedAt time.Time
}

// Load parses environment variables into Config and performs minimal validation.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	cfg.StorageBackend = strings.ToLower(strings.TrimSpace(cfg.StorageBackend))
	switch cfg.StorageBackend {
	case BackendPostgres:
		if cfg.DBPostgresqlWriteDSN == "" {
			return nil, fmt.Errorf("DB_POSTGRESQL_WRITE_DSN is required when STORAGE_BACKEND=postgres")
		}
	case BackendSQLite:
		// SQLITE_PATH carries an envDefault, so it is never empty here.
	case BackendRedis:
		if cfg.RedisAddr == "" {
			return nil, fmt.Errorf("REDIS_ADDR is required when STORAGE_BACKEND=redis")
		}
	default:
		return nil, fmt.Errorf("unknown STORAGE_BACKEND %q (want postgres, sqlite or redis)", cfg.StorageBackend)
	}

	if cfg.MaxTurns <= 0 && (cfg.TrimOnWrite || cfg.TrimOnRead) {
		return nil, fmt.Errorf("MAX_TURNS must be positive when trimming is enabled, got %d", cfg.MaxTurns)
	}

	cfg.TrimMode = strings.ToLower(strings.TrimSpace(cfg.TrimMode))
	switch cfg.TrimMode {
	case TrimModeDrop:
	case TrimModeSummarize:
		if cfg.SummarizerURL == "" {
			return nil, fmt.Errorf("SUMMARIZER_URL is required when TRIM_MODE=summarize")
		}
	default:
		return nil, fmt.Errorf("unknown TRIM_MODE %q (want drop or summarize)", cfg.TrimMode)
	}

	if cfg.RetentionEnabled && cfg.RetentionTTL <= 0 {
		return nil, fmt.Errorf("RETENTION_TTL must be positive when retention is enabled")
	}
	if cfg.CacheEnabled && cfg.CacheSize <= 0 {
		return nil, fmt.Errorf("CACHE_SIZE must be positive when the cache is enabled")
	}

	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	cfg.LogFormat = strings.ToLower(cfg.LogFormat)
	cfg.EnvReloadedAt = time.Now()

	return cfg, nil
}
