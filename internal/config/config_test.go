package config

import (
	"strings"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.StorageBackend != BackendSQLite {
		t.Fatalf("expected sqlite default backend, got %q", cfg.StorageBackend)
	}
	if cfg.HTTPPort != 8080 || cfg.MetricsPort != 9091 {
		t.Fatalf("unexpected default ports: %d, %d", cfg.HTTPPort, cfg.MetricsPort)
	}
	if cfg.MaxTurns != 20 || !cfg.TrimOnWrite || !cfg.TrimOnRead {
		t.Fatalf("unexpected default trim policy: %+v", cfg)
	}
	if cfg.TrimMode != TrimModeDrop {
		t.Fatalf("expected drop trim mode, got %q", cfg.TrimMode)
	}
}

func TestLoadNormalizesBackendCase(t *testing.T) {
	t.Setenv("STORAGE_BACKEND", " Redis ")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.StorageBackend != BackendRedis {
		t.Fatalf("expected redis, got %q", cfg.StorageBackend)
	}
}

func TestLoadEmptySQLitePathFallsBackToDefault(t *testing.T) {
	// A set-but-empty variable still takes the declared default, so the
	// sqlite backend always has a path.
	t.Setenv("SQLITE_PATH", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SQLitePath != "contextd.db" {
		t.Fatalf("expected default sqlite path, got %q", cfg.SQLitePath)
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name    string
		envs    map[string]string
		wantErr string
	}{
		{
			name:    "unknown backend",
			envs:    map[string]string{"STORAGE_BACKEND": "dynamo"},
			wantErr: "unknown STORAGE_BACKEND",
		},
		{
			name:    "postgres without dsn",
			envs:    map[string]string{"STORAGE_BACKEND": "postgres"},
			wantErr: "DB_POSTGRESQL_WRITE_DSN",
		},
		{
			name:    "non-positive turn budget with trimming",
			envs:    map[string]string{"MAX_TURNS": "0"},
			wantErr: "MAX_TURNS",
		},
		{
			name:    "unknown trim mode",
			envs:    map[string]string{"TRIM_MODE": "compact"},
			wantErr: "unknown TRIM_MODE",
		},
		{
			name:    "summarize without url",
			envs:    map[string]string{"TRIM_MODE": "summarize"},
			wantErr: "SUMMARIZER_URL",
		},
		{
			name:    "retention without ttl",
			envs:    map[string]string{"RETENTION_TTL": "0s"},
			wantErr: "RETENTION_TTL",
		},
		{
			name:    "cache without capacity",
			envs:    map[string]string{"CACHE_SIZE": "0"},
			wantErr: "CACHE_SIZE",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envs {
				t.Setenv(k, v)
			}
			_, err := Load()
			if err == nil {
				t.Fatal("expected an error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error mentioning %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestLoadDisabledTrimmingAllowsZeroBudget(t *testing.T) {
	t.Setenv("MAX_TURNS", "0")
	t.Setenv("TRIM_ON_WRITE", "false")
	t.Setenv("TRIM_ON_READ", "false")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MaxTurns != 0 {
		t.Fatalf("expected zero budget preserved, got %d", cfg.MaxTurns)
	}
}

func TestLoadSummarizeModeWithURL(t *testing.T) {
	t.Setenv("TRIM_MODE", "Summarize")
	t.Setenv("SUMMARIZER_URL", "http://localhost:11434/v1")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.TrimMode != TrimModeSummarize {
		t.Fatalf("expected summarize, got %q", cfg.TrimMode)
	}
}
