package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Fatalf("expected port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Crawler.DefaultMaxDepth != 2 {
		t.Fatalf("expected default max depth 2, got %d", cfg.Crawler.DefaultMaxDepth)
	}
	if cfg.Storage.Backend != BackendSQLite || cfg.Storage.Table != "crawl_queue" {
		t.Fatalf("unexpected storage defaults: %+v", cfg.Storage)
	}
	if got := cfg.HTTP.Timeout(); got != 10*time.Second {
		t.Fatalf("expected fetch timeout 10s, got %v", got)
	}
	if cfg.RateLimit.MinDelay() != time.Second || cfg.RateLimit.MaxDelay() != 3*time.Second {
		t.Fatalf("unexpected politeness delays: %+v", cfg.RateLimit)
	}
	if !cfg.Progress.Log.Enabled || !cfg.Progress.Prometheus.Enabled || cfg.Progress.Kafka.Enabled {
		t.Fatalf("unexpected progress sink defaults: %+v", cfg.Progress)
	}
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
  request_timeout_seconds: 5
auth:
  enabled: true
  api_key: secret
crawler:
  default_max_depth: 4
  user_agents: ["frontier-test/1.0"]
http:
  timeout_seconds: 45
rate_limit:
  rps: 5
  burst: 2
  min_delay_ms: 0
  max_delay_ms: 250
storage:
  backend: postgres
  table: frontier_items
  postgres:
    dsn: postgres://crawler@localhost/crawler
    max_conns: 8
logging:
  development: false
  level: debug
progress:
  max_batch_wait_ms: 100
  kafka:
    enabled: true
    brokers: ["localhost:9092"]
  redis:
    enabled: true
    addr: localhost:6379
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 || cfg.Server.RequestTimeout() != 5*time.Second {
		t.Fatalf("expected server overrides to apply: %+v", cfg.Server)
	}
	if !cfg.Auth.Enabled || cfg.Auth.APIKey != "secret" {
		t.Fatalf("expected auth enabled with secret key")
	}
	if cfg.Crawler.DefaultMaxDepth != 4 || len(cfg.Crawler.UserAgents) != 1 {
		t.Fatalf("expected crawler overrides to apply: %+v", cfg.Crawler)
	}
	if cfg.Storage.Backend != BackendPostgres || cfg.Storage.Postgres.MaxConns != 8 {
		t.Fatalf("expected postgres storage: %+v", cfg.Storage)
	}
	if cfg.Storage.Table != "frontier_items" {
		t.Fatalf("expected table override, got %q", cfg.Storage.Table)
	}
	if cfg.Logging.Development || cfg.Logging.Level != "debug" {
		t.Fatalf("expected logging overrides: %+v", cfg.Logging)
	}
	if cfg.Progress.Kafka.Topic != "crawl-progress" {
		t.Fatalf("expected default kafka topic, got %q", cfg.Progress.Kafka.Topic)
	}
	if cfg.Progress.Redis.Prefix != "frontier:" {
		t.Fatalf("expected default redis prefix, got %q", cfg.Progress.Redis.Prefix)
	}
	if got := cfg.Progress.MaxBatchWait(); got != 100*time.Millisecond {
		t.Fatalf("expected batch wait 100ms, got %v", got)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("CRAWLER_SERVER_PORT", "7070")
	t.Setenv("CRAWLER_STORAGE_BACKEND", "memory")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Fatalf("expected env port 7070, got %d", cfg.Server.Port)
	}
	if cfg.Storage.Backend != BackendMemory {
		t.Fatalf("expected memory backend, got %q", cfg.Storage.Backend)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Server:  ServerConfig{Port: 8080},
		Crawler: CrawlerConfig{DefaultMaxDepth: 2},
		HTTP:    HTTPConfig{TimeoutSeconds: 10},
		Storage: StorageConfig{Backend: BackendMemory},
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "invalid port", mutate: func(c *Config) { c.Server.Port = 0 }, want: "server.port"},
		{name: "invalid depth", mutate: func(c *Config) { c.Crawler.DefaultMaxDepth = 0 }, want: "crawler.default_max_depth"},
		{name: "invalid timeout", mutate: func(c *Config) { c.HTTP.TimeoutSeconds = 0 }, want: "http.timeout_seconds"},
		{name: "auth missing api key", mutate: func(c *Config) { c.Auth.Enabled = true }, want: "auth.api_key"},
		{name: "negative rps", mutate: func(c *Config) { c.RateLimit.RPS = -1 }, want: "rate_limit.rps"},
		{
			name: "inverted delays",
			mutate: func(c *Config) {
				c.RateLimit.MinDelayMs = 500
				c.RateLimit.MaxDelayMs = 100
			},
			want: "rate_limit delays",
		},
		{name: "unknown backend", mutate: func(c *Config) { c.Storage.Backend = "mongo" }, want: "storage.backend"},
		{name: "sqlite without path", mutate: func(c *Config) { c.Storage.Backend = BackendSQLite }, want: "storage.sqlite.path"},
		{name: "postgres without dsn", mutate: func(c *Config) { c.Storage.Backend = BackendPostgres }, want: "storage.postgres.dsn"},
		{name: "kafka without brokers", mutate: func(c *Config) { c.Progress.Kafka.Enabled = true }, want: "progress.kafka"},
		{name: "pubsub without topic", mutate: func(c *Config) { c.Progress.PubSub.Enabled = true }, want: "progress.pubsub"},
		{name: "redis without addr", mutate: func(c *Config) { c.Progress.Redis.Enabled = true }, want: "progress.redis"},
		{name: "neo4j without uri", mutate: func(c *Config) { c.Progress.Neo4j.Enabled = true }, want: "progress.neo4j"},
	}

	if err := base.Validate(); err != nil {
		t.Fatalf("base config should validate: %v", err)
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
