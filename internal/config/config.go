// Package config loads and validates crawler configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Storage backends understood by the service.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Crawler   CrawlerConfig   `mapstructure:"crawler"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Progress  ProgressConfig  `mapstructure:"progress"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                   int `mapstructure:"port"`
	RequestTimeoutSeconds  int `mapstructure:"request_timeout_seconds"`
	ShutdownTimeoutSeconds int `mapstructure:"shutdown_timeout_seconds"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// CrawlerConfig governs seed defaults and request identity.
type CrawlerConfig struct {
	DefaultMaxDepth int      `mapstructure:"default_max_depth"`
	UserAgents      []string `mapstructure:"user_agents"`
}

// HTTPConfig configures the fetcher.
type HTTPConfig struct {
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
	MaxBodyBytes   int `mapstructure:"max_body_bytes"`
}

// RateLimitConfig configures per-host politeness.
type RateLimitConfig struct {
	RPS        float64 `mapstructure:"rps"`
	Burst      int     `mapstructure:"burst"`
	MinDelayMs int     `mapstructure:"min_delay_ms"`
	MaxDelayMs int     `mapstructure:"max_delay_ms"`
}

// StorageConfig selects and configures the frontier store.
type StorageConfig struct {
	Backend  string         `mapstructure:"backend"`
	Table    string         `mapstructure:"table"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// SQLiteConfig controls the embedded database file.
type SQLiteConfig struct {
	Path          string `mapstructure:"path"`
	BusyTimeoutMs int    `mapstructure:"busy_timeout_ms"`
	DisableWAL    bool   `mapstructure:"disable_wal"`
}

// PostgresConfig controls access to the relational database.
type PostgresConfig struct {
	DSN                    string `mapstructure:"dsn"`
	MaxConns               int32  `mapstructure:"max_conns"`
	MinConns               int32  `mapstructure:"min_conns"`
	MaxConnLifetimeMinutes int    `mapstructure:"max_conn_lifetime_minutes"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// ProgressConfig controls event batching and the enabled sinks.
type ProgressConfig struct {
	BufferSize     int              `mapstructure:"buffer_size"`
	MaxBatchEvents int              `mapstructure:"max_batch_events"`
	MaxBatchWaitMs int              `mapstructure:"max_batch_wait_ms"`
	SinkTimeoutMs  int              `mapstructure:"sink_timeout_ms"`
	Log            ToggleConfig     `mapstructure:"log"`
	Prometheus     ToggleConfig     `mapstructure:"prometheus"`
	Kafka          KafkaSinkConfig  `mapstructure:"kafka"`
	PubSub         PubSubSinkConfig `mapstructure:"pubsub"`
	Redis          RedisSinkConfig  `mapstructure:"redis"`
	Neo4j          Neo4jSinkConfig  `mapstructure:"neo4j"`
}

// ToggleConfig enables a sink that needs no further settings.
type ToggleConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// KafkaSinkConfig publishes events to a Kafka topic.
type KafkaSinkConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// PubSubSinkConfig holds metadata for publish-subscribe notifications.
type PubSubSinkConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// RedisSinkConfig mirrors run counters into Redis.
type RedisSinkConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Addr       string `mapstructure:"addr"`
	Password   string `mapstructure:"password"`
	DB         int    `mapstructure:"db"`
	Prefix     string `mapstructure:"prefix"`
	TTLSeconds int    `mapstructure:"ttl_seconds"`
}

// Neo4jSinkConfig records the link graph in Neo4j.
type Neo4jSinkConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	URI      string `mapstructure:"uri"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CRAWLER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout_seconds", 30)
	v.SetDefault("server.shutdown_timeout_seconds", 15)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("crawler.default_max_depth", 2)
	v.SetDefault("http.timeout_seconds", 10)
	v.SetDefault("http.max_body_bytes", 10<<20)
	v.SetDefault("rate_limit.rps", 1.0)
	v.SetDefault("rate_limit.burst", 1)
	v.SetDefault("rate_limit.min_delay_ms", 1000)
	v.SetDefault("rate_limit.max_delay_ms", 3000)
	v.SetDefault("storage.backend", BackendSQLite)
	v.SetDefault("storage.table", "crawl_queue")
	v.SetDefault("storage.sqlite.path", "data/frontier.db")
	v.SetDefault("storage.sqlite.busy_timeout_ms", 5000)
	v.SetDefault("storage.postgres.max_conns", 4)
	v.SetDefault("storage.postgres.min_conns", 0)
	v.SetDefault("storage.postgres.max_conn_lifetime_minutes", 30)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("progress.buffer_size", 1024)
	v.SetDefault("progress.max_batch_events", 256)
	v.SetDefault("progress.max_batch_wait_ms", 500)
	v.SetDefault("progress.sink_timeout_ms", 5000)
	v.SetDefault("progress.log.enabled", true)
	v.SetDefault("progress.prometheus.enabled", true)
	v.SetDefault("progress.kafka.topic", "crawl-progress")
	v.SetDefault("progress.redis.prefix", "frontier:")
	v.SetDefault("progress.redis.ttl_seconds", 3600)
	v.SetDefault("progress.neo4j.database", "neo4j")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Crawler.DefaultMaxDepth < 1 {
		return fmt.Errorf("crawler.default_max_depth must be >= 1")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.RateLimit.RPS < 0 {
		return fmt.Errorf("rate_limit.rps must be >= 0")
	}
	if c.RateLimit.MinDelayMs < 0 || c.RateLimit.MaxDelayMs < c.RateLimit.MinDelayMs {
		return fmt.Errorf("rate_limit delays must satisfy 0 <= min_delay_ms <= max_delay_ms")
	}
	switch c.Storage.Backend {
	case BackendMemory:
	case BackendSQLite:
		if c.Storage.SQLite.Path == "" {
			return fmt.Errorf("storage.sqlite.path must be set for the sqlite backend")
		}
	case BackendPostgres:
		if c.Storage.Postgres.DSN == "" {
			return fmt.Errorf("storage.postgres.dsn must be set for the postgres backend")
		}
	default:
		return fmt.Errorf("storage.backend %q is not one of memory, sqlite, postgres", c.Storage.Backend)
	}
	return c.Progress.validate()
}

func (p ProgressConfig) validate() error {
	var errs []error
	if p.Kafka.Enabled && (len(p.Kafka.Brokers) == 0 || p.Kafka.Topic == "") {
		errs = append(errs, errors.New("progress.kafka requires brokers and topic"))
	}
	if p.PubSub.Enabled && (p.PubSub.ProjectID == "" || p.PubSub.TopicName == "") {
		errs = append(errs, errors.New("progress.pubsub requires project_id and topic_name"))
	}
	if p.Redis.Enabled && p.Redis.Addr == "" {
		errs = append(errs, errors.New("progress.redis requires addr"))
	}
	if p.Neo4j.Enabled && p.Neo4j.URI == "" {
		errs = append(errs, errors.New("progress.neo4j requires uri"))
	}
	return errors.Join(errs...)
}

// RequestTimeout bounds each admin API request.
func (s ServerConfig) RequestTimeout() time.Duration {
	return time.Duration(s.RequestTimeoutSeconds) * time.Second
}

// ShutdownTimeout bounds graceful shutdown.
func (s ServerConfig) ShutdownTimeout() time.Duration {
	return time.Duration(s.ShutdownTimeoutSeconds) * time.Second
}

// Timeout converts the fetch timeout into a duration.
func (h HTTPConfig) Timeout() time.Duration {
	return time.Duration(h.TimeoutSeconds) * time.Second
}

// MinDelay returns the lower bound of the random politeness pause.
func (r RateLimitConfig) MinDelay() time.Duration {
	return time.Duration(r.MinDelayMs) * time.Millisecond
}

// MaxDelay returns the upper bound of the random politeness pause.
func (r RateLimitConfig) MaxDelay() time.Duration {
	return time.Duration(r.MaxDelayMs) * time.Millisecond
}

// MaxBatchWait converts the batch wait to a duration.
func (p ProgressConfig) MaxBatchWait() time.Duration {
	return time.Duration(p.MaxBatchWaitMs) * time.Millisecond
}

// SinkTimeout converts the per-sink deadline to a duration.
func (p ProgressConfig) SinkTimeout() time.Duration {
	return time.Duration(p.SinkTimeoutMs) * time.Millisecond
}
