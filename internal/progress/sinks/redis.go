package sinks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/JakeFAU/frontier-crawler/internal/progress"
)

type redisClient interface {
	HIncrBy(ctx context.Context, key, field string, incr int64) *redis.IntCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Close() error
}

// RedisSink mirrors crawl progress into Redis for external dashboards: a hash of
// per-stage counters under <prefix>stages and the latest event JSON under <prefix>last.
type RedisSink struct {
	client redisClient
	prefix string
	ttl    time.Duration
}

// RedisConfig controls the Redis connection and key layout.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	TTL      time.Duration
}

// NewRedisSink connects to Redis using cfg.
func NewRedisSink(cfg RedisConfig) (*RedisSink, error) {
	if cfg.Addr == "" {
		return nil, errors.New("progress.redis.addr is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return NewRedisSinkWithClient(client, cfg.Prefix, cfg.TTL), nil
}

// NewRedisSinkWithClient builds a sink around an existing client (tests).
func NewRedisSinkWithClient(client redisClient, prefix string, ttl time.Duration) *RedisSink {
	if prefix == "" {
		prefix = "frontier:"
	}
	return &RedisSink{client: client, prefix: prefix, ttl: ttl}
}

// Name implements progress.NamedSink.
func (s *RedisSink) Name() string { return "redis" }

// Consume aggregates the batch into one HINCRBY per stage and one SET.
func (s *RedisSink) Consume(ctx context.Context, batch []progress.Event) error {
	if len(batch) == 0 {
		return nil
	}
	perStage := make(map[progress.Stage]int64, len(progress.Stages))
	for _, evt := range batch {
		perStage[evt.Stage]++
	}
	stagesKey := s.prefix + "stages"
	for _, stage := range progress.Stages {
		n := perStage[stage]
		if n == 0 {
			continue
		}
		if err := s.client.HIncrBy(ctx, stagesKey, string(stage), n).Err(); err != nil {
			return fmt.Errorf("hincrby %s %s: %w", stagesKey, stage, err)
		}
	}

	last, err := json.Marshal(batch[len(batch)-1])
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := s.client.Set(ctx, s.prefix+"last", last, s.ttl).Err(); err != nil {
		return fmt.Errorf("set %slast: %w", s.prefix, err)
	}
	return nil
}

// Close closes the Redis client.
func (s *RedisSink) Close(context.Context) error {
	return s.client.Close()
}
