package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cam3ron2/github-champion/internal/config"
	"github.com/cam3ron2/github-champion/internal/store"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// NewSnapshotStore builds the configured store, falling back to memory when Redis is unreachable.
func NewSnapshotStore(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) store.SnapshotStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	if strings.EqualFold(strings.TrimSpace(cfg.Backend), "redis") {
		redisStore, err := newRedisStoreFromConfig(ctx, cfg)
		if err != nil {
			logger.Warn("failed to initialize redis store; falling back to in-memory store", zap.Error(err))
		} else {
			return redisStore
		}
	}
	return store.NewMemoryStore(cfg.Retention)
}

func newRedisStoreFromConfig(ctx context.Context, cfg config.StoreConfig) (*store.RedisStore, error) {
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		_ = redisClient.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return store.NewRedisStore(redisClient, store.RedisStoreConfig{
		Namespace: cfg.KeyPrefix,
		Retention: cfg.Retention,
	}), nil
}
