package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type redisCommander interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
	Ping(ctx context.Context) *redis.StatusCmd
}

// RedisStoreConfig configures the Redis-backed snapshot store.
type RedisStoreConfig struct {
	Namespace string
	Retention time.Duration
}

// RedisStore shares the latest snapshot and the refresh lock across replicas.
type RedisStore struct {
	client    redisCommander
	closeFn   func() error
	namespace string
	retention time.Duration
}

// NewRedisStore creates a Redis-backed snapshot store.
func NewRedisStore(client redis.UniversalClient, cfg RedisStoreConfig) *RedisStore {
	closeFn := func() error { return nil }
	if client != nil {
		closeFn = client.Close
	}
	return newRedisStoreFromCommander(client, closeFn, cfg)
}

func newRedisStoreFromCommander(client redisCommander, closeFn func() error, cfg RedisStoreConfig) *RedisStore {
	namespace := cfg.Namespace
	if namespace == "" {
		namespace = "github-champion"
	}
	if closeFn == nil {
		closeFn = func() error { return nil }
	}
	return &RedisStore{
		client:    client,
		closeFn:   closeFn,
		namespace: namespace,
		retention: cfg.Retention,
	}
}

// Close closes the underlying Redis client.
func (s *RedisStore) Close() error {
	if s == nil || s.closeFn == nil {
		return nil
	}
	return s.closeFn()
}

// Publish stores snapshot as the latest one, expiring after the retention period.
func (s *RedisStore) Publish(ctx context.Context, snapshot Snapshot) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("redis store is not initialized")
	}
	if err := snapshot.Validate(); err != nil {
		return err
	}

	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := s.client.Set(ctx, s.latestKey(), payload, s.retention).Err(); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}

// Latest reads the latest snapshot.
func (s *RedisStore) Latest(ctx context.Context) (Snapshot, error) {
	if s == nil || s.client == nil {
		return Snapshot{}, fmt.Errorf("redis store is not initialized")
	}

	payload, err := s.client.Get(ctx, s.latestKey()).Bytes()
	if errors.Is(err, redis.Nil) {
		return Snapshot{}, ErrNoSnapshot
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("read snapshot: %w", err)
	}

	var snapshot Snapshot
	if err := json.Unmarshal(payload, &snapshot); err != nil {
		return Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return snapshot, nil
}

// AcquireRefreshLock takes the shared refresh lock with SET NX for ttl.
func (s *RedisStore) AcquireRefreshLock(ctx context.Context, ttl time.Duration, now time.Time) (bool, error) {
	if s == nil || s.client == nil {
		return false, fmt.Errorf("redis store is not initialized")
	}
	if ttl <= 0 {
		return true, nil
	}

	acquired, err := s.client.SetNX(ctx, s.prefixed("lock:refresh"), now.UTC().Format(time.RFC3339Nano), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire refresh lock: %w", err)
	}
	return acquired, nil
}

// Ping checks Redis connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("redis store is not initialized")
	}
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) prefixed(suffix string) string {
	return s.namespace + ":" + suffix
}

func (s *RedisStore) latestKey() string {
	return s.prefixed("snapshot:latest")
}
