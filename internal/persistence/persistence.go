package persistence

// Package persistence abstracts the key-value backend used for shared
// server state. The memory backend fits a single instance; the Redis
// backend lets several replicas share rate-limit buckets and cached
// validations.

import (
	"context"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"

	"analytics-mcp-server/internal/config"
)

// Provider is a small TTL-aware key-value store.
type Provider interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	Close() error
}

// New creates the provider selected by the storage configuration.
func New(cfg config.StorageConfig) (Provider, error) {
	switch cfg.Mode {
	case "memory", "":
		return NewMemoryProvider(), nil
	case "redis":
		return NewRedisProvider(cfg.Redis), nil
	default:
		return nil, fmt.Errorf("unknown storage mode: %q", cfg.Mode)
	}
}

// MemoryProvider keeps state in process memory with TTL eviction.
type MemoryProvider struct {
	store *gocache.Cache
}

// NewMemoryProvider creates an in-memory provider.
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{
		store: gocache.New(gocache.NoExpiration, 10*time.Minute),
	}
}

func (m *MemoryProvider) Get(_ context.Context, key string) (string, bool, error) {
	value, found := m.store.Get(key)
	if !found {
		return "", false, nil
	}
	return value.(string), true, nil
}

func (m *MemoryProvider) Set(_ context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = gocache.NoExpiration
	}
	m.store.Set(key, value, ttl)
	return nil
}

func (m *MemoryProvider) Delete(_ context.Context, key string) error {
	m.store.Delete(key)
	return nil
}

func (m *MemoryProvider) Ping(context.Context) error { return nil }

func (m *MemoryProvider) Close() error {
	m.store.Flush()
	return nil
}

// RedisProvider keeps state in Redis.
type RedisProvider struct {
	client *redis.Client
}

// NewRedisProvider creates a Redis-backed provider.
func NewRedisProvider(cfg config.RedisConfig) *RedisProvider {
	return &RedisProvider{
		client: redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
	}
}

// Client exposes the underlying Redis client for components that need
// script execution, such as the shared rate limiter.
func (r *RedisProvider) Client() *redis.Client {
	return r.client
}

func (r *RedisProvider) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get failed: %w", err)
	}
	return value, true, nil
}

func (r *RedisProvider) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (r *RedisProvider) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func (r *RedisProvider) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisProvider) Close() error {
	return r.client.Close()
}
