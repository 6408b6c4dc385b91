package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisKeyValueStore implements KeyValueStore on Redis.
type RedisKeyValueStore struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisKeyValueStore creates a Redis-backed store and verifies the
// connection.
func NewRedisKeyValueStore(host string, port int, password string, db int, logger *zap.Logger) (KeyValueStore, error) {
	addr := fmt.Sprintf("%s:%d", host, port)
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisKeyValueStore{
		client: client,
		logger: logger,
	}, nil
}

// Get retrieves a stored value.
func (s *RedisKeyValueStore) Get(ctx context.Context, key string) (string, error) {
	val, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return val, nil
}

// Set stores a value. Values live until overwritten or deleted; entry
// freshness is tracked inside the cache blob itself, not via Redis TTLs.
func (s *RedisKeyValueStore) Set(ctx context.Context, key, value string) error {
	return s.client.Set(ctx, key, value, 0).Err()
}

// Delete removes a key.
func (s *RedisKeyValueStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, key).Err()
}

// Ping checks the Redis connection.
func (s *RedisKeyValueStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis client.
func (s *RedisKeyValueStore) Close() error {
	return s.client.Close()
}
