package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/campusmate/tutor/internal/config"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

// RedisStorage implements Storage using Redis
type RedisStorage struct {
	client *redis.Client
	prefix string
	logger *logrus.Logger
}

// NewRedisStorage creates a new Redis storage
func NewRedisStorage(ctx context.Context, cfg *config.RedisConfig, logger *logrus.Logger) (*RedisStorage, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisStorage{client: client, prefix: cfg.Prefix, logger: logger}, nil
}

func (r *RedisStorage) key(key string) string {
	if r.prefix == "" {
		return key
	}
	return r.prefix + ":" + key
}

func (r *RedisStorage) Get(ctx context.Context, key string) (string, error) {
	data, err := r.client.Get(ctx, r.key(key)).Result()
	if err == redis.Nil {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("redis get %s: %w", key, err)
	}
	return data, nil
}

func (r *RedisStorage) Set(ctx context.Context, key, value string) error {
	if err := r.client.Set(ctx, r.key(key), value, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (r *RedisStorage) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

func (r *RedisStorage) Close() error {
	return r.client.Close()
}
