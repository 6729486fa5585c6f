package storage

import (
	"context"

	"github.com/campusmate/tutor/internal/config"
	"github.com/patrickmn/go-cache"
)

// MemoryStorage implements Storage in process memory
type MemoryStorage struct {
	items *cache.Cache
}

// NewMemoryStorage keeps values until deleted unless a default expiration is configured
func NewMemoryStorage(cfg *config.MemoryConfig) *MemoryStorage {
	expiration := cache.NoExpiration
	if cfg != nil && cfg.DefaultExpiration > 0 {
		expiration = cfg.DefaultExpiration
	}
	cleanup := cache.NoExpiration
	if cfg != nil && cfg.CleanupInterval > 0 {
		cleanup = cfg.CleanupInterval
	}
	return &MemoryStorage{items: cache.New(expiration, cleanup)}
}

func (m *MemoryStorage) Get(ctx context.Context, key string) (string, error) {
	if val, found := m.items.Get(key); found {
		return val.(string), nil
	}
	return "", ErrNotFound
}

func (m *MemoryStorage) Set(ctx context.Context, key, value string) error {
	m.items.SetDefault(key, value)
	return nil
}

func (m *MemoryStorage) Delete(ctx context.Context, key string) error {
	m.items.Delete(key)
	return nil
}

func (m *MemoryStorage) Close() error {
	m.items.Flush()
	return nil
}
