package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/campusmate/tutor/internal/config"
	"github.com/sirupsen/logrus"
)

var (
	ErrNotFound           = errors.New("key not found")
	ErrUnsupportedBackend = errors.New("unsupported storage type")
)

// Storage is a string key-value store. Set replaces the whole value.
type Storage interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Observer is told about every storage call, for metrics.
type Observer func(backend, op string, err error, elapsed time.Duration)

// Manager manages different storage backends
type Manager struct {
	storage  Storage
	backend  string
	logger   *logrus.Logger
	observer Observer
}

// NewManager opens the backend named by cfg.Storage.Type
func NewManager(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*Manager, error) {
	var (
		storage Storage
		err     error
	)

	switch cfg.Storage.Type {
	case "redis":
		storage, err = NewRedisStorage(ctx, &cfg.Storage.Redis, logger)
	case "memory":
		storage = NewMemoryStorage(&cfg.Storage.Memory)
	case "sqlite":
		storage, err = NewSQLiteStorage(ctx, cfg.Storage.SQLite.Path, logger)
	case "postgres":
		storage, err = NewPostgresStorage(ctx, &cfg.Storage.Postgres, logger)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedBackend, cfg.Storage.Type)
	}
	if err != nil {
		return nil, err
	}

	logger.WithField("backend", cfg.Storage.Type).Info("Storage initialized")
	return NewManagerWith(cfg.Storage.Type, storage, logger), nil
}

// NewManagerWith wraps an already opened backend
func NewManagerWith(backend string, storage Storage, logger *logrus.Logger) *Manager {
	return &Manager{storage: storage, backend: backend, logger: logger}
}

// SetObserver installs a hook called after each operation
func (m *Manager) SetObserver(o Observer) {
	m.observer = o
}

func (m *Manager) observe(op string, start time.Time, err error) {
	if m.observer == nil {
		return
	}
	if errors.Is(err, ErrNotFound) {
		err = nil
	}
	m.observer(m.backend, op, err, time.Since(start))
}

func (m *Manager) Get(ctx context.Context, key string) (string, error) {
	start := time.Now()
	v, err := m.storage.Get(ctx, key)
	m.observe("get", start, err)
	return v, err
}

func (m *Manager) Set(ctx context.Context, key, value string) error {
	start := time.Now()
	err := m.storage.Set(ctx, key, value)
	m.observe("set", start, err)
	if err != nil {
		m.logger.WithError(err).WithField("key", key).Error("Failed to write key")
	}
	return err
}

func (m *Manager) Delete(ctx context.Context, key string) error {
	start := time.Now()
	err := m.storage.Delete(ctx, key)
	m.observe("delete", start, err)
	return err
}

func (m *Manager) Backend() string {
	return m.backend
}

func (m *Manager) Close() error {
	return m.storage.Close()
}
