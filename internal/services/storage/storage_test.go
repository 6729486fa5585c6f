package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusmate/tutor/internal/config"
	"github.com/campusmate/tutor/pkg/logger"
)

func exerciseStorage(t *testing.T, s Storage) {
	t.Helper()
	ctx := context.Background()

	_, err := s.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Set(ctx, "client:history", `[{"id":"a"}]`))
	v, err := s.Get(ctx, "client:history")
	require.NoError(t, err)
	assert.Equal(t, `[{"id":"a"}]`, v)

	require.NoError(t, s.Set(ctx, "client:history", `[]`))
	v, err = s.Get(ctx, "client:history")
	require.NoError(t, err)
	assert.Equal(t, `[]`, v)

	require.NoError(t, s.Delete(ctx, "client:history"))
	_, err = s.Get(ctx, "client:history")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.NoError(t, s.Delete(ctx, "never-set"))
}

func TestMemoryStorage(t *testing.T) {
	s := NewMemoryStorage(&config.MemoryConfig{})
	exerciseStorage(t, s)
	assert.NoError(t, s.Close())
}

func TestSQLiteStorage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "tutor.db")
	s, err := NewSQLiteStorage(context.Background(), path, logger.Discard())
	require.NoError(t, err)
	defer s.Close()

	exerciseStorage(t, s)
}

func TestSQLiteStoragePersistsAcrossOpen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "tutor.db")

	s, err := NewSQLiteStorage(ctx, path, logger.Discard())
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, "k", "v"))
	require.NoError(t, s.Close())

	s, err = NewSQLiteStorage(ctx, path, logger.Discard())
	require.NoError(t, err)
	defer s.Close()

	v, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", v)
}

func TestManagerObserver(t *testing.T) {
	m := NewManagerWith("memory", NewMemoryStorage(nil), logger.Discard())

	type call struct {
		backend, op string
		err         error
	}
	var calls []call
	m.SetObserver(func(backend, op string, err error, _ time.Duration) {
		calls = append(calls, call{backend, op, err})
	})

	ctx := context.Background()
	_, err := m.Get(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, m.Set(ctx, "k", "v"))
	require.NoError(t, m.Delete(ctx, "k"))

	assert.Equal(t, []call{
		{"memory", "get", nil},
		{"memory", "set", nil},
		{"memory", "delete", nil},
	}, calls)
	assert.Equal(t, "memory", m.Backend())
}

func TestNewManagerUnsupported(t *testing.T) {
	cfg := &config.Config{Storage: config.StorageConfig{Type: "etcd"}}
	_, err := NewManager(context.Background(), cfg, logger.Discard())
	assert.ErrorIs(t, err, ErrUnsupportedBackend)
}

func TestNewManagerMemory(t *testing.T) {
	cfg := &config.Config{Storage: config.StorageConfig{Type: "memory"}}
	m, err := NewManager(context.Background(), cfg, logger.Discard())
	require.NoError(t, err)
	defer m.Close()
	exerciseStorage(t, m)
}
