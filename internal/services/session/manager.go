package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/campusmate/tutor/internal/services/storage"
)

const sweepInterval = 10 * time.Minute

type openStore struct {
	store    *Store
	lastSeen time.Time
}

// Manager hands out one Store per client, opening them on first use. Stores
// unused for Options.IdleTimeout are flushed and dropped.
type Manager struct {
	mu     sync.Mutex
	kv     storage.Storage
	logger *logrus.Logger
	opts   Options
	stores map[string]*openStore

	idle     time.Duration
	now      func() time.Time
	done     chan struct{}
	stopOnce sync.Once
}

func NewManager(kv storage.Storage, logger *logrus.Logger, opts Options) *Manager {
	opts.defaults()
	m := &Manager{
		kv:     kv,
		logger: logger,
		opts:   opts,
		stores: make(map[string]*openStore),
		idle:   opts.IdleTimeout,
		now:    time.Now,
		done:   make(chan struct{}),
	}
	go m.sweep()
	return m
}

// Store returns the client's store.
func (m *Manager) Store(ctx context.Context, clientID string) *Store {
	m.mu.Lock()
	defer m.mu.Unlock()

	if o, ok := m.stores[clientID]; ok {
		o.lastSeen = m.now()
		return o.store
	}
	s := Open(ctx, clientID, m.kv, m.logger, m.opts)
	m.stores[clientID] = &openStore{store: s, lastSeen: m.now()}
	return s
}

// Clients reports how many stores are open.
func (m *Manager) Clients() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.stores)
}

func (m *Manager) sweep() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
			m.evictIdle(ctx)
			cancel()
		}
	}
}

// evictIdle flushes and drops stores not used for the idle period. A store
// whose flush fails stays open so its pending changes are not lost.
func (m *Manager) evictIdle(ctx context.Context) int {
	m.mu.Lock()
	cutoff := m.now().Add(-m.idle)
	idle := make(map[string]*openStore)
	for id, o := range m.stores {
		if o.lastSeen.Before(cutoff) {
			idle[id] = o
			delete(m.stores, id)
		}
	}
	m.mu.Unlock()

	evicted := 0
	for id, o := range idle {
		if err := o.store.Close(ctx); err != nil {
			m.logger.WithError(err).WithField("client_id", id).Warn("Keeping idle session store open")
			m.mu.Lock()
			if _, reopened := m.stores[id]; !reopened {
				m.stores[id] = o
			}
			m.mu.Unlock()
			continue
		}
		evicted++
	}
	if evicted > 0 {
		m.logger.WithField("evicted", evicted).Debug("Dropped idle session stores")
	}
	return evicted
}

// Close stops idle eviction and flushes every open store.
func (m *Manager) Close(ctx context.Context) error {
	m.stopOnce.Do(func() { close(m.done) })

	m.mu.Lock()
	stores := make([]*Store, 0, len(m.stores))
	for _, o := range m.stores {
		stores = append(stores, o.store)
	}
	m.mu.Unlock()

	var errs []error
	for _, s := range stores {
		if err := s.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
