package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"

	"github.com/campusmate/tutor/internal/config"
	"github.com/campusmate/tutor/internal/models"
)

// Service caches completions of the direct model path.
type Service interface {
	Get(ctx context.Context, key Key) (string, bool)
	Set(ctx context.Context, key Key, answer string) error
	Clear(ctx context.Context) error
	Len() int
}

// Key identifies a completion: the same question asked of the same model
// with the same system prompt.
type Key struct {
	Model    string
	Question string
	Prompt   string
}

func (k Key) hash() string {
	h := sha256.New()
	for _, part := range []string{k.Model, k.Prompt, strings.TrimSpace(strings.ToLower(k.Question))} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Cache implements Service on go-cache.
type Cache struct {
	enabled bool
	cache   *cache.Cache
	logger  *logrus.Logger
	maxSize int
	now     func() time.Time
}

// NewCache returns a disabled cache when caching is turned off.
func NewCache(cfg *config.CacheConfig, logger *logrus.Logger) *Cache {
	if !cfg.Enabled {
		return &Cache{enabled: false}
	}

	return &Cache{
		enabled: true,
		cache:   cache.New(cfg.TTL, cfg.TTL*2),
		logger:  logger,
		maxSize: cfg.MaxSize,
		now:     time.Now,
	}
}

func (c *Cache) Get(ctx context.Context, key Key) (string, bool) {
	if !c.enabled {
		return "", false
	}

	val, found := c.cache.Get(key.hash())
	if !found {
		return "", false
	}
	entry := val.(*models.CacheEntry)
	c.logger.WithFields(logrus.Fields{
		"model": key.Model,
		"age":   c.now().Sub(entry.CreatedAt),
	}).Debug("Cache hit")
	return entry.Answer, true
}

func (c *Cache) Set(ctx context.Context, key Key, answer string) error {
	if !c.enabled {
		return nil
	}

	if c.maxSize > 0 && c.cache.ItemCount() >= c.maxSize {
		c.logger.Warn("Cache size limit reached, clearing old entries")
		c.cache.DeleteExpired()
		if c.cache.ItemCount() >= c.maxSize {
			c.cache.Flush()
		}
	}

	c.cache.SetDefault(key.hash(), &models.CacheEntry{
		Question:  key.Question,
		Answer:    answer,
		Model:     key.Model,
		CreatedAt: c.now(),
	})
	c.logger.WithField("model", key.Model).Debug("Response cached")
	return nil
}

func (c *Cache) Clear(ctx context.Context) error {
	if !c.enabled {
		return nil
	}

	c.cache.Flush()
	c.logger.Info("Cache cleared")
	return nil
}

func (c *Cache) Len() int {
	if !c.enabled {
		return 0
	}
	return c.cache.ItemCount()
}
