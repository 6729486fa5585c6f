package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/campusmate/tutor/internal/config"
)

var (
	ErrEmptyMessage   = errors.New("message is empty")
	ErrMessageTooLong = errors.New("message too long")
	ErrInvalidText    = errors.New("message is not valid UTF-8")
)

// RateLimiter interface for rate limiting
type RateLimiter interface {
	Allow(clientID string) bool
	Reset(clientID string)
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ClientRateLimiter implements per-client rate limiting
type ClientRateLimiter struct {
	enabled         bool
	limiters        map[string]*clientLimiter
	mu              sync.Mutex
	rpm             int
	burst           int
	logger          *logrus.Logger
	cleanupInterval time.Duration
	idle            time.Duration
	now             func() time.Time
	done            chan struct{}
	stopOnce        sync.Once
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(cfg *config.RateLimitConfig, logger *logrus.Logger) *ClientRateLimiter {
	if !cfg.Enabled {
		return &ClientRateLimiter{enabled: false}
	}

	rl := &ClientRateLimiter{
		enabled:         true,
		limiters:        make(map[string]*clientLimiter),
		rpm:             cfg.RequestsPerMinute,
		burst:           cfg.Burst,
		logger:          logger,
		cleanupInterval: 10 * time.Minute,
		idle:            time.Hour,
		now:             time.Now,
		done:            make(chan struct{}),
	}

	go rl.cleanup()

	return rl
}

// Allow checks if a client is allowed to make a request
func (r *ClientRateLimiter) Allow(clientID string) bool {
	if !r.enabled {
		return true
	}

	allowed := r.getLimiter(clientID).Allow()
	if !allowed {
		r.logger.WithFields(logrus.Fields{
			"client_id": clientID,
		}).Warn("Rate limit exceeded")
	}

	return allowed
}

// Reset resets the rate limiter for a client
func (r *ClientRateLimiter) Reset(clientID string) {
	if !r.enabled {
		return
	}

	r.mu.Lock()
	delete(r.limiters, clientID)
	r.mu.Unlock()
}

func (r *ClientRateLimiter) getLimiter(clientID string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cl, exists := r.limiters[clientID]; exists {
		cl.lastSeen = r.now()
		return cl.limiter
	}

	// Rate per second = RPM / 60
	rps := float64(r.rpm) / 60.0
	cl := &clientLimiter{
		limiter:  rate.NewLimiter(rate.Limit(rps), r.burst),
		lastSeen: r.now(),
	}
	r.limiters[clientID] = cl
	return cl.limiter
}

func (r *ClientRateLimiter) cleanup() {
	ticker := time.NewTicker(r.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.done:
			return
		case <-ticker.C:
			r.evictIdle()
		}
	}
}

// evictIdle drops limiters not used for the idle period.
func (r *ClientRateLimiter) evictIdle() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-r.idle)
	evicted := 0
	for id, cl := range r.limiters {
		if cl.lastSeen.Before(cutoff) {
			delete(r.limiters, id)
			evicted++
		}
	}
	if evicted > 0 {
		r.logger.WithField("evicted", evicted).Debug("Dropped idle rate limiters")
	}
	return evicted
}

// Stop ends the cleanup loop.
func (r *ClientRateLimiter) Stop() {
	if !r.enabled {
		return
	}
	r.stopOnce.Do(func() { close(r.done) })
}

// RateLimit rejects requests over the client's budget with 429.
func RateLimit(limiter RateLimiter, metrics *Metrics, clientID func(*http.Request) string, message string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow(clientID(r)) {
				metrics.RecordRateLimitExceeded("http")
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", "60")
				w.WriteHeader(http.StatusTooManyRequests)
				fmt.Fprintf(w, "{\"error\":%q}\n", message)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// SecurityMiddleware provides security checks
type SecurityMiddleware struct {
	maxLength int
	logger    *logrus.Logger
}

// NewSecurityMiddleware creates security middleware
func NewSecurityMiddleware(maxLength int, logger *logrus.Logger) *SecurityMiddleware {
	if maxLength <= 0 {
		maxLength = 4096
	}
	return &SecurityMiddleware{
		maxLength: maxLength,
		logger:    logger,
	}
}

// MaxLength is the longest accepted message in characters.
func (s *SecurityMiddleware) MaxLength() int { return s.maxLength }

// ValidateInput rejects empty, oversized and malformed messages.
func (s *SecurityMiddleware) ValidateInput(text string) error {
	if !utf8.ValidString(text) {
		return ErrInvalidText
	}
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}
	if n := utf8.RuneCountInString(text); n > s.maxLength {
		s.logger.WithField("length", n).Debug("Rejected oversized message")
		return fmt.Errorf("%w: %d characters", ErrMessageTooLong, n)
	}
	return nil
}

// SanitizeOutput removes control characters other than line breaks and tabs.
func (s *SecurityMiddleware) SanitizeOutput(text string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' || r == '\r' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, text)
}
