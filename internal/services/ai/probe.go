package ai

import (
	"context"
	"sync"
)

// HealthProbe remembers the first health check result until Reset.
// Concurrent callers wait for the one probe in flight.
type HealthProbe struct {
	mu      sync.Mutex
	check   func(context.Context) bool
	checked bool
	healthy bool
}

func NewHealthProbe(check func(context.Context) bool) *HealthProbe {
	return &HealthProbe{check: check}
}

func (p *HealthProbe) Healthy(ctx context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.checked {
		return p.healthy
	}

	healthy := p.check(ctx)
	// a caller that gave up says nothing about the backend
	if ctx.Err() != nil {
		return healthy
	}
	p.healthy = healthy
	p.checked = true
	return healthy
}

// Reset forgets the remembered result so the next call probes again.
func (p *HealthProbe) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.checked = false
	p.healthy = false
}

// Known reports whether a result is remembered, and which.
func (p *HealthProbe) Known() (checked, healthy bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.checked, p.healthy
}
