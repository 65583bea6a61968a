package auth

import (
	"sync"

	"golang.org/x/time/rate"
)

// Fallback limits for deployments that leave rate_limit unset. Keyed
// callers still get a bucket each, so one noisy key cannot starve the
// rest.
const (
	defaultRPS   = 10
	defaultBurst = 20
)

// limiterPool keeps one token bucket per API key (or client IP when the
// caller is keyless). Limits are resolved once at construction.
type limiterPool struct {
	mu    sync.Mutex
	m     map[string]*rate.Limiter
	rps   rate.Limit
	burst int
}

func newLimiterPool(cfg SecConfig) *limiterPool {
	p := &limiterPool{
		m:     make(map[string]*rate.Limiter),
		rps:   rate.Limit(cfg.RPS),
		burst: cfg.Burst,
	}
	if p.rps <= 0 {
		p.rps = defaultRPS
	}
	if p.burst <= 0 {
		p.burst = defaultBurst
	}
	return p
}

// Allow reports whether the caller identified by key may proceed.
func (p *limiterPool) Allow(key string) bool {
	p.mu.Lock()
	l, ok := p.m[key]
	if !ok {
		l = rate.NewLimiter(p.rps, p.burst)
		p.m[key] = l
	}
	p.mu.Unlock()
	return l.Allow()
}
