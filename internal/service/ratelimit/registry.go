package ratelimit

import (
	"sync"
)

// Registry hands out one limiter per exchange. Exchanges without an explicit
// config fall back to DefaultConfig.
type Registry struct {
	mu       sync.Mutex
	limiters map[string]*Limiter
	configs  map[string]Config
	opts     []Option
}

// NewRegistry builds a registry. configs maps exchange name to its quota.
func NewRegistry(configs map[string]Config, opts ...Option) *Registry {
	if configs == nil {
		configs = make(map[string]Config)
	}
	return &Registry{
		limiters: make(map[string]*Limiter),
		configs:  configs,
		opts:     opts,
	}
}

// For returns the limiter for exchange, creating it on first use.
func (r *Registry) For(exchange string) *Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.limiters[exchange]; ok {
		return l
	}
	cfg, ok := r.configs[exchange]
	if !ok {
		cfg = DefaultConfig()
	}
	l := New(exchange, cfg, r.opts...)
	r.limiters[exchange] = l
	return l
}
