package rate

import (
	"context"
	"errors"
	"sync"
)

// PerKey permite límites distintos por calling app manteniendo el mismo algoritmo.
// Las keys sin override usan Default.
type PerKey struct {
	Default Limiter

	mu        sync.RWMutex
	overrides map[string]Limiter
}

func NewPerKey(def Limiter) *PerKey {
	return &PerKey{Default: def, overrides: make(map[string]Limiter)}
}

// Set registra (o reemplaza) el limiter de una key.
func (p *PerKey) Set(key string, l Limiter) {
	p.mu.Lock()
	p.overrides[key] = l
	p.mu.Unlock()
}

func (p *PerKey) Allow(ctx context.Context, key string) (Result, error) {
	p.mu.RLock()
	l, ok := p.overrides[key]
	p.mu.RUnlock()
	if !ok {
		l = p.Default
	}
	return l.Allow(ctx, key)
}

func (p *PerKey) Reset(ctx context.Context) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	errs := []error{p.Default.Reset(ctx)}
	for _, l := range p.overrides {
		errs = append(errs, l.Reset(ctx))
	}
	return errors.Join(errs...)
}
