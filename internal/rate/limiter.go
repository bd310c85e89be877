// Package rate limita submits por calling app. Cada Allow cuenta, sea aceptado o no.
//
// Algoritmo: fixed window alineada al reloj (now.Truncate(window)). Dentro de una
// ventana se aceptan Max hits; el siguiente se rechaza hasta que empiece la próxima.
package rate

import (
	"context"
	"time"
)

type Result struct {
	Allowed     bool
	Remaining   int64
	RetryAfter  time.Duration
	WindowTTL   time.Duration
	CurrentHits int64
}

type Limiter interface {
	Allow(ctx context.Context, key string) (Result, error)
	// Reset borra todos los contadores.
	Reset(ctx context.Context) error
}

// Defaults del dispatcher.
const (
	DefaultMax    = 60
	DefaultWindow = time.Minute
)

// Noop acepta todo. Se usa con rate.enabled=false.
type Noop struct{}

func (Noop) Allow(context.Context, string) (Result, error) {
	return Result{Allowed: true, Remaining: -1}, nil
}

func (Noop) Reset(context.Context) error { return nil }

// compute arma el Result de una ventana fija con hits ya contados.
func compute(hits, max int64, ttl, window time.Duration) Result {
	allowed := hits <= max
	remaining := max - hits
	if remaining < 0 {
		remaining = 0
	}
	res := Result{
		Allowed:     allowed,
		Remaining:   remaining,
		CurrentHits: hits,
		WindowTTL:   ttl,
	}
	if !allowed {
		// Retry after: resto de la ventana
		res.RetryAfter = ttl
		if res.RetryAfter <= 0 {
			res.RetryAfter = window
		}
	}
	return res
}
