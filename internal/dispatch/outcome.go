package dispatch

import (
	"fmt"
	"time"
)

// Outcome es el destino inmediato de una solicitud en Submit.
type Outcome int

const (
	// Invalid: falló validación; sin callback.
	Invalid Outcome = iota
	// RateLimited: ventana del caller agotada; sin callback.
	RateLimited
	// CacheHit: el callback ya fue invocado con el resultado cacheado.
	CacheHit
	// Dispatched: enviado al executor.
	Dispatched
	// Queued: esperando que el motor esté sano.
	Queued
	// Coalesced: adjuntado a una ejecución en vuelo con la misma clave.
	Coalesced
)

func (o Outcome) String() string {
	switch o {
	case Invalid:
		return "invalid"
	case RateLimited:
		return "rate_limited"
	case CacheHit:
		return "cache_hit"
	case Dispatched:
		return "dispatched"
	case Queued:
		return "queued"
	case Coalesced:
		return "coalesced"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// Accepted es el booleano que retorna Submit.
func (o Outcome) Accepted() bool {
	switch o {
	case CacheHit, Dispatched, Queued, Coalesced:
		return true
	}
	return false
}

// RateLimitError acompaña al outcome RateLimited.
type RateLimitError struct {
	CallingApp string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("dispatch: rate limit exceeded for %q (retry after %s)", e.CallingApp, e.RetryAfter)
}
