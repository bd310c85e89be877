// Package cache guarda resultados recientes por clave de idempotencia.
//
// Soporta:
//   - Memory (in-process, go-cache)
//   - Redis (compartido entre procesos)
//
// Una entrada vencida nunca se retorna: ambos backends chequean expiración al leer.
package cache

import (
	"context"
	"errors"
	"time"

	"github.com/dropDatabas3/igloo/internal/nip55"
)

// ResultCache define las operaciones del cache de resultados.
type ResultCache interface {
	// Get obtiene el resultado vivo para key. ok=false si no existe o venció.
	Get(ctx context.Context, key string) (res nip55.Result, ok bool, err error)

	// Put guarda un resultado. ttl <= 0 usa el TTL por defecto del backend.
	Put(ctx context.Context, key string, res nip55.Result, ttl time.Duration) error

	// Len cuenta las entradas vivas.
	Len(ctx context.Context) (int, error)

	// Flush elimina todas las entradas.
	Flush(ctx context.Context) error

	// Ping verifica la conexión.
	Ping(ctx context.Context) error

	// Close libera recursos.
	Close() error

	// Stats retorna estadísticas del cache.
	Stats(ctx context.Context) (Stats, error)
}

// Stats contiene estadísticas del cache.
type Stats struct {
	Driver string `json:"driver"`
	Keys   int64  `json:"keys"`
	Hits   int64  `json:"hits"`
	Misses int64  `json:"misses"`
}

// Config configuración para crear un cache.
type Config struct {
	Driver     string // "memory" | "redis"
	Addr       string // host:port (redis)
	Password   string
	DB         int
	Prefix     string // Prefijo para todas las keys (redis)
	DefaultTTL time.Duration
}

// DefaultTTL se usa cuando Config.DefaultTTL es 0.
const DefaultTTL = 60 * time.Second

// DefaultPrefix aísla las keys del dispatcher en un redis compartido.
const DefaultPrefix = "igloo:result"

var ErrUnknownDriver = errors.New("cache: unknown driver")

// New crea un cache según la configuración.
func New(cfg Config) (ResultCache, error) {
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = DefaultTTL
	}
	switch cfg.Driver {
	case "redis":
		return NewRedis(cfg)
	case "memory", "":
		return NewMemory(cfg.DefaultTTL), nil
	default:
		return nil, ErrUnknownDriver
	}
}
