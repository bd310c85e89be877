package cache

import (
	"context"
	"sync/atomic"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/dropDatabas3/igloo/internal/nip55"
)

// memoryCache implementa ResultCache sobre go-cache.
type memoryCache struct {
	c      *gocache.Cache
	ttl    time.Duration
	hits   atomic.Int64
	misses atomic.Int64
}

// NewMemory crea un cache en memoria. El janitor de go-cache limpia vencidos cada minuto;
// Get igual descarta vencidos al leer.
func NewMemory(defaultTTL time.Duration) *memoryCache {
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}
	return &memoryCache{
		c:   gocache.New(defaultTTL, time.Minute),
		ttl: defaultTTL,
	}
}

func (m *memoryCache) Get(_ context.Context, key string) (nip55.Result, bool, error) {
	v, ok := m.c.Get(key)
	if !ok {
		m.misses.Add(1)
		return nip55.Result{}, false, nil
	}
	res, ok := v.(nip55.Result)
	if !ok {
		m.misses.Add(1)
		return nip55.Result{}, false, nil
	}
	m.hits.Add(1)
	return res, true, nil
}

func (m *memoryCache) Put(_ context.Context, key string, res nip55.Result, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = m.ttl
	}
	m.c.Set(key, res, ttl)
	return nil
}

// Len cuenta solo entradas no vencidas (ItemCount incluye las que el janitor no limpió).
func (m *memoryCache) Len(_ context.Context) (int, error) {
	return len(m.c.Items()), nil
}

func (m *memoryCache) Flush(_ context.Context) error {
	m.c.Flush()
	return nil
}

func (m *memoryCache) Ping(_ context.Context) error { return nil }

func (m *memoryCache) Close() error {
	m.c.Flush()
	return nil
}

func (m *memoryCache) Stats(ctx context.Context) (Stats, error) {
	n, _ := m.Len(ctx)
	return Stats{
		Driver: "memory",
		Keys:   int64(n),
		Hits:   m.hits.Load(),
		Misses: m.misses.Load(),
	}, nil
}
