package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dropDatabas3/igloo/internal/nip55"
)

// redisCache implementa ResultCache usando Redis. Los valores van en JSON y el
// vencimiento lo maneja el TTL nativo de redis.
type redisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	hits   atomic.Int64
	misses atomic.Int64
}

// NewRedis crea un cache Redis y verifica la conexión.
func NewRedis(cfg Config) (*redisCache, error) {
	addr := cfg.Addr
	if addr == "" {
		addr = "127.0.0.1:6379"
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Verificar conexión
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("cache: redis ping failed: %w", err)
	}

	return NewRedisFromClient(rdb, cfg.Prefix, cfg.DefaultTTL), nil
}

// NewRedisFromClient envuelve un cliente existente (útil para compartirlo con el limiter).
func NewRedisFromClient(rdb *redis.Client, prefix string, defaultTTL time.Duration) *redisCache {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}
	return &redisCache{client: rdb, prefix: prefix, ttl: defaultTTL}
}

func (c *redisCache) key(k string) string {
	return c.prefix + ":" + k
}

func (c *redisCache) Get(ctx context.Context, key string) (nip55.Result, bool, error) {
	b, err := c.client.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		c.misses.Add(1)
		return nip55.Result{}, false, nil
	}
	if err != nil {
		return nip55.Result{}, false, err
	}
	var res nip55.Result
	if err := json.Unmarshal(b, &res); err != nil {
		// Un valor corrupto se trata como miss; el próximo Put lo reemplaza.
		c.misses.Add(1)
		return nip55.Result{}, false, nil
	}
	c.hits.Add(1)
	return res, true, nil
}

func (c *redisCache) Put(ctx context.Context, key string, res nip55.Result, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.ttl
	}
	b, err := json.Marshal(res)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key(key), b, ttl).Err()
}

// Len recorre el keyspace del prefijo con SCAN.
func (c *redisCache) Len(ctx context.Context) (int, error) {
	n := 0
	err := c.scan(ctx, func(keys []string) error {
		n += len(keys)
		return nil
	})
	return n, err
}

func (c *redisCache) Flush(ctx context.Context) error {
	return c.scan(ctx, func(keys []string) error {
		return c.client.Del(ctx, keys...).Err()
	})
}

func (c *redisCache) scan(ctx context.Context, fn func([]string) error) error {
	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, c.prefix+":*", 256).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := fn(keys); err != nil {
				return err
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

func (c *redisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *redisCache) Close() error {
	return c.client.Close()
}

func (c *redisCache) Stats(ctx context.Context) (Stats, error) {
	n, err := c.Len(ctx)
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		Driver: "redis",
		Keys:   int64(n),
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
	}, nil
}
