package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// memoryClient implementa Client sobre go-cache.
// Útil para desarrollo, tests y despliegues de una sola réplica.
type memoryClient struct {
	prefix string
	c      *gocache.Cache
	hits   atomic.Int64
	misses atomic.Int64

	mu     sync.RWMutex
	closed bool
}

const memoryCleanupInterval = time.Minute

// NewMemory crea un cliente de cache en memoria.
func NewMemory(prefix string) *memoryClient {
	return &memoryClient{
		prefix: prefix,
		c:      gocache.New(gocache.NoExpiration, memoryCleanupInterval),
	}
}

func (c *memoryClient) key(k string) string { return prefixed(c.prefix, k) }

func ttlOf(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return gocache.NoExpiration
	}
	return ttl
}

func (c *memoryClient) check() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClosed
	}
	return nil
}

func (c *memoryClient) Get(ctx context.Context, key string) (string, error) {
	if err := c.check(); err != nil {
		return "", err
	}
	v, ok := c.c.Get(c.key(key))
	if !ok {
		c.misses.Add(1)
		return "", ErrNotFound
	}
	c.hits.Add(1)
	s, _ := v.(string)
	return s, nil
}

func (c *memoryClient) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := c.check(); err != nil {
		return err
	}
	c.c.Set(c.key(key), value, ttlOf(ttl))
	return nil
}

// SetNX usa Add de go-cache, que verifica y escribe bajo el mismo mutex.
// Add también reemplaza entradas expiradas.
func (c *memoryClient) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	if err := c.check(); err != nil {
		return false, err
	}
	if err := c.c.Add(c.key(key), value, ttlOf(ttl)); err != nil {
		return false, nil
	}
	return true, nil
}

// Incr crea el contador con Add (no pisa uno vivo) y lo incrementa bajo el mutex de go-cache.
func (c *memoryClient) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	if err := c.check(); err != nil {
		return 0, err
	}
	k := c.key(key)
	_ = c.c.Add(k, int64(0), ttlOf(ttl))
	n, err := c.c.IncrementInt64(k, 1)
	if err != nil {
		// expiró entre Add e Increment: arranca de nuevo
		c.c.Set(k, int64(1), ttlOf(ttl))
		return 1, nil
	}
	return n, nil
}

func (c *memoryClient) Delete(ctx context.Context, key string) error {
	if err := c.check(); err != nil {
		return err
	}
	c.c.Delete(c.key(key))
	return nil
}

func (c *memoryClient) Exists(ctx context.Context, key string) (bool, error) {
	if err := c.check(); err != nil {
		return false, err
	}
	_, ok := c.c.Get(c.key(key))
	return ok, nil
}

func (c *memoryClient) Ping(ctx context.Context) error {
	return c.check()
}

func (c *memoryClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		c.c.Flush()
	}
	return nil
}

func (c *memoryClient) Stats(ctx context.Context) (Stats, error) {
	if err := c.check(); err != nil {
		return Stats{}, err
	}
	// ItemCount incluye expiradas aún no barridas
	c.c.DeleteExpired()
	return Stats{
		Driver: "memory",
		Keys:   int64(c.c.ItemCount()),
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
	}, nil
}
