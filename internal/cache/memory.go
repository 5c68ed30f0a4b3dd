package cache

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryCache keeps decoded values in process, so hits skip the JSON
// round trip the disk layer pays.
type MemoryCache[V any] struct {
	items *gocache.Cache
}

// NewMemoryCache creates a memory cache whose expired entries are swept every cleanupInterval
func NewMemoryCache[V any](defaultTTL, cleanupInterval time.Duration) *MemoryCache[V] {
	return &MemoryCache[V]{items: gocache.New(defaultTTL, cleanupInterval)}
}

func (c *MemoryCache[V]) Get(key string) (V, bool) {
	var zero V
	val, found := c.items.Get(key)
	if !found {
		return zero, false
	}
	v, ok := val.(V)
	if !ok {
		return zero, false
	}
	return v, true
}

func (c *MemoryCache[V]) Set(key string, value V, ttl time.Duration) error {
	c.items.Set(key, value, ttl)
	return nil
}

func (c *MemoryCache[V]) Delete(key string) error {
	c.items.Delete(key)
	return nil
}

func (c *MemoryCache[V]) Clear() error {
	c.items.Flush()
	return nil
}

// Len returns the number of entries, expired ones included until swept
func (c *MemoryCache[V]) Len() int {
	return c.items.ItemCount()
}
