package cache

import (
	"errors"
	"time"
)

// memorySweep is how often the memory layer drops expired entries
const memorySweep = 10 * time.Minute

// LayeredCache reads memory first, then disk. Disk hits are copied into
// memory with the memory layer's own TTL.
type LayeredCache[V any] struct {
	memory *MemoryCache[V]
	disk   *DiskCache[V]
}

// NewLayeredCache creates a memory-over-disk cache
func NewLayeredCache[V any](memoryTTL time.Duration, diskDir string, diskTTL time.Duration) *LayeredCache[V] {
	return &LayeredCache[V]{
		memory: NewMemoryCache[V](memoryTTL, memorySweep),
		disk:   NewDiskCache[V](diskDir, diskTTL),
	}
}

func (c *LayeredCache[V]) Get(key string) (V, bool) {
	if v, ok := c.memory.Get(key); ok {
		return v, true
	}
	v, ok := c.disk.Get(key)
	if ok {
		_ = c.memory.Set(key, v, 0)
	}
	return v, ok
}

// Set writes memory unconditionally; only the disk write can fail
func (c *LayeredCache[V]) Set(key string, value V, ttl time.Duration) error {
	_ = c.memory.Set(key, value, 0)
	return c.disk.Set(key, value, ttl)
}

func (c *LayeredCache[V]) Delete(key string) error {
	return errors.Join(c.memory.Delete(key), c.disk.Delete(key))
}

func (c *LayeredCache[V]) Clear() error {
	return errors.Join(c.memory.Clear(), c.disk.Clear())
}
