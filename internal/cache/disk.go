package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DiskCache persists values as JSON files, one per key, so entries survive
// between runs. V must round-trip through encoding/json.
type DiskCache[V any] struct {
	dir string
	ttl time.Duration
	now func() time.Time
}

// NewDiskCache creates a disk cache rooted at dir
func NewDiskCache[V any](dir string, ttl time.Duration) *DiskCache[V] {
	return &DiskCache[V]{
		dir: dir,
		ttl: ttl,
		now: time.Now,
	}
}

type diskEntry[V any] struct {
	Value     V         `json:"value"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Get retrieves a value, removing it if expired
func (c *DiskCache[V]) Get(key string) (V, bool) {
	var zero V
	path := c.path(key)

	data, err := os.ReadFile(path)
	if err != nil {
		return zero, false
	}

	var entry diskEntry[V]
	if err := json.Unmarshal(data, &entry); err != nil {
		_ = os.Remove(path)
		return zero, false
	}

	if c.now().After(entry.ExpiresAt) {
		_ = os.Remove(path)
		return zero, false
	}

	return entry.Value, true
}

// Set stores a value. A zero ttl uses the cache default.
func (c *DiskCache[V]) Set(key string, value V, ttl time.Duration) error {
	if ttl == 0 {
		ttl = c.ttl
	}

	data, err := json.Marshal(diskEntry[V]{
		Value:     value,
		ExpiresAt: c.now().Add(ttl),
	})
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}

	if err := os.MkdirAll(c.dir, 0755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}

	// Write then rename so concurrent readers never see a partial file
	path := c.path(key)
	tmp, err := os.CreateTemp(c.dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("close cache file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("rename cache file: %w", err)
	}

	return nil
}

// Delete removes a value
func (c *DiskCache[V]) Delete(key string) error {
	err := os.Remove(c.path(key))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// Clear removes the cache directory
func (c *DiskCache[V]) Clear() error {
	return os.RemoveAll(c.dir)
}

func (c *DiskCache[V]) path(key string) string {
	return filepath.Join(c.dir, strings.ReplaceAll(key, ":", "_")+".json")
}
