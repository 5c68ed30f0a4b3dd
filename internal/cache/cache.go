package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Cache stores values of one type by key. A zero ttl on Set uses the
// cache's default.
type Cache[V any] interface {
	Get(key string) (V, bool)
	Set(key string, value V, ttl time.Duration) error
	Delete(key string) error
	Clear() error
}

// keyPrefix is bumped whenever the encoded value layout changes
const keyPrefix = "rcvimpute:v1:"

// Key derives a cache key from its parts. Parts are length-delimited so
// ("ab","c") and ("a","bc") differ.
func Key(parts ...[]byte) string {
	h := sha256.New()
	var n [8]byte
	for _, p := range parts {
		l := len(p)
		for i := range n {
			n[i] = byte(l >> (8 * i))
		}
		h.Write(n[:])
		h.Write(p)
	}
	return keyPrefix + hex.EncodeToString(h.Sum(nil))
}
