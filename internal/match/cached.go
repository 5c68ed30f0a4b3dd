package match

import (
	"encoding/binary"
	"math"
	"slices"
	"sync/atomic"
	"time"

	"github.com/ppiankov/rcvimpute/internal/cache"
	"github.com/ppiankov/rcvimpute/internal/model"
)

// Finder produces a match list for a target composition
type Finder interface {
	Match(target model.CompositionVector) (model.MatchList, error)
}

// CachedMatcher memoizes match lists keyed by the matcher fingerprint and
// the target vector. Targets with identical compositions share an entry.
type CachedMatcher struct {
	matcher *Matcher
	cache   cache.Cache[model.MatchList]
	ttl     time.Duration

	hits   atomic.Int64
	misses atomic.Int64
}

// NewCachedMatcher wraps m with c
func NewCachedMatcher(m *Matcher, c cache.Cache[model.MatchList], ttl time.Duration) *CachedMatcher {
	return &CachedMatcher{
		matcher: m,
		cache:   c,
		ttl:     ttl,
	}
}

// Match returns a cached match list or computes and stores one.
// Cache write failures are ignored; the computed list is still returned.
func (c *CachedMatcher) Match(target model.CompositionVector) (model.MatchList, error) {
	key := cache.Key([]byte(c.matcher.Fingerprint()), vectorBytes(target))

	if list, found := c.cache.Get(key); found {
		c.hits.Add(1)
		return slices.Clone(list), nil
	}
	c.misses.Add(1)

	list, err := c.matcher.Match(target)
	if err != nil {
		return nil, err
	}

	_ = c.cache.Set(key, slices.Clone(list), c.ttl)
	return list, nil
}

// Stats returns cache hits and misses so far
func (c *CachedMatcher) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func vectorBytes(v model.CompositionVector) []byte {
	buf := make([]byte, 8*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint64(buf[8*i:], math.Float64bits(x))
	}
	return buf
}
