// Package cache provides in-memory implementations of ports.LeaderboardCache
// backed by hashicorp/golang-lru.
package cache

import (
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/ahrav/go-hydra/internal/ports"
)

// DefaultSize is used when a non-positive size is requested.
const DefaultSize = 256

// backend is the subset of the lru caches used here.
type backend[V any] interface {
	Get(key string) (V, bool)
	Add(key string, value V) bool
	Len() int
	Purge()
}

// LRU is a size-bounded cache with optional expiry. Leaderboard keys embed
// the contest revision, so stale entries are never read and simply age out.
// Safe for concurrent use.
type LRU[V any] struct {
	cache backend[V]
}

var _ ports.LeaderboardCache[int] = (*LRU[int])(nil)

// NewLRU creates a cache holding at most size entries. A positive ttl also
// expires entries that old.
func NewLRU[V any](size int, ttl time.Duration) (*LRU[V], error) {
	if size <= 0 {
		size = DefaultSize
	}
	if ttl > 0 {
		return &LRU[V]{cache: expirable.NewLRU[string, V](size, nil, ttl)}, nil
	}
	c, err := lru.New[string, V](size)
	if err != nil {
		return nil, fmt.Errorf("create lru cache: %w", err)
	}
	return &LRU[V]{cache: c}, nil
}

// Get implements ports.LeaderboardCache.
func (c *LRU[V]) Get(key string) (V, bool) { return c.cache.Get(key) }

// Set implements ports.LeaderboardCache.
func (c *LRU[V]) Set(key string, value V) { c.cache.Add(key, value) }

// Len implements ports.LeaderboardCache.
func (c *LRU[V]) Len() int { return c.cache.Len() }

// Purge drops every entry.
func (c *LRU[V]) Purge() { c.cache.Purge() }
