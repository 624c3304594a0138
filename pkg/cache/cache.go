// Package cache memoizes handler results for cacheable methods.
package cache

import (
	"container/list"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"sync"
	"time"
)

const logPrefix = "cache:cache"

// DefaultMaxEntries bounds the cache when no size is configured.
const DefaultMaxEntries = 10000

// Key derives the cache key for a method call. Parameters are serialized as
// JSON, which orders object keys, so logically equal parameter bags produce
// the same key regardless of insertion order.
func Key(method string, params map[string]any) (string, error) {
	if params == nil {
		params = map[string]any{}
	}
	data, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("%s - params not serializable: %w", logPrefix, err)
	}
	return method + ":" + string(data), nil
}

type cacheEntry struct {
	key      string
	value    any
	inserted time.Time
	element  *list.Element
}

// Config configures a Cache.
type Config struct {
	// TTL expires entries after the given age. Zero keeps entries until evicted.
	TTL time.Duration
	// MaxEntries evicts the oldest entry once reached. Zero uses DefaultMaxEntries.
	MaxEntries int
}

// Cache is a thread-safe result cache with oldest-first eviction.
type Cache struct {
	mu         sync.RWMutex
	entries    map[string]*cacheEntry
	order      *list.List // keys in insertion order, oldest at front
	ttl        time.Duration
	maxEntries int
	hits       int64
	misses     int64
	now        func() time.Time
}

// New creates a Cache.
func New(cfg Config) *Cache {
	maxEntries := cfg.MaxEntries
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &Cache{
		entries:    make(map[string]*cacheEntry),
		order:      list.New(),
		ttl:        cfg.TTL,
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

// Get returns the cached result for method and params.
func (c *Cache) Get(method string, params map[string]any) (any, bool) {
	key, err := Key(method, params)
	if err != nil {
		return nil, false
	}
	return c.GetKey(key)
}

// GetKey returns the cached value stored under key.
func (c *Cache) GetKey(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok || c.expiredLocked(e) {
		c.misses++
		return nil, false
	}
	c.hits++
	return e.value, true
}

// Put stores value for method and params. Params that cannot be serialized
// are not cached.
func (c *Cache) Put(method string, params map[string]any, value any) {
	key, err := Key(method, params)
	if err != nil {
		slog.Warn(fmt.Sprintf("%s - skipping put for %s: %v", logPrefix, method, err))
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		e.inserted = c.now()
		c.order.MoveToBack(e.element)
		return
	}
	if len(c.entries) >= c.maxEntries {
		c.evictOldestLocked()
	}
	e := &cacheEntry{key: key, value: value, inserted: c.now()}
	e.element = c.order.PushBack(key)
	c.entries[key] = e
}

// Evict removes one key and reports whether it was present.
func (c *Cache) Evict(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return false
	}
	c.removeLocked(e)
	return true
}

// EvictPattern removes every key matching the regular expression pattern and
// returns how many were removed.
func (c *Cache) EvictPattern(pattern string) (int, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return 0, fmt.Errorf("%s - invalid pattern %q: %w", logPrefix, pattern, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, e := range c.entries {
		if re.MatchString(key) {
			c.removeLocked(e)
			removed++
		}
	}
	slog.Debug(fmt.Sprintf("%s - evicted %d entries matching %q", logPrefix, removed, pattern))
	return removed, nil
}

// Clear removes every entry and returns how many were removed.
func (c *Cache) Clear() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := len(c.entries)
	c.entries = make(map[string]*cacheEntry)
	c.order.Init()
	return n
}

// Prune drops expired entries. It is a no-op without a TTL.
func (c *Cache) Prune() int {
	if c.ttl <= 0 {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for elem := c.order.Front(); elem != nil; {
		next := elem.Next()
		key, _ := elem.Value.(string)
		if e, ok := c.entries[key]; ok && c.expiredLocked(e) {
			c.removeLocked(e)
			removed++
		}
		elem = next
	}
	return removed
}

// Len returns the number of stored entries, including expired ones not yet pruned.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats summarizes cache usage.
type Stats struct {
	Size   int   `json:"size"`
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
}

// Stats returns current usage counters.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Stats{Size: len(c.entries), Hits: c.hits, Misses: c.misses}
}

func (c *Cache) expiredLocked(e *cacheEntry) bool {
	return c.ttl > 0 && c.now().Sub(e.inserted) >= c.ttl
}

func (c *Cache) removeLocked(e *cacheEntry) {
	c.order.Remove(e.element)
	delete(c.entries, e.key)
}

func (c *Cache) evictOldestLocked() {
	front := c.order.Front()
	if front == nil {
		return
	}
	key, _ := front.Value.(string)
	if e, ok := c.entries[key]; ok {
		c.removeLocked(e)
	}
}
