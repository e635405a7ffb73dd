// Package cache provides the process-local TTL caches in front of the
// repository's hot read paths. Two named instances exist: Profiles, read on
// every stream request, and Models, refreshed only by an explicit sync.
package cache

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

type entry struct {
	value    any
	storedAt time.Time
}

// Cache is a thread-safe string-keyed TTL cache with hit/miss accounting.
type Cache struct {
	mu     sync.Mutex
	name   string
	ttl    time.Duration
	data   map[string]entry
	hits   int64
	misses int64
}

// Stats is a point-in-time snapshot of a cache's counters.
type Stats struct {
	Name    string `json:"name"`
	Hits    int64  `json:"hits"`
	Misses  int64  `json:"misses"`
	Size    int    `json:"size"`
	HitRate string `json:"hit_rate"`
	TTLSec  int    `json:"ttl"`
}

func New(name string, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Cache{name: name, ttl: ttl, data: make(map[string]entry)}
}

// Get returns the cached value if present and younger than the TTL.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.data[key]; ok {
		if time.Since(e.storedAt) < c.ttl {
			c.hits++
			return e.value, true
		}
		delete(c.data, key)
	}
	c.misses++
	return nil, false
}

func (c *Cache) Set(key string, value any) {
	c.mu.Lock()
	c.data[key] = entry{value: value, storedAt: time.Now()}
	c.mu.Unlock()
}

func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	delete(c.data, key)
	c.mu.Unlock()
}

// InvalidatePrefix removes every key with the given prefix and reports how
// many were dropped.
func (c *Cache) InvalidatePrefix(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k := range c.data {
		if strings.HasPrefix(k, prefix) {
			delete(c.data, k)
			n++
		}
	}
	return n
}

func (c *Cache) Clear() {
	c.mu.Lock()
	c.data = make(map[string]entry)
	c.mu.Unlock()
}

func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := c.hits + c.misses
	rate := 0.0
	if total > 0 {
		rate = float64(c.hits) / float64(total) * 100
	}
	return Stats{
		Name:    c.name,
		Hits:    c.hits,
		Misses:  c.misses,
		Size:    len(c.data),
		HitRate: fmt.Sprintf("%.1f%%", rate),
		TTLSec:  int(c.ttl / time.Second),
	}
}

// Process-wide instances. Profiles change rarely but are consulted on every
// stream; the model catalog only moves on an explicit sync.
var (
	Profiles = New("profiles", 60*time.Second)
	Models   = New("models", 300*time.Second)
)

// ResetForTest clears both singletons, counters included. Tests call this
// between cases so cached rows never bleed across databases.
func ResetForTest() {
	for _, c := range []*Cache{Profiles, Models} {
		c.mu.Lock()
		c.data = make(map[string]entry)
		c.hits = 0
		c.misses = 0
		c.mu.Unlock()
	}
}
