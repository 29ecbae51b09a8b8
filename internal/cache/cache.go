// Package cache provides a bounded, TTL-expiring cache for computed results.
//
// Eviction is by insertion order: reading an entry does not refresh its
// eviction priority, so under capacity pressure the oldest-inserted entry
// goes first. Entries expire lazily on read and eagerly via a background
// sweep so unread entries do not pile up.
package cache

import (
	"sync"
	"time"
)

// Config controls cache capacity and expiry behaviour.
type Config struct {
	MaxSize       int           `yaml:"max_size" json:"max_size"`
	DefaultTTL    time.Duration `yaml:"default_ttl" json:"default_ttl"`
	SweepInterval time.Duration `yaml:"sweep_interval" json:"sweep_interval"`
}

// DefaultConfig provides safe defaults.
func DefaultConfig() Config {
	return Config{
		MaxSize:       1000,
		DefaultTTL:    5 * time.Minute,
		SweepInterval: time.Minute,
	}
}

type entry[V any] struct {
	value     V
	createdAt time.Time
	ttl       time.Duration
	seq       uint64
}

func (e *entry[V]) expired(now time.Time) bool {
	return e.ttl > 0 && now.Sub(e.createdAt) >= e.ttl
}

// Stats reports cache occupancy and hit rate since the last Reset.
type Stats struct {
	Size    int     `json:"size"`
	Hits    uint64  `json:"hits"`
	Misses  uint64  `json:"misses"`
	HitRate float64 `json:"hit_rate"`
}

// Cache is a capacity-bounded, TTL-expiring key/value cache.
// All methods are safe for concurrent use; reads proceed in parallel,
// mutations are serialized.
type Cache[V any] struct {
	mu      sync.RWMutex
	entries map[string]*entry[V]
	// queue holds (key, seq) pairs in insertion order. Re-setting an
	// existing key appends a fresh pair; stale pairs are skipped during
	// eviction by comparing seq.
	queue  []queued
	seq    uint64
	hits   uint64
	misses uint64

	cfg  Config
	done chan struct{}
	once sync.Once
}

type queued struct {
	key string
	seq uint64
}

// New creates a cache and, when SweepInterval is positive, starts the
// background expiry sweeper. Call Close to stop it.
func New[V any](cfg Config) *Cache[V] {
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = DefaultConfig().MaxSize
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = DefaultConfig().DefaultTTL
	}

	c := &Cache[V]{
		entries: make(map[string]*entry[V]),
		cfg:     cfg,
		done:    make(chan struct{}),
	}

	if cfg.SweepInterval > 0 {
		go c.sweepLoop()
	}

	return c
}

// Get returns the value for key if present and unexpired.
// A hit does not change the entry's eviction priority.
func (c *Cache[V]) Get(key string) (V, bool) {
	var zero V

	c.mu.RLock()
	e, ok := c.entries[key]
	if ok && !e.expired(time.Now()) {
		v := e.value
		c.mu.RUnlock()

		c.mu.Lock()
		c.hits++
		c.mu.Unlock()
		return v, true
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	// Re-check under the write lock: the entry may have been replaced
	// between lock acquisitions.
	if e, ok := c.entries[key]; ok {
		if !e.expired(time.Now()) {
			c.hits++
			return e.value, true
		}
		delete(c.entries, key)
	}
	c.misses++
	return zero, false
}

// Set stores value under key with the default TTL.
func (c *Cache[V]) Set(key string, value V) {
	c.SetWithTTL(key, value, c.cfg.DefaultTTL)
}

// SetWithTTL stores value under key with an explicit TTL.
// A non-positive ttl falls back to the default.
func (c *Cache[V]) SetWithTTL(key string, value V, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.cfg.DefaultTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.cfg.MaxSize {
		c.evictOldestLocked()
	}

	c.seq++
	c.entries[key] = &entry[V]{
		value:     value,
		createdAt: time.Now(),
		ttl:       ttl,
		seq:       c.seq,
	}
	c.queue = append(c.queue, queued{key: key, seq: c.seq})
	c.compactQueueLocked()
}

// compactQueueLocked drops stale queue records once they outnumber live
// entries, so re-setting the same keys cannot grow the queue unbounded
// even when no sweeper is running.
func (c *Cache[V]) compactQueueLocked() {
	if len(c.queue) <= 2*len(c.entries)+16 {
		return
	}
	live := c.queue[:0]
	for _, q := range c.queue {
		if e, ok := c.entries[q.key]; ok && e.seq == q.seq {
			live = append(live, q)
		}
	}
	c.queue = live
}

// evictOldestLocked removes the least-recently-inserted live entry.
func (c *Cache[V]) evictOldestLocked() {
	for len(c.queue) > 0 {
		head := c.queue[0]
		c.queue = c.queue[1:]

		e, ok := c.entries[head.key]
		if !ok || e.seq != head.seq {
			continue // stale queue record, entry was re-set or deleted
		}
		delete(c.entries, head.key)
		return
	}
}

// Has reports whether key is present and unexpired, without counting
// toward the hit rate.
func (c *Cache[V]) Has(key string) bool {
	c.mu.RLock()
	e, ok := c.entries[key]
	expired := ok && e.expired(time.Now())
	c.mu.RUnlock()

	if expired {
		c.mu.Lock()
		if e, ok := c.entries[key]; ok && e.expired(time.Now()) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return false
	}
	return ok
}

// Delete removes key if present.
func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Clear removes all entries and resets hit counters.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry[V])
	c.queue = nil
	c.hits = 0
	c.misses = 0
}

// Len returns the number of live entries, including any not yet swept.
func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats returns occupancy and hit-rate counters. HitRate is 0 until the
// first Get has been observed.
func (c *Cache[V]) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Stats{
		Size:   len(c.entries),
		Hits:   c.hits,
		Misses: c.misses,
	}
	if total := c.hits + c.misses; total > 0 {
		s.HitRate = float64(c.hits) / float64(total)
	}
	return s
}

// Sweep removes all expired entries immediately and returns how many
// were dropped. The background sweeper calls this on its interval.
func (c *Cache[V]) Sweep() int {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, e := range c.entries {
		if e.expired(now) {
			delete(c.entries, key)
			removed++
		}
	}

	c.compactQueueLocked()
	return removed
}

func (c *Cache[V]) sweepLoop() {
	ticker := time.NewTicker(c.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.Sweep()
		case <-c.done:
			return
		}
	}
}

// Close stops the background sweeper. Safe to call more than once.
func (c *Cache[V]) Close() {
	c.once.Do(func() { close(c.done) })
}
