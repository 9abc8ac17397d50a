package cache

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
)

// Entry is a cached payload with its insertion timestamp.
type Entry struct {
	Payload   any
	Timestamp time.Time
}

// Cache is a thread-safe in-memory TTL cache. An entry is valid for the
// configured TTL after insertion; reads past the TTL behave as misses.
// Expired entries stay resident until overwritten unless the janitor is
// enabled, so memory follows the key universe.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]Entry
	ttl     time.Duration
	clock   clockwork.Clock

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64

	janitorInterval time.Duration
	stopCh          chan struct{}
	stopOnce        sync.Once
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock replaces the wall clock, for deterministic expiry in tests.
func WithClock(clk clockwork.Clock) Option {
	return func(c *Cache) { c.clock = clk }
}

// WithJanitor enables periodic eviction of expired entries.
func WithJanitor(interval time.Duration) Option {
	return func(c *Cache) { c.janitorInterval = interval }
}

// New creates a Cache with the given TTL.
func New(ttl time.Duration, opts ...Option) *Cache {
	c := &Cache{
		entries: make(map[string]Entry),
		ttl:     ttl,
		clock:   clockwork.NewRealClock(),
		stopCh:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.janitorInterval > 0 {
		go c.janitor()
	}

	return c
}

// Get returns the payload for key if present and not expired.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.RLock()
	entry, exists := c.entries[key]
	c.mu.RUnlock()

	if !exists {
		c.misses.Add(1)
		return nil, false
	}

	// Strictly stale once age exceeds the TTL; age == TTL still serves.
	if c.clock.Since(entry.Timestamp) > c.ttl {
		c.misses.Add(1)
		return nil, false
	}

	c.hits.Add(1)
	return entry.Payload, true
}

// Set stores payload under key, stamped with the current time. An existing
// entry is overwritten regardless of its age.
func (c *Cache) Set(key string, payload any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = Entry{
		Payload:   payload,
		Timestamp: c.clock.Now(),
	}
}

// Delete removes a key from the cache.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, key)
}

// Clear removes all entries.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]Entry)
}

// Len returns the number of resident entries, expired ones included.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.entries)
}

// TTL returns the configured entry lifetime.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// Stats is a snapshot of cache counters.
type Stats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
	Entries   int   `json:"entries"`
}

func (c *Cache) Stats() Stats {
	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
		Entries:   c.Len(),
	}
}

// Stop terminates the janitor goroutine. Safe to call when the janitor is
// disabled, and safe to call more than once.
func (c *Cache) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}

func (c *Cache) janitor() {
	ticker := c.clock.NewTicker(c.janitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			c.removeExpired()
		case <-c.stopCh:
			return
		}
	}
}

func (c *Cache) removeExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	for key, entry := range c.entries {
		if now.Sub(entry.Timestamp) > c.ttl {
			delete(c.entries, key)
			c.evictions.Add(1)
		}
	}
}
