// Copyright © 2024 loonghao
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

package device

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/loonghao/ferrocp/common"
)

const (
	DefaultMaxEntries       = 1024
	DefaultTTL              = 5 * time.Minute
	DefaultRefreshThreshold = 0.75
	DefaultRefreshInterval  = 30 * time.Second
)

// cacheEntry is one memoized oracle answer. The LRU list is owned by the
// Cache's entry map itself: prev/next are key strings, not pointers, so
// there are no cyclic references to manage.
type cacheEntry struct {
	class        common.DeviceClass
	createdAt    time.Time
	lastAccessed time.Time
	accessCount  uint64
	prev, next   string // "" marks the list ends
}

// CacheStats is a point-in-time snapshot of cache behaviour.
type CacheStats struct {
	Hits            uint64
	Misses          uint64
	Evictions       uint64
	ExpiredRemovals uint64
	Entries         int
	EstimatedMemory int
}

// Cache memoizes oracle results keyed by path prefix, bounded by an LRU
// list and a TTL. It is a pure hint store: every failure degrades to
// DeviceClass Unknown and never fails a copy.
//
// Get counts as a write (LRU promotion and stats), so all operations take
// the exclusive lock.
type Cache struct {
	mu sync.Mutex

	entries    map[string]*cacheEntry
	head, tail string // most recently used / eviction victim

	maxEntries       int
	ttl              time.Duration
	refreshThreshold float64
	refreshInterval  time.Duration

	refreshQueue  []string
	refreshQueued map[string]bool
	lastRefresh   time.Time

	hits, misses, evictions, expired uint64
	totalKeyBytes                    int

	oracle Oracle
	logger common.ILogger

	now func() time.Time // injectable for tests
}

type CacheOption func(*Cache)

func WithMaxEntries(n int) CacheOption {
	return func(c *Cache) { c.maxEntries = n }
}

func WithTTL(ttl time.Duration) CacheOption {
	return func(c *Cache) { c.ttl = ttl }
}

func WithRefreshThreshold(fraction float64) CacheOption {
	return func(c *Cache) { c.refreshThreshold = fraction }
}

func WithRefreshInterval(interval time.Duration) CacheOption {
	return func(c *Cache) { c.refreshInterval = interval }
}

func WithClock(now func() time.Time) CacheOption {
	return func(c *Cache) { c.now = now }
}

func NewCache(oracle Oracle, logger common.ILogger, opts ...CacheOption) *Cache {
	if logger == nil {
		logger = common.NewNopLogger()
	}
	c := &Cache{
		entries:          make(map[string]*cacheEntry),
		maxEntries:       DefaultMaxEntries,
		ttl:              DefaultTTL,
		refreshThreshold: DefaultRefreshThreshold,
		refreshInterval:  DefaultRefreshInterval,
		refreshQueued:    make(map[string]bool),
		oracle:           oracle,
		logger:           logger,
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.maxEntries < 1 {
		c.maxEntries = 1
	}
	return c
}

// CacheKey derives the prefix key for a path: the parent directory when the
// path carries a file extension, the path itself otherwise. Sibling files
// share a device, so this collapses per-file lookups into one entry.
func CacheKey(path string) string {
	if filepath.Ext(path) != "" {
		return filepath.Dir(path)
	}
	return filepath.Clean(path)
}

// Get returns the memoized class for the path's prefix key. A hit promotes
// the entry to the LRU head and records an access; an expired entry is
// removed and reported as a miss.
func (c *Cache) Get(path string) (common.DeviceClass, bool) {
	key := CacheKey(path)

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.misses++
		return common.EDeviceClass.Unknown(), false
	}

	now := c.now()
	if now.Sub(e.createdAt) > c.ttl {
		c.removeLocked(key)
		c.expired++
		c.misses++
		return common.EDeviceClass.Unknown(), false
	}

	e.lastAccessed = now
	e.accessCount++
	c.moveToHeadLocked(key)
	c.hits++

	// An aging entry is queued for refresh; the queue is advisory and a
	// missed refresh is never an error.
	if now.Sub(e.createdAt) > time.Duration(c.refreshThreshold*float64(c.ttl)) {
		c.queueRefreshLocked(key)
	}

	return e.class, true
}

// Insert stores or updates the entry for the path's prefix key and promotes
// it. Exceeding maxEntries evicts the LRU tail.
func (c *Cache) Insert(path string, class common.DeviceClass) {
	key := CacheKey(path)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.insertLocked(key, class)
}

func (c *Cache) insertLocked(key string, class common.DeviceClass) {
	now := c.now()
	if e, ok := c.entries[key]; ok {
		e.class = class
		e.createdAt = now
		e.lastAccessed = now
		c.moveToHeadLocked(key)
		return
	}

	e := &cacheEntry{class: class, createdAt: now, lastAccessed: now}
	c.entries[key] = e
	c.totalKeyBytes += len(key)
	c.pushHeadLocked(key)

	if len(c.entries) > c.maxEntries {
		victim := c.tail
		c.removeLocked(victim)
		c.evictions++
	}
}

// GetOrResolve consults the cache, falling back to the oracle on a miss.
// Oracle failures degrade silently to Unknown and are not cached, so a
// later lookup can still succeed.
func (c *Cache) GetOrResolve(ctx context.Context, path string) common.DeviceClass {
	if class, ok := c.Get(path); ok {
		return class
	}
	if c.oracle == nil {
		return common.EDeviceClass.Unknown()
	}
	class, err := c.oracle.Detect(ctx, path)
	if err != nil {
		if c.logger.ShouldLog(common.ELogLevel.Debug()) {
			c.logger.Log(common.ELogLevel.Debug(), "device detection failed for "+path+": "+err.Error())
		}
		return common.EDeviceClass.Unknown()
	}
	c.Insert(path, class)
	return class
}

// CleanupExpired removes every entry older than the TTL and returns how
// many were dropped.
func (c *Cache) CleanupExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for key, e := range c.entries {
		if now.Sub(e.createdAt) > c.ttl {
			c.removeLocked(key)
			c.expired++
			removed++
		}
	}
	return removed
}

// DrainRefreshQueue re-detects queued keys and replaces their entries in
// place. It is throttled: calls within refreshInterval of the previous
// drain do nothing.
func (c *Cache) DrainRefreshQueue(ctx context.Context) int {
	c.mu.Lock()
	if c.oracle == nil || c.now().Sub(c.lastRefresh) < c.refreshInterval {
		c.mu.Unlock()
		return 0
	}
	c.lastRefresh = c.now()
	keys := c.refreshQueue
	c.refreshQueue = nil
	c.refreshQueued = make(map[string]bool)
	c.mu.Unlock()

	refreshed := 0
	for _, key := range keys {
		class, err := c.oracle.Detect(ctx, key)
		if err != nil {
			continue
		}
		c.mu.Lock()
		if e, ok := c.entries[key]; ok {
			e.class = class
			e.createdAt = c.now()
			refreshed++
		}
		c.mu.Unlock()
	}
	return refreshed
}

// Stats reports hit/miss/eviction counters and the estimated (not exact)
// memory footprint: entries × (node + entry + average key bytes).
func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	const perEntryOverhead = 96 // map node + entry struct, estimated
	avgKey := 0
	if len(c.entries) > 0 {
		avgKey = c.totalKeyBytes / len(c.entries)
	}
	return CacheStats{
		Hits:            c.hits,
		Misses:          c.misses,
		Evictions:       c.evictions,
		ExpiredRemovals: c.expired,
		Entries:         len(c.entries),
		EstimatedMemory: len(c.entries) * (perEntryOverhead + avgKey),
	}
}

// Len reports the current entry count.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////
// LRU list plumbing. Every helper assumes c.mu is held.

func (c *Cache) pushHeadLocked(key string) {
	e := c.entries[key]
	e.prev = ""
	e.next = c.head
	if c.head != "" {
		c.entries[c.head].prev = key
	}
	c.head = key
	if c.tail == "" {
		c.tail = key
	}
}

func (c *Cache) unlinkLocked(key string) {
	e := c.entries[key]
	if e.prev != "" {
		c.entries[e.prev].next = e.next
	} else {
		c.head = e.next
	}
	if e.next != "" {
		c.entries[e.next].prev = e.prev
	} else {
		c.tail = e.prev
	}
	e.prev, e.next = "", ""
}

func (c *Cache) moveToHeadLocked(key string) {
	if c.head == key {
		return
	}
	c.unlinkLocked(key)
	c.pushHeadLocked(key)
}

func (c *Cache) removeLocked(key string) {
	if _, ok := c.entries[key]; !ok {
		return
	}
	c.unlinkLocked(key)
	c.totalKeyBytes -= len(key)
	delete(c.entries, key)
}

func (c *Cache) queueRefreshLocked(key string) {
	if c.refreshQueued[key] {
		return
	}
	c.refreshQueued[key] = true
	c.refreshQueue = append(c.refreshQueue, key)
}
