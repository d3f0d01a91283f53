// Package cache implements the thread-safe LRU response cache: a
// key→item map fronted by an internal/deque.FancyDeque ordering keys
// from most- to least-recently used.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/alextby/cacheproxy/internal/deque"
	"github.com/alextby/cacheproxy/internal/domain"
)

// item is the value half of the index map: the cached payload, its
// size (always len(payload), kept alongside to avoid recomputing it
// under the lock), and the time it was last written.
type item struct {
	payload   []byte
	size      int64
	timestamp time.Time
}

// LRUCache is a size-bounded, thread-safe least-recently-used cache.
// Every operation is serialized by mu; no I/O ever happens while it is
// held.
type LRUCache struct {
	mu sync.Mutex

	index   map[string]item
	history *deque.FancyDeque[string]

	maxItemSize  int64
	maxTotalSize int64

	totalBytes  int64
	successHits int64
	totalHits   int64
}

// New constructs an LRUCache with the given per-item and total byte
// bounds. It panics if maxItemSize exceeds maxTotalSize, since no item
// could ever be admitted — this is treated as a construction error,
// not a runtime one.
func New(maxItemSize, maxTotalSize int64) *LRUCache {
	if maxItemSize <= 0 || maxTotalSize <= 0 {
		panic("cache: max_item_size and max_total_size must be positive")
	}
	if maxItemSize > maxTotalSize {
		panic("cache: max_item_size must not exceed max_total_size")
	}
	return &LRUCache{
		index:        make(map[string]item),
		history:      deque.New[string](),
		maxItemSize:  maxItemSize,
		maxTotalSize: maxTotalSize,
	}
}

// Get returns the cached payload for key, bubbling it to MRU on a hit.
// An empty key is always a miss. Get never mutates the returned slice's
// backing array in place; callers must not mutate it either.
func (c *LRUCache) Get(key string) ([]byte, bool) {
	if key == "" {
		return nil, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.totalHits++

	it, ok := c.index[key]
	if !ok {
		return nil, false
	}

	c.successHits++
	c.history.Bubble(key)
	return it.payload, true
}

// Put stores value under key, evicting LRU entries as needed to stay
// within maxTotalSize. It returns false when key or value is empty, or
// when value alone exceeds maxItemSize — these are the only rejection
// cases that can occur. A refuse-admission guard for a cache that cannot
// evict enough room is also present, but New's bounds make it
// unreachable (see below and DESIGN.md).
func (c *LRUCache) Put(key string, value []byte) bool {
	if key == "" || len(value) == 0 {
		return false
	}
	bsize := int64(len(value))
	if bsize > c.maxItemSize {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	existing, isUpdate := c.index[key]
	projected := c.totalBytes
	if isUpdate {
		projected -= existing.size
	}

	for projected+bsize > c.maxTotalSize && c.history.Len() > 0 {
		victim, ok := c.history.PopTail()
		if !ok {
			break
		}
		if victim == key {
			// key is mid-eviction-queue for its own stale entry; its
			// bytes are already excluded from projected above.
			continue
		}
		if old, ok := c.index[victim]; ok {
			projected -= old.size
			delete(c.index, victim)
		}
	}

	if projected+bsize > c.maxTotalSize {
		// Unreachable given New's maxItemSize <= maxTotalSize invariant:
		// once the loop above drains the whole history (history.Len() == 0),
		// projected is 0 (an updated key's own bytes were subtracted before
		// the loop), and bsize <= maxItemSize <= maxTotalSize. Kept as a
		// refuse-admission guard rather than removed, so a future change to
		// the eviction loop or to New's validation fails loud instead of
		// leaving the cache silently over budget; note that on this path
		// c.totalBytes is not reconciled with victims already deleted from
		// c.index above, which is harmless only because the branch cannot
		// currently execute.
		if isUpdate {
			// The stale index entry survived eviction untouched, but its
			// history node may have been popped above; restore it.
			if !c.history.Bubble(key) {
				c.history.PushHead(key)
			}
		}
		return false
	}

	c.index[key] = item{payload: value, size: bsize, timestamp: time.Now()}
	c.totalBytes = projected + bsize
	// isUpdate's history node may have been evicted above (it was
	// skipped in the index but not exempted from the deque walk), so
	// fall back to a fresh push if the bubble finds nothing indexed.
	if !isUpdate || !c.history.Bubble(key) {
		c.history.PushHead(key)
	}
	return true
}

// Stats returns a snapshot of (success_hits, total_hits, item_count,
// total_bytes) taken under the lock.
func (c *LRUCache) Stats() domain.CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return domain.CacheStats{
		SuccessHits: c.successHits,
		TotalHits:   c.totalHits,
		ItemCount:   len(c.index),
		TotalBytes:  c.totalBytes,
	}
}

// HealthCheck reports the cache as degraded once it is within 5% of
// its total byte budget, and healthy otherwise. It never blocks on I/O.
func (c *LRUCache) HealthCheck(ctx context.Context) domain.HealthStatus {
	stats := c.Stats()

	status := domain.HealthStatusHealthy
	msg := ""
	if c.maxTotalSize > 0 && float64(stats.TotalBytes) >= 0.95*float64(c.maxTotalSize) {
		status = domain.HealthStatusDegraded
		msg = "cache near total byte budget"
	}

	return domain.HealthStatus{
		Status:  status,
		Message: msg,
		Details: map[string]any{
			"item_count":     stats.ItemCount,
			"total_bytes":    stats.TotalBytes,
			"max_total_size": c.maxTotalSize,
			"hit_ratio":      stats.HitRatio(),
			"success_hits":   stats.SuccessHits,
			"total_hits":     stats.TotalHits,
		},
		Timestamp: time.Now(),
	}
}
