package contextmgr

import (
	"container/list"
	"sync"
	"time"

	"github.com/fieldline/copilot/internal/metrics"
	"github.com/fieldline/copilot/internal/models"
)

// snapshotCache is a bounded LRU cache of context snapshots with a
// fixed TTL. Entries are immutable once stored, so a hit can be served
// to concurrent callers without copying. Time is injected so tests can
// run under simulated clocks.
type snapshotCache struct {
	mu       sync.Mutex
	ttl      time.Duration
	capacity int
	now      func() time.Time
	entries  map[string]*list.Element
	order    *list.List // front = most recently used
}

type cacheEntry struct {
	key       string
	snapshot  *models.Context
	expiresAt time.Time
}

func newSnapshotCache(ttl time.Duration, capacity int, now func() time.Time) *snapshotCache {
	if now == nil {
		now = time.Now
	}
	return &snapshotCache{
		ttl:      ttl,
		capacity: capacity,
		now:      now,
		entries:  make(map[string]*list.Element),
		order:    list.New(),
	}
}

func (c *snapshotCache) get(key string) (*models.Context, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	entry := el.Value.(*cacheEntry)
	if c.now().After(entry.expiresAt) {
		c.removeLocked(el)
		return nil, false
	}
	c.order.MoveToFront(el)
	return entry.snapshot, true
}

func (c *snapshotCache) put(key string, snapshot *models.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		entry := el.Value.(*cacheEntry)
		entry.snapshot = snapshot
		entry.expiresAt = c.now().Add(c.ttl)
		c.order.MoveToFront(el)
		return
	}

	el := c.order.PushFront(&cacheEntry{
		key:       key,
		snapshot:  snapshot,
		expiresAt: c.now().Add(c.ttl),
	})
	c.entries[key] = el

	for c.capacity > 0 && c.order.Len() > c.capacity {
		c.removeLocked(c.order.Back())
	}
	metrics.ContextCacheSize.Set(float64(len(c.entries)))
}

func (c *snapshotCache) invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[key]; ok {
		c.removeLocked(el)
	}
}

func (c *snapshotCache) removeLocked(el *list.Element) {
	entry := el.Value.(*cacheEntry)
	delete(c.entries, entry.key)
	c.order.Remove(el)
	metrics.ContextCacheSize.Set(float64(len(c.entries)))
}
