package policy

import (
	"container/list"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"sync"
	"time"
)

// decisionCache memoizes policy decisions keyed on the fields that can
// influence the verdict. Payload differences hash into the key, so two
// actions with different amounts never share an entry.
type decisionCache struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	entries  map[uint64]*list.Element
	order    *list.List
	now      func() time.Time
}

type cacheEntry struct {
	key      uint64
	decision *Decision
	storedAt time.Time
}

func newDecisionCache(capacity int, ttl time.Duration) *decisionCache {
	if capacity <= 0 {
		capacity = 1000
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &decisionCache{
		capacity: capacity,
		ttl:      ttl,
		entries:  make(map[uint64]*list.Element),
		order:    list.New(),
		now:      time.Now,
	}
}

func (c *decisionCache) get(input *Input) (*Decision, bool) {
	key := cacheKey(input)

	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	entry := elem.Value.(*cacheEntry)
	if c.now().Sub(entry.storedAt) > c.ttl {
		c.order.Remove(elem)
		delete(c.entries, key)
		return nil, false
	}
	c.order.MoveToFront(elem)
	return entry.decision, true
}

func (c *decisionCache) set(input *Input, decision *Decision) {
	key := cacheKey(input)

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		entry := elem.Value.(*cacheEntry)
		entry.decision = decision
		entry.storedAt = c.now()
		c.order.MoveToFront(elem)
		return
	}

	elem := c.order.PushFront(&cacheEntry{key: key, decision: decision, storedAt: c.now()})
	c.entries[key] = elem

	for c.order.Len() > c.capacity {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).key)
	}
}

func cacheKey(input *Input) uint64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s|%s|%s|%s|%s", input.UserID, input.Role, input.Domain, input.Operation, input.ActionType)
	if len(input.Payload) > 0 {
		if raw, err := json.Marshal(input.Payload); err == nil {
			h.Write(raw)
		}
	}
	return h.Sum64()
}
