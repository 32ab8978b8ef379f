package actions

import (
	"container/list"
	"sync"
	"time"

	"github.com/fieldline/copilot/internal/metrics"
)

// snapshotStore holds prior-state snapshots keyed by action id. Bounded
// LRU with TTL: rollback eligibility silently expires when a snapshot
// is evicted, which callers observe as rollbackAvailable flipping to
// false.
type snapshotStore struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	ll       *list.List
	items    map[string]*list.Element
	now      func() time.Time
}

type snapshotEntry struct {
	actionID string
	state    map[string]interface{}
	storedAt time.Time
}

func newSnapshotStore(capacity int, ttl time.Duration) *snapshotStore {
	if capacity <= 0 {
		capacity = 1000
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &snapshotStore{
		capacity: capacity,
		ttl:      ttl,
		ll:       list.New(),
		items:    make(map[string]*list.Element),
		now:      time.Now,
	}
}

func (s *snapshotStore) put(actionID string, state map[string]interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if el, ok := s.items[actionID]; ok {
		s.ll.MoveToFront(el)
		el.Value.(*snapshotEntry).state = state
		el.Value.(*snapshotEntry).storedAt = s.now()
		return
	}
	s.items[actionID] = s.ll.PushFront(&snapshotEntry{actionID: actionID, state: state, storedAt: s.now()})
	metrics.RollbackSnapshotsStored.Inc()

	for s.ll.Len() > s.capacity {
		oldest := s.ll.Back()
		if oldest == nil {
			break
		}
		s.removeLocked(oldest)
		metrics.RollbackSnapshotsEvicted.Inc()
	}
}

// get returns the snapshot if present and fresh. Expired entries are
// removed on access.
func (s *snapshotStore) get(actionID string) (map[string]interface{}, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	el, ok := s.items[actionID]
	if !ok {
		return nil, false
	}
	entry := el.Value.(*snapshotEntry)
	if s.now().Sub(entry.storedAt) > s.ttl {
		s.removeLocked(el)
		metrics.RollbackSnapshotsEvicted.Inc()
		return nil, false
	}
	s.ll.MoveToFront(el)
	return entry.state, true
}

func (s *snapshotStore) delete(actionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if el, ok := s.items[actionID]; ok {
		s.removeLocked(el)
	}
}

func (s *snapshotStore) removeLocked(el *list.Element) {
	entry := el.Value.(*snapshotEntry)
	s.ll.Remove(el)
	delete(s.items, entry.actionID)
}
