package actions

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotStoreEvictsOldest(t *testing.T) {
	s := newSnapshotStore(2, time.Hour)

	s.put("a1", map[string]interface{}{"v": 1})
	s.put("a2", map[string]interface{}{"v": 2})

	// touching a1 makes a2 the eviction candidate
	_, ok := s.get("a1")
	require.True(t, ok)

	s.put("a3", map[string]interface{}{"v": 3})

	_, ok = s.get("a2")
	assert.False(t, ok)
	_, ok = s.get("a1")
	assert.True(t, ok)
	_, ok = s.get("a3")
	assert.True(t, ok)
}

func TestSnapshotStoreExpiresOnAccess(t *testing.T) {
	s := newSnapshotStore(10, time.Minute)
	base := time.Now()
	s.now = func() time.Time { return base }

	s.put("a1", map[string]interface{}{"v": 1})

	s.now = func() time.Time { return base.Add(2 * time.Minute) }
	_, ok := s.get("a1")
	assert.False(t, ok)
	assert.Zero(t, s.ll.Len())
}

func TestSnapshotStoreReputRefreshes(t *testing.T) {
	s := newSnapshotStore(10, time.Minute)
	base := time.Now()
	s.now = func() time.Time { return base }

	s.put("a1", map[string]interface{}{"v": 1})

	s.now = func() time.Time { return base.Add(45 * time.Second) }
	s.put("a1", map[string]interface{}{"v": 2})

	s.now = func() time.Time { return base.Add(90 * time.Second) }
	state, ok := s.get("a1")
	require.True(t, ok)
	assert.Equal(t, 2, state["v"])
}

func TestSnapshotStoreDelete(t *testing.T) {
	s := newSnapshotStore(10, time.Minute)
	s.put("a1", map[string]interface{}{"v": 1})
	s.delete("a1")
	_, ok := s.get("a1")
	assert.False(t, ok)
	s.delete("a1")
}
