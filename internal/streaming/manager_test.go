package streaming

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishDeliversToSubscribers(t *testing.T) {
	m := NewManager(8)
	ch := m.Subscribe("q1", 4)
	defer m.Unsubscribe("q1", ch)

	m.Publish("q1", Event{Type: "processing", Message: "Analyzing request"})

	select {
	case evt := <-ch:
		assert.Equal(t, "q1", evt.QueryID)
		assert.Equal(t, "processing", evt.Type)
		assert.Equal(t, uint64(1), evt.Seq)
		assert.False(t, evt.Timestamp.IsZero())
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}
}

func TestPublishSkipsOtherQueries(t *testing.T) {
	m := NewManager(8)
	ch := m.Subscribe("q1", 1)
	defer m.Unsubscribe("q1", ch)

	m.Publish("q2", Event{Type: "final"})

	select {
	case evt := <-ch:
		t.Fatalf("unexpected event: %+v", evt)
	default:
	}
}

func TestSlowSubscriberDropsEvents(t *testing.T) {
	m := NewManager(8)
	ch := m.Subscribe("q1", 1)
	defer m.Unsubscribe("q1", ch)

	m.Publish("q1", Event{Type: "phase"})
	m.Publish("q1", Event{Type: "final"})

	evt := <-ch
	assert.Equal(t, "phase", evt.Type)
	select {
	case evt := <-ch:
		t.Fatalf("buffer should have dropped: %+v", evt)
	default:
	}

	// The dropped event is still replayable.
	replay := m.ReplaySince("q1", 0)
	require.Len(t, replay, 1)
	assert.Equal(t, "final", replay[0].Type)
}

func TestReplaySince(t *testing.T) {
	m := NewManager(3)
	for i := 0; i < 4; i++ {
		m.Publish("q1", Event{Type: "phase"})
	}

	// Capacity 3 holds seq 2..4 after the first event is overwritten.
	evs := m.ReplaySince("q1", 0)
	require.Len(t, evs, 3)
	assert.Equal(t, uint64(2), evs[0].Seq)
	assert.Equal(t, uint64(4), evs[2].Seq)

	evs = m.ReplaySince("q1", 3)
	require.Len(t, evs, 1)
	assert.Equal(t, uint64(4), evs[0].Seq)

	assert.Nil(t, m.ReplaySince("unknown", 0))
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	m := NewManager(8)
	ch := m.Subscribe("q1", 1)
	m.Unsubscribe("q1", ch)

	_, open := <-ch
	assert.False(t, open)

	// Double unsubscribe must not panic on the closed channel.
	m.Unsubscribe("q1", ch)
}

func TestForgetDropsHistory(t *testing.T) {
	m := NewManager(8)
	m.Publish("q1", Event{Type: "final"})
	require.Len(t, m.ReplaySince("q1", 0), 1)

	m.Forget("q1")
	assert.Nil(t, m.ReplaySince("q1", 0))
}
