// Package streaming provides in-memory pub/sub for per-query progress
// events with a ring-buffer history so reconnecting SSE clients can
// replay what they missed via Last-Event-ID.
package streaming

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/fieldline/copilot/internal/metrics"
)

// Event is a single progress event on a query stream.
type Event struct {
	QueryID   string      `json:"query_id"`
	Type      string      `json:"type"`
	Domain    string      `json:"domain,omitempty"`
	Message   string      `json:"message,omitempty"`
	Payload   interface{} `json:"payload,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Seq       uint64      `json:"seq"`
}

// Manager fans events out to subscribers keyed on query ID.
type Manager struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan Event]struct{}
	// per-query ring buffer for replay and Last-Event-ID support
	history  map[string]*ring
	capacity int
}

const defaultCapacity = 256

func NewManager(capacity int) *Manager {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &Manager{
		subscribers: make(map[string]map[chan Event]struct{}),
		history:     make(map[string]*ring),
		capacity:    capacity,
	}
}

// Subscribe adds a subscriber channel for a query ID; the caller must
// drain it and call Unsubscribe when done.
func (m *Manager) Subscribe(queryID string, buffer int) chan Event {
	ch := make(chan Event, buffer)
	m.mu.Lock()
	defer m.mu.Unlock()
	subs := m.subscribers[queryID]
	if subs == nil {
		subs = make(map[chan Event]struct{})
		m.subscribers[queryID] = subs
	}
	subs[ch] = struct{}{}
	metrics.StreamSubscribers.Inc()
	return ch
}

// Unsubscribe removes the subscriber channel and closes it.
func (m *Manager) Unsubscribe(queryID string, ch chan Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if subs, ok := m.subscribers[queryID]; ok {
		if _, present := subs[ch]; !present {
			return
		}
		delete(subs, ch)
		close(ch)
		metrics.StreamSubscribers.Dec()
		if len(subs) == 0 {
			delete(m.subscribers, queryID)
		}
	}
}

// Publish assigns the event a sequence number, records it in history,
// and delivers it to every subscriber without blocking. Slow
// subscribers lose events; replay covers the gap.
func (m *Manager) Publish(queryID string, evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	evt.QueryID = queryID

	m.mu.Lock()
	rg := m.history[queryID]
	if rg == nil {
		rg = newRing(m.capacity)
		m.history[queryID] = rg
	}
	evt.Seq = rg.nextSeq
	rg.nextSeq++
	rg.push(evt)
	subs := m.subscribers[queryID]
	m.mu.Unlock()

	metrics.StreamEventsPublished.WithLabelValues(evt.Type).Inc()
	for ch := range subs {
		select {
		case ch <- evt:
		default:
		}
	}
}

// ReplaySince returns events with Seq > since, best-effort within the
// ring capacity.
func (m *Manager) ReplaySince(queryID string, since uint64) []Event {
	m.mu.RLock()
	rg := m.history[queryID]
	m.mu.RUnlock()
	if rg == nil {
		return nil
	}
	return rg.since(since)
}

// Forget drops a query's history once the stream is finished.
func (m *Manager) Forget(queryID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.history, queryID)
}

// Marshal returns the event as JSON for SSE data lines.
func (e Event) Marshal() []byte {
	b, _ := json.Marshal(e)
	return b
}

// ring is a fixed-capacity ring buffer of events.
type ring struct {
	buf     []Event
	start   int
	count   int
	nextSeq uint64
}

// Sequence numbers start at 1 so a Last-Event-ID of 0 replays the
// whole buffered backlog.
func newRing(capacity int) *ring { return &ring{buf: make([]Event, capacity), nextSeq: 1} }

func (r *ring) push(e Event) {
	if len(r.buf) == 0 {
		return
	}
	if r.count < len(r.buf) {
		r.buf[(r.start+r.count)%len(r.buf)] = e
		r.count++
		return
	}
	r.buf[r.start] = e
	r.start = (r.start + 1) % len(r.buf)
}

func (r *ring) since(seq uint64) []Event {
	if r.count == 0 {
		return nil
	}
	out := make([]Event, 0, r.count)
	for i := 0; i < r.count; i++ {
		ev := r.buf[(r.start+i)%len(r.buf)]
		if ev.Seq > seq {
			out = append(out, ev)
		}
	}
	return out
}
