package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/fieldline/copilot/internal/streaming"
)

// handleSSE streams query progress via Server-Sent Events.
// GET /v1/stream/sse?query_id=<id>
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	queryID := r.URL.Query().Get("query_id")
	if queryID == "" {
		writeError(w, http.StatusBadRequest, "query_id is required")
		return
	}
	typeFilter := parseTypeFilter(r.URL.Query().Get("types"))
	lastID := parseLastEventID(r)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	ch := s.streams.Subscribe(queryID, 256)
	defer s.streams.Unsubscribe(queryID, ch)

	fmt.Fprintf(w, ": connected to query %s\n\n", queryID)
	flusher.Flush()

	// Replay the backlog so reconnecting clients miss nothing within
	// the ring capacity.
	for _, ev := range s.streams.ReplaySince(queryID, lastID) {
		if skipEvent(typeFilter, ev.Type) {
			continue
		}
		writeSSE(w, ev)
		if ev.Type == "final" || ev.Type == "error" {
			flusher.Flush()
			return
		}
	}
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("SSE client disconnected", zap.String("query_id", queryID))
			return
		case ev, open := <-ch:
			if !open {
				return
			}
			if skipEvent(typeFilter, ev.Type) {
				continue
			}
			writeSSE(w, ev)
			flusher.Flush()
			if ev.Type == "final" || ev.Type == "error" {
				return
			}
		}
	}
}

func writeSSE(w http.ResponseWriter, ev streaming.Event) {
	fmt.Fprintf(w, "id: %d\n", ev.Seq)
	if ev.Type != "" {
		fmt.Fprintf(w, "event: %s\n", ev.Type)
	}
	fmt.Fprintf(w, "data: %s\n\n", ev.Marshal())
}

func parseTypeFilter(raw string) map[string]struct{} {
	if raw == "" {
		return nil
	}
	filter := make(map[string]struct{})
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			filter[t] = struct{}{}
		}
	}
	return filter
}

func skipEvent(filter map[string]struct{}, eventType string) bool {
	if len(filter) == 0 {
		return false
	}
	_, ok := filter[eventType]
	return !ok
}

// parseLastEventID reads the standard header with a query-parameter
// fallback for clients that cannot set headers on EventSource.
func parseLastEventID(r *http.Request) uint64 {
	if lei := r.Header.Get("Last-Event-ID"); lei != "" {
		if n, err := strconv.ParseUint(lei, 10, 64); err == nil {
			return n
		}
	}
	if q := r.URL.Query().Get("last_event_id"); q != "" {
		if n, err := strconv.ParseUint(q, 10, 64); err == nil {
			return n
		}
	}
	return 0
}
