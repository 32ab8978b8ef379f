package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Secured via reverse proxy in production.
	CheckOrigin: func(r *http.Request) bool { return true },
}

const (
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 20 * time.Second
	wsWriteWait  = 10 * time.Second
)

// handleWS streams query progress over a WebSocket.
// GET /v1/stream/ws?query_id=<id>
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	queryID := r.URL.Query().Get("query_id")
	if queryID == "" {
		writeError(w, http.StatusBadRequest, "query_id is required")
		return
	}
	typeFilter := parseTypeFilter(r.URL.Query().Get("types"))
	lastID := parseLastEventID(r)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("WebSocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ch := s.streams.Subscribe(queryID, 256)
	defer s.streams.Unsubscribe(queryID, ch)

	for _, ev := range s.streams.ReplaySince(queryID, lastID) {
		if skipEvent(typeFilter, ev.Type) {
			continue
		}
		if err := conn.WriteJSON(ev); err != nil {
			return
		}
		if ev.Type == "final" || ev.Type == "error" {
			return
		}
	}

	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	// Reader pump discards client messages and surfaces disconnects.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, open := <-ch:
			if !open {
				return
			}
			if skipEvent(typeFilter, ev.Type) {
				continue
			}
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
			if ev.Type == "final" || ev.Type == "error" {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		}
	}
}
