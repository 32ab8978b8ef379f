package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fieldline/copilot/internal/auth"
	"github.com/fieldline/copilot/internal/models"
	"github.com/fieldline/copilot/internal/streaming"
)

// streamDeadline bounds background work for an abandoned stream.
const streamDeadline = 2 * time.Minute

type queryRequest struct {
	Query     string            `json:"query"`
	SessionID string            `json:"session_id"`
	App       models.AppContext `json:"app"`
	Stream    bool              `json:"stream"`
}

type streamStartedResponse struct {
	QueryID   string `json:"query_id"`
	StreamURL string `json:"stream_url"`
}

// handleQuery runs one natural-language query through the pipeline.
// With "stream": true it starts the work in the background and returns
// the id to follow on /v1/stream/sse.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	user, err := auth.GetUserContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "no user context")
		return
	}

	reqCtx, err := s.contexts.Build(r.Context(), user, req.SessionID, req.App)
	if err != nil {
		s.logger.Error("Context build failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "context build failed")
		return
	}

	s.recordMessage(r.Context(), reqCtx.Session.SessionID, "user", req.Query)

	if req.Stream {
		queryID := uuid.NewString()
		go s.runStream(queryID, req.Query, reqCtx)
		writeJSON(w, http.StatusAccepted, streamStartedResponse{
			QueryID:   queryID,
			StreamURL: "/v1/stream/sse?query_id=" + queryID,
		})
		return
	}

	resp := s.queries.ProcessQuery(r.Context(), req.Query, reqCtx)
	s.recordIntent(r.Context(), reqCtx.Session.SessionID, resp)
	s.recordMessage(r.Context(), reqCtx.Session.SessionID, "assistant", responseSummary(resp))
	writeJSON(w, http.StatusOK, resp)
}

// runStream drains the orchestrator's chunk stream into the pub/sub
// manager so SSE and WebSocket clients can follow along or reconnect.
// Once the stream ends its history stays replayable for streamRetention
// and is then dropped.
func (s *Server) runStream(queryID, query string, reqCtx *models.Context) {
	ctx, cancel := context.WithTimeout(context.Background(), streamDeadline)
	defer cancel()

	for chunk := range s.queries.StreamQuery(ctx, queryID, query, reqCtx) {
		s.streams.Publish(queryID, streaming.Event{
			Type:    chunk.Type,
			Payload: chunk,
		})
		if chunk.Type == "final" && chunk.Response != nil {
			s.recordIntent(ctx, reqCtx.Session.SessionID, chunk.Response)
			s.recordMessage(ctx, reqCtx.Session.SessionID, "assistant", responseSummary(chunk.Response))
		}
	}

	time.AfterFunc(s.streamRetention, func() { s.streams.Forget(queryID) })
}

// recordIntent tracks the classified intent as active for the session.
func (s *Server) recordIntent(ctx context.Context, sessionID string, resp *models.UnifiedResponse) {
	if sessionID == "" || resp == nil || resp.ErrorCode != "" || resp.IntentType == "" {
		return
	}
	err := s.contexts.Sessions().RecordIntent(ctx, sessionID, models.Intent{
		ID:         resp.QueryID,
		Type:       resp.IntentType,
		Domain:     resp.Domain,
		Operation:  resp.Operation,
		Confidence: resp.Confidence,
	})
	if err != nil {
		s.logger.Debug("Active intent not recorded", zap.Error(err))
	}
}

func (s *Server) recordMessage(ctx context.Context, sessionID, role, content string) {
	if sessionID == "" || content == "" {
		return
	}
	err := s.contexts.Sessions().AddMessage(ctx, sessionID, models.ConversationMessage{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		s.logger.Debug("Conversation message not recorded", zap.Error(err))
	}
}

func responseSummary(resp *models.UnifiedResponse) string {
	if resp == nil {
		return ""
	}
	if len(resp.Insights) > 0 {
		return resp.Insights[0]
	}
	if len(resp.Errors) > 0 {
		return resp.Errors[0]
	}
	return ""
}
