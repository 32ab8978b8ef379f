package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fieldline/copilot/internal/actions"
	"github.com/fieldline/copilot/internal/adapters"
	"github.com/fieldline/copilot/internal/adapters/customers"
	"github.com/fieldline/copilot/internal/adapters/tickets"
	"github.com/fieldline/copilot/internal/auth"
	"github.com/fieldline/copilot/internal/config"
	"github.com/fieldline/copilot/internal/contextmgr"
	"github.com/fieldline/copilot/internal/models"
	"github.com/fieldline/copilot/internal/nlp"
	"github.com/fieldline/copilot/internal/orchestrator"
	"github.com/fieldline/copilot/internal/session"
	"github.com/fieldline/copilot/internal/streaming"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	logger := zap.NewNop()

	mr := miniredis.RunT(t)
	sessions, err := session.NewManager(mr.Addr(), "", time.Hour, logger)
	require.NoError(t, err)
	t.Cleanup(func() { sessions.Close() })

	registry := adapters.NewRegistry(logger)
	require.NoError(t, registry.Register(customers.New(nil, logger)))
	require.NoError(t, registry.Register(tickets.New(nil, logger)))

	processor, err := nlp.NewProcessor(logger)
	require.NoError(t, err)

	queries := orchestrator.New(processor, registry, config.OrchestratorConfig{}, logger)
	actionOrch := actions.NewOrchestrator(registry, config.ActionsConfig{}, nil, nil, logger)
	contexts := contextmgr.NewManager(sessions, time.Second, 10, logger)

	jwt := auth.NewJWTManager("test-secret", time.Hour)
	authmw := auth.NewMiddleware(jwt, true, logger)

	return NewServer(
		queries,
		actionOrch,
		contexts,
		streaming.NewManager(64),
		authmw,
		nil,
		config.ServerConfig{RateLimitPerSec: 1000, RateLimitBurst: 100},
		logger,
	)
}

func postJSON(t *testing.T, handler http.Handler, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest("POST", path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestQueryEndpoint(t *testing.T) {
	router := newTestServer(t).Router()

	rec := postJSON(t, router, "/v1/query", queryRequest{
		Query:     "Show me customer C-1001",
		SessionID: "sess-1",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp models.UnifiedResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.QueryID)
	assert.Contains(t, resp.Domains, "customers")
	assert.Greater(t, resp.Confidence, 0.0)
}

func TestQueryEndpointRejectsEmptyQuery(t *testing.T) {
	router := newTestServer(t).Router()

	rec := postJSON(t, router, "/v1/query", queryRequest{SessionID: "sess-1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStreamingQueryPublishesChunks(t *testing.T) {
	srv := newTestServer(t)
	router := srv.Router()

	rec := postJSON(t, router, "/v1/query", queryRequest{
		Query:     "Show me customer C-1001",
		SessionID: "sess-1",
		Stream:    true,
	})
	require.Equal(t, http.StatusAccepted, rec.Code)

	var started streamStartedResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &started))
	require.NotEmpty(t, started.QueryID)

	// Poll the replay buffer until the background pipeline finishes.
	deadline := time.Now().Add(5 * time.Second)
	var events []streaming.Event
	for time.Now().Before(deadline) {
		events = srv.streams.ReplaySince(started.QueryID, 0)
		if len(events) > 0 && events[len(events)-1].Type == "final" {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	require.NotEmpty(t, events)
	assert.Equal(t, "processing", events[0].Type)
	assert.Equal(t, "final", events[len(events)-1].Type)

	// the id clients subscribed under names the final response too
	chunk, ok := events[len(events)-1].Payload.(models.StreamChunk)
	require.True(t, ok)
	require.NotNil(t, chunk.Response)
	assert.Equal(t, started.QueryID, chunk.Response.QueryID)
}

func TestStreamHistoryDroppedAfterRetention(t *testing.T) {
	srv := newTestServer(t)
	srv.streamRetention = 20 * time.Millisecond
	router := srv.Router()

	rec := postJSON(t, router, "/v1/query", queryRequest{
		Query:     "Show me customer C-1001",
		SessionID: "sess-1",
		Stream:    true,
	})
	require.Equal(t, http.StatusAccepted, rec.Code)

	var started streamStartedResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &started))

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		events := srv.streams.ReplaySince(started.QueryID, 0)
		if len(events) > 0 && events[len(events)-1].Type == "final" {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	for time.Now().Before(deadline) {
		if len(srv.streams.ReplaySince(started.QueryID, 0)) == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("finished stream history never dropped")
}

func TestQueryRecordsActiveIntent(t *testing.T) {
	srv := newTestServer(t)
	router := srv.Router()

	rec := postJSON(t, router, "/v1/query", queryRequest{
		Query:     "Show me customer C-1001",
		SessionID: "sess-intents",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	sess, err := srv.contexts.Sessions().Get(context.Background(), "sess-intents")
	require.NoError(t, err)
	require.NotEmpty(t, sess.ActiveIntents)
	assert.Equal(t, models.IntentQuery, sess.ActiveIntents[0].Type)
	assert.Equal(t, "customers", sess.ActiveIntents[0].Domain)
}

func TestSSEReplaysFinishedStream(t *testing.T) {
	srv := newTestServer(t)
	router := srv.Router()

	srv.streams.Publish("q-done", streaming.Event{Type: "processing"})
	srv.streams.Publish("q-done", streaming.Event{Type: "final"})

	req := httptest.NewRequest("GET", "/v1/stream/sse?query_id=q-done", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "event: processing")
	assert.Contains(t, body, "event: final")
	assert.Contains(t, body, "id: 2")
}

func TestSSERequiresQueryID(t *testing.T) {
	router := newTestServer(t).Router()

	req := httptest.NewRequest("GET", "/v1/stream/sse", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExecuteActionEndpoint(t *testing.T) {
	router := newTestServer(t).Router()

	rec := postJSON(t, router, "/v1/actions", actionRequest{
		SessionID: "sess-1",
		Action: models.Action{
			Type:       models.ActionCreate,
			Domain:     "tickets",
			Operation:  "create ticket",
			Confidence: 0.9,
			Payload: map[string]interface{}{
				"customer_id": "C-1001",
				"description": "Water heater still leaking after visit",
			},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var result models.ActionResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.True(t, result.Success)
	assert.True(t, result.RollbackAvailable)
}

func TestRollbackUnknownAction(t *testing.T) {
	router := newTestServer(t).Router()

	rec := postJSON(t, router, "/v1/actions/nope/rollback", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRecentActionsEndpoint(t *testing.T) {
	router := newTestServer(t).Router()

	req := httptest.NewRequest("GET", "/v1/actions/recent?limit=5", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "actions")
}

func TestListAdaptersEndpoint(t *testing.T) {
	router := newTestServer(t).Router()

	req := httptest.NewRequest("GET", "/v1/adapters", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Adapters []adapterInfo `json:"adapters"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Adapters, 2)
	assert.Equal(t, "customers", resp.Adapters[0].Domain)
	assert.NotEmpty(t, resp.Adapters[0].Examples)
}

func TestAdapterHealthEndpoint(t *testing.T) {
	router := newTestServer(t).Router()

	req := httptest.NewRequest("GET", "/v1/adapters/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "customers")
}

func TestRateLimiting(t *testing.T) {
	srv := newTestServer(t)
	srv.limiter.SetLimit(1)
	srv.limiter.SetBurst(1)
	router := srv.Router()

	first := httptest.NewRequest("GET", "/v1/adapters/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, first)
	require.Equal(t, http.StatusOK, rec.Code)

	second := httptest.NewRequest("GET", "/v1/adapters/health", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, second)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestAuthRequiredWithoutSkip(t *testing.T) {
	srv := newTestServer(t)
	jwt := auth.NewJWTManager("test-secret", time.Hour)
	srv.authmw = auth.NewMiddleware(jwt, false, zap.NewNop())
	router := srv.Router()

	req := httptest.NewRequest("GET", "/v1/adapters/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	token, err := jwt.GenerateToken("op-1", "operator", nil)
	require.NoError(t, err)
	req = httptest.NewRequest("GET", "/v1/adapters/health", nil)
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", token))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
