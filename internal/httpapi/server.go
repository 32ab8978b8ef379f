// Package httpapi exposes the orchestration pipeline over HTTP: query
// processing, streaming, action execution, and adapter health.
package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fieldline/copilot/internal/actions"
	"github.com/fieldline/copilot/internal/auth"
	"github.com/fieldline/copilot/internal/config"
	"github.com/fieldline/copilot/internal/contextmgr"
	"github.com/fieldline/copilot/internal/health"
	"github.com/fieldline/copilot/internal/orchestrator"
	"github.com/fieldline/copilot/internal/streaming"
	"github.com/fieldline/copilot/internal/tracing"
)

// Server holds the handler dependencies.
type Server struct {
	queries  *orchestrator.Orchestrator
	actions  *actions.Orchestrator
	contexts *contextmgr.Manager
	streams  *streaming.Manager
	authmw   *auth.Middleware
	healthh  *health.Handler
	limiter  *rate.Limiter
	logger   *zap.Logger

	// how long a finished stream's history stays replayable for
	// Last-Event-ID reconnects before it is dropped
	streamRetention time.Duration
}

func NewServer(
	queries *orchestrator.Orchestrator,
	actionOrch *actions.Orchestrator,
	contexts *contextmgr.Manager,
	streams *streaming.Manager,
	authmw *auth.Middleware,
	healthHandler *health.Handler,
	cfg config.ServerConfig,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	limit := rate.Limit(cfg.RateLimitPerSec)
	if limit <= 0 {
		limit = rate.Inf
	}
	burst := cfg.RateLimitBurst
	if burst <= 0 {
		burst = 50
	}
	return &Server{
		queries:         queries,
		actions:         actionOrch,
		contexts:        contexts,
		streams:         streams,
		authmw:          authmw,
		healthh:         healthHandler,
		limiter:         rate.NewLimiter(limit, burst),
		logger:          logger,
		streamRetention: 30 * time.Second,
	}
}

// ApplyConfig picks up reloaded rate limit settings.
func (s *Server) ApplyConfig(cfg config.ServerConfig) {
	limit := rate.Limit(cfg.RateLimitPerSec)
	if limit <= 0 {
		limit = rate.Inf
	}
	s.limiter.SetLimit(limit)
	if cfg.RateLimitBurst > 0 {
		s.limiter.SetBurst(cfg.RateLimitBurst)
	}
}

// Router builds the HTTP handler tree. Health endpoints skip auth and
// rate limiting so probes keep working under load.
func (s *Server) Router() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("POST /v1/query", s.handleQuery)
	api.HandleFunc("GET /v1/stream/sse", s.handleSSE)
	api.HandleFunc("GET /v1/stream/ws", s.handleWS)
	api.HandleFunc("POST /v1/actions", s.handleExecuteAction)
	api.HandleFunc("POST /v1/actions/{id}/rollback", s.handleRollback)
	api.HandleFunc("GET /v1/actions/recent", s.handleRecentActions)
	api.HandleFunc("GET /v1/adapters", s.handleListAdapters)
	api.HandleFunc("GET /v1/adapters/health", s.handleAdapterHealth)

	root := http.NewServeMux()
	if s.healthh != nil {
		s.healthh.Register(root)
	}
	root.Handle("/v1/", s.traceContext(s.rateLimit(s.authmw.Handler(api))))
	return root
}

// traceContext continues traces started by the caller via the W3C
// traceparent header.
func (s *Server) traceContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if tp := r.Header.Get("traceparent"); tp != "" {
			r = r.WithContext(tracing.ExtractTraceparent(r.Context(), tp))
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
