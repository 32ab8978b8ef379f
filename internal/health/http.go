package health

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

// Handler serves the liveness and readiness endpoints.
type Handler struct {
	manager *Manager
	logger  *zap.Logger
}

func NewHandler(manager *Manager, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{manager: manager, logger: logger}
}

// Register mounts the endpoints on the mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", h.Liveness)
	mux.HandleFunc("/readyz", h.Readiness)
}

// Liveness reports that the process is up. It never probes
// dependencies; a wedged dependency must not get the process killed.
func (h *Handler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Readiness runs the full dependency check set. 503 when a critical
// dependency is down.
func (h *Handler) Readiness(w http.ResponseWriter, r *http.Request) {
	report := h.manager.Run(r.Context())

	status := http.StatusOK
	if !report.Ready {
		status = http.StatusServiceUnavailable
		h.logger.Warn("Readiness check failed", zap.String("message", report.Message))
	}
	writeJSON(w, status, report)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
