package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fieldline/copilot/internal/actions"
	"github.com/fieldline/copilot/internal/auth"
	"github.com/fieldline/copilot/internal/models"
)

type actionRequest struct {
	Action    models.Action     `json:"action"`
	SessionID string            `json:"session_id"`
	App       models.AppContext `json:"app"`
}

// handleExecuteAction runs one action through the validate, authorize,
// snapshot, execute, audit pipeline. Rejections come back as a 200 with
// Success false; the result carries the reason.
func (s *Server) handleExecuteAction(w http.ResponseWriter, r *http.Request) {
	var req actionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Action.Domain == "" || req.Action.Operation == "" {
		writeError(w, http.StatusBadRequest, "action domain and operation are required")
		return
	}
	if req.Action.ID == "" {
		req.Action.ID = uuid.NewString()
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

	result := s.actions.ExecuteAction(r.Context(), req.Action, reqCtx)
	if result.Success && reqCtx.Session.SessionID != "" {
		if err := s.contexts.Sessions().RecordExecutedAction(r.Context(), reqCtx.Session.SessionID, req.Action.ID); err != nil {
			s.logger.Debug("Executed action not recorded in session", zap.Error(err))
		}
	}
	writeJSON(w, http.StatusOK, result)
}

// handleRollback reverts a previously executed action.
func (s *Server) handleRollback(w http.ResponseWriter, r *http.Request) {
	actionID := r.PathValue("id")
	if actionID == "" {
		writeError(w, http.StatusBadRequest, "action id is required")
		return
	}

	result, err := s.actions.RollbackAction(r.Context(), actionID)
	if err != nil {
		switch {
		case errors.Is(err, actions.ErrActionNotFound):
			writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, actions.ErrAlreadyRolledBack),
			errors.Is(err, actions.ErrRollbackUnavailable),
			errors.Is(err, actions.ErrSnapshotMissing):
			writeError(w, http.StatusConflict, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleRecentActions lists the latest executed actions, newest first.
func (s *Server) handleRecentActions(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if q := r.URL.Query().Get("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"actions": s.actions.Recent(limit),
	})
}
