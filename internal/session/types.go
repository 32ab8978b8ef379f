package session

import (
	"errors"
	"time"

	"github.com/fieldline/copilot/internal/models"
)

var (
	// ErrSessionNotFound is returned when a session doesn't exist.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionExpired is returned when a session has expired.
	ErrSessionExpired = errors.New("session expired")
)

// Session is one operator conversation with the copilot. It feeds the
// session portion of the request Context.
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	ExpiresAt time.Time `json:"expires_at"`

	History         []models.ConversationMessage `json:"history,omitempty"`
	ActiveIntents   []models.Intent              `json:"active_intents,omitempty"`
	PendingActions  []models.Action              `json:"pending_actions,omitempty"`
	ExecutedActions []string                     `json:"executed_actions,omitempty"`
}

// IsExpired reports whether the session has passed its expiry.
func (s *Session) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}

// Snapshot converts the session into the Context's session view.
func (s *Session) Snapshot() models.SessionContext {
	return models.SessionContext{
		SessionID:       s.ID,
		History:         s.History,
		ActiveIntents:   s.ActiveIntents,
		PendingActions:  s.PendingActions,
		ExecutedActions: s.ExecutedActions,
	}
}
