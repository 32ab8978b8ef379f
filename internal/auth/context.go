package auth

import (
	"context"
	"errors"

	"github.com/fieldline/copilot/internal/models"
)

type contextKey string

const userContextKey contextKey = "user"

// ErrNoUserContext is returned when a request carries no operator identity.
var ErrNoUserContext = errors.New("no user context")

// WithUserContext attaches the operator identity to the request context.
func WithUserContext(ctx context.Context, user *models.UserContext) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// GetUserContext extracts the operator identity from the request context.
func GetUserContext(ctx context.Context) (*models.UserContext, error) {
	user, ok := ctx.Value(userContextKey).(*models.UserContext)
	if !ok || user == nil {
		return nil, ErrNoUserContext
	}
	return user, nil
}
