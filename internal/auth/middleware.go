package auth

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/fieldline/copilot/internal/models"
)

// Middleware authenticates HTTP requests with bearer tokens.
type Middleware struct {
	jwtManager *JWTManager
	skipAuth   bool // development only
	logger     *zap.Logger
}

// NewMiddleware creates the authentication middleware. With skipAuth set
// every request runs as a default development operator.
func NewMiddleware(jwtManager *JWTManager, skipAuth bool, logger *zap.Logger) *Middleware {
	return &Middleware{jwtManager: jwtManager, skipAuth: skipAuth, logger: logger}
}

// Handler wraps next with bearer-token authentication.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.skipAuth {
			ctx := WithUserContext(r.Context(), &models.UserContext{
				ID:   "dev-operator",
				Role: RoleAdmin,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		token := bearerToken(r)
		if token == "" {
			http.Error(w, `{"error":"missing bearer token"}`, http.StatusUnauthorized)
			return
		}

		user, err := m.jwtManager.ValidateToken(token)
		if err != nil {
			m.logger.Debug("Token validation failed", zap.Error(err))
			http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
			return
		}

		ctx := WithUserContext(r.Context(), user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// bearerToken extracts the token from the Authorization header, falling
// back to the access_token query parameter for SSE clients that cannot
// set headers.
func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	if strings.Contains(r.URL.Path, "/stream/") {
		return r.URL.Query().Get("access_token")
	}
	return ""
}
