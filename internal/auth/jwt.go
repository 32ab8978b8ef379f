package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/fieldline/copilot/internal/models"
)

// JWTManager validates bearer tokens issued by the CRM's auth subsystem
// and mints tokens in tests and development.
type JWTManager struct {
	signingKey []byte
	expiry     time.Duration
	issuer     string
}

// NewJWTManager creates a manager for HS256 tokens.
func NewJWTManager(signingKey string, expiry time.Duration) *JWTManager {
	return &JWTManager{
		signingKey: []byte(signingKey),
		expiry:     expiry,
		issuer:     "fieldline-crm",
	}
}

// Claims carries the operator identity the CRM encodes in its tokens.
type Claims struct {
	jwt.RegisteredClaims
	Role        string   `json:"role"`
	Permissions []string `json:"permissions,omitempty"`
}

// GenerateToken mints a signed token for the given operator.
func (j *JWTManager) GenerateToken(userID, role string, permissions []string) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    j.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(j.expiry)),
			NotBefore: jwt.NewNumericDate(now),
			ID:        uuid.New().String(),
		},
		Role:        role,
		Permissions: permissions,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(j.signingKey)
}

// ValidateToken parses and validates a token, returning the operator context.
func (j *JWTManager) ValidateToken(tokenString string) (*models.UserContext, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return j.signingKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}

	return &models.UserContext{
		ID:          claims.Subject,
		Role:        claims.Role,
		Permissions: claims.Permissions,
	}, nil
}
