package middleware

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"fleet/internal/domain"
)

// ErrInvalidToken is returned for a token that fails signature, expiry or claim checks.
var ErrInvalidToken = errors.New("invalid token")

// AccessClaims are the claims carried by an access token.
type AccessClaims struct {
	jwt.RegisteredClaims
	Role   string `json:"role"` // admin | driver | customer
	UserID string `json:"user_id"`
}

// JWTManager issues and verifies HS256 access tokens.
type JWTManager struct {
	signingKey []byte
	accessTTL  time.Duration
}

// NewJWTManager creates a new JWTManager.
func NewJWTManager(signingKey string, accessTTL time.Duration) *JWTManager {
	return &JWTManager{signingKey: []byte(signingKey), accessTTL: accessTTL}
}

// Issue signs an access token for actor.
func (m *JWTManager) Issue(actor domain.Actor) (string, error) {
	now := time.Now()
	claims := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.accessTTL)),
		},
		Role:   string(actor.Role),
		UserID: actor.ID,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.signingKey)
}

// Parse verifies tokenStr and returns the actor it was issued to.
func (m *JWTManager) Parse(tokenStr string) (domain.Actor, error) {
	tok, err := jwt.ParseWithClaims(tokenStr, &AccessClaims{}, func(token *jwt.Token) (any, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return m.signingKey, nil
	})
	if err != nil {
		return domain.Actor{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := tok.Claims.(*AccessClaims)
	if !ok || !tok.Valid {
		return domain.Actor{}, ErrInvalidToken
	}

	id := claims.UserID
	if id == "" {
		id = claims.Subject
	}
	role := domain.Role(claims.Role)
	if id == "" || !role.Valid() {
		return domain.Actor{}, ErrInvalidToken
	}
	return domain.Actor{ID: id, Role: role}, nil
}
