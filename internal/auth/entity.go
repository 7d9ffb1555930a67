package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// RefreshSession represents a persisted refresh session.
type RefreshSession struct {
	ID        int64
	UserID    int64
	ClientID  string
	ExpiresAt time.Time
}

// AccessClaims are the claims of an access token.
type AccessClaims struct {
	UserType string `json:"user_type"`
	jwt.RegisteredClaims
}
