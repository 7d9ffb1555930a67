package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"database/sql"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ovaphlow/pitchfork/service-realty-access/internal/auth/repo"
	"github.com/ovaphlow/pitchfork/service-realty-access/internal/session"
	"github.com/ovaphlow/pitchfork/service-realty-access/internal/user/entity"
)

var (
	ErrInvalidToken   = errors.New("invalid token")
	ErrInvalidRefresh = errors.New("invalid refresh token")
)

// RefreshStore persists refresh sessions keyed by token hash. Delete returns
// sql.ErrNoRows when there was nothing to delete.
type RefreshStore interface {
	Save(ctx context.Context, tokenHash string, userID int64, clientID string, expiresAt time.Time) (int64, error)
	Get(ctx context.Context, tokenHash string) (repo.RefreshRow, error)
	Delete(ctx context.Context, tokenHash string) error
}

// TokenService signs access tokens and manages refresh sessions.
type TokenService struct {
	key        *rsa.PrivateKey
	kid        string
	issuer     string
	audience   string
	accessTTL  time.Duration
	refreshTTL time.Duration
	store      RefreshStore
	now        func() time.Time
}

func NewTokenService(store RefreshStore, cfg Config) (*TokenService, error) {
	k, err := loadSigningKey(cfg.SigningKeyFile)
	if err != nil {
		return nil, err
	}
	// kid is base64 of the SHA256 of the public key
	pubBytes, _ := json.Marshal(k.PublicKey)
	h := sha256.Sum256(pubBytes)
	kid := base64.RawURLEncoding.EncodeToString(h[:8])
	return &TokenService{
		key:        k,
		kid:        kid,
		issuer:     cfg.Issuer,
		audience:   cfg.Audience,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		store:      store,
		now:        time.Now,
	}, nil
}

func loadSigningKey(path string) (*rsa.PrivateKey, error) {
	if path == "" {
		return rsa.GenerateKey(rand.Reader, 2048)
	}
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read signing key: %w", err)
	}
	k, err := jwt.ParseRSAPrivateKeyFromPEM(pem)
	if err != nil {
		return nil, fmt.Errorf("parse signing key: %w", err)
	}
	return k, nil
}

// AccessTTL is the lifetime of issued access tokens.
func (s *TokenService) AccessTTL() time.Duration { return s.accessTTL }

// IssueTokens creates an access token and a persisted opaque refresh token for u.
func (s *TokenService) IssueTokens(ctx context.Context, u *entity.MinimalAuthView) (accessToken string, refreshToken string, err error) {
	now := s.now()
	userType := string(session.UserTypeClient)
	if u.UserType != nil {
		userType = *u.UserType
	}
	claims := AccessClaims{
		UserType: userType,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   strconv.FormatInt(u.ID, 10),
			Audience:  jwt.ClaimStrings{s.audience},
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	access := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	access.Header["kid"] = s.kid
	signedAccess, err := access.SignedString(s.key)
	if err != nil {
		return "", "", err
	}

	rtBytes := make([]byte, 32)
	if _, err := rand.Read(rtBytes); err != nil {
		return "", "", err
	}
	refresh := base64.RawURLEncoding.EncodeToString(rtBytes)
	if _, err := s.store.Save(ctx, HashToken(refresh), u.ID, s.audience, now.Add(s.refreshTTL)); err != nil {
		return "", "", fmt.Errorf("save refresh session: %w", err)
	}
	return signedAccess, refresh, nil
}

// VerifyAccessToken checks signature, issuer, audience and expiry and returns
// the identity the token was issued for.
func (s *TokenService) VerifyAccessToken(token string) (session.Identity, error) {
	claims := &AccessClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return &s.key.PublicKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return session.Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	ut := session.UserType(claims.UserType)
	if claims.Subject == "" || !ut.Valid() {
		return session.Identity{}, fmt.Errorf("%w: missing subject or user type", ErrInvalidToken)
	}
	return session.Identity{ID: claims.Subject, UserType: ut}, nil
}

// ValidateRefreshToken checks an opaque refresh token and returns the session if valid.
func (s *TokenService) ValidateRefreshToken(ctx context.Context, token string) (*RefreshSession, bool) {
	row, err := s.store.Get(ctx, HashToken(token))
	if err != nil {
		return nil, false
	}
	rs := RefreshSession(row)
	if rs.ExpiresAt.Before(s.now()) {
		return nil, false
	}
	return &rs, true
}

// RevokeRefreshToken removes a refresh token from store. A token that is
// unknown or already revoked yields ErrInvalidRefresh.
func (s *TokenService) RevokeRefreshToken(ctx context.Context, token string) error {
	err := s.store.Delete(ctx, HashToken(token))
	if errors.Is(err, sql.ErrNoRows) {
		return ErrInvalidRefresh
	}
	return err
}

// HashToken returns the hex SHA256 of an opaque token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
