package session

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// CookieName carries the access token for browser clients.
const CookieName = "realty_session"

// TokenVerifier turns an access token into the Identity it was issued for.
type TokenVerifier interface {
	VerifyAccessToken(token string) (Identity, error)
}

// ProfileLookup loads the profile of a user. It returns nil, nil when the
// profile row does not exist yet.
type ProfileLookup interface {
	FindByUserID(ctx context.Context, userID string) (*Profile, error)
}

// Resolver builds the Session for an incoming request.
type Resolver struct {
	tokens   TokenVerifier
	profiles ProfileLookup
	logger   *zap.SugaredLogger
}

func NewResolver(tokens TokenVerifier, profiles ProfileLookup, logger *zap.SugaredLogger) *Resolver {
	return &Resolver{tokens: tokens, profiles: profiles, logger: logger}
}

// Resolve always returns a settled session. Missing or invalid credentials
// yield the anonymous session; a failed profile load leaves Profile nil.
func (r *Resolver) Resolve(req *http.Request) Session {
	token := bearerToken(req)
	if token == "" {
		return Session{}
	}
	id, err := r.tokens.VerifyAccessToken(token)
	if err != nil {
		r.logger.Debugw("access token rejected", "err", err)
		return Session{}
	}
	s := Session{User: &id}
	if r.profiles == nil {
		return s
	}
	p, err := r.profiles.FindByUserID(req.Context(), id.ID)
	if err != nil {
		r.logger.Warnw("profile lookup failed", "user_id", id.ID, "err", err)
		return s
	}
	s.Profile = p
	return s
}

// Middleware resolves the session once per request and stores it on the context.
func (r *Resolver) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			s := r.Resolve(req)
			next.ServeHTTP(w, req.WithContext(WithSession(req.Context(), s)))
		})
	}
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if len(auth) > len("bearer ") && strings.EqualFold(auth[:len("bearer ")], "bearer ") {
		return strings.TrimSpace(auth[len("bearer "):])
	}
	if c, err := r.Cookie(CookieName); err == nil {
		return strings.TrimSpace(c.Value)
	}
	return ""
}
