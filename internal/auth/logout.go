package auth

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-realty-access/internal/session"
)

// RefreshCookieName carries the opaque refresh token, scoped to the auth API.
const (
	RefreshCookieName = "realty_refresh"
	refreshCookiePath = "/api/auth"
)

// Revoker ends a refresh session.
type Revoker interface {
	RevokeRefreshToken(ctx context.Context, token string) error
}

// Logout tears down the session of a browser and reloads it.
type Logout struct {
	tokens   Revoker
	reloadTo string
	secure   bool
	logger   *zap.SugaredLogger
}

func NewLogout(tokens Revoker, cfg Config, logger *zap.SugaredLogger) *Logout {
	return &Logout{tokens: tokens, reloadTo: cfg.ReloadPath, secure: cfg.SecureCookies, logger: logger}
}

// Force signs out and then always reloads, whether or not the sign out
// succeeded or there was anything to sign out.
func (l *Logout) Force(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(RefreshCookieName); err == nil && c.Value != "" {
		if err := l.tokens.RevokeRefreshToken(r.Context(), c.Value); err != nil && !errors.Is(err, ErrInvalidRefresh) {
			l.logger.Warnw("refresh revoke failed", "err", err)
		}
	}
	clearCookies(w, l.secure)
	w.Header().Set("Clear-Site-Data", `"cookies"`)
	w.Header().Set("Cache-Control", "no-store")
	http.Redirect(w, r, l.reloadTo, http.StatusSeeOther)
}

func setCookies(w http.ResponseWriter, access, refresh string, accessMaxAge, refreshMaxAge int, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name: session.CookieName, Value: access, Path: "/", MaxAge: accessMaxAge,
		HttpOnly: true, Secure: secure, SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name: RefreshCookieName, Value: refresh, Path: refreshCookiePath, MaxAge: refreshMaxAge,
		HttpOnly: true, Secure: secure, SameSite: http.SameSiteStrictMode,
	})
}

func clearCookies(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{Name: session.CookieName, Path: "/", MaxAge: -1, HttpOnly: true, Secure: secure})
	http.SetCookie(w, &http.Cookie{Name: RefreshCookieName, Path: refreshCookiePath, MaxAge: -1, HttpOnly: true, Secure: secure})
}
