package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-realty-access/internal/user"
	"github.com/ovaphlow/pitchfork/service-realty-access/internal/user/entity"
)

// Authenticator checks credentials and loads accounts.
type Authenticator interface {
	AuthenticatePassword(ctx context.Context, identifier, password string) (*entity.MinimalAuthView, error)
	// GetActiveAuthView fails with user.ErrLocked or user.ErrDisabled for
	// accounts that may no longer sign in.
	GetActiveAuthView(ctx context.Context, id int64) (*entity.MinimalAuthView, error)
}

// LoginTracker records sign-ins in analytics.
type LoginTracker interface {
	TrackLogin(ctx context.Context, method string)
}

type Handler struct {
	tokens  *TokenService
	users   Authenticator
	logout  *Logout
	tracker LoginTracker
	secure  bool
	refresh int
	logger  *zap.SugaredLogger
}

func NewHandler(tokens *TokenService, users Authenticator, logout *Logout, tracker LoginTracker, cfg Config, logger *zap.SugaredLogger) *Handler {
	return &Handler{
		tokens:  tokens,
		users:   users,
		logout:  logout,
		tracker: tracker,
		secure:  cfg.SecureCookies,
		refresh: int(cfg.RefreshTTL.Seconds()),
		logger:  logger,
	}
}

// maxAuthBody caps sign-in and refresh payloads.
const maxAuthBody = 4 << 10

// SignInRequest login payload.
type SignInRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

// TokenResponse is returned by sign-in and refresh.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	UserType     string `json:"user_type"`
}

func (h *Handler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req SignInRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxAuthBody)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Debugw("invalid signin payload", "err", err)
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	view, err := h.users.AuthenticatePassword(r.Context(), req.Identifier, req.Password)
	if err != nil {
		h.logger.Debugw("signin failed", "err", err)
		switch {
		case errors.Is(err, user.ErrBadCredentials), errors.Is(err, user.ErrMustResetPassword):
			h.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
		case errors.Is(err, user.ErrLocked):
			h.writeJSON(w, http.StatusForbidden, map[string]string{"error": "account locked"})
		case errors.Is(err, user.ErrDisabled):
			h.writeJSON(w, http.StatusForbidden, map[string]string{"error": "account disabled"})
		default:
			h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "signin failed"})
		}
		return
	}
	if !h.issue(w, r, view) {
		return
	}
	h.tracker.TrackLogin(r.Context(), "password")
}

// RefreshRequest carries the refresh token for non-browser clients.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	rt := ""
	if c, err := r.Cookie(RefreshCookieName); err == nil {
		rt = strings.TrimSpace(c.Value)
	}
	if rt == "" {
		var req RefreshRequest
		r.Body = http.MaxBytesReader(w, r.Body, maxAuthBody)
		_ = json.NewDecoder(r.Body).Decode(&req)
		rt = strings.TrimSpace(req.RefreshToken)
	}
	if rt == "" {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_request"})
		return
	}
	rs, ok := h.tokens.ValidateRefreshToken(r.Context(), rt)
	if !ok {
		h.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid_grant"})
		return
	}
	view, err := h.users.GetActiveAuthView(r.Context(), rs.UserID)
	if err != nil {
		h.logger.Debugw("refresh refused", "user_id", rs.UserID, "err", err)
		if errors.Is(err, user.ErrLocked) || errors.Is(err, user.ErrDisabled) {
			if err := h.tokens.RevokeRefreshToken(r.Context(), rt); err != nil {
				h.logger.Debugw("refresh revoke failed", "user_id", rs.UserID, "err", err)
			}
		}
		h.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid_grant"})
		return
	}
	// rotate: revoke old before issuing new. A revoke that finds nothing means
	// another request already used this token.
	if err := h.tokens.RevokeRefreshToken(r.Context(), rt); err != nil {
		h.logger.Warnw("refresh rotation failed", "user_id", rs.UserID, "err", err)
		h.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid_grant"})
		return
	}
	h.issue(w, r, view)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	h.logout.Force(w, r)
}

func (h *Handler) issue(w http.ResponseWriter, r *http.Request, view *entity.MinimalAuthView) bool {
	access, refresh, err := h.tokens.IssueTokens(r.Context(), view)
	if err != nil {
		h.logger.Errorw("issue tokens failed", "user_id", view.ID, "err", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "server_error"})
		return false
	}
	expiresIn := int(h.tokens.AccessTTL().Seconds())
	setCookies(w, access, refresh, expiresIn, h.refresh, h.secure)
	userType := ""
	if view.UserType != nil {
		userType = *view.UserType
	}
	h.writeJSON(w, http.StatusOK, TokenResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    expiresIn,
		UserType:     userType,
	})
	return true
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
