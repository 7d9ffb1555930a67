package user

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-realty-access/internal/session"
)

// ProfileCreator writes the initial profile of a new account.
type ProfileCreator interface {
	Create(ctx context.Context, userID int64, fullName *string, role string) error
}

// SignupTracker records sign-ups in analytics.
type SignupTracker interface {
	TrackSignUp(ctx context.Context, userType string)
}

// Handler exposes HTTP endpoints for user operations.
type Handler struct {
	svc      *UserService
	profiles ProfileCreator
	tracker  SignupTracker
	logger   *zap.SugaredLogger
}

func NewHandler(svc *UserService, profiles ProfileCreator, tracker SignupTracker, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, profiles: profiles, tracker: tracker, logger: logger}
}

// SignupRequest request body for signup endpoint.
type SignupRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
	UserType string `json:"user_type"`
}

// maxSignupBody caps a signup payload.
const maxSignupBody = 8 << 10

// SignupResponse response body containing new user id.
type SignupResponse struct {
	ID int64 `json:"id"`
}

func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxSignupBody)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Debugw("invalid signup payload", "err", err)
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	userType := session.UserType(req.UserType)
	if userType == "" {
		userType = session.UserTypeClient
	}
	id, err := h.svc.SignupUser(r.Context(), SignupInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		UserType: userType,
	})
	if err != nil {
		if errors.Is(err, ErrInvalidSignup) {
			h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		h.logger.Warnw("signup failed", "err", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "signup failed"})
		return
	}

	// a missing profile only delays role checks, so the signup still succeeds
	var fullName *string
	if req.FullName != "" {
		fullName = &req.FullName
	}
	if err := h.profiles.Create(r.Context(), id, fullName, string(userType)); err != nil {
		h.logger.Warnw("profile create failed", "user_id", id, "err", err)
	}
	h.tracker.TrackSignUp(r.Context(), string(userType))
	h.writeJSON(w, http.StatusCreated, SignupResponse{ID: id})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
