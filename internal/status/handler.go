package status

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-realty-access/internal/session"
)

// Handler exposes the status checks of the request session.
type Handler struct {
	approvals     ApprovalLookup
	subscriptions SubscriptionLookup
	logger        *zap.SugaredLogger
}

func NewHandler(approvals ApprovalLookup, subscriptions SubscriptionLookup, logger *zap.SugaredLogger) *Handler {
	return &Handler{approvals: approvals, subscriptions: subscriptions, logger: logger}
}

func (h *Handler) Approval(w http.ResponseWriter, r *http.Request) {
	src := session.Static(session.FromContext(r.Context()))
	h.writeJSON(w, http.StatusOK, NewApprovalChecker(src, h.approvals, h.logger).Check(r.Context()))
}

func (h *Handler) RefetchApproval(w http.ResponseWriter, r *http.Request) {
	src := session.Static(session.FromContext(r.Context()))
	h.writeJSON(w, http.StatusOK, NewApprovalChecker(src, h.approvals, h.logger).Refetch(r.Context()))
}

func (h *Handler) Subscription(w http.ResponseWriter, r *http.Request) {
	src := session.Static(session.FromContext(r.Context()))
	h.writeJSON(w, http.StatusOK, NewSubscriptionChecker(src, h.subscriptions, h.logger).Check(r.Context()))
}

func (h *Handler) RefetchSubscription(w http.ResponseWriter, r *http.Request) {
	src := session.Static(session.FromContext(r.Context()))
	h.writeJSON(w, http.StatusOK, NewSubscriptionChecker(src, h.subscriptions, h.logger).Refetch(r.Context()))
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
