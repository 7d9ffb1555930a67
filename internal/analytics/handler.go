package analytics

import (
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"
)

// maxTrackBody caps a posted event with its params.
const maxTrackBody = 8 << 10

type Handler struct {
	tracker *Tracker
	logger  *zap.SugaredLogger
}

func NewHandler(tracker *Tracker, logger *zap.SugaredLogger) *Handler {
	return &Handler{tracker: tracker, logger: logger}
}

// TrackRequest is posted by the front-end for client side events.
type TrackRequest struct {
	Event  string         `json:"event"`
	Params map[string]any `json:"params"`
}

// Track accepts an event and answers 202 without waiting for delivery.
func (h *Handler) Track(w http.ResponseWriter, r *http.Request) {
	var req TrackRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxTrackBody)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Event == "" {
		h.logger.Debugw("invalid track payload", "err", err)
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	ctx := r.Context()
	p := req.Params
	switch req.Event {
	case "page_view":
		h.tracker.TrackPageView(ctx, str(p, "page_path"), str(p, "page_title"))
	case "property_view":
		price, _ := p["value"].(float64)
		h.tracker.TrackPropertyView(ctx, str(p, "property_id"), str(p, "property_type"), price)
	case "search":
		h.tracker.TrackPropertySearch(ctx, str(p, "search_term"), p)
	case "agent_contact":
		h.tracker.TrackAgentContact(ctx, str(p, "agent_id"), str(p, "contact_method"))
	default:
		h.tracker.TrackEvent(ctx, req.Event, p)
	}
	w.WriteHeader(http.StatusAccepted)
}

func str(p map[string]any, key string) string {
	v, ok := p[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
