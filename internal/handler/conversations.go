package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/zyeon-ai/realtime-gateway/internal/middleware"
	"github.com/zyeon-ai/realtime-gateway/internal/model"
	"github.com/zyeon-ai/realtime-gateway/internal/service"
	"github.com/zyeon-ai/realtime-gateway/internal/store"
)

const defaultPageLimit = 50

// ListConversations handles GET /api/conversations
//
// user_id defaults to the caller; conversation_id and session_id narrow the
// result further. Turns are returned newest first.
func (h *Handler) ListConversations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	limit, offset, err := middleware.ParsePagination(q, defaultPageLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	filter, ok := h.historyFilter(w, r)
	if !ok {
		return
	}

	resp := model.ListConversationsResponse{
		Conversations: []model.Turn{},
		Pagination:    model.Pagination{Limit: limit, Offset: offset},
	}
	if !h.store.Available() {
		writeJSON(w, http.StatusOK, resp)
		return
	}

	resp.Conversations = h.store.GetConversationHistory(ctx, filter, limit, offset)
	resp.Total = len(resp.Conversations)
	resp.Stats = h.store.GetConversationStats(ctx, filter.UserID)
	resp.Pagination.HasMore = len(resp.Conversations) == limit

	writeJSON(w, http.StatusOK, resp)
}

// SummaryResponse is the body of GET /api/conversations/summary.
type SummaryResponse struct {
	Summary        string    `json:"summary"`
	UserID         string    `json:"user_id"`
	ConversationID string    `json:"conversation_id,omitempty"`
	Turns          int       `json:"turns"`
	Timestamp      time.Time `json:"timestamp"`
}

// Summary handles GET /api/conversations/summary
func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	gen := h.generator()
	if gen == nil || !gen.Available() {
		writeError(w, http.StatusServiceUnavailable, service.ErrGeneratorUnavailable.Error())
		return
	}

	filter, ok := h.historyFilter(w, r)
	if !ok {
		return
	}

	history := model.Chronological(h.store.GetConversationHistory(r.Context(), filter, store.DefaultHistoryLimit, 0))

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()
	writeJSON(w, http.StatusOK, SummaryResponse{
		Summary:        gen.Summarize(ctx, history),
		UserID:         filter.UserID,
		ConversationID: filter.ConversationID,
		Turns:          len(history),
		Timestamp:      h.now().UTC(),
	})
}

// AnalyticsResponse is the body of GET /api/analytics.
type AnalyticsResponse struct {
	Stats     model.ConversationStats `json:"stats"`
	UserID    string                  `json:"user_id"`
	User      *model.User             `json:"user,omitempty"`
	Timestamp time.Time               `json:"timestamp"`
}

// Analytics handles GET /api/analytics
func (h *Handler) Analytics(w http.ResponseWriter, r *http.Request) {
	if !h.store.Available() {
		writeError(w, http.StatusServiceUnavailable, "Analytics not available")
		return
	}

	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		userID = middleware.GetUserID(r.Context())
	}
	if err := middleware.ValidateID("user_id", userID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp := AnalyticsResponse{
		Stats:     h.store.GetConversationStats(r.Context(), userID),
		UserID:    userID,
		Timestamp: h.now().UTC(),
	}
	if u, err := h.store.GetUser(r.Context(), userID); err == nil {
		resp.User = u
	}

	writeJSON(w, http.StatusOK, resp)
}

// historyFilter reads the id filters, defaulting user_id to the caller.
// It writes the 400 itself when a filter is invalid.
func (h *Handler) historyFilter(w http.ResponseWriter, r *http.Request) (model.HistoryFilter, bool) {
	q := r.URL.Query()
	filter := model.HistoryFilter{
		UserID:         q.Get("user_id"),
		SessionID:      q.Get("session_id"),
		ConversationID: q.Get("conversation_id"),
	}
	if filter.UserID == "" {
		filter.UserID = middleware.GetUserID(r.Context())
	}

	for name, v := range map[string]string{
		"user_id":         filter.UserID,
		"session_id":      filter.SessionID,
		"conversation_id": filter.ConversationID,
	} {
		if err := middleware.ValidateID(name, v); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return filter, false
		}
	}
	return filter, true
}
