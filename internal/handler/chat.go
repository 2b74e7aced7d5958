package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/zyeon-ai/realtime-gateway/internal/middleware"
	"github.com/zyeon-ai/realtime-gateway/internal/model"
	"github.com/zyeon-ai/realtime-gateway/internal/service"
)

// Chat handles POST /api/chat
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := middleware.GetIdentity(ctx)

	var req model.ChatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "Message is required")
		return
	}
	if err := middleware.ValidateMessageContent(req.Message); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.ConversationID != "" {
		if err := middleware.ValidateID("conversation_id", req.ConversationID); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	if h.orch == nil {
		writeError(w, http.StatusServiceUnavailable, service.ErrGeneratorUnavailable.Error())
		return
	}

	resp, err := h.orch.HandleChat(ctx, id, req)
	if err != nil {
		status, msg := turnError(err)
		if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
			h.logger.Error("chat failed", zap.String("user_id", id.UserID), zap.Error(err))
		}
		writeError(w, status, msg)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// sentimentRequest is the body of POST /api/sentiment.
type sentimentRequest struct {
	Text string `json:"text"`
}

// Sentiment handles POST /api/sentiment
func (h *Handler) Sentiment(w http.ResponseWriter, r *http.Request) {
	var req sentimentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Text = strings.TrimSpace(req.Text)
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "Text is required")
		return
	}
	if err := middleware.ValidateMessageContent(req.Text); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	gen := h.generator()
	if gen == nil || !gen.Available() {
		writeError(w, http.StatusServiceUnavailable, service.ErrGeneratorUnavailable.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()
	writeJSON(w, http.StatusOK, gen.AnalyzeSentiment(ctx, req.Text))
}

// turnError maps orchestrator errors to a status and user-facing message.
func turnError(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrEmptyMessage):
		return http.StatusBadRequest, "Message is required"
	case errors.Is(err, service.ErrGeneratorUnavailable):
		return http.StatusServiceUnavailable, service.ErrGeneratorUnavailable.Error()
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}
