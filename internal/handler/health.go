package handler

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/zyeon-ai/realtime-gateway/internal/generator"
	"github.com/zyeon-ai/realtime-gateway/internal/voice"
)

// HealthResponse is the body of GET /api/health.
type HealthResponse struct {
	Status           string            `json:"status"`
	Service          string            `json:"service"`
	Version          string            `json:"version"`
	Timestamp        time.Time         `json:"timestamp"`
	Uptime           float64           `json:"uptime"`
	Environment      string            `json:"environment"`
	Features         map[string]bool   `json:"features"`
	ConnectedClients int               `json:"connected_clients"`
	AIService        *generator.Health `json:"ai_service,omitempty"`
	VoiceService     *voice.Status     `json:"voice_service,omitempty"`
}

// Health handles GET /api/health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	resp := HealthResponse{
		Status:      "healthy",
		Service:     ServiceName,
		Version:     h.opts.Version,
		Timestamp:   now.UTC(),
		Uptime:      now.Sub(h.opts.StartedAt).Seconds(),
		Environment: h.opts.Environment,
		Features:    map[string]bool{},
	}

	if h.orch != nil {
		resp.Features = h.orch.Features()
		resp.ConnectedClients = h.orch.Registry().Count()
	}
	resp.Features["model_configured"] = h.opts.ModelConfigured
	if h.hub != nil {
		// SSE listeners are not registered sessions but still count as clients.
		resp.ConnectedClients = h.hub.Count()
	}

	if gen := h.generator(); gen != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
		health := gen.HealthCheck(ctx)
		cancel()
		resp.AIService = &health
	}
	if b := h.bridge(); b != nil {
		status := b.Status()
		resp.VoiceService = &status
	}

	writeJSON(w, http.StatusOK, resp)
}

// Ready handles GET /ready
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.nats != nil && !h.nats.IsConnected() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "NATS not connected",
		})
		return
	}

	if h.store.Available() {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.store.Ping(ctx); err != nil {
			h.logger.Warn("store ping failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"reason": "store unreachable",
			})
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
	})
}

func (h *Handler) generator() *generator.Generator {
	if h.orch == nil {
		return nil
	}
	return h.orch.Generator()
}

func (h *Handler) bridge() *voice.Bridge {
	if h.orch == nil {
		return nil
	}
	return h.orch.Voice()
}
