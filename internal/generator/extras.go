package generator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/zyeon-ai/realtime-gateway/internal/llm"
	"github.com/zyeon-ai/realtime-gateway/internal/model"
)

// Health is the result of a backend health check.
type Health struct {
	Status             string    `json:"status"`
	Model              string    `json:"model"`
	APIAccessible      bool      `json:"api_accessible"`
	RateLimitRemaining int       `json:"rate_limit_remaining"`
	Timestamp          time.Time `json:"timestamp"`
	Error              string    `json:"error,omitempty"`
}

// HealthCheck issues a minimal completion. Failures are reported, never retried.
func (g *Generator) HealthCheck(ctx context.Context) Health {
	h := Health{
		Status:             "unhealthy",
		Model:              g.cfg.Model,
		RateLimitRemaining: g.limiter.Remaining(),
		Timestamp:          g.now().UTC(),
	}
	if g.client == nil {
		h.Error = "model backend not configured"
		return h
	}

	_, err := g.client.Complete(ctx, &llm.CompletionRequest{
		Model:     g.cfg.Model,
		Messages:  []llm.ChatMessage{{Role: string(model.RoleUser), Content: "Hello"}},
		MaxTokens: 10,
	})
	if err != nil {
		g.logger.Error("health check failed", zap.Error(err))
		h.Error = err.Error()
		return h
	}

	h.Status = "healthy"
	h.APIAccessible = true
	return h
}

// Suggestions asks for up to 3 follow-ups to the last response in history.
// Any failure yields an empty list.
func (g *Generator) Suggestions(ctx context.Context, history []model.Turn) []string {
	out := []string{}
	if g.client == nil || len(history) == 0 {
		return out
	}

	last := history[len(history)-1].AIResponse
	resp, err := g.client.Complete(ctx, &llm.CompletionRequest{
		Model:       g.cfg.Model,
		System:      suggestionsPrompt,
		Messages:    []llm.ChatMessage{{Role: string(model.RoleUser), Content: "Last AI response: " + last}},
		MaxTokens:   150,
		Temperature: 0.8,
	})
	if err != nil {
		g.logger.Warn("suggestions failed", zap.Error(err))
		return out
	}

	if err := json.Unmarshal([]byte(stripCodeFence(resp.Content)), &out); err != nil {
		g.logger.Warn("suggestions not a json array", zap.Error(err))
		return []string{}
	}
	if len(out) > 3 {
		out = out[:3]
	}
	return out
}

// Summarize condenses the last 10 turns into a few sentences.
func (g *Generator) Summarize(ctx context.Context, history []model.Turn) string {
	if len(history) == 0 {
		return "No conversation to summarize."
	}
	if g.client == nil {
		return "Unable to generate conversation summary."
	}
	if len(history) > 10 {
		history = history[len(history)-10:]
	}

	var b strings.Builder
	for _, t := range history {
		fmt.Fprintf(&b, "User: %s\nAI: %s\n\n", t.UserMessage, t.AIResponse)
	}

	resp, err := g.client.Complete(ctx, &llm.CompletionRequest{
		Model:       g.cfg.Model,
		System:      summaryPrompt,
		Messages:    []llm.ChatMessage{{Role: string(model.RoleUser), Content: b.String()}},
		MaxTokens:   150,
		Temperature: 0.3,
	})
	if err != nil {
		g.logger.Warn("summary failed", zap.Error(err))
		return "Unable to generate conversation summary."
	}
	return strings.TrimSpace(resp.Content)
}

// Sentiment is the result of AnalyzeSentiment.
type Sentiment struct {
	Sentiment  string   `json:"sentiment"`
	Confidence float64  `json:"confidence"`
	Emotions   []string `json:"emotions"`
}

// AnalyzeSentiment classifies text. Failures yield a neutral zero-confidence result.
func (g *Generator) AnalyzeSentiment(ctx context.Context, text string) Sentiment {
	neutral := Sentiment{Sentiment: "neutral", Emotions: []string{}}
	if g.client == nil || strings.TrimSpace(text) == "" {
		return neutral
	}

	resp, err := g.client.Complete(ctx, &llm.CompletionRequest{
		Model:       g.cfg.Model,
		System:      sentimentPrompt,
		Messages:    []llm.ChatMessage{{Role: string(model.RoleUser), Content: text}},
		MaxTokens:   100,
		Temperature: 0.1,
	})
	if err != nil {
		g.logger.Warn("sentiment failed", zap.Error(err))
		return neutral
	}

	var s Sentiment
	if err := json.Unmarshal([]byte(stripCodeFence(resp.Content)), &s); err != nil || s.Sentiment == "" {
		return neutral
	}
	if s.Emotions == nil {
		s.Emotions = []string{}
	}
	return s
}

// stripCodeFence removes a surrounding ``` block that chat models like to add.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
