// Package generator builds bounded prompt windows, calls the model backend
// under admission control and retry, and converts every failure into a
// degraded response.
package generator

import (
	"context"
	"math"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/zyeon-ai/realtime-gateway/internal/llm"
	"github.com/zyeon-ai/realtime-gateway/internal/model"
	"github.com/zyeon-ai/realtime-gateway/internal/ratelimit"
	"github.com/zyeon-ai/realtime-gateway/internal/retry"
	"github.com/zyeon-ai/realtime-gateway/pkg/logger"
	"github.com/zyeon-ai/realtime-gateway/pkg/metrics"
	"github.com/zyeon-ai/realtime-gateway/pkg/tracing"
)

// Config holds generation defaults.
type Config struct {
	Model              string
	Temperature        float64
	MaxTokens          int
	MaxContextMessages int
	Prompts            map[string]string
}

// Request is one generate call.
type Request struct {
	Input string
	// History must be oldest-first.
	History     []model.Turn
	ContextType string
	// Temperature overrides Config.Temperature when set.
	Temperature *float64
	// MaxTokens overrides Config.MaxTokens when positive.
	MaxTokens int
}

// Response is the single success shape of a generate call. Metadata is empty
// for degraded responses.
type Response struct {
	Text     string
	Metadata map[string]any
	Outcome  Outcome
}

// Degraded reports whether the text is a canned apology.
func (r Response) Degraded() bool {
	return r.Outcome != OutcomeOK
}

// Generator is the response generator.
type Generator struct {
	client  llm.Client
	limiter *ratelimit.Limiter
	policy  retry.Policy
	cfg     Config
	logger  *logger.Logger
	tracer  trace.Tracer
	now     func() time.Time
}

// Option configures a Generator.
type Option func(*Generator)

// WithRetryPolicy replaces the default retry policy. Its Retryable is
// always replaced with Transient.
func WithRetryPolicy(p retry.Policy) Option {
	return func(g *Generator) {
		g.policy = p
	}
}

// WithClock overrides the time source used for metadata.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) {
		g.now = now
	}
}

// New creates a generator. client may be nil, in which case Available
// reports false and every call degrades.
func New(client llm.Client, limiter *ratelimit.Limiter, cfg Config, log *logger.Logger, opts ...Option) *Generator {
	if cfg.Prompts == nil {
		cfg.Prompts = DefaultPrompts()
	}
	if cfg.MaxContextMessages <= 0 {
		cfg.MaxContextMessages = 20
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1000
	}
	if cfg.Model == "" {
		cfg.Model = llm.DefaultModel(llm.ProviderOpenAI)
	}
	if limiter == nil {
		limiter = ratelimit.New(50, time.Minute)
	}
	if log == nil {
		log = logger.NewNop()
	}

	g := &Generator{
		client:  client,
		limiter: limiter,
		policy:  retry.Default(),
		cfg:     cfg,
		logger:  log.Named("generator"),
		tracer:  tracing.Tracer("generator"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	g.policy.Retryable = Transient
	return g
}

// Available reports whether a model backend is configured.
func (g *Generator) Available() bool {
	return g.client != nil
}

// Model returns the configured model id.
func (g *Generator) Model() string {
	return g.cfg.Model
}

// Limiter exposes the admission controller.
func (g *Generator) Limiter() *ratelimit.Limiter {
	return g.limiter
}

// SystemPrompt returns the prompt for a context type, falling back to default.
func (g *Generator) SystemPrompt(contextType string) string {
	if p, ok := g.cfg.Prompts[contextType]; ok {
		return p
	}
	return g.cfg.Prompts[ContextDefault]
}

// BuildPrompt assembles the bounded context window: the system prompt, the
// last MaxContextMessages turns as user/assistant pairs oldest-first, then
// the new input.
func (g *Generator) BuildPrompt(req Request) *llm.CompletionRequest {
	history := req.History
	if len(history) > g.cfg.MaxContextMessages {
		history = history[len(history)-g.cfg.MaxContextMessages:]
	}

	messages := make([]llm.ChatMessage, 0, len(history)*2+1)
	for _, turn := range history {
		messages = append(messages,
			llm.ChatMessage{Role: string(model.RoleUser), Content: turn.UserMessage},
			llm.ChatMessage{Role: string(model.RoleAssistant), Content: turn.AIResponse},
		)
	}
	messages = append(messages, llm.ChatMessage{
		Role:    string(model.RoleUser),
		Content: strings.TrimSpace(req.Input),
	})

	temperature := g.cfg.Temperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}
	maxTokens := g.cfg.MaxTokens
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}

	return &llm.CompletionRequest{
		Model:       g.cfg.Model,
		System:      g.SystemPrompt(req.ContextType),
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: temperature,
	}
}

// Generate produces a response for req. It never returns an error: failures
// become a degraded Response carrying the matching apology.
func (g *Generator) Generate(ctx context.Context, req Request) Response {
	if req.ContextType == "" {
		req.ContextType = ContextDefault
	}

	ctx, span := g.tracer.Start(ctx, "generator.Generate",
		trace.WithAttributes(
			attribute.String("model", g.cfg.Model),
			attribute.String("context_type", req.ContextType),
			attribute.Int("history_turns", len(req.History)),
		))
	defer span.End()

	if strings.TrimSpace(req.Input) == "" {
		g.logger.Warn("rejected empty input")
		return g.degrade(span, OutcomeInvalidInput, nil)
	}
	if g.client == nil {
		g.logger.Error("model backend not configured")
		return g.degrade(span, OutcomeAuth, nil)
	}
	if !g.limiter.Allow() {
		metrics.RateLimitRejectionsTotal.Inc()
		g.logger.Warn("admission rejected",
			zap.Int("max_calls", g.limiter.MaxCalls()),
			zap.Duration("window", g.limiter.Window()),
		)
		return g.degrade(span, OutcomeRateLimited, nil)
	}

	prompt := g.BuildPrompt(req)

	policy := g.policy
	policy.OnRetry = func(attempt int, delay time.Duration, err error) {
		metrics.ModelRetriesTotal.Inc()
		g.logger.Warn("model call failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
	}

	start := g.now()
	var resp *llm.CompletionResponse
	err := policy.Do(ctx, func(ctx context.Context) error {
		var callErr error
		resp, callErr = g.client.Complete(ctx, prompt)
		return callErr
	})
	elapsed := g.now().Sub(start)

	if err != nil {
		outcome := Classify(err)
		metrics.RecordModelCall(g.cfg.Model, string(outcome), elapsed.Seconds(), 0, 0)
		return g.degrade(span, outcome, err)
	}

	metrics.RecordModelCall(g.cfg.Model, string(OutcomeOK), elapsed.Seconds(), resp.TokensIn, resp.TokensOut)
	span.SetAttributes(
		attribute.Int("tokens_in", resp.TokensIn),
		attribute.Int("tokens_out", resp.TokensOut),
	)

	responseTime := math.Round(elapsed.Seconds()*100) / 100
	metadata := map[string]any{
		"model":             g.cfg.Model,
		"context_type":      req.ContextType,
		"temperature":       prompt.Temperature,
		"max_tokens":        prompt.MaxTokens,
		"response_time":     responseTime,
		"tokens_used":       resp.TotalTokens(),
		"prompt_tokens":     resp.TokensIn,
		"completion_tokens": resp.TokensOut,
		"timestamp":         g.now().UTC().Format(time.RFC3339),
	}

	g.logger.Info("response generated",
		zap.Float64("response_time", responseTime),
		zap.Int("tokens_used", resp.TotalTokens()),
	)

	return Response{
		Text:     strings.TrimSpace(resp.Content),
		Metadata: metadata,
		Outcome:  OutcomeOK,
	}
}

func (g *Generator) degrade(span trace.Span, outcome Outcome, err error) Response {
	if err != nil {
		span.RecordError(err)
		fields := []zap.Field{zap.String("outcome", string(outcome)), zap.Error(err)}
		if outcome == OutcomeAuth {
			g.logger.Error("model call failed", fields...)
		} else {
			g.logger.Warn("model call failed", fields...)
		}
	}
	span.SetStatus(codes.Error, string(outcome))
	return Response{
		Text:     outcome.Message(),
		Metadata: map[string]any{},
		Outcome:  outcome,
	}
}
