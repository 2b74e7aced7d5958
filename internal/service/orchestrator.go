// Package service orchestrates conversation turns across the HTTP, push
// channel and voice entry paths.
package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/zyeon-ai/realtime-gateway/internal/generator"
	"github.com/zyeon-ai/realtime-gateway/internal/middleware"
	"github.com/zyeon-ai/realtime-gateway/internal/model"
	natsclient "github.com/zyeon-ai/realtime-gateway/internal/nats"
	"github.com/zyeon-ai/realtime-gateway/internal/store"
	"github.com/zyeon-ai/realtime-gateway/internal/voice"
	"github.com/zyeon-ai/realtime-gateway/pkg/logger"
	"github.com/zyeon-ai/realtime-gateway/pkg/metrics"
	"github.com/zyeon-ai/realtime-gateway/pkg/tracing"
)

var (
	// ErrEmptyMessage is returned for empty or whitespace-only input.
	ErrEmptyMessage = errors.New("message is required")
	// ErrGeneratorUnavailable is returned when no model backend is configured.
	ErrGeneratorUnavailable = errors.New("AI service not available")
	// ErrVoiceUnavailable is returned when voice capture is not available.
	ErrVoiceUnavailable = errors.New("voice service not available")
	// ErrUnknownConnection is returned for messages on unregistered connections.
	ErrUnknownConnection = errors.New("unknown connection")
)

// VoiceUserID owns voice turns when nobody has claimed the voice bridge.
const VoiceUserID = "voice_user"

// Broadcaster fans an event out to every push-channel listener.
type Broadcaster interface {
	Broadcast(ev model.Event)
}

// Config tunes the orchestrator.
type Config struct {
	// HistoryLimit bounds the turns fetched for each prompt window.
	HistoryLimit int
	// SessionTimeout bounds synchronous session writes on connect/disconnect.
	SessionTimeout time.Duration
}

// Orchestrator resolves identity, assembles context, calls the generator,
// persists the turn and hands the result back to the entry path.
type Orchestrator struct {
	gen       *generator.Generator
	store     *store.Store
	persister *Persister
	registry  *Registry
	voice     *voice.Bridge
	cfg       Config
	logger    *logger.Logger
	tracer    trace.Tracer
	now       func() time.Time

	mu          sync.RWMutex
	broadcaster Broadcaster
	voiceOwner  model.Identity

	voiceOnce sync.Once
	tasks     sync.WaitGroup
}

// New creates an orchestrator. bridge may be nil when voice is disabled.
func New(gen *generator.Generator, st *store.Store, persister *Persister, registry *Registry, bridge *voice.Bridge, cfg Config, log *logger.Logger) *Orchestrator {
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = store.DefaultHistoryLimit
	}
	if cfg.SessionTimeout <= 0 {
		cfg.SessionTimeout = 5 * time.Second
	}
	if registry == nil {
		registry = NewRegistry()
	}
	if log == nil {
		log = logger.NewNop()
	}
	if persister == nil {
		persister = NewPersister(st, nil, PersisterConfig{}, log)
	}
	return &Orchestrator{
		gen:       gen,
		store:     st,
		persister: persister,
		registry:  registry,
		voice:     bridge,
		cfg:       cfg,
		logger:    log.Named("orchestrator"),
		tracer:    tracing.Tracer("orchestrator"),
		now:       time.Now,
	}
}

// SetBroadcaster wires the push-channel hub. It is set after construction
// because the hub itself depends on the orchestrator.
func (o *Orchestrator) SetBroadcaster(b Broadcaster) {
	o.mu.Lock()
	o.broadcaster = b
	o.mu.Unlock()
}

// Registry exposes the live connection registry.
func (o *Orchestrator) Registry() *Registry {
	return o.registry
}

// Generator exposes the response generator.
func (o *Orchestrator) Generator() *generator.Generator {
	return o.gen
}

// TurnInput is one inbound message on any entry path.
type TurnInput struct {
	Identity       model.Identity
	Message        string
	ConversationID string
	ContextType    string
	Type           model.MessageType
}

// TurnResult is the outcome of a handled turn.
type TurnResult struct {
	Text           string
	Metadata       map[string]any
	Timestamp      time.Time
	Type           model.MessageType
	ConversationID string
	Outcome        generator.Outcome
	// History is the oldest-first window the prompt was built from.
	History []model.Turn
}

// AIResponseEvent renders the result as a push event.
func (r *TurnResult) AIResponseEvent() model.Event {
	return model.Event{
		Event: model.EventAIResponse,
		Data: model.AIResponseEvent{
			Text:      r.Text,
			Timestamp: r.Timestamp,
			Type:      r.Type,
			Metadata:  r.Metadata,
		},
	}
}

func defaultContext(t model.MessageType) string {
	switch t {
	case model.MessageTypeVoice:
		return generator.ContextVoice
	case model.MessageTypeRealtime:
		return generator.ContextRealtime
	default:
		return generator.ContextDefault
	}
}

// HandleTurn runs the shared pipeline for every entry path.
func (o *Orchestrator) HandleTurn(ctx context.Context, in TurnInput) (*TurnResult, error) {
	message := strings.TrimSpace(in.Message)
	if message == "" {
		return nil, ErrEmptyMessage
	}
	if o.gen == nil || !o.gen.Available() {
		return nil, ErrGeneratorUnavailable
	}
	if in.Type == "" {
		in.Type = model.MessageTypeText
	}
	if in.ContextType == "" {
		in.ContextType = defaultContext(in.Type)
	}

	ctx, span := o.tracer.Start(ctx, "orchestrator.HandleTurn",
		trace.WithAttributes(
			attribute.String("message_type", string(in.Type)),
			attribute.String("user_id", in.Identity.UserID),
		))
	defer span.End()

	log := o.logger.
		WithIdentity(middleware.GetCorrelationID(ctx), in.Identity.UserID, in.Identity.SessionID).
		With(zap.String("message_type", string(in.Type)))

	o.persister.TouchUser(in.Identity.UserID)

	history := model.Chronological(o.store.GetConversationHistory(ctx, model.HistoryFilter{
		UserID:         in.Identity.UserID,
		ConversationID: in.ConversationID,
	}, o.cfg.HistoryLimit, 0))

	resp := o.gen.Generate(ctx, generator.Request{
		Input:       message,
		History:     history,
		ContextType: in.ContextType,
	})
	metrics.RecordTurn(string(in.Type), string(resp.Outcome))

	now := o.now().UTC()
	conversationID := in.ConversationID
	if conversationID == "" {
		conversationID = model.NewConversationID(now)
	}

	if resp.Degraded() {
		log.Warn("turn degraded", zap.String("outcome", string(resp.Outcome)))
	} else {
		o.persister.EnqueueTurn(model.Turn{
			ConversationID: conversationID,
			UserID:         in.Identity.UserID,
			SessionID:      in.Identity.SessionID,
			Timestamp:      now,
			UserMessage:    message,
			AIResponse:     resp.Text,
			MessageType:    in.Type,
			Metadata:       resp.Metadata,
		})
	}

	log.Info("turn handled",
		zap.String("conversation_id", conversationID),
		zap.Int("history_turns", len(history)),
		zap.String("outcome", string(resp.Outcome)),
	)

	return &TurnResult{
		Text:           resp.Text,
		Metadata:       resp.Metadata,
		Timestamp:      now,
		Type:           in.Type,
		ConversationID: conversationID,
		Outcome:        resp.Outcome,
		History:        history,
	}, nil
}

// HandleChat serves the HTTP chat entry path.
func (o *Orchestrator) HandleChat(ctx context.Context, id model.Identity, req model.ChatRequest) (*model.ChatResponse, error) {
	res, err := o.HandleTurn(ctx, TurnInput{
		Identity:       id,
		Message:        req.Message,
		ConversationID: req.ConversationID,
		ContextType:    req.ContextType,
		Type:           model.MessageTypeText,
	})
	if err != nil {
		return nil, err
	}

	suggestions := []string{}
	if len(res.History) > 0 && res.Outcome == generator.OutcomeOK {
		window := append(append([]model.Turn(nil), res.History...), model.Turn{
			UserMessage: strings.TrimSpace(req.Message),
			AIResponse:  res.Text,
		})
		suggestions = o.gen.Suggestions(ctx, window)
	}

	return &model.ChatResponse{
		Response:    res.Text,
		Timestamp:   res.Timestamp,
		Type:        res.Type,
		Metadata:    res.Metadata,
		Suggestions: suggestions,
		UserID:      id.UserID,
		SessionID:   id.SessionID,
	}, nil
}

// Connect registers a push connection, opens its session and returns the
// connected event.
func (o *Orchestrator) Connect(ctx context.Context, connID, transport string, id model.Identity) model.Event {
	c := o.registry.Add(Connection{
		ID:        connID,
		UserID:    id.UserID,
		SessionID: id.SessionID,
		Transport: transport,
	})

	if o.store.Available() {
		sctx, cancel := context.WithTimeout(ctx, o.cfg.SessionTimeout)
		if err := o.store.CreateSession(sctx, id.SessionID, id.UserID, map[string]string{
			"connection_id": connID,
			"transport":     transport,
		}); err != nil {
			o.logger.Warn("failed to create session", zap.String("session_id", id.SessionID), zap.Error(err))
		}
		cancel()
	}
	o.persister.TouchUser(id.UserID)
	o.persister.PublishSession(ctx, natsclient.SessionStarted, &model.Session{
		SessionID: id.SessionID,
		UserID:    id.UserID,
		IsActive:  true,
		CreatedAt: c.ConnectedAt,
		UpdatedAt: c.ConnectedAt,
	})

	o.logger.Info("client connected",
		zap.String("connection_id", connID),
		zap.String("transport", transport),
		zap.String("user_id", id.UserID),
		zap.String("session_id", id.SessionID),
	)

	return model.Event{
		Event: model.EventConnected,
		Data: model.ConnectedEvent{
			Status:    "connected",
			UserID:    id.UserID,
			SessionID: id.SessionID,
			Features:  o.Features(),
		},
	}
}

// Disconnect unregisters a connection and ends its session.
func (o *Orchestrator) Disconnect(ctx context.Context, connID string) {
	c, ok := o.registry.Remove(connID)
	if !ok {
		return
	}

	ended := o.now().UTC()
	if o.store.Available() {
		sctx, cancel := context.WithTimeout(ctx, o.cfg.SessionTimeout)
		if err := o.store.EndSession(sctx, c.SessionID); err != nil {
			o.logger.Warn("failed to end session", zap.String("session_id", c.SessionID), zap.Error(err))
		}
		cancel()
	}
	o.persister.PublishSession(ctx, natsclient.SessionEnded, &model.Session{
		SessionID: c.SessionID,
		UserID:    c.UserID,
		IsActive:  false,
		CreatedAt: c.ConnectedAt,
		UpdatedAt: ended,
		EndedAt:   &ended,
	})

	o.logger.Info("client disconnected",
		zap.String("connection_id", connID),
		zap.Duration("connected_for", ended.Sub(c.ConnectedAt)),
	)
}

// HandleRealtimeMessage serves a send_message on a push connection. It
// always returns an event for the originating connection: ai_response on
// success, error otherwise.
func (o *Orchestrator) HandleRealtimeMessage(ctx context.Context, connID string, req model.ChatRequest) model.Event {
	c, ok := o.registry.Touch(connID)
	if !ok {
		return errorEvent(ErrUnknownConnection.Error())
	}

	res, err := o.HandleTurn(ctx, TurnInput{
		Identity:       model.Identity{UserID: c.UserID, SessionID: c.SessionID},
		Message:        req.Message,
		ConversationID: req.ConversationID,
		ContextType:    req.ContextType,
		Type:           model.MessageTypeRealtime,
	})
	switch {
	case errors.Is(err, ErrEmptyMessage):
		return errorEvent("Message is required")
	case err != nil:
		o.logger.Warn("realtime message failed", zap.String("connection_id", connID), zap.Error(err))
		return errorEvent(userMessage(err))
	}
	return res.AIResponseEvent()
}

// Features lists optional subsystem availability.
func (o *Orchestrator) Features() map[string]bool {
	f := map[string]bool{
		"ai_service":         o.gen != nil && o.gen.Available(),
		"persistence":        o.store.Available(),
		"voice_recognition":  false,
		"voice_synthesis":    false,
		"event_publishing":   o.persister.publisher != nil,
		"suggested_response": o.gen != nil && o.gen.Available(),
	}
	if o.voice != nil {
		f["voice_recognition"] = o.voice.RecognitionAvailable()
		f["voice_synthesis"] = o.voice.SynthesisAvailable()
	}
	return f
}

func errorEvent(msg string) model.Event {
	return model.Event{Event: model.EventError, Data: model.ErrorEvent{Message: msg}}
}

func userMessage(err error) string {
	switch {
	case errors.Is(err, ErrGeneratorUnavailable):
		return "AI service not available"
	default:
		return "Error processing message"
	}
}

func (o *Orchestrator) broadcast(ev model.Event) {
	o.mu.RLock()
	b := o.broadcaster
	o.mu.RUnlock()
	if b != nil {
		b.Broadcast(ev)
	}
}
