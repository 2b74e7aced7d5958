// Package handler provides HTTP handlers for the API.
package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zyeon-ai/realtime-gateway/internal/middleware"
	"github.com/zyeon-ai/realtime-gateway/internal/model"
	natsclient "github.com/zyeon-ai/realtime-gateway/internal/nats"
	"github.com/zyeon-ai/realtime-gateway/internal/realtime"
	"github.com/zyeon-ai/realtime-gateway/internal/service"
	"github.com/zyeon-ai/realtime-gateway/internal/store"
	"github.com/zyeon-ai/realtime-gateway/internal/voice"
	"github.com/zyeon-ai/realtime-gateway/pkg/logger"
)

// ServiceName is reported by the health endpoint.
const ServiceName = "ZYEON AI Assistant Enhanced"

// Options carries everything the router needs. Optional subsystems may be nil.
type Options struct {
	Orchestrator *service.Orchestrator
	Store        *store.Store
	Hub          *realtime.Hub
	// Capturer receives uploaded utterances for the voice bridge.
	Capturer *voice.QueueCapturer
	NATS     *natsclient.Client

	Identity          middleware.IdentityConfig
	RateLimitRequests int
	RateLimitWindow   time.Duration
	AllowedOrigins    []string

	StaticDir       string
	Environment     string
	Version         string
	ModelConfigured bool
	StartedAt       time.Time

	Logger *logger.Logger
}

// Handler serves the gateway's HTTP API.
type Handler struct {
	orch     *service.Orchestrator
	store    *store.Store
	hub      *realtime.Hub
	capturer *voice.QueueCapturer
	nats     *natsclient.Client
	opts     Options
	logger   *logger.Logger
	now      func() time.Time
}

// New creates a handler.
func New(opts Options) *Handler {
	if opts.Logger == nil {
		opts.Logger = logger.NewNop()
	}
	if opts.StartedAt.IsZero() {
		opts.StartedAt = time.Now()
	}
	if opts.Version == "" {
		opts.Version = "2.0.0"
	}
	return &Handler{
		orch:     opts.Orchestrator,
		store:    opts.Store,
		hub:      opts.Hub,
		capturer: opts.Capturer,
		nats:     opts.NATS,
		opts:     opts,
		logger:   opts.Logger.Named("handler"),
		now:      time.Now,
	}
}

// NewRouter assembles the middleware stack and every route.
func NewRouter(opts Options) http.Handler {
	h := New(opts)

	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(h.opts.Logger))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(opts.AllowedOrigins))

	r.Get("/ready", h.Ready)
	r.Handle("/metrics", promhttp.Handler())

	// Everything below resolves the caller's identity cookie.
	r.Group(func(r chi.Router) {
		r.Use(middleware.Identity(opts.Identity))

		if h.hub != nil {
			r.Get("/ws", h.hub.ServeWS)
		}

		r.Route("/api", func(r chi.Router) {
			if opts.RateLimitRequests > 0 {
				r.Use(middleware.RateLimit(opts.RateLimitRequests, opts.RateLimitWindow))
			}

			r.Get("/health", h.Health)
			r.Post("/chat", h.Chat)
			r.Post("/sentiment", h.Sentiment)

			r.Get("/conversations", h.ListConversations)
			r.Get("/conversations/summary", h.Summary)
			r.Get("/analytics", h.Analytics)

			r.Post("/voice/start", h.StartVoice)
			r.Post("/voice/stop", h.StopVoice)
			r.Post("/voice/audio", h.UploadAudio)
			r.Get("/voice/settings", h.GetVoiceSettings)
			r.Post("/voice/settings", h.UpdateVoiceSettings)
			r.Post("/speak", h.Speak)

			if h.hub != nil {
				r.Get("/events", h.hub.ServeSSE)
			}

			r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
				writeError(w, http.StatusNotFound, "Endpoint not found")
			})
			r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
				writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
			})
		})

		r.Get("/*", h.Frontend)
	})

	return r
}

// RequestIdentity resolves the identity cookie for the push channel hub.
func RequestIdentity(r *http.Request) model.Identity {
	return middleware.GetIdentity(r.Context())
}
