// Package app builds every subsystem once from configuration and owns
// their lifetimes.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/zyeon-ai/realtime-gateway/internal/config"
	"github.com/zyeon-ai/realtime-gateway/internal/generator"
	"github.com/zyeon-ai/realtime-gateway/internal/handler"
	"github.com/zyeon-ai/realtime-gateway/internal/llm"
	"github.com/zyeon-ai/realtime-gateway/internal/middleware"
	"github.com/zyeon-ai/realtime-gateway/internal/model"
	natsclient "github.com/zyeon-ai/realtime-gateway/internal/nats"
	"github.com/zyeon-ai/realtime-gateway/internal/ratelimit"
	"github.com/zyeon-ai/realtime-gateway/internal/realtime"
	"github.com/zyeon-ai/realtime-gateway/internal/service"
	"github.com/zyeon-ai/realtime-gateway/internal/store"
	"github.com/zyeon-ai/realtime-gateway/internal/store/db"
	"github.com/zyeon-ai/realtime-gateway/internal/voice"
	"github.com/zyeon-ai/realtime-gateway/internal/voice/openaivoice"
	"github.com/zyeon-ai/realtime-gateway/pkg/logger"
	"github.com/zyeon-ai/realtime-gateway/pkg/tracing"
)

// ServiceName identifies the process to tracing and NATS.
const ServiceName = "zyeon-gateway"

// mp3BytesPerSecond approximates the 128 kbit/s speech stream so the
// speaking state lasts as long as playback.
const mp3BytesPerSecond = 16000

// App is the application context. Optional subsystems are nil when not
// configured.
type App struct {
	Config *config.Config
	Logger *logger.Logger

	Store        *store.Store
	NATS         *natsclient.Client
	Publisher    *natsclient.Publisher
	Generator    *generator.Generator
	Voice        *voice.Bridge
	Capturer     *voice.QueueCapturer
	Persister    *service.Persister
	Orchestrator *service.Orchestrator
	Hub          *realtime.Hub
	Router       http.Handler

	tracer    *sdktrace.TracerProvider
	startedAt time.Time
}

// New builds the application. A missing or unreachable optional subsystem
// is logged and disabled; only invalid configuration fails startup.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger, version string) (*App, error) {
	a := &App{
		Config:    cfg,
		Logger:    log,
		startedAt: time.Now(),
	}

	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, ServiceName, cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			a.tracer = tp
		}
	}

	st, err := OpenStore(ctx, cfg, log)
	if err != nil {
		log.Warn("persistence disabled", zap.Error(err))
	}
	a.Store = st

	if cfg.NATSURL != "" {
		a.connectNATS(ctx)
	}

	gen, err := a.newGenerator()
	if err != nil {
		return nil, err
	}
	a.Generator = gen

	a.Voice, a.Capturer = a.newVoice()

	var publisher service.EventPublisher
	if a.Publisher != nil {
		publisher = a.Publisher
	}
	a.Persister = service.NewPersister(a.Store, publisher, service.PersisterConfig{
		QueueSize: cfg.PersistQueueSize,
		Workers:   cfg.PersistWorkers,
	}, log)

	a.Orchestrator = service.New(a.Generator, a.Store, a.Persister, service.NewRegistry(), a.Voice, service.Config{
		HistoryLimit: cfg.HistoryFetchLimit,
	}, log)

	a.Hub = realtime.NewHub(a.Orchestrator, handler.RequestIdentity, realtime.Config{}, log)
	a.Orchestrator.SetBroadcaster(a.Hub)

	a.Router = handler.NewRouter(handler.Options{
		Orchestrator: a.Orchestrator,
		Store:        a.Store,
		Hub:          a.Hub,
		Capturer:     a.Capturer,
		NATS:         a.NATS,
		Identity: middleware.IdentityConfig{
			Secret: cfg.SessionSecret,
			MaxAge: cfg.SessionMaxAge,
			Secure: !cfg.IsDevelopment(),
		},
		RateLimitRequests: cfg.HTTPRateLimitRequests,
		RateLimitWindow:   cfg.HTTPRateLimitWindow,
		StaticDir:         cfg.StaticDir,
		Environment:       cfg.Environment,
		Version:           version,
		ModelConfigured:   cfg.ModelConfigured(),
		StartedAt:         a.startedAt,
		Logger:            log,
	})

	log.Info("application initialized",
		zap.Bool("ai_service", a.Generator.Available()),
		zap.Bool("persistence", a.Store.Available()),
		zap.Bool("event_publishing", a.Publisher != nil),
		zap.Bool("voice", a.Voice != nil),
	)
	return a, nil
}

// OpenStore opens the configured store. With no STORE_DSN it returns an
// unavailable store and no error.
func OpenStore(ctx context.Context, cfg *config.Config, log *logger.Logger) (*store.Store, error) {
	if cfg.StoreDSN == "" {
		log.Info("no store configured, persistence disabled")
		return store.New(nil, log), nil
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	driver, err := db.NewDriver(ctx, cfg.StoreDSN)
	if err != nil {
		return store.New(nil, log), err
	}
	st := store.New(driver, log)
	if err := st.Ping(ctx); err != nil {
		_ = st.Close()
		return store.New(nil, log), fmt.Errorf("failed to reach %s store: %w", db.Scheme(cfg.StoreDSN), err)
	}
	log.Info("store connected", zap.String("scheme", db.Scheme(cfg.StoreDSN)))
	return st, nil
}

func (a *App) connectNATS(ctx context.Context) {
	cfg := a.Config
	client, err := natsclient.Connect(ctx, natsclient.Config{
		URL:      cfg.NATSURL,
		CAFile:   cfg.NATSCAFile,
		CertFile: cfg.NATSCertFile,
		KeyFile:  cfg.NATSKeyFile,
		Token:    cfg.NATSToken,
	}, a.Logger)
	if err != nil {
		a.Logger.Warn("event publishing disabled", zap.Error(err))
		return
	}

	publisher := natsclient.NewPublisher(client)
	sctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := publisher.EnsureStream(sctx); err != nil {
		a.Logger.Warn("event publishing disabled", zap.Error(err))
		client.Close()
		return
	}
	a.NATS = client
	a.Publisher = publisher
}

func (a *App) newGenerator() (*generator.Generator, error) {
	cfg := a.Config
	provider := llm.Provider(strings.ToLower(cfg.LLMProvider))

	var client llm.Client
	if cfg.ModelConfigured() {
		key := cfg.OpenAIAPIKey
		if provider == llm.ProviderAnthropic {
			key = cfg.AnthropicAPIKey
		}
		c, err := llm.NewClient(provider, key)
		if err != nil {
			return nil, fmt.Errorf("failed to create llm client: %w", err)
		}
		client = c
	} else {
		a.Logger.Warn("no model credential configured, AI service disabled", zap.String("provider", string(provider)))
	}

	modelName := cfg.LLMModel
	if modelName == "" {
		modelName = llm.DefaultModel(provider)
	}

	return generator.New(client,
		ratelimit.New(cfg.ModelRateLimitCalls, cfg.ModelRateLimitWindow),
		generator.Config{
			Model:              modelName,
			Temperature:        cfg.LLMTemperature,
			MaxTokens:          cfg.LLMMaxTokens,
			MaxContextMessages: cfg.MaxContextMessages,
		}, a.Logger), nil
}

// newVoice wires Whisper recognition behind an upload queue and, when
// enabled, OpenAI speech streamed to push clients as speech_audio events.
func (a *App) newVoice() (*voice.Bridge, *voice.QueueCapturer) {
	cfg := a.Config
	if cfg.OpenAIAPIKey == "" {
		a.Logger.Info("voice disabled: no OpenAI credential")
		return nil, nil
	}

	client := openai.NewClient(cfg.OpenAIAPIKey)
	capturer := voice.NewQueueCapturer(8)
	opts := voice.Options{
		Capturer:     capturer,
		Recognizer:   openaivoice.NewRecognizer(client, ""),
		DefaultVoice: cfg.VoiceTTSVoice,
	}
	if cfg.VoiceTTSEnabled {
		opts.Synthesizer = openaivoice.NewSynthesizer(client, openaivoice.DrainSink(mp3BytesPerSecond, a.broadcastSpeech))
	}
	return voice.NewBridge(opts, a.Logger), capturer
}

func (a *App) broadcastSpeech(_ context.Context, audio []byte, format string) error {
	if a.Hub == nil {
		return errors.New("push channel not ready")
	}
	a.Hub.Broadcast(model.Event{
		Event: model.EventSpeechAudio,
		Data:  model.SpeechAudioEvent{Format: format, Data: audio},
	})
	return nil
}

// Close releases every subsystem in reverse dependency order.
func (a *App) Close(ctx context.Context) error {
	var errs []error

	if a.Hub != nil {
		if err := a.Hub.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if a.Voice != nil {
		a.Voice.Close()
	}
	if a.Persister != nil {
		if err := a.Persister.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to drain persister: %w", err))
		}
	}
	if err := a.Store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close store: %w", err))
	}
	if a.NATS != nil {
		a.NATS.Close()
	}
	if err := tracing.Shutdown(ctx, a.tracer); err != nil {
		errs = append(errs, fmt.Errorf("failed to shut down tracing: %w", err))
	}
	return errors.Join(errs...)
}
