// Package config provides environment configuration for the gateway.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	ServerPort         string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration
	Environment        string
	StaticDir          string

	// Identity
	SessionSecret string
	SessionMaxAge time.Duration

	// Model backend
	OpenAIAPIKey       string
	AnthropicAPIKey    string
	LLMProvider        string
	LLMModel           string
	LLMTemperature     float64
	LLMMaxTokens       int
	MaxContextMessages int
	HistoryFetchLimit  int

	// Admission control in front of the model backend
	ModelRateLimitCalls  int
	ModelRateLimitWindow time.Duration

	// Ingress rate limiting on the HTTP API
	HTTPRateLimitRequests int
	HTTPRateLimitWindow   time.Duration

	// Persistence
	StoreDSN         string
	PersistQueueSize int
	PersistWorkers   int
	RetentionDays    int

	// NATS settings (optional event publishing)
	NATSURL      string
	NATSCAFile   string
	NATSCertFile string
	NATSKeyFile  string
	NATSToken    string

	// Voice
	VoiceTTSEnabled bool
	VoiceTTSVoice   string

	// Logging
	LogLevel string

	// Tracing
	TracingEndpoint string
	TracingEnabled  bool
}

// Load reads configuration from environment variables.
func Load() *Config {
	return &Config{
		// Server
		ServerPort:         getEnv("PORT", "5000"),
		ServerReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
		ServerWriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 120*time.Second),
		Environment:        getEnv("ENV", getEnv("FLASK_ENV", "development")),
		StaticDir:          getEnv("STATIC_DIR", "./static"),

		// Identity
		SessionSecret: getEnv("SESSION_SECRET", getEnv("SECRET_KEY", "development-secret-change-in-production")),
		SessionMaxAge: getDurationEnv("SESSION_MAX_AGE", 30*24*time.Hour),

		// Model backend
		OpenAIAPIKey:       getEnv("OPENAI_API_KEY", ""),
		AnthropicAPIKey:    getEnv("ANTHROPIC_API_KEY", ""),
		LLMProvider:        getEnv("LLM_PROVIDER", "openai"),
		LLMModel:           getEnv("LLM_MODEL", ""),
		LLMTemperature:     getFloatEnv("LLM_TEMPERATURE", 0.7),
		LLMMaxTokens:       getIntEnv("LLM_MAX_TOKENS", 1000),
		MaxContextMessages: getIntEnv("MAX_CONTEXT_MESSAGES", 20),
		HistoryFetchLimit:  getIntEnv("HISTORY_FETCH_LIMIT", 10),

		ModelRateLimitCalls:  getIntEnv("MODEL_RATE_LIMIT_CALLS", 50),
		ModelRateLimitWindow: getDurationEnv("MODEL_RATE_LIMIT_WINDOW", 60*time.Second),

		HTTPRateLimitRequests: getIntEnv("HTTP_RATE_LIMIT_REQUESTS", 120),
		HTTPRateLimitWindow:   getDurationEnv("HTTP_RATE_LIMIT_WINDOW", time.Minute),

		// Persistence
		StoreDSN:         getEnv("STORE_DSN", getEnv("MONGODB_URI", "")),
		PersistQueueSize: getIntEnv("PERSIST_QUEUE_SIZE", 256),
		PersistWorkers:   getIntEnv("PERSIST_WORKERS", 2),
		RetentionDays:    getIntEnv("RETENTION_DAYS", 30),

		// NATS
		NATSURL:      getEnv("NATS_URL", ""),
		NATSCAFile:   getEnv("NATS_CA_FILE", ""),
		NATSCertFile: getEnv("NATS_CERT_FILE", ""),
		NATSKeyFile:  getEnv("NATS_KEY_FILE", ""),
		NATSToken:    getEnv("NATS_TOKEN", ""),

		// Voice
		VoiceTTSEnabled: getBoolEnv("VOICE_TTS_ENABLED", false),
		VoiceTTSVoice:   getEnv("VOICE_TTS_VOICE", "alloy"),

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "info"),

		// Tracing
		TracingEndpoint: getEnv("TRACING_ENDPOINT", "localhost:4318"),
		TracingEnabled:  getBoolEnv("TRACING_ENABLED", false),
	}
}

// ModelConfigured reports whether a credential exists for the selected provider.
func (c *Config) ModelConfigured() bool {
	switch strings.ToLower(c.LLMProvider) {
	case "anthropic":
		return c.AnthropicAPIKey != ""
	default:
		return c.OpenAIAPIKey != ""
	}
}

// IsDevelopment reports whether the environment mode is development.
func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.Environment, "development")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
