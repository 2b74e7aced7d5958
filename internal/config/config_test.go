package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"PORT", "STORE_DSN", "MONGODB_URI", "MODEL_RATE_LIMIT_CALLS", "OPENAI_API_KEY", "ENV", "FLASK_ENV"} {
		t.Setenv(k, "")
	}

	cfg := Load()
	assert.Equal(t, "5000", cfg.ServerPort)
	assert.Equal(t, 50, cfg.ModelRateLimitCalls)
	assert.Equal(t, 60*time.Second, cfg.ModelRateLimitWindow)
	assert.Equal(t, 20, cfg.MaxContextMessages)
	assert.Equal(t, 10, cfg.HistoryFetchLimit)
	assert.Equal(t, "", cfg.StoreDSN)
	assert.False(t, cfg.ModelConfigured())
	assert.True(t, cfg.IsDevelopment())
}

func TestLoadOverridesAndAliases(t *testing.T) {
	t.Setenv("STORE_DSN", "")
	t.Setenv("MONGODB_URI", "mongodb://db:27017")
	t.Setenv("SECRET_KEY", "s3cret")
	t.Setenv("SESSION_SECRET", "")
	t.Setenv("MODEL_RATE_LIMIT_WINDOW", "30s")
	t.Setenv("LLM_TEMPERATURE", "0.2")
	t.Setenv("LLM_PROVIDER", "anthropic")
	t.Setenv("ANTHROPIC_API_KEY", "key")
	t.Setenv("ENV", "production")

	cfg := Load()
	assert.Equal(t, "mongodb://db:27017", cfg.StoreDSN)
	assert.Equal(t, "s3cret", cfg.SessionSecret)
	assert.Equal(t, 30*time.Second, cfg.ModelRateLimitWindow)
	assert.InDelta(t, 0.2, cfg.LLMTemperature, 1e-9)
	assert.True(t, cfg.ModelConfigured())
	assert.False(t, cfg.IsDevelopment())
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("PERSIST_WORKERS", "many")
	t.Setenv("TRACING_ENABLED", "perhaps")

	cfg := Load()
	assert.Equal(t, 2, cfg.PersistWorkers)
	assert.False(t, cfg.TracingEnabled)
}
