package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zyeon-ai/realtime-gateway/internal/config"
	"github.com/zyeon-ai/realtime-gateway/pkg/logger"
)

func testConfig() *config.Config {
	return &config.Config{
		Environment:           "development",
		SessionSecret:         "test-secret",
		SessionMaxAge:         time.Hour,
		LLMProvider:           "openai",
		LLMTemperature:        0.7,
		LLMMaxTokens:          1000,
		MaxContextMessages:    20,
		HistoryFetchLimit:     10,
		ModelRateLimitCalls:   50,
		ModelRateLimitWindow:  time.Minute,
		HTTPRateLimitRequests: 100,
		HTTPRateLimitWindow:   time.Minute,
		StoreDSN:              "memory://",
		PersistQueueSize:      8,
		PersistWorkers:        1,
	}
}

func TestNewWithoutCredentials(t *testing.T) {
	a, err := New(context.Background(), testConfig(), logger.NewNop(), "test")
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(context.Background()) })

	assert.False(t, a.Generator.Available())
	assert.Equal(t, "gpt-3.5-turbo", a.Generator.Model())
	assert.True(t, a.Store.Available())
	assert.Nil(t, a.Voice)
	assert.Nil(t, a.Publisher)

	srv := httptest.NewServer(a.Router)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "test", body["version"])
	features := body["features"].(map[string]any)
	assert.Equal(t, false, features["ai_service"])
	assert.Equal(t, true, features["persistence"])
	assert.Equal(t, false, features["voice_recognition"])

	resp, err = http.Post(srv.URL+"/api/chat", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestVoiceNeedsOpenAICredential(t *testing.T) {
	cfg := testConfig()
	cfg.OpenAIAPIKey = "sk-test"
	cfg.VoiceTTSEnabled = true
	cfg.VoiceTTSVoice = "nova"

	a, err := New(context.Background(), cfg, logger.NewNop(), "test")
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(context.Background()) })

	require.NotNil(t, a.Voice)
	assert.True(t, a.Voice.RecognitionAvailable())
	assert.True(t, a.Voice.SynthesisAvailable())
	assert.NotNil(t, a.Capturer)
	assert.True(t, a.Generator.Available())
}

func TestOpenStore(t *testing.T) {
	cfg := testConfig()
	cfg.StoreDSN = ""
	st, err := OpenStore(context.Background(), cfg, logger.NewNop())
	require.NoError(t, err)
	assert.False(t, st.Available())

	cfg.StoreDSN = "postgres://localhost/db"
	st, err = OpenStore(context.Background(), cfg, logger.NewNop())
	assert.Error(t, err)
	assert.False(t, st.Available())

	cfg.StoreDSN = "sqlite://" + t.TempDir() + "/zyeon.db"
	st, err = OpenStore(context.Background(), cfg, logger.NewNop())
	require.NoError(t, err)
	assert.True(t, st.Available())
	assert.NoError(t, st.Close())
}

func TestStartupSurvivesUnreachableNATS(t *testing.T) {
	cfg := testConfig()
	cfg.NATSURL = "nats://127.0.0.1:1"

	a, err := New(context.Background(), cfg, logger.NewNop(), "test")
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(context.Background()) })
	assert.Nil(t, a.NATS)
	assert.Nil(t, a.Publisher)
}
