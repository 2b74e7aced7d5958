package generator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zyeon-ai/realtime-gateway/internal/llm"
	"github.com/zyeon-ai/realtime-gateway/internal/model"
	"github.com/zyeon-ai/realtime-gateway/internal/ratelimit"
	"github.com/zyeon-ai/realtime-gateway/internal/retry"
)

type step struct {
	resp *llm.CompletionResponse
	err  error
}

// scriptedClient replays steps in order and repeats the last one.
type scriptedClient struct {
	mu       sync.Mutex
	steps    []step
	requests []*llm.CompletionRequest
}

func (c *scriptedClient) Complete(_ context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, req)
	i := len(c.requests) - 1
	if i >= len(c.steps) {
		i = len(c.steps) - 1
	}
	return c.steps[i].resp, c.steps[i].err
}

func (c *scriptedClient) Name() string     { return "scripted" }
func (c *scriptedClient) Models() []string { return []string{"test-model"} }

func (c *scriptedClient) calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.requests)
}

func ok(text string) step {
	return step{resp: &llm.CompletionResponse{Content: text, Model: "test-model", TokensIn: 10, TokensOut: 5}}
}

func fail(err error) step {
	return step{err: err}
}

func newTestGenerator(t *testing.T, client llm.Client, delays *[]time.Duration) *Generator {
	t.Helper()
	p := retry.Default()
	p.Sleep = func(_ context.Context, d time.Duration) error {
		if delays != nil {
			*delays = append(*delays, d)
		}
		return nil
	}
	return New(client, ratelimit.New(50, time.Minute), Config{
		Model:              "gpt-3.5-turbo",
		Temperature:        0.7,
		MaxTokens:          1000,
		MaxContextMessages: 20,
	}, nil, WithRetryPolicy(p))
}

func turns(n int) []model.Turn {
	out := make([]model.Turn, n)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range out {
		out[i] = model.Turn{
			UserMessage: fmt.Sprintf("q%d", i),
			AIResponse:  fmt.Sprintf("a%d", i),
			Timestamp:   base.Add(time.Duration(i) * time.Minute),
		}
	}
	return out
}

func TestGenerateRetriesTransientFailures(t *testing.T) {
	client := &scriptedClient{steps: []step{
		fail(errors.New("connection reset by peer")),
		fail(errors.New("connection reset by peer")),
		ok("  Hello there!  "),
	}}
	var delays []time.Duration
	g := newTestGenerator(t, client, &delays)

	resp := g.Generate(context.Background(), Request{Input: "Hello"})

	require.False(t, resp.Degraded())
	assert.Equal(t, "Hello there!", resp.Text)
	assert.Equal(t, 3, client.calls())
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, delays)
	assert.Equal(t, "gpt-3.5-turbo", resp.Metadata["model"])
	assert.Equal(t, ContextDefault, resp.Metadata["context_type"])
	assert.Equal(t, 15, resp.Metadata["tokens_used"])
	assert.Equal(t, 10, resp.Metadata["prompt_tokens"])
	assert.Equal(t, 5, resp.Metadata["completion_tokens"])
	assert.Equal(t, 1000, resp.Metadata["max_tokens"])
	assert.Equal(t, 49, g.Limiter().Remaining(), "one admission per generate call, not per attempt")
}

func TestGenerateDegradesWhenUpstreamAlwaysFails(t *testing.T) {
	client := &scriptedClient{steps: []step{fail(errors.New("upstream exploded"))}}
	g := newTestGenerator(t, client, nil)

	resp := g.Generate(context.Background(), Request{Input: "Hello"})

	assert.True(t, resp.Degraded())
	assert.Equal(t, OutcomeGeneric, resp.Outcome)
	assert.NotEmpty(t, resp.Text)
	assert.Empty(t, resp.Metadata)
	assert.Equal(t, 3, client.calls())
}

func TestGenerateDoesNotRetryAuthFailures(t *testing.T) {
	authErr := &openai.APIError{HTTPStatusCode: http.StatusUnauthorized, Message: "Incorrect API key provided"}
	client := &scriptedClient{steps: []step{fail(authErr)}}
	var delays []time.Duration
	g := newTestGenerator(t, client, &delays)

	resp := g.Generate(context.Background(), Request{Input: "Hello"})

	assert.Equal(t, OutcomeAuth, resp.Outcome)
	assert.Equal(t, msgAuth, resp.Text)
	assert.Equal(t, 1, client.calls())
	assert.Empty(t, delays)
}

func TestGenerateRejectsEmptyInput(t *testing.T) {
	client := &scriptedClient{steps: []step{ok("unused")}}
	g := newTestGenerator(t, client, nil)

	resp := g.Generate(context.Background(), Request{Input: "   \n\t"})

	assert.Equal(t, OutcomeInvalidInput, resp.Outcome)
	assert.Equal(t, 0, client.calls())
	assert.Equal(t, 50, g.Limiter().Remaining())
}

func TestGenerateWithoutClientDegrades(t *testing.T) {
	g := New(nil, nil, Config{}, nil)

	assert.False(t, g.Available())
	resp := g.Generate(context.Background(), Request{Input: "Hello"})
	assert.Equal(t, OutcomeAuth, resp.Outcome)
}

func TestAdmissionRejectsCallFiftyOneBeforeUpstream(t *testing.T) {
	client := &scriptedClient{steps: []step{ok("fine")}}
	g := newTestGenerator(t, client, nil)

	var outcomes []Outcome
	for i := 0; i < 61; i++ {
		outcomes = append(outcomes, g.Generate(context.Background(), Request{Input: "ping"}).Outcome)
	}

	for i := 0; i < 50; i++ {
		require.Equal(t, OutcomeOK, outcomes[i], "call %d", i+1)
	}
	for i := 50; i < 61; i++ {
		require.Equal(t, OutcomeRateLimited, outcomes[i], "call %d", i+1)
	}
	assert.Equal(t, 50, client.calls())
}

func TestBuildPromptBoundsContextWindow(t *testing.T) {
	client := &scriptedClient{steps: []step{ok("ok")}}
	g := newTestGenerator(t, client, nil)

	history := turns(30)
	resp := g.Generate(context.Background(), Request{Input: "latest", History: history})
	require.False(t, resp.Degraded())

	require.Equal(t, 1, client.calls())
	sent := client.requests[0]
	assert.Equal(t, g.SystemPrompt(ContextDefault), sent.System)
	require.Len(t, sent.Messages, 20*2+1)

	for i := 0; i < 20; i++ {
		want := history[10+i]
		assert.Equal(t, "user", sent.Messages[2*i].Role)
		assert.Equal(t, want.UserMessage, sent.Messages[2*i].Content)
		assert.Equal(t, "assistant", sent.Messages[2*i+1].Role)
		assert.Equal(t, want.AIResponse, sent.Messages[2*i+1].Content)
	}
	last := sent.Messages[len(sent.Messages)-1]
	assert.Equal(t, "user", last.Role)
	assert.Equal(t, "latest", last.Content)
}

func TestSystemPromptFallsBackToDefault(t *testing.T) {
	g := newTestGenerator(t, nil, nil)

	assert.Contains(t, g.SystemPrompt(ContextVoice), "voice interaction")
	assert.Contains(t, g.SystemPrompt(ContextTechnical), "technical")
	assert.Equal(t, g.SystemPrompt(ContextDefault), g.SystemPrompt("unknown"))
	assert.Equal(t, g.SystemPrompt(ContextDefault), g.SystemPrompt(ContextRealtime))
}

func TestBuildPromptOverrides(t *testing.T) {
	g := newTestGenerator(t, nil, nil)
	temp := 0.2

	req := g.BuildPrompt(Request{Input: " hi ", Temperature: &temp, MaxTokens: 64})
	assert.Equal(t, 0.2, req.Temperature)
	assert.Equal(t, 64, req.MaxTokens)
	assert.Equal(t, "hi", req.Messages[0].Content)
}

func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		want Outcome
	}{
		{&openai.APIError{HTTPStatusCode: http.StatusTooManyRequests}, OutcomeRateLimited},
		{&openai.APIError{HTTPStatusCode: http.StatusForbidden}, OutcomeAuth},
		{&openai.APIError{HTTPStatusCode: http.StatusBadRequest}, OutcomeInvalidInput},
		{context.DeadlineExceeded, OutcomeConnectivity},
		{errors.New("rate_limit_exceeded"), OutcomeRateLimited},
		{errors.New("Invalid request"), OutcomeInvalidInput},
		{errors.New("Authentication failed"), OutcomeAuth},
		{errors.New("Connection refused"), OutcomeConnectivity},
		{errors.New("boom"), OutcomeGeneric},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Classify(tc.err), tc.err.Error())
	}

	assert.False(t, Transient(context.Canceled))
	assert.False(t, Transient(errors.New("invalid model")))
	assert.True(t, Transient(errors.New("connection reset")))
}

func TestHealthCheck(t *testing.T) {
	client := &scriptedClient{steps: []step{ok("hi")}}
	g := newTestGenerator(t, client, nil)

	h := g.HealthCheck(context.Background())
	assert.Equal(t, "healthy", h.Status)
	assert.True(t, h.APIAccessible)
	assert.Equal(t, 50, h.RateLimitRemaining)

	client = &scriptedClient{steps: []step{fail(errors.New("down"))}}
	g = newTestGenerator(t, client, nil)
	h = g.HealthCheck(context.Background())
	assert.Equal(t, "unhealthy", h.Status)
	assert.False(t, h.APIAccessible)
	assert.Equal(t, "down", h.Error)
	assert.Equal(t, 1, client.calls())
}

func TestSuggestions(t *testing.T) {
	client := &scriptedClient{steps: []step{ok("```json\n[\"a\",\"b\",\"c\",\"d\"]\n```")}}
	g := newTestGenerator(t, client, nil)

	got := g.Suggestions(context.Background(), turns(2))
	assert.Equal(t, []string{"a", "b", "c"}, got)
	assert.Contains(t, client.requests[0].Messages[0].Content, "a1")

	assert.Empty(t, g.Suggestions(context.Background(), nil))

	client = &scriptedClient{steps: []step{ok("not json")}}
	g = newTestGenerator(t, client, nil)
	got = g.Suggestions(context.Background(), turns(1))
	require.NotNil(t, got)
	assert.Empty(t, got)
}

func TestSummarizeAndSentiment(t *testing.T) {
	client := &scriptedClient{steps: []step{ok(" A short chat. ")}}
	g := newTestGenerator(t, client, nil)

	assert.Equal(t, "No conversation to summarize.", g.Summarize(context.Background(), nil))
	assert.Equal(t, "A short chat.", g.Summarize(context.Background(), turns(15)))
	assert.NotContains(t, client.requests[0].Messages[0].Content, "q4\n")
	assert.Contains(t, client.requests[0].Messages[0].Content, "User: q14")

	client = &scriptedClient{steps: []step{ok(`{"sentiment":"positive","confidence":0.9,"emotions":["joy"]}`)}}
	g = newTestGenerator(t, client, nil)
	s := g.AnalyzeSentiment(context.Background(), "I love this")
	assert.Equal(t, "positive", s.Sentiment)
	assert.Equal(t, []string{"joy"}, s.Emotions)

	client = &scriptedClient{steps: []step{fail(errors.New("x"))}}
	g = newTestGenerator(t, client, nil)
	assert.Equal(t, "neutral", g.AnalyzeSentiment(context.Background(), "meh").Sentiment)
}
