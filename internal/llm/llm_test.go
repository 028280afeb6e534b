package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testMessages = []Message{
	{Role: RoleSystem, Content: "You are a consultant."},
	{Role: RoleUser, Content: "List questions."},
}

func TestOpenAIClient_Complete(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"model": "gpt-4o-mini",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "1. What does breakfast look like?"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 120, "completion_tokens": 30, "total_tokens": 150}
		}`)
	}))
	defer srv.Close()

	c := NewOpenAIClient("sk-test", "gpt-4o-mini", srv.URL+"/v1")
	resp, err := c.Complete(context.Background(), testMessages, Options{Temperature: 0.2})
	require.NoError(t, err)

	assert.Equal(t, "1. What does breakfast look like?", resp.Content)
	assert.Equal(t, 120, resp.InputTokens)
	assert.Equal(t, 30, resp.OutputTokens)
	assert.Equal(t, "gpt-4o-mini", got["model"])
	assert.InDelta(t, 0.2, got["temperature"], 0.001)
	msgs := got["messages"].([]any)
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
}

func TestOpenAIClient_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"error": {"message": "slow down", "type": "rate_limit"}}`)
	}))
	defer srv.Close()

	c := NewOpenAIClient("sk-test", "gpt-4o-mini", srv.URL+"/v1")
	_, err := c.Complete(context.Background(), testMessages, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
	assert.Contains(t, err.Error(), "slow down")
}

func TestGoogleClient_Complete(t *testing.T) {
	var got geminiRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/gemini-2.5-flash:generateContent", r.URL.Path)
		assert.Equal(t, "g-key", r.Header.Get("x-goog-api-key"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		_, _ = io.WriteString(w, `{
			"candidates": [{"content": {"role": "model", "parts": [{"text": "- CBC"}, {"text": "\n- TSH"}]}, "finishReason": "STOP"}],
			"usageMetadata": {"promptTokenCount": 50, "candidatesTokenCount": 8}
		}`)
	}))
	defer srv.Close()

	c := NewGoogleClient("g-key", "gemini-2.5-flash")
	c.baseURL = srv.URL

	resp, err := c.Complete(context.Background(), testMessages, Options{Temperature: 0.1})
	require.NoError(t, err)

	assert.Equal(t, "- CBC\n- TSH", resp.Content)
	assert.Equal(t, 50, resp.InputTokens)
	assert.Equal(t, 8, resp.OutputTokens)
	assert.False(t, resp.Truncated)
	require.NotNil(t, got.SystemInstruction)
	assert.Equal(t, "You are a consultant.", got.SystemInstruction.Parts[0].Text)
	require.Len(t, got.Contents, 1)
	assert.Equal(t, "user", got.Contents[0].Role)
	assert.InDelta(t, 0.1, got.GenerationConfig.Temperature, 0.001)
	assert.Equal(t, defaultMaxTokens, got.GenerationConfig.MaxOutputTokens)
}

func TestGoogleClient_Replies(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantErr   string
		want      string
		truncated bool
	}{
		{"no candidates", `{"candidates": []}`, "no response candidates", "", false},
		{"prompt blocked", `{"promptFeedback": {"blockReason": "SAFETY"}}`, "prompt blocked: SAFETY", "", false},
		{"reply blocked", `{"candidates": [{"content": {"parts": []}, "finishReason": "SAFETY"}]}`, "reply blocked: SAFETY", "", false},
		{"hit token limit", `{"candidates": [{"content": {"parts": [{"text": "## Plan"}]}, "finishReason": "MAX_TOKENS"}]}`, "", "## Plan", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			c := NewGoogleClient("g-key", "gemini-2.5-flash")
			c.baseURL = srv.URL

			resp, err := c.Complete(context.Background(), testMessages, Options{})
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, resp.Content)
			assert.Equal(t, tt.truncated, resp.Truncated)
		})
	}
}

func TestAnthropicClient_Complete(t *testing.T) {
	var got messagesRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages", r.URL.Path)
		assert.Equal(t, "a-key", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		_, _ = io.WriteString(w, `{
			"id": "msg_1", "type": "message", "role": "assistant", "model": "claude-sonnet-4-5",
			"stop_reason": "max_tokens",
			"content": [{"type": "text", "text": "## Snapshot"}],
			"usage": {"input_tokens": 10, "output_tokens": 3}
		}`)
	}))
	defer srv.Close()

	c := NewAnthropicClient("a-key", "claude-sonnet-4-5")
	c.baseURL = srv.URL

	resp, err := c.Complete(context.Background(), testMessages, Options{Temperature: 0.2, MaxTokens: 1000})
	require.NoError(t, err)

	assert.Equal(t, "## Snapshot", resp.Content)
	assert.Equal(t, "claude-sonnet-4-5", resp.Model)
	assert.True(t, resp.Truncated)
	assert.Equal(t, "You are a consultant.", got.System)
	assert.Equal(t, 1000, got.MaxTokens)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "user", got.Messages[0].Role)
}

func TestAnthropicClient_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"type": "error", "error": {"type": "authentication_error", "message": "invalid x-api-key"}}`)
	}))
	defer srv.Close()

	c := NewAnthropicClient("a-key", "claude-sonnet-4-5")
	c.baseURL = srv.URL

	_, err := c.Complete(context.Background(), testMessages, Options{})
	assert.EqualError(t, err, "API error (401): invalid x-api-key")

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.False(t, apiErr.Retryable())
	assert.True(t, IsClientError(err))
}

func TestErrorMessage(t *testing.T) {
	tests := []struct {
		body string
		want string
	}{
		{`{"error": {"code": 429, "message": "Resource exhausted"}}`, "Resource exhausted"},
		{`{"error": "bad key"}`, "bad key"},
		{"  upstream connect error\n", "upstream connect error"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, errorMessage([]byte(tt.body)))
	}
}

func TestAPIError_Retryable(t *testing.T) {
	for status, want := range map[int]bool{
		http.StatusBadRequest:          false,
		http.StatusUnauthorized:        false,
		http.StatusRequestTimeout:      true,
		http.StatusTooManyRequests:     true,
		http.StatusInternalServerError: true,
		http.StatusServiceUnavailable:  true,
	} {
		err := &APIError{StatusCode: status}
		assert.Equal(t, want, err.Retryable(), "status %d", status)
	}
	assert.False(t, IsClientError(errors.New("dial tcp: refused")))
}

func TestOpenAIEmbedder_Embed(t *testing.T) {
	var inputs []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		var body struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "text-embedding-3-large", body.Model)
		inputs = body.Input

		// Out of order on purpose.
		_, _ = io.WriteString(w, `{
			"object": "list",
			"data": [
				{"object": "embedding", "index": 1, "embedding": [0, 1]},
				{"object": "embedding", "index": 0, "embedding": [1, 0]}
			],
			"model": "text-embedding-3-large",
			"usage": {"prompt_tokens": 4, "total_tokens": 4}
		}`)
	}))
	defer srv.Close()

	e := NewOpenAIEmbedder("sk-test", srv.URL+"/v1")
	long := strings.Repeat("é", MaxEmbedInput+100)

	vecs, err := e.Embed(context.Background(), []string{long, "short"})
	require.NoError(t, err)

	assert.Equal(t, [][]float32{{1, 0}, {0, 1}}, vecs)
	require.Len(t, inputs, 2)
	assert.Len(t, []rune(inputs[0]), MaxEmbedInput)
	assert.Equal(t, "text-embedding-3-large", e.Model())
}

func TestOpenAIEmbedder_Empty(t *testing.T) {
	e := NewOpenAIEmbedder("sk-test", "http://127.0.0.1:1")
	vecs, err := e.Embed(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, vecs)
}

type stubClient struct {
	calls int
	err   error
}

func (s *stubClient) Complete(ctx context.Context, messages []Message, opts Options) (*Response, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &Response{Content: "ok", Model: "stub"}, nil
}

func (s *stubClient) Provider() Provider { return ProviderOpenAI }
func (s *stubClient) Model() string      { return "stub" }

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestGuarded_PassesThrough(t *testing.T) {
	stub := &stubClient{}
	g := NewGuarded(stub, GuardConfig{FailureThreshold: 2, OpenTimeout: time.Minute}, quietLogger())

	resp, err := g.Complete(context.Background(), testMessages, Options{})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
	assert.Equal(t, ProviderOpenAI, g.Provider())
	assert.Equal(t, "stub", g.Model())
}

func TestGuarded_OpensAfterConsecutiveFailures(t *testing.T) {
	stub := &stubClient{err: errors.New("upstream down")}
	g := NewGuarded(stub, GuardConfig{FailureThreshold: 2, OpenTimeout: time.Minute}, quietLogger())

	for i := 0; i < 2; i++ {
		_, err := g.Complete(context.Background(), testMessages, Options{})
		assert.ErrorContains(t, err, "upstream down")
	}

	_, err := g.Complete(context.Background(), testMessages, Options{})
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 2, stub.calls)
	assert.Equal(t, gobreaker.StateOpen, g.State())
}

func TestGuarded_ClientErrorsDoNotTrip(t *testing.T) {
	stub := &stubClient{err: &APIError{StatusCode: http.StatusUnauthorized, Message: "bad key"}}
	g := NewGuarded(stub, GuardConfig{FailureThreshold: 2, OpenTimeout: time.Minute}, quietLogger())

	for i := 0; i < 4; i++ {
		_, err := g.Complete(context.Background(), testMessages, Options{})
		assert.ErrorContains(t, err, "bad key")
	}
	assert.Equal(t, 4, stub.calls)
	assert.Equal(t, gobreaker.StateClosed, g.State())
}

func TestGuarded_RateLimitHonoursContext(t *testing.T) {
	stub := &stubClient{}
	g := NewGuarded(stub, GuardConfig{RequestsPerSecond: 0.001, Burst: 1}, quietLogger())

	_, err := g.Complete(context.Background(), testMessages, Options{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = g.Complete(ctx, testMessages, Options{})
	assert.ErrorContains(t, err, "rate limit wait")
	assert.Equal(t, 1, stub.calls)
}

func TestParseProvider(t *testing.T) {
	p, err := ParseProvider("OpenAI")
	require.NoError(t, err)
	assert.Equal(t, ProviderOpenAI, p)

	_, err = ParseProvider("mistral")
	assert.Error(t, err)
}

func TestNew(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	_, err := New(Config{Provider: ProviderOpenAI})
	assert.ErrorIs(t, err, ErrMissingAPIKey)

	t.Setenv("GOOGLE_API_KEY", "from-env")
	c, err := New(Config{Provider: ProviderGoogle})
	require.NoError(t, err)
	assert.Equal(t, ProviderGoogle, c.Provider())
	assert.Equal(t, "gemini-2.5-flash", c.Model())

	c, err = New(Config{APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, ProviderOpenAI, c.Provider())
	assert.Equal(t, "gpt-4o-mini", c.Model())

	c, err = New(Config{Provider: ProviderAnthropic, APIKey: "k", Model: "claude-x"})
	require.NoError(t, err)
	assert.Equal(t, "claude-x", c.Model())
}
