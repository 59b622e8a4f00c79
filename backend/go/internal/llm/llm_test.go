package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"foodietrack/backend/go/internal/config"
	"foodietrack/backend/go/internal/metrics"
	"foodietrack/backend/go/pkg/circuitbreaker"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeJSON(t *testing.T) {
	var out struct {
		Sentiment string `json:"sentiment"`
	}
	require.NoError(t, DecodeJSON(`{"sentiment":"positive"}`, &out))
	assert.Equal(t, "positive", out.Sentiment)

	require.NoError(t, DecodeJSON("```json\n{\"sentiment\":\"negative\"}\n```", &out))
	assert.Equal(t, "negative", out.Sentiment)

	assert.Error(t, DecodeJSON("I think it's positive", &out))
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(context.Background(), config.LLMConfig{Provider: "gemini"})
	assert.Error(t, err)

	_, err = NewClient(context.Background(), config.LLMConfig{Provider: "claude"})
	assert.Error(t, err)

	c, err := NewClient(context.Background(), config.LLMConfig{
		Provider: "openai",
		OpenAI:   config.OpenAIConfig{APIKey: "k", Model: "gpt-4o-mini"},
	})
	require.NoError(t, err)
	assert.IsType(t, &OpenAI{}, c)
}

func TestOpenAI_GenerateJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req struct {
			Model       string   `json:"model"`
			Temperature *float64 `json:"temperature"`
			Messages    []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
			ResponseFormat struct {
				Type string `json:"type"`
			} `json:"response_format"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-4o-mini", req.Model)
		require.NotNil(t, req.Temperature)
		assert.InDelta(t, 0.2, *req.Temperature, 1e-6)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)
		assert.Equal(t, "hello", req.Messages[1].Content)
		assert.Equal(t, "json_object", req.ResponseFormat.Type)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"{\"ok\":true}"},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	o := NewOpenAI("gpt-4o-mini", "sk-test", srv.URL+"/v1")
	out, err := o.GenerateJSON(context.Background(), "be terse", "hello")
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, out)
}

func TestOpenAI_EmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","choices":[]}`))
	}))
	defer srv.Close()

	_, err := NewOpenAI("gpt-4o-mini", "sk-test", srv.URL+"/v1").GenerateJSON(context.Background(), "", "hello")
	assert.Error(t, err)
}

type stubLLM struct {
	out   string
	err   error
	calls int
}

func (s *stubLLM) GenerateJSON(context.Context, string, string) (string, error) {
	s.calls++
	return s.out, s.err
}

func (s *stubLLM) Close() error { return nil }

func TestGuarded_OpensBreaker(t *testing.T) {
	stub := &stubLLM{err: errors.New("quota exceeded")}
	m := metrics.New()
	g := NewGuarded(stub, circuitbreaker.New("llm", circuitbreaker.Settings{FailureThreshold: 2, Timeout: time.Minute}), m)

	for i := 0; i < 2; i++ {
		_, err := g.GenerateJSON(context.Background(), "", "p")
		assert.Error(t, err)
	}
	_, err := g.GenerateJSON(context.Background(), "", "p")
	assert.ErrorIs(t, err, circuitbreaker.ErrCircuitOpen)
	assert.Equal(t, 2, stub.calls)
	assert.Equal(t, 3.0, testutil.ToFloat64(m.UpstreamCalls.WithLabelValues("llm", "error")))
}

func TestGuarded_PassesThrough(t *testing.T) {
	stub := &stubLLM{out: `{"ok":true}`}
	g := NewGuarded(stub, nil, nil)

	out, err := g.GenerateJSON(context.Background(), "sys", "prompt")
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, out)
}
