package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/twinlab/digital-twin/internal/apperr"
)

func completionJSON(content string) string {
	return fmt.Sprintf(`{"id":"chatcmpl-1","object":"chat.completion","model":"llama-3.1-8b-instant",`+
		`"choices":[{"index":0,"message":{"role":"assistant","content":%q},"finish_reason":"stop"}]}`, content)
}

func newGroqServer(t *testing.T, handler http.HandlerFunc) (*GroqProvider, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return NewGroqProvider("test-key", srv.URL, srv.Client()), &calls
}

func TestGroqComplete(t *testing.T) {
	p, _ := newGroqServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "llama-3.1-8b-instant", body["model"])
		assert.EqualValues(t, 500, body["max_tokens"])
		assert.InDelta(t, 0.7, body["temperature"], 1e-6)

		msgs := body["messages"].([]any)
		require.Len(t, msgs, 2)
		assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
		assert.Equal(t, DefaultSystemPrompt, msgs[0].(map[string]any)["content"])
		assert.Equal(t, "Where did you study?", msgs[1].(map[string]any)["content"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, completionJSON("I studied computer science."))
	})

	req := Request{
		Prompt:       "Where did you study?",
		SystemPrompt: DefaultSystemPrompt,
		Model:        "llama-3.1-8b-instant",
		Temperature:  0.7,
		MaxTokens:    500,
	}
	text, err := p.Complete(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "I studied computer science.", text)
}

func TestGroqZeroTemperatureIsSent(t *testing.T) {
	p, _ := newGroqServer(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Contains(t, body, "temperature")
		_, _ = io.WriteString(w, completionJSON("ok"))
	})

	_, err := p.Complete(context.Background(), Request{Prompt: "x", Model: "m", MaxTokens: 10})
	require.NoError(t, err)
}

func TestGroqStream(t *testing.T) {
	p, _ := newGroqServer(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, true, body["stream"])

		w.Header().Set("Content-Type", "text/event-stream")
		for _, chunk := range []string{"I ", "", "build ", "APIs."} {
			fmt.Fprintf(w, "data: {\"id\":\"1\",\"object\":\"chat.completion.chunk\",\"choices\":[{\"index\":0,\"delta\":{\"content\":%q}}]}\n\n", chunk)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	})

	ts, err := p.OpenStream(context.Background(), Request{Prompt: "x", Model: "m", MaxTokens: 10})
	require.NoError(t, err)
	defer ts.Close()

	var got []string
	for {
		text, err := ts.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		got = append(got, text)
	}
	assert.Equal(t, []string{"I ", "build ", "APIs."}, got)
}

func TestGroqErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   apperr.Kind
	}{
		{"rate limit", http.StatusTooManyRequests, `{"error":{"message":"Rate limit reached","type":"tokens","code":"rate_limit_exceeded"}}`, apperr.KindRateLimited},
		{"bad key", http.StatusUnauthorized, `{"error":{"message":"Invalid API Key","type":"invalid_request_error","code":"invalid_api_key"}}`, apperr.KindUnauthorized},
		{"unknown model", http.StatusNotFound, `{"error":{"message":"The model does not exist","type":"invalid_request_error","code":"model_not_found"}}`, apperr.KindInvalidModel},
		{"server error", http.StatusInternalServerError, `{"error":{"message":"internal error","type":"server_error"}}`, apperr.KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, _ := newGroqServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			})

			_, err := p.Complete(context.Background(), Request{Prompt: "x", Model: "m", MaxTokens: 10})
			require.Error(t, err)
			assert.Equal(t, tt.want, Classify(err))
		})
	}
}

func TestGroqServiceRetriesRateLimit(t *testing.T) {
	p, calls := newGroqServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"error":{"message":"Rate limit reached","code":"rate_limit_exceeded"}}`)
	})

	rec := &sleepRecorder{}
	policy := DefaultRetryPolicy()
	policy.Sleep = rec.sleep
	s := NewService(p, WithRetryPolicy(policy))

	_, err := s.Generate(context.Background(), NewRequest("hello"))
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrRateLimited)
	assert.EqualValues(t, 3, atomic.LoadInt32(calls))
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, rec.delays)
	assert.True(t, strings.Contains(err.Error(), "rate limit"))
}
