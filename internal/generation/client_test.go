package generation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical-ai/spherical/libs/grounding-engine/internal/config"
)

var fastRetry = &RetryConfig{MaxRetries: 2, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}

func TestClient_Complete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "m", req.Model)
		assert.Equal(t, 256, req.MaxTokens)
		require.Len(t, req.Messages, 1)
		assert.Equal(t, "hello", req.Messages[0].Content)

		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"  hi there \n"}}]}`))
	}))
	defer srv.Close()

	c, err := NewClient(ClientConfig{APIKey: "key", BaseURL: srv.URL + "/", Model: "m", MaxTokens: 256, Retry: fastRetry})
	require.NoError(t, err)

	out, err := c.Complete(context.Background(), []Message{{Role: "user", Content: "hello"}})
	require.NoError(t, err)
	assert.Equal(t, "hi there", out)
	assert.Equal(t, "m", c.Model())
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer srv.Close()

	c, err := NewClient(ClientConfig{APIKey: "key", BaseURL: srv.URL, Retry: fastRetry})
	require.NoError(t, err)

	out, err := c.Complete(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_GivesUp(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c, err := NewClient(ClientConfig{APIKey: "key", BaseURL: srv.URL, Retry: fastRetry})
	require.NoError(t, err)

	_, err = c.Complete(context.Background(), nil)
	assert.ErrorContains(t, err, "request failed after 2 retries")
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_NonRetryableError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"bad model","type":"invalid_request"}}`))
	}))
	defer srv.Close()

	c, err := NewClient(ClientConfig{APIKey: "key", BaseURL: srv.URL, Retry: fastRetry})
	require.NoError(t, err)

	_, err = c.Complete(context.Background(), nil)
	assert.EqualError(t, err, "API error: bad model (type: invalid_request)")
}

func TestNew_RequiresKey(t *testing.T) {
	_, err := New(config.GenerationConfig{}, nil)
	assert.Error(t, err)

	g, err := New(config.GenerationConfig{APIKey: "k", MaxContext: 100, Repair: true}, nil)
	require.NoError(t, err)
	assert.Equal(t, Options{MaxContextChars: 100, Repair: true}, g.opts)
}

func TestNew_SingleAttemptByDefault(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	g, err := New(config.GenerationConfig{APIKey: "k", BaseURL: srv.URL}, nil)
	require.NoError(t, err)

	_, err = g.llm.Complete(context.Background(), []Message{{Role: "user", Content: "hi"}})
	assert.ErrorContains(t, err, "HTTP 503")
	assert.EqualValues(t, 1, calls.Load())
}

func TestCalculateBackoff(t *testing.T) {
	cfg := &RetryConfig{InitialBackoff: time.Second, MaxBackoff: 3 * time.Second}
	assert.Equal(t, time.Second, calculateBackoff(0, cfg))
	assert.Equal(t, 2*time.Second, calculateBackoff(1, cfg))
	assert.Equal(t, 3*time.Second, calculateBackoff(2, cfg))
}

func TestClient_RateLimit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"ok"}}]}`))
	}))
	defer srv.Close()

	c, err := NewClient(ClientConfig{APIKey: "k", BaseURL: srv.URL, RequestsPerMinute: 1, Retry: fastRetry})
	require.NoError(t, err)

	_, err = c.Complete(context.Background(), []Message{{Role: "user", Content: "a"}})
	require.NoError(t, err)

	// The next slot is a minute away, past this deadline.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = c.Complete(ctx, []Message{{Role: "user", Content: "b"}})
	assert.ErrorContains(t, err, "rate limit")
	assert.EqualValues(t, 1, calls.Load())
}
