package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"connectrpc.com/connect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical-ai/spherical/libs/grounding-engine/internal/api/connectrpc"
	"github.com/spherical-ai/spherical/libs/grounding-engine/internal/app"
	"github.com/spherical-ai/spherical/libs/grounding-engine/internal/config"
	"github.com/spherical-ai/spherical/libs/grounding-engine/internal/conversation"
	"github.com/spherical-ai/spherical/libs/grounding-engine/internal/observability"
	"github.com/spherical-ai/spherical/libs/grounding-engine/internal/session"
)

func newTestServer(t *testing.T, mutate func(*config.Config)) *httptest.Server {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Database.SQLite.Path = filepath.Join(t.TempDir(), "api.db")
	if mutate != nil {
		mutate(cfg)
	}

	a, err := app.New(context.Background(), cfg, observability.NopLogger(), app.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	srv := httptest.NewServer(NewRouter(observability.NopLogger(), a, NewAppConfig(cfg)))
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, srv *httptest.Server, method, path string, body any, headers ...string) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, srv.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	if resp.StatusCode != http.StatusNoContent {
		_ = json.NewDecoder(resp.Body).Decode(&out)
	}
	return resp, out
}

func TestHealthAndReady(t *testing.T) {
	srv := newTestServer(t, nil)

	resp, body := do(t, srv, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "healthy", body["status"])

	resp, body = do(t, srv, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ready", body["status"])
}

func TestSessionLifecycle(t *testing.T) {
	srv := newTestServer(t, nil)

	resp, created := do(t, srv, http.MethodPost, "/api/v1/sessions/", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	id, _ := created["session_id"].(string)
	require.NotEmpty(t, id)
	assert.EqualValues(t, 30, created["timeout_minutes"])

	resp, info := do(t, srv, http.MethodGet, "/api/v1/sessions/"+id+"/", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, id, info["session_id"])

	resp, _ = do(t, srv, http.MethodPost, "/api/v1/sessions/"+id+"/extend", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, list := do(t, srv, http.MethodGet, "/api/v1/sessions/", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 1, list["count"])

	resp, _ = do(t, srv, http.MethodDelete, "/api/v1/sessions/"+id+"/", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = do(t, srv, http.MethodGet, "/api/v1/sessions/"+id+"/", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = do(t, srv, http.MethodDelete, "/api/v1/sessions/"+id+"/", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestChatAndTranscript(t *testing.T) {
	srv := newTestServer(t, nil)

	resp, reply := do(t, srv, http.MethodPost, "/api/v1/chat", map[string]string{"message": "what is tier?"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	id, _ := reply["session_id"].(string)
	require.NotEmpty(t, id)
	// Empty corpus: nothing clears the threshold, so the first turn clarifies.
	assert.Equal(t, string(conversation.RouteClarify), reply["route"])
	assert.Equal(t, conversation.FallbackClarification, reply["answer"])

	resp, transcript := do(t, srv, http.MethodGet, "/api/v1/sessions/"+id+"/transcript", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	entries, _ := transcript["entries"].([]any)
	assert.Len(t, entries, 2)

	resp, body := do(t, srv, http.MethodPost, "/api/v1/chat", map[string]string{"session_id": id, "message": ""})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "message is required", body["error"])

	resp, _ = do(t, srv, http.MethodPost, "/api/v1/chat", map[string]string{"session_id": "missing", "message": "hi"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = do(t, srv, http.MethodGet, "/api/v1/sessions/missing/transcript", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestChat_InvalidBody(t *testing.T) {
	srv := newTestServer(t, nil)
	resp, err := srv.Client().Post(srv.URL+"/api/v1/chat", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestScore(t *testing.T) {
	srv := newTestServer(t, nil)

	resp, body := do(t, srv, http.MethodPost, "/api/v1/score/", map[string]any{
		"question": "What does Gold require?",
		"answer":   "Gold requires $25,000.",
		"contexts": []string{"The Gold tier requires a combined balance of $20,000."},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	report, _ := body["report"].(map[string]any)
	require.NotNil(t, report)
	assert.Equal(t, []any{"money:$25000"}, report["unsupported_numbers"])
	assert.NotEmpty(t, body["confidence"])

	resp, _ = do(t, srv, http.MethodPost, "/api/v1/score/", map[string]any{"question": "q"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = do(t, srv, http.MethodPost, "/api/v1/score/batch", map[string]any{
		"cases": []map[string]any{
			{"id": "one", "question": "q", "answer": "a", "contexts": []string{"a"}},
			{"id": "two", "question": "q", "answer": "b", "contexts": []string{}},
		},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	results, _ := body["results"].([]any)
	assert.Len(t, results, 2)
}

func TestAuth(t *testing.T) {
	srv := newTestServer(t, func(cfg *config.Config) {
		cfg.Auth.Enabled = true
		cfg.Auth.APIKeys = []string{"secret"}
	})

	resp, _ := do(t, srv, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = do(t, srv, http.MethodGet, "/api/v1/sessions/", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = do(t, srv, http.MethodGet, "/api/v1/sessions/", nil, "X-API-Key", "wrong")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = do(t, srv, http.MethodGet, "/api/v1/sessions/", nil, "X-API-Key", "secret")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = do(t, srv, http.MethodGet, "/api/v1/sessions/", nil, "Authorization", "Bearer secret")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = do(t, srv, http.MethodGet, "/api/v1/sessions/", nil, "Authorization", "Basic secret")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestConnectMount(t *testing.T) {
	srv := newTestServer(t, nil)
	client := connect.NewClient[connectrpc.ChatRequest, connectrpc.ChatResponse](
		srv.Client(), srv.URL+connectrpc.ChatProcedure, connect.WithCodec(connectrpc.JSONCodec{}))

	resp, err := client.CallUnary(context.Background(), connect.NewRequest(&connectrpc.ChatRequest{Message: "hello"}))
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Msg.SessionID)

	_, err = client.CallUnary(context.Background(), connect.NewRequest(&connectrpc.ChatRequest{SessionID: "nope", Message: "hello"}))
	assert.Equal(t, connect.CodeNotFound, connect.CodeOf(err))
	assert.ErrorContains(t, err, session.ErrNotFound.Error())
}
