package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical-ai/spherical/libs/grounding-engine/internal/cache"
	"github.com/spherical-ai/spherical/libs/grounding-engine/internal/config"
	"github.com/spherical-ai/spherical/libs/grounding-engine/internal/scoring"
)

func TestClient_Embed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "Grounding Engine", r.Header.Get("X-Title"))

		var req embeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []string{"a", "b"}, req.Input)
		assert.Equal(t, "test-model", req.Model)

		// Out of order on purpose; the client must reorder by index.
		_, _ = w.Write([]byte(`{"data":[{"index":1,"embedding":[0,1]},{"index":0,"embedding":[1,0]}]}`))
	}))
	defer srv.Close()

	c, err := NewClient(Config{APIKey: "secret", Model: "test-model", BaseURL: srv.URL})
	require.NoError(t, err)

	got, err := c.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 0}, {0, 1}}, got)

	none, err := c.Embed(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestClient_SplitsLargeInputs(t *testing.T) {
	var sizes []int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req embeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		sizes = append(sizes, len(req.Input))

		var resp embeddingResponse
		require.NoError(t, json.Unmarshal([]byte(`{"data":[]}`), &resp))
		for i, in := range req.Input {
			resp.Data = append(resp.Data, struct {
				Embedding []float32 `json:"embedding"`
				Index     int       `json:"index"`
			}{Embedding: []float32{float32(len(in))}, Index: i})
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer srv.Close()

	c, err := NewClient(Config{APIKey: "k", BaseURL: srv.URL + "/", MaxBatch: 2})
	require.NoError(t, err)

	got, err := c.Embed(context.Background(), []string{"a", "bb", "ccc"})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 1}, sizes)
	assert.Equal(t, [][]float32{{1}, {2}, {3}}, got)
}

func TestClient_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key","type":"auth"}}`))
	}))
	defer srv.Close()

	c, err := NewClient(Config{APIKey: "x", BaseURL: srv.URL})
	require.NoError(t, err)
	_, err = c.EmbedSingle(context.Background(), "a")
	assert.ErrorContains(t, err, "bad key")

	_, err = NewClient(Config{})
	assert.Error(t, err)
}

func TestClient_MissingVector(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"index":0,"embedding":[1]}]}`))
	}))
	defer srv.Close()

	c, err := NewClient(Config{APIKey: "x", BaseURL: srv.URL})
	require.NoError(t, err)
	_, err = c.Embed(context.Background(), []string{"a", "b"})
	assert.ErrorContains(t, err, "input 1")
}

func TestMockClient(t *testing.T) {
	m := NewMockClient(64)
	vecs, err := m.Embed(context.Background(), []string{"Gold tier", "gold TIER", "platinum card", ""})
	require.NoError(t, err)

	assert.InDelta(t, 1.0, scoring.Cosine(vecs[0], vecs[1]), 1e-6)
	assert.Less(t, scoring.Cosine(vecs[0], vecs[2]), 0.99)
	assert.Equal(t, 0.0, scoring.Cosine(vecs[0], vecs[3]))
	assert.Equal(t, 64, m.Dimension())
	assert.Equal(t, 384, NewMockClient(0).Dimension())
}

func TestEncoder(t *testing.T) {
	var p scoring.EmbeddingProvider = Encoder{Embedder: NewMockClient(8)}
	vecs, err := p.Encode(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Len(t, vecs, 2)
}

func TestNew(t *testing.T) {
	e, err := New(config.EmbeddingConfig{Provider: "mock", Dimension: 16})
	require.NoError(t, err)
	assert.Equal(t, "mock-embedding-model", e.Model())

	e, err = New(config.EmbeddingConfig{Provider: "http", APIKey: "k"})
	require.NoError(t, err)
	assert.IsType(t, &Client{}, e)

	_, err = New(config.EmbeddingConfig{Provider: "onnx"})
	assert.Error(t, err)
}

type countingEmbedder struct {
	*MockClient
	calls [][]string
}

func (c *countingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	c.calls = append(c.calls, texts)
	return c.MockClient.Embed(ctx, texts)
}

func TestCachedEmbedder(t *testing.T) {
	mc := cache.NewMemoryClient(100)
	defer mc.Close()
	inner := &countingEmbedder{MockClient: NewMockClient(8)}
	e := NewCachedEmbedder(inner, mc, time.Minute, nil)
	ctx := context.Background()

	first, err := e.Embed(ctx, []string{"a", "b"})
	require.NoError(t, err)

	second, err := e.Embed(ctx, []string{"b", "c", "a"})
	require.NoError(t, err)
	assert.Equal(t, first[1], second[0])
	assert.Equal(t, first[0], second[2])

	single, err := e.EmbedSingle(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, second[1], single)

	assert.Equal(t, [][]string{{"a", "b"}, {"c"}}, inner.calls)
}
