package embedding

import (
	"context"
	"errors"
	"time"

	"github.com/spherical-ai/spherical/libs/grounding-engine/internal/cache"
	"github.com/spherical-ai/spherical/libs/grounding-engine/internal/observability"
)

// CachedEmbedder memoizes embeddings per (model, text) in a cache.Client.
// Cache failures are logged and fall through to the wrapped embedder.
type CachedEmbedder struct {
	Embedder
	cache  cache.Client
	ttl    time.Duration
	logger *observability.Logger
}

// NewCachedEmbedder wraps inner with cache c.
func NewCachedEmbedder(inner Embedder, c cache.Client, ttl time.Duration, logger *observability.Logger) *CachedEmbedder {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &CachedEmbedder{Embedder: inner, cache: c, ttl: ttl, logger: logger}
}

// Embed returns cached vectors where present and embeds the rest in one call.
func (e *CachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missIdx []int
	var missTexts []string

	for i, text := range texts {
		var vec []float32
		err := cache.GetJSON(ctx, e.cache, cache.EmbeddingKey(e.Model(), text), &vec)
		switch {
		case err == nil:
			out[i] = vec
			continue
		case !errors.Is(err, cache.ErrCacheMiss):
			e.logger.Warn().Err(err).Msg("embedding cache read failed")
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}
	if len(missTexts) == 0 {
		return out, nil
	}

	vecs, err := e.Embedder.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	for j, i := range missIdx {
		out[i] = vecs[j]
		if err := cache.SetJSON(ctx, e.cache, cache.EmbeddingKey(e.Model(), texts[i]), vecs[j], e.ttl); err != nil {
			e.logger.Warn().Err(err).Msg("embedding cache write failed")
		}
	}
	return out, nil
}

// EmbedSingle embeds one text through the cache.
func (e *CachedEmbedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

var _ Embedder = (*CachedEmbedder)(nil)
