package embedding

import (
	"context"
	"fmt"

	"github.com/spherical-ai/spherical/libs/grounding-engine/internal/config"
)

// Embedder defines the interface for embedding generation.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedSingle(ctx context.Context, text string) ([]float32, error)
	Model() string
	Dimension() int
}

// Encoder adapts an Embedder to the scoring engine's EmbeddingProvider.
type Encoder struct {
	Embedder Embedder
}

// Encode embeds texts in order.
func (e Encoder) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	return e.Embedder.Embed(ctx, texts)
}

// New builds the embedder selected by cfg.
func New(cfg config.EmbeddingConfig) (Embedder, error) {
	switch cfg.Provider {
	case "", "mock":
		return NewMockClient(cfg.Dimension), nil
	case "http":
		return NewClient(Config{
			APIKey:    cfg.APIKey,
			Model:     cfg.Model,
			BaseURL:   cfg.BaseURL,
			Dimension: cfg.Dimension,
			MaxBatch:  cfg.BatchSize,
			Timeout:   cfg.Timeout,
		})
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}

var (
	_ Embedder = (*Client)(nil)
	_ Embedder = (*MockClient)(nil)
)
