package scoring

import (
	"context"
	"errors"
)

// ErrScoringDegraded marks a report computed without one of its optional
// capabilities. The affected fields are null; the rest of the report stands.
var ErrScoringDegraded = errors.New("scoring degraded")

// Entity is a typed span of text.
type Entity struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

// NERProvider extracts named entities. Labels may be fine-grained
// (PERSON, ORG, GPE, ...) or already coarse (proper, date, time, percent, money).
type NERProvider interface {
	Extract(ctx context.Context, text string) ([]Entity, error)
}

// EmbeddingProvider encodes texts into vectors in the same order.
type EmbeddingProvider interface {
	Encode(ctx context.Context, texts []string) ([][]float32, error)
}

// NoopNER is the NERProvider used when no NER model is configured.
type NoopNER struct{}

// Extract returns no entities.
func (NoopNER) Extract(context.Context, string) ([]Entity, error) { return nil, nil }

// NoopEmbedder is the EmbeddingProvider used when no embedding model is
// configured. Semantic alignment fields stay null.
type NoopEmbedder struct{}

// Encode returns no vectors.
func (NoopEmbedder) Encode(context.Context, []string) ([][]float32, error) { return nil, nil }

var (
	_ NERProvider       = NoopNER{}
	_ EmbeddingProvider = NoopEmbedder{}
)
