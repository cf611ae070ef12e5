package retrieval

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/spherical-ai/spherical/libs/grounding-engine/internal/conversation"
	"github.com/spherical-ai/spherical/libs/grounding-engine/internal/embedding"
	"github.com/spherical-ai/spherical/libs/grounding-engine/internal/observability"
)

// VectorRetriever embeds queries and searches a VectorAdapter. When a hint is
// given it searches the query and the hint in parallel and returns their union.
type VectorRetriever struct {
	embedder  embedding.Embedder
	index     VectorAdapter
	logger    *observability.Logger
	batchSize int
	filters   VectorFilters
}

// Option configures a VectorRetriever.
type Option func(*VectorRetriever)

// WithBatchSize sets how many chunk texts are embedded per call in Index.
func WithBatchSize(n int) Option {
	return func(r *VectorRetriever) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

// WithSources restricts searches to chunks from the given sources.
func WithSources(sources ...string) Option {
	return func(r *VectorRetriever) { r.filters.Sources = sources }
}

// NewVectorRetriever creates a retriever over index.
func NewVectorRetriever(embedder embedding.Embedder, index VectorAdapter, logger *observability.Logger, opts ...Option) *VectorRetriever {
	if logger == nil {
		logger = observability.NopLogger()
	}
	r := &VectorRetriever{
		embedder:  embedder,
		index:     index,
		logger:    logger,
		batchSize: 64,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Search returns up to topK chunks for query. A non-empty hint different from
// the query triggers union retrieval.
func (r *VectorRetriever) Search(ctx context.Context, query, hint string, topK int) ([]conversation.Chunk, error) {
	start := time.Now()
	queries := []string{query}
	if h := strings.TrimSpace(hint); h != "" && !strings.EqualFold(h, strings.TrimSpace(query)) {
		queries = append(queries, h)
	}

	lists := make([][]conversation.Chunk, len(queries))
	g, gctx := errgroup.WithContext(ctx)
	for i, q := range queries {
		i, q := i, q
		g.Go(func() error {
			chunks, err := r.searchOne(gctx, q, topK)
			if err != nil {
				return err
			}
			lists[i] = chunks
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := MergeUnion(topK, lists...)
	r.logger.Debug().
		Int("queries", len(queries)).
		Int("results", len(merged)).
		Dur("latency", time.Since(start)).
		Msg("vector retrieval")
	return merged, nil
}

func (r *VectorRetriever) searchOne(ctx context.Context, query string, topK int) ([]conversation.Chunk, error) {
	vec, err := r.embedder.EmbedSingle(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	results, err := r.index.Search(ctx, vec, topK, r.filters)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	chunks := make([]conversation.Chunk, len(results))
	for i, res := range results {
		chunks[i] = conversation.Chunk{
			ID:       res.ID,
			Text:     res.Text,
			Score:    res.Score,
			Metadata: res.Metadata,
		}
	}
	return chunks, nil
}

// Document is a chunk to index.
type Document struct {
	ID       string
	Source   string
	Text     string
	Metadata map[string]string
}

// Index embeds docs in batches and inserts them. onBatch, when set, is called
// with the number of documents indexed so far.
func (r *VectorRetriever) Index(ctx context.Context, docs []Document, onBatch func(done int)) error {
	for start := 0; start < len(docs); start += r.batchSize {
		end := min(start+r.batchSize, len(docs))
		batch := docs[start:end]

		texts := make([]string, len(batch))
		for i, d := range batch {
			texts[i] = d.Text
		}
		vecs, err := r.embedder.Embed(ctx, texts)
		if err != nil {
			return fmt.Errorf("embed batch %d-%d: %w", start, end, err)
		}

		entries := make([]VectorEntry, len(batch))
		for i, d := range batch {
			entries[i] = VectorEntry{ID: d.ID, Source: d.Source, Text: d.Text, Vector: vecs[i], Metadata: d.Metadata}
		}
		if err := r.index.Insert(ctx, entries); err != nil {
			return fmt.Errorf("insert batch %d-%d: %w", start, end, err)
		}
		if onBatch != nil {
			onBatch(end)
		}
	}
	return nil
}

var _ conversation.Retriever = (*VectorRetriever)(nil)
