// Package retrieval provides vector retrieval over the chunk corpus.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
)

// VectorAdapter defines the interface for vector similarity search.
type VectorAdapter interface {
	// Search finds the k nearest neighbors to the query vector.
	Search(ctx context.Context, query []float32, k int, filters VectorFilters) ([]VectorResult, error)

	// Insert adds or replaces vectors in the index.
	Insert(ctx context.Context, vectors []VectorEntry) error

	// Delete removes vectors from the index.
	Delete(ctx context.Context, ids []string) error

	// Count returns the number of vectors in the index.
	Count(ctx context.Context) (int64, error)

	Close() error
}

// VectorFilters restricts a search to a subset of the corpus.
type VectorFilters struct {
	Sources []string
}

// VectorEntry represents a chunk to be indexed.
type VectorEntry struct {
	ID       string
	Source   string
	Text     string
	Vector   []float32
	Metadata map[string]string
}

// VectorResult represents a search result. Score is the cosine similarity.
type VectorResult struct {
	ID       string
	Text     string
	Score    float64
	Metadata map[string]string
}

// ErrVectorDimensionMismatch indicates a dimension mismatch.
var ErrVectorDimensionMismatch = errors.New("vector dimension mismatch")

// MemoryIndex is an exact in-memory cosine index. The dimension is fixed by
// the first vector inserted.
type MemoryIndex struct {
	mu        sync.RWMutex
	dimension int
	vectors   map[string]VectorEntry
}

// NewMemoryIndex creates an empty index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{vectors: make(map[string]VectorEntry)}
}

// Search returns up to k entries ordered by descending similarity, ties by id.
// A query of the wrong dimension returns no results.
func (a *MemoryIndex) Search(ctx context.Context, query []float32, k int, filters VectorFilters) ([]VectorResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	if k <= 0 || len(a.vectors) == 0 || len(query) != a.dimension {
		return []VectorResult{}, nil
	}
	q := normalizeVector(query)

	results := make([]VectorResult, 0, len(a.vectors))
	for id, e := range a.vectors {
		if !matchesFilters(e, filters) {
			continue
		}
		results = append(results, VectorResult{
			ID:       id,
			Text:     e.Text,
			Score:    dot(q, e.Vector),
			Metadata: e.Metadata,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})

	if k < len(results) {
		results = results[:k]
	}
	return results, nil
}

// Insert adds vectors to the index. Empty vectors are skipped.
func (a *MemoryIndex) Insert(_ context.Context, vectors []VectorEntry) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, v := range vectors {
		if len(v.Vector) == 0 {
			continue
		}
		if len(a.vectors) == 0 {
			a.dimension = len(v.Vector)
		}
		if len(v.Vector) != a.dimension {
			return fmt.Errorf("%w: expected %d, got %d for id %s",
				ErrVectorDimensionMismatch, a.dimension, len(v.Vector), v.ID)
		}
		v.Vector = normalizeVector(v.Vector)
		a.vectors[v.ID] = v
	}
	return nil
}

// Delete removes vectors from the index.
func (a *MemoryIndex) Delete(_ context.Context, ids []string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, id := range ids {
		delete(a.vectors, id)
	}
	return nil
}

// Count returns the number of vectors in the index.
func (a *MemoryIndex) Count(context.Context) (int64, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return int64(len(a.vectors)), nil
}

// Close is a no-op.
func (a *MemoryIndex) Close() error { return nil }

func matchesFilters(entry VectorEntry, filters VectorFilters) bool {
	if len(filters.Sources) == 0 {
		return true
	}
	for _, s := range filters.Sources {
		if entry.Source == s {
			return true
		}
	}
	return false
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	// Clamp floating point drift.
	return math.Max(-1, math.Min(1, sum))
}

// normalizeVector returns a unit-length copy of v.
func normalizeVector(v []float32) []float32 {
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	norm = math.Sqrt(norm)

	out := make([]float32, len(v))
	if norm == 0 {
		copy(out, v)
		return out
	}
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

var _ VectorAdapter = (*MemoryIndex)(nil)
