package retrieval

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryIndex_Search(t *testing.T) {
	idx := NewMemoryIndex()
	ctx := context.Background()

	require.NoError(t, idx.Insert(ctx, []VectorEntry{
		{ID: "a", Source: "faq", Text: "A", Vector: []float32{1, 0}},
		{ID: "b", Source: "terms", Text: "B", Vector: []float32{3, 3}},
		{ID: "c", Source: "faq", Text: "C", Vector: []float32{0, 2}},
		{ID: "skip", Vector: nil},
	}))

	n, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	res, err := idx.Search(ctx, []float32{2, 0}, 2, VectorFilters{})
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, "a", res[0].ID)
	assert.InDelta(t, 1.0, res[0].Score, 1e-6)
	assert.Equal(t, "b", res[1].ID)
	assert.InDelta(t, 0.7071, res[1].Score, 1e-4)

	res, err = idx.Search(ctx, []float32{1, 1}, 5, VectorFilters{Sources: []string{"faq"}})
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, "a", res[0].ID, "equal scores order by id")
	assert.Equal(t, "c", res[1].ID)

	res, err = idx.Search(ctx, []float32{1, 0, 0}, 5, VectorFilters{})
	require.NoError(t, err)
	assert.Empty(t, res)

	require.NoError(t, idx.Delete(ctx, []string{"a"}))
	res, err = idx.Search(ctx, []float32{1, 0}, 1, VectorFilters{})
	require.NoError(t, err)
	assert.Equal(t, "b", res[0].ID)
}

func TestMemoryIndex_DimensionMismatch(t *testing.T) {
	idx := NewMemoryIndex()
	ctx := context.Background()

	require.NoError(t, idx.Insert(ctx, []VectorEntry{{ID: "a", Vector: []float32{1, 0}}}))
	err := idx.Insert(ctx, []VectorEntry{{ID: "b", Vector: []float32{1, 0, 0}}})
	assert.ErrorIs(t, err, ErrVectorDimensionMismatch)
}

func TestMemoryIndex_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewMemoryIndex().Search(ctx, []float32{1}, 1, VectorFilters{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNormalizeVector_DoesNotAlias(t *testing.T) {
	in := []float32{3, 4}
	out := normalizeVector(in)
	assert.Equal(t, []float32{3, 4}, in)
	assert.InDelta(t, 0.6, out[0], 1e-6)
	assert.InDelta(t, 0.8, out[1], 1e-6)
}
