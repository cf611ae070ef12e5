package scoring

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_RunKeepsOrder(t *testing.T) {
	b := NewBuilder(nil, Options{}, nil, nil)
	var done atomic.Int32
	pool := NewPool(b, 2, time.Minute).OnDone(func() { done.Add(1) })

	cases := []Case{
		{ID: "a", Question: goldQuestion, Answer: goldAnswer, Contexts: []string{goldAnswer}},
		{ID: "b", Question: goldQuestion, Answer: "", Contexts: []string{goldAnswer}},
		{ID: "c", Question: goldQuestion, Answer: "Gold costs $1.", Contexts: nil},
	}
	results, err := pool.Run(context.Background(), cases)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, "a", results[0].ID)
	assert.Equal(t, 1.0, *results[0].Report.PrecisionToken)
	assert.Equal(t, SummaryNoAnswer, results[1].Report.Summary)
	assert.Equal(t, SummaryNoContext, results[2].Report.Summary)
	assert.Equal(t, int32(3), done.Load())
}

func TestPool_Empty(t *testing.T) {
	results, err := NewPool(NewBuilder(nil, Options{}, nil, nil), 0, 0).Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestPool_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewPool(NewBuilder(nil, Options{}, nil, nil), 1, time.Minute).
		Run(ctx, []Case{{ID: "a", Answer: goldAnswer}})
	assert.ErrorIs(t, err, context.Canceled)
}
