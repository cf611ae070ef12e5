package scoring

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type constEmbedder struct{}

func (constEmbedder) Encode(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{0.6, 0.8}
	}
	return out, nil
}

type failingEmbedder struct{}

func (failingEmbedder) Encode(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("boom")
}

const (
	goldQuestion = "What is gold tier?"
	goldAnswer   = "Gold tier requires a $20,000 minimum balance."
)

func TestBuild_FullySupportedAnswer(t *testing.T) {
	b := NewBuilder(nil, Options{}, nil, nil)
	r := b.Build(context.Background(), goldQuestion, goldAnswer, []string{goldAnswer})

	require.NotNil(t, r.PrecisionToken)
	require.NotNil(t, r.RecallContext)
	require.NotNil(t, r.NumericMatch)
	require.NotNil(t, r.EntityMatch.Overall)
	assert.Equal(t, 1.0, *r.PrecisionToken)
	assert.Equal(t, 1.0, *r.RecallContext)
	assert.Equal(t, 1.0, *r.NumericMatch)
	assert.Equal(t, 1.0, *r.EntityMatch.Overall)
	assert.Equal(t, 0, *r.BestContextIndex)
	assert.Equal(t, []float64{1.0}, r.PerSentence)
	assert.Empty(t, r.UnsupportedTerms)
	assert.Empty(t, r.UnsupportedNumbers)
	assert.Len(t, r.SupportedTerms, 6)
	assert.Equal(t, 1, r.SupportedEntities.Count)

	assert.InDelta(t, 0.3086, *r.QRAlignment.CosineTFIDF, 1e-4)
	assert.InDelta(t, 0.5416, *r.QRAlignment.AnswerCoversQuestion, 1e-4)
	assert.Nil(t, r.QRAlignment.CosineEmbed)
	assert.Nil(t, r.ContextAlignment.AnswerContextSimilarity)
	assert.Empty(t, r.Degraded)

	assert.Equal(t, "100.0% grounded; 100.0% best-context recall; 100.0% numeric; 100.0% entity; Q↔A tfidf 0.31.", r.Summary)
}

func TestBuild_WrongAmount(t *testing.T) {
	b := NewBuilder(nil, DefaultOptions(), nil, nil)
	r := b.Build(context.Background(), goldQuestion,
		"Gold tier requires a $50,000 minimum balance.",
		[]string{goldAnswer})

	assert.InDelta(t, 0.7759, *r.PrecisionToken, 1e-4)
	assert.Equal(t, 0.0, *r.NumericMatch)
	assert.Equal(t, []string{"money:$50000"}, r.UnsupportedNumbers)
	require.Len(t, r.UnsupportedTerms, 1)
	assert.Equal(t, "$50000", r.UnsupportedTerms[0].Term)
	assert.InDelta(t, 1.6931, r.UnsupportedTerms[0].Impact, 1e-4)

	require.Len(t, r.UnsupportedTermsPerSentence, 1)
	assert.Equal(t, []string{"money:$50000"}, r.UnsupportedTermsPerSentence[0].UnsupportedNumbers)
	assert.Contains(t, r.Summary, "77.6% grounded")
	assert.Contains(t, r.Summary, "0.0% numeric")
}

func TestBuild_WrongCents(t *testing.T) {
	b := NewBuilder(nil, DefaultOptions(), nil, nil)
	r := b.Build(context.Background(), "What is the fee?", "The fee is $19.50.", []string{"The fee is $19.99."})

	assert.Equal(t, 0.0, *r.NumericMatch)
	assert.Equal(t, []string{"money:$19.50"}, r.UnsupportedNumbers)
	assert.Less(t, *r.PrecisionToken, 1.0)
	assert.Contains(t, r.Summary, "0.0% numeric")
}

func TestBuild_EmptyAnswer(t *testing.T) {
	b := NewBuilder(nil, Options{}, nil, nil)
	r := b.Build(context.Background(), goldQuestion, "   ", []string{goldAnswer})

	assert.Equal(t, SummaryNoAnswer, r.Summary)
	assert.Nil(t, r.PrecisionToken)
	assert.Nil(t, r.NumericMatch)
	assert.Nil(t, r.EntityMatch.Overall)
	assert.Empty(t, r.PerSentence)
}

func TestBuild_NoContext(t *testing.T) {
	b := NewBuilder(nil, Options{}, nil, nil)
	r := b.Build(context.Background(), "How much?", "Gold costs $5. It is popular.", nil)

	assert.Equal(t, SummaryNoContext, r.Summary)
	assert.Nil(t, r.PrecisionToken)
	assert.Nil(t, r.RecallContext)
	assert.Nil(t, r.BestContextIndex)
	assert.Equal(t, []float64{0.0, 0.0}, r.PerSentence)
	assert.Equal(t, 0.0, *r.NumericMatch)
	assert.Equal(t, []string{"money:$5"}, r.UnsupportedNumbers)
	assert.NotNil(t, r.QRAlignment.CosineTFIDF)
}

func TestBuild_WithEmbeddings(t *testing.T) {
	b := NewBuilder(nil, Options{}, nil, constEmbedder{})
	r := b.Build(context.Background(), goldQuestion, goldAnswer, []string{goldAnswer})

	assert.Equal(t, 1.0, *r.QRAlignment.CosineEmbed)
	assert.Equal(t, 1.0, *r.QRAlignment.AnswerCoversQuestionSem)
	assert.Equal(t, 1.0, *r.ContextAlignment.AnswerContextSimilarity)
	assert.Equal(t, 1.0, *r.ContextAlignment.BestContextSimilarity)
	assert.Equal(t, "100.0% grounded; 100.0% best-context recall; 100.0% numeric; 100.0% entity; Q↔A embed 1.0; A↔C embed 1.0.", r.Summary)
}

func TestBuild_DegradesOnEmbeddingFailure(t *testing.T) {
	b := NewBuilder(nil, Options{}, nil, failingEmbedder{})
	r := b.Build(context.Background(), goldQuestion, goldAnswer, []string{goldAnswer})

	require.Len(t, r.Degraded, 1)
	assert.Contains(t, r.Degraded[0], ErrScoringDegraded.Error())
	assert.Nil(t, r.QRAlignment.CosineEmbed)
	assert.Nil(t, r.ContextAlignment.AnswerContextSimilarity)
	assert.Equal(t, 1.0, *r.PrecisionToken)
	assert.Contains(t, r.Summary, "Q↔A tfidf 0.31")
}

func TestBuild_Deterministic(t *testing.T) {
	b := NewBuilder(nil, Options{}, nil, nil)
	ctxs := []string{
		"Silver tier has no minimum.",
		"Gold tier requires a $20,000 minimum balance and earns 2% cash back.",
		"Platinum tier is invite only.",
	}
	answer := "Gold requires $20,000. It earns 2% back, unlike Silver."

	first, err := json.Marshal(b.Build(context.Background(), goldQuestion, answer, ctxs))
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := json.Marshal(b.Build(context.Background(), goldQuestion, answer, ctxs))
		require.NoError(t, err)
		assert.JSONEq(t, string(first), string(again))
	}
}

func TestReport_JSONNulls(t *testing.T) {
	b := NewBuilder(nil, Options{}, nil, nil)
	raw, err := json.Marshal(b.Build(context.Background(), "", "An answer.", nil))
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))
	assert.Nil(t, m["precision_token"])
	assert.Nil(t, m["best_context_index"])
	assert.Contains(t, m, "qr_alignment")
	assert.NotContains(t, m, "degraded")
}

func TestPyFloat(t *testing.T) {
	assert.Equal(t, "100.0", pyFloat(100))
	assert.Equal(t, "77.6", pyFloat(77.6))
	assert.Equal(t, "0.31", pyFloat(0.31))
	assert.Equal(t, "0.0", pyFloat(0))
}
