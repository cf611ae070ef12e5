package scoring

import (
	"context"
	"fmt"
	"math"
	"sort"
)

// TFIDFVector weights each term count by its IDF.
func TFIDFVector(terms []string, idf IDF) map[string]float64 {
	vec := make(map[string]float64)
	for t, c := range counts(terms) {
		vec[t] = float64(c) * idf.Weight(t)
	}
	return vec
}

// SparseCosine is the cosine similarity of two sparse vectors; 0 when either
// is empty or has zero norm.
func SparseCosine(a, b map[string]float64) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	keys := make([]string, 0, len(a))
	for k := range a {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var dot, na float64
	for _, k := range keys {
		v := a[k]
		dot += v * b[k]
		na += v * v
	}
	keys = keys[:0]
	for k := range b {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var nb float64
	for _, k := range keys {
		nb += b[k] * b[k]
	}

	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// Cosine is the cosine similarity of two dense vectors.
func Cosine(a, b []float32) float64 {
	n := min(len(a), len(b))
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// SemanticAlignment holds the embedding-based Q↔A measures.
type SemanticAlignment struct {
	Cosine         *float64
	CoversQuestion *float64
}

// ContextAlignment is the answer↔context embedding similarity.
type ContextAlignment struct {
	AnswerContextSimilarity *float64 `json:"answer_context_similarity"`
	BestContextSimilarity   *float64 `json:"best_context_similarity"`
}

// SemanticAligner computes alignment over an EmbeddingProvider. With the
// NoopEmbedder every measure is nil.
type SemanticAligner struct {
	embedder      EmbeddingProvider
	termThreshold float64
}

// NewSemanticAligner creates an aligner; a nil embedder disables it.
func NewSemanticAligner(embedder EmbeddingProvider, termThreshold float64) *SemanticAligner {
	if embedder == nil {
		embedder = NoopEmbedder{}
	}
	return &SemanticAligner{embedder: embedder, termThreshold: termThreshold}
}

// QuestionAnswer returns the question↔answer cosine and the IDF-weighted
// share of question terms whose embedding is within termThreshold of the
// answer embedding.
func (a *SemanticAligner) QuestionAnswer(ctx context.Context, question, answer string, questionTerms []string, idf IDF) (SemanticAlignment, error) {
	var out SemanticAlignment
	if question == "" || answer == "" {
		return out, nil
	}

	qa, err := a.encode(ctx, []string{question, answer})
	if err != nil || qa == nil {
		return out, err
	}
	out.Cosine = ptr(round4(Cosine(qa[0], qa[1])))

	if len(questionTerms) == 0 {
		out.CoversQuestion = ptr(1.0)
		return out, nil
	}

	termVecs, err := a.encode(ctx, questionTerms)
	if err != nil || termVecs == nil {
		out.Cosine = nil
		return out, err
	}

	var total, covered float64
	for i, t := range questionTerms {
		w := idf.Weight(t)
		total += w
		if Cosine(termVecs[i], qa[1]) >= a.termThreshold {
			covered += w
		}
	}
	if total == 0 {
		total = 1
	}
	out.CoversQuestion = ptr(round4(covered / total))
	return out, nil
}

// AnswerContext returns the average and best answer↔context cosine.
func (a *SemanticAligner) AnswerContext(ctx context.Context, answer string, contexts []string) (ContextAlignment, error) {
	var out ContextAlignment
	if answer == "" || len(contexts) == 0 {
		return out, nil
	}

	vecs, err := a.encode(ctx, append([]string{answer}, contexts...))
	if err != nil || vecs == nil {
		return out, err
	}

	sum, best := 0.0, math.Inf(-1)
	for _, v := range vecs[1:] {
		s := Cosine(vecs[0], v)
		sum += s
		best = math.Max(best, s)
	}
	out.AnswerContextSimilarity = ptr(round4(sum / float64(len(contexts))))
	out.BestContextSimilarity = ptr(round4(best))
	return out, nil
}

// encode returns nil, nil when the capability produced nothing usable.
func (a *SemanticAligner) encode(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, err := a.embedder.Encode(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("%w: embedding: %v", ErrScoringDegraded, err)
	}
	if len(vecs) != len(texts) {
		return nil, nil
	}
	return vecs, nil
}
