package scoring

import (
	"context"
	"math"
	"strconv"
	"strings"

	"github.com/spherical-ai/spherical/libs/grounding-engine/internal/observability"
)

// Summaries for the two short-circuit cases.
const (
	SummaryNoAnswer  = "N/A (No answer generated)"
	SummaryNoContext = "N/A (No retrieved context provided)."
)

// Options tunes the scoring engine. Zero values are replaced by defaults.
type Options struct {
	// FuzzySimilarity is the minimum edit similarity for entity matches.
	FuzzySimilarity float64
	// TokenOverlap is the minimum word overlap for multi-word entities.
	TokenOverlap float64
	// SemanticTermThreshold decides embedding coverage of a question term.
	SemanticTermThreshold float64
	BM25K1                float64
	BM25B                 float64
}

// DefaultOptions returns the standard thresholds.
func DefaultOptions() Options {
	return Options{
		FuzzySimilarity:       0.8,
		TokenOverlap:          0.6,
		SemanticTermThreshold: 0.5,
		BM25K1:                1.2,
		BM25B:                 0.75,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.FuzzySimilarity <= 0 {
		o.FuzzySimilarity = d.FuzzySimilarity
	}
	if o.TokenOverlap <= 0 {
		o.TokenOverlap = d.TokenOverlap
	}
	if o.SemanticTermThreshold <= 0 {
		o.SemanticTermThreshold = d.SemanticTermThreshold
	}
	if o.BM25K1 <= 0 {
		o.BM25K1 = d.BM25K1
	}
	if o.BM25B <= 0 {
		o.BM25B = d.BM25B
	}
	return o
}

// QRAlignment compares the question with the answer.
type QRAlignment struct {
	CosineTFIDF             *float64 `json:"cosine_tfidf"`
	AnswerCoversQuestion    *float64 `json:"answer_covers_question"`
	CosineEmbed             *float64 `json:"cosine_embed"`
	AnswerCoversQuestionSem *float64 `json:"answer_covers_question_sem"`
}

// SentenceUnsupported lists the unsupported terms and numbers of one sentence.
type SentenceUnsupported struct {
	Sentence           string            `json:"sentence"`
	UnsupportedTerms   []UnsupportedTerm `json:"unsupported_terms"`
	UnsupportedNumbers []string          `json:"unsupported_numbers"`
}

// Report is the context-utilization report for one answer. Nil pointers
// serialize as JSON null and mean "not computable for this input".
type Report struct {
	PrecisionToken              *float64              `json:"precision_token"`
	RecallContext               *float64              `json:"recall_context"`
	NumericMatch                *float64              `json:"numeric_match"`
	EntityMatch                 EntityMatch           `json:"entity_match"`
	SupportedEntities           SupportedEntities     `json:"supported_entities"`
	SupportedTerms              []SupportedTerm       `json:"supported_terms"`
	SupportedTermsPerSentence   []SentenceSpans       `json:"supported_terms_per_sentence"`
	PerSentence                 []float64             `json:"per_sentence"`
	QRAlignment                 QRAlignment           `json:"qr_alignment"`
	ContextAlignment            ContextAlignment      `json:"context_alignment"`
	BestContextIndex            *int                  `json:"best_context_index"`
	UnsupportedTerms            []UnsupportedTerm     `json:"unsupported_terms"`
	UnsupportedTermsPerSentence []SentenceUnsupported `json:"unsupported_terms_per_sentence"`
	UnsupportedNumbers          []string              `json:"unsupported_numbers"`
	Degraded                    []string              `json:"degraded,omitempty"`
	Summary                     string                `json:"summary"`
}

// Builder assembles reports. It holds no per-call state and is safe for
// concurrent use.
type Builder struct {
	logger   *observability.Logger
	opts     Options
	entities *EntityExtractor
	aligner  *SemanticAligner
	bm25     BM25
}

// NewBuilder creates a report builder. ner and embedder may be nil.
func NewBuilder(logger *observability.Logger, opts Options, ner NERProvider, embedder EmbeddingProvider) *Builder {
	if logger == nil {
		logger = observability.NopLogger()
	}
	opts = opts.withDefaults()
	return &Builder{
		logger:   logger,
		opts:     opts,
		entities: NewEntityExtractor(ner),
		aligner:  NewSemanticAligner(embedder, opts.SemanticTermThreshold),
		bm25:     BM25{K1: opts.BM25K1, B: opts.BM25B},
	}
}

// Options returns the effective options.
func (b *Builder) Options() Options { return b.opts }

// Build scores answer against contexts. It never fails: a missing optional
// capability only nulls the fields that depend on it.
func (b *Builder) Build(ctx context.Context, question, answer string, contexts []string) *Report {
	if strings.TrimSpace(answer) == "" {
		return emptyReport()
	}

	qTerms := Terms(question)
	aTerms := Terms(answer)
	ctxTerms := make([][]string, len(contexts))
	var allCtx []string
	for i, c := range contexts {
		ctxTerms[i] = Terms(c)
		allCtx = append(allCtx, ctxTerms[i]...)
	}

	snippets := make([][]string, 0, len(contexts)+2)
	snippets = append(snippets, ctxTerms...)
	snippets = append(snippets, qTerms, aTerms)
	idf := BuildIDF(snippets)

	r := &Report{
		EntityMatch:                 EntityMatch{ByType: map[string]float64{}, Unsupported: []string{}},
		SupportedEntities:           SupportedEntities{Items: []Entity{}, ByType: map[string]int{}},
		SupportedTerms:              []SupportedTerm{},
		SupportedTermsPerSentence:   []SentenceSpans{},
		PerSentence:                 []float64{},
		UnsupportedTermsPerSentence: []SentenceUnsupported{},
	}

	qrCos := SparseCosine(TFIDFVector(qTerms, idf), TFIDFVector(aTerms, idf))
	qrCov := WeightedOverlap(counts(aTerms), counts(qTerms), idf)
	r.QRAlignment.CosineTFIDF = ptr(round4(qrCos))
	r.QRAlignment.AnswerCoversQuestion = ptr(round4(qrCov))

	sem, err := b.aligner.QuestionAnswer(ctx, question, answer, qTerms, idf)
	if err != nil {
		r.degrade(b.logger, err)
	}
	r.QRAlignment.CosineEmbed = sem.Cosine
	r.QRAlignment.AnswerCoversQuestionSem = sem.CoversQuestion

	r.UnsupportedTerms = UnsupportedTerms(aTerms, allCtx, idf)
	r.UnsupportedTermsPerSentence = unsupportedPerSentence(answer, allCtx, contexts, idf)
	r.UnsupportedNumbers = UnsupportedNumbers(answer, contexts)
	r.NumericMatch = ptr(round4(NumericMatch(answer, contexts)))

	if len(contexts) == 0 {
		r.PerSentence = PerSentencePrecision(answer, nil, idf)
		r.Summary = SummaryNoContext
		return r
	}

	precision := WeightedPrecision(aTerms, allCtx, idf)
	best := b.bm25.BestContext(aTerms, ctxTerms, idf)
	recall := WeightedOverlap(counts(aTerms), counts(ctxTerms[best]), idf)
	r.PrecisionToken = ptr(round4(precision))
	r.RecallContext = ptr(round4(recall))
	r.BestContextIndex = &best

	r.EntityMatch, r.SupportedEntities = b.matchEntities(ctx, r, answer, contexts)

	r.PerSentence = PerSentencePrecision(answer, allCtx, idf)

	ca, err := b.aligner.AnswerContext(ctx, answer, contexts)
	if err != nil {
		r.degrade(b.logger, err)
	}
	r.ContextAlignment = ca

	r.SupportedTerms, r.SupportedTermsPerSentence = CollectSupportedTerms(answer, allCtx, idf)

	r.Summary = summarize(precision, recall, *r.NumericMatch, r.EntityMatch.Overall, qrCos, sem.Cosine, ca.AnswerContextSimilarity)
	return r
}

func (b *Builder) matchEntities(ctx context.Context, r *Report, answer string, contexts []string) (EntityMatch, SupportedEntities) {
	answerEnts, err := b.entities.Extract(ctx, answer)
	if err != nil {
		r.degrade(b.logger, err)
	}

	var ctxEnts []Entity
	for _, c := range contexts {
		ents, err := b.entities.Extract(ctx, c)
		if err != nil {
			r.degrade(b.logger, err)
		}
		ctxEnts = append(ctxEnts, ents...)
	}

	return MatchEntities(answerEnts, ctxEnts, FuzzyOptions{
		MinSimilarity:  b.opts.FuzzySimilarity,
		MinWordOverlap: b.opts.TokenOverlap,
	})
}

func (r *Report) degrade(logger *observability.Logger, err error) {
	msg := err.Error()
	for _, d := range r.Degraded {
		if d == msg {
			return
		}
	}
	logger.Warn().Err(err).Msg("Scoring capability unavailable")
	r.Degraded = append(r.Degraded, msg)
}

func unsupportedPerSentence(answer string, ctxTerms, contexts []string, idf IDF) []SentenceUnsupported {
	out := []SentenceUnsupported{}
	for _, sent := range SplitSentences(answer) {
		out = append(out, SentenceUnsupported{
			Sentence:           sent,
			UnsupportedTerms:   UnsupportedTerms(Terms(sent), ctxTerms, idf),
			UnsupportedNumbers: UnsupportedNumbers(sent, contexts),
		})
	}
	return out
}

func emptyReport() *Report {
	return &Report{
		EntityMatch:                 EntityMatch{ByType: map[string]float64{}, Unsupported: []string{}},
		SupportedEntities:           SupportedEntities{Items: []Entity{}, ByType: map[string]int{}},
		SupportedTerms:              []SupportedTerm{},
		SupportedTermsPerSentence:   []SentenceSpans{},
		PerSentence:                 []float64{},
		UnsupportedTerms:            []UnsupportedTerm{},
		UnsupportedTermsPerSentence: []SentenceUnsupported{},
		UnsupportedNumbers:          []string{},
		Summary:                     SummaryNoAnswer,
	}
}

// summarize renders e.g. "100.0% grounded; 100.0% best-context recall;
// 100.0% numeric; 100.0% entity; Q↔A tfidf 0.62."
func summarize(precision, recall, numeric float64, entity *float64, qrCos float64, embedCos, ctxEmbed *float64) string {
	ent := 0.0
	if entity != nil {
		ent = *entity
	}
	parts := []string{
		pyFloat(roundTo(precision*100, 1)) + "% grounded",
		pyFloat(roundTo(recall*100, 1)) + "% best-context recall",
		pyFloat(roundTo(numeric*100, 1)) + "% numeric",
		pyFloat(roundTo(ent*100, 1)) + "% entity",
	}
	if embedCos != nil {
		parts = append(parts, "Q↔A embed "+pyFloat(roundTo(*embedCos, 2)))
		if ctxEmbed != nil {
			parts = append(parts, "A↔C embed "+pyFloat(roundTo(*ctxEmbed, 2)))
		}
	} else {
		parts = append(parts, "Q↔A tfidf "+pyFloat(roundTo(qrCos, 2)))
	}
	return strings.Join(parts, "; ") + "."
}

func roundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// pyFloat formats with the shortest representation but always keeps one
// decimal place, so 100 prints as "100.0".
func pyFloat(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}
