package scoring

import (
	"math"
	"sort"
	"strings"
)

// IDF maps a term to its inverse document frequency for one report.
type IDF map[string]float64

// Weight returns the IDF of t, or 1.0 for terms outside the snippet set.
func (idf IDF) Weight(t string) float64 {
	if w, ok := idf[t]; ok {
		return w
	}
	return 1.0
}

// BuildIDF computes idf(t) = ln((N+1)/(df(t)+1)) + 1 over the given snippets.
// It is rebuilt for every report; nothing is shared across turns.
func BuildIDF(snippets [][]string) IDF {
	df := make(map[string]int)
	for _, terms := range snippets {
		seen := make(map[string]struct{}, len(terms))
		for _, t := range terms {
			if _, ok := seen[t]; ok {
				continue
			}
			seen[t] = struct{}{}
			df[t]++
		}
	}

	n := float64(len(snippets))
	idf := make(IDF, len(df))
	for t, d := range df {
		idf[t] = math.Log((n+1)/float64(d+1)) + 1.0
	}
	return idf
}

// WeightedOverlap returns Σ idf·min(numer,denom) / Σ idf·denom. The denominator
// defines what should be covered; 0 when it is empty.
func WeightedOverlap(numer, denom map[string]int, idf IDF) float64 {
	var inter, total float64
	for _, t := range sortedKeys(denom) {
		c := denom[t]
		w := idf.Weight(t)
		total += w * float64(c)
		if n, ok := numer[t]; ok {
			inter += w * float64(min(n, c))
		}
	}
	if total <= 0 {
		return 0
	}
	return inter / total
}

// WeightedPrecision is the IDF-weighted share of answer term mass found in the
// context terms.
func WeightedPrecision(answerTerms, contextTerms []string, idf IDF) float64 {
	return WeightedOverlap(counts(contextTerms), counts(answerTerms), idf)
}

// PerSentencePrecision is WeightedPrecision for each answer sentence. A
// sentence without informative terms scores 0.
func PerSentencePrecision(answer string, contextTerms []string, idf IDF) []float64 {
	out := []float64{}
	for _, sent := range SplitSentences(answer) {
		st := Terms(sent)
		p := 0.0
		if len(st) > 0 && len(contextTerms) > 0 {
			p = WeightedPrecision(st, contextTerms, idf)
		}
		out = append(out, round4(p))
	}
	return out
}

// BM25 holds Okapi BM25 tuning.
type BM25 struct {
	K1 float64
	B  float64
}

// Score ranks doc for query. Only query term presence matters; the document
// side carries the term frequency.
func (p BM25) Score(query, doc map[string]int, idf IDF, avgLen, docLen float64) float64 {
	lenRatio := 1.0
	if avgLen > 0 {
		lenRatio = docLen / avgLen
	}

	score := 0.0
	for _, t := range sortedKeys(query) {
		tf, ok := doc[t]
		if !ok {
			continue
		}
		ftf := float64(tf)
		denom := ftf + p.K1*(1-p.B+p.B*lenRatio)
		if denom <= 0 {
			denom = 1
		}
		score += idf.Weight(t) * ftf * (p.K1 + 1) / denom
	}
	return score
}

// BestContext returns the index of the context whose terms score highest
// against the answer terms. Ties keep the earliest context.
func (p BM25) BestContext(answerTerms []string, contextTerms [][]string, idf IDF) int {
	if len(contextTerms) == 0 {
		return -1
	}

	docs := make([]map[string]int, len(contextTerms))
	totalLen := 0
	for i, terms := range contextTerms {
		docs[i] = counts(terms)
		totalLen += len(terms)
	}
	avgLen := float64(totalLen) / float64(len(docs))
	query := counts(answerTerms)

	best, bestScore := 0, math.Inf(-1)
	for i, doc := range docs {
		s := p.Score(query, doc, idf, avgLen, float64(len(contextTerms[i])))
		if s > bestScore {
			best, bestScore = i, s
		}
	}
	return best
}

// UnsupportedTerm is an answer term with no occurrence in any context.
type UnsupportedTerm struct {
	Term   string  `json:"term"`
	Count  int     `json:"count"`
	IDF    float64 `json:"idf"`
	Impact float64 `json:"impact"`
}

// UnsupportedTerms lists answer terms absent from the context, sorted by
// descending impact (count·idf) and then by term.
func UnsupportedTerms(answerTerms, contextTerms []string, idf IDF) []UnsupportedTerm {
	ctx := make(map[string]struct{}, len(contextTerms))
	for _, t := range contextTerms {
		ctx[t] = struct{}{}
	}

	items := []UnsupportedTerm{}
	for t, c := range counts(answerTerms) {
		if _, ok := ctx[t]; ok {
			continue
		}
		w := idf.Weight(t)
		items = append(items, UnsupportedTerm{Term: t, Count: c, IDF: w, Impact: float64(c) * w})
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].Impact != items[j].Impact {
			return items[i].Impact > items[j].Impact
		}
		return items[i].Term < items[j].Term
	})
	for i := range items {
		items[i].IDF = round4(items[i].IDF)
		items[i].Impact = round4(items[i].Impact)
	}
	return items
}

// SupportedTerm is an answer term that also occurs in the context.
type SupportedTerm struct {
	Term  string  `json:"term"`
	Count int     `json:"count"`
	IDF   float64 `json:"idf"`
}

// TermSpan locates a supported term inside the answer, for highlighting.
type TermSpan struct {
	Term  string `json:"term"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

// SentenceSpans groups supported term spans by answer sentence.
type SentenceSpans struct {
	Sentence       string     `json:"sentence"`
	SupportedTerms []TermSpan `json:"supported_terms"`
}

// CollectSupportedTerms returns supported terms ranked by count·idf, plus
// per-sentence spans with byte offsets into answer.
func CollectSupportedTerms(answer string, contextTerms []string, idf IDF) ([]SupportedTerm, []SentenceSpans) {
	ctx := make(map[string]struct{}, len(contextTerms))
	for _, t := range contextTerms {
		ctx[t] = struct{}{}
	}

	tally := make(map[string]int)
	perSentence := []SentenceSpans{}
	cursor := 0
	for _, sent := range SplitSentences(answer) {
		offset := cursor
		if i := indexFrom(answer, sent, cursor); i >= 0 {
			offset = i
			cursor = i + len(sent)
		}

		spans := []TermSpan{}
		for _, tok := range TokenSpans(sent) {
			if !IsInformative(tok.Term) {
				continue
			}
			if _, ok := ctx[tok.Term]; !ok {
				continue
			}
			tally[tok.Term]++
			spans = append(spans, TermSpan{Term: tok.Term, Start: offset + tok.Start, End: offset + tok.End})
		}
		perSentence = append(perSentence, SentenceSpans{Sentence: sent, SupportedTerms: spans})
	}

	global := make([]SupportedTerm, 0, len(tally))
	for t, c := range tally {
		global = append(global, SupportedTerm{Term: t, Count: c, IDF: idf.Weight(t)})
	}
	sort.Slice(global, func(i, j int) bool {
		wi := float64(global[i].Count) * global[i].IDF
		wj := float64(global[j].Count) * global[j].IDF
		if wi != wj {
			return wi > wj
		}
		return global[i].Term < global[j].Term
	})
	for i := range global {
		global[i].IDF = round4(global[i].IDF)
	}
	return global, perSentence
}

func indexFrom(s, sub string, from int) int {
	if from > len(s) {
		return -1
	}
	i := strings.Index(s[from:], sub)
	if i < 0 {
		return -1
	}
	return from + i
}

// sortedKeys fixes summation order so repeated reports are bit-identical.
func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}

func ptr(v float64) *float64 { return &v }
