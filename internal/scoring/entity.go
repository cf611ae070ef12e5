package scoring

import (
	"context"
	"regexp"
	"sort"
	"strings"
)

// Coarse entity types. Regex extraction adds email, url, phone, acronym, id
// and quoted on top of these.
const (
	EntityProper  = "proper"
	EntityDate    = "date"
	EntityTime    = "time"
	EntityPercent = "percent"
	EntityMoney   = "money"
)

var nerLabels = map[string]string{
	"PERSON": EntityProper, "ORG": EntityProper, "GPE": EntityProper, "LOC": EntityProper,
	"PRODUCT": EntityProper, "FAC": EntityProper, "WORK_OF_ART": EntityProper,
	"EVENT": EntityProper, "LAW": EntityProper, "LANGUAGE": EntityProper, "NORP": EntityProper,
	"DATE": EntityDate, "TIME": EntityTime, "PERCENT": EntityPercent, "MONEY": EntityMoney,
}

// CoarseType maps an NER label onto the coarse type set. ok is false for
// labels that are not scored.
func CoarseType(label string) (string, bool) {
	if t, ok := nerLabels[strings.ToUpper(label)]; ok {
		return t, true
	}
	switch l := strings.ToLower(label); l {
	case EntityProper, EntityDate, EntityTime, EntityPercent, EntityMoney:
		return l, true
	}
	return "", false
}

type entityPattern struct {
	typ   string
	re    *regexp.Regexp
	group int
}

// entityPatterns are applied in this order; for equal spans the earlier
// pattern wins.
var entityPatterns = []entityPattern{
	{"email", regexp.MustCompile(`(?i)\b[a-z0-9._%+-]+@[a-z0-9.-]+\.[a-z]{2,}\b`), 0},
	{"url", regexp.MustCompile(`(?i)\b(?:https?://|www\.)\S+\b`), 0},
	{"phone", regexp.MustCompile(`\b(?:\+?1[-.\s]?)?(?:\(?\d{3}\)?[-.\s]?)\d{3}[-.\s]?\d{4}\b`), 0},
	{"date", regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`), 0},
	{"date", regexp.MustCompile(`\b\d{1,2}/\d{1,2}/\d{2,4}\b`), 0},
	{"date", regexp.MustCompile(`(?i)\b(?:jan|feb|mar|apr|may|jun|jul|aug|sep|sept|oct|nov|dec)[a-z]*\s+\d{1,2}(?:,\s*\d{2,4})?\b`), 0},
	{"time", regexp.MustCompile(`(?i)\b\d{1,2}:\d{2}\s*(?:am|pm)?\b`), 0},
	{"acronym", regexp.MustCompile(`\b[A-Z]{2,6}s?\b`), 0},
	{"id", regexp.MustCompile(`\b[A-Z0-9]{6,}\b`), 0},
	{"quoted", regexp.MustCompile(`['"]([^'"]{2,})['"]`), 1},
	{"money", regexp.MustCompile(`\$[\d,]+(?:\.\d{2})?`), 0},
	{"percent", regexp.MustCompile(`\d+(?:\.\d+)?%`), 0},
}

// ExtractRegexEntities finds deterministic entities. Overlapping matches are
// resolved by sorting on (start, -length) and keeping spans that do not
// overlap anything already kept.
func ExtractRegexEntities(text string) []Entity {
	var all []Entity
	for _, p := range entityPatterns {
		for _, m := range p.re.FindAllStringSubmatchIndex(text, -1) {
			s, e := m[2*p.group], m[2*p.group+1]
			if s < 0 {
				continue
			}
			all = append(all, Entity{Type: p.typ, Text: text[s:e], Start: s, End: e})
		}
	}
	return resolveOverlaps(all)
}

func resolveOverlaps(spans []Entity) []Entity {
	sort.SliceStable(spans, func(i, j int) bool {
		if spans[i].Start != spans[j].Start {
			return spans[i].Start < spans[j].Start
		}
		return spans[i].End-spans[i].Start > spans[j].End-spans[j].Start
	})

	kept := make([]Entity, 0, len(spans))
	maxEnd := -1
	for _, sp := range spans {
		if sp.Start < maxEnd {
			continue
		}
		kept = append(kept, sp)
		maxEnd = sp.End
	}
	return kept
}

// EntityExtractor merges regex entities with an optional NER capability.
type EntityExtractor struct {
	ner NERProvider
}

// NewEntityExtractor returns an extractor; a nil provider means regex only.
func NewEntityExtractor(ner NERProvider) *EntityExtractor {
	if ner == nil {
		ner = NoopNER{}
	}
	return &EntityExtractor{ner: ner}
}

// Extract returns regex entities followed by mapped NER entities. A NER
// failure is returned alongside the regex entities so callers can record the
// degradation and carry on.
func (x *EntityExtractor) Extract(ctx context.Context, text string) ([]Entity, error) {
	ents := ExtractRegexEntities(text)
	if text == "" {
		return ents, nil
	}

	found, err := x.ner.Extract(ctx, text)
	if err != nil {
		return ents, err
	}
	for _, e := range found {
		typ, ok := CoarseType(e.Type)
		if !ok {
			continue
		}
		e.Type = typ
		ents = append(ents, e)
	}
	return ents, nil
}

// EntityMatch is the entity section of a report.
type EntityMatch struct {
	Overall     *float64           `json:"overall"`
	ByType      map[string]float64 `json:"by_type"`
	Unsupported []string           `json:"unsupported"`
}

// SupportedEntities lists answer entities found in the context, with spans.
type SupportedEntities struct {
	Items  []Entity       `json:"items"`
	ByType map[string]int `json:"by_type"`
	Count  int            `json:"count"`
}

// FuzzyOptions tunes entity matching.
type FuzzyOptions struct {
	// MinSimilarity is the minimum 1 - levenshtein/maxlen.
	MinSimilarity float64
	// MinWordOverlap applies to multi-word entities on both sides.
	MinWordOverlap float64
}

type entityKey struct {
	typ  string
	text string
}

func normEntity(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// MatchEntities scores answer entities against context entities. An answer
// with no entities scores 1.0.
func MatchEntities(answer, context []Entity, opts FuzzyOptions) (EntityMatch, SupportedEntities) {
	supported := SupportedEntities{Items: []Entity{}, ByType: map[string]int{}}

	type spanKey struct {
		entityKey
		start, end int
	}
	seen := make(map[spanKey]struct{})
	var ents []Entity
	for _, e := range answer {
		k := spanKey{entityKey{e.Type, normEntity(e.Text)}, e.Start, e.End}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		ents = append(ents, e)
	}

	if len(ents) == 0 {
		return EntityMatch{Overall: ptr(1.0), ByType: map[string]float64{}, Unsupported: []string{}}, supported
	}

	ctx := make(map[entityKey]struct{}, len(context))
	var ctxList []entityKey
	for _, e := range context {
		k := entityKey{e.Type, normEntity(e.Text)}
		if _, dup := ctx[k]; dup {
			continue
		}
		ctx[k] = struct{}{}
		ctxList = append(ctxList, k)
	}

	total := map[string]int{}
	covered := map[string]int{}
	unsupported := []string{}
	for _, e := range ents {
		k := entityKey{e.Type, normEntity(e.Text)}
		total[e.Type]++
		if _, exact := ctx[k]; exact || fuzzyCovered(k, ctxList, opts) {
			covered[e.Type]++
			supported.Items = append(supported.Items, e)
			supported.ByType[e.Type]++
			continue
		}
		unsupported = append(unsupported, k.typ+":"+k.text)
	}
	supported.Count = len(supported.Items)

	sumCovered, sumTotal := 0, 0
	byType := make(map[string]float64, len(total))
	for typ, n := range total {
		byType[typ] = round4(float64(covered[typ]) / float64(n))
		sumCovered += covered[typ]
		sumTotal += n
	}

	return EntityMatch{
		Overall:     ptr(round4(float64(sumCovered) / float64(sumTotal))),
		ByType:      byType,
		Unsupported: unsupported,
	}, supported
}

func fuzzyCovered(e entityKey, context []entityKey, opts FuzzyOptions) bool {
	clean := stripArticles(e.text)
	words := wordSet(clean)

	for _, c := range context {
		if c.typ != e.typ {
			continue
		}
		cclean := stripArticles(c.text)
		maxLen := max(len([]rune(clean)), len([]rune(cclean)))
		if maxLen == 0 {
			continue
		}

		sim := 1.0 - float64(levenshtein(clean, cclean))/float64(maxLen)
		if sim >= opts.MinSimilarity {
			return true
		}
		if strings.Contains(cclean, clean) || strings.Contains(clean, cclean) {
			return true
		}

		cwords := wordSet(cclean)
		if len(words) > 1 && len(cwords) > 1 {
			common := 0
			for w := range words {
				if _, ok := cwords[w]; ok {
					common++
				}
			}
			if float64(common)/float64(min(len(words), len(cwords))) >= opts.MinWordOverlap {
				return true
			}
		}
	}
	return false
}

func stripArticles(s string) string {
	fields := strings.Fields(s)
	kept := fields[:0]
	for _, f := range fields {
		switch f {
		case "the", "a", "an":
			continue
		}
		kept = append(kept, f)
	}
	return strings.Join(kept, " ")
}

func wordSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.Fields(s) {
		set[w] = struct{}{}
	}
	return set
}

// levenshtein is the rune-level edit distance between a and b.
func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) < len(rb) {
		ra, rb = rb, ra
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	cur := make([]int, len(rb)+1)
	for i, ca := range ra {
		cur[0] = i + 1
		for j, cb := range rb {
			cost := 1
			if ca == cb {
				cost = 0
			}
			cur[j+1] = min(prev[j+1]+1, cur[j]+1, prev[j]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(rb)]
}
