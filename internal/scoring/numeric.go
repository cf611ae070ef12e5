package scoring

import (
	"regexp"
	"strings"
)

// NumericKind classifies a numeric fact.
type NumericKind string

const (
	NumericMoney   NumericKind = "money"
	NumericPercent NumericKind = "percent"
	NumericNumber  NumericKind = "number"
)

// NumericFact is a normalized number found in text, e.g. {money, "$20000"}.
type NumericFact struct {
	Kind  NumericKind
	Value string
}

func (f NumericFact) String() string {
	return string(f.Kind) + ":" + f.Value
}

var (
	moneyTerm   = regexp.MustCompile(`^\$\d+(?:\.\d+)?$`)
	percentTerm = regexp.MustCompile(`^\d+(?:\.\d+)?%$`)
	numberTerm  = regexp.MustCompile(`^[-+]?\d+(?:\.\d+)?$`)
)

// ExtractNumericFacts returns the distinct numeric facts of text in order of
// first appearance.
func ExtractNumericFacts(text string) []NumericFact {
	var out []NumericFact
	seen := make(map[NumericFact]struct{})
	for _, t := range Tokenize(text) {
		var f NumericFact
		switch {
		case strings.HasPrefix(t, "$") && moneyTerm.MatchString(t):
			f = NumericFact{Kind: NumericMoney, Value: t}
		case strings.HasSuffix(t, "%") && percentTerm.MatchString(t):
			f = NumericFact{Kind: NumericPercent, Value: t}
		case numberTerm.MatchString(t):
			f = NumericFact{Kind: NumericNumber, Value: t}
		default:
			continue
		}
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}

func numericSet(texts []string) map[NumericFact]struct{} {
	set := make(map[NumericFact]struct{})
	for _, s := range texts {
		for _, f := range ExtractNumericFacts(s) {
			set[f] = struct{}{}
		}
	}
	return set
}

// NumericMatch is the fraction of the answer's numeric facts that appear
// exactly in some context. An answer without numbers scores 1.0.
func NumericMatch(answer string, contexts []string) float64 {
	facts := ExtractNumericFacts(answer)
	if len(facts) == 0 {
		return 1.0
	}
	ctx := numericSet(contexts)
	covered := 0
	for _, f := range facts {
		if _, ok := ctx[f]; ok {
			covered++
		}
	}
	return float64(covered) / float64(len(facts))
}

// UnsupportedNumbers lists answer facts missing from every context as
// "kind:value" strings.
func UnsupportedNumbers(answer string, contexts []string) []string {
	out := []string{}
	facts := ExtractNumericFacts(answer)
	if len(facts) == 0 {
		return out
	}
	ctx := numericSet(contexts)
	for _, f := range facts {
		if _, ok := ctx[f]; !ok {
			out = append(out, f.String())
		}
	}
	return out
}
