// Package scoring computes context-utilization reports: how well a generated
// answer is supported by the context chunks it was generated from.
//
// Every function in this package is deterministic and free of shared mutable
// state, so a Builder may be used from any number of goroutines.
package scoring

import (
	"regexp"
	"strings"
	"unicode"
)

// stopwords are dropped from informative term lists.
var stopwords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "but": {}, "in": {}, "on": {}, "at": {},
	"to": {}, "for": {}, "of": {}, "with": {}, "by": {}, "is": {}, "are": {}, "was": {}, "were": {},
	"be": {}, "been": {}, "being": {}, "have": {}, "has": {}, "had": {}, "do": {}, "does": {},
	"did": {}, "will": {}, "would": {}, "could": {}, "should": {}, "may": {}, "might": {},
	"must": {}, "can": {}, "this": {}, "that": {}, "these": {}, "those": {}, "i": {}, "you": {},
	"he": {}, "she": {}, "it": {}, "we": {}, "they": {}, "me": {}, "him": {}, "her": {}, "us": {},
	"them": {}, "my": {}, "your": {}, "his": {}, "hers": {}, "its": {}, "our": {}, "their": {},
	"as": {}, "from": {}, "about": {}, "into": {}, "over": {}, "under": {}, "than": {}, "then": {},
	"so": {}, "if": {}, "not": {}, "no": {}, "yes": {}, "also": {}, "just": {}, "only": {},
	"very": {}, "more": {}, "most": {}, "such": {},
}

// tokenPattern matches, in priority order: money, percents, alphanumerics
// that start with a digit ("401k", "5G"), plain numbers and words (which may
// carry inner apostrophes, dots or hyphens).
var tokenPattern = regexp.MustCompile(
	`\$\d[\d,]*(?:\.\d+)?` +
		`|\d[\d,]*(?:\.\d+)?%` +
		`|\d+\p{L}[\p{L}\p{N}]*` +
		`|\d[\d,]*(?:\.\d+)?` +
		`|[\p{L}_][\p{L}\p{N}_]*(?:['’.\-][\p{L}\p{N}_]+)*`,
)

// suffixes are stripped (first match only) as a crude stemmer.
var suffixes = []string{"'s", "’s", "s", "es", "ed", "ing"}

const trimCutset = ".,;:!?()[]{}'\"’"

// Token is a normalized term with its byte span in the source text.
type Token struct {
	Term    string
	Surface string
	Start   int
	End     int
}

// NormalizeTerm lower-cases a raw token and canonicalizes it:
// "$20,000.00" becomes "$20000" while "$19.99" keeps its cents, "12.5%"
// stays "12.5%", "1,234" becomes
// "1234", and one trailing suffix ('s, s, es, ed, ing) is stripped from words
// long enough to keep a three letter stem.
func NormalizeTerm(tok string) string {
	t := strings.Trim(strings.ToLower(tok), trimCutset)
	if t == "" {
		return ""
	}

	if strings.HasPrefix(t, "$") {
		whole, frac, _ := strings.Cut(t[1:], ".")
		whole = "$" + keepRunes(whole, isDigit)
		frac = keepRunes(frac, isDigit)
		if strings.Trim(frac, "0") == "" {
			return whole
		}
		return whole + "." + frac
	}

	if strings.HasSuffix(t, "%") {
		return keepRunes(t[:len(t)-1], func(r rune) bool { return isDigit(r) || r == '.' }) + "%"
	}

	if isPlainNumber(t) {
		return strings.ReplaceAll(t, ",", "")
	}

	for _, suf := range suffixes {
		if strings.HasSuffix(t, suf) && len(t) > len(suf)+2 {
			return t[:len(t)-len(suf)]
		}
	}
	return t
}

// Tokenize returns every normalized token in text, stopwords included.
func Tokenize(text string) []string {
	spans := TokenSpans(text)
	out := make([]string, 0, len(spans))
	for _, s := range spans {
		out = append(out, s.Term)
	}
	return out
}

// TokenSpans returns normalized tokens with their byte offsets.
func TokenSpans(text string) []Token {
	idx := tokenPattern.FindAllStringIndex(text, -1)
	out := make([]Token, 0, len(idx))
	for _, m := range idx {
		surface := text[m[0]:m[1]]
		term := NormalizeTerm(surface)
		if term == "" {
			continue
		}
		out = append(out, Token{Term: term, Surface: surface, Start: m[0], End: m[1]})
	}
	return out
}

// InformativeTerms filters stopwords, bare digit strings and lone "$"/"%".
func InformativeTerms(tokens []string) []string {
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if IsInformative(t) {
			out = append(out, t)
		}
	}
	return out
}

// IsInformative reports whether a normalized term carries content.
func IsInformative(t string) bool {
	if t == "" || t == "$" || t == "%" {
		return false
	}
	if _, stop := stopwords[t]; stop {
		return false
	}
	return !allDigits(t)
}

// Terms tokenizes text and keeps only informative terms.
func Terms(text string) []string {
	return InformativeTerms(Tokenize(text))
}

// SplitSentences splits on '.', '!' or '?' followed by whitespace and then an
// upper-case letter, a digit or '$'. "e.g. the" therefore stays one sentence.
func SplitSentences(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var out []string
	runes := []rune(text)
	start := 0
	for i := 0; i < len(runes); i++ {
		if runes[i] != '.' && runes[i] != '!' && runes[i] != '?' {
			continue
		}
		j := i + 1
		for j < len(runes) && unicode.IsSpace(runes[j]) {
			j++
		}
		if j == i+1 || j >= len(runes) {
			continue
		}
		next := runes[j]
		if unicode.IsUpper(next) || isDigit(next) || next == '$' {
			out = append(out, string(runes[start:i+1]))
			start = j
			i = j - 1
		}
	}
	if start < len(runes) {
		out = append(out, string(runes[start:]))
	}
	return out
}

// counts builds a term frequency map.
func counts(terms []string) map[string]int {
	c := make(map[string]int, len(terms))
	for _, t := range terms {
		c[t]++
	}
	return c
}

func isPlainNumber(t string) bool {
	s := strings.TrimLeft(t, "+-")
	if s == "" || !isDigit(rune(s[0])) {
		return false
	}
	seenDot := false
	for _, r := range s {
		switch {
		case isDigit(r), r == ',':
		case r == '.' && !seenDot:
			seenDot = true
		default:
			return false
		}
	}
	return true
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !isDigit(r) {
			return false
		}
	}
	return true
}

func isDigit(r rune) bool { return r >= '0' && r <= '9' }

func keepRunes(s string, keep func(rune) bool) string {
	var b strings.Builder
	for _, r := range s {
		if keep(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
