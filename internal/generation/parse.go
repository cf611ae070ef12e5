package generation

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spherical-ai/spherical/libs/grounding-engine/internal/conversation"
)

// ErrParse indicates model output that could not be read as a JSON object.
var ErrParse = errors.New("model output is not a JSON object")

// CoerceJSON reads a JSON object from model output. It tries the raw text,
// then the text with code fences removed, then the span from the first '{'
// to the last '}'.
func CoerceJSON(text string) (map[string]any, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrParse
	}
	if m, ok := decodeObject(text); ok {
		return m, nil
	}
	if m, ok := decodeObject(stripFences(text)); ok {
		return m, nil
	}
	start, end := strings.IndexByte(text, '{'), strings.LastIndexByte(text, '}')
	if start >= 0 && end > start {
		if m, ok := decodeObject(text[start : end+1]); ok {
			return m, nil
		}
	}
	return nil, ErrParse
}

func decodeObject(s string) (map[string]any, bool) {
	var m map[string]any
	if err := json.Unmarshal([]byte(s), &m); err != nil || m == nil {
		return nil, false
	}
	return m, true
}

func stripFences(s string) string {
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```JSON")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// NormalizeAnswer maps a decoded answer object onto a GeneratorResult.
// Evidence labels are left unresolved.
func NormalizeAnswer(m map[string]any) conversation.GeneratorResult {
	return conversation.GeneratorResult{
		Answer:              stringify(m["answer"]),
		Evidence:            stringList(m["evidence"]),
		Abstained:           boolean(m["abstained"]),
		Confidence:          NormalizeConfidence(m["confidence"]),
		AnswerType:          conversation.ParseAnswerType(strings.ToLower(strings.TrimSpace(stringify(m["answer_type"])))),
		ClarifyingQuestion:  strings.TrimSpace(stringify(m["clarifying_question"])),
		FaithfulnessScore:   toFloat(m["faithfulness_score"]),
		CompletenessScore:   toFloat(m["completeness_score"]),
		Missing:             missingList(m["missing"]),
		ReasoningNotes:      stringify(m["reasoning_notes"]),
		InterpretedQuestion: stringify(m["interpreted_question"]),
	}
}

// NormalizeConfidence maps h/med/low style aliases to a Confidence. Anything
// else is returned unchanged and fails Confidence.Valid.
func NormalizeConfidence(v any) conversation.Confidence {
	s := strings.TrimSpace(stringify(v))
	switch strings.ToLower(s) {
	case "high", "h":
		return conversation.ConfidenceHigh
	case "medium", "med", "m":
		return conversation.ConfidenceMedium
	case "low", "l":
		return conversation.ConfidenceLow
	}
	return conversation.Confidence(s)
}

func stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	}
}

func stringList(v any) []string {
	switch x := v.(type) {
	case nil:
		return nil
	case string:
		if x == "" {
			return nil
		}
		return []string{x}
	case []any:
		out := make([]string, 0, len(x))
		for _, e := range x {
			out = append(out, stringify(e))
		}
		return out
	default:
		return []string{stringify(x)}
	}
}

func missingList(v any) []string {
	list := stringList(v)
	out := list[:0]
	for _, s := range list {
		if t := strings.TrimSpace(s); t != "" && !strings.EqualFold(t, "none") {
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func toFloat(v any) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0
		}
		return f
	case bool:
		if x {
			return 1
		}
	}
	return 0
}

func boolean(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case string:
		b, _ := strconv.ParseBool(strings.TrimSpace(x))
		return b
	case float64:
		return x != 0
	}
	return false
}
