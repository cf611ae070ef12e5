package conversation

import (
	"regexp"
	"strings"
)

var ackTokens = map[string]struct{}{
	"yes": {}, "y": {}, "yeah": {}, "yep": {}, "ok": {}, "okay": {}, "sure": {},
	"that": {}, "this": {}, "it": {}, "right": {}, "correct": {}, "exactly": {},
	"sounds good": {},
}

var corefPronoun = regexp.MustCompile(`\b(it|that|this|those|these|them|they|he|she)\b`)

// IsAckOrCoref reports whether msg is an acknowledgment ("yes", "ok") or a
// short reply that points back at earlier context ("that one", "what about it").
func IsAckOrCoref(msg string) bool {
	t := strings.ToLower(strings.TrimSpace(msg))
	if _, ok := ackTokens[t]; ok {
		return true
	}
	if len(strings.Fields(t)) <= 3 {
		return corefPronoun.MatchString(t)
	}
	return false
}

// BuildSnippet renders at most the last `turns` user and `turns` assistant
// messages, oldest first, as "User: ..." / "Assistant: ..." lines.
func BuildSnippet(messages []Turn, turns int) string {
	var lines []string
	users, assistants := 0, 0
	for i := len(messages) - 1; i >= 0; i-- {
		m := messages[i]
		switch {
		case m.Role == RoleAssistant && assistants < turns:
			lines = append(lines, "Assistant: "+m.Content)
			assistants++
		case m.Role == RoleUser && users < turns:
			lines = append(lines, "User: "+m.Content)
			users++
		}
		if users >= turns && assistants >= turns {
			break
		}
	}
	for i, j := 0, len(lines)-1; i < j; i, j = i+1, j-1 {
		lines[i], lines[j] = lines[j], lines[i]
	}
	return strings.Join(lines, "\n")
}

// ValidateEvidence reports whether every evidence id is among the chunks.
func ValidateEvidence(evidence []string, chunks []Chunk) bool {
	allowed := make(map[string]struct{}, len(chunks))
	for _, c := range chunks {
		allowed[c.ID] = struct{}{}
	}
	for _, e := range evidence {
		if _, ok := allowed[e]; !ok {
			return false
		}
	}
	return true
}

var clarificationPhrases = []string{
	"could you clarify", "can you clarify", "what do you mean",
	"could you be more specific", "can you be more specific",
	"what exactly", "which specific", "are you asking about",
	"do you mean", "are you referring to", "could you provide more details",
}

// IsClarificationText reports whether an assistant message reads as a
// request for clarification.
func IsClarificationText(text string) bool {
	t := strings.ToLower(text)
	for _, p := range clarificationPhrases {
		if strings.Contains(t, p) {
			return true
		}
	}
	return false
}

// IsClarificationResponse reports whether the assistant message preceding the
// latest user turn was a clarification question.
func IsClarificationResponse(messages []Turn) bool {
	if len(messages) < 2 {
		return false
	}
	for i := len(messages) - 2; i >= 0; i-- {
		if messages[i].Role == RoleAssistant {
			return IsClarificationText(messages[i].Content)
		}
	}
	return false
}

var yesNo = map[string]struct{}{
	"yes": {}, "y": {}, "yeah": {}, "yep": {}, "sure": {}, "ok": {}, "okay": {}, "correct": {}, "right": {},
	"no": {}, "n": {}, "nope": {}, "nah": {}, "incorrect": {}, "wrong": {}, "not": {},
}

// IsYesNo reports whether msg is a bare yes/no answer.
func IsYesNo(msg string) bool {
	_, ok := yesNo[strings.ToLower(strings.TrimSpace(msg))]
	return ok
}

var followUpIndicators = []string{
	"what about", "how about", "and", "also", "additionally",
	"furthermore", "moreover", "what else", "anything else",
	"can you tell me more", "tell me more", "more details",
}

// IsFollowUp reports whether msg looks like a follow-up to the prior answer.
// Matching is by substring, so "and" also hits words such as "brand".
func IsFollowUp(msg string) bool {
	t := strings.ToLower(msg)
	for _, ind := range followUpIndicators {
		if strings.Contains(t, ind) {
			return true
		}
	}
	return false
}
