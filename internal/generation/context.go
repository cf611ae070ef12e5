package generation

import (
	"fmt"
	"strings"

	"github.com/spherical-ai/spherical/libs/grounding-engine/internal/conversation"
)

// FormattedContext is the grounding lane of the answer prompt.
type FormattedContext struct {
	Text   string
	Labels []string
	// ByLabel maps a prompt label such as "C1" to its chunk id.
	ByLabel map[string]string
}

// FormatContext labels chunks C1..Cn as "C1: text" blocks separated by blank
// lines and truncates the result to maxLen characters (0 means no limit).
func FormatContext(chunks []conversation.Chunk, maxLen int) FormattedContext {
	fc := FormattedContext{ByLabel: make(map[string]string, len(chunks))}
	blocks := make([]string, len(chunks))
	for i, c := range chunks {
		label := fmt.Sprintf("C%d", i+1)
		fc.Labels = append(fc.Labels, label)
		fc.ByLabel[label] = c.ID
		blocks[i] = label + ": " + c.Text
	}
	fc.Text = Truncate(strings.Join(blocks, "\n\n"), maxLen)
	return fc
}

// Truncate shortens s to at most maxLen bytes ending in "...". It cuts at the
// last '.' when that falls past 80% of maxLen.
func Truncate(s string, maxLen int) string {
	if maxLen <= 3 || len(s) <= maxLen {
		return s
	}
	cut := s[:maxLen-3]
	if i := strings.LastIndexByte(cut, '.'); float64(i) > float64(maxLen)*0.8 {
		return cut[:i+1] + "..."
	}
	return cut + "..."
}

// resolveEvidence maps prompt labels back to chunk ids. Unknown entries are
// kept so evidence validation can reject them.
func (fc FormattedContext) resolveEvidence(evidence []string) []string {
	out := make([]string, 0, len(evidence))
	for _, e := range evidence {
		key := strings.ToUpper(strings.TrimSpace(e))
		if id, ok := fc.ByLabel[key]; ok {
			out = append(out, id)
			continue
		}
		out = append(out, e)
	}
	return out
}
