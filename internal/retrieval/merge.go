package retrieval

import (
	"sort"

	"github.com/spherical-ai/spherical/libs/grounding-engine/internal/conversation"
)

// MergeUnion merges result lists by chunk id, keeping the highest score seen
// for each id, and returns the topK best by descending score. Equal scores
// keep first-seen order.
func MergeUnion(topK int, lists ...[]conversation.Chunk) []conversation.Chunk {
	byID := make(map[string]int)
	var merged []conversation.Chunk
	for _, list := range lists {
		for _, c := range list {
			if i, ok := byID[c.ID]; ok {
				if c.Score > merged[i].Score {
					merged[i] = c
				}
				continue
			}
			byID[c.ID] = len(merged)
			merged = append(merged, c)
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Score > merged[j].Score
	})
	if topK >= 0 && len(merged) > topK {
		merged = merged[:topK]
	}
	return merged
}
