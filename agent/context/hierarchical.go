package context

import (
	"context"
	"sort"

	"github.com/mofa-run/mofa/types"
)

// HierarchicalCompressor scores older messages by importance and greedily
// fits the highest-scoring ones into the remaining budget, optionally
// LLM-summarizing high-scoring messages that don't fit as-is (spec §4.5
// Hierarchical(keep_recent)).
//
// importance = 0.4*recency + 0.3*role_weight + 0.3*density, where recency
// is 1 - index/total (older = lower), role_weight is
// system=1.0/assistant=0.7/user=0.5/other=0.3, and density is
// clamp(len(content)/1000, 0, 1).
type HierarchicalCompressor struct {
	KeepRecent int
	Summarizer Summarizer
	Counter    types.TokenCounter
}

func roleWeight(role types.Role) float64 {
	switch role {
	case types.RoleSystem:
		return 1.0
	case types.RoleAssistant:
		return 0.7
	case types.RoleUser:
		return 0.5
	default:
		return 0.3
	}
}

func importanceScore(msg types.Message, index, total int) float64 {
	recency := 1.0 - float64(index)/float64(max(total, 1))
	density := float64(len(msg.Content))
	if density > 1000 {
		density = 1000
	}
	density /= 1000.0
	return 0.4*recency + 0.3*roleWeight(msg.Role) + 0.3*density
}

func (c *HierarchicalCompressor) Compress(ctx context.Context, messages []types.Message, maxTokens int) (CompressionResult, error) {
	counter := c.Counter
	if counter == nil {
		counter = defaultTokenCounter
	}
	original := countMessagesTokens(counter, messages)
	if original <= maxTokens {
		return CompressionResult{Messages: messages, OriginalCount: len(messages), FinalCount: len(messages)}, nil
	}

	system, conv := splitSystemTail(messages)
	keepN := c.KeepRecent
	if keepN < 0 {
		keepN = 0
	}
	if keepN > len(conv) {
		keepN = len(conv)
	}
	toCompress := conv[:len(conv)-keepN]
	recent := conv[len(conv)-keepN:]

	if len(toCompress) == 0 {
		kept := append(append([]types.Message{}, system...), conv...)
		return CompressionResult{Messages: kept, WasCompressed: true, OriginalCount: len(messages), FinalCount: len(kept)}, nil
	}

	type scored struct {
		score float64
		msg   types.Message
	}
	ranked := make([]scored, len(toCompress))
	for i, m := range toCompress {
		ranked[i] = scored{score: importanceScore(m, i, len(toCompress)), msg: m}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	currentTokens := countMessagesTokens(counter, system)
	recentTokens := countMessagesTokens(counter, recent)

	var compressed []types.Message
	for _, r := range ranked {
		msgTokens := countMessageTokens(counter, r.msg)
		if currentTokens+msgTokens+recentTokens <= maxTokens {
			compressed = append(compressed, r.msg)
			currentTokens += msgTokens
			continue
		}
		if r.score > 0.5 && c.Summarizer != nil && r.msg.Content != "" {
			summary, err := c.Summarizer.Summarize(ctx, []types.Message{r.msg})
			if err != nil {
				continue
			}
			summarized := types.Message{Role: r.msg.Role, Content: "[Compressed] " + summary}
			summaryTokens := countMessageTokens(counter, summarized)
			if currentTokens+summaryTokens+recentTokens <= maxTokens {
				compressed = append(compressed, summarized)
				currentTokens += summaryTokens
			}
		}
	}

	result := make([]types.Message, 0, len(system)+len(compressed)+len(recent))
	result = append(result, system...)
	result = append(result, compressed...)
	result = append(result, recent...)
	return CompressionResult{Messages: result, WasCompressed: true, OriginalCount: len(messages), FinalCount: len(result)}, nil
}
