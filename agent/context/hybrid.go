package context

import (
	"context"

	"github.com/mofa-run/mofa/types"
)

// HybridCompressor tries a sequence of strategies in order, returning the
// first whose output fits the budget; if none do, it returns the last
// strategy's output (spec §4.5 Hybrid([strategies])).
type HybridCompressor struct {
	Strategies []Compressor
	Counter    types.TokenCounter
}

func (c *HybridCompressor) Compress(ctx context.Context, messages []types.Message, maxTokens int) (CompressionResult, error) {
	counter := c.Counter
	if counter == nil {
		counter = defaultTokenCounter
	}
	original := countMessagesTokens(counter, messages)
	if original <= maxTokens {
		return CompressionResult{Messages: messages, OriginalCount: len(messages), FinalCount: len(messages)}, nil
	}

	var last CompressionResult
	current := messages
	for _, strat := range c.Strategies {
		result, err := strat.Compress(ctx, current, maxTokens)
		if err != nil {
			return CompressionResult{}, err
		}
		last = result
		if countMessagesTokens(counter, result.Messages) <= maxTokens {
			last.OriginalCount = len(messages)
			last.WasCompressed = true
			return last, nil
		}
		current = result.Messages
	}

	if len(c.Strategies) == 0 {
		return CompressionResult{Messages: messages, OriginalCount: len(messages), FinalCount: len(messages)}, nil
	}

	last.OriginalCount = len(messages)
	last.WasCompressed = true
	last.FinalCount = len(last.Messages)
	return last, nil
}
