package context

import (
	"context"
	"strings"

	"github.com/mofa-run/mofa/types"
)

// CompressionResult is the outcome of a Compressor.Compress call.
type CompressionResult struct {
	Messages      []types.Message
	WasCompressed bool
	OriginalCount int
	FinalCount    int
}

// Compressor reduces a message list to fit within a token budget while
// preserving the system prompt and trailing conversation (spec §4.5). Every
// implementation must honor the universal invariant: if the input is
// already within budget, return it unchanged with WasCompressed=false.
type Compressor interface {
	Compress(ctx context.Context, messages []types.Message, maxTokens int) (CompressionResult, error)
}

// TokenCounterFunc adapts a plain function to types.TokenCounter.
type TokenCounterFunc func(text string) int

func (f TokenCounterFunc) CountTokens(text string) int { return f(text) }

// defaultTokenCounter implements the spec's default heuristic: len/4 + 1.
var defaultTokenCounter types.TokenCounter = TokenCounterFunc(func(text string) int {
	return len(text)/4 + 1
})

// countMessageTokens estimates the token cost of a single message using the
// given counter, including small per-message/tool-call overhead, mirroring
// WindowManager.messageTokens.
func countMessageTokens(counter types.TokenCounter, msg types.Message) int {
	if counter == nil {
		counter = defaultTokenCounter
	}
	tokens := counter.CountTokens(msg.Content)
	if msg.Name != "" {
		tokens += counter.CountTokens(msg.Name)
	}
	for _, tc := range msg.ToolCalls {
		tokens += counter.CountTokens(tc.Name)
		tokens += len(tc.Arguments) / 4
	}
	tokens += 4
	return tokens
}

// countMessagesTokens sums countMessageTokens across a message list.
func countMessagesTokens(counter types.TokenCounter, msgs []types.Message) int {
	total := 0
	for _, m := range msgs {
		total += countMessageTokens(counter, m)
	}
	return total
}

// summaryCacheText builds a stable cache key source from the messages about
// to be summarized.
func summaryCacheText(msgs []types.Message) string {
	var b strings.Builder
	for _, m := range msgs {
		b.WriteString(string(m.Role))
		b.WriteString(": ")
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
	return b.String()
}

// splitSystemTail splits messages into system messages and the trailing
// non-system conversation, as the compressors operate over the latter.
func splitSystemTail(msgs []types.Message) (system, conversation []types.Message) {
	for _, m := range msgs {
		if m.Role == types.RoleSystem {
			system = append(system, m)
		} else {
			conversation = append(conversation, m)
		}
	}
	return
}

// SlidingWindowCompressor keeps system messages plus the last N non-system
// messages (spec §4.5 SlidingWindow(N)).
type SlidingWindowCompressor struct {
	N       int
	Counter types.TokenCounter
}

func (c *SlidingWindowCompressor) Compress(ctx context.Context, messages []types.Message, maxTokens int) (CompressionResult, error) {
	counter := c.Counter
	if counter == nil {
		counter = defaultTokenCounter
	}
	original := countMessagesTokens(counter, messages)
	if original <= maxTokens {
		return CompressionResult{Messages: messages, OriginalCount: len(messages), FinalCount: len(messages)}, nil
	}

	system, conv := splitSystemTail(messages)
	n := c.N
	if n < 0 {
		n = 0
	}
	if n >= len(conv) {
		kept := append(append([]types.Message{}, system...), conv...)
		return CompressionResult{Messages: kept, WasCompressed: true, OriginalCount: len(messages), FinalCount: len(kept)}, nil
	}

	kept := append(append([]types.Message{}, system...), conv[len(conv)-n:]...)
	return CompressionResult{Messages: kept, WasCompressed: true, OriginalCount: len(messages), FinalCount: len(kept)}, nil
}

// SummarizeCompressor splits the conversation at |conv|-K, LLM-summarizes
// the prefix into a single assistant message tagged "[Conversation
// summary]", and prepends it to the last-K tail (spec §4.5
// Summarize(keep_recent=K)).
type SummarizeCompressor struct {
	KeepRecent int
	Summarizer Summarizer
	Cache      *Cache
	Counter    types.TokenCounter
}

func (c *SummarizeCompressor) Compress(ctx context.Context, messages []types.Message, maxTokens int) (CompressionResult, error) {
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
	prefix := conv[:len(conv)-keepN]
	tail := conv[len(conv)-keepN:]

	if len(prefix) == 0 || c.Summarizer == nil {
		kept := append(append([]types.Message{}, system...), tail...)
		return CompressionResult{Messages: kept, WasCompressed: true, OriginalCount: len(messages), FinalCount: len(kept)}, nil
	}

	cacheText := summaryCacheText(prefix)
	var summary string
	if c.Cache != nil {
		if cached, ok := c.Cache.GetSummary(cacheText); ok {
			summary = cached
		}
	}
	if summary == "" {
		var err error
		summary, err = c.Summarizer.Summarize(ctx, prefix)
		if err != nil {
			return CompressionResult{}, err
		}
		if c.Cache != nil {
			c.Cache.PutSummary(cacheText, summary)
		}
	}

	summaryMsg := types.Message{
		Role:    types.RoleAssistant,
		Content: "[Conversation summary] " + summary,
	}

	result := make([]types.Message, 0, len(system)+1+len(tail))
	result = append(result, system...)
	result = append(result, summaryMsg)
	result = append(result, tail...)
	return CompressionResult{Messages: result, WasCompressed: true, OriginalCount: len(messages), FinalCount: len(result)}, nil
}
