package context

import (
	"context"
	"math"

	"github.com/mofa-run/mofa/types"
)

// Embedder produces a vector embedding for a piece of text. Optional — when
// nil, SemanticCompressor falls back to returning messages unchanged beyond
// the recency window, same as Summarizer being nil for SummarizeCompressor.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// SemanticCompressor clusters semantically similar older messages and keeps
// one representative per cluster (spec §4.5 Semantic(threshold,
// keep_recent)). Clustering is a single greedy pass: for each unassigned
// message, every later unassigned message whose embedding has cosine
// similarity >= Threshold joins its cluster.
type SemanticCompressor struct {
	Embedder   Embedder
	Threshold  float32
	KeepRecent int
	Cache      *Cache
	Counter    types.TokenCounter
}

func (c *SemanticCompressor) Compress(ctx context.Context, messages []types.Message, maxTokens int) (CompressionResult, error) {
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

	if len(toCompress) == 0 || c.Embedder == nil {
		kept := append(append([]types.Message{}, system...), conv...)
		return CompressionResult{Messages: kept, WasCompressed: true, OriginalCount: len(messages), FinalCount: len(kept)}, nil
	}

	embeddings := make([][]float32, len(toCompress))
	for i, m := range toCompress {
		if m.Content == "" {
			continue
		}
		emb, err := c.embed(ctx, m.Content)
		if err != nil {
			return CompressionResult{}, err
		}
		embeddings[i] = emb
	}

	assigned := make([]bool, len(toCompress))
	var clusters [][]int
	for i := range toCompress {
		if assigned[i] {
			continue
		}
		cluster := []int{i}
		assigned[i] = true
		if embeddings[i] != nil {
			for j := i + 1; j < len(toCompress); j++ {
				if assigned[j] || embeddings[j] == nil {
					continue
				}
				if cosineSimilarity(embeddings[i], embeddings[j]) >= c.Threshold {
					cluster = append(cluster, j)
					assigned[j] = true
				}
			}
		}
		clusters = append(clusters, cluster)
	}

	compressed := make([]types.Message, 0, len(clusters))
	for _, cluster := range clusters {
		rep := cluster[0]
		for _, idx := range cluster[1:] {
			if len(toCompress[idx].Content) > len(toCompress[rep].Content) {
				rep = idx
			}
		}
		compressed = append(compressed, toCompress[rep])
	}

	result := make([]types.Message, 0, len(system)+len(compressed)+len(recent))
	result = append(result, system...)
	result = append(result, compressed...)
	result = append(result, recent...)
	return CompressionResult{Messages: result, WasCompressed: true, OriginalCount: len(messages), FinalCount: len(result)}, nil
}

func (c *SemanticCompressor) embed(ctx context.Context, text string) ([]float32, error) {
	if c.Cache != nil {
		if cached, ok := c.Cache.GetEmbedding(text); ok {
			return cached, nil
		}
	}
	emb, err := c.Embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if c.Cache != nil {
		c.Cache.PutEmbedding(text, emb)
	}
	return emb, nil
}

func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
