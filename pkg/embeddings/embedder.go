// Package embeddings turns text into fixed-length vectors.
package embeddings

import (
	"context"
	"errors"
	"fmt"
)

// ErrEmbedding is returned when embedding generation fails.
var ErrEmbedding = errors.New("embedding failed")

// Embedder provides text embedding capabilities.
type Embedder interface {
	// Embed converts text into a vector embedding.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Close releases any resources held by the embedder.
	Close() error
}

// BatchEmbedder is implemented by embedders that can embed several texts in
// one round trip.
type BatchEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// EmbedAll embeds texts in order, batching when the embedder supports it.
func EmbedAll(ctx context.Context, e Embedder, texts []string) ([][]float32, error) {
	if b, ok := e.(BatchEmbedder); ok {
		out, err := b.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, err
		}
		if len(out) != len(texts) {
			return nil, fmt.Errorf("%w: %d embeddings for %d texts", ErrEmbedding, len(out), len(texts))
		}
		return out, nil
	}

	out := make([][]float32, len(texts))
	for i, t := range texts {
		emb, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = emb
	}
	return out, nil
}
