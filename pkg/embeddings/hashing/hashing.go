// Package hashing implements pkg/embeddings' Embedder without a model: words
// are feature-hashed into a fixed number of signed buckets and the result is
// L2-normalized. Texts sharing vocabulary land close together, which is
// enough for offline deployments and reproducible audits.
package hashing

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	"github.com/papercomputeco/vectorvault/pkg/embeddings"
)

// DefaultDimensions is used when none are configured.
const DefaultDimensions = 256

// Embedder is a stateless feature-hashing embedder. It is safe for
// concurrent use.
type Embedder struct {
	dimensions int
}

// NewEmbedder creates an Embedder producing vectors of the given length.
func NewEmbedder(dimensions uint) *Embedder {
	if dimensions == 0 {
		dimensions = DefaultDimensions
	}
	return &Embedder{dimensions: int(dimensions)}
}

// Dimensions returns the embedding length.
func (e *Embedder) Dimensions() int {
	return e.dimensions
}

// Embed hashes the lower-cased words of text.
func (e *Embedder) Embed(_ context.Context, text string) ([]float32, error) {
	emb := make([]float32, e.dimensions)

	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	for _, w := range words {
		h := fnv.New64a()
		_, _ = h.Write([]byte(w))
		sum := h.Sum64()

		// The top bit picks the sign so collisions tend to cancel.
		sign := float32(1)
		if sum>>63 == 1 {
			sign = -1
		}
		emb[sum%uint64(e.dimensions)] += sign
	}

	var norm float64
	for _, v := range emb {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return emb, nil
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range emb {
		emb[i] *= scale
	}
	return emb, nil
}

// EmbedBatch embeds every text in order.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
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

func (e *Embedder) Close() error {
	return nil
}

var (
	_ embeddings.Embedder      = (*Embedder)(nil)
	_ embeddings.BatchEmbedder = (*Embedder)(nil)
)
