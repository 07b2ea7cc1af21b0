package testutils

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
)

// MockEmbedder is a test embedder that returns predictable embeddings
type MockEmbedder struct {
	Embeddings map[string][]float32

	// FailOn causes Embed to return an error when the input text matches
	FailOn string
}

func NewMockEmbedder() *MockEmbedder {
	return &MockEmbedder{
		Embeddings: make(map[string][]float32),
	}
}

func (m *MockEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if m.FailOn != "" && text == m.FailOn {
		return nil, fmt.Errorf("mock embedding failure for: %s", text)
	}

	if emb, ok := m.Embeddings[text]; ok {
		return emb, nil
	}

	// Return a default embedding for any text
	return []float32{0.1, 0.2, 0.3}, nil
}

func (m *MockEmbedder) Close() error {
	return nil
}

// WordEmbedder embeds text as a hashed bag of lower-cased words, so texts
// sharing words are similar.
type WordEmbedder struct {
	Dimensions int
}

func NewWordEmbedder() *WordEmbedder {
	return &WordEmbedder{Dimensions: 64}
}

func (w *WordEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	emb := make([]float32, w.Dimensions)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,;:!?")
		if word == "" {
			continue
		}
		h := fnv.New32a()
		_, _ = h.Write([]byte(word))
		emb[int(h.Sum32())%w.Dimensions]++
	}
	return emb, nil
}

func (w *WordEmbedder) Close() error {
	return nil
}
