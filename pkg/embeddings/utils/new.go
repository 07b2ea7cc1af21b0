// Package embeddingutils builds embedders from configuration.
package embeddingutils

import (
	"fmt"

	"github.com/papercomputeco/vectorvault/pkg/embeddings"
	"github.com/papercomputeco/vectorvault/pkg/embeddings/hashing"
	"github.com/papercomputeco/vectorvault/pkg/embeddings/ollama"
)

// Providers understood by NewEmbedder.
const (
	ProviderOllama  = "ollama"
	ProviderHashing = "hashing"
)

type NewEmbedderOpts struct {
	ProviderType string
	TargetURL    string
	Model        string

	// Dimensions sizes locally computed embeddings. Remote models decide
	// their own length.
	Dimensions uint
}

func NewEmbedder(o *NewEmbedderOpts) (embeddings.Embedder, error) {
	switch o.ProviderType {
	case ProviderOllama:
		return ollama.NewEmbedder(ollama.EmbedderConfig{
			BaseURL: o.TargetURL,
			Model:   o.Model,
		})
	case ProviderHashing:
		return hashing.NewEmbedder(o.Dimensions), nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", o.ProviderType)
	}
}
