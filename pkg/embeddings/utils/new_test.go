package embeddingutils_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/vectorvault/pkg/embeddings/hashing"
	"github.com/papercomputeco/vectorvault/pkg/embeddings/ollama"
	embeddingutils "github.com/papercomputeco/vectorvault/pkg/embeddings/utils"
)

var _ = Describe("NewEmbedder", func() {
	It("builds an ollama embedder", func() {
		e, err := embeddingutils.NewEmbedder(&embeddingutils.NewEmbedderOpts{
			ProviderType: embeddingutils.ProviderOllama,
			TargetURL:    "http://localhost:11434",
			Model:        "nomic-embed-text",
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(e).To(BeAssignableToTypeOf(&ollama.Embedder{}))
	})

	It("builds a hashing embedder with the configured dimensions", func() {
		e, err := embeddingutils.NewEmbedder(&embeddingutils.NewEmbedderOpts{
			ProviderType: embeddingutils.ProviderHashing,
			Dimensions:   48,
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(e).To(BeAssignableToTypeOf(&hashing.Embedder{}))

		emb, err := e.Embed(context.Background(), "offline audit")
		Expect(err).NotTo(HaveOccurred())
		Expect(emb).To(HaveLen(48))
	})

	It("rejects unknown providers", func() {
		_, err := embeddingutils.NewEmbedder(&embeddingutils.NewEmbedderOpts{ProviderType: "word2vec"})
		Expect(err).To(MatchError(ContainSubstring("unsupported embedding provider")))
	})
})
