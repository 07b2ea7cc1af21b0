package ollama_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/vectorvault/pkg/paraphrase"
	"github.com/papercomputeco/vectorvault/pkg/paraphrase/ollama"
)

var _ = Describe("Generator", func() {
	var (
		server *httptest.Server
		reply  string
		status int
		model  string
	)

	BeforeEach(func() {
		reply = "A short\n summary  of the page."
		status = http.StatusOK
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			Expect(r.URL.Path).To(Equal("/api/chat"))

			var body struct {
				Model    string `json:"model"`
				Stream   bool   `json:"stream"`
				Messages []struct {
					Role    string `json:"role"`
					Content string `json:"content"`
				} `json:"messages"`
			}
			Expect(json.NewDecoder(r.Body).Decode(&body)).To(Succeed())
			Expect(body.Stream).To(BeFalse())
			Expect(body.Messages).To(HaveLen(2))
			Expect(body.Messages[1].Content).To(Equal("the original document"))
			model = body.Model

			if status != http.StatusOK {
				w.WriteHeader(status)
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"message": map[string]any{"role": "assistant", "content": reply},
				"done":    true,
			})
		}))
	})

	AfterEach(func() {
		server.Close()
	})

	It("returns the completion on one line", func(ctx SpecContext) {
		g := ollama.New(ollama.Config{BaseURL: server.URL})

		query, err := g.Paraphrase(ctx, "the original document")
		Expect(err).NotTo(HaveOccurred())
		Expect(query).To(Equal("A short summary of the page."))
		Expect(model).To(Equal(ollama.DefaultModel))
	})

	It("uses the configured model", func(ctx SpecContext) {
		g := ollama.New(ollama.Config{BaseURL: server.URL, Model: "qwen"})

		_, err := g.Paraphrase(ctx, "the original document")
		Expect(err).NotTo(HaveOccurred())
		Expect(model).To(Equal("qwen"))
	})

	It("fails on an empty completion", func(ctx SpecContext) {
		reply = "   "
		g := ollama.New(ollama.Config{BaseURL: server.URL})

		_, err := g.Paraphrase(ctx, "the original document")
		Expect(err).To(MatchError(paraphrase.ErrParaphrase))
	})

	It("fails on a non-200 status", func(ctx SpecContext) {
		status = http.StatusInternalServerError
		g := ollama.New(ollama.Config{BaseURL: server.URL})

		_, err := g.Paraphrase(ctx, "the original document")
		Expect(err).To(MatchError(paraphrase.ErrParaphrase))
	})
})
