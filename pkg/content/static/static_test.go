package static_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/vectorvault/pkg/content"
	"github.com/papercomputeco/vectorvault/pkg/content/static"
	"github.com/papercomputeco/vectorvault/pkg/vault"
)

var _ = Describe("Source", func() {
	var src *static.Source

	BeforeEach(func() {
		src = static.New([]content.Document{
			{SourceRef: "1", Category: "Dance", Text: strings.Repeat("tango ", 20)},
			{SourceRef: "2", Category: "Dance", Text: strings.Repeat("waltz ", 20)},
			{SourceRef: "3", Category: "Physics", Text: strings.Repeat("quark ", 20)},
			{SourceRef: "4", Category: "Dance", Text: "short"},
		}, 7)
	})

	It("fetches by source ref", func(ctx SpecContext) {
		text, err := src.Fetch(ctx, "3")
		Expect(err).NotTo(HaveOccurred())
		Expect(text).To(HavePrefix("quark"))
	})

	It("returns not found for unknown refs", func(ctx SpecContext) {
		_, err := src.Fetch(ctx, "99")
		Expect(err).To(MatchError(vault.ErrNotFound))
	})

	It("samples within a category and skips short texts", func(ctx SpecContext) {
		docs, err := src.Sample(ctx, "Dance", 10, 50, nil)
		Expect(err).NotTo(HaveOccurred())

		refs := make([]string, 0, len(docs))
		for _, d := range docs {
			refs = append(refs, d.SourceRef)
		}
		Expect(refs).To(ConsistOf("1", "2"))
	})

	It("samples across categories when none is given", func(ctx SpecContext) {
		docs, err := src.Sample(ctx, "", 10, 50, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(docs).To(HaveLen(3))
	})

	It("honours n and exclusions", func(ctx SpecContext) {
		docs, err := src.Sample(ctx, "Dance", 1, 50, map[string]struct{}{"1": {}})
		Expect(err).NotTo(HaveOccurred())
		Expect(docs).To(HaveLen(1))
		Expect(docs[0].SourceRef).To(Equal("2"))
	})

	It("reports exhaustion", func(ctx SpecContext) {
		_, err := src.Sample(ctx, "History", 1, 0, nil)
		Expect(err).To(MatchError(content.ErrNoDocuments))
	})

	It("loads documents from a JSON file", func(ctx SpecContext) {
		path := filepath.Join(GinkgoT().TempDir(), "docs.json")
		Expect(os.WriteFile(path, []byte(`[{"source_ref":"a","title":"A","category":"Music","text":"melody"}]`), 0o600)).To(Succeed())

		loaded, err := static.Load(path, 1)
		Expect(err).NotTo(HaveOccurred())

		text, err := loaded.Fetch(ctx, "a")
		Expect(err).NotTo(HaveOccurred())
		Expect(text).To(Equal("melody"))
	})

	It("merges only unknown refs", func(ctx SpecContext) {
		added := src.Merge([]content.Document{
			{SourceRef: "3", Category: "Physics", Text: "rewritten"},
			{SourceRef: "5", Category: "Music", Text: strings.Repeat("fugue ", 20)},
		})
		Expect(added).To(Equal(1))

		text, err := src.Fetch(ctx, "3")
		Expect(err).NotTo(HaveOccurred())
		Expect(text).To(HavePrefix("quark"))

		docs, err := src.Sample(ctx, "Music", 1, 0, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(docs[0].SourceRef).To(Equal("5"))
	})

	It("picks up documents written to a watched file", func(ctx SpecContext) {
		path := filepath.Join(GinkgoT().TempDir(), "docs.json")
		Expect(os.WriteFile(path, []byte(`[]`), 0o600)).To(Succeed())

		watchCtx, cancel := context.WithCancel(ctx)
		done := make(chan error, 1)
		go func() { done <- src.Watch(watchCtx, path, nil) }()
		DeferCleanup(func() {
			cancel()
			Eventually(done).Should(Receive(BeNil()))
		})

		// The watcher registers asynchronously; keep rewriting until it sees one.
		Eventually(func(g Gomega) {
			g.Expect(os.WriteFile(path, []byte(`[{"source_ref":"b","category":"Music","text":"cadence"}]`), 0o600)).To(Succeed())
			text, err := src.Fetch(ctx, "b")
			g.Expect(err).NotTo(HaveOccurred())
			g.Expect(text).To(Equal("cadence"))
		}).WithTimeout(5 * time.Second).WithPolling(50 * time.Millisecond).Should(Succeed())
	})
})
