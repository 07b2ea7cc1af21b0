package coordinator_test

import (
	"context"
	"unicode/utf8"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/vectorvault/pkg/content"
	"github.com/papercomputeco/vectorvault/pkg/coordinator"
	"github.com/papercomputeco/vectorvault/pkg/ledger"
	"github.com/papercomputeco/vectorvault/pkg/ledger/inmemory"
	"github.com/papercomputeco/vectorvault/pkg/paraphrase/excerpt"
	"github.com/papercomputeco/vectorvault/pkg/protocol"
)

var _ = Describe("Generator", func() {
	var (
		ctx  context.Context
		book *inmemory.Driver
		gen  *coordinator.Generator
	)

	newGenerator := func(maxLen int, replaceP float64) *coordinator.Generator {
		return coordinator.NewGenerator(coordinator.GeneratorConfig{
			Source:             newSource(),
			Paraphrase:         excerpt.New(0.5, 1),
			Ledger:             book,
			Categories:         categories,
			TaskSize:           3,
			MinLen:             20,
			MaxLen:             maxLen,
			ReplaceProbability: replaceP,
			Seed:               21,
		})
	}

	// seed records a create task as if the operator had answered it with
	// sequential ids.
	seed := func(task *coordinator.CreateTask, nsID int64) *ledger.Entry {
		ids := make([]int64, len(task.Batch.Refs))
		for i := range ids {
			ids[i] = nsID*100 + int64(i)
		}
		pages, err := ledger.Zip(task.Batch.Refs, ids)
		Expect(err).NotTo(HaveOccurred())
		pm := ledger.NewPageMap()
		Expect(pm.Add(pages...)).To(Succeed())

		entry := &ledger.Entry{
			TenantID:         nsID,
			OrganizationID:   nsID,
			NamespaceID:      nsID,
			TenantName:       task.Request.TenantName,
			OrganizationName: task.Request.OrganizationName,
			NamespaceName:    task.Request.NamespaceName,
			Category:         task.Batch.Category,
			Pages:            pm,
			StorageSizeBytes: task.Batch.Bytes(),
		}
		Expect(book.RecordCreate(ctx, "op", entry)).To(Succeed())
		return entry
	}

	BeforeEach(func() {
		ctx = context.Background()
		book = inmemory.NewDriver()
		gen = newGenerator(1000, 0)
	})

	Describe("CreateTask", func() {
		It("builds a single-category batch under a fresh triple", func() {
			task, err := gen.CreateTask(ctx, "op")
			Expect(err).NotTo(HaveOccurred())

			Expect(task.Request.Version).To(Equal(protocol.CurrentVersion))
			Expect(task.Batch.Category).To(BeElementOf(categories))
			Expect(task.Request.Category).To(Equal(task.Batch.Category))
			Expect(task.Request.Texts).To(HaveLen(3))
			Expect(task.Batch.Refs).To(HaveLen(3))

			docs := map[string]content.Document{}
			for _, d := range corpus() {
				docs[d.SourceRef] = d
			}
			for i, ref := range task.Batch.Refs {
				Expect(docs[ref].Category).To(Equal(task.Batch.Category))
				Expect(task.Request.Texts[i]).To(Equal(docs[ref].Text))
			}

			unique, err := book.CheckUniqueness(ctx, "op",
				task.Request.TenantName, task.Request.OrganizationName, task.Request.NamespaceName)
			Expect(err).NotTo(HaveOccurred())
			Expect(unique).To(BeTrue())
		})

		It("never repeats a recorded triple", func() {
			seen := map[string]bool{}
			for i := range 20 {
				task, err := gen.CreateTask(ctx, "op")
				Expect(err).NotTo(HaveOccurred())

				key := task.Request.TenantName + "/" + task.Request.OrganizationName + "/" + task.Request.NamespaceName
				Expect(seen[key]).To(BeFalse())
				seen[key] = true
				seed(task, int64(i+1))
			}
		})

		It("truncates long documents and counts bytes per rune", func() {
			gen = newGenerator(25, 0)
			task, err := gen.CreateTask(ctx, "op")
			Expect(err).NotTo(HaveOccurred())

			var runes int
			for _, t := range task.Request.Texts {
				Expect(utf8.RuneCountInString(t)).To(BeNumerically("<=", 25))
				runes += utf8.RuneCountInString(t)
			}
			Expect(task.Batch.TotalLen).To(Equal(runes))
			Expect(task.Batch.Bytes()).To(Equal(int64(runes * ledger.BytesPerChar)))
		})
	})

	Context("with an empty ledger", func() {
		It("has nothing to update, delete or read", func() {
			update, err := gen.UpdateTask(ctx, "op")
			Expect(err).NotTo(HaveOccurred())
			Expect(update).To(BeNil())

			del, err := gen.DeleteTask(ctx, "op")
			Expect(err).NotTo(HaveOccurred())
			Expect(del).To(BeNil())

			read, err := gen.ReadTask(ctx, "op")
			Expect(err).NotTo(HaveOccurred())
			Expect(read).To(BeNil())
		})
	})

	Context("with a recorded namespace", func() {
		var entry *ledger.Entry

		BeforeEach(func() {
			task, err := gen.CreateTask(ctx, "op")
			Expect(err).NotTo(HaveOccurred())
			entry = seed(task, 1)
		})

		It("adds unseen documents of the namespace category", func() {
			task, err := gen.UpdateTask(ctx, "op")
			Expect(err).NotTo(HaveOccurred())
			Expect(task.Request.Mode).To(Equal(protocol.UpdateAdd))
			Expect(task.Request.NamespaceName).To(Equal(entry.NamespaceName))
			Expect(task.Batch.Category).To(Equal(entry.Category))
			for _, ref := range task.Batch.Refs {
				Expect(entry.Pages.HasRef(ref)).To(BeFalse())
			}
		})

		It("draws REPLACE updates", func() {
			gen = newGenerator(1000, 1)
			task, err := gen.UpdateTask(ctx, "op")
			Expect(err).NotTo(HaveOccurred())
			Expect(task.Request.Mode).To(Equal(protocol.UpdateReplace))
		})

		It("targets the namespace for deletion", func() {
			task, err := gen.DeleteTask(ctx, "op")
			Expect(err).NotTo(HaveOccurred())
			Expect(task.Request.Scope).To(Equal(protocol.ScopeNamespace))
			Expect(task.Entry.IDs()).To(Equal(entry.IDs()))
		})

		It("paraphrases a recorded page for reading", func() {
			task, err := gen.ReadTask(ctx, "op")
			Expect(err).NotTo(HaveOccurred())
			Expect(entry.Pages.HasRef(task.SourceRef)).To(BeTrue())
			Expect(task.Request.ResultCount).To(Equal(1))
			Expect(task.Request.QueryText).NotTo(BeEmpty())

			truth, err := gen.GroundTruth().Fetch(ctx, task.SourceRef)
			Expect(err).NotTo(HaveOccurred())
			Expect(task.Original).To(Equal(truth))
		})
	})
})
