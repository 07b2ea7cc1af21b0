package testutils

import (
	"context"
	"math/rand/v2"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/vectorvault/pkg/ledger"
	"github.com/papercomputeco/vectorvault/pkg/protocol"
	"github.com/papercomputeco/vectorvault/pkg/vault"
)

// NewLedgerEntry builds an entry whose pages map refs to ids positionally.
func NewLedgerEntry(ids protocol.IDs, tenant, org, ns string, refs []string, vectorIDs []int64) *ledger.Entry {
	pages, err := ledger.Zip(refs, vectorIDs)
	Expect(err).NotTo(HaveOccurred())

	pm := ledger.NewPageMap()
	Expect(pm.Add(pages...)).To(Succeed())

	return &ledger.Entry{
		TenantID:         ids.TenantID,
		OrganizationID:   ids.OrganizationID,
		NamespaceID:      ids.NamespaceID,
		TenantName:       tenant,
		OrganizationName: org,
		NamespaceName:    ns,
		Category:         "science",
		Pages:            pm,
		StorageSizeBytes: int64(len(refs)) * 100,
	}
}

// DescribeLedgerDriver registers the behaviour every ledger.Driver must
// share.
func DescribeLedgerDriver(name string, newDriver func() ledger.Driver) bool {
	return Describe(name+" ledger.Driver behaviour", func() {
		const op = "operator-a"

		var (
			driver ledger.Driver
			ctx    context.Context
		)

		ids := func(t, o, n int64) protocol.IDs {
			return protocol.IDs{TenantID: t, OrganizationID: o, NamespaceID: n}
		}

		BeforeEach(func() {
			ctx = context.Background()
			driver = newDriver()
		})

		AfterEach(func() {
			if driver != nil {
				driver.Close()
			}
		})

		Describe("CheckUniqueness", func() {
			It("turns false once the triple is recorded", func() {
				ok, err := driver.CheckUniqueness(ctx, op, "abc2", "const", "gang-sign")
				Expect(err).NotTo(HaveOccurred())
				Expect(ok).To(BeTrue())

				entry := NewLedgerEntry(ids(1, 1, 1), "abc2", "const", "gang-sign", []string{"ref-a", "ref-b"}, []int64{1, 2})
				Expect(driver.RecordCreate(ctx, op, entry)).To(Succeed())

				ok, err = driver.CheckUniqueness(ctx, op, "abc2", "const", "gang-sign")
				Expect(err).NotTo(HaveOccurred())
				Expect(ok).To(BeFalse())
			})

			It("is scoped per operator", func() {
				entry := NewLedgerEntry(ids(1, 1, 1), "abc2", "const", "gang-sign", []string{"ref-a"}, []int64{1})
				Expect(driver.RecordCreate(ctx, op, entry)).To(Succeed())

				ok, err := driver.CheckUniqueness(ctx, "operator-b", "abc2", "const", "gang-sign")
				Expect(err).NotTo(HaveOccurred())
				Expect(ok).To(BeTrue())
			})
		})

		Describe("RecordCreate", func() {
			It("stores the page map in both directions", func() {
				entry := NewLedgerEntry(ids(1, 1, 1), "abc2", "const", "gang-sign", []string{"ref-a", "ref-b"}, []int64{1, 2})
				Expect(driver.RecordCreate(ctx, op, entry)).To(Succeed())

				got, err := driver.Entry(ctx, op, 1)
				Expect(err).NotTo(HaveOccurred())
				Expect(got.TenantName).To(Equal("abc2"))
				Expect(got.Pages.Len()).To(Equal(2))
				ref, ok := got.Pages.SourceRef(1)
				Expect(ok).To(BeTrue())
				Expect(ref).To(Equal("ref-a"))
				id, ok := got.Pages.VectorID("ref-b")
				Expect(ok).To(BeTrue())
				Expect(id).To(Equal(int64(2)))
			})

			It("rejects a namespace id that is already recorded", func() {
				Expect(driver.RecordCreate(ctx, op, NewLedgerEntry(ids(1, 1, 1), "t", "o", "n1", []string{"a"}, []int64{1}))).To(Succeed())
				err := driver.RecordCreate(ctx, op, NewLedgerEntry(ids(1, 1, 1), "t", "o", "n2", []string{"b"}, []int64{2}))
				Expect(err).To(MatchError(vault.ErrConflict))
			})

			It("rejects a triple that is already recorded", func() {
				Expect(driver.RecordCreate(ctx, op, NewLedgerEntry(ids(1, 1, 1), "t", "o", "n", []string{"a"}, []int64{1}))).To(Succeed())
				err := driver.RecordCreate(ctx, op, NewLedgerEntry(ids(1, 1, 2), "t", "o", "n", []string{"b"}, []int64{2}))
				Expect(err).To(MatchError(vault.ErrConflict))
			})
		})

		Describe("RecordUpdate", func() {
			BeforeEach(func() {
				Expect(driver.RecordCreate(ctx, op, NewLedgerEntry(ids(1, 1, 1), "t", "o", "n", []string{"a", "b"}, []int64{1, 2}))).To(Succeed())
			})

			It("adds pages and grows the storage size", func() {
				Expect(driver.RecordUpdate(ctx, op, 1, []ledger.Page{{SourceRef: "c", VectorID: 3}}, 40)).To(Succeed())

				got, err := driver.Entry(ctx, op, 1)
				Expect(err).NotTo(HaveOccurred())
				Expect(got.Pages.Len()).To(Equal(3))
				Expect(got.StorageSizeBytes).To(Equal(int64(240)))
			})

			It("rejects a vector id that is already mapped and leaves the entry intact", func() {
				err := driver.RecordUpdate(ctx, op, 1, []ledger.Page{{SourceRef: "c", VectorID: 3}, {SourceRef: "d", VectorID: 2}}, 40)
				Expect(err).To(MatchError(vault.ErrConflict))

				got, err := driver.Entry(ctx, op, 1)
				Expect(err).NotTo(HaveOccurred())
				Expect(got.Pages.Len()).To(Equal(2))
				Expect(got.StorageSizeBytes).To(Equal(int64(200)))
			})

			It("fails with NotFound for an unknown namespace", func() {
				err := driver.RecordUpdate(ctx, op, 42, []ledger.Page{{SourceRef: "c", VectorID: 3}}, 40)
				Expect(err).To(MatchError(vault.ErrNotFound))
			})
		})

		Describe("RecordReplace", func() {
			It("swaps the page map and the storage size", func() {
				Expect(driver.RecordCreate(ctx, op, NewLedgerEntry(ids(1, 1, 1), "t", "o", "n", []string{"a", "b"}, []int64{1, 2}))).To(Succeed())
				Expect(driver.RecordReplace(ctx, op, 1, []ledger.Page{{SourceRef: "a", VectorID: 3}}, 12)).To(Succeed())

				got, err := driver.Entry(ctx, op, 1)
				Expect(err).NotTo(HaveOccurred())
				Expect(got.Pages.Pages()).To(Equal([]ledger.Page{{SourceRef: "a", VectorID: 3}}))
				Expect(got.StorageSizeBytes).To(Equal(int64(12)))
			})
		})

		Describe("RecordDelete", func() {
			BeforeEach(func() {
				Expect(driver.RecordCreate(ctx, op, NewLedgerEntry(ids(1, 1, 1), "t", "o", "n1", []string{"a"}, []int64{1}))).To(Succeed())
				Expect(driver.RecordCreate(ctx, op, NewLedgerEntry(ids(1, 1, 2), "t", "o", "n2", []string{"b"}, []int64{2}))).To(Succeed())
				Expect(driver.RecordCreate(ctx, op, NewLedgerEntry(ids(1, 2, 3), "t", "p", "n3", []string{"c"}, []int64{3}))).To(Succeed())
				Expect(driver.RecordCreate(ctx, op, NewLedgerEntry(ids(2, 3, 4), "u", "q", "n4", []string{"d"}, []int64{4}))).To(Succeed())
			})

			It("removes a single namespace", func() {
				removed, err := driver.RecordDelete(ctx, op, protocol.ScopeNamespace, ids(1, 1, 1))
				Expect(err).NotTo(HaveOccurred())
				Expect(removed).To(Equal([]int64{1}))

				_, err = driver.Entry(ctx, op, 1)
				Expect(err).To(MatchError(vault.ErrNotFound))
				ok, _ := driver.CheckUniqueness(ctx, op, "t", "o", "n1")
				Expect(ok).To(BeTrue())
			})

			It("removes an organization", func() {
				removed, err := driver.RecordDelete(ctx, op, protocol.ScopeOrganization, ids(1, 1, 0))
				Expect(err).NotTo(HaveOccurred())
				Expect(removed).To(Equal([]int64{1, 2}))
			})

			It("removes a tenant", func() {
				removed, err := driver.RecordDelete(ctx, op, protocol.ScopeTenant, ids(1, 0, 0))
				Expect(err).NotTo(HaveOccurred())
				Expect(removed).To(Equal([]int64{1, 2, 3}))

				entries, err := driver.Entries(ctx, op)
				Expect(err).NotTo(HaveOccurred())
				Expect(entries).To(HaveLen(1))
				Expect(entries[0].NamespaceID).To(Equal(int64(4)))
			})

			It("fails with NotFound when nothing matches", func() {
				_, err := driver.RecordDelete(ctx, op, protocol.ScopeNamespace, ids(1, 1, 99))
				Expect(err).To(MatchError(vault.ErrNotFound))
			})
		})

		Describe("sampling and accounting", func() {
			It("returns nil for an operator without entries", func() {
				e, err := ledger.SampleEntry(ctx, driver, op, rand.New(rand.NewPCG(1, 2)))
				Expect(err).NotTo(HaveOccurred())
				Expect(e).To(BeNil())
			})

			It("never samples a deleted namespace", func() {
				Expect(driver.RecordCreate(ctx, op, NewLedgerEntry(ids(1, 1, 1), "t", "o", "n1", []string{"a"}, []int64{1}))).To(Succeed())
				Expect(driver.RecordCreate(ctx, op, NewLedgerEntry(ids(1, 1, 2), "t", "o", "n2", []string{"b"}, []int64{2}))).To(Succeed())
				_, err := driver.RecordDelete(ctx, op, protocol.ScopeNamespace, ids(1, 1, 1))
				Expect(err).NotTo(HaveOccurred())

				rng := rand.New(rand.NewPCG(7, 7))
				for range 50 {
					e, err := ledger.SampleEntry(ctx, driver, op, rng)
					Expect(err).NotTo(HaveOccurred())
					Expect(e.NamespaceID).To(Equal(int64(2)))
				}
			})

			It("sums storage across active entries", func() {
				Expect(driver.RecordCreate(ctx, op, NewLedgerEntry(ids(1, 1, 1), "t", "o", "n1", []string{"a"}, []int64{1}))).To(Succeed())
				Expect(driver.RecordCreate(ctx, op, NewLedgerEntry(ids(1, 1, 2), "t", "o", "n2", []string{"b", "c"}, []int64{2, 3}))).To(Succeed())

				total, err := driver.TotalStorageBytes(ctx, op)
				Expect(err).NotTo(HaveOccurred())
				Expect(total).To(Equal(int64(300)))

				stats, err := ledger.GetStats(ctx, driver, op)
				Expect(err).NotTo(HaveOccurred())
				Expect(stats.Namespaces).To(Equal(2))
				Expect(stats.Vectors).To(Equal(3))
			})

			It("counts cycles per operator", func() {
				n, err := driver.IncrementCycles(ctx, op)
				Expect(err).NotTo(HaveOccurred())
				Expect(n).To(Equal(int64(1)))
				n, _ = driver.IncrementCycles(ctx, op)
				Expect(n).To(Equal(int64(2)))

				other, err := driver.PassedCycles(ctx, "operator-b")
				Expect(err).NotTo(HaveOccurred())
				Expect(other).To(BeZero())

				ops, err := driver.Operators(ctx)
				Expect(err).NotTo(HaveOccurred())
				Expect(ops).To(ContainElement(op))
			})
		})

		Describe("Names and Lookup", func() {
			It("resolves names recorded by earlier creates", func() {
				Expect(driver.RecordCreate(ctx, op, NewLedgerEntry(ids(1, 1, 1), "abc2", "const", "gang-sign", []string{"a"}, []int64{1}))).To(Succeed())

				tenant, org, ok, err := ledger.Names(ctx, driver, op, 1, 1)
				Expect(err).NotTo(HaveOccurred())
				Expect(ok).To(BeTrue())
				Expect(tenant).To(Equal("abc2"))
				Expect(org).To(Equal("const"))

				e, err := ledger.Lookup(ctx, driver, op, "abc2", "const", "gang-sign")
				Expect(err).NotTo(HaveOccurred())
				Expect(e.NamespaceID).To(Equal(int64(1)))

				_, err = ledger.Lookup(ctx, driver, op, "abc2", "const", "other")
				Expect(err).To(MatchError(vault.ErrNotFound))
			})
		})
	})
}
