package testutils

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/vectorvault/pkg/storage"
	"github.com/papercomputeco/vectorvault/pkg/vault"
)

// DescribeStorageDriver registers the behaviour every storage.Driver must
// share. newDriver is called before each spec and the result is closed after.
func DescribeStorageDriver(name string, newDriver func() storage.Driver) bool {
	return Describe(name+" storage.Driver behaviour", func() {
		var (
			driver storage.Driver
			ctx    context.Context
		)

		vec := func(text string, emb ...float32) storage.NewVector {
			return storage.NewVector{Text: text, Embedding: emb}
		}

		// seed creates tenant/org/namespace and returns their ids.
		seed := func(tenant, org, ns string) (int64, int64, int64) {
			tID, err := driver.EnsureTenant(ctx, tenant)
			Expect(err).NotTo(HaveOccurred())
			oID, err := driver.EnsureOrganization(ctx, tID, org)
			Expect(err).NotTo(HaveOccurred())
			nsID, err := driver.CreateNamespace(ctx, tID, oID, ns, "science")
			Expect(err).NotTo(HaveOccurred())
			return tID, oID, nsID
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

		Describe("EnsureTenant and EnsureOrganization", func() {
			It("inserts once and returns the same id afterwards", func() {
				a, err := driver.EnsureTenant(ctx, "abc2")
				Expect(err).NotTo(HaveOccurred())
				b, err := driver.EnsureTenant(ctx, "abc2")
				Expect(err).NotTo(HaveOccurred())
				Expect(a).To(Equal(b))

				o1, err := driver.EnsureOrganization(ctx, a, "const")
				Expect(err).NotTo(HaveOccurred())
				o2, err := driver.EnsureOrganization(ctx, a, "const")
				Expect(err).NotTo(HaveOccurred())
				Expect(o1).To(Equal(o2))
			})

			It("scopes organization names per tenant", func() {
				t1, _ := driver.EnsureTenant(ctx, "t1")
				t2, _ := driver.EnsureTenant(ctx, "t2")
				o1, err := driver.EnsureOrganization(ctx, t1, "org")
				Expect(err).NotTo(HaveOccurred())
				o2, err := driver.EnsureOrganization(ctx, t2, "org")
				Expect(err).NotTo(HaveOccurred())
				Expect(o1).NotTo(Equal(o2))
			})

			It("fails with NotFound for an unknown tenant", func() {
				_, err := driver.EnsureOrganization(ctx, 999, "org")
				Expect(err).To(MatchError(vault.ErrNotFound))
			})
		})

		Describe("CreateNamespace", func() {
			It("rejects a duplicate triple with ErrConflict", func() {
				tID, oID, _ := seed("abc2", "const", "gang-sign")
				_, err := driver.CreateNamespace(ctx, tID, oID, "gang-sign", "science")
				Expect(err).To(MatchError(vault.ErrConflict))
			})

			It("fails with NotFound for an unknown organization", func() {
				tID, _ := driver.EnsureTenant(ctx, "abc2")
				_, err := driver.CreateNamespace(ctx, tID, 42, "ns", "")
				Expect(err).To(MatchError(vault.ErrNotFound))
			})

			It("is found by LookupNamespace", func() {
				tID, oID, nsID := seed("abc2", "const", "gang-sign")
				ns, err := driver.LookupNamespace(ctx, tID, oID, "gang-sign")
				Expect(err).NotTo(HaveOccurred())
				Expect(ns.ID).To(Equal(nsID))
				Expect(ns.Category).To(Equal("science"))
			})
		})

		Describe("InsertVectors", func() {
			It("assigns ids 1 and 2 in input order on a fresh store", func() {
				_, _, nsID := seed("abc2", "const", "gang-sign")
				ids, err := driver.InsertVectors(ctx, nsID, []storage.NewVector{
					vec("hi, i like your", 1, 0),
					vec("beautiful eyes", 0, 1),
				})
				Expect(err).NotTo(HaveOccurred())
				Expect(ids).To(Equal([]int64{1, 2}))

				got, err := driver.FetchNamespaceVectors(ctx, nsID)
				Expect(err).NotTo(HaveOccurred())
				Expect(got).To(HaveLen(2))
				Expect(got[0].Text).To(Equal("hi, i like your"))
				Expect(got[0].Embedding).To(Equal([]float32{1, 0}))
				Expect(got[1].Text).To(Equal("beautiful eyes"))
			})

			It("never reuses ids after deletion", func() {
				tID, oID, nsID := seed("t", "o", "a")
				first, err := driver.InsertVectors(ctx, nsID, []storage.NewVector{vec("x", 1), vec("y", 1)})
				Expect(err).NotTo(HaveOccurred())
				Expect(driver.DeleteNamespace(ctx, nsID)).To(Succeed())

				ns2, err := driver.CreateNamespace(ctx, tID, oID, "a", "")
				Expect(err).NotTo(HaveOccurred())
				Expect(ns2).NotTo(Equal(nsID))

				second, err := driver.InsertVectors(ctx, ns2, []storage.NewVector{vec("z", 1)})
				Expect(err).NotTo(HaveOccurred())
				Expect(second[0]).To(BeNumerically(">", first[1]))
			})

			It("stores the source echo alongside the text", func() {
				_, _, nsID := seed("t", "o", "echo")
				_, err := driver.InsertVectors(ctx, nsID, []storage.NewVector{
					{Text: "with echo", Embedding: []float32{1}, SourceRef: "12345"},
					vec("without echo", 1),
				})
				Expect(err).NotTo(HaveOccurred())

				got, err := driver.FetchNamespaceVectors(ctx, nsID)
				Expect(err).NotTo(HaveOccurred())
				Expect(got[0].SourceRef).To(Equal("12345"))
				Expect(got[1].SourceRef).To(BeEmpty())
			})

			It("fails with NotFound for a missing namespace", func() {
				_, err := driver.InsertVectors(ctx, 77, []storage.NewVector{vec("x", 1)})
				Expect(err).To(MatchError(vault.ErrNotFound))
			})
		})

		Describe("ReplaceVectors", func() {
			It("drops existing vectors and inserts new ones with fresh ids", func() {
				_, _, nsID := seed("t", "o", "n")
				old, err := driver.InsertVectors(ctx, nsID, []storage.NewVector{vec("old", 1)})
				Expect(err).NotTo(HaveOccurred())

				ids, err := driver.ReplaceVectors(ctx, nsID, []storage.NewVector{vec("new-a", 1), vec("new-b", 2)})
				Expect(err).NotTo(HaveOccurred())
				Expect(ids).To(HaveLen(2))
				Expect(ids[0]).To(BeNumerically(">", old[0]))

				got, err := driver.FetchNamespaceVectors(ctx, nsID)
				Expect(err).NotTo(HaveOccurred())
				Expect(got).To(HaveLen(2))
				Expect(got[0].Text).To(Equal("new-a"))
			})
		})

		Describe("GetVectors", func() {
			It("returns only vectors of the namespace", func() {
				tID, oID, nsA := seed("t", "o", "a")
				nsB, err := driver.CreateNamespace(ctx, tID, oID, "b", "")
				Expect(err).NotTo(HaveOccurred())

				idsA, _ := driver.InsertVectors(ctx, nsA, []storage.NewVector{vec("a1", 1), vec("a2", 2)})
				idsB, _ := driver.InsertVectors(ctx, nsB, []storage.NewVector{vec("b1", 3)})

				got, err := driver.GetVectors(ctx, nsA, []int64{idsA[1], idsB[0], idsA[0]})
				Expect(err).NotTo(HaveOccurred())
				Expect(got).To(HaveLen(2))
				Expect(got[0].ID).To(Equal(idsA[0]))
				Expect(got[1].ID).To(Equal(idsA[1]))
			})
		})

		Describe("cascading deletes", func() {
			It("removes a namespace and its vectors", func() {
				_, _, nsID := seed("t", "o", "n")
				_, err := driver.InsertVectors(ctx, nsID, []storage.NewVector{vec("x", 1)})
				Expect(err).NotTo(HaveOccurred())

				Expect(driver.DeleteNamespace(ctx, nsID)).To(Succeed())
				_, err = driver.FetchNamespaceVectors(ctx, nsID)
				Expect(err).To(MatchError(vault.ErrNotFound))
				Expect(driver.DeleteNamespace(ctx, nsID)).To(MatchError(vault.ErrNotFound))
			})

			It("removes an organization and reports its namespaces", func() {
				tID, oID, nsA := seed("t", "o", "a")
				nsB, _ := driver.CreateNamespace(ctx, tID, oID, "b", "")

				removed, err := driver.DeleteOrganization(ctx, oID)
				Expect(err).NotTo(HaveOccurred())
				Expect(removed).To(ConsistOf(nsA, nsB))

				_, err = driver.LookupOrganization(ctx, tID, "o")
				Expect(err).To(MatchError(vault.ErrNotFound))
				_, err = driver.LookupTenant(ctx, "t")
				Expect(err).NotTo(HaveOccurred())
			})

			It("removes a tenant with every organization and namespace beneath it", func() {
				tID, oID, nsA := seed("t", "o1", "a")
				o2, _ := driver.EnsureOrganization(ctx, tID, "o2")
				nsB, _ := driver.CreateNamespace(ctx, tID, o2, "b", "")
				_, _, other := seed("other", "o", "c")

				removed, err := driver.DeleteTenant(ctx, tID)
				Expect(err).NotTo(HaveOccurred())
				Expect(removed).To(ConsistOf(nsA, nsB))

				for _, ns := range []int64{nsA, nsB} {
					_, err = driver.FetchNamespaceVectors(ctx, ns)
					Expect(err).To(MatchError(vault.ErrNotFound))
				}
				_, err = driver.LookupOrganization(ctx, tID, "o1")
				Expect(err).To(MatchError(vault.ErrNotFound))
				_, err = driver.LookupNamespace(ctx, tID, oID, "a")
				Expect(err).To(MatchError(vault.ErrNotFound))

				_, err = driver.FetchNamespaceVectors(ctx, other)
				Expect(err).NotTo(HaveOccurred())
			})

			It("fails with NotFound for unknown ids", func() {
				_, err := driver.DeleteTenant(ctx, 404)
				Expect(err).To(MatchError(vault.ErrNotFound))
				_, err = driver.DeleteOrganization(ctx, 404)
				Expect(err).To(MatchError(vault.ErrNotFound))
			})
		})
	})
}
