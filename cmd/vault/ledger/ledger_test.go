package ledgercmder_test

import (
	"bytes"
	"context"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	ledgercmder "github.com/papercomputeco/vectorvault/cmd/vault/ledger"
	"github.com/papercomputeco/vectorvault/pkg/ledger"
	"github.com/papercomputeco/vectorvault/pkg/ledger/inmemory"
	ledgersqlite "github.com/papercomputeco/vectorvault/pkg/ledger/sqlite"
)

func seedEntry(ctx context.Context, d ledger.Driver, operator string, nsID int64, refs ...string) {
	pm := ledger.NewPageMap()
	ids := make([]int64, len(refs))
	for i := range refs {
		ids[i] = nsID*100 + int64(i)
	}
	pages, err := ledger.Zip(refs, ids)
	Expect(err).NotTo(HaveOccurred())
	Expect(pm.Add(pages...)).To(Succeed())

	Expect(d.RecordCreate(ctx, operator, &ledger.Entry{
		TenantID:         1,
		OrganizationID:   1,
		NamespaceID:      nsID,
		TenantName:       "acme",
		OrganizationName: "research",
		NamespaceName:    "ns" + refs[0],
		Category:         "Physics",
		Pages:            pm,
		StorageSizeBytes: int64(len(refs)) * 400,
	})).To(Succeed())
}

var _ = Describe("BuildReport", func() {
	var (
		ctx context.Context
		d   *inmemory.Driver
	)

	BeforeEach(func() {
		ctx = context.Background()
		d = inmemory.NewDriver()
	})

	It("notes an empty ledger", func() {
		md, err := ledgercmder.BuildReport(ctx, d)
		Expect(err).NotTo(HaveOccurred())
		Expect(md).To(ContainSubstring("# Audit ledger"))
		Expect(md).To(ContainSubstring("No operators audited yet"))
	})

	It("renders one section per operator with a namespace table", func() {
		seedEntry(ctx, d, "http://op-a:8091", 1, "10", "11")
		seedEntry(ctx, d, "http://op-b:8091", 7, "20")
		_, err := d.IncrementCycles(ctx, "http://op-a:8091")
		Expect(err).NotTo(HaveOccurred())

		md, err := ledgercmder.BuildReport(ctx, d)
		Expect(err).NotTo(HaveOccurred())
		Expect(md).To(ContainSubstring("## http://op-a:8091"))
		Expect(md).To(ContainSubstring("## http://op-b:8091"))
		Expect(md).To(ContainSubstring("| acme/research/ns10 | Physics | 2 | 800 |"))
		Expect(md).To(ContainSubstring("| acme/research/ns20 | Physics | 1 | 400 |"))
		Expect(md).To(ContainSubstring("**Passed cycles:** 1"))
		Expect(md).To(ContainSubstring("very_young"))
	})
})

var _ = Describe("ledger command", func() {
	var ledgerPath string

	BeforeEach(func() {
		ctx := context.Background()
		ledgerPath = filepath.Join(GinkgoT().TempDir(), "ledger.db")
		d, err := ledgersqlite.NewDriver(ctx, ledgerPath)
		Expect(err).NotTo(HaveOccurred())
		seedEntry(ctx, d, "http://op-a:8091", 1, "10", "11", "12")
		Expect(d.Close()).To(Succeed())
	})

	run := func(args ...string) (string, error) {
		cmd := ledgercmder.NewLedgerCmd()
		cmd.PersistentFlags().String("config-dir", GinkgoT().TempDir(), "")
		var out bytes.Buffer
		cmd.SetOut(&out)
		cmd.SetArgs(args)
		err := cmd.Execute()
		return out.String(), err
	}

	It("prints stats for every operator", func() {
		out, err := run("stats", "--ledger", ledgerPath)
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(ContainSubstring("http://op-a:8091"))
		Expect(out).To(ContainSubstring("1200"))
		Expect(out).To(ContainSubstring("very_young"))
	})

	It("rejects an unknown operator", func() {
		_, err := run("stats", "http://nowhere:8091", "--ledger", ledgerPath)
		Expect(err).To(MatchError(ContainSubstring("not in ledger")))
	})

	It("prints the raw markdown report", func() {
		out, err := run("report", "--raw", "--ledger", ledgerPath)
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(ContainSubstring("| acme/research/ns10 | Physics | 3 | 1200 |"))
	})
})
