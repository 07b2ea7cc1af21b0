package mcp

import (
	"context"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	vaultlogger "github.com/papercomputeco/vectorvault/pkg/logger"
	"github.com/papercomputeco/vectorvault/pkg/operator"
	"github.com/papercomputeco/vectorvault/pkg/protocol"
	"github.com/papercomputeco/vectorvault/pkg/search"
	testutils "github.com/papercomputeco/vectorvault/pkg/utils/test"
)

var _ = Describe("Search tool", func() {
	var (
		ctx    context.Context
		server *Server
	)

	BeforeEach(func() {
		ctx = context.Background()
		engine := operator.New(operator.Config{Embedder: testutils.NewWordEmbedder()})
		stores := testutils.NewMemoryStores()

		var err error
		server, err = NewServer(Config{Engine: engine, Stores: stores, Logger: vaultlogger.Nop()})
		Expect(err).NotTo(HaveOccurred())

		store, release, err := stores.Acquire(ctx, "coordinator")
		Expect(err).NotTo(HaveOccurred())
		defer release() //nolint:errcheck

		_, err = engine.Create(ctx, store, protocol.CreateRequest{
			Version:          protocol.CurrentVersion,
			TenantName:       "abc2",
			OrganizationName: "const",
			NamespaceName:    "gang-sign",
			Texts: []string{
				"violins and cellos in the orchestra",
				"glaciers carve valleys over millennia",
			},
		})
		Expect(err).NotTo(HaveOccurred())
	})

	It("ranks the namespace against the query", func() {
		result, out, err := server.handleSearch(ctx, nil, SearchInput{
			Coordinator:  "coordinator",
			Tenant:       "abc2",
			Organization: "const",
			Namespace:    "gang-sign",
			Query:        "glaciers and valleys",
			TopK:         1,
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(result.IsError).To(BeFalse())
		Expect(out.Count).To(Equal(1))
		Expect(out.Results[0].Preview).To(Equal("glaciers carve valleys over millennia"))
	})

	It("reports a missing namespace as a tool error", func() {
		result, _, err := server.handleSearch(ctx, nil, SearchInput{
			Coordinator:  "coordinator",
			Tenant:       "abc2",
			Organization: "const",
			Namespace:    "nope",
			Query:        "anything",
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(result.IsError).To(BeTrue())
	})

	It("requires the namespace triple", func() {
		result, _, err := server.handleSearch(ctx, nil, SearchInput{Coordinator: "coordinator", Query: "anything"})
		Expect(err).NotTo(HaveOccurred())
		Expect(result.IsError).To(BeTrue())
	})

	Describe("buildSearchOutput", func() {
		It("truncates long previews", func() {
			out := buildSearchOutput("q", []search.Result{
				{VectorID: 7, Text: strings.Repeat("a", 500), Score: 0.5},
			})
			Expect(out.Count).To(Equal(1))
			Expect(out.Results[0].VectorID).To(Equal(int64(7)))
			Expect(out.Results[0].Preview).To(HaveLen(previewLen + 3))
		})
	})
})
