package protocol_test

import (
	"encoding/json"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/vectorvault/pkg/protocol"
	"github.com/papercomputeco/vectorvault/pkg/vault"
)

var _ = Describe("Version", func() {
	It("orders by major, minor then patch", func() {
		v := protocol.Version{Major: 1, Minor: 2, Patch: 3}
		Expect(v.Compare(v)).To(Equal(0))
		Expect(v.Compare(protocol.Version{Major: 1, Minor: 2, Patch: 4})).To(Equal(-1))
		Expect(v.Compare(protocol.Version{Major: 1, Minor: 1, Patch: 9})).To(Equal(1))
		Expect(protocol.Version{Major: 2}.NewerThan(v)).To(BeTrue())
		Expect(v.String()).To(Equal("1.2.3"))
	})
})

var _ = Describe("enums", func() {
	It("round-trips update modes through JSON", func() {
		b, err := json.Marshal(protocol.UpdateReplace)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(b)).To(Equal(`"REPLACE"`))

		var m protocol.UpdateMode
		Expect(json.Unmarshal([]byte(`"add"`), &m)).To(Succeed())
		Expect(m).To(Equal(protocol.UpdateAdd))
		Expect(json.Unmarshal([]byte(`"MERGE"`), &m)).NotTo(Succeed())
	})

	It("accepts the delete scopes", func() {
		for in, want := range map[string]protocol.DeleteScope{
			`"tenant"`:       protocol.ScopeTenant,
			`"user"`:         protocol.ScopeTenant,
			`"organization"`: protocol.ScopeOrganization,
			`"namespace"`:    protocol.ScopeNamespace,
		} {
			var s protocol.DeleteScope
			Expect(json.Unmarshal([]byte(in), &s)).To(Succeed())
			Expect(s).To(Equal(want))
		}
	})

	It("refuses to marshal the zero value", func() {
		_, err := json.Marshal(protocol.DeleteScope(0))
		Expect(err).To(HaveOccurred())
		_, err = json.Marshal(protocol.OpKind(0))
		Expect(err).To(HaveOccurred())
	})

	It("names operation kinds", func() {
		Expect(protocol.OpCreate.String()).To(Equal("create"))
		Expect(protocol.OpKinds).To(HaveLen(4))
	})
})

var _ = Describe("Validate", func() {
	It("accepts a well formed create request", func() {
		req := protocol.CreateRequest{
			TenantName:       "abc2",
			OrganizationName: "const",
			NamespaceName:    "gang-sign",
			Texts:            []string{"hi, i like your", "beautiful eyes"},
		}
		Expect(protocol.Validate(req)).To(Succeed())
	})

	It("rejects empty texts", func() {
		req := protocol.CreateRequest{TenantName: "a", OrganizationName: "b", NamespaceName: "c", Texts: []string{"ok", ""}}
		Expect(protocol.Validate(req)).To(MatchError(vault.ErrInvalidRequest))
	})

	It("requires a mode on updates", func() {
		req := protocol.UpdateRequest{TenantName: "a", OrganizationName: "b", NamespaceName: "c", Texts: []string{"x"}}
		Expect(protocol.Validate(req)).To(MatchError(vault.ErrInvalidRequest))
	})

	It("requires a positive result count on reads", func() {
		req := protocol.ReadRequest{TenantName: "a", OrganizationName: "b", NamespaceName: "c", QueryText: "q"}
		Expect(protocol.Validate(req)).To(MatchError(vault.ErrInvalidRequest))
		req.ResultCount = 1
		Expect(protocol.Validate(req)).To(Succeed())
	})

	It("only requires names down to the delete scope", func() {
		Expect(protocol.Validate(protocol.DeleteRequest{Scope: protocol.ScopeTenant, TenantName: "a"})).To(Succeed())
		Expect(protocol.Validate(protocol.DeleteRequest{Scope: protocol.ScopeOrganization, TenantName: "a"})).
			To(MatchError(vault.ErrInvalidRequest))
		Expect(protocol.Validate(protocol.DeleteRequest{Scope: protocol.ScopeNamespace, TenantName: "a", OrganizationName: "b"})).
			To(MatchError(vault.ErrInvalidRequest))
	})
})

var _ = Describe("responses", func() {
	It("encodes a create response as a 4-tuple", func() {
		resp := protocol.CreateResponse{
			IDs:       protocol.IDs{TenantID: 1, OrganizationID: 1, NamespaceID: 1},
			VectorIDs: []int64{1, 2},
		}
		b, err := json.Marshal(resp)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(b)).To(Equal(`[1,1,1,[1,2]]`))

		var back protocol.CreateResponse
		Expect(json.Unmarshal(b, &back)).To(Succeed())
		Expect(back).To(Equal(resp))
	})

	It("encodes a read response as a 5-tuple", func() {
		b, err := json.Marshal(protocol.ReadResponse{IDs: protocol.IDs{TenantID: 1, OrganizationID: 2, NamespaceID: 3}, VectorID: 4, Text: "beautiful eyes"})
		Expect(err).NotTo(HaveOccurred())
		Expect(string(b)).To(Equal(`[1,2,3,4,"beautiful eyes"]`))
	})

	DescribeTable("rejects malformed tuples",
		func(target any, payload string) {
			Expect(json.Unmarshal([]byte(payload), target)).To(MatchError(vault.ErrMalformed))
		},
		Entry("create with 3 elements", &protocol.CreateResponse{}, `[1,1,1]`),
		Entry("create without id list", &protocol.CreateResponse{}, `[1,1,1,null]`),
		Entry("create with string ids", &protocol.CreateResponse{}, `[1,1,1,["a"]]`),
		Entry("read with 4 elements", &protocol.ReadResponse{}, `[1,1,1,1]`),
		Entry("read with numeric text", &protocol.ReadResponse{}, `[1,1,1,1,2]`),
		Entry("update with 5 elements", &protocol.UpdateResponse{}, `[1,1,1,[1],5]`),
		Entry("delete with 4 elements", &protocol.DeleteResponse{}, `[1,1,1,1]`),
		Entry("delete with fractional id", &protocol.DeleteResponse{}, `[1,1.5,1]`),
		Entry("delete as object", &protocol.DeleteResponse{}, `{"tenant_id":1}`),
		Entry("create with null ids", &protocol.CreateResponse{}, `[null,null,null,[1,2]]`),
		Entry("create with a null tenant", &protocol.CreateResponse{}, `[null,1,1,[1]]`),
		Entry("create with a zero namespace", &protocol.CreateResponse{}, `[1,1,0,[1]]`),
		Entry("create with a null vector id", &protocol.CreateResponse{}, `[1,1,1,[1,null]]`),
		Entry("update with a negative vector id", &protocol.UpdateResponse{}, `[1,1,1,[-4]]`),
		Entry("read with a null vector id", &protocol.ReadResponse{}, `[1,1,1,null,"x"]`),
		Entry("read with null text", &protocol.ReadResponse{}, `[1,1,1,1,null]`),
		Entry("read with a zero organization", &protocol.ReadResponse{}, `[1,0,1,1,"x"]`),
		Entry("delete with a null tenant", &protocol.DeleteResponse{}, `[null,0,0]`),
		Entry("delete with a zero tenant", &protocol.DeleteResponse{}, `[0,0,0]`),
	)

	It("accepts zeroed levels below a delete's scope", func() {
		var resp protocol.DeleteResponse
		Expect(json.Unmarshal([]byte(`[7,0,0]`), &resp)).To(Succeed())
		Expect(resp.IDs).To(Equal(protocol.IDs{TenantID: 7}))
	})

	It("encodes an empty id list as []", func() {
		b, err := json.Marshal(protocol.UpdateResponse{})
		Expect(err).NotTo(HaveOccurred())
		Expect(string(b)).To(Equal(`[0,0,0,[]]`))
	})
})
