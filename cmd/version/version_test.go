package versioncmder_test

import (
	"bytes"
	"encoding/json"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	versioncmder "github.com/papercomputeco/vectorvault/cmd/version"
	"github.com/papercomputeco/vectorvault/pkg/protocol"
)

var _ = Describe("NewVersionCmd", func() {
	var out *bytes.Buffer

	run := func(args ...string) error {
		out = &bytes.Buffer{}
		cmd := versioncmder.NewVersionCmd()
		cmd.SetOut(out)
		cmd.SetArgs(args)
		return cmd.Execute()
	}

	It("prints the build and protocol versions", func() {
		Expect(run()).To(Succeed())
		Expect(out.String()).To(ContainSubstring("Version: dev"))
		Expect(out.String()).To(ContainSubstring("Protocol: " + protocol.CurrentVersion.String()))
	})

	It("prints JSON with --json", func() {
		Expect(run("--json")).To(Succeed())

		var info versioncmder.Info
		Expect(json.Unmarshal(out.Bytes(), &info)).To(Succeed())
		Expect(info.Sha).To(Equal("HEAD"))
		Expect(info.Protocol).To(Equal(protocol.CurrentVersion.String()))
	})

	It("rejects arguments", func() {
		Expect(run("extra")).To(HaveOccurred())
	})
})
