package initcmder_test

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	initcmder "github.com/papercomputeco/vectorvault/cmd/vault/init"
	"github.com/papercomputeco/vectorvault/pkg/config"
)

var _ = Describe("NewInitCmd", func() {
	It("creates a command with the correct use string", func() {
		cmd := initcmder.NewInitCmd()
		Expect(cmd.Use).To(Equal("init"))
	})

	It("rejects any arguments", func() {
		cmd := initcmder.NewInitCmd()
		Expect(cmd.Args(cmd, []string{})).To(Succeed())
		Expect(cmd.Args(cmd, []string{"extra"})).NotTo(Succeed())
	})

	It("has a --preset flag", func() {
		cmd := initcmder.NewInitCmd()
		f := cmd.Flags().Lookup("preset")
		Expect(f).NotTo(BeNil())
		Expect(f.DefValue).To(Equal(""))
	})
})

var _ = Describe("Init command execution", func() {
	var (
		tmpDir  string
		origDir string
	)

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "vault-init-test-*")
		Expect(err).NotTo(HaveOccurred())

		origDir, err = os.Getwd()
		Expect(err).NotTo(HaveOccurred())
		Expect(os.Chdir(tmpDir)).To(Succeed())
	})

	AfterEach(func() {
		Expect(os.Chdir(origDir)).To(Succeed())
		os.RemoveAll(tmpDir)
	})

	run := func(args ...string) error {
		cmd := initcmder.NewInitCmd()
		cmd.SetArgs(args)
		cmd.SetOut(GinkgoWriter)
		return cmd.Execute()
	}

	It("creates a .vectorvault directory with default config", func() {
		Expect(run()).To(Succeed())

		info, err := os.Stat(filepath.Join(tmpDir, ".vectorvault"))
		Expect(err).NotTo(HaveOccurred())
		Expect(info.IsDir()).To(BeTrue())

		cfg := loadConfig(tmpDir)
		Expect(cfg.Version).To(Equal(config.CurrentV))
		Expect(cfg.Storage.Driver).To(Equal("sqlite"))
		Expect(cfg.Operator.Listen).To(Equal(":8091"))
		Expect(cfg.Coordinator.Listen).To(Equal(":8092"))
		Expect(cfg.Coordinator.DeleteProbability).To(Equal(0.3))
	})

	It("does not overwrite existing contents when already initialized", func() {
		dir := filepath.Join(tmpDir, ".vectorvault")
		Expect(os.MkdirAll(dir, 0o755)).To(Succeed())
		ledger := filepath.Join(dir, "ledger.db")
		Expect(os.WriteFile(ledger, []byte("ledger"), 0o644)).To(Succeed())

		Expect(run()).To(Succeed())

		data, err := os.ReadFile(ledger)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(data)).To(Equal("ledger"))
		_, err = os.Stat(filepath.Join(dir, "config.toml"))
		Expect(os.IsNotExist(err)).To(BeTrue())
	})

	It("writes the offline preset", func() {
		Expect(run("--preset", "offline")).To(Succeed())

		cfg := loadConfig(tmpDir)
		Expect(cfg.Storage.Driver).To(Equal("memory"))
		Expect(cfg.Paraphrase.Provider).To(Equal("excerpt"))
		Expect(cfg.Embedding.Provider).To(Equal("hashing"))
		Expect(cfg.Embedding.Dimensions).To(Equal(uint(256)))
	})

	It("overwrites config.toml when re-run with a preset", func() {
		Expect(run()).To(Succeed())
		Expect(loadConfig(tmpDir).Storage.Driver).To(Equal("sqlite"))

		Expect(run("--preset", "offline")).To(Succeed())
		Expect(loadConfig(tmpDir).Storage.Driver).To(Equal("memory"))
	})

	It("rejects unknown preset names", func() {
		err := run("--preset", "cloud")
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("unknown preset"))
	})

	Describe("--preset with remote URL", func() {
		It("fetches and writes remote config.toml", func() {
			remoteCfg := `version = 0

[coordinator]
identity = "coordinator-eu"
operators = ["http://op-1:8091", "http://op-2:8091"]
task_size = 4

[embedding]
model = "mxbai-embed-large"
dimensions = 1024
`
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "text/plain")
				fmt.Fprint(w, remoteCfg)
			}))
			defer server.Close()

			Expect(run("--preset", server.URL)).To(Succeed())

			cfg := loadConfig(tmpDir)
			Expect(cfg.Coordinator.Identity).To(Equal("coordinator-eu"))
			Expect(cfg.Coordinator.Operators).To(Equal([]string{"http://op-1:8091", "http://op-2:8091"}))
			Expect(cfg.Coordinator.TaskSize).To(Equal(uint(4)))
			Expect(cfg.Embedding.Dimensions).To(Equal(uint(1024)))
		})

		It("returns error for non-200 HTTP response", func() {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusNotFound)
			}))
			defer server.Close()

			err := run("--preset", server.URL)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("HTTP 404"))
		})

		It("returns error for invalid TOML from URL", func() {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				fmt.Fprint(w, "this is not valid toml [[[")
			}))
			defer server.Close()

			err := run("--preset", server.URL)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("parsing"))
		})

		It("returns error for unreachable URL", func() {
			err := run("--preset", "http://127.0.0.1:1")
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("fetching remote config"))
		})
	})
})

func loadConfig(baseDir string) *config.Config {
	data, err := os.ReadFile(filepath.Join(baseDir, ".vectorvault", "config.toml"))
	ExpectWithOffset(1, err).NotTo(HaveOccurred())

	cfg := &config.Config{}
	ExpectWithOffset(1, toml.Unmarshal(data, cfg)).To(Succeed())
	return cfg
}
