// Package initcmder provides the init command for initializing a local
// .vectorvault directory in the current working directory.
package initcmder

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/vectorvault/pkg/config"
)

const (
	dirName = ".vectorvault"

	presetDefault = "default"
	presetOffline = "offline"
)

const initLongDesc string = `Initialize a new .vectorvault/ directory in the current working directory.

Creates a local .vectorvault/ directory with a config.toml. It takes
precedence over ~/.vectorvault/ for operator stores, the audit ledger and
configuration, which keeps state separate per project or deployment.

Presets:
  default   SQLite stores, Ollama embeddings and paraphrases, Wikipedia content
  offline   in-memory stores, hashing embeddings and excerpt paraphrases
  <url>     fetch a config.toml over HTTP

Examples:
  vault init
  vault init --preset offline
  vault init --preset https://example.com/vault.toml`

const initShortDesc string = "Initialize a local .vectorvault/ directory"

func NewInitCmd() *cobra.Command {
	var preset string

	cmd := &cobra.Command{
		Use:   "init",
		Short: initShortDesc,
		Long:  initLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInit(cmd.Context(), cmd.OutOrStdout(), preset)
		},
	}

	cmd.Flags().StringVar(&preset, "preset", "", "Config preset name or URL to a config.toml")

	return cmd
}

func runInit(ctx context.Context, out io.Writer, preset string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting current directory: %w", err)
	}

	dir := filepath.Join(cwd, dirName)

	cfg, err := resolvePreset(ctx, preset)
	if err != nil {
		return err
	}

	info, err := os.Stat(dir)
	if err == nil && info.IsDir() {
		if preset == "" {
			fmt.Fprintf(out, "Already initialized: %s\n", dir)
			return nil
		}
	} else if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating .vectorvault directory: %w", err)
	}

	cfger, err := config.NewConfiger(dir)
	if err != nil {
		return err
	}
	if err := cfger.SaveConfig(cfg); err != nil {
		return err
	}

	fmt.Fprintf(out, "Initialized .vectorvault directory: %s\n", dir)
	return nil
}

func resolvePreset(ctx context.Context, preset string) (*config.Config, error) {
	switch {
	case preset == "" || preset == presetDefault:
		return config.NewDefaultConfig(), nil
	case preset == presetOffline:
		cfg := config.NewDefaultConfig()
		cfg.Storage.Driver = "memory"
		cfg.Embedding.Provider = "hashing"
		cfg.Embedding.Target = ""
		cfg.Embedding.Model = ""
		cfg.Embedding.Dimensions = 256
		cfg.Paraphrase.Provider = "excerpt"
		cfg.Paraphrase.Target = ""
		cfg.Paraphrase.Model = ""
		return cfg, nil
	case strings.HasPrefix(preset, "http://") || strings.HasPrefix(preset, "https://"):
		return fetchRemoteConfig(ctx, preset)
	default:
		return nil, fmt.Errorf("unknown preset %q (want %s, %s or a URL)", preset, presetDefault, presetOffline)
	}
}

func fetchRemoteConfig(ctx context.Context, url string) (*config.Config, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("fetching remote config: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching remote config: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching remote config: HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("reading remote config: %w", err)
	}
	return config.ParseConfigTOML(data)
}
