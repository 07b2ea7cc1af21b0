package configcmder

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/vectorvault/pkg/cliui"
	"github.com/papercomputeco/vectorvault/pkg/config"
)

const getLongDesc string = `Get one or more configuration values.

Reads the values for the given keys from the config.toml file stored in the
.vectorvault/ directory. Keys use dotted notation matching the TOML section
structure. Passwords embedded in storage.postgres_dsn are masked.

Examples:
  vault config get coordinator.identity
  vault config get embedding.provider embedding.model`

const getShortDesc string = "Get configuration values"

func newGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <key> [key...]",
		Short: getShortDesc,
		Long:  getLongDesc,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			return runGet(cmd.OutOrStdout(), args, configDir)
		},
		ValidArgsFunction: func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
			return config.ValidConfigKeys(), cobra.ShellCompDirectiveNoFileComp
		},
	}

	return cmd
}

func runGet(w io.Writer, keys []string, configDir string) error {
	for _, key := range keys {
		if !config.IsValidConfigKey(key) {
			return unknownKeyError(key)
		}
	}

	cfger, err := config.NewConfiger(configDir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	writeTarget(w, cfger)

	for _, key := range keys {
		value, err := cfger.GetConfigValue(key)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "  %s  %s\n", cliui.KeyStyle.Render(key), displayValue(key, value))
	}
	fmt.Fprintln(w)

	return nil
}
