package configcmder

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/vectorvault/pkg/cliui"
	"github.com/papercomputeco/vectorvault/pkg/config"
)

const setLongDesc string = `Set a configuration value.

Sets the given key to the provided value in the config.toml file
stored in the .vectorvault/ directory. Keys use dotted notation matching
the TOML section structure. List keys take comma separated values and
duration keys take Go durations such as 30s or 2m.

Run "vault config list" to see every key.

Examples:
  vault config set storage.driver sqlite
  vault config set coordinator.interval 5m
  vault config set content.categories Dance,Physics
  vault config set embedding.dimensions 768`

const setShortDesc string = "Set a configuration value"

func newSetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: setShortDesc,
		Long:  setLongDesc,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			return runSet(cmd.OutOrStdout(), args[0], args[1], configDir)
		},
		ValidArgsFunction: func(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
			if len(args) == 0 {
				return config.ValidConfigKeys(), cobra.ShellCompDirectiveNoFileComp
			}
			return nil, cobra.ShellCompDirectiveNoFileComp
		},
	}

	return cmd
}

func runSet(w io.Writer, key, value, configDir string) error {
	if !config.IsValidConfigKey(key) {
		return unknownKeyError(key)
	}

	cfger, err := config.NewConfiger(configDir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	writeTarget(w, cfger)

	previous, err := cfger.GetConfigValue(key)
	if err != nil {
		return err
	}

	if err := cfger.SetConfigValue(key, value); err != nil {
		return err
	}

	// Report the stored form; list keys are normalized on write.
	stored, err := cfger.GetConfigValue(key)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "  %s Set %s = %s", cliui.SuccessMark, cliui.KeyStyle.Render(key), displayValue(key, stored))
	if previous != "" && previous != stored {
		fmt.Fprintf(w, " %s", cliui.DimStyle.Render("(was "+masked(key, previous)+")"))
	}
	fmt.Fprint(w, "\n\n")
	return nil
}
