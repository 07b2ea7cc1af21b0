// Package configcmder provides the config command for managing persistent
// configuration stored in the .vectorvault/ directory.
package configcmder

import (
	"github.com/spf13/cobra"
)

const configLongDesc string = `Manage persistent vault configuration.

Configuration is stored as config.toml in the .vectorvault/ directory and
provides default values for command flags. Environment variables prefixed
with VAULT_ override the file, and CLI flags override both.

Keys use dotted notation matching the TOML section structure, e.g.
  storage.driver, operator.listen, coordinator.operators,
  coordinator.delete_probability, embedding.model, content.categories

Use subcommands to get, set, or list configuration values:
  vault config set <key> <value>    Set a configuration value
  vault config get <key>            Get a configuration value
  vault config list                 List all configuration values

Examples:
  vault config set storage.driver postgres
  vault config set coordinator.operators http://op-a:8091,http://op-b:8091
  vault config get embedding.model
  vault config list`

const configShortDesc string = "Manage persistent vault configuration"

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}
