// Package vaultcmder is the root of the vault command tree.
package vaultcmder

import (
	"github.com/spf13/cobra"

	configcmder "github.com/papercomputeco/vectorvault/cmd/vault/config"
	coordinatecmder "github.com/papercomputeco/vectorvault/cmd/vault/coordinate"
	initcmder "github.com/papercomputeco/vectorvault/cmd/vault/init"
	ledgercmder "github.com/papercomputeco/vectorvault/cmd/vault/ledger"
	servecmder "github.com/papercomputeco/vectorvault/cmd/vault/serve"
	versioncmder "github.com/papercomputeco/vectorvault/cmd/version"
)

const vaultLongDesc string = `VectorVault is an audited vector storage network.

Operators store tenant, organization and namespace hierarchies of embedded
texts on behalf of coordinators. Coordinators audit operators with seeded
CRUD cycles and score them against a metadata-only ledger.

Set up a working directory using:
  vault init           Create .vectorvault/ with a config.toml

Run services using:
  vault serve          Run an operator server
  vault coordinate     Run a coordinator against a set of operators

Inspect state using:
  vault ledger stats   Show the coordinator's ledger per operator
  vault ledger report  Render the ledger as a markdown report
  vault config list    Show persistent configuration`

const vaultShortDesc string = "VectorVault - audited vector storage"

func NewVaultCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vault",
		Short: vaultShortDesc,
		Long:  vaultLongDesc,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override path to .vectorvault/ config directory")

	// Add subcommands
	cmd.AddCommand(initcmder.NewInitCmd())
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(coordinatecmder.NewCoordinateCmd())
	cmd.AddCommand(ledgercmder.NewLedgerCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
