// Package ledgercmder provides commands that inspect the coordinator's audit
// ledger.
package ledgercmder

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/vectorvault/cmd/vault/ledgerpath"
	"github.com/papercomputeco/vectorvault/pkg/cliui"
	"github.com/papercomputeco/vectorvault/pkg/config"
	"github.com/papercomputeco/vectorvault/pkg/dotdir"
	"github.com/papercomputeco/vectorvault/pkg/ledger"
	ledgersqlite "github.com/papercomputeco/vectorvault/pkg/ledger/sqlite"
	"github.com/papercomputeco/vectorvault/pkg/reward"
)

type ledgerCommander struct {
	flags      config.FlagSet
	ledgerPath string
	configDir  string
	raw        bool
}

var ledgerFlags = config.FlagSet{
	config.FlagLedgerPath: {Name: "ledger", ViperKey: "coordinator.ledger_path", Description: "Path to the SQLite ledger (default: .vectorvault/ledger.db)"},
}

const ledgerLongDesc string = `Inspect the audit ledger.

The ledger records, per operator, the namespaces the coordinator created,
the page map from source documents to vector ids, the estimated storage
and the number of passed cycles. It never holds text or embeddings.`

const ledgerShortDesc string = "Inspect the audit ledger"

func NewLedgerCmd() *cobra.Command {
	cmder := &ledgerCommander{flags: ledgerFlags}

	cmd := &cobra.Command{
		Use:   "ledger",
		Short: ledgerShortDesc,
		Long:  ledgerLongDesc,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")
			v, err := config.InitViper(cmder.configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			config.BindRegisteredFlags(v, cmd, cmder.flags, []string{config.FlagLedgerPath})
			cmder.ledgerPath = v.GetString("coordinator.ledger_path")
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cmder.ledgerPath, ledgerFlags[config.FlagLedgerPath].Name, "",
		ledgerFlags[config.FlagLedgerPath].Description)

	statsCmd := &cobra.Command{
		Use:   "stats [operator]",
		Short: "Show per-operator ledger statistics",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := cmder.open(cmd.Context())
			if err != nil {
				return err
			}
			defer d.Close()

			operators, err := selectOperators(cmd.Context(), d, args)
			if err != nil {
				return err
			}
			for _, op := range operators {
				stats, err := ledger.GetStats(cmd.Context(), d, op)
				if err != nil {
					return err
				}
				writeStats(cmd.OutOrStdout(), stats)
			}
			return nil
		},
	}

	reportCmd := &cobra.Command{
		Use:   "report",
		Short: "Render a markdown report of every operator's namespaces",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, err := cmder.open(cmd.Context())
			if err != nil {
				return err
			}
			defer d.Close()

			md, err := BuildReport(cmd.Context(), d)
			if err != nil {
				return err
			}
			if cmder.raw {
				_, err = io.WriteString(cmd.OutOrStdout(), md)
				return err
			}
			rendered, err := cliui.RenderMarkdown(md)
			if err != nil {
				// Fall back to the raw markdown.
				rendered = md
			}
			_, err = io.WriteString(cmd.OutOrStdout(), rendered)
			return err
		},
	}
	reportCmd.Flags().BoolVar(&cmder.raw, "raw", false, "Print markdown without terminal rendering")

	cmd.AddCommand(statsCmd, reportCmd)
	return cmd
}

func (c *ledgerCommander) open(ctx context.Context) (ledger.Driver, error) {
	dir, err := dotdir.NewManager().Target(c.configDir)
	if err != nil {
		return nil, err
	}
	path, err := ledgerpath.ResolveLedgerPath(c.ledgerPath, dir)
	if err != nil {
		return nil, err
	}

	d, err := ledgersqlite.NewDriver(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("opening ledger %s: %w", path, err)
	}
	return d, nil
}

func selectOperators(ctx context.Context, d ledger.Driver, args []string) ([]string, error) {
	operators, err := d.Operators(ctx)
	if err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return operators, nil
	}
	for _, op := range operators {
		if op == args[0] {
			return []string{op}, nil
		}
	}
	return nil, fmt.Errorf("operator %q not in ledger", args[0])
}

func writeStats(w io.Writer, s *ledger.Stats) {
	tier := reward.TierFor(s.PassedCycles)
	fmt.Fprintf(w, "\n  %s\n", cliui.HeaderStyle.Render(s.Operator))
	fmt.Fprintf(w, "  %s\n", cliui.KeyValue("namespaces", s.Namespaces))
	fmt.Fprintf(w, "  %s\n", cliui.KeyValue("vectors", s.Vectors))
	fmt.Fprintf(w, "  %s %s\n", cliui.KeyValue("storage", s.TotalStorageBytes), cliui.DimStyle.Render("("+cliui.FormatBytes(s.TotalStorageBytes)+")"))
	fmt.Fprintf(w, "  %s\n", cliui.KeyValue("passed cycles", s.PassedCycles))
	fmt.Fprintf(w, "  %s\n", cliui.KeyValue("tier", fmt.Sprintf("%s (%.2f)", tier.Name, tier.Weight)))
}

// BuildReport renders the ledger as markdown: one section per operator with
// a table of its namespaces.
func BuildReport(ctx context.Context, d ledger.Driver) (string, error) {
	operators, err := d.Operators(ctx)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("# Audit ledger\n\n")
	if len(operators) == 0 {
		b.WriteString("_No operators audited yet._\n")
		return b.String(), nil
	}

	for _, op := range operators {
		stats, err := ledger.GetStats(ctx, d, op)
		if err != nil {
			return "", err
		}
		entries, err := d.Entries(ctx, op)
		if err != nil {
			return "", err
		}
		tier := reward.TierFor(stats.PassedCycles)

		fmt.Fprintf(&b, "## %s\n\n", op)
		fmt.Fprintf(&b, "- **Tier:** %s (weight %.2f)\n", tier.Name, tier.Weight)
		fmt.Fprintf(&b, "- **Passed cycles:** %d\n", stats.PassedCycles)
		fmt.Fprintf(&b, "- **Storage:** %d bytes\n\n", stats.TotalStorageBytes)

		if len(entries) == 0 {
			b.WriteString("_No namespaces._\n\n")
			continue
		}

		b.WriteString("| Namespace | Category | Vectors | Bytes |\n")
		b.WriteString("|---|---|---:|---:|\n")
		for _, e := range entries {
			fmt.Fprintf(&b, "| %s/%s/%s | %s | %d | %d |\n",
				e.TenantName, e.OrganizationName, e.NamespaceName,
				e.Category, e.Pages.Len(), e.StorageSizeBytes,
			)
		}
		b.WriteString("\n")
	}
	return b.String(), nil
}
