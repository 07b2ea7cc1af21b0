// Package versioncmder reports the build and the coordinator/operator
// protocol version it speaks.
package versioncmder

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/vectorvault/pkg/protocol"
	"github.com/papercomputeco/vectorvault/pkg/utils"
)

// Info is the version report.
type Info struct {
	Version   string `json:"version"`
	Sha       string `json:"sha"`
	Buildtime string `json:"buildtime"`
	Protocol  string `json:"protocol"`
}

type versionCommander struct {
	json bool
}

func NewVersionCmd() *cobra.Command {
	cmder := &versionCommander{}

	cmd := &cobra.Command{
		Use:   "version",
		Short: "displays version",
		Long: `Displays the version of this CLI and the protocol version it speaks.

Operators warn about requests from coordinators with a newer protocol, so
compare the protocol line when mixing builds.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd.OutOrStdout())
		},
	}

	cmd.Flags().BoolVar(&cmder.json, "json", false, "Print the version report as JSON")

	return cmd
}

func current() Info {
	return Info{
		Version:   utils.Version,
		Sha:       utils.Sha,
		Buildtime: utils.Buildtime,
		Protocol:  protocol.CurrentVersion.String(),
	}
}

func (c *versionCommander) run(w io.Writer) error {
	info := current()
	if c.json {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}

	_, err := fmt.Fprintf(w, "Version: %s\nSha: %s\nBuilt at: %s\nProtocol: %s\n",
		info.Version, info.Sha, info.Buildtime, info.Protocol)
	return err
}
