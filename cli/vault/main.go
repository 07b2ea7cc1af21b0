package main

import (
	"os"

	vaultcmder "github.com/papercomputeco/vectorvault/cmd/vault"
)

func main() {
	cmd := vaultcmder.NewVaultCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
