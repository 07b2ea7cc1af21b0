// Package ledgerpath locates the coordinator's SQLite ledger for commands
// that only read it.
package ledgerpath

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

const fileName = "ledger.db"

// ErrNotFound is returned when no ledger exists at any candidate location.
var ErrNotFound = errors.New("could not find the audit ledger; pass --ledger or run 'vault coordinate' first")

// ResolveLedgerPath returns override when set, then VAULT_LEDGER, then the
// first existing ledger among configDir, ./.vectorvault, ~/.vectorvault and
// $XDG_DATA_HOME/vectorvault.
func ResolveLedgerPath(override, configDir string) (string, error) {
	if override != "" {
		return override, nil
	}

	if envPath := strings.TrimSpace(os.Getenv("VAULT_LEDGER")); envPath != "" {
		return envPath, nil
	}

	for _, candidate := range candidates(configDir) {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}

	return "", ErrNotFound
}

func candidates(configDir string) []string {
	var out []string
	if configDir != "" {
		out = append(out, filepath.Join(configDir, fileName))
	}

	out = append(out, filepath.Join(".vectorvault", fileName))

	if home, err := os.UserHomeDir(); err == nil {
		out = append(out, filepath.Join(home, ".vectorvault", fileName))
	}

	if xdgHome := strings.TrimSpace(os.Getenv("XDG_DATA_HOME")); xdgHome != "" {
		out = append(out, filepath.Join(xdgHome, "vectorvault", fileName))
	}

	return out
}
