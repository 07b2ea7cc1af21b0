package ledger

import (
	"fmt"

	"github.com/papercomputeco/vectorvault/pkg/vault"
)

// NotFound builds a vault.ErrNotFound error for a missing ledger entry.
func NotFound(operator, key string) error {
	return fmt.Errorf("ledger entry %s for operator %q: %w", key, operator, vault.ErrNotFound)
}

// NotFoundID builds a vault.ErrNotFound error keyed by namespace id.
func NotFoundID(operator string, namespaceID int64) error {
	return NotFound(operator, fmt.Sprintf("%d", namespaceID))
}
