package storage

import (
	"fmt"

	"github.com/papercomputeco/vectorvault/pkg/vault"
)

// ErrConflict is returned by CreateNamespace for a duplicate triple.
var ErrConflict = fmt.Errorf("namespace already exists: %w", vault.ErrConflict)

// NotFoundError is returned when a hierarchy entity doesn't exist in the store.
// It matches vault.ErrNotFound with errors.Is.
type NotFoundError struct {
	// Kind is the entity kind: tenant, organization, namespace or vector.
	Kind string

	// Key identifies the missing entity, either a name or an id.
	Key string
}

func (e NotFoundError) Error() string {
	if e.Key == "" {
		return e.Kind + " not found"
	}
	return e.Kind + " not found: " + e.Key
}

func (e NotFoundError) Unwrap() error {
	return vault.ErrNotFound
}

// NotFoundID builds a NotFoundError keyed by a numeric id.
func NotFoundID(kind string, id int64) NotFoundError {
	return NotFoundError{Kind: kind, Key: fmt.Sprintf("%d", id)}
}
