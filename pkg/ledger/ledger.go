// Package ledger is the coordinator's audit ledger: a metadata-only mirror
// of what each operator claims to store. It holds identifiers, names, a page
// map from source refs to vector ids and an estimated storage size. It never
// holds text or embeddings.
package ledger

import (
	"context"
	"math/rand/v2"
	"unicode/utf8"

	"github.com/papercomputeco/vectorvault/pkg/protocol"
)

// BytesPerChar is the storage estimate per stored character (rune).
const BytesPerChar = 4

// Entry is the ledger's view of one namespace on one operator.
type Entry struct {
	TenantID         int64    `json:"tenant_id"`
	OrganizationID   int64    `json:"organization_id"`
	NamespaceID      int64    `json:"namespace_id"`
	TenantName       string   `json:"tenant_name"`
	OrganizationName string   `json:"organization_name"`
	NamespaceName    string   `json:"namespace_name"`
	Category         string   `json:"category"`
	Pages            *PageMap `json:"pages"`
	StorageSizeBytes int64    `json:"storage_size_bytes"`
}

// IDs returns the identifier triple of the entry.
func (e *Entry) IDs() protocol.IDs {
	return protocol.IDs{TenantID: e.TenantID, OrganizationID: e.OrganizationID, NamespaceID: e.NamespaceID}
}

// Clone returns a deep copy.
func (e *Entry) Clone() *Entry {
	c := *e
	if e.Pages != nil {
		c.Pages = e.Pages.Clone()
	} else {
		c.Pages = NewPageMap()
	}
	return &c
}

// Matches reports whether the entry falls under a delete of the given scope.
func (e *Entry) Matches(scope protocol.DeleteScope, ids protocol.IDs) bool {
	switch scope {
	case protocol.ScopeTenant:
		return e.TenantID == ids.TenantID
	case protocol.ScopeOrganization:
		return e.TenantID == ids.TenantID && e.OrganizationID == ids.OrganizationID
	case protocol.ScopeNamespace:
		return e.NamespaceID == ids.NamespaceID
	}
	return false
}

// Stats summarises one operator's ledger.
type Stats struct {
	Operator          string `json:"operator"`
	Namespaces        int    `json:"namespaces"`
	Vectors           int    `json:"vectors"`
	TotalStorageBytes int64  `json:"total_storage_bytes"`
	PassedCycles      int64  `json:"passed_cycles"`
}

// Driver persists audit entries per operator identity.
//
// Mutations check the page map invariants and fail without changing state
// when they would be violated.
type Driver interface {
	// CheckUniqueness reports true iff no entry of the operator has the
	// triple.
	CheckUniqueness(ctx context.Context, operator, tenant, organization, namespace string) (bool, error)

	// RecordCreate stores a new entry. It fails with vault.ErrConflict when
	// the namespace id or the name triple is already present.
	RecordCreate(ctx context.Context, operator string, entry *Entry) error

	// RecordUpdate adds pages to an entry and grows its storage size.
	RecordUpdate(ctx context.Context, operator string, namespaceID int64, pages []Page, addedBytes int64) error

	// RecordReplace clears an entry's pages and storage size, then applies
	// the given ones.
	RecordReplace(ctx context.Context, operator string, namespaceID int64, pages []Page, sizeBytes int64) error

	// RecordDelete removes every entry matched by the scope and returns the
	// removed namespace ids. Nothing matched is vault.ErrNotFound.
	RecordDelete(ctx context.Context, operator string, scope protocol.DeleteScope, ids protocol.IDs) ([]int64, error)

	// Entry returns the entry for a namespace id.
	Entry(ctx context.Context, operator string, namespaceID int64) (*Entry, error)

	// Entries returns all entries of an operator ordered by namespace id.
	Entries(ctx context.Context, operator string) ([]*Entry, error)

	// TotalStorageBytes sums StorageSizeBytes over the operator's entries.
	TotalStorageBytes(ctx context.Context, operator string) (int64, error)

	// PassedCycles returns the operator's cumulative cycle count.
	PassedCycles(ctx context.Context, operator string) (int64, error)

	// IncrementCycles bumps the cycle count and returns the new value.
	IncrementCycles(ctx context.Context, operator string) (int64, error)

	// Operators lists every operator identity known to the ledger.
	Operators(ctx context.Context) ([]string, error)

	// Close releases the driver.
	Close() error
}

// StorageBytes estimates the stored size of texts.
func StorageBytes(texts ...string) int64 {
	var n int64
	for _, t := range texts {
		n += int64(utf8.RuneCountInString(t))
	}
	return n * BytesPerChar
}

// SampleEntry picks an entry uniformly at random, or returns nil when the
// operator has none.
func SampleEntry(ctx context.Context, d Driver, operator string, rng *rand.Rand) (*Entry, error) {
	entries, err := d.Entries(ctx, operator)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return entries[rng.IntN(len(entries))], nil
}

// Names resolves the tenant and organization names the ledger recorded for
// the ids. ok is false when no entry of the operator carries them.
func Names(ctx context.Context, d Driver, operator string, tenantID, organizationID int64) (tenant, organization string, ok bool, err error) {
	entries, err := d.Entries(ctx, operator)
	if err != nil {
		return "", "", false, err
	}
	for _, e := range entries {
		if e.TenantID == tenantID && e.OrganizationID == organizationID {
			return e.TenantName, e.OrganizationName, true, nil
		}
	}
	for _, e := range entries {
		if e.TenantID == tenantID {
			return e.TenantName, "", true, nil
		}
	}
	return "", "", false, nil
}

// Lookup finds the entry for a name triple.
func Lookup(ctx context.Context, d Driver, operator, tenant, organization, namespace string) (*Entry, error) {
	entries, err := d.Entries(ctx, operator)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.TenantName == tenant && e.OrganizationName == organization && e.NamespaceName == namespace {
			return e, nil
		}
	}
	return nil, NotFound(operator, tenant+"/"+organization+"/"+namespace)
}

// GetStats summarises an operator.
func GetStats(ctx context.Context, d Driver, operator string) (*Stats, error) {
	entries, err := d.Entries(ctx, operator)
	if err != nil {
		return nil, err
	}
	cycles, err := d.PassedCycles(ctx, operator)
	if err != nil {
		return nil, err
	}

	stats := &Stats{Operator: operator, Namespaces: len(entries), PassedCycles: cycles}
	for _, e := range entries {
		stats.Vectors += e.Pages.Len()
		stats.TotalStorageBytes += e.StorageSizeBytes
	}
	return stats, nil
}
