// Package storage defines the operator-side identity hierarchy: tenants own
// organizations, organizations own namespaces and namespaces own content
// vectors. Drivers persist the hierarchy in a backend of their choosing.
package storage

import "context"

// Tenant is the top level of the hierarchy. Name is unique per store.
type Tenant struct {
	ID   int64
	Name string
}

// Organization belongs to a tenant. (Name, TenantID) is unique.
type Organization struct {
	ID       int64
	Name     string
	TenantID int64
}

// Namespace is the unit of update and deletion.
type Namespace struct {
	ID             int64
	Name           string
	TenantID       int64
	OrganizationID int64
	Category       string
}

// ContentVector is one stored text together with its embedding.
type ContentVector struct {
	ID          int64
	NamespaceID int64
	Text        string
	Embedding   []float32

	// SourceRef is the source echo stored with the vector, empty when none
	// was given.
	SourceRef string
}

// NewVector is the input to InsertVectors and ReplaceVectors.
type NewVector struct {
	Text      string
	Embedding []float32

	// SourceRef is an optional source echo kept with the vector. CRUD
	// requests carry only texts, so the operator engine stores it empty; the
	// coordinator recovers refs from its own page map instead.
	SourceRef string
}

// Driver persists the identity hierarchy.
//
// Vector ids are assigned by the driver, unique across the whole store,
// strictly increasing in insertion order and never reused after deletion.
type Driver interface {
	// EnsureTenant returns the id of the named tenant, creating it if absent.
	EnsureTenant(ctx context.Context, name string) (int64, error)

	// EnsureOrganization returns the id of the named organization under the
	// tenant, creating it if absent.
	EnsureOrganization(ctx context.Context, tenantID int64, name string) (int64, error)

	// CreateNamespace creates a new namespace. It fails with ErrConflict when
	// the (tenant, organization, name) triple already exists.
	CreateNamespace(ctx context.Context, tenantID, organizationID int64, name, category string) (int64, error)

	// InsertVectors appends vectors to a namespace and returns their ids in
	// input order.
	InsertVectors(ctx context.Context, namespaceID int64, vectors []NewVector) ([]int64, error)

	// ReplaceVectors removes every vector in the namespace and inserts the
	// given ones in a single transaction.
	ReplaceVectors(ctx context.Context, namespaceID int64, vectors []NewVector) ([]int64, error)

	// FetchNamespaceVectors returns all vectors of a namespace ordered by id.
	FetchNamespaceVectors(ctx context.Context, namespaceID int64) ([]ContentVector, error)

	// GetVectors returns the vectors with the given ids that belong to the
	// namespace, ordered by id. Unknown ids are skipped.
	GetVectors(ctx context.Context, namespaceID int64, ids []int64) ([]ContentVector, error)

	// LookupTenant finds a tenant by name.
	LookupTenant(ctx context.Context, name string) (*Tenant, error)

	// LookupOrganization finds an organization by name under a tenant.
	LookupOrganization(ctx context.Context, tenantID int64, name string) (*Organization, error)

	// LookupNamespace finds a namespace by its full triple.
	LookupNamespace(ctx context.Context, tenantID, organizationID int64, name string) (*Namespace, error)

	// DeleteNamespace removes a namespace and its vectors.
	DeleteNamespace(ctx context.Context, namespaceID int64) error

	// DeleteOrganization removes an organization and everything beneath it.
	// It returns the ids of the namespaces that were removed.
	DeleteOrganization(ctx context.Context, organizationID int64) ([]int64, error)

	// DeleteTenant removes a tenant and everything beneath it. It returns the
	// ids of the namespaces that were removed.
	DeleteTenant(ctx context.Context, tenantID int64) ([]int64, error)

	// Close closes the store and releases any resources.
	Close() error
}
