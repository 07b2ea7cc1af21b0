// Package inmemory provides a map-backed storage.Driver. State is lost when
// the process exits.
package inmemory

import (
	"context"
	"slices"
	"sync"

	"github.com/papercomputeco/vectorvault/pkg/storage"
)

type orgKey struct {
	tenantID int64
	name     string
}

type nsKey struct {
	tenantID       int64
	organizationID int64
	name           string
}

// Driver implements storage.Driver using in-memory maps.
type Driver struct {
	// mu guards every map below
	mu sync.RWMutex

	tenants       map[int64]*storage.Tenant
	organizations map[int64]*storage.Organization
	namespaces    map[int64]*storage.Namespace
	vectors       map[int64]*storage.ContentVector

	tenantsByName map[string]int64
	orgsByName    map[orgKey]int64
	nsByName      map[nsKey]int64

	// sequences only ever move forward so ids are never reused
	nextTenant, nextOrg, nextNamespace, nextVector int64
}

// NewDriver creates a new in-memory storer.
func NewDriver() *Driver {
	return &Driver{
		tenants:       make(map[int64]*storage.Tenant),
		organizations: make(map[int64]*storage.Organization),
		namespaces:    make(map[int64]*storage.Namespace),
		vectors:       make(map[int64]*storage.ContentVector),
		tenantsByName: make(map[string]int64),
		orgsByName:    make(map[orgKey]int64),
		nsByName:      make(map[nsKey]int64),
	}
}

func (d *Driver) EnsureTenant(_ context.Context, name string) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if id, ok := d.tenantsByName[name]; ok {
		return id, nil
	}

	d.nextTenant++
	id := d.nextTenant
	d.tenants[id] = &storage.Tenant{ID: id, Name: name}
	d.tenantsByName[name] = id
	return id, nil
}

func (d *Driver) EnsureOrganization(_ context.Context, tenantID int64, name string) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.tenants[tenantID]; !ok {
		return 0, storage.NotFoundID("tenant", tenantID)
	}

	key := orgKey{tenantID: tenantID, name: name}
	if id, ok := d.orgsByName[key]; ok {
		return id, nil
	}

	d.nextOrg++
	id := d.nextOrg
	d.organizations[id] = &storage.Organization{ID: id, Name: name, TenantID: tenantID}
	d.orgsByName[key] = id
	return id, nil
}

func (d *Driver) CreateNamespace(_ context.Context, tenantID, organizationID int64, name, category string) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	org, ok := d.organizations[organizationID]
	if !ok || org.TenantID != tenantID {
		return 0, storage.NotFoundID("organization", organizationID)
	}

	key := nsKey{tenantID: tenantID, organizationID: organizationID, name: name}
	if _, ok := d.nsByName[key]; ok {
		return 0, storage.ErrConflict
	}

	d.nextNamespace++
	id := d.nextNamespace
	d.namespaces[id] = &storage.Namespace{
		ID:             id,
		Name:           name,
		TenantID:       tenantID,
		OrganizationID: organizationID,
		Category:       category,
	}
	d.nsByName[key] = id
	return id, nil
}

func (d *Driver) InsertVectors(_ context.Context, namespaceID int64, vectors []storage.NewVector) ([]int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.namespaces[namespaceID]; !ok {
		return nil, storage.NotFoundID("namespace", namespaceID)
	}
	return d.insertLocked(namespaceID, vectors), nil
}

func (d *Driver) ReplaceVectors(_ context.Context, namespaceID int64, vectors []storage.NewVector) ([]int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.namespaces[namespaceID]; !ok {
		return nil, storage.NotFoundID("namespace", namespaceID)
	}
	d.dropVectorsLocked(namespaceID)
	return d.insertLocked(namespaceID, vectors), nil
}

func (d *Driver) insertLocked(namespaceID int64, vectors []storage.NewVector) []int64 {
	ids := make([]int64, 0, len(vectors))
	for _, v := range vectors {
		d.nextVector++
		id := d.nextVector
		d.vectors[id] = &storage.ContentVector{
			ID:          id,
			NamespaceID: namespaceID,
			Text:        v.Text,
			Embedding:   slices.Clone(v.Embedding),
			SourceRef:   v.SourceRef,
		}
		ids = append(ids, id)
	}
	return ids
}

func (d *Driver) FetchNamespaceVectors(_ context.Context, namespaceID int64) ([]storage.ContentVector, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if _, ok := d.namespaces[namespaceID]; !ok {
		return nil, storage.NotFoundID("namespace", namespaceID)
	}

	var out []storage.ContentVector
	for _, v := range d.vectors {
		if v.NamespaceID == namespaceID {
			out = append(out, *v)
		}
	}
	sortByID(out)
	return out, nil
}

func (d *Driver) GetVectors(_ context.Context, namespaceID int64, ids []int64) ([]storage.ContentVector, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if _, ok := d.namespaces[namespaceID]; !ok {
		return nil, storage.NotFoundID("namespace", namespaceID)
	}

	out := make([]storage.ContentVector, 0, len(ids))
	for _, id := range ids {
		if v, ok := d.vectors[id]; ok && v.NamespaceID == namespaceID {
			out = append(out, *v)
		}
	}
	sortByID(out)
	return out, nil
}

func (d *Driver) LookupTenant(_ context.Context, name string) (*storage.Tenant, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	id, ok := d.tenantsByName[name]
	if !ok {
		return nil, storage.NotFoundError{Kind: "tenant", Key: name}
	}
	t := *d.tenants[id]
	return &t, nil
}

func (d *Driver) LookupOrganization(_ context.Context, tenantID int64, name string) (*storage.Organization, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	id, ok := d.orgsByName[orgKey{tenantID: tenantID, name: name}]
	if !ok {
		return nil, storage.NotFoundError{Kind: "organization", Key: name}
	}
	o := *d.organizations[id]
	return &o, nil
}

func (d *Driver) LookupNamespace(_ context.Context, tenantID, organizationID int64, name string) (*storage.Namespace, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	id, ok := d.nsByName[nsKey{tenantID: tenantID, organizationID: organizationID, name: name}]
	if !ok {
		return nil, storage.NotFoundError{Kind: "namespace", Key: name}
	}
	ns := *d.namespaces[id]
	return &ns, nil
}

func (d *Driver) DeleteNamespace(_ context.Context, namespaceID int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.namespaces[namespaceID]; !ok {
		return storage.NotFoundID("namespace", namespaceID)
	}
	d.dropNamespaceLocked(namespaceID)
	return nil
}

func (d *Driver) DeleteOrganization(_ context.Context, organizationID int64) ([]int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.organizations[organizationID]; !ok {
		return nil, storage.NotFoundID("organization", organizationID)
	}
	return d.dropOrganizationLocked(organizationID), nil
}

func (d *Driver) DeleteTenant(_ context.Context, tenantID int64) ([]int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	t, ok := d.tenants[tenantID]
	if !ok {
		return nil, storage.NotFoundID("tenant", tenantID)
	}

	var removed []int64
	for id, org := range d.organizations {
		if org.TenantID == tenantID {
			removed = append(removed, d.dropOrganizationLocked(id)...)
		}
	}
	delete(d.tenantsByName, t.Name)
	delete(d.tenants, tenantID)

	slices.Sort(removed)
	return removed, nil
}

func (d *Driver) dropOrganizationLocked(organizationID int64) []int64 {
	org := d.organizations[organizationID]

	var removed []int64
	for id, ns := range d.namespaces {
		if ns.OrganizationID == organizationID {
			d.dropNamespaceLocked(id)
			removed = append(removed, id)
		}
	}
	delete(d.orgsByName, orgKey{tenantID: org.TenantID, name: org.Name})
	delete(d.organizations, organizationID)

	slices.Sort(removed)
	return removed
}

func (d *Driver) dropNamespaceLocked(namespaceID int64) {
	ns := d.namespaces[namespaceID]
	d.dropVectorsLocked(namespaceID)
	delete(d.nsByName, nsKey{tenantID: ns.TenantID, organizationID: ns.OrganizationID, name: ns.Name})
	delete(d.namespaces, namespaceID)
}

func (d *Driver) dropVectorsLocked(namespaceID int64) {
	for id, v := range d.vectors {
		if v.NamespaceID == namespaceID {
			delete(d.vectors, id)
		}
	}
}

// Close is a no-op for the in-memory driver.
func (d *Driver) Close() error {
	return nil
}

func sortByID(vs []storage.ContentVector) {
	slices.SortFunc(vs, func(a, b storage.ContentVector) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
}
