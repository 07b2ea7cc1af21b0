// Package inmemory provides an in-memory ledger driver.
package inmemory

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/papercomputeco/vectorvault/pkg/ledger"
	"github.com/papercomputeco/vectorvault/pkg/protocol"
	"github.com/papercomputeco/vectorvault/pkg/vault"
)

type book struct {
	entries map[int64]*ledger.Entry
	cycles  int64
}

// Driver implements ledger.Driver with maps. It is safe for concurrent use.
type Driver struct {
	mu    sync.RWMutex
	books map[string]*book
}

// NewDriver creates an empty in-memory ledger.
func NewDriver() *Driver {
	return &Driver{books: map[string]*book{}}
}

// book returns the operator's book, creating it when create is set.
func (d *Driver) book(operator string, create bool) *book {
	b, ok := d.books[operator]
	if !ok && create {
		b = &book{entries: map[int64]*ledger.Entry{}}
		d.books[operator] = b
	}
	return b
}

func (d *Driver) CheckUniqueness(_ context.Context, operator, tenant, organization, namespace string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	b := d.book(operator, false)
	if b == nil {
		return true, nil
	}
	for _, e := range b.entries {
		if e.TenantName == tenant && e.OrganizationName == organization && e.NamespaceName == namespace {
			return false, nil
		}
	}
	return true, nil
}

func (d *Driver) RecordCreate(_ context.Context, operator string, entry *ledger.Entry) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	b := d.book(operator, true)
	if _, ok := b.entries[entry.NamespaceID]; ok {
		return fmt.Errorf("%w: namespace %d already recorded", vault.ErrConflict, entry.NamespaceID)
	}
	for _, e := range b.entries {
		if e.TenantName == entry.TenantName && e.OrganizationName == entry.OrganizationName && e.NamespaceName == entry.NamespaceName {
			return fmt.Errorf("%w: namespace %s/%s/%s already recorded", vault.ErrConflict,
				entry.TenantName, entry.OrganizationName, entry.NamespaceName)
		}
	}
	if entry.Pages == nil {
		entry.Pages = ledger.NewPageMap()
	}
	if err := entry.Pages.Check(); err != nil {
		return err
	}

	b.entries[entry.NamespaceID] = entry.Clone()
	return nil
}

func (d *Driver) RecordUpdate(_ context.Context, operator string, namespaceID int64, pages []ledger.Page, addedBytes int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	e, err := d.entry(operator, namespaceID)
	if err != nil {
		return err
	}

	next := e.Pages.Clone()
	if err := next.Add(pages...); err != nil {
		return err
	}
	e.Pages = next
	e.StorageSizeBytes += addedBytes
	return nil
}

func (d *Driver) RecordReplace(_ context.Context, operator string, namespaceID int64, pages []ledger.Page, sizeBytes int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	e, err := d.entry(operator, namespaceID)
	if err != nil {
		return err
	}

	next := ledger.NewPageMap()
	if err := next.Add(pages...); err != nil {
		return err
	}
	e.Pages = next
	e.StorageSizeBytes = sizeBytes
	return nil
}

func (d *Driver) RecordDelete(_ context.Context, operator string, scope protocol.DeleteScope, ids protocol.IDs) ([]int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	b := d.book(operator, false)
	if b == nil {
		return nil, ledger.NotFound(operator, scope.String()+" "+ids.String())
	}

	var removed []int64
	for id, e := range b.entries {
		if e.Matches(scope, ids) {
			removed = append(removed, id)
		}
	}
	if len(removed) == 0 {
		return nil, ledger.NotFound(operator, scope.String()+" "+ids.String())
	}

	slices.Sort(removed)
	for _, id := range removed {
		delete(b.entries, id)
	}
	return removed, nil
}

func (d *Driver) Entry(_ context.Context, operator string, namespaceID int64) (*ledger.Entry, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	e, err := d.entry(operator, namespaceID)
	if err != nil {
		return nil, err
	}
	return e.Clone(), nil
}

// entry returns the live entry. Callers hold the lock.
func (d *Driver) entry(operator string, namespaceID int64) (*ledger.Entry, error) {
	b := d.book(operator, false)
	if b == nil {
		return nil, ledger.NotFoundID(operator, namespaceID)
	}
	e, ok := b.entries[namespaceID]
	if !ok {
		return nil, ledger.NotFoundID(operator, namespaceID)
	}
	return e, nil
}

func (d *Driver) Entries(_ context.Context, operator string) ([]*ledger.Entry, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	b := d.book(operator, false)
	if b == nil {
		return []*ledger.Entry{}, nil
	}

	entries := make([]*ledger.Entry, 0, len(b.entries))
	for _, e := range b.entries {
		entries = append(entries, e.Clone())
	}
	slices.SortFunc(entries, func(a, b *ledger.Entry) int {
		return cmp.Compare(a.NamespaceID, b.NamespaceID)
	})
	return entries, nil
}

func (d *Driver) TotalStorageBytes(_ context.Context, operator string) (int64, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var total int64
	if b := d.book(operator, false); b != nil {
		for _, e := range b.entries {
			total += e.StorageSizeBytes
		}
	}
	return total, nil
}

func (d *Driver) PassedCycles(_ context.Context, operator string) (int64, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if b := d.book(operator, false); b != nil {
		return b.cycles, nil
	}
	return 0, nil
}

func (d *Driver) IncrementCycles(_ context.Context, operator string) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	b := d.book(operator, true)
	b.cycles++
	return b.cycles, nil
}

func (d *Driver) Operators(_ context.Context) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return slices.Sorted(maps.Keys(d.books)), nil
}

func (d *Driver) Close() error {
	return nil
}
