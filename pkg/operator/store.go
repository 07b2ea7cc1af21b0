package operator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/papercomputeco/vectorvault/pkg/storage"
	"github.com/papercomputeco/vectorvault/pkg/vector"
)

// Store is the explicit handle every engine call operates on: one
// coordinator's hierarchy on this operator, plus the optional vector index.
//
// Namespace operations serialize on a per-namespace lock. Tenant and
// organization deletes take the hierarchy lock exclusively, which every
// namespace operation holds shared.
type Store struct {
	Identity string
	Driver   storage.Driver

	// Index is nil when no approximate index is configured.
	Index vector.Driver

	hierarchy  sync.RWMutex
	namespaces *keyedLocks
}

// NewStore wraps a driver and an optional index.
func NewStore(identity string, driver storage.Driver, index vector.Driver) *Store {
	return &Store{
		Identity:   identity,
		Driver:     driver,
		Index:      index,
		namespaces: newKeyedLocks(),
	}
}

// Close closes the driver and the index.
func (s *Store) Close() error {
	var errs []error
	if s.Index != nil {
		errs = append(errs, s.Index.Close())
	}
	errs = append(errs, s.Driver.Close())
	return errors.Join(errs...)
}

// lockNamespace holds the hierarchy shared and the namespace exclusively.
func (s *Store) lockNamespace(tenant, organization, namespace string) func() {
	s.hierarchy.RLock()
	unlock := s.namespaces.Lock(namespaceKey(tenant, organization, namespace))
	return func() {
		unlock()
		s.hierarchy.RUnlock()
	}
}

// rlockNamespace holds the hierarchy and the namespace shared.
func (s *Store) rlockNamespace(tenant, organization, namespace string) func() {
	s.hierarchy.RLock()
	unlock := s.namespaces.RLock(namespaceKey(tenant, organization, namespace))
	return func() {
		unlock()
		s.hierarchy.RUnlock()
	}
}

// lockHierarchy excludes every namespace operation.
func (s *Store) lockHierarchy() func() {
	s.hierarchy.Lock()
	return s.hierarchy.Unlock
}

func namespaceKey(tenant, organization, namespace string) string {
	return strings.Join([]string{tenant, organization, namespace}, "\x00")
}

// StoreName derives a stable name for an identity's store that is safe as a
// file name, a SQL schema and a collection name.
func StoreName(identity string) string {
	sum := sha256.Sum256([]byte(identity))
	return "c_" + hex.EncodeToString(sum[:8])
}

// Opener opens the store of one coordinator identity.
type Opener func(ctx context.Context, identity string) (*Store, error)

// Stores hands out one Store per coordinator identity. A store is opened on
// first Acquire and closed when its last holder releases it. Concurrent first
// acquisitions of one identity share a single open, and opens for different
// identities proceed in parallel.
type Stores struct {
	open    Opener
	opening singleflight.Group

	mu     sync.Mutex
	stores map[string]*sharedStore
}

type sharedStore struct {
	store *Store
	refs  int
}

// NewStores creates a provider around open.
func NewStores(open Opener) *Stores {
	return &Stores{open: open, stores: map[string]*sharedStore{}}
}

// Acquire returns the identity's store and the func that releases it.
func (p *Stores) Acquire(ctx context.Context, identity string) (*Store, func() error, error) {
	if identity == "" {
		return nil, nil, fmt.Errorf("coordinator identity is required")
	}

	for {
		if shared := p.retain(identity, nil); shared != nil {
			return shared.store, p.releaser(identity, shared), nil
		}

		v, err, _ := p.opening.Do(identity, func() (any, error) {
			p.mu.Lock()
			existing, ok := p.stores[identity]
			p.mu.Unlock()
			if ok {
				return existing, nil
			}

			store, err := p.open(ctx, identity)
			if err != nil {
				return nil, err
			}
			shared := &sharedStore{store: store}

			p.mu.Lock()
			p.stores[identity] = shared
			p.mu.Unlock()
			return shared, nil
		})
		if err != nil {
			return nil, nil, fmt.Errorf("opening store for %q: %w", identity, err)
		}

		// The store can be released and closed between the open and this
		// point; start over when it is no longer the registered one.
		if shared := p.retain(identity, v.(*sharedStore)); shared != nil {
			return shared.store, p.releaser(identity, shared), nil
		}
	}
}

// retain takes a reference on the registered store of identity. With want
// set, it only does so when want is still the registered store.
func (p *Stores) retain(identity string, want *sharedStore) *sharedStore {
	p.mu.Lock()
	defer p.mu.Unlock()

	shared, ok := p.stores[identity]
	if !ok || (want != nil && shared != want) {
		return nil
	}
	shared.refs++
	return shared
}

func (p *Stores) releaser(identity string, shared *sharedStore) func() error {
	var once sync.Once
	return func() error {
		var err error
		once.Do(func() { err = p.release(identity, shared) })
		return err
	}
}

func (p *Stores) release(identity string, shared *sharedStore) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	shared.refs--
	if shared.refs > 0 {
		return nil
	}
	delete(p.stores, identity)
	return shared.store.Close()
}

// Open reports how many stores are currently open.
func (p *Stores) Open() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.stores)
}

// Close closes every open store regardless of holders.
func (p *Stores) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	for id, shared := range p.stores {
		errs = append(errs, shared.store.Close())
		delete(p.stores, id)
	}
	return errors.Join(errs...)
}
