package ledger

import (
	"cmp"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/papercomputeco/vectorvault/pkg/vault"
)

// Page is one confirmed (source_ref, vector_id) pair.
type Page struct {
	SourceRef string `json:"source_ref"`
	VectorID  int64  `json:"vector_id"`
}

// PageMap is a bidirectional map between source refs and the vector ids an
// operator confirmed for them. Every source ref maps to exactly one vector id
// and every vector id to exactly one source ref.
type PageMap struct {
	byRef    map[string]int64
	byVector map[int64]string
}

// NewPageMap returns an empty PageMap.
func NewPageMap() *PageMap {
	return &PageMap{
		byRef:    map[string]int64{},
		byVector: map[int64]string{},
	}
}

// Zip pairs refs with ids positionally. It fails with vault.ErrMalformed when
// the lengths differ.
func Zip(refs []string, ids []int64) ([]Page, error) {
	if len(refs) != len(ids) {
		return nil, fmt.Errorf("%w: %d source refs for %d vector ids", vault.ErrMalformed, len(refs), len(ids))
	}
	pages := make([]Page, len(refs))
	for i := range refs {
		pages[i] = Page{SourceRef: refs[i], VectorID: ids[i]}
	}
	return pages, nil
}

// Add inserts pages. Either all of them are added or none: a page whose
// source ref or vector id is already mapped, or which collides with another
// page of the same batch, fails with vault.ErrConflict.
func (m *PageMap) Add(pages ...Page) error {
	seenRefs := make(map[string]struct{}, len(pages))
	seenIDs := make(map[int64]struct{}, len(pages))
	for _, p := range pages {
		if p.SourceRef == "" {
			return fmt.Errorf("%w: empty source ref for vector %d", vault.ErrMalformed, p.VectorID)
		}
		if _, ok := m.byRef[p.SourceRef]; ok {
			return fmt.Errorf("%w: source ref %q already mapped", vault.ErrConflict, p.SourceRef)
		}
		if _, ok := m.byVector[p.VectorID]; ok {
			return fmt.Errorf("%w: vector %d already mapped", vault.ErrConflict, p.VectorID)
		}
		if _, ok := seenRefs[p.SourceRef]; ok {
			return fmt.Errorf("%w: source ref %q repeated", vault.ErrConflict, p.SourceRef)
		}
		if _, ok := seenIDs[p.VectorID]; ok {
			return fmt.Errorf("%w: vector %d repeated", vault.ErrConflict, p.VectorID)
		}
		seenRefs[p.SourceRef] = struct{}{}
		seenIDs[p.VectorID] = struct{}{}
	}

	for _, p := range pages {
		m.byRef[p.SourceRef] = p.VectorID
		m.byVector[p.VectorID] = p.SourceRef
	}
	return m.Check()
}

// Check verifies that both directions agree.
func (m *PageMap) Check() error {
	if len(m.byRef) != len(m.byVector) {
		return fmt.Errorf("page map out of sync: %d refs, %d vectors", len(m.byRef), len(m.byVector))
	}
	for ref, id := range m.byRef {
		if back, ok := m.byVector[id]; !ok || back != ref {
			return fmt.Errorf("page map out of sync at %q -> %d", ref, id)
		}
	}
	return nil
}

// SourceRef resolves a vector id.
func (m *PageMap) SourceRef(vectorID int64) (string, bool) {
	ref, ok := m.byVector[vectorID]
	return ref, ok
}

// VectorID resolves a source ref.
func (m *PageMap) VectorID(ref string) (int64, bool) {
	id, ok := m.byRef[ref]
	return id, ok
}

// HasRef reports whether ref is mapped.
func (m *PageMap) HasRef(ref string) bool {
	_, ok := m.byRef[ref]
	return ok
}

// Len is the number of mapped vectors.
func (m *PageMap) Len() int {
	return len(m.byVector)
}

// Pages returns every pair ordered by vector id.
func (m *PageMap) Pages() []Page {
	pages := make([]Page, 0, len(m.byVector))
	for id, ref := range m.byVector {
		pages = append(pages, Page{SourceRef: ref, VectorID: id})
	}
	slices.SortFunc(pages, func(a, b Page) int {
		return cmp.Compare(a.VectorID, b.VectorID)
	})
	return pages
}

// Refs returns every source ref ordered by vector id.
func (m *PageMap) Refs() []string {
	pages := m.Pages()
	refs := make([]string, len(pages))
	for i, p := range pages {
		refs[i] = p.SourceRef
	}
	return refs
}

// Clone returns a deep copy.
func (m *PageMap) Clone() *PageMap {
	c := NewPageMap()
	for ref, id := range m.byRef {
		c.byRef[ref] = id
		c.byVector[id] = ref
	}
	return c
}

func (m *PageMap) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.Pages())
}

func (m *PageMap) UnmarshalJSON(data []byte) error {
	var pages []Page
	if err := json.Unmarshal(data, &pages); err != nil {
		return err
	}
	*m = *NewPageMap()
	return m.Add(pages...)
}
