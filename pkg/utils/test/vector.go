package testutils

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/papercomputeco/vectorvault/pkg/search"
	"github.com/papercomputeco/vectorvault/pkg/vector"
)

// MockVectorDriver is an exact in-memory vector index for tests.
type MockVectorDriver struct {
	mu      sync.Mutex
	docs    map[int64]map[int64]vector.Document
	queries int
}

func NewMockVectorDriver() *MockVectorDriver {
	return &MockVectorDriver{
		docs: map[int64]map[int64]vector.Document{},
	}
}

func (m *MockVectorDriver) Add(_ context.Context, docs []vector.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, d := range docs {
		ns, ok := m.docs[d.NamespaceID]
		if !ok {
			ns = map[int64]vector.Document{}
			m.docs[d.NamespaceID] = ns
		}
		ns[d.ID] = d
	}
	return nil
}

func (m *MockVectorDriver) Query(_ context.Context, namespaceID int64, embedding []float32, topK int) ([]vector.QueryResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.queries++
	results := make([]vector.QueryResult, 0, len(m.docs[namespaceID]))
	for _, d := range m.docs[namespaceID] {
		results = append(results, vector.QueryResult{
			ID:    d.ID,
			Score: float32(search.Cosine(embedding, d.Embedding)),
		})
	}
	slices.SortFunc(results, func(a, b vector.QueryResult) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

func (m *MockVectorDriver) DeleteNamespaces(_ context.Context, namespaceIDs []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, id := range namespaceIDs {
		delete(m.docs, id)
	}
	return nil
}

func (m *MockVectorDriver) Close() error {
	return nil
}

// Len returns the number of indexed documents in a namespace.
func (m *MockVectorDriver) Len(namespaceID int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.docs[namespaceID])
}

// Queries returns how many queries were served.
func (m *MockVectorDriver) Queries() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.queries
}
