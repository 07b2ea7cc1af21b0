// Package vector provides optional approximate nearest-neighbour indices
// that narrow a read down to candidate vectors before exact re-ranking.
package vector

import "context"

// Document is one indexed content vector.
type Document struct {
	// ID is the operator-assigned vector id.
	ID int64

	// NamespaceID partitions the index. Queries never cross namespaces.
	NamespaceID int64

	// Embedding is the vector representation of the content.
	Embedding []float32
}

// QueryResult is a candidate returned by Query.
type QueryResult struct {
	ID int64

	// Score represents the similarity score (higher = more similar).
	Score float32
}

// Driver handles storage and retrieval of vector embeddings.
type Driver interface {
	// Add indexes documents. Re-adding an id replaces its embedding.
	Add(ctx context.Context, docs []Document) error

	// Query finds the topK most similar documents inside one namespace.
	Query(ctx context.Context, namespaceID int64, embedding []float32, topK int) ([]QueryResult, error)

	// DeleteNamespaces drops every document of the given namespaces.
	DeleteNamespaces(ctx context.Context, namespaceIDs []int64) error

	// Close releases any resources held by the driver.
	Close() error
}
