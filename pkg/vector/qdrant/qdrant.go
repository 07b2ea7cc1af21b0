// Package qdrant provides a vector driver backed by a Qdrant server.
package qdrant

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/qdrant/go-client/qdrant"

	"github.com/papercomputeco/vectorvault/pkg/vector"
)

const namespaceField = "namespace_id"

// Config holds configuration for the Qdrant driver.
type Config struct {
	// Host and Port address the Qdrant gRPC endpoint.
	Host string
	Port int

	// APIKey is sent when set.
	APIKey string

	// Collection holds the points of one operator store.
	Collection string

	// Dimensions is the embedding length used when creating the collection.
	Dimensions uint
}

// Driver implements vector.Driver using Qdrant.
type Driver struct {
	client     *qdrant.Client
	collection string
	logger     *slog.Logger
}

// NewDriver connects to Qdrant and creates the collection if missing.
func NewDriver(ctx context.Context, c Config, logger *slog.Logger) (*Driver, error) {
	if c.Collection == "" {
		return nil, fmt.Errorf("qdrant collection is required")
	}
	if c.Dimensions == 0 {
		return nil, fmt.Errorf("qdrant embedding dimensions cannot be 0, must be configured")
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   c.Host,
		Port:   c.Port,
		APIKey: c.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", vector.ErrConnection, err)
	}

	exists, err := client.CollectionExists(ctx, c.Collection)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: checking collection: %w", vector.ErrConnection, err)
	}
	if !exists {
		if err := client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: c.Collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(c.Dimensions),
				Distance: qdrant.Distance_Cosine,
			}),
		}); err != nil {
			client.Close()
			return nil, fmt.Errorf("creating collection %s: %w", c.Collection, err)
		}
	}

	logger.Info("qdrant vector driver initialized",
		"host", c.Host,
		"port", c.Port,
		"collection", c.Collection,
		"dimensions", c.Dimensions,
	)

	return &Driver{client: client, collection: c.Collection, logger: logger}, nil
}

func (d *Driver) Add(ctx context.Context, docs []vector.Document) error {
	if len(docs) == 0 {
		return nil
	}

	points := make([]*qdrant.PointStruct, 0, len(docs))
	for _, doc := range docs {
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDNum(uint64(doc.ID)),
			Vectors: qdrant.NewVectors(doc.Embedding...),
			Payload: map[string]*qdrant.Value{
				namespaceField: qdrant.NewValueInt(doc.NamespaceID),
			},
		})
	}

	wait := true
	if _, err := d.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: d.collection,
		Wait:           &wait,
		Points:         points,
	}); err != nil {
		return fmt.Errorf("upserting points: %w", err)
	}

	d.logger.Debug("added documents to qdrant", "count", len(docs))
	return nil
}

func (d *Driver) Query(ctx context.Context, namespaceID int64, embedding []float32, topK int) ([]vector.QueryResult, error) {
	if topK <= 0 {
		topK = 10
	}
	limit := uint64(topK)

	points, err := d.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: d.collection,
		Query:          qdrant.NewQuery(embedding...),
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatchInt(namespaceField, namespaceID)},
		},
		Limit: &limit,
	})
	if err != nil {
		return nil, fmt.Errorf("querying points: %w", err)
	}

	results := make([]vector.QueryResult, 0, len(points))
	for _, p := range points {
		results = append(results, vector.QueryResult{
			ID:    int64(p.GetId().GetNum()),
			Score: p.GetScore(),
		})
	}

	d.logger.Debug("queried qdrant", "namespace_id", namespaceID, "results", len(results))
	return results, nil
}

func (d *Driver) DeleteNamespaces(ctx context.Context, namespaceIDs []int64) error {
	if len(namespaceIDs) == 0 {
		return nil
	}

	conditions := make([]*qdrant.Condition, 0, len(namespaceIDs))
	for _, id := range namespaceIDs {
		conditions = append(conditions, qdrant.NewMatchInt(namespaceField, id))
	}

	wait := true
	if _, err := d.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: d.collection,
		Wait:           &wait,
		Points:         qdrant.NewPointsSelectorFilter(&qdrant.Filter{Should: conditions}),
	}); err != nil {
		return fmt.Errorf("deleting points: %w", err)
	}

	d.logger.Debug("deleted namespaces from qdrant", "namespaces", len(namespaceIDs))
	return nil
}

func (d *Driver) Close() error {
	return d.client.Close()
}
