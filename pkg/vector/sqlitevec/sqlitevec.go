// Package sqlitevec provides a SQLite-backed vector driver using sqlite-vec.
package sqlitevec

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"

	"github.com/papercomputeco/vectorvault/pkg/storage"
	"github.com/papercomputeco/vectorvault/pkg/vector"
)

// SQLiteVecDriver implements vector.Driver using SQLite with sqlite-vec.
type SQLiteVecDriver struct {
	db         *sql.DB
	dimensions uint
	logger     *slog.Logger
}

// Config holds configuration for the SQLite vec driver.
type Config struct {
	// DBPath is the path to the SQLite database file.
	// Use ":memory:" for an in-memory database.
	DBPath string

	// Dimensions is the number of dimensions for the embedding vectors.
	Dimensions uint
}

// NewSQLiteVecDriver creates a new SQLite vector driver backed by sqlite-vec.
func NewSQLiteVecDriver(c Config, logger *slog.Logger) (*SQLiteVecDriver, error) {
	// enable connection to have sqlite-vec extension
	sqlite_vec.Auto()

	if c.DBPath == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if c.Dimensions == 0 {
		return nil, fmt.Errorf("sqlite-vec embedding dimensions cannot be 0, must be configured")
	}

	db, err := sql.Open("sqlite3", c.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Verify sqlite-vec is loaded
	var vecVersion string
	if err := db.QueryRow("SELECT vec_version()").Scan(&vecVersion); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite-vec not available: %w", err)
	}

	// vec0 cannot filter deletes by partition key, so the namespace of
	// every rowid is kept alongside.
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS vec_members (
			rowid INTEGER PRIMARY KEY,
			namespace_id INTEGER NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating members table: %w", err)
	}
	if _, err := db.Exec(
		`CREATE INDEX IF NOT EXISTS vec_members_namespace_idx ON vec_members(namespace_id)`,
	); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating members index: %w", err)
	}

	createVec := fmt.Sprintf(`
		CREATE VIRTUAL TABLE IF NOT EXISTS vec_embeddings USING vec0(
			namespace_id integer partition key,
			embedding float[%d] distance_metric=cosine
		)`, c.Dimensions)
	if _, err := db.Exec(createVec); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating vec0 table: %w", err)
	}

	logger.Info("sqlite-vec vector driver initialized",
		"db_path", c.DBPath,
		"dimensions", c.Dimensions,
		"vec_version", vecVersion,
	)

	return &SQLiteVecDriver{
		db:         db,
		dimensions: c.Dimensions,
		logger:     logger,
	}, nil
}

// Add indexes documents. Existing rowids are replaced via DELETE + INSERT
// since vec0 does not support UPDATE.
func (d *SQLiteVecDriver) Add(ctx context.Context, docs []vector.Document) error {
	if len(docs) == 0 {
		return nil
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for _, doc := range docs {
		if uint(len(doc.Embedding)) != d.dimensions {
			return fmt.Errorf("%w: vector %d has %d, index has %d",
				vector.ErrDimensions, doc.ID, len(doc.Embedding), d.dimensions)
		}
		blob := storage.EncodeEmbedding(doc.Embedding)

		if _, err := tx.ExecContext(ctx, `DELETE FROM vec_embeddings WHERE rowid = ?`, doc.ID); err != nil {
			return fmt.Errorf("deleting old embedding for vector %d: %w", doc.ID, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO vec_embeddings(rowid, namespace_id, embedding) VALUES (?, ?, ?)`,
			doc.ID, doc.NamespaceID, blob,
		); err != nil {
			return fmt.Errorf("inserting embedding for vector %d: %w", doc.ID, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO vec_members(rowid, namespace_id) VALUES (?, ?)`,
			doc.ID, doc.NamespaceID,
		); err != nil {
			return fmt.Errorf("recording vector %d: %w", doc.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	d.logger.Debug("added documents to sqlite-vec", "count", len(docs))
	return nil
}

// Query runs a KNN match restricted to one namespace partition.
func (d *SQLiteVecDriver) Query(ctx context.Context, namespaceID int64, embedding []float32, topK int) ([]vector.QueryResult, error) {
	if topK <= 0 {
		topK = 10
	}

	rows, err := d.db.QueryContext(ctx, `
		SELECT rowid, distance
		FROM vec_embeddings
		WHERE embedding MATCH ?
			AND k = ?
			AND namespace_id = ?
		ORDER BY distance
	`, storage.EncodeEmbedding(embedding), topK, namespaceID)
	if err != nil {
		return nil, fmt.Errorf("querying vectors: %w", err)
	}
	defer rows.Close()

	var results []vector.QueryResult
	for rows.Next() {
		var (
			id       int64
			distance float64
		)
		if err := rows.Scan(&id, &distance); err != nil {
			return nil, fmt.Errorf("scanning query result: %w", err)
		}
		// cosine distance is 1 - similarity
		results = append(results, vector.QueryResult{ID: id, Score: float32(1 - distance)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating query results: %w", err)
	}

	d.logger.Debug("queried sqlite-vec", "namespace_id", namespaceID, "results", len(results))
	return results, nil
}

// DeleteNamespaces drops the embeddings of every listed namespace.
func (d *SQLiteVecDriver) DeleteNamespaces(ctx context.Context, namespaceIDs []int64) error {
	if len(namespaceIDs) == 0 {
		return nil
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	placeholders := make([]string, len(namespaceIDs))
	args := make([]any, len(namespaceIDs))
	for i, id := range namespaceIDs {
		placeholders[i] = "?"
		args[i] = id
	}
	inClause := strings.Join(placeholders, ",")

	rows, err := tx.QueryContext(ctx,
		fmt.Sprintf(`SELECT rowid FROM vec_members WHERE namespace_id IN (%s)`, inClause), args...)
	if err != nil {
		return fmt.Errorf("querying rowids for deletion: %w", err)
	}
	var rowIDs []int64
	for rows.Next() {
		var rowID int64
		if err := rows.Scan(&rowID); err != nil {
			rows.Close()
			return fmt.Errorf("scanning rowid: %w", err)
		}
		rowIDs = append(rowIDs, rowID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating rowids: %w", err)
	}

	for _, rowID := range rowIDs {
		if _, err := tx.ExecContext(ctx, `DELETE FROM vec_embeddings WHERE rowid = ?`, rowID); err != nil {
			return fmt.Errorf("deleting embedding rowid %d: %w", rowID, err)
		}
	}
	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM vec_members WHERE namespace_id IN (%s)`, inClause), args...,
	); err != nil {
		return fmt.Errorf("deleting members: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	d.logger.Debug("deleted namespaces from sqlite-vec", "namespaces", len(namespaceIDs), "vectors", len(rowIDs))
	return nil
}

// Close releases resources held by the driver.
func (d *SQLiteVecDriver) Close() error {
	return d.db.Close()
}
