// Package sqlite persists the audit ledger in a SQLite database so the
// coordinator keeps its view of every operator across restarts.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/papercomputeco/vectorvault/pkg/ledger"
	"github.com/papercomputeco/vectorvault/pkg/protocol"
	"github.com/papercomputeco/vectorvault/pkg/vault"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS operators (
		operator TEXT PRIMARY KEY,
		passed_cycles INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS entries (
		operator TEXT NOT NULL REFERENCES operators(operator),
		namespace_id INTEGER NOT NULL,
		tenant_id INTEGER NOT NULL,
		organization_id INTEGER NOT NULL,
		tenant_name TEXT NOT NULL,
		organization_name TEXT NOT NULL,
		namespace_name TEXT NOT NULL,
		category TEXT NOT NULL DEFAULT '',
		storage_size_bytes INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (operator, namespace_id),
		UNIQUE (operator, tenant_name, organization_name, namespace_name)
	)`,
	`CREATE TABLE IF NOT EXISTS pages (
		operator TEXT NOT NULL,
		namespace_id INTEGER NOT NULL,
		source_ref TEXT NOT NULL,
		vector_id INTEGER NOT NULL,
		PRIMARY KEY (operator, namespace_id, vector_id),
		UNIQUE (operator, namespace_id, source_ref),
		FOREIGN KEY (operator, namespace_id) REFERENCES entries(operator, namespace_id) ON DELETE CASCADE
	)`,
}

// Driver implements ledger.Driver using SQLite.
type Driver struct {
	db *sql.DB
}

// NewDriver opens (or creates) the ledger database at dbPath. ":memory:" is
// accepted for tests.
func NewDriver(ctx context.Context, dbPath string) (*Driver, error) {
	sep := "?"
	if strings.Contains(dbPath, "?") {
		sep = "&"
	}
	db, err := sql.Open("sqlite3", dbPath+sep+"_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger database: %w", err)
	}
	db.SetMaxOpenConns(1)

	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create ledger schema: %w", err)
		}
	}
	return &Driver{db: db}, nil
}

func (d *Driver) CheckUniqueness(ctx context.Context, operator, tenant, organization, namespace string) (bool, error) {
	var n int
	err := d.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM entries
		 WHERE operator = ? AND tenant_name = ? AND organization_name = ? AND namespace_name = ?`,
		operator, tenant, organization, namespace,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking uniqueness: %w", err)
	}
	return n == 0, nil
}

func (d *Driver) RecordCreate(ctx context.Context, operator string, entry *ledger.Entry) error {
	pages := ledger.NewPageMap()
	if entry.Pages != nil {
		pages = entry.Pages
	}
	if err := pages.Check(); err != nil {
		return err
	}

	return d.withTx(ctx, func(tx *sql.Tx) error {
		if err := ensureOperator(ctx, tx, operator); err != nil {
			return err
		}

		var n int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM entries WHERE operator = ? AND (namespace_id = ?
			 OR (tenant_name = ? AND organization_name = ? AND namespace_name = ?))`,
			operator, entry.NamespaceID, entry.TenantName, entry.OrganizationName, entry.NamespaceName,
		).Scan(&n); err != nil {
			return fmt.Errorf("checking existing entry: %w", err)
		}
		if n > 0 {
			return fmt.Errorf("%w: namespace %d already recorded", vault.ErrConflict, entry.NamespaceID)
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO entries (operator, namespace_id, tenant_id, organization_id,
			 tenant_name, organization_name, namespace_name, category, storage_size_bytes)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			operator, entry.NamespaceID, entry.TenantID, entry.OrganizationID,
			entry.TenantName, entry.OrganizationName, entry.NamespaceName, entry.Category, entry.StorageSizeBytes,
		); err != nil {
			return fmt.Errorf("inserting entry: %w", err)
		}
		return insertPages(ctx, tx, operator, entry.NamespaceID, pages.Pages())
	})
}

func (d *Driver) RecordUpdate(ctx context.Context, operator string, namespaceID int64, pages []ledger.Page, addedBytes int64) error {
	return d.withTx(ctx, func(tx *sql.Tx) error {
		current, err := loadPages(ctx, tx, operator, namespaceID)
		if err != nil {
			return err
		}
		if err := current.Add(pages...); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE entries SET storage_size_bytes = storage_size_bytes + ? WHERE operator = ? AND namespace_id = ?`,
			addedBytes, operator, namespaceID,
		); err != nil {
			return fmt.Errorf("updating storage size: %w", err)
		}
		return insertPages(ctx, tx, operator, namespaceID, pages)
	})
}

func (d *Driver) RecordReplace(ctx context.Context, operator string, namespaceID int64, pages []ledger.Page, sizeBytes int64) error {
	next := ledger.NewPageMap()
	if err := next.Add(pages...); err != nil {
		return err
	}

	return d.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := loadPages(ctx, tx, operator, namespaceID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM pages WHERE operator = ? AND namespace_id = ?`, operator, namespaceID,
		); err != nil {
			return fmt.Errorf("clearing pages: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE entries SET storage_size_bytes = ? WHERE operator = ? AND namespace_id = ?`,
			sizeBytes, operator, namespaceID,
		); err != nil {
			return fmt.Errorf("resetting storage size: %w", err)
		}
		return insertPages(ctx, tx, operator, namespaceID, pages)
	})
}

func (d *Driver) RecordDelete(ctx context.Context, operator string, scope protocol.DeleteScope, ids protocol.IDs) ([]int64, error) {
	var (
		where string
		args  []any
	)
	switch scope {
	case protocol.ScopeTenant:
		where, args = "tenant_id = ?", []any{ids.TenantID}
	case protocol.ScopeOrganization:
		where, args = "tenant_id = ? AND organization_id = ?", []any{ids.TenantID, ids.OrganizationID}
	case protocol.ScopeNamespace:
		where, args = "namespace_id = ?", []any{ids.NamespaceID}
	default:
		return nil, fmt.Errorf("%w: delete scope %d", vault.ErrInvalidRequest, int(scope))
	}
	args = append([]any{operator}, args...)

	var removed []int64
	err := d.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx,
			`SELECT namespace_id FROM entries WHERE operator = ? AND `+where+` ORDER BY namespace_id`, args...)
		if err != nil {
			return fmt.Errorf("selecting entries: %w", err)
		}
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return err
			}
			removed = append(removed, id)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
		if len(removed) == 0 {
			return ledger.NotFound(operator, scope.String()+" "+ids.String())
		}

		if _, err := tx.ExecContext(ctx,
			`DELETE FROM entries WHERE operator = ? AND `+where, args...); err != nil {
			return fmt.Errorf("deleting entries: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}

func (d *Driver) Entry(ctx context.Context, operator string, namespaceID int64) (*ledger.Entry, error) {
	entries, err := d.queryEntries(ctx, operator, "AND namespace_id = ?", namespaceID)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, ledger.NotFoundID(operator, namespaceID)
	}
	return entries[0], nil
}

func (d *Driver) Entries(ctx context.Context, operator string) ([]*ledger.Entry, error) {
	return d.queryEntries(ctx, operator, "")
}

func (d *Driver) queryEntries(ctx context.Context, operator, filter string, args ...any) ([]*ledger.Entry, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT namespace_id, tenant_id, organization_id, tenant_name, organization_name,
		 namespace_name, category, storage_size_bytes
		 FROM entries WHERE operator = ? `+filter+` ORDER BY namespace_id`,
		append([]any{operator}, args...)...)
	if err != nil {
		return nil, fmt.Errorf("querying entries: %w", err)
	}

	entries := []*ledger.Entry{}
	for rows.Next() {
		e := &ledger.Entry{}
		if err := rows.Scan(&e.NamespaceID, &e.TenantID, &e.OrganizationID, &e.TenantName,
			&e.OrganizationName, &e.NamespaceName, &e.Category, &e.StorageSizeBytes); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning entry: %w", err)
		}
		entries = append(entries, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, e := range entries {
		if e.Pages, err = loadPages(ctx, d.db, operator, e.NamespaceID); err != nil {
			return nil, err
		}
	}
	return entries, nil
}

func (d *Driver) TotalStorageBytes(ctx context.Context, operator string) (int64, error) {
	var total int64
	err := d.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(storage_size_bytes), 0) FROM entries WHERE operator = ?`, operator,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("summing storage: %w", err)
	}
	return total, nil
}

func (d *Driver) PassedCycles(ctx context.Context, operator string) (int64, error) {
	var n int64
	err := d.db.QueryRowContext(ctx,
		`SELECT passed_cycles FROM operators WHERE operator = ?`, operator,
	).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading cycles: %w", err)
	}
	return n, nil
}

func (d *Driver) IncrementCycles(ctx context.Context, operator string) (int64, error) {
	var n int64
	err := d.withTx(ctx, func(tx *sql.Tx) error {
		if err := ensureOperator(ctx, tx, operator); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE operators SET passed_cycles = passed_cycles + 1 WHERE operator = ?`, operator,
		); err != nil {
			return fmt.Errorf("incrementing cycles: %w", err)
		}
		return tx.QueryRowContext(ctx,
			`SELECT passed_cycles FROM operators WHERE operator = ?`, operator,
		).Scan(&n)
	})
	return n, err
}

func (d *Driver) Operators(ctx context.Context) ([]string, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT operator FROM operators ORDER BY operator`)
	if err != nil {
		return nil, fmt.Errorf("listing operators: %w", err)
	}
	defer rows.Close()

	ops := []string{}
	for rows.Next() {
		var op string
		if err := rows.Scan(&op); err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	return ops, rows.Err()
}

func (d *Driver) Close() error {
	return d.db.Close()
}

func (d *Driver) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func ensureOperator(ctx context.Context, tx *sql.Tx, operator string) error {
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO operators (operator) VALUES (?) ON CONFLICT (operator) DO NOTHING`, operator,
	); err != nil {
		return fmt.Errorf("inserting operator: %w", err)
	}
	return nil
}

// loadPages returns the entry's page map, or NotFound when the entry is
// missing.
func loadPages(ctx context.Context, q queryer, operator string, namespaceID int64) (*ledger.PageMap, error) {
	var n int
	if err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM entries WHERE operator = ? AND namespace_id = ?`, operator, namespaceID,
	).Scan(&n); err != nil {
		return nil, fmt.Errorf("looking up entry: %w", err)
	}
	if n == 0 {
		return nil, ledger.NotFoundID(operator, namespaceID)
	}

	rows, err := q.QueryContext(ctx,
		`SELECT source_ref, vector_id FROM pages WHERE operator = ? AND namespace_id = ? ORDER BY vector_id`,
		operator, namespaceID)
	if err != nil {
		return nil, fmt.Errorf("querying pages: %w", err)
	}
	defer rows.Close()

	var pages []ledger.Page
	for rows.Next() {
		var p ledger.Page
		if err := rows.Scan(&p.SourceRef, &p.VectorID); err != nil {
			return nil, fmt.Errorf("scanning page: %w", err)
		}
		pages = append(pages, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	m := ledger.NewPageMap()
	if err := m.Add(pages...); err != nil {
		return nil, fmt.Errorf("corrupt page map for namespace %d: %w", namespaceID, err)
	}
	return m, nil
}

func insertPages(ctx context.Context, tx *sql.Tx, operator string, namespaceID int64, pages []ledger.Page) error {
	for _, p := range pages {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO pages (operator, namespace_id, source_ref, vector_id) VALUES (?, ?, ?, ?)`,
			operator, namespaceID, p.SourceRef, p.VectorID,
		); err != nil {
			return fmt.Errorf("inserting page %d: %w", p.VectorID, err)
		}
	}
	return nil
}
