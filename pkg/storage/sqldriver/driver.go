// Package sqldriver implements storage.Driver on top of database/sql. The
// sqlite and postgres packages supply a Dialect and an opened *sql.DB.
package sqldriver

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/papercomputeco/vectorvault/pkg/storage"
)

// Dialect captures the differences between the supported SQL backends.
type Dialect struct {
	// Name is used in error messages.
	Name string

	// Schema is the list of DDL statements executed by Migrate.
	Schema []string

	// Numbered rewrites ? placeholders to $1, $2, ... when true.
	Numbered bool
}

// Driver implements storage.Driver for a database/sql handle.
type Driver struct {
	DB      *sql.DB
	dialect Dialect
}

// New wraps db. Call Migrate before use.
func New(db *sql.DB, dialect Dialect) *Driver {
	return &Driver{DB: db, dialect: dialect}
}

// Migrate creates the schema if it does not exist yet.
func (d *Driver) Migrate(ctx context.Context) error {
	for _, stmt := range d.dialect.Schema {
		if _, err := d.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create %s schema: %w", d.dialect.Name, err)
		}
	}
	return nil
}

// q rebinds ? placeholders for the dialect.
func (d *Driver) q(query string) string {
	if !d.dialect.Numbered {
		return query
	}

	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (d *Driver) EnsureTenant(ctx context.Context, name string) (int64, error) {
	if _, err := d.DB.ExecContext(ctx,
		d.q(`INSERT INTO tenants(name) VALUES (?) ON CONFLICT (name) DO NOTHING`), name,
	); err != nil {
		return 0, fmt.Errorf("inserting tenant %q: %w", name, err)
	}

	var id int64
	if err := d.DB.QueryRowContext(ctx, d.q(`SELECT id FROM tenants WHERE name = ?`), name).Scan(&id); err != nil {
		return 0, fmt.Errorf("selecting tenant %q: %w", name, err)
	}
	return id, nil
}

func (d *Driver) EnsureOrganization(ctx context.Context, tenantID int64, name string) (int64, error) {
	if err := d.exists(ctx, d.DB, "tenant", `SELECT 1 FROM tenants WHERE id = ?`, tenantID); err != nil {
		return 0, err
	}

	if _, err := d.DB.ExecContext(ctx,
		d.q(`INSERT INTO organizations(name, tenant_id) VALUES (?, ?) ON CONFLICT (name, tenant_id) DO NOTHING`),
		name, tenantID,
	); err != nil {
		return 0, fmt.Errorf("inserting organization %q: %w", name, err)
	}

	var id int64
	if err := d.DB.QueryRowContext(ctx,
		d.q(`SELECT id FROM organizations WHERE name = ? AND tenant_id = ?`), name, tenantID,
	).Scan(&id); err != nil {
		return 0, fmt.Errorf("selecting organization %q: %w", name, err)
	}
	return id, nil
}

func (d *Driver) CreateNamespace(ctx context.Context, tenantID, organizationID int64, name, category string) (int64, error) {
	if err := d.exists(ctx, d.DB, "organization",
		`SELECT 1 FROM organizations WHERE id = ? AND tenant_id = ?`, organizationID, tenantID,
	); err != nil {
		return 0, err
	}

	var id int64
	err := d.DB.QueryRowContext(ctx, d.q(`
		INSERT INTO namespaces(name, tenant_id, organization_id, category)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (name, tenant_id, organization_id) DO NOTHING
		RETURNING id
	`), name, tenantID, organizationID, category).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, storage.ErrConflict
	}
	if err != nil {
		return 0, fmt.Errorf("inserting namespace %q: %w", name, err)
	}
	return id, nil
}

func (d *Driver) InsertVectors(ctx context.Context, namespaceID int64, vectors []storage.NewVector) ([]int64, error) {
	return d.withTx(ctx, namespaceID, false, vectors)
}

func (d *Driver) ReplaceVectors(ctx context.Context, namespaceID int64, vectors []storage.NewVector) ([]int64, error) {
	return d.withTx(ctx, namespaceID, true, vectors)
}

func (d *Driver) withTx(ctx context.Context, namespaceID int64, replace bool, vectors []storage.NewVector) ([]int64, error) {
	tx, err := d.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := d.exists(ctx, tx, "namespace", `SELECT 1 FROM namespaces WHERE id = ?`, namespaceID); err != nil {
		return nil, err
	}

	if replace {
		if _, err := tx.ExecContext(ctx, d.q(`DELETE FROM vectors WHERE namespace_id = ?`), namespaceID); err != nil {
			return nil, fmt.Errorf("clearing namespace %d: %w", namespaceID, err)
		}
	}

	// One statement per row keeps ids increasing in input order.
	ids := make([]int64, 0, len(vectors))
	for i, v := range vectors {
		var id int64
		err := tx.QueryRowContext(ctx, d.q(`
			INSERT INTO vectors(namespace_id, text, embedding, source_ref)
			VALUES (?, ?, ?, ?)
			RETURNING id
		`), namespaceID, v.Text, storage.EncodeEmbedding(v.Embedding), v.SourceRef).Scan(&id)
		if err != nil {
			return nil, fmt.Errorf("inserting vector %d: %w", i, err)
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}
	return ids, nil
}

func (d *Driver) FetchNamespaceVectors(ctx context.Context, namespaceID int64) ([]storage.ContentVector, error) {
	if err := d.exists(ctx, d.DB, "namespace", `SELECT 1 FROM namespaces WHERE id = ?`, namespaceID); err != nil {
		return nil, err
	}

	rows, err := d.DB.QueryContext(ctx, d.q(`
		SELECT id, namespace_id, text, embedding, source_ref
		FROM vectors
		WHERE namespace_id = ?
		ORDER BY id
	`), namespaceID)
	if err != nil {
		return nil, fmt.Errorf("querying vectors: %w", err)
	}
	return scanVectors(rows)
}

func (d *Driver) GetVectors(ctx context.Context, namespaceID int64, ids []int64) ([]storage.ContentVector, error) {
	if err := d.exists(ctx, d.DB, "namespace", `SELECT 1 FROM namespaces WHERE id = ?`, namespaceID); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]any, 0, len(ids)+1)
	args = append(args, namespaceID)
	for i, id := range ids {
		placeholders[i] = "?"
		args = append(args, id)
	}

	query := fmt.Sprintf(`
		SELECT id, namespace_id, text, embedding, source_ref
		FROM vectors
		WHERE namespace_id = ? AND id IN (%s)
		ORDER BY id
	`, strings.Join(placeholders, ","))

	rows, err := d.DB.QueryContext(ctx, d.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("querying vectors: %w", err)
	}
	return scanVectors(rows)
}

func scanVectors(rows *sql.Rows) ([]storage.ContentVector, error) {
	defer rows.Close()

	var out []storage.ContentVector
	for rows.Next() {
		var (
			v    storage.ContentVector
			blob []byte
		)
		if err := rows.Scan(&v.ID, &v.NamespaceID, &v.Text, &blob, &v.SourceRef); err != nil {
			return nil, fmt.Errorf("scanning vector: %w", err)
		}

		emb, err := storage.DecodeEmbedding(blob)
		if err != nil {
			return nil, fmt.Errorf("decoding vector %d: %w", v.ID, err)
		}
		v.Embedding = emb
		out = append(out, v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating vectors: %w", err)
	}
	return out, nil
}

func (d *Driver) LookupTenant(ctx context.Context, name string) (*storage.Tenant, error) {
	t := &storage.Tenant{}
	err := d.DB.QueryRowContext(ctx, d.q(`SELECT id, name FROM tenants WHERE name = ?`), name).Scan(&t.ID, &t.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.NotFoundError{Kind: "tenant", Key: name}
	}
	if err != nil {
		return nil, fmt.Errorf("looking up tenant %q: %w", name, err)
	}
	return t, nil
}

func (d *Driver) LookupOrganization(ctx context.Context, tenantID int64, name string) (*storage.Organization, error) {
	o := &storage.Organization{}
	err := d.DB.QueryRowContext(ctx,
		d.q(`SELECT id, name, tenant_id FROM organizations WHERE name = ? AND tenant_id = ?`), name, tenantID,
	).Scan(&o.ID, &o.Name, &o.TenantID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.NotFoundError{Kind: "organization", Key: name}
	}
	if err != nil {
		return nil, fmt.Errorf("looking up organization %q: %w", name, err)
	}
	return o, nil
}

func (d *Driver) LookupNamespace(ctx context.Context, tenantID, organizationID int64, name string) (*storage.Namespace, error) {
	ns := &storage.Namespace{}
	err := d.DB.QueryRowContext(ctx, d.q(`
		SELECT id, name, tenant_id, organization_id, category
		FROM namespaces
		WHERE name = ? AND tenant_id = ? AND organization_id = ?
	`), name, tenantID, organizationID).Scan(&ns.ID, &ns.Name, &ns.TenantID, &ns.OrganizationID, &ns.Category)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.NotFoundError{Kind: "namespace", Key: name}
	}
	if err != nil {
		return nil, fmt.Errorf("looking up namespace %q: %w", name, err)
	}
	return ns, nil
}

func (d *Driver) DeleteNamespace(ctx context.Context, namespaceID int64) error {
	res, err := d.DB.ExecContext(ctx, d.q(`DELETE FROM namespaces WHERE id = ?`), namespaceID)
	if err != nil {
		return fmt.Errorf("deleting namespace %d: %w", namespaceID, err)
	}
	return affected(res, storage.NotFoundID("namespace", namespaceID))
}

func (d *Driver) DeleteOrganization(ctx context.Context, organizationID int64) ([]int64, error) {
	return d.cascade(ctx, "organization",
		`SELECT id FROM namespaces WHERE organization_id = ? ORDER BY id`,
		`DELETE FROM organizations WHERE id = ?`,
		organizationID,
	)
}

func (d *Driver) DeleteTenant(ctx context.Context, tenantID int64) ([]int64, error) {
	return d.cascade(ctx, "tenant",
		`SELECT id FROM namespaces WHERE tenant_id = ? ORDER BY id`,
		`DELETE FROM tenants WHERE id = ?`,
		tenantID,
	)
}

// cascade collects the namespace ids beneath an entity and deletes it. The
// schema's ON DELETE CASCADE foreign keys remove the children.
func (d *Driver) cascade(ctx context.Context, kind, selectNamespaces, deleteEntity string, id int64) ([]int64, error) {
	tx, err := d.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, d.q(selectNamespaces), id)
	if err != nil {
		return nil, fmt.Errorf("querying namespaces of %s %d: %w", kind, id, err)
	}
	var removed []int64
	for rows.Next() {
		var nsID int64
		if err := rows.Scan(&nsID); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning namespace id: %w", err)
		}
		removed = append(removed, nsID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating namespace ids: %w", err)
	}

	res, err := tx.ExecContext(ctx, d.q(deleteEntity), id)
	if err != nil {
		return nil, fmt.Errorf("deleting %s %d: %w", kind, id, err)
	}
	if err := affected(res, storage.NotFoundID(kind, id)); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}
	return removed, nil
}

func (d *Driver) exists(ctx context.Context, q queryer, kind, query string, args ...any) error {
	var one int
	err := q.QueryRowContext(ctx, d.q(query), args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		id, _ := args[0].(int64)
		return storage.NotFoundID(kind, id)
	}
	if err != nil {
		return fmt.Errorf("checking %s: %w", kind, err)
	}
	return nil
}

func affected(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading affected rows: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}

// Close closes the underlying database.
func (d *Driver) Close() error {
	return d.DB.Close()
}
