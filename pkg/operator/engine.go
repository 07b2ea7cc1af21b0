// Package operator implements the operator-side CRUD engine over an explicit
// Store handle.
package operator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/papercomputeco/vectorvault/pkg/embeddings"
	"github.com/papercomputeco/vectorvault/pkg/logger"
	"github.com/papercomputeco/vectorvault/pkg/protocol"
	"github.com/papercomputeco/vectorvault/pkg/search"
	"github.com/papercomputeco/vectorvault/pkg/storage"
	"github.com/papercomputeco/vectorvault/pkg/vault"
	"github.com/papercomputeco/vectorvault/pkg/vector"
)

// DefaultCandidates is how many index candidates are re-ranked exactly.
const DefaultCandidates = 32

// Config configures an Engine.
type Config struct {
	Embedder embeddings.Embedder
	Logger   *slog.Logger

	// Version is the protocol version this operator speaks. Defaults to
	// protocol.CurrentVersion.
	Version protocol.Version

	// Candidates bounds the index query before exact re-ranking.
	Candidates int
}

// Engine executes CRUD requests against a Store.
type Engine struct {
	embedder   embeddings.Embedder
	logger     *slog.Logger
	version    protocol.Version
	candidates int
}

// New creates an Engine.
func New(c Config) *Engine {
	version := c.Version
	if version == (protocol.Version{}) {
		version = protocol.CurrentVersion
	}
	candidates := c.Candidates
	if candidates <= 0 {
		candidates = DefaultCandidates
	}
	log := c.Logger
	if log == nil {
		log = logger.Nop()
	}
	return &Engine{
		embedder:   c.Embedder,
		logger:     log,
		version:    version,
		candidates: candidates,
	}
}

// checkVersion warns about requests from a newer protocol version. They are
// still processed.
func (e *Engine) checkVersion(op protocol.OpKind, v protocol.Version) {
	if v.NewerThan(e.version) {
		e.logger.Warn("request uses a newer protocol version, processing anyway",
			"op", op.String(),
			"request_version", v.String(),
			"operator_version", e.version.String(),
		)
	}
}

// Create ensures the tenant and organization, creates the namespace and
// inserts one vector per text. The namespace must not exist yet.
func (e *Engine) Create(ctx context.Context, s *Store, req protocol.CreateRequest) (*protocol.CreateResponse, error) {
	if err := protocol.Validate(req); err != nil {
		return nil, err
	}
	e.checkVersion(protocol.OpCreate, req.Version)

	vectors, err := e.embedTexts(ctx, req.Texts)
	if err != nil {
		return nil, err
	}

	unlock := s.lockNamespace(req.TenantName, req.OrganizationName, req.NamespaceName)
	defer unlock()

	tenantID, err := s.Driver.EnsureTenant(ctx, req.TenantName)
	if err != nil {
		return nil, err
	}
	orgID, err := s.Driver.EnsureOrganization(ctx, tenantID, req.OrganizationName)
	if err != nil {
		return nil, err
	}
	nsID, err := s.Driver.CreateNamespace(ctx, tenantID, orgID, req.NamespaceName, req.Category)
	if err != nil {
		return nil, err
	}

	ids, err := s.Driver.InsertVectors(ctx, nsID, vectors)
	if err != nil {
		// a namespace without its vectors would read as NotFound forever
		if delErr := s.Driver.DeleteNamespace(ctx, nsID); delErr != nil {
			e.logger.Error("rolling back namespace", "namespace_id", nsID, "error", delErr)
		}
		return nil, err
	}
	e.index(ctx, s, nsID, ids, vectors)

	e.logger.Info("created namespace",
		"coordinator", s.Identity,
		"tenant_id", tenantID,
		"organization_id", orgID,
		"namespace_id", nsID,
		"vectors", len(ids),
	)

	return &protocol.CreateResponse{
		IDs:       protocol.IDs{TenantID: tenantID, OrganizationID: orgID, NamespaceID: nsID},
		VectorIDs: ids,
	}, nil
}

// Read returns the best match for the query inside the namespace.
func (e *Engine) Read(ctx context.Context, s *Store, req protocol.ReadRequest) (*protocol.ReadResponse, error) {
	if err := protocol.Validate(req); err != nil {
		return nil, err
	}
	e.checkVersion(protocol.OpRead, req.Version)

	ids, results, err := e.search(ctx, s, req.TenantName, req.OrganizationName, req.NamespaceName, req.QueryText, req.ResultCount)
	if err != nil {
		return nil, err
	}

	top := results[0]
	e.logger.Debug("read namespace",
		"coordinator", s.Identity,
		"namespace_id", ids.NamespaceID,
		"vector_id", top.VectorID,
		"score", top.Score,
	)

	return &protocol.ReadResponse{IDs: ids, VectorID: top.VectorID, Text: top.Text}, nil
}

// Search ranks up to k vectors of a namespace against a free-text query.
func (e *Engine) Search(ctx context.Context, s *Store, tenant, organization, namespace, query string, k int) ([]search.Result, error) {
	_, results, err := e.search(ctx, s, tenant, organization, namespace, query, k)
	return results, err
}

// SearchIDs is Search that also returns the namespace's identifier triple.
func (e *Engine) SearchIDs(ctx context.Context, s *Store, tenant, organization, namespace, query string, k int) (protocol.IDs, []search.Result, error) {
	return e.search(ctx, s, tenant, organization, namespace, query, k)
}

func (e *Engine) search(ctx context.Context, s *Store, tenant, organization, namespace, query string, k int) (protocol.IDs, []search.Result, error) {
	queryEmb, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return protocol.IDs{}, nil, fmt.Errorf("embedding query: %w", err)
	}

	unlock := s.rlockNamespace(tenant, organization, namespace)
	defer unlock()

	ns, err := lookup(ctx, s.Driver, tenant, organization, namespace)
	if err != nil {
		return protocol.IDs{}, nil, err
	}
	ids := protocol.IDs{TenantID: ns.TenantID, OrganizationID: ns.OrganizationID, NamespaceID: ns.ID}

	candidates, err := e.candidatesFor(ctx, s, ns.ID, queryEmb, k)
	if err != nil {
		return ids, nil, err
	}
	if len(candidates) == 0 {
		return ids, nil, storage.NotFoundError{Kind: "vectors in namespace", Key: namespace}
	}

	return ids, search.TopK(queryEmb, candidates, k), nil
}

// candidatesFor narrows the namespace through the index when one is
// configured, and falls back to every vector otherwise.
func (e *Engine) candidatesFor(ctx context.Context, s *Store, nsID int64, queryEmb []float32, k int) ([]storage.ContentVector, error) {
	if s.Index != nil {
		hits, err := s.Index.Query(ctx, nsID, queryEmb, max(k, e.candidates))
		if err != nil {
			e.logger.Warn("vector index query failed, scanning namespace", "namespace_id", nsID, "error", err)
		} else if len(hits) > 0 {
			hitIDs := make([]int64, len(hits))
			for i, h := range hits {
				hitIDs[i] = h.ID
			}
			vectors, err := s.Driver.GetVectors(ctx, nsID, hitIDs)
			if err != nil {
				return nil, err
			}
			if len(vectors) > 0 {
				return vectors, nil
			}
		}
	}
	return s.Driver.FetchNamespaceVectors(ctx, nsID)
}

// Update adds texts to a namespace, or replaces its texts in REPLACE mode.
func (e *Engine) Update(ctx context.Context, s *Store, req protocol.UpdateRequest) (*protocol.UpdateResponse, error) {
	if err := protocol.Validate(req); err != nil {
		return nil, err
	}
	e.checkVersion(protocol.OpUpdate, req.Version)

	vectors, err := e.embedTexts(ctx, req.Texts)
	if err != nil {
		return nil, err
	}

	unlock := s.lockNamespace(req.TenantName, req.OrganizationName, req.NamespaceName)
	defer unlock()

	ns, err := lookup(ctx, s.Driver, req.TenantName, req.OrganizationName, req.NamespaceName)
	if err != nil {
		return nil, err
	}

	var ids []int64
	switch req.Mode {
	case protocol.UpdateAdd:
		ids, err = s.Driver.InsertVectors(ctx, ns.ID, vectors)
	case protocol.UpdateReplace:
		ids, err = s.Driver.ReplaceVectors(ctx, ns.ID, vectors)
		if err == nil {
			e.unindex(ctx, s, []int64{ns.ID})
		}
	default:
		return nil, fmt.Errorf("%w: update mode %s", vault.ErrInvalidRequest, req.Mode)
	}
	if err != nil {
		return nil, err
	}
	e.index(ctx, s, ns.ID, ids, vectors)

	e.logger.Info("updated namespace",
		"coordinator", s.Identity,
		"namespace_id", ns.ID,
		"mode", req.Mode.String(),
		"vectors", len(ids),
	)

	return &protocol.UpdateResponse{
		IDs:       protocol.IDs{TenantID: ns.TenantID, OrganizationID: ns.OrganizationID, NamespaceID: ns.ID},
		VectorIDs: ids,
	}, nil
}

// Delete removes a tenant, organization or namespace with everything
// beneath it. Identifiers below the deleted scope are echoed as zero.
func (e *Engine) Delete(ctx context.Context, s *Store, req protocol.DeleteRequest) (*protocol.DeleteResponse, error) {
	if err := protocol.Validate(req); err != nil {
		return nil, err
	}
	e.checkVersion(protocol.OpDelete, req.Version)

	var (
		ids     protocol.IDs
		removed []int64
		err     error
	)

	switch req.Scope {
	case protocol.ScopeNamespace:
		unlock := s.lockNamespace(req.TenantName, req.OrganizationName, req.NamespaceName)
		defer unlock()

		var ns *storage.Namespace
		if ns, err = lookup(ctx, s.Driver, req.TenantName, req.OrganizationName, req.NamespaceName); err != nil {
			return nil, err
		}
		if err = s.Driver.DeleteNamespace(ctx, ns.ID); err != nil {
			return nil, err
		}
		ids = protocol.IDs{TenantID: ns.TenantID, OrganizationID: ns.OrganizationID, NamespaceID: ns.ID}
		removed = []int64{ns.ID}

	case protocol.ScopeOrganization:
		unlock := s.lockHierarchy()
		defer unlock()

		var t *storage.Tenant
		if t, err = s.Driver.LookupTenant(ctx, req.TenantName); err != nil {
			return nil, err
		}
		var org *storage.Organization
		if org, err = s.Driver.LookupOrganization(ctx, t.ID, req.OrganizationName); err != nil {
			return nil, err
		}
		if removed, err = s.Driver.DeleteOrganization(ctx, org.ID); err != nil {
			return nil, err
		}
		ids = protocol.IDs{TenantID: t.ID, OrganizationID: org.ID}

	case protocol.ScopeTenant:
		unlock := s.lockHierarchy()
		defer unlock()

		var t *storage.Tenant
		if t, err = s.Driver.LookupTenant(ctx, req.TenantName); err != nil {
			return nil, err
		}
		if removed, err = s.Driver.DeleteTenant(ctx, t.ID); err != nil {
			return nil, err
		}
		ids = protocol.IDs{TenantID: t.ID}

	default:
		return nil, fmt.Errorf("%w: delete scope %s", vault.ErrInvalidRequest, req.Scope)
	}

	e.unindex(ctx, s, removed)

	e.logger.Info("deleted",
		"coordinator", s.Identity,
		"scope", req.Scope.String(),
		"ids", ids.String(),
		"namespaces", len(removed),
	)

	return &protocol.DeleteResponse{IDs: ids}, nil
}

func (e *Engine) embedTexts(ctx context.Context, texts []string) ([]storage.NewVector, error) {
	embs, err := embeddings.EmbedAll(ctx, e.embedder, texts)
	if err != nil {
		return nil, fmt.Errorf("embedding texts: %w", err)
	}

	// Requests carry no source refs, so no echo is stored.
	vectors := make([]storage.NewVector, len(texts))
	for i, t := range texts {
		vectors[i] = storage.NewVector{Text: t, Embedding: embs[i]}
	}
	return vectors, nil
}

// index mirrors new vectors into the index. The store stays authoritative,
// so index failures only degrade reads to a full scan.
func (e *Engine) index(ctx context.Context, s *Store, nsID int64, ids []int64, vectors []storage.NewVector) {
	if s.Index == nil {
		return
	}
	docs := make([]vector.Document, len(ids))
	for i, id := range ids {
		docs[i] = vector.Document{ID: id, NamespaceID: nsID, Embedding: vectors[i].Embedding}
	}
	if err := s.Index.Add(ctx, docs); err != nil {
		e.logger.Warn("indexing vectors failed", "namespace_id", nsID, "error", err)
	}
}

func (e *Engine) unindex(ctx context.Context, s *Store, nsIDs []int64) {
	if s.Index == nil || len(nsIDs) == 0 {
		return
	}
	if err := s.Index.DeleteNamespaces(ctx, nsIDs); err != nil {
		e.logger.Warn("removing namespaces from index failed", "namespaces", nsIDs, "error", err)
	}
}

func lookup(ctx context.Context, d storage.Driver, tenant, organization, namespace string) (*storage.Namespace, error) {
	t, err := d.LookupTenant(ctx, tenant)
	if err != nil {
		return nil, err
	}
	org, err := d.LookupOrganization(ctx, t.ID, organization)
	if err != nil {
		return nil, err
	}
	ns, err := d.LookupNamespace(ctx, t.ID, org.ID, namespace)
	if err != nil {
		return nil, err
	}
	return ns, nil
}

// IsClientError reports whether err was caused by the request rather than
// the operator.
func IsClientError(err error) bool {
	return errors.Is(err, vault.ErrInvalidRequest) ||
		errors.Is(err, vault.ErrNotFound) ||
		errors.Is(err, vault.ErrConflict)
}
