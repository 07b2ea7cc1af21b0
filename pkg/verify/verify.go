// Package verify checks operator responses against the audit ledger and
// independently fetched ground truth. Every function returns a score and,
// when the score is zero, an error naming the failed check.
package verify

import (
	"context"
	"errors"
	"fmt"

	"github.com/papercomputeco/vectorvault/pkg/content"
	"github.com/papercomputeco/vectorvault/pkg/embeddings"
	"github.com/papercomputeco/vectorvault/pkg/ledger"
	"github.com/papercomputeco/vectorvault/pkg/protocol"
	"github.com/papercomputeco/vectorvault/pkg/search"
	"github.com/papercomputeco/vectorvault/pkg/vault"
)

// ErrMismatch is returned when echoed identifiers or names differ from what
// was requested.
var ErrMismatch = errors.New("identifier mismatch")

// ErrSubstituted is returned when a read claims text that differs from the
// ground truth of the vector it names.
var ErrSubstituted = errors.New("content substituted")

// Create checks a create response. refs are the source refs of the submitted
// texts in submission order. entries is the operator's ledger before the
// create is recorded.
func Create(req protocol.CreateRequest, resp *protocol.CreateResponse, refs []string, entries []*ledger.Entry) (float64, error) {
	if resp == nil || resp.VectorIDs == nil {
		return 0, fmt.Errorf("%w: missing create response", vault.ErrMalformed)
	}
	if resp.TenantID < 1 || resp.OrganizationID < 1 || resp.NamespaceID < 1 {
		return 0, fmt.Errorf("%w: create echoed %s", vault.ErrMalformed, resp.IDs)
	}

	for _, e := range entries {
		if e.TenantID == resp.TenantID && e.TenantName != req.TenantName {
			return 0, fmt.Errorf("%w: tenant %d is %q in the ledger, requested %q",
				ErrMismatch, resp.TenantID, e.TenantName, req.TenantName)
		}
		if e.OrganizationID == resp.OrganizationID &&
			(e.OrganizationName != req.OrganizationName || e.TenantID != resp.TenantID) {
			return 0, fmt.Errorf("%w: organization %d is %q in the ledger, requested %q",
				ErrMismatch, resp.OrganizationID, e.OrganizationName, req.OrganizationName)
		}
		if e.NamespaceID == resp.NamespaceID {
			return 0, fmt.Errorf("%w: namespace %d already recorded", vault.ErrConflict, resp.NamespaceID)
		}
	}

	if err := checkPages(refs, resp.VectorIDs); err != nil {
		return 0, err
	}
	return 1, nil
}

// Update checks an update response against the targeted triple.
func Update(resp *protocol.UpdateResponse, expected protocol.IDs, refs []string) (float64, error) {
	if resp == nil || resp.VectorIDs == nil {
		return 0, fmt.Errorf("%w: missing update response", vault.ErrMalformed)
	}
	if resp.IDs != expected {
		return 0, fmt.Errorf("%w: echoed %s, targeted %s", ErrMismatch, resp.IDs, expected)
	}
	if err := checkPages(refs, resp.VectorIDs); err != nil {
		return 0, err
	}
	return 1, nil
}

// Delete checks a delete response against the targeted triple.
func Delete(resp *protocol.DeleteResponse, expected protocol.IDs) (float64, error) {
	if resp == nil {
		return 0, fmt.Errorf("%w: missing delete response", vault.ErrMalformed)
	}
	if resp.IDs != expected {
		return 0, fmt.Errorf("%w: echoed %s, targeted %s", ErrMismatch, resp.IDs, expected)
	}
	return 1, nil
}

// ReadInput bundles what Read needs besides the response.
type ReadInput struct {
	// Entry is the ledger entry of the namespace that was queried.
	Entry *ledger.Entry

	// Original is the seeded text the paraphrased query was derived from.
	Original string

	// GroundTruth re-fetches the text of a source ref.
	GroundTruth content.Fetcher

	// Embedder embeds texts for the similarity fallback.
	Embedder embeddings.Embedder
}

// Read scores a read response in [0, 1]. The returned vector id must be in
// the entry's page map and the returned text must equal the re-fetched
// ground truth of its source ref. An exact match of the original scores 1;
// otherwise the score is the cosine similarity of the two texts' embeddings.
func Read(ctx context.Context, resp *protocol.ReadResponse, in ReadInput) (float64, error) {
	if resp == nil {
		return 0, fmt.Errorf("%w: missing read response", vault.ErrMalformed)
	}
	if in.Entry == nil {
		return 0, fmt.Errorf("%w: no ledger entry for the read target", vault.ErrUnverifiable)
	}

	ref, ok := in.Entry.Pages.SourceRef(resp.VectorID)
	if !ok {
		return 0, fmt.Errorf("%w: vector %d is not in the page map of namespace %d",
			vault.ErrUnverifiable, resp.VectorID, in.Entry.NamespaceID)
	}

	truth, err := in.GroundTruth.Fetch(ctx, ref)
	if err != nil {
		return 0, fmt.Errorf("fetching ground truth for %s: %w", ref, err)
	}
	if resp.Text != truth {
		return 0, fmt.Errorf("%w: vector %d (%s)", ErrSubstituted, resp.VectorID, ref)
	}

	if resp.IDs != in.Entry.IDs() {
		return 0, fmt.Errorf("%w: echoed %s, queried %s", ErrMismatch, resp.IDs, in.Entry.IDs())
	}

	if resp.Text == in.Original {
		return 1, nil
	}

	original, err := in.Embedder.Embed(ctx, in.Original)
	if err != nil {
		return 0, fmt.Errorf("embedding original: %w", err)
	}
	returned, err := in.Embedder.Embed(ctx, resp.Text)
	if err != nil {
		return 0, fmt.Errorf("embedding response: %w", err)
	}
	return clamp(search.Cosine(original, returned)), nil
}

func checkPages(refs []string, ids []int64) error {
	pages, err := ledger.Zip(refs, ids)
	if err != nil {
		return err
	}
	for _, p := range pages {
		if p.VectorID < 1 {
			return fmt.Errorf("%w: vector id %d", vault.ErrMalformed, p.VectorID)
		}
	}
	if err := ledger.NewPageMap().Add(pages...); err != nil {
		return fmt.Errorf("%w: %w", vault.ErrMalformed, err)
	}
	return nil
}

func clamp(s float64) float64 {
	return max(0, min(1, s))
}
