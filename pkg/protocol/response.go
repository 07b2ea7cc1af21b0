package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/papercomputeco/vectorvault/pkg/vault"
)

// Responses travel as fixed-arity JSON arrays. Decoding a tuple of the wrong
// length, with an element of the wrong type, with a null element or with an
// id below 1 fails with vault.ErrMalformed. Delete responses echo zero for
// the levels below the deleted scope; every other id is at least 1.

// Arity of each response tuple.
const (
	CreateArity = 4
	ReadArity   = 5
	UpdateArity = 4
	DeleteArity = 3
)

// IDs is the (tenant, organization, namespace) triple echoed by operators.
type IDs struct {
	TenantID       int64
	OrganizationID int64
	NamespaceID    int64
}

func (ids IDs) String() string {
	return fmt.Sprintf("(%d,%d,%d)", ids.TenantID, ids.OrganizationID, ids.NamespaceID)
}

// CreateResponse is (tenant_id, organization_id, namespace_id, [vector_id]).
type CreateResponse struct {
	IDs
	VectorIDs []int64
}

// ReadResponse is (tenant_id, organization_id, namespace_id, vector_id, text).
type ReadResponse struct {
	IDs
	VectorID int64
	Text     string
}

// UpdateResponse is (tenant_id, organization_id, namespace_id, [vector_id]).
type UpdateResponse struct {
	IDs
	VectorIDs []int64
}

// DeleteResponse is (tenant_id, organization_id, namespace_id).
type DeleteResponse struct {
	IDs
}

func (r CreateResponse) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{r.TenantID, r.OrganizationID, r.NamespaceID, nonNil(r.VectorIDs)})
}

func (r *CreateResponse) UnmarshalJSON(data []byte) error {
	parts, err := splitTuple(data, CreateArity)
	if err != nil {
		return err
	}
	if r.IDs, err = decodeIDs(parts, 3); err != nil {
		return err
	}
	r.VectorIDs, err = decodeIDList(parts[3])
	return err
}

func (r ReadResponse) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{r.TenantID, r.OrganizationID, r.NamespaceID, r.VectorID, r.Text})
}

func (r *ReadResponse) UnmarshalJSON(data []byte) error {
	parts, err := splitTuple(data, ReadArity)
	if err != nil {
		return err
	}
	if r.IDs, err = decodeIDs(parts, 3); err != nil {
		return err
	}
	if r.VectorID, err = decodeID(parts[3], 1); err != nil {
		return err
	}
	if isNull(parts[4]) {
		return fmt.Errorf("%w: missing text", vault.ErrMalformed)
	}
	if err := json.Unmarshal(parts[4], &r.Text); err != nil {
		return fmt.Errorf("%w: text: %w", vault.ErrMalformed, err)
	}
	return nil
}

func (r UpdateResponse) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{r.TenantID, r.OrganizationID, r.NamespaceID, nonNil(r.VectorIDs)})
}

func (r *UpdateResponse) UnmarshalJSON(data []byte) error {
	parts, err := splitTuple(data, UpdateArity)
	if err != nil {
		return err
	}
	if r.IDs, err = decodeIDs(parts, 3); err != nil {
		return err
	}
	r.VectorIDs, err = decodeIDList(parts[3])
	return err
}

func (r DeleteResponse) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{r.TenantID, r.OrganizationID, r.NamespaceID})
}

func (r *DeleteResponse) UnmarshalJSON(data []byte) error {
	parts, err := splitTuple(data, DeleteArity)
	if err != nil {
		return err
	}
	r.IDs, err = decodeIDs(parts, 1)
	return err
}

func splitTuple(data []byte, arity int) ([]json.RawMessage, error) {
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return nil, fmt.Errorf("%w: not a tuple: %w", vault.ErrMalformed, err)
	}
	if len(parts) != arity {
		return nil, fmt.Errorf("%w: expected %d elements, got %d", vault.ErrMalformed, arity, len(parts))
	}
	return parts, nil
}

// decodeIDs reads the leading identifier triple. The first required ids
// must be at least 1; the rest may be zero.
func decodeIDs(parts []json.RawMessage, required int) (IDs, error) {
	var triple [3]int64
	for i := range triple {
		least := int64(0)
		if i < required {
			least = 1
		}
		id, err := decodeID(parts[i], least)
		if err != nil {
			return IDs{}, err
		}
		triple[i] = id
	}
	return IDs{TenantID: triple[0], OrganizationID: triple[1], NamespaceID: triple[2]}, nil
}

func decodeID(raw json.RawMessage, least int64) (int64, error) {
	if isNull(raw) {
		return 0, fmt.Errorf("%w: null id", vault.ErrMalformed)
	}
	var id int64
	if err := json.Unmarshal(raw, &id); err != nil {
		return 0, fmt.Errorf("%w: id %s: %w", vault.ErrMalformed, string(raw), err)
	}
	if id < least {
		return 0, fmt.Errorf("%w: id %d below %d", vault.ErrMalformed, id, least)
	}
	return id, nil
}

func decodeIDList(raw json.RawMessage) ([]int64, error) {
	if isNull(raw) {
		return nil, fmt.Errorf("%w: missing vector id list", vault.ErrMalformed)
	}
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return nil, fmt.Errorf("%w: vector ids: %w", vault.ErrMalformed, err)
	}
	ids := make([]int64, len(elems))
	for i, e := range elems {
		id, err := decodeID(e, 1)
		if err != nil {
			return nil, fmt.Errorf("vector id %d: %w", i, err)
		}
		ids[i] = id
	}
	return ids, nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func nonNil(ids []int64) []int64 {
	if ids == nil {
		return []int64{}
	}
	return ids
}

// ErrorResponse is the body of every non-200 operator reply.
type ErrorResponse struct {
	Error string `json:"error"`
}
