package coordinator

import (
	"context"

	"github.com/papercomputeco/vectorvault/pkg/protocol"
)

// Operator is the coordinator's view of one remote operator. The transport
// client implements it; tests substitute in-process operators.
type Operator interface {
	// Endpoint identifies the operator. It keys the operator's ledger.
	Endpoint() string

	Create(ctx context.Context, req protocol.CreateRequest) (*protocol.CreateResponse, error)
	Read(ctx context.Context, req protocol.ReadRequest) (*protocol.ReadResponse, error)
	Update(ctx context.Context, req protocol.UpdateRequest) (*protocol.UpdateResponse, error)
	Delete(ctx context.Context, req protocol.DeleteRequest) (*protocol.DeleteResponse, error)
}
