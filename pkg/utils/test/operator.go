package testutils

import (
	"context"
	"sync"

	"github.com/papercomputeco/vectorvault/pkg/operator"
	"github.com/papercomputeco/vectorvault/pkg/protocol"
	"github.com/papercomputeco/vectorvault/pkg/storage/inmemory"
)

// NewMemoryStores returns a store provider backed by one in-memory driver per
// identity. Drivers outlive their stores so data survives release.
func NewMemoryStores() *operator.Stores {
	var mu sync.Mutex
	drivers := map[string]*inmemory.Driver{}
	return operator.NewStores(func(_ context.Context, identity string) (*operator.Store, error) {
		mu.Lock()
		defer mu.Unlock()
		d, ok := drivers[identity]
		if !ok {
			d = inmemory.NewDriver()
			drivers[identity] = d
		}
		return operator.NewStore(identity, d, nil), nil
	})
}

// LocalOperator serves coordinator requests from an in-process engine and
// store, without a transport.
type LocalOperator struct {
	Name   string
	Engine *operator.Engine
	Store  *operator.Store
}

func (o *LocalOperator) Endpoint() string {
	return o.Name
}

func (o *LocalOperator) Create(ctx context.Context, req protocol.CreateRequest) (*protocol.CreateResponse, error) {
	return o.Engine.Create(ctx, o.Store, req)
}

func (o *LocalOperator) Read(ctx context.Context, req protocol.ReadRequest) (*protocol.ReadResponse, error) {
	return o.Engine.Read(ctx, o.Store, req)
}

func (o *LocalOperator) Update(ctx context.Context, req protocol.UpdateRequest) (*protocol.UpdateResponse, error) {
	return o.Engine.Update(ctx, o.Store, req)
}

func (o *LocalOperator) Delete(ctx context.Context, req protocol.DeleteRequest) (*protocol.DeleteResponse, error) {
	return o.Engine.Delete(ctx, o.Store, req)
}

// OperatorAPI is the request surface a ScriptedOperator wraps.
type OperatorAPI interface {
	Endpoint() string
	Create(ctx context.Context, req protocol.CreateRequest) (*protocol.CreateResponse, error)
	Read(ctx context.Context, req protocol.ReadRequest) (*protocol.ReadResponse, error)
	Update(ctx context.Context, req protocol.UpdateRequest) (*protocol.UpdateResponse, error)
	Delete(ctx context.Context, req protocol.DeleteRequest) (*protocol.DeleteResponse, error)
}

// ScriptedOperator forwards to Inner unless a hook is set for the operation.
// Hooks receive Inner so they can tamper with a real response.
type ScriptedOperator struct {
	Inner OperatorAPI

	OnCreate func(ctx context.Context, inner OperatorAPI, req protocol.CreateRequest) (*protocol.CreateResponse, error)
	OnRead   func(ctx context.Context, inner OperatorAPI, req protocol.ReadRequest) (*protocol.ReadResponse, error)
	OnUpdate func(ctx context.Context, inner OperatorAPI, req protocol.UpdateRequest) (*protocol.UpdateResponse, error)
	OnDelete func(ctx context.Context, inner OperatorAPI, req protocol.DeleteRequest) (*protocol.DeleteResponse, error)

	mu    sync.Mutex
	calls []protocol.OpKind
}

// Calls returns the operations received so far, in order.
func (s *ScriptedOperator) Calls() []protocol.OpKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]protocol.OpKind(nil), s.calls...)
}

func (s *ScriptedOperator) called(kind protocol.OpKind) {
	s.mu.Lock()
	s.calls = append(s.calls, kind)
	s.mu.Unlock()
}

func (s *ScriptedOperator) Endpoint() string {
	return s.Inner.Endpoint()
}

func (s *ScriptedOperator) Create(ctx context.Context, req protocol.CreateRequest) (*protocol.CreateResponse, error) {
	s.called(protocol.OpCreate)
	if s.OnCreate != nil {
		return s.OnCreate(ctx, s.Inner, req)
	}
	return s.Inner.Create(ctx, req)
}

func (s *ScriptedOperator) Read(ctx context.Context, req protocol.ReadRequest) (*protocol.ReadResponse, error) {
	s.called(protocol.OpRead)
	if s.OnRead != nil {
		return s.OnRead(ctx, s.Inner, req)
	}
	return s.Inner.Read(ctx, req)
}

func (s *ScriptedOperator) Update(ctx context.Context, req protocol.UpdateRequest) (*protocol.UpdateResponse, error) {
	s.called(protocol.OpUpdate)
	if s.OnUpdate != nil {
		return s.OnUpdate(ctx, s.Inner, req)
	}
	return s.Inner.Update(ctx, req)
}

func (s *ScriptedOperator) Delete(ctx context.Context, req protocol.DeleteRequest) (*protocol.DeleteResponse, error) {
	s.called(protocol.OpDelete)
	if s.OnDelete != nil {
		return s.OnDelete(ctx, s.Inner, req)
	}
	return s.Inner.Delete(ctx, req)
}
