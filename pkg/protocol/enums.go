package protocol

import (
	"fmt"
	"strings"
)

// OpKind enumerates the four CRUD operations.
type OpKind int

const (
	OpCreate OpKind = iota + 1
	OpRead
	OpUpdate
	OpDelete
)

// OpKinds lists every operation kind in cycle order.
var OpKinds = []OpKind{OpCreate, OpUpdate, OpDelete, OpRead}

func (k OpKind) String() string {
	switch k {
	case OpCreate:
		return "create"
	case OpRead:
		return "read"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	}
	return fmt.Sprintf("OpKind(%d)", int(k))
}

func (k OpKind) MarshalText() ([]byte, error) {
	if k < OpCreate || k > OpDelete {
		return nil, fmt.Errorf("unknown operation kind %d", int(k))
	}
	return []byte(k.String()), nil
}

func (k *OpKind) UnmarshalText(b []byte) error {
	switch strings.ToLower(string(b)) {
	case "create":
		*k = OpCreate
	case "read":
		*k = OpRead
	case "update":
		*k = OpUpdate
	case "delete":
		*k = OpDelete
	default:
		return fmt.Errorf("unknown operation kind %q", string(b))
	}
	return nil
}

// UpdateMode selects how an update applies its texts to a namespace.
type UpdateMode int

const (
	// UpdateAdd appends the texts as new vectors.
	UpdateAdd UpdateMode = iota + 1

	// UpdateReplace removes every vector of the namespace, then inserts the
	// texts.
	UpdateReplace
)

func (m UpdateMode) String() string {
	switch m {
	case UpdateAdd:
		return "ADD"
	case UpdateReplace:
		return "REPLACE"
	}
	return fmt.Sprintf("UpdateMode(%d)", int(m))
}

func (m UpdateMode) MarshalText() ([]byte, error) {
	if m != UpdateAdd && m != UpdateReplace {
		return nil, fmt.Errorf("unknown update mode %d", int(m))
	}
	return []byte(m.String()), nil
}

func (m *UpdateMode) UnmarshalText(b []byte) error {
	switch strings.ToUpper(string(b)) {
	case "ADD":
		*m = UpdateAdd
	case "REPLACE":
		*m = UpdateReplace
	default:
		return fmt.Errorf("unknown update mode %q", string(b))
	}
	return nil
}

// DeleteScope selects which level of the hierarchy a delete removes.
type DeleteScope int

const (
	ScopeTenant DeleteScope = iota + 1
	ScopeOrganization
	ScopeNamespace
)

func (s DeleteScope) String() string {
	switch s {
	case ScopeTenant:
		return "tenant"
	case ScopeOrganization:
		return "organization"
	case ScopeNamespace:
		return "namespace"
	}
	return fmt.Sprintf("DeleteScope(%d)", int(s))
}

func (s DeleteScope) MarshalText() ([]byte, error) {
	if s < ScopeTenant || s > ScopeNamespace {
		return nil, fmt.Errorf("unknown delete scope %d", int(s))
	}
	return []byte(s.String()), nil
}

func (s *DeleteScope) UnmarshalText(b []byte) error {
	switch strings.ToLower(string(b)) {
	case "tenant", "user":
		*s = ScopeTenant
	case "organization":
		*s = ScopeOrganization
	case "namespace":
		*s = ScopeNamespace
	default:
		return fmt.Errorf("unknown delete scope %q", string(b))
	}
	return nil
}
