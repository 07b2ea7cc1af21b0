// Package vault holds the error taxonomy shared by operators and the
// coordinator. Every failure that crosses a package boundary wraps one of
// these sentinels so callers can classify it with errors.Is.
package vault

import "errors"

var (
	// ErrNotFound is returned when a referenced tenant, organization,
	// namespace or vector does not exist.
	ErrNotFound = errors.New("not found")

	// ErrMalformed is returned when a response has the wrong arity or types.
	ErrMalformed = errors.New("malformed response")

	// ErrConflict is returned when a namespace triple already exists.
	ErrConflict = errors.New("conflict")

	// ErrTimeout is returned when an operation misses its deadline.
	ErrTimeout = errors.New("timeout")

	// ErrUnverifiable is returned when a read references a vector id the
	// coordinator never recorded.
	ErrUnverifiable = errors.New("unverifiable")

	// ErrInvalidRequest is returned when a request fails validation.
	ErrInvalidRequest = errors.New("invalid request")
)
