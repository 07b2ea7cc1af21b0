package vector

import "errors"

var (
	// ErrConnection is returned when the vector store connection fails.
	ErrConnection = errors.New("vector store connection failed")

	// ErrDimensions is returned when an embedding has the wrong length.
	ErrDimensions = errors.New("embedding dimensions mismatch")
)
