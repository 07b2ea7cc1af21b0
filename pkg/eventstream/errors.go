package eventstream

import "errors"

var (
	// ErrNilCycleEvent indicates a nil cycle event payload was provided to a publisher.
	ErrNilCycleEvent = errors.New("nil cycle event")

	// ErrInvalidCycleEvent is returned for an envelope a consumer could not
	// route: unknown schema or type, or no event or operator id.
	ErrInvalidCycleEvent = errors.New("invalid cycle event")
)
