package eventstream

import "context"

// Publisher publishes cycle reports to an event stream backend.
type Publisher interface {
	PublishCycle(ctx context.Context, event *CycleCompletedEvent) error
	Close() error
}
