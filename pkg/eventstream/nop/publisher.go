// Package nop provides the publisher used when no event backend is
// configured. Events are validated and dropped.
package nop

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/papercomputeco/vectorvault/pkg/eventstream"
	"github.com/papercomputeco/vectorvault/pkg/logger"
)

// Publisher discards cycle events, logging each at debug level.
type Publisher struct {
	logger    *slog.Logger
	discarded atomic.Int64
}

// NewPublisher creates a discarding publisher. A nil logger logs nothing.
func NewPublisher(log *slog.Logger) *Publisher {
	if log == nil {
		log = logger.Nop()
	}
	return &Publisher{logger: log}
}

// PublishCycle validates event and drops it.
func (p *Publisher) PublishCycle(_ context.Context, event *eventstream.CycleCompletedEvent) error {
	if err := event.Validate(); err != nil {
		return err
	}

	p.discarded.Add(1)
	p.logger.Debug("discarding cycle event",
		"event_id", event.EventID,
		"operator", event.Report.OperatorID,
		"reward", event.Report.Reward,
	)
	return nil
}

// Discarded returns the number of valid events dropped so far.
func (p *Publisher) Discarded() int64 {
	return p.discarded.Load()
}

func (p *Publisher) Close() error {
	return nil
}

var _ eventstream.Publisher = (*Publisher)(nil)
