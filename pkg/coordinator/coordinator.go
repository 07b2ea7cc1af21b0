// Package coordinator drives audit cycles against a population of operators.
// Each round runs one cycle per operator concurrently; cycles share nothing
// but the storage counter.
package coordinator

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/papercomputeco/vectorvault/pkg/eventstream"
	"github.com/papercomputeco/vectorvault/pkg/logger"
	"github.com/papercomputeco/vectorvault/pkg/metrics"
)

// StorageCounter accumulates the storage estimate of every operator audited
// in a round.
type StorageCounter struct {
	n atomic.Int64
}

// Add adds bytes and returns the new total.
func (s *StorageCounter) Add(bytes int64) int64 {
	return s.n.Add(bytes)
}

// Load returns the current total.
func (s *StorageCounter) Load() int64 {
	return s.n.Load()
}

// Config configures a Coordinator.
type Config struct {
	Runner    *Runner
	Operators []Operator

	// Interval is the pause between rounds.
	Interval time.Duration

	// Concurrency caps the cycles running at once. Zero runs every operator
	// at once.
	Concurrency int

	Logger *slog.Logger
}

// Coordinator schedules rounds of audit cycles.
type Coordinator struct {
	runner      *Runner
	operators   []Operator
	interval    time.Duration
	concurrency int
	logger      *slog.Logger
}

// New creates a Coordinator.
func New(c Config) *Coordinator {
	log := c.Logger
	if log == nil {
		log = logger.Nop()
	}
	return &Coordinator{
		runner:      c.Runner,
		operators:   c.Operators,
		interval:    c.Interval,
		concurrency: c.Concurrency,
		logger:      log,
	}
}

// Round is the outcome of one round.
type Round struct {
	Reports      []*eventstream.CycleReport
	StorageBytes int64
	Failed       int
}

// RunRound runs one cycle per operator concurrently. A cycle that fails for
// a coordinator-side reason is logged and counted in Failed; it does not stop
// the others. RunRound only fails when ctx ends.
func (c *Coordinator) RunRound(ctx context.Context) (*Round, error) {
	var (
		storage StorageCounter
		reports = make([]*eventstream.CycleReport, len(c.operators))
		failed  atomic.Int64
	)

	g, gctx := errgroup.WithContext(ctx)
	if c.concurrency > 0 {
		g.SetLimit(c.concurrency)
	}

	for i, op := range c.operators {
		g.Go(func() error {
			report, err := c.runner.RunCycle(gctx, op, &storage)
			if err != nil {
				// Only the end of the round's own context stops the round;
				// a deadline inside some client is this cycle's problem.
				if ctx.Err() != nil {
					return ctx.Err()
				}
				failed.Add(1)
				c.logger.Error("cycle aborted", "operator", op.Endpoint(), "error", err)
				return nil
			}
			reports[i] = report
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	round := &Round{StorageBytes: storage.Load(), Failed: int(failed.Load())}
	for _, r := range reports {
		if r != nil {
			round.Reports = append(round.Reports, r)
		}
	}
	metrics.SetAccountedStorage(round.StorageBytes)

	c.logger.Info("round complete",
		"operators", len(c.operators),
		"completed", len(round.Reports),
		"failed", round.Failed,
		"storage_bytes", round.StorageBytes,
	)
	return round, nil
}

// Run runs rounds until ctx is cancelled, pausing Interval between them.
func (c *Coordinator) Run(ctx context.Context) error {
	c.logger.Info("starting coordinator",
		"operators", len(c.operators),
		"interval", c.interval.String(),
	)

	for {
		if _, err := c.RunRound(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(c.interval):
		}
	}
}
