package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/papercomputeco/vectorvault/pkg/embeddings"
	"github.com/papercomputeco/vectorvault/pkg/eventstream"
	"github.com/papercomputeco/vectorvault/pkg/ledger"
	"github.com/papercomputeco/vectorvault/pkg/logger"
	"github.com/papercomputeco/vectorvault/pkg/metrics"
	"github.com/papercomputeco/vectorvault/pkg/protocol"
	"github.com/papercomputeco/vectorvault/pkg/reward"
	"github.com/papercomputeco/vectorvault/pkg/vault"
	"github.com/papercomputeco/vectorvault/pkg/verify"
)

// Default per-operation deadlines.
const (
	DefaultCreateTimeout = 10 * time.Second
	DefaultUpdateTimeout = 20 * time.Second
	DefaultDeleteTimeout = 5 * time.Second
	DefaultReadTimeout   = 5 * time.Second

	DefaultUpdates           = 3
	DefaultDeleteProbability = 0.3
)

// Timeouts bounds each operation of a cycle. Zero values use the defaults.
type Timeouts struct {
	Create time.Duration
	Update time.Duration
	Delete time.Duration
	Read   time.Duration
}

func (t Timeouts) withDefaults() Timeouts {
	if t.Create <= 0 {
		t.Create = DefaultCreateTimeout
	}
	if t.Update <= 0 {
		t.Update = DefaultUpdateTimeout
	}
	if t.Delete <= 0 {
		t.Delete = DefaultDeleteTimeout
	}
	if t.Read <= 0 {
		t.Read = DefaultReadTimeout
	}
	return t
}

// RunnerConfig configures a Runner.
type RunnerConfig struct {
	// Identity names this coordinator in published events.
	Identity string

	Ledger    ledger.Driver
	Generator *Generator
	Embedder  embeddings.Embedder
	Publisher eventstream.Publisher

	Timeouts Timeouts

	// Updates is the number of updates per cycle.
	Updates int

	// DeleteProbability is the chance the single delete draw of a cycle
	// issues a delete.
	DeleteProbability float64

	// OperationsPerSec paces the operations of one cycle. Zero disables
	// pacing.
	OperationsPerSec float64

	Seed   uint64
	Logger *slog.Logger
}

// Runner executes audit cycles against operators.
type Runner struct {
	identity  string
	ledger    ledger.Driver
	generator *Generator
	embedder  embeddings.Embedder
	publisher eventstream.Publisher
	timeouts  Timeouts
	updates   int
	deleteP   float64
	pace      rate.Limit
	logger    *slog.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// NewRunner creates a Runner.
func NewRunner(c RunnerConfig) *Runner {
	log := c.Logger
	if log == nil {
		log = logger.Nop()
	}

	pace := rate.Inf
	if c.OperationsPerSec > 0 {
		pace = rate.Limit(c.OperationsPerSec)
	}

	updates := c.Updates
	if updates < 0 {
		updates = 0
	}

	return &Runner{
		identity:  c.Identity,
		ledger:    c.Ledger,
		generator: c.Generator,
		embedder:  c.Embedder,
		publisher: c.Publisher,
		timeouts:  c.Timeouts.withDefaults(),
		updates:   updates,
		deleteP:   c.DeleteProbability,
		pace:      pace,
		logger:    log,
		rng:       rand.New(rand.NewPCG(c.Seed, c.Seed^0x94d049bb133111eb)),
	}
}

// cycle holds the state of one operator's cycle.
type cycle struct {
	op      Operator
	log     *slog.Logger
	limiter *rate.Limiter
	scores  reward.Scores
	records []eventstream.OperationRecord
}

func (c *cycle) record(kind protocol.OpKind, score float64, err error, elapsed time.Duration) {
	rec := eventstream.OperationRecord{
		Kind:      kind,
		Success:   score > 0,
		Score:     score,
		Timestamp: time.Now().UTC(),
	}

	result := metrics.ResultSuccess
	switch {
	case errors.Is(err, vault.ErrTimeout):
		result = metrics.ResultTimeout
	case score == 0:
		result = metrics.ResultFailure
	}
	if err != nil {
		rec.Error = err.Error()
	}
	metrics.ObserveOperation(kind.String(), result, elapsed)

	c.records = append(c.records, rec)
	if err != nil {
		c.log.Warn("operation failed", "kind", kind.String(), "error", err)
	} else {
		c.log.Debug("operation scored", "kind", kind.String(), "score", score)
	}
}

// fail records kind as a failed operation that never reached the operator,
// e.g. because its task could not be generated.
func (c *cycle) fail(kind protocol.OpKind, err error) {
	c.record(kind, 0, err, 0)
}

// RunCycle runs create, the updates, the delete draw and a read against op,
// scores them and folds the reward. The operator's ledger storage estimate is
// added to storage.
//
// A failure while preparing or checking one operation scores that operation
// zero and the cycle goes on. RunCycle only returns an error when ctx ends or
// the ledger cannot close the cycle.
func (r *Runner) RunCycle(ctx context.Context, op Operator, storage *StorageCounter) (*eventstream.CycleReport, error) {
	c := &cycle{
		op:      op,
		log:     r.logger.With("operator", op.Endpoint()),
		limiter: rate.NewLimiter(r.pace, 1),
	}
	c.log.Info("starting cycle")

	if err := r.create(ctx, c); err != nil {
		return nil, err
	}

	for range r.updates {
		if err := r.update(ctx, c); err != nil {
			return nil, err
		}
	}

	if r.drawDelete() {
		if err := r.delete(ctx, c); err != nil {
			return nil, err
		}
	} else {
		c.scores.Delete = reward.Score(1)
	}

	if err := r.read(ctx, c); err != nil {
		return nil, err
	}

	return r.finish(ctx, c, storage)
}

func (r *Runner) drawDelete() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.Float64() < r.deleteP
}

func (r *Runner) wait(ctx context.Context, c *cycle) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("pacing cycle: %w", err)
	}
	return nil
}

// call runs fn under a deadline and converts a missed deadline into
// vault.ErrTimeout.
func call[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, time.Duration, error) {
	opCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	resp, err := fn(opCtx)
	elapsed := time.Since(start)
	if err != nil && !errors.Is(err, vault.ErrTimeout) &&
		errors.Is(opCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		err = fmt.Errorf("%w: %w", vault.ErrTimeout, err)
	}
	return resp, elapsed, err
}

func (r *Runner) create(ctx context.Context, c *cycle) error {
	operator := c.op.Endpoint()

	task, err := r.generator.CreateTask(ctx, operator)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.scores.Create = reward.Score(0)
		c.fail(protocol.OpCreate, fmt.Errorf("generating create: %w", err))
		return nil
	}
	before, err := r.ledger.Entries(ctx, operator)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.scores.Create = reward.Score(0)
		c.fail(protocol.OpCreate, fmt.Errorf("loading ledger: %w", err))
		return nil
	}
	if err := r.wait(ctx, c); err != nil {
		return err
	}

	resp, elapsed, err := call(ctx, r.timeouts.Create, func(ctx context.Context) (*protocol.CreateResponse, error) {
		return c.op.Create(ctx, task.Request)
	})
	if ctx.Err() != nil {
		return ctx.Err()
	}

	score := 0.0
	if err == nil {
		score, err = verify.Create(task.Request, resp, task.Batch.Refs, before)
	}
	if score > 0 {
		err = r.recordCreate(ctx, operator, task, resp)
		if err != nil {
			score = 0
		}
	}

	c.scores.Create = reward.Score(score)
	c.record(protocol.OpCreate, score, err, elapsed)
	return nil
}

func (r *Runner) recordCreate(ctx context.Context, operator string, task *CreateTask, resp *protocol.CreateResponse) error {
	pages, err := ledger.Zip(task.Batch.Refs, resp.VectorIDs)
	if err != nil {
		return err
	}
	pm := ledger.NewPageMap()
	if err := pm.Add(pages...); err != nil {
		return err
	}

	return r.ledger.RecordCreate(ctx, operator, &ledger.Entry{
		TenantID:         resp.TenantID,
		OrganizationID:   resp.OrganizationID,
		NamespaceID:      resp.NamespaceID,
		TenantName:       task.Request.TenantName,
		OrganizationName: task.Request.OrganizationName,
		NamespaceName:    task.Request.NamespaceName,
		Category:         task.Batch.Category,
		Pages:            pm,
		StorageSizeBytes: task.Batch.Bytes(),
	})
}

func (r *Runner) update(ctx context.Context, c *cycle) error {
	operator := c.op.Endpoint()

	task, err := r.generator.UpdateTask(ctx, operator)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.scores.Updates = append(c.scores.Updates, 0)
		c.fail(protocol.OpUpdate, fmt.Errorf("generating update: %w", err))
		return nil
	}
	if task == nil {
		// Nothing recorded to update counts as a failed update.
		c.scores.Updates = append(c.scores.Updates, 0)
		c.log.Debug("no namespace to update")
		return nil
	}
	if err := r.wait(ctx, c); err != nil {
		return err
	}

	resp, elapsed, err := call(ctx, r.timeouts.Update, func(ctx context.Context) (*protocol.UpdateResponse, error) {
		return c.op.Update(ctx, task.Request)
	})
	if ctx.Err() != nil {
		return ctx.Err()
	}

	score := 0.0
	if err == nil {
		score, err = verify.Update(resp, task.Entry.IDs(), task.Batch.Refs)
	}
	if score > 0 {
		err = r.recordUpdate(ctx, operator, task, resp)
		if err != nil {
			score = 0
		}
	}

	c.scores.Updates = append(c.scores.Updates, score)
	c.record(protocol.OpUpdate, score, err, elapsed)
	return nil
}

func (r *Runner) recordUpdate(ctx context.Context, operator string, task *UpdateTask, resp *protocol.UpdateResponse) error {
	pages, err := ledger.Zip(task.Batch.Refs, resp.VectorIDs)
	if err != nil {
		return err
	}

	nsID := task.Entry.NamespaceID
	if task.Request.Mode == protocol.UpdateReplace {
		return r.ledger.RecordReplace(ctx, operator, nsID, pages, task.Batch.Bytes())
	}
	return r.ledger.RecordUpdate(ctx, operator, nsID, pages, task.Batch.Bytes())
}

func (r *Runner) delete(ctx context.Context, c *cycle) error {
	operator := c.op.Endpoint()

	task, err := r.generator.DeleteTask(ctx, operator)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.scores.Delete = reward.Score(0)
		c.fail(protocol.OpDelete, fmt.Errorf("generating delete: %w", err))
		return nil
	}
	if task == nil {
		// The delete was drawn but there is nothing recorded to delete.
		c.scores.Delete = reward.Score(0)
		c.log.Debug("no namespace to delete")
		return nil
	}
	if err := r.wait(ctx, c); err != nil {
		return err
	}

	resp, elapsed, err := call(ctx, r.timeouts.Delete, func(ctx context.Context) (*protocol.DeleteResponse, error) {
		return c.op.Delete(ctx, task.Request)
	})
	if ctx.Err() != nil {
		return ctx.Err()
	}

	score := 0.0
	if err == nil {
		score, err = verify.Delete(resp, task.Entry.IDs())
	}
	if score > 0 {
		_, err = r.ledger.RecordDelete(ctx, operator, protocol.ScopeNamespace, task.Entry.IDs())
		if err != nil {
			score = 0
		}
	}

	c.scores.Delete = reward.Score(score)
	c.record(protocol.OpDelete, score, err, elapsed)
	return nil
}

func (r *Runner) read(ctx context.Context, c *cycle) error {
	operator := c.op.Endpoint()

	task, err := r.generator.ReadTask(ctx, operator)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.scores.Read = reward.Score(0)
		c.fail(protocol.OpRead, fmt.Errorf("generating read: %w", err))
		return nil
	}
	if task == nil {
		c.log.Debug("no page to read")
		return nil
	}
	if err := r.wait(ctx, c); err != nil {
		return err
	}

	resp, elapsed, err := call(ctx, r.timeouts.Read, func(ctx context.Context) (*protocol.ReadResponse, error) {
		return c.op.Read(ctx, task.Request)
	})
	if ctx.Err() != nil {
		return ctx.Err()
	}

	score := 0.0
	if err == nil {
		score, err = verify.Read(ctx, resp, verify.ReadInput{
			Entry:       task.Entry,
			Original:    task.Original,
			GroundTruth: r.generator.GroundTruth(),
			Embedder:    r.embedder,
		})
	}

	c.scores.Read = reward.Score(score)
	c.record(protocol.OpRead, score, err, elapsed)
	return nil
}

func (r *Runner) finish(ctx context.Context, c *cycle, storage *StorageCounter) (*eventstream.CycleReport, error) {
	operator := c.op.Endpoint()

	total, err := r.ledger.TotalStorageBytes(ctx, operator)
	if err != nil {
		return nil, err
	}
	storage.Add(total)

	cycles, err := r.ledger.IncrementCycles(ctx, operator)
	if err != nil {
		return nil, err
	}

	tier := reward.TierFor(cycles)
	report := &eventstream.CycleReport{
		OperatorID:        operator,
		Operations:        c.records,
		Reward:            reward.Fold(c.scores, tier.Weight),
		Weight:            tier.Weight,
		Tier:              tier.Name,
		PassedCycles:      cycles,
		TotalStorageBytes: total,
	}
	metrics.ObserveReward(report.Reward)

	c.log.Info("cycle complete",
		"reward", report.Reward,
		"tier", tier.Name,
		"passed_cycles", cycles,
		"storage_bytes", total,
	)

	if r.publisher != nil {
		event := eventstream.NewCycleCompletedEvent(eventstream.EventSource{
			Coordinator: r.identity,
			Version:     protocol.CurrentVersion.String(),
		}, *report, time.Now())
		if err := r.publisher.PublishCycle(ctx, event); err != nil {
			c.log.Error("failed to publish cycle report", "error", err)
		}
	}
	return report, nil
}
