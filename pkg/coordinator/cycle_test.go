package coordinator_test

import (
	"context"
	"errors"
	"fmt"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/vectorvault/pkg/content"
	"github.com/papercomputeco/vectorvault/pkg/coordinator"
	"github.com/papercomputeco/vectorvault/pkg/eventstream"
	"github.com/papercomputeco/vectorvault/pkg/ledger"
	"github.com/papercomputeco/vectorvault/pkg/ledger/inmemory"
	"github.com/papercomputeco/vectorvault/pkg/paraphrase"
	"github.com/papercomputeco/vectorvault/pkg/paraphrase/excerpt"
	"github.com/papercomputeco/vectorvault/pkg/protocol"
	testutils "github.com/papercomputeco/vectorvault/pkg/utils/test"
	"github.com/papercomputeco/vectorvault/pkg/vault"
)

var _ = Describe("Runner", func() {
	var (
		ctx       context.Context
		book      *inmemory.Driver
		publisher *recordingPublisher
		local     *testutils.LocalOperator
		op        *testutils.ScriptedOperator
		storage   *coordinator.StorageCounter
	)

	newRunner := func(deleteP float64, timeouts coordinator.Timeouts) *coordinator.Runner {
		gen := coordinator.NewGenerator(coordinator.GeneratorConfig{
			Source:     newSource(),
			Paraphrase: excerpt.New(1, 7),
			Ledger:     book,
			Categories: categories,
			TaskSize:   2,
			MinLen:     20,
			MaxLen:     1000,
			Seed:       3,
		})
		return coordinator.NewRunner(coordinator.RunnerConfig{
			Identity:          "coordinator",
			Ledger:            book,
			Generator:         gen,
			Embedder:          &testutils.WordEmbedder{Dimensions: 256},
			Publisher:         publisher,
			Timeouts:          timeouts,
			Updates:           coordinator.DefaultUpdates,
			DeleteProbability: deleteP,
			Seed:              11,
		})
	}

	BeforeEach(func() {
		ctx = context.Background()
		book = inmemory.NewDriver()
		publisher = &recordingPublisher{}
		local = newLocalOperator("operator-a")
		op = &testutils.ScriptedOperator{Inner: local}
		storage = &coordinator.StorageCounter{}
	})

	Context("with an honest operator", func() {
		It("scores every operation and records the namespace", func() {
			report, err := newRunner(0, coordinator.Timeouts{}).RunCycle(ctx, op, storage)
			Expect(err).NotTo(HaveOccurred())

			Expect(op.Calls()).To(Equal([]protocol.OpKind{
				protocol.OpCreate, protocol.OpUpdate, protocol.OpUpdate, protocol.OpUpdate, protocol.OpRead,
			}))
			Expect(opScores(report, protocol.OpCreate)).To(Equal([]float64{1}))
			Expect(opScores(report, protocol.OpUpdate)).To(Equal([]float64{1, 1, 1}))
			Expect(opScores(report, protocol.OpRead)).To(Equal([]float64{1}))

			Expect(report.PassedCycles).To(Equal(int64(1)))
			Expect(report.Tier).To(Equal("very_young"))
			Expect(report.Reward).To(BeNumerically("~", report.Weight, 1e-9))

			entries, err := book.Entries(ctx, "operator-a")
			Expect(err).NotTo(HaveOccurred())
			Expect(entries).To(HaveLen(1))
			Expect(entries[0].Pages.Len()).To(Equal(8))
			Expect(entries[0].Category).To(BeElementOf(categories))

			Expect(storage.Load()).To(Equal(report.TotalStorageBytes))
			Expect(report.TotalStorageBytes).To(Equal(entries[0].StorageSizeBytes))
		})

		It("publishes the cycle report", func() {
			report, err := newRunner(0, coordinator.Timeouts{}).RunCycle(ctx, op, storage)
			Expect(err).NotTo(HaveOccurred())

			events := publisher.Events()
			Expect(events).To(HaveLen(1))
			Expect(events[0].EventType).To(Equal(eventstream.EventTypeCycleCompleted))
			Expect(events[0].Report.Reward).To(Equal(report.Reward))
			Expect(events[0].Source.Coordinator).To(Equal("coordinator"))
		})

		It("accumulates passed cycles", func() {
			runner := newRunner(0, coordinator.Timeouts{})
			for range 3 {
				_, err := runner.RunCycle(ctx, op, storage)
				Expect(err).NotTo(HaveOccurred())
			}
			cycles, err := book.PassedCycles(ctx, "operator-a")
			Expect(err).NotTo(HaveOccurred())
			Expect(cycles).To(Equal(int64(3)))

			entries, err := book.Entries(ctx, "operator-a")
			Expect(err).NotTo(HaveOccurred())
			Expect(entries).To(HaveLen(3))
		})
	})

	Context("when the delete is drawn", func() {
		It("deletes the recorded namespace and never samples it again", func() {
			report, err := newRunner(1, coordinator.Timeouts{}).RunCycle(ctx, op, storage)
			Expect(err).NotTo(HaveOccurred())

			Expect(opScores(report, protocol.OpDelete)).To(Equal([]float64{1}))
			Expect(opScores(report, protocol.OpRead)).To(BeEmpty())
			Expect(report.Reward).To(BeZero())

			entries, err := book.Entries(ctx, "operator-a")
			Expect(err).NotTo(HaveOccurred())
			Expect(entries).To(BeEmpty())
		})

		It("scores zero when there is nothing to delete", func() {
			op.OnCreate = func(context.Context, testutils.OperatorAPI, protocol.CreateRequest) (*protocol.CreateResponse, error) {
				return nil, vault.ErrConflict
			}

			report, err := newRunner(1, coordinator.Timeouts{}).RunCycle(ctx, op, storage)
			Expect(err).NotTo(HaveOccurred())
			Expect(op.Calls()).To(Equal([]protocol.OpKind{protocol.OpCreate}))
			Expect(report.Reward).To(BeZero())
		})
	})

	Context("with a dishonest operator", func() {
		It("rejects a create with the wrong number of ids and records nothing", func() {
			op.OnCreate = func(ctx context.Context, inner testutils.OperatorAPI, req protocol.CreateRequest) (*protocol.CreateResponse, error) {
				resp, err := inner.Create(ctx, req)
				if err != nil {
					return nil, err
				}
				resp.VectorIDs = resp.VectorIDs[:1]
				return resp, nil
			}

			report, err := newRunner(0, coordinator.Timeouts{}).RunCycle(ctx, op, storage)
			Expect(err).NotTo(HaveOccurred())
			Expect(opScores(report, protocol.OpCreate)).To(Equal([]float64{0}))
			Expect(report.Reward).To(BeZero())

			entries, err := book.Entries(ctx, "operator-a")
			Expect(err).NotTo(HaveOccurred())
			Expect(entries).To(BeEmpty())
		})

		It("scores a substituted read zero", func() {
			op.OnRead = func(ctx context.Context, inner testutils.OperatorAPI, req protocol.ReadRequest) (*protocol.ReadResponse, error) {
				resp, err := inner.Read(ctx, req)
				if err != nil {
					return nil, err
				}
				resp.Text = "cheap fabricated text"
				return resp, nil
			}

			report, err := newRunner(0, coordinator.Timeouts{}).RunCycle(ctx, op, storage)
			Expect(err).NotTo(HaveOccurred())
			Expect(opScores(report, protocol.OpRead)).To(Equal([]float64{0}))
			Expect(report.Operations[len(report.Operations)-1].Error).To(ContainSubstring("substituted"))
			Expect(report.Reward).To(BeZero())
		})

		It("scores an unmapped vector id zero", func() {
			op.OnRead = func(ctx context.Context, inner testutils.OperatorAPI, req protocol.ReadRequest) (*protocol.ReadResponse, error) {
				resp, err := inner.Read(ctx, req)
				if err != nil {
					return nil, err
				}
				resp.VectorID = 9999
				return resp, nil
			}

			report, err := newRunner(0, coordinator.Timeouts{}).RunCycle(ctx, op, storage)
			Expect(err).NotTo(HaveOccurred())
			Expect(opScores(report, protocol.OpRead)).To(Equal([]float64{0}))
			Expect(report.Operations[len(report.Operations)-1].Error).To(ContainSubstring(vault.ErrUnverifiable.Error()))
		})

		It("halves the multiplier for a failed update", func() {
			calls := 0
			op.OnUpdate = func(ctx context.Context, inner testutils.OperatorAPI, req protocol.UpdateRequest) (*protocol.UpdateResponse, error) {
				calls++
				if calls == 2 {
					return nil, errors.New("disk full")
				}
				return inner.Update(ctx, req)
			}

			report, err := newRunner(0, coordinator.Timeouts{}).RunCycle(ctx, op, storage)
			Expect(err).NotTo(HaveOccurred())
			Expect(opScores(report, protocol.OpUpdate)).To(Equal([]float64{1, 0, 1}))

			// (0.5)^7·0.8 + (0.5)^5·0.1 + (0.5)^3·0.1
			curve := 0.8/128 + 0.1/32 + 0.1/8
			Expect(report.Reward).To(BeNumerically("~", report.Weight*curve, 1e-9))
		})
	})

	Context("with a slow operator", func() {
		It("scores a timed out read zero without retrying", func() {
			op.OnRead = func(ctx context.Context, _ testutils.OperatorAPI, _ protocol.ReadRequest) (*protocol.ReadResponse, error) {
				<-ctx.Done()
				return nil, ctx.Err()
			}

			report, err := newRunner(0, coordinator.Timeouts{Read: 20 * time.Millisecond}).RunCycle(ctx, op, storage)
			Expect(err).NotTo(HaveOccurred())

			reads := 0
			for _, k := range op.Calls() {
				if k == protocol.OpRead {
					reads++
				}
			}
			Expect(reads).To(Equal(1))

			last := report.Operations[len(report.Operations)-1]
			Expect(last.Kind).To(Equal(protocol.OpRead))
			Expect(last.Success).To(BeFalse())
			Expect(last.Error).To(ContainSubstring(vault.ErrTimeout.Error()))
		})
	})

	Context("when a coordinator-side collaborator fails", func() {
		runnerWith := func(source content.Source, para paraphrase.Generator) *coordinator.Runner {
			gen := coordinator.NewGenerator(coordinator.GeneratorConfig{
				Source:     source,
				Paraphrase: para,
				Ledger:     book,
				Categories: categories,
				TaskSize:   2,
				MinLen:     20,
				MaxLen:     1000,
				Seed:       3,
			})
			return coordinator.NewRunner(coordinator.RunnerConfig{
				Identity:  "coordinator",
				Ledger:    book,
				Generator: gen,
				Embedder:  &testutils.WordEmbedder{Dimensions: 256},
				Publisher: publisher,
				Updates:   coordinator.DefaultUpdates,
				Seed:      11,
			})
		}

		expectCycleClosed := func() {
			cycles, err := book.PassedCycles(ctx, "operator-a")
			Expect(err).NotTo(HaveOccurred())
			Expect(cycles).To(Equal(int64(1)))
			Expect(publisher.Events()).To(HaveLen(1))
		}

		It("scores the read zero when the paraphraser fails", func() {
			runner := runnerWith(newSource(), failingParaphraser{err: errors.New("paraphrase failed")})

			report, err := runner.RunCycle(ctx, op, storage)
			Expect(err).NotTo(HaveOccurred())

			Expect(op.Calls()).To(Equal([]protocol.OpKind{
				protocol.OpCreate, protocol.OpUpdate, protocol.OpUpdate, protocol.OpUpdate,
			}))
			Expect(opScores(report, protocol.OpCreate)).To(Equal([]float64{1}))
			Expect(opScores(report, protocol.OpUpdate)).To(Equal([]float64{1, 1, 1}))
			Expect(opScores(report, protocol.OpRead)).To(Equal([]float64{0}))

			last := report.Operations[len(report.Operations)-1]
			Expect(last.Kind).To(Equal(protocol.OpRead))
			Expect(last.Error).To(ContainSubstring("generating read"))
			Expect(report.Reward).To(BeZero())

			entries, err := book.Entries(ctx, "operator-a")
			Expect(err).NotTo(HaveOccurred())
			Expect(entries).To(HaveLen(1))
			Expect(entries[0].Pages.Len()).To(Equal(8))
			expectCycleClosed()
		})

		It("keeps a deadline inside the paraphraser local to the read", func() {
			runner := runnerWith(newSource(), failingParaphraser{
				err: fmt.Errorf("ollama: %w", context.DeadlineExceeded),
			})

			report, err := runner.RunCycle(ctx, op, storage)
			Expect(err).NotTo(HaveOccurred())
			Expect(opScores(report, protocol.OpRead)).To(Equal([]float64{0}))
			expectCycleClosed()
		})

		It("scores updates zero when content sampling fails", func() {
			source := &flakySource{Source: newSource(), okSamples: 1, sampleErr: errors.New("wikipedia returned status 503")}
			runner := runnerWith(source, excerpt.New(1, 7))

			report, err := runner.RunCycle(ctx, op, storage)
			Expect(err).NotTo(HaveOccurred())

			Expect(opScores(report, protocol.OpCreate)).To(Equal([]float64{1}))
			Expect(opScores(report, protocol.OpUpdate)).To(Equal([]float64{0, 0, 0}))
			Expect(opScores(report, protocol.OpRead)).To(HaveLen(1))
			Expect(op.Calls()).To(Equal([]protocol.OpKind{protocol.OpCreate, protocol.OpRead}))

			entries, err := book.Entries(ctx, "operator-a")
			Expect(err).NotTo(HaveOccurred())
			Expect(entries[0].Pages.Len()).To(Equal(2))
			expectCycleClosed()
		})

		It("scores create zero when no documents can be sampled", func() {
			source := &flakySource{Source: newSource(), sampleErr: errors.New("wikipedia unreachable")}
			runner := runnerWith(source, excerpt.New(1, 7))

			report, err := runner.RunCycle(ctx, op, storage)
			Expect(err).NotTo(HaveOccurred())
			Expect(op.Calls()).To(BeEmpty())
			Expect(opScores(report, protocol.OpCreate)).To(Equal([]float64{0}))
			Expect(report.Operations[0].Error).To(ContainSubstring("generating create"))
			Expect(report.Reward).To(BeZero())
			expectCycleClosed()
		})

		It("scores the read zero when the ground truth cannot be fetched", func() {
			source := &flakySource{Source: newSource(), fetchErr: errors.New("page fetch failed")}
			runner := runnerWith(source, excerpt.New(1, 7))

			report, err := runner.RunCycle(ctx, op, storage)
			Expect(err).NotTo(HaveOccurred())
			Expect(opScores(report, protocol.OpUpdate)).To(Equal([]float64{1, 1, 1}))
			Expect(opScores(report, protocol.OpRead)).To(Equal([]float64{0}))
			Expect(report.Operations[len(report.Operations)-1].Error).To(ContainSubstring("page fetch failed"))
			expectCycleClosed()
		})
	})

	It("aborts when the coordinator context is cancelled", func() {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		_, err := newRunner(0, coordinator.Timeouts{}).RunCycle(cancelled, op, storage)
		Expect(err).To(HaveOccurred())

		cycles, err := book.PassedCycles(ctx, "operator-a")
		Expect(err).NotTo(HaveOccurred())
		Expect(cycles).To(BeZero())
	})

	It("records replace updates as a reset page map", func() {
		gen := coordinator.NewGenerator(coordinator.GeneratorConfig{
			Source:             newSource(),
			Paraphrase:         excerpt.New(1, 7),
			Ledger:             book,
			Categories:         categories,
			TaskSize:           2,
			MinLen:             20,
			MaxLen:             1000,
			ReplaceProbability: 1,
		})
		runner := coordinator.NewRunner(coordinator.RunnerConfig{
			Ledger:    book,
			Generator: gen,
			Embedder:  &testutils.WordEmbedder{Dimensions: 256},
			Updates:   2,
		})

		report, err := runner.RunCycle(ctx, op, storage)
		Expect(err).NotTo(HaveOccurred())
		Expect(opScores(report, protocol.OpUpdate)).To(Equal([]float64{1, 1}))

		entries, err := book.Entries(ctx, "operator-a")
		Expect(err).NotTo(HaveOccurred())
		Expect(entries[0].Pages.Len()).To(Equal(2))
		Expect(entries[0].StorageSizeBytes).To(Equal(ledger.StorageBytes(textsFor(entries[0])...)))
	})
})

func textsFor(e *ledger.Entry) []string {
	byRef := map[string]string{}
	for _, d := range corpus() {
		byRef[d.SourceRef] = d.Text
	}
	var out []string
	for _, ref := range e.Pages.Refs() {
		out = append(out, byRef[ref])
	}
	return out
}
