package nop_test

import (
	"bytes"
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/vectorvault/pkg/eventstream"
	"github.com/papercomputeco/vectorvault/pkg/eventstream/nop"
	"github.com/papercomputeco/vectorvault/pkg/logger"
)

var _ = Describe("Publisher", func() {
	var (
		logs  *bytes.Buffer
		p     *nop.Publisher
		event *eventstream.CycleCompletedEvent
	)

	BeforeEach(func() {
		logs = &bytes.Buffer{}
		p = nop.NewPublisher(logger.New(logger.WithWriter(logs), logger.WithDebug(true), logger.WithJSON(true)))
		event = eventstream.NewCycleCompletedEvent(
			eventstream.EventSource{Coordinator: "coordinator"},
			eventstream.CycleReport{OperatorID: "http://op-a:8091", Reward: 0.25},
			time.Now(),
		)
	})

	It("returns ErrNilCycleEvent for nil events", func() {
		Expect(p.PublishCycle(context.Background(), nil)).To(MatchError(eventstream.ErrNilCycleEvent))
		Expect(p.Discarded()).To(BeZero())
	})

	It("rejects envelopes without an operator", func() {
		event.Report.OperatorID = ""
		Expect(p.PublishCycle(context.Background(), event)).To(MatchError(eventstream.ErrInvalidCycleEvent))
	})

	It("counts and logs discarded events", func() {
		Expect(p.PublishCycle(context.Background(), event)).To(Succeed())
		Expect(p.PublishCycle(context.Background(), event)).To(Succeed())

		Expect(p.Discarded()).To(Equal(int64(2)))
		Expect(logs.String()).To(ContainSubstring("discarding cycle event"))
		Expect(logs.String()).To(ContainSubstring(event.EventID))
	})

	It("works without a logger", func() {
		Expect(nop.NewPublisher(nil).PublishCycle(context.Background(), event)).To(Succeed())
	})

	It("closes successfully", func() {
		Expect(p.Close()).To(Succeed())
	})
})
