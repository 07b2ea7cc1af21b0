package eventstream_test

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/vectorvault/pkg/eventstream"
	"github.com/papercomputeco/vectorvault/pkg/protocol"
)

var _ = Describe("Event", func() {
	now := time.Unix(1735689600, 0).UTC()
	report := eventstream.CycleReport{
		OperatorID: "http://operator-a:8091",
		Operations: []eventstream.OperationRecord{
			{Kind: protocol.OpCreate, Success: true, Score: 1, Timestamp: now},
			{Kind: protocol.OpRead, Success: false, Score: 0, Error: "timeout", Timestamp: now},
		},
		Reward:            0.42,
		Weight:            0.6,
		Tier:              "very_young",
		PassedCycles:      3,
		TotalStorageBytes: 8000,
	}

	It("marshals CycleCompletedEvent with expected top-level keys", func() {
		event := eventstream.NewCycleCompletedEvent(eventstream.EventSource{Coordinator: "coordinator"}, report, now)

		payload, err := json.Marshal(event)
		Expect(err).NotTo(HaveOccurred())

		var got map[string]any
		Expect(json.Unmarshal(payload, &got)).To(Succeed())

		Expect(got).To(HaveKey("schema_version"))
		Expect(got).To(HaveKey("event_type"))
		Expect(got).To(HaveKey("event_id"))
		Expect(got).To(HaveKey("emitted_at"))
		Expect(got).To(HaveKey("source"))
		Expect(got).To(HaveKey("report"))
	})

	It("encodes operation kinds by name", func() {
		payload, err := json.Marshal(report.Operations[0])
		Expect(err).NotTo(HaveOccurred())
		Expect(string(payload)).To(ContainSubstring(`"kind":"create"`))

		var back eventstream.OperationRecord
		Expect(json.Unmarshal(payload, &back)).To(Succeed())
		Expect(back.Kind).To(Equal(protocol.OpCreate))
	})

	It("fills the envelope", func() {
		event := eventstream.NewCycleCompletedEvent(eventstream.EventSource{Coordinator: "c"}, report, now)

		Expect(event.SchemaVersion).To(Equal(eventstream.SchemaVersionV1))
		Expect(event.EventType).To(Equal(eventstream.EventTypeCycleCompleted))
		Expect(event.EmittedAt).To(Equal(now))
		_, err := uuid.Parse(event.EventID)
		Expect(err).NotTo(HaveOccurred())
	})

	It("uses a fresh id per event", func() {
		a := eventstream.NewCycleCompletedEvent(eventstream.EventSource{}, report, now)
		b := eventstream.NewCycleCompletedEvent(eventstream.EventSource{}, report, now)
		Expect(a.EventID).NotTo(Equal(b.EventID))
	})

	It("provides ErrNilCycleEvent for nil payload validation", func() {
		Expect(eventstream.ErrNilCycleEvent).To(MatchError("nil cycle event"))
	})

	Describe("Validate", func() {
		It("accepts a freshly built event", func() {
			Expect(eventstream.NewCycleCompletedEvent(eventstream.EventSource{}, report, now).Validate()).To(Succeed())
		})

		It("rejects a nil event", func() {
			var e *eventstream.CycleCompletedEvent
			Expect(e.Validate()).To(MatchError(eventstream.ErrNilCycleEvent))
		})

		It("rejects unknown schemas and types", func() {
			e := eventstream.NewCycleCompletedEvent(eventstream.EventSource{}, report, now)
			e.SchemaVersion = 2
			Expect(e.Validate()).To(MatchError(eventstream.ErrInvalidCycleEvent))

			e = eventstream.NewCycleCompletedEvent(eventstream.EventSource{}, report, now)
			e.EventType = "vectorvault.other"
			Expect(e.Validate()).To(MatchError(eventstream.ErrInvalidCycleEvent))
		})

		It("requires an event id", func() {
			e := eventstream.NewCycleCompletedEvent(eventstream.EventSource{}, report, now)
			e.EventID = ""
			Expect(e.Validate()).To(MatchError(eventstream.ErrInvalidCycleEvent))
		})
	})
})
