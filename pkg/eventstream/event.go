package eventstream

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/vectorvault/pkg/protocol"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeCycleCompleted is emitted after the coordinator scores an
	// operator's audit cycle.
	EventTypeCycleCompleted = "vectorvault.cycle.completed"
)

// CycleCompletedEvent is a transport-neutral event payload for a scored cycle.
type CycleCompletedEvent struct {
	SchemaVersion int         `json:"schema_version"`
	EventType     string      `json:"event_type"`
	EventID       string      `json:"event_id"`
	EmittedAt     time.Time   `json:"emitted_at"`
	Source        EventSource `json:"source"`
	Report        CycleReport `json:"report"`
}

// EventSource identifies the coordinator that ran the cycle.
type EventSource struct {
	Coordinator string `json:"coordinator"`
	Version     string `json:"version,omitempty"`
}

// OperationRecord is the outcome of one operation within a cycle.
type OperationRecord struct {
	Kind      protocol.OpKind `json:"kind"`
	Success   bool            `json:"success"`
	Score     float64         `json:"score"`
	Error     string          `json:"error,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// CycleReport summarizes one operator's cycle.
type CycleReport struct {
	OperatorID        string            `json:"operator_id"`
	Operations        []OperationRecord `json:"operations"`
	Reward            float64           `json:"reward"`
	Weight            float64           `json:"weight"`
	Tier              string            `json:"tier"`
	PassedCycles      int64             `json:"passed_cycles"`
	TotalStorageBytes int64             `json:"total_storage_bytes"`
}

// NewCycleCompletedEvent wraps report in a v1 envelope with a fresh event id.
func NewCycleCompletedEvent(source EventSource, report CycleReport, now time.Time) *CycleCompletedEvent {
	return &CycleCompletedEvent{
		SchemaVersion: SchemaVersionV1,
		EventType:     EventTypeCycleCompleted,
		EventID:       uuid.NewString(),
		EmittedAt:     now.UTC(),
		Source:        source,
		Report:        report,
	}
}

// Validate checks the envelope before it is published.
func (e *CycleCompletedEvent) Validate() error {
	switch {
	case e == nil:
		return ErrNilCycleEvent
	case e.SchemaVersion != SchemaVersionV1:
		return fmt.Errorf("schema version %d: %w", e.SchemaVersion, ErrInvalidCycleEvent)
	case e.EventType != EventTypeCycleCompleted:
		return fmt.Errorf("event type %q: %w", e.EventType, ErrInvalidCycleEvent)
	case e.EventID == "":
		return fmt.Errorf("missing event id: %w", ErrInvalidCycleEvent)
	case e.Report.OperatorID == "":
		return fmt.Errorf("missing operator id: %w", ErrInvalidCycleEvent)
	}
	return nil
}
