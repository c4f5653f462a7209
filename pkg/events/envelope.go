// Package events provides the event infrastructure used to report run
// progress. It defines the Envelope type that wraps every event with
// consistent metadata and the EventSink interface for delivering them.
// Sinks are best-effort: a failed Append never fails the run.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SchemaVersion is the current payload schema version.
const SchemaVersion = "1.0.0"

// Envelope wraps run events with consistent metadata.
type Envelope struct {
	// ID uniquely identifies this event instance.
	ID string `json:"id"`

	// Type identifies the event for routing, e.g. "batch.completed".
	Type string `json:"type"`

	// Source identifies the emitting component, e.g. "scheduler".
	Source string `json:"source"`

	// Version enables schema evolution.
	Version string `json:"version"`

	// Timestamp records when the event was emitted.
	Timestamp time.Time `json:"timestamp"`

	// IdempotencyKey is stable across re-emission of the same logical event,
	// e.g. a Temporal activity retry.
	IdempotencyKey string `json:"idempotency_key"`

	// RunID correlates all events of one run.
	RunID string `json:"run_id"`

	// WorkflowID is set when the run is driven by a Temporal workflow.
	WorkflowID string `json:"workflow_id,omitempty"`

	// Payload contains the type-specific event data as JSON.
	Payload json.RawMessage `json:"payload"`
}

// NewEnvelope marshals payload into a fresh envelope. key distinguishes
// logical events of the same type within a run, e.g. the batch number.
func NewEnvelope(eventType, source, runID, key string, payload any) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return Envelope{
		ID:             uuid.NewString(),
		Type:           eventType,
		Source:         source,
		Version:        SchemaVersion,
		Timestamp:      time.Now().UTC(),
		IdempotencyKey: fmt.Sprintf("%s:%s:%s", runID, eventType, key),
		RunID:          runID,
		Payload:        data,
	}, nil
}

// Decode unmarshals the payload into v.
func (e Envelope) Decode(v any) error {
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Type, err)
	}
	return nil
}

// EventSink defines the interface for emitting events to downstream consumers.
type EventSink interface {
	// Append adds an event to the sink with best-effort delivery.
	// Callers must not fail their primary operation on an error.
	Append(ctx context.Context, envelope Envelope) error
}

// NoOpEventSink is a null implementation of EventSink for testing or when events are disabled.
type NoOpEventSink struct{}

// Append implements EventSink.Append with no-op behavior.
func (n *NoOpEventSink) Append(_ context.Context, _ Envelope) error {
	return nil
}

// NewNoOpEventSink creates a new no-op event sink.
func NewNoOpEventSink() EventSink {
	return &NoOpEventSink{}
}
