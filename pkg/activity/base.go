// Package activity provides infrastructure shared by Temporal activity
// implementations: execution metadata, logging that is safe outside an
// activity context, heartbeats and best-effort event emission.
package activity

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/sdk/activity"

	"github.com/ahrav/go-recall/pkg/events"
)

// emitAttempts bounds event delivery retries; emitDelay separates them.
const (
	emitAttempts = 2
	emitDelay    = 200 * time.Millisecond
)

// ExecutionInfo identifies the workflow execution an activity runs under.
type ExecutionInfo struct {
	WorkflowID string
	RunID      string
	ActivityID string
	Attempt    int32
}

// BaseActivities carries the event sink shared by all activities.
type BaseActivities struct {
	eventSink events.EventSink
}

// NewBaseActivities returns a base emitting to sink. A nil sink disables
// emission.
func NewBaseActivities(sink events.EventSink) BaseActivities {
	return BaseActivities{eventSink: sink}
}

// ExecutionInfo extracts workflow metadata from ctx. Outside a Temporal
// activity, where activity.GetInfo panics, it returns generated test IDs.
func (b *BaseActivities) ExecutionInfo(ctx context.Context) (info ExecutionInfo) {
	defer func() {
		if recover() != nil {
			info = ExecutionInfo{
				WorkflowID: "local",
				RunID:      "local-" + uuid.NewString()[:8],
				ActivityID: "local",
				Attempt:    1,
			}
		}
	}()

	ai := activity.GetInfo(ctx)
	return ExecutionInfo{
		WorkflowID: ai.WorkflowExecution.ID,
		RunID:      ai.WorkflowExecution.RunID,
		ActivityID: ai.ActivityID,
		Attempt:    ai.Attempt,
	}
}

// EmitEventSafe delivers env with a short retry. Failures are logged and
// never returned; events must not fail the activity.
func (b *BaseActivities) EmitEventSafe(ctx context.Context, env events.Envelope) {
	if b.eventSink == nil {
		return
	}

	var lastErr error
	for attempt := range emitAttempts {
		if attempt > 0 {
			select {
			case <-time.After(emitDelay):
			case <-ctx.Done():
				SafeLogError(ctx, "event emission cancelled", "event_type", env.Type)
				return
			}
		}
		if lastErr = b.eventSink.Append(ctx, env); lastErr == nil {
			return
		}
	}

	SafeLogError(ctx, fmt.Sprintf("failed to emit event after %d attempts", emitAttempts),
		"event_type", env.Type,
		"idempotency_key", env.IdempotencyKey,
		"error", lastErr)
}

// SafeLog logs at info through the activity logger; it is a no-op outside
// an activity context.
func SafeLog(ctx context.Context, msg string, keyvals ...any) {
	defer func() { _ = recover() }()
	activity.GetLogger(ctx).Info(msg, keyvals...)
}

// SafeLogError is SafeLog at error level.
func SafeLogError(ctx context.Context, msg string, keyvals ...any) {
	defer func() { _ = recover() }()
	activity.GetLogger(ctx).Error(msg, keyvals...)
}

// RecordHeartbeat records a heartbeat; it is a no-op outside an activity
// context.
func RecordHeartbeat(ctx context.Context, details ...any) {
	defer func() { _ = recover() }()
	activity.RecordHeartbeat(ctx, details...)
}
