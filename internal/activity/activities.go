// Package activity implements the Temporal activities of an evaluation run:
// resolving one item and persisting one checkpoint.
package activity

import (
	"context"
	"fmt"

	"github.com/ahrav/go-recall/internal/domain"
	"github.com/ahrav/go-recall/pkg/activity"
	"github.com/ahrav/go-recall/pkg/events"
)

// Registered activity names.
const (
	ProcessItemName     = "ProcessItem"
	WriteCheckpointName = "WriteCheckpoint"
)

// Processor resolves one item; see processor.ItemProcessor.
type Processor interface {
	Process(ctx context.Context, item domain.Item, idx int) (domain.ItemResult, error)
}

// CheckpointWriter persists a checkpoint; see checkpoint.Writer.
type CheckpointWriter interface {
	Write(results []domain.ItemResult, label domain.CheckpointLabel) (string, error)
}

// ProcessItemInput is the argument of ProcessItem.
type ProcessItemInput struct {
	RunID string      `json:"run_id"`
	Item  domain.Item `json:"item"`
	Idx   int         `json:"idx"`
}

// Validate checks the input shape.
func (in ProcessItemInput) Validate() error {
	if in.Idx < 0 {
		return fmt.Errorf("%w: negative idx %d", ErrActivityValidation, in.Idx)
	}
	if err := in.Item.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrActivityValidation, err)
	}
	return nil
}

// WriteCheckpointInput is the argument of WriteCheckpoint.
type WriteCheckpointInput struct {
	RunID   string                 `json:"run_id"`
	Label   domain.CheckpointLabel `json:"label"`
	Results []domain.ItemResult    `json:"results"`
}

// Activities binds the run components to Temporal.
type Activities struct {
	activity.BaseActivities
	processor Processor
	writer    CheckpointWriter
}

// NewActivities returns the activity set.
func NewActivities(base activity.BaseActivities, p Processor, w CheckpointWriter) *Activities {
	return &Activities{BaseActivities: base, processor: p, writer: w}
}

// ProcessItem resolves one item. Remote failures are already isolated by
// the processor, so an error here is unexpected and left to the activity
// retry policy.
func (a *Activities) ProcessItem(ctx context.Context, in ProcessItemInput) (domain.ItemResult, error) {
	if err := in.Validate(); err != nil {
		return domain.ItemResult{}, nonRetryable(ErrorTypeValidation, err, "invalid item input")
	}
	activity.RecordHeartbeat(ctx, in.Idx)

	res, err := a.processor.Process(ctx, in.Item, in.Idx)
	if err != nil {
		return domain.ItemResult{}, retryable(ErrorTypeProcess, err, "process item")
	}
	return res, nil
}

// WriteCheckpoint persists one artifact and returns its path. A retried
// attempt never overwrites an earlier artifact; it publishes a new name.
func (a *Activities) WriteCheckpoint(ctx context.Context, in WriteCheckpointInput) (string, error) {
	if err := in.Label.Validate(); err != nil {
		return "", nonRetryable(ErrorTypeValidation, fmt.Errorf("%w: %w", ErrActivityValidation, err), "invalid checkpoint label")
	}

	path, err := a.writer.Write(in.Results, in.Label)
	if err != nil {
		return "", retryable(ErrorTypeCheckpoint, err, "write checkpoint")
	}

	info := a.ExecutionInfo(ctx)
	activity.SafeLog(ctx, "checkpoint written",
		"path", path,
		"kind", in.Label.Kind,
		"records", len(in.Results))

	env, err := events.NewEnvelope(events.TypeCheckpointWritten, "worker", in.RunID,
		fmt.Sprintf("%s-%d", in.Label.Kind, in.Label.BatchNumber),
		events.CheckpointWritten{Path: path, Kind: string(in.Label.Kind), Records: len(in.Results)})
	if err == nil {
		env.WorkflowID = info.WorkflowID
		a.EmitEventSafe(ctx, env)
	}
	return path, nil
}
