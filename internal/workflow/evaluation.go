// Package workflow drives an evaluation run as a Temporal workflow. The
// workflow keeps the batch contract of the in-process scheduler: items of a
// batch run concurrently as ProcessItem activities, results are collected in
// input order, and each batch is checkpointed before the next one starts.
// Workflow code must stay deterministic; all I/O happens in activities.
package workflow

import (
	"errors"
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/ahrav/go-recall/internal/activity"
	"github.com/ahrav/go-recall/internal/domain"
)

// DefaultActivityTimeout bounds one activity when the input sets none.
const DefaultActivityTimeout = 10 * time.Minute

// Input is the argument of EvaluationWorkflow.
type Input struct {
	Request         domain.RunRequest `json:"request"`
	ActivityTimeout time.Duration     `json:"activity_timeout"`
}

// EvaluationWorkflow processes the request batch by batch. On cancellation
// the in-flight batch is discarded and one interrupt checkpoint holding
// every completed result is written from a disconnected context; the
// workflow then reports cancellation.
func EvaluationWorkflow(ctx workflow.Context, in Input) (*domain.RunSummary, error) {
	const currentVersion = 1
	_ = workflow.GetVersion(ctx, "evaluation.v", workflow.DefaultVersion, currentVersion)

	req := in.Request
	if err := req.Validate(); err != nil {
		return nil, temporal.NewNonRetryableApplicationError("invalid run request", activity.ErrorTypeValidation, err)
	}

	timeout := in.ActivityTimeout
	if timeout <= 0 {
		timeout = DefaultActivityTimeout
	}
	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: timeout,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:        time.Second,
			BackoffCoefficient:     2.0,
			MaximumInterval:        time.Minute,
			MaximumAttempts:        3,
			NonRetryableErrorTypes: []string{activity.ErrorTypeValidation},
		},
	})

	logger := workflow.GetLogger(ctx)
	start := workflow.Now(ctx)
	summary := &domain.RunSummary{
		RunID:      req.RunID,
		Total:      len(req.Items),
		NextOffset: req.Offset,
	}
	batches := req.Batches()
	logger.Info("run started", "run_id", req.RunID, "items", len(req.Items), "batches", len(batches))

	var completed []domain.ItemResult
	lastBatch := 0

	for _, b := range batches {
		if ctx.Err() != nil {
			break
		}

		results, batchErr := runBatch(ctx, req.RunID, b)
		if ctx.Err() != nil {
			logger.Warn("discarding interrupted batch", "batch", b.Number)
			break
		}

		kind := domain.CheckpointBatch
		if batchErr != nil {
			kind = domain.CheckpointErrorBatch
			results = b.EmptyResults()
			summary.FailedBatches++
			logger.Error("batch failed", "batch", b.Number, "first_idx", b.FirstIndex(), "error", batchErr)
		}

		path, err := writeCheckpoint(ctx, req.RunID, results,
			domain.LabelFor(kind, b, req.BatchSize, workflow.Now(ctx)))
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			summary.Duration = workflow.Now(ctx).Sub(start)
			return summary, fmt.Errorf("write checkpoint for batch %d: %w", b.Number, err)
		}

		completed = append(completed, results...)
		summary.Record(results)
		summary.Checkpoints = append(summary.Checkpoints, path)
		lastBatch = b.Number
	}

	if ctx.Err() != nil && summary.Processed < summary.Total {
		return interrupt(ctx, req, summary, completed, lastBatch, start)
	}

	summary.Duration = workflow.Now(ctx).Sub(start)
	logger.Info("run completed", "run_id", req.RunID, "processed", summary.Processed, "failed_batches", summary.FailedBatches)
	return summary, nil
}

// runBatch starts one activity per item and collects results in item order.
// Every future is awaited even after a failure so no activity outlives its
// batch.
func runBatch(ctx workflow.Context, runID string, b domain.Batch) ([]domain.ItemResult, error) {
	futures := make([]workflow.Future, b.Len())
	for i, item := range b.Items {
		futures[i] = workflow.ExecuteActivity(ctx, activity.ProcessItemName, activity.ProcessItemInput{
			RunID: runID,
			Item:  item,
			Idx:   b.AbsoluteIndex(i),
		})
	}

	results := make([]domain.ItemResult, b.Len())
	var errs []error
	for i, f := range futures {
		if err := f.Get(ctx, &results[i]); err != nil {
			errs = append(errs, fmt.Errorf("item %s (idx %d): %w", b.Items[i].QuestionID, b.AbsoluteIndex(i), err))
		}
	}
	return results, errors.Join(errs...)
}

func writeCheckpoint(ctx workflow.Context, runID string, results []domain.ItemResult, label domain.CheckpointLabel) (string, error) {
	var path string
	err := workflow.ExecuteActivity(ctx, activity.WriteCheckpointName, activity.WriteCheckpointInput{
		RunID:   runID,
		Label:   label,
		Results: results,
	}).Get(ctx, &path)
	return path, err
}

// interrupt persists the accumulated results after cancellation.
func interrupt(ctx workflow.Context, req domain.RunRequest, summary *domain.RunSummary,
	completed []domain.ItemResult, lastBatch int, start time.Time,
) (*domain.RunSummary, error) {
	summary.Interrupted = true
	dctx, _ := workflow.NewDisconnectedContext(ctx)

	label := domain.CheckpointLabel{
		Kind:        domain.CheckpointInterrupt,
		BatchNumber: lastBatch,
		BatchSize:   req.BatchSize,
		Offset:      req.Offset,
		Time:        workflow.Now(dctx),
	}
	path, err := writeCheckpoint(dctx, req.RunID, completed, label)
	summary.Duration = workflow.Now(dctx).Sub(start)
	if err != nil {
		workflow.GetLogger(dctx).Error("interrupt checkpoint failed", "run_id", req.RunID, "error", err)
	} else {
		summary.Checkpoints = append(summary.Checkpoints, path)
	}
	workflow.GetLogger(dctx).Warn("run interrupted",
		"run_id", req.RunID,
		"processed", summary.Processed,
		"next_offset", summary.NextOffset)

	return summary, temporal.NewCanceledError(summary.NextOffset)
}
