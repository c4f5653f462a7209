// Package batch drives items through a processor in fixed-size batches.
// Items within a batch run concurrently; batches run strictly in order, and
// each batch is checkpointed before the next one starts.
package batch

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/ahrav/go-recall/internal/domain"
	evalerrors "github.com/ahrav/go-recall/internal/errors"
	"github.com/ahrav/go-recall/pkg/events"
)

// eventSource tags events emitted by the scheduler.
const eventSource = "scheduler"

// Processor resolves one item to one result.
type Processor interface {
	Process(ctx context.Context, item domain.Item, idx int) (domain.ItemResult, error)
}

// CheckpointWriter persists a batch of results. Write must be durable when
// it returns.
type CheckpointWriter interface {
	Write(results []domain.ItemResult, label domain.CheckpointLabel) (string, error)
}

// Metrics receives per-batch observations.
type Metrics interface {
	ObserveBatch(kind string, duration time.Duration)
}

// Config controls batching.
type Config struct {
	// BatchSize bounds per-batch concurrency; values below 1 mean 1.
	BatchSize int
}

// Scheduler runs batches. A Scheduler may be reused for several runs but
// each Run must finish before the next starts.
type Scheduler struct {
	processor Processor
	writer    CheckpointWriter
	batchSize int
	logger    *slog.Logger
	sink      events.EventSink
	metrics   Metrics
	tracer    trace.Tracer
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the scheduler's logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = l.With("component", "scheduler") }
}

// WithEventSink receives run events.
func WithEventSink(sink events.EventSink) Option { return func(s *Scheduler) { s.sink = sink } }

// WithMetrics records batch durations.
func WithMetrics(m Metrics) Option { return func(s *Scheduler) { s.metrics = m } }

// WithTracer overrides the global tracer.
func WithTracer(t trace.Tracer) Option { return func(s *Scheduler) { s.tracer = t } }

// New builds a Scheduler.
func New(processor Processor, writer CheckpointWriter, cfg Config, opts ...Option) *Scheduler {
	s := &Scheduler{
		processor: processor,
		writer:    writer,
		batchSize: max(cfg.BatchSize, 1),
		logger:    slog.Default().With("component", "scheduler"),
		sink:      events.NewNoOpEventSink(),
		tracer:    otel.Tracer("github.com/ahrav/go-recall/internal/batch"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// BatchSize returns the effective batch size.
func (s *Scheduler) BatchSize() int { return s.batchSize }

// Batches returns a lazy sequence yielding one Outcome per completed batch,
// in input order. Each iteration re-runs the items from the start. A batch
// interrupted by ctx is discarded and ends the sequence.
func (s *Scheduler) Batches(ctx context.Context, items []domain.Item, offset int) iter.Seq[Outcome] {
	return s.batches(ctx, items, offset, s.batchSize)
}

func (s *Scheduler) batches(ctx context.Context, items []domain.Item, offset, size int) iter.Seq[Outcome] {
	return func(yield func(Outcome) bool) {
		for _, b := range domain.Partition(items, offset, size) {
			if ctx.Err() != nil {
				return
			}
			out := s.runBatch(ctx, b)
			if ctx.Err() != nil {
				s.logger.Warn("discarding interrupted batch",
					"batch", b.Number,
					"first_idx", b.FirstIndex(),
					"size", b.Len())
				return
			}
			if !yield(out) {
				return
			}
		}
	}
}

// runBatch launches one goroutine per item and waits for all of them. Each
// goroutine writes only its own result slot. An error or panic from any
// item fails the whole batch, which is then reported as empty results.
func (s *Scheduler) runBatch(ctx context.Context, b domain.Batch) Outcome {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "batch.Run", trace.WithAttributes(
		attribute.Int("batch", b.Number),
		attribute.Int("first_idx", b.FirstIndex()),
		attribute.Int("size", b.Len()),
	))
	defer span.End()

	results := make([]domain.ItemResult, b.Len())
	var g errgroup.Group
	for i, item := range b.Items {
		idx := b.AbsoluteIndex(i)
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = &evalerrors.PanicError{Value: r}
				}
			}()

			res, err := s.processor.Process(ctx, item, idx)
			if err != nil {
				return fmt.Errorf("item %s (idx %d): %w", item.QuestionID, idx, err)
			}
			if res.Idx != idx {
				return fmt.Errorf("item %s: processor returned idx %d, want %d", item.QuestionID, res.Idx, idx)
			}
			results[i] = res
			return nil
		})
	}

	out := Outcome{Batch: b, Results: results}
	if err := g.Wait(); err != nil {
		out.Results = b.EmptyResults()
		out.Err = &evalerrors.BatchFailure{
			BatchNumber: b.Number,
			Offset:      b.Offset,
			Start:       b.Start,
			Size:        b.Len(),
			Err:         err,
		}
		span.RecordError(out.Err)
		span.SetStatus(codes.Error, "batch failed")
	}

	out.Duration = time.Since(start)
	if s.metrics != nil {
		s.metrics.ObserveBatch(string(out.Kind()), out.Duration)
	}
	return out
}

// Run processes req batch by batch. After each batch it writes a batch or
// error_batch checkpoint before starting the next. When ctx is cancelled the
// in-flight batch is discarded, one interrupt_batch checkpoint with every
// result from completed batches is written, and the returned error wraps
// errors.ErrInterrupted. The summary is returned in every case after
// validation. A request without a batch size uses the scheduler's.
func (s *Scheduler) Run(ctx context.Context, req domain.RunRequest) (*domain.RunSummary, error) {
	if req.BatchSize < 1 {
		req.BatchSize = s.batchSize
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	size := req.BatchSize

	start := time.Now()
	summary := &domain.RunSummary{
		RunID:      req.RunID,
		Total:      len(req.Items),
		NextOffset: req.Offset,
	}
	numBatches := (len(req.Items) + size - 1) / size

	s.logger.Info("run started",
		"run_id", req.RunID,
		"items", len(req.Items),
		"offset", req.Offset,
		"batch_size", size,
		"batches", numBatches)
	s.emit(ctx, req.RunID, events.TypeRunStarted, "", events.RunStarted{
		Total:     len(req.Items),
		Offset:    req.Offset,
		BatchSize: size,
		Batches:   numBatches,
	})

	var completed []domain.ItemResult
	lastBatch := 0

	for out := range s.batches(ctx, req.Items, req.Offset, size) {
		label := domain.LabelFor(out.Kind(), out.Batch, size, time.Time{})
		path, err := s.writer.Write(out.Results, label)
		if err != nil {
			summary.Duration = time.Since(start)
			return summary, fmt.Errorf("write checkpoint for batch %d: %w", out.Batch.Number, err)
		}

		completed = append(completed, out.Results...)
		summary.Record(out.Results)
		summary.Checkpoints = append(summary.Checkpoints, path)
		lastBatch = out.Batch.Number

		s.reportBatch(ctx, req.RunID, out, path)
		if out.Failed() {
			summary.FailedBatches++
		}
	}

	if ctx.Err() != nil && summary.Processed < summary.Total {
		return s.interrupt(ctx, req, summary, completed, lastBatch, start)
	}

	summary.Duration = time.Since(start)
	s.logger.Info("run completed",
		"run_id", req.RunID,
		"processed", summary.Processed,
		"answered", summary.Answered,
		"failed_batches", summary.FailedBatches,
		"duration", summary.Duration)
	s.emit(ctx, req.RunID, events.TypeRunCompleted, "", finished(summary))
	return summary, nil
}

// interrupt writes the final best-effort checkpoint of every completed
// result. ctx is already done here; only its cause is read.
func (s *Scheduler) interrupt(ctx context.Context, req domain.RunRequest, summary *domain.RunSummary,
	completed []domain.ItemResult, lastBatch int, start time.Time,
) (*domain.RunSummary, error) {
	summary.Interrupted = true
	cause := context.Cause(ctx)

	label := domain.CheckpointLabel{
		Kind:        domain.CheckpointInterrupt,
		BatchNumber: lastBatch,
		BatchSize:   req.BatchSize,
		Offset:      req.Offset,
	}
	path, err := s.writer.Write(completed, label)
	summary.Duration = time.Since(start)
	if err != nil {
		s.logger.Error("interrupt checkpoint failed", "run_id", req.RunID, "error", err)
		return summary, fmt.Errorf("%w: %w (interrupt checkpoint: %w)", evalerrors.ErrInterrupted, cause, err)
	}
	summary.Checkpoints = append(summary.Checkpoints, path)

	// The run context is done; events still need a live one.
	emitCtx := context.WithoutCancel(ctx)
	s.emit(emitCtx, req.RunID, events.TypeCheckpointWritten, "interrupt", events.CheckpointWritten{
		Path:    path,
		Kind:    string(domain.CheckpointInterrupt),
		Records: len(completed),
	})
	s.logger.Warn("run interrupted",
		"run_id", req.RunID,
		"processed", summary.Processed,
		"next_offset", summary.NextOffset,
		"checkpoint", path)
	s.emit(emitCtx, req.RunID, events.TypeRunInterrupted, "", finished(summary))

	return summary, fmt.Errorf("%w: %w", evalerrors.ErrInterrupted, cause)
}

// reportBatch logs and emits the outcome of one persisted batch.
func (s *Scheduler) reportBatch(ctx context.Context, runID string, out Outcome, path string) {
	answered, empty := out.counts()
	payload := events.BatchDone{
		Number:   out.Batch.Number,
		FirstIdx: out.Batch.FirstIndex(),
		Size:     out.Batch.Len(),
		Answered: answered,
		Empty:    empty,
		Millis:   out.Duration.Milliseconds(),
	}
	key := fmt.Sprint(out.Batch.Number)

	if out.Failed() {
		payload.Error = out.Err.Error()
		s.logger.Error("batch failed",
			"batch", out.Batch.Number,
			"first_idx", out.Batch.FirstIndex(),
			"size", out.Batch.Len(),
			"error", out.Err)
		s.emit(ctx, runID, events.TypeBatchFailed, key, payload)
	} else {
		s.logger.Info("batch completed",
			"batch", out.Batch.Number,
			"first_idx", out.Batch.FirstIndex(),
			"answered", answered,
			"empty", empty)
		s.emit(ctx, runID, events.TypeBatchCompleted, key, payload)
	}

	s.emit(ctx, runID, events.TypeCheckpointWritten, key, events.CheckpointWritten{
		Path:    path,
		Kind:    string(out.Kind()),
		Records: len(out.Results),
	})
}

// emit delivers an event best-effort; failures are logged only.
func (s *Scheduler) emit(ctx context.Context, runID, eventType, key string, payload any) {
	env, err := events.NewEnvelope(eventType, eventSource, runID, key, payload)
	if err == nil {
		err = s.sink.Append(ctx, env)
	}
	if err != nil {
		s.logger.Warn("event emission failed", "type", eventType, "error", err)
	}
}

func finished(s *domain.RunSummary) events.RunFinished {
	return events.RunFinished{
		Total:         s.Total,
		Processed:     s.Processed,
		Answered:      s.Answered,
		Empty:         s.Empty,
		FailedBatches: s.FailedBatches,
		NextOffset:    s.NextOffset,
		Millis:        s.Duration.Milliseconds(),
	}
}
