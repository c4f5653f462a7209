package batch_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-recall/internal/batch"
	"github.com/ahrav/go-recall/internal/checkpoint"
	"github.com/ahrav/go-recall/internal/configuration"
	"github.com/ahrav/go-recall/internal/domain"
	evalerrors "github.com/ahrav/go-recall/internal/errors"
	"github.com/ahrav/go-recall/internal/processor"
	"github.com/ahrav/go-recall/internal/retry"
	"github.com/ahrav/go-recall/pkg/events"
)

// funcProcessor adapts a function to batch.Processor.
type funcProcessor func(ctx context.Context, item domain.Item, idx int) (domain.ItemResult, error)

func (f funcProcessor) Process(ctx context.Context, item domain.Item, idx int) (domain.ItemResult, error) {
	return f(ctx, item, idx)
}

// echo answers every item with "ans-<question_id>".
func echo(_ context.Context, item domain.Item, idx int) (domain.ItemResult, error) {
	return domain.ItemResult{QuestionID: item.QuestionID, Hypothesis: "ans-" + item.QuestionID, Idx: idx}, nil
}

// write is one recorded checkpoint write.
type write struct {
	label   domain.CheckpointLabel
	results []domain.ItemResult
}

// memoryWriter records writes in order.
type memoryWriter struct {
	mu     sync.Mutex
	writes []write
	err    error
}

func (m *memoryWriter) Write(results []domain.ItemResult, label domain.CheckpointLabel) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	m.writes = append(m.writes, write{label: label, results: append([]domain.ItemResult(nil), results...)})
	return fmt.Sprintf("mem://%d", len(m.writes)), nil
}

// recordingSink keeps event types in order.
type recordingSink struct {
	mu    sync.Mutex
	types []string
}

func (r *recordingSink) Append(_ context.Context, env events.Envelope) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types = append(r.types, env.Type)
	return nil
}

func makeItems(n int) []domain.Item {
	items := make([]domain.Item, n)
	for i := range items {
		items[i] = domain.Item{QuestionID: fmt.Sprintf("q%d", i+1), Question: fmt.Sprintf("Q%d?", i+1)}
	}
	return items
}

func request(items []domain.Item, offset, size int) domain.RunRequest {
	return domain.RunRequest{RunID: "run-test", Items: items, Offset: offset, BatchSize: size}
}

func TestRunExactCover(t *testing.T) {
	for n := 0; n <= 13; n++ {
		for size := 1; size <= 5; size++ {
			for _, offset := range []int{0, 7} {
				t.Run(fmt.Sprintf("n=%d/b=%d/off=%d", n, size, offset), func(t *testing.T) {
					w := &memoryWriter{}
					s := batch.New(funcProcessor(echo), w, batch.Config{BatchSize: size})

					summary, err := s.Run(context.Background(), request(makeItems(n), offset, size))
					require.NoError(t, err)

					var idxs []int
					for _, wr := range w.writes {
						for _, r := range wr.results {
							idxs = append(idxs, r.Idx)
						}
					}
					want := make([]int, n)
					for i := range want {
						want[i] = offset + i
					}
					sort.Ints(idxs)
					if n == 0 {
						assert.Empty(t, idxs)
					} else {
						assert.Equal(t, want, idxs)
					}
					assert.Equal(t, n, summary.Processed)
					assert.Equal(t, offset+n, summary.NextOffset)
					assert.Len(t, w.writes, (n+size-1)/size)
				})
			}
		}
	}
}

func TestRunPreservesOrderRegardlessOfCompletion(t *testing.T) {
	// Later items finish first.
	slowFirst := func(ctx context.Context, item domain.Item, idx int) (domain.ItemResult, error) {
		time.Sleep(time.Duration(5-idx%5) * 5 * time.Millisecond)
		return echo(ctx, item, idx)
	}
	w := &memoryWriter{}
	s := batch.New(funcProcessor(slowFirst), w, batch.Config{BatchSize: 5})

	_, err := s.Run(context.Background(), request(makeItems(5), 0, 5))
	require.NoError(t, err)

	require.Len(t, w.writes, 1)
	for i, r := range w.writes[0].results {
		assert.Equal(t, i, r.Idx)
		assert.Equal(t, fmt.Sprintf("q%d", i+1), r.QuestionID)
	}
}

func TestRunBatchesAreSequential(t *testing.T) {
	var mu sync.Mutex
	inFlight, peak := 0, 0
	var order []int
	track := func(ctx context.Context, item domain.Item, idx int) (domain.ItemResult, error) {
		mu.Lock()
		inFlight++
		peak = max(peak, inFlight)
		order = append(order, idx)
		mu.Unlock()

		time.Sleep(2 * time.Millisecond)

		mu.Lock()
		inFlight--
		mu.Unlock()
		return echo(ctx, item, idx)
	}
	s := batch.New(funcProcessor(track), &memoryWriter{}, batch.Config{BatchSize: 3})

	_, err := s.Run(context.Background(), request(makeItems(9), 0, 3))
	require.NoError(t, err)

	assert.LessOrEqual(t, peak, 3, "concurrency bounded by batch size")
	for i := 3; i < len(order); i++ {
		assert.GreaterOrEqual(t, order[i]/3, order[i-1]/3, "no item of a later batch starts before an earlier batch ends")
	}
}

func TestRunBatchFailureYieldsEmptyResultsAndContinues(t *testing.T) {
	tests := []struct {
		name string
		fail func()
	}{
		{"error", nil},
		{"panic", func() { panic("kaboom") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			proc := func(ctx context.Context, item domain.Item, idx int) (domain.ItemResult, error) {
				if item.QuestionID == "q3" {
					if tt.fail != nil {
						tt.fail()
					}
					return domain.ItemResult{}, errors.New("escaped isolation")
				}
				return echo(ctx, item, idx)
			}
			w := &memoryWriter{}
			sink := &recordingSink{}
			s := batch.New(funcProcessor(proc), w, batch.Config{BatchSize: 2}, batch.WithEventSink(sink))

			summary, err := s.Run(context.Background(), request(makeItems(6), 10, 2))
			require.NoError(t, err)

			require.Len(t, w.writes, 3)
			assert.Equal(t, domain.CheckpointBatch, w.writes[0].label.Kind)
			assert.Equal(t, domain.CheckpointErrorBatch, w.writes[1].label.Kind)
			assert.Equal(t, domain.CheckpointBatch, w.writes[2].label.Kind)

			assert.Equal(t, []domain.ItemResult{
				{QuestionID: "q3", Hypothesis: "", Idx: 12},
				{QuestionID: "q4", Hypothesis: "", Idx: 13},
			}, w.writes[1].results, "whole batch is emptied with correct idx")
			assert.Equal(t, "ans-q5", w.writes[2].results[0].Hypothesis)

			assert.Equal(t, 1, summary.FailedBatches)
			assert.Equal(t, 6, summary.Processed)
			assert.Equal(t, 4, summary.Answered)
			assert.Equal(t, 2, summary.Empty)
			assert.Contains(t, sink.types, events.TypeBatchFailed)
		})
	}
}

func TestBatchesReportsFailure(t *testing.T) {
	proc := func(ctx context.Context, item domain.Item, idx int) (domain.ItemResult, error) {
		if idx == 1 {
			panic("boom")
		}
		return echo(ctx, item, idx)
	}
	s := batch.New(funcProcessor(proc), &memoryWriter{}, batch.Config{BatchSize: 2})

	var outs []batch.Outcome
	for out := range s.Batches(context.Background(), makeItems(3), 0) {
		outs = append(outs, out)
	}

	require.Len(t, outs, 2)
	assert.True(t, outs[0].Failed())
	var failure *evalerrors.BatchFailure
	require.ErrorAs(t, outs[0].Err, &failure)
	assert.Equal(t, 1, failure.BatchNumber)
	var p *evalerrors.PanicError
	require.ErrorAs(t, outs[0].Err, &p)
	assert.False(t, outs[1].Failed())
}

func TestBatchesIsRestartableAndStoppable(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	counting := func(ctx context.Context, item domain.Item, idx int) (domain.ItemResult, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		return echo(ctx, item, idx)
	}
	s := batch.New(funcProcessor(counting), &memoryWriter{}, batch.Config{BatchSize: 2})
	seq := s.Batches(context.Background(), makeItems(6), 0)

	for out := range seq {
		assert.Equal(t, 1, out.Batch.Number)
		break
	}
	assert.Equal(t, 2, calls, "stopping early runs no further batches")

	n := 0
	for range seq {
		n++
	}
	assert.Equal(t, 3, n, "a second iteration starts over")
}

func TestRunRejectsMismatchedProcessorIdx(t *testing.T) {
	bad := func(_ context.Context, item domain.Item, _ int) (domain.ItemResult, error) {
		return domain.ItemResult{QuestionID: item.QuestionID, Hypothesis: "x", Idx: 999}, nil
	}
	w := &memoryWriter{}
	s := batch.New(funcProcessor(bad), w, batch.Config{BatchSize: 2})

	summary, err := s.Run(context.Background(), request(makeItems(2), 0, 2))
	require.NoError(t, err)
	assert.Equal(t, 1, summary.FailedBatches)
	assert.Equal(t, []int{0, 1}, []int{w.writes[0].results[0].Idx, w.writes[0].results[1].Idx})
}

// Cancelling after batch 1 of 3 produces exactly one interrupt checkpoint
// with batch 1's results and nothing from later batches.
func TestRunInterruptAfterFirstBatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	proc := func(ctx context.Context, item domain.Item, idx int) (domain.ItemResult, error) {
		if idx >= 2 {
			cancel()
			<-ctx.Done()
			return domain.EmptyResult(item, idx), nil
		}
		return echo(ctx, item, idx)
	}
	w := &memoryWriter{}
	sink := &recordingSink{}
	s := batch.New(funcProcessor(proc), w, batch.Config{BatchSize: 2}, batch.WithEventSink(sink))

	summary, err := s.Run(ctx, request(makeItems(6), 0, 2))
	require.ErrorIs(t, err, evalerrors.ErrInterrupted)
	require.ErrorIs(t, err, context.Canceled)

	require.Len(t, w.writes, 2)
	assert.Equal(t, domain.CheckpointBatch, w.writes[0].label.Kind)

	interrupt := w.writes[1]
	assert.Equal(t, domain.CheckpointInterrupt, interrupt.label.Kind)
	assert.Equal(t, 1, interrupt.label.BatchNumber)
	assert.Equal(t, 2, interrupt.label.BatchSize)
	assert.Equal(t, 0, interrupt.label.Offset)
	assert.Equal(t, []domain.ItemResult{
		{QuestionID: "q1", Hypothesis: "ans-q1", Idx: 0},
		{QuestionID: "q2", Hypothesis: "ans-q2", Idx: 1},
	}, interrupt.results)

	assert.True(t, summary.Interrupted)
	assert.Equal(t, 2, summary.Processed)
	assert.Equal(t, 2, summary.NextOffset)
	assert.Len(t, summary.Checkpoints, 2)
	assert.Equal(t, events.TypeRunInterrupted, sink.types[len(sink.types)-1])
}

func TestRunInterruptBeforeAnyBatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w := &memoryWriter{}
	s := batch.New(funcProcessor(echo), w, batch.Config{BatchSize: 2})

	summary, err := s.Run(ctx, request(makeItems(4), 5, 2))
	require.ErrorIs(t, err, evalerrors.ErrInterrupted)

	require.Len(t, w.writes, 1)
	assert.Equal(t, domain.CheckpointInterrupt, w.writes[0].label.Kind)
	assert.Equal(t, 0, w.writes[0].label.BatchNumber)
	assert.Empty(t, w.writes[0].results)
	assert.Equal(t, 5, summary.NextOffset)
}

func TestRunCheckpointFailureStopsRun(t *testing.T) {
	w := &memoryWriter{err: errors.New("disk full")}
	var calls int
	var mu sync.Mutex
	proc := func(ctx context.Context, item domain.Item, idx int) (domain.ItemResult, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		return echo(ctx, item, idx)
	}
	s := batch.New(funcProcessor(proc), w, batch.Config{BatchSize: 2})

	_, err := s.Run(context.Background(), request(makeItems(6), 0, 2))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, 2, calls, "no batch proceeds past an unpersisted one")
}

func TestRunValidatesRequest(t *testing.T) {
	s := batch.New(funcProcessor(echo), &memoryWriter{}, batch.Config{BatchSize: 1})

	_, err := s.Run(context.Background(), domain.RunRequest{RunID: "r", Items: []domain.Item{{QuestionID: "a"}, {QuestionID: "a"}}})
	require.ErrorIs(t, err, domain.ErrDuplicateItem)

	_, err = s.Run(context.Background(), domain.RunRequest{Items: makeItems(1)})
	require.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func TestRunEmitsLifecycleEvents(t *testing.T) {
	sink := &recordingSink{}
	s := batch.New(funcProcessor(echo), &memoryWriter{}, batch.Config{BatchSize: 2}, batch.WithEventSink(sink))

	_, err := s.Run(context.Background(), request(makeItems(3), 0, 2))
	require.NoError(t, err)

	assert.Equal(t, []string{
		events.TypeRunStarted,
		events.TypeBatchCompleted, events.TypeCheckpointWritten,
		events.TypeBatchCompleted, events.TypeCheckpointWritten,
		events.TypeRunCompleted,
	}, sink.types)
}

// stubSearcher and stubAnswerer back the end-to-end scenario.
type stubSearcher struct{ fail map[string]bool }

func (s stubSearcher) Search(_ context.Context, q string) ([]domain.ContextSnippet, error) {
	if s.fail[q] {
		return nil, errors.New("search down")
	}
	return []domain.ContextSnippet{{Content: "ctx for " + q}}, nil
}

type stubAnswerer struct {
	answers map[string]string
	delay   map[string]time.Duration
	fail    bool
}

func (a stubAnswerer) Answer(_ context.Context, q string, _ []domain.ContextSnippet) (string, error) {
	time.Sleep(a.delay[q])
	if a.fail {
		return "", errors.New("generation down")
	}
	return a.answers[q], nil
}

func fastPolicy(t *testing.T) *retry.Policy {
	t.Helper()
	p, err := retry.New(configuration.RetryConfig{MaxAttempts: 3, InitialInterval: time.Millisecond, Multiplier: 2},
		retry.WithSleeper(func(ctx context.Context, _ time.Duration) error { return ctx.Err() }))
	require.NoError(t, err)
	return p
}

func TestEndToEndTwoItems(t *testing.T) {
	items := []domain.Item{{QuestionID: "q1", Question: "A?"}, {QuestionID: "q2", Question: "B?"}}
	ans := stubAnswerer{
		answers: map[string]string{"A?": "ans1", "B?": "ans2"},
		// q1 completes after q2.
		delay: map[string]time.Duration{"A?": 20 * time.Millisecond},
	}
	proc := processor.New(stubSearcher{}, ans, fastPolicy(t))

	dir := t.TempDir()
	w, err := checkpoint.NewWriter(dir)
	require.NoError(t, err)
	s := batch.New(proc, w, batch.Config{BatchSize: 2})

	summary, err := s.Run(context.Background(), request(items, 0, 2))
	require.NoError(t, err)
	require.Len(t, summary.Checkpoints, 1)
	assert.True(t, strings.HasPrefix(filepath.Base(summary.Checkpoints[0]), "batch_1_2_0_"))

	data, err := os.ReadFile(summary.Checkpoints[0])
	require.NoError(t, err)
	assert.Equal(t,
		`{"question_id":"q1","hypothesis":"ans1","idx":0}`+"\n"+
			`{"question_id":"q2","hypothesis":"ans2","idx":1}`+"\n",
		string(data))

	results, err := checkpoint.Scan(dir)
	require.NoError(t, err)
	assert.Equal(t, 2, checkpoint.NextOffset(results))
}

func TestEndToEndPermanentFailuresKeepRunning(t *testing.T) {
	items := makeItems(4)
	tests := []struct {
		name     string
		searcher stubSearcher
		answerer stubAnswerer
	}{
		{
			name:     "context search fails for batch 1",
			searcher: stubSearcher{fail: map[string]bool{"Q1?": true, "Q2?": true}},
			answerer: stubAnswerer{answers: map[string]string{"Q3?": "a3", "Q4?": "a4"}},
		},
		{
			name:     "generation fails everywhere",
			searcher: stubSearcher{},
			answerer: stubAnswerer{fail: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := &memoryWriter{}
			s := batch.New(processor.New(tt.searcher, tt.answerer, fastPolicy(t)), w, batch.Config{BatchSize: 2})

			summary, err := s.Run(context.Background(), request(items, 0, 2))
			require.NoError(t, err)

			require.Len(t, w.writes, 2, "the run proceeds to the next batch")
			for _, r := range w.writes[0].results {
				assert.Empty(t, r.Hypothesis)
			}
			assert.Equal(t, domain.CheckpointBatch, w.writes[0].label.Kind, "isolated failures are not batch failures")
			assert.Zero(t, summary.FailedBatches)
			assert.Equal(t, 4, summary.Processed)
		})
	}
}
