package domain

import (
	"fmt"
	"time"
)

// DefaultBatchSize processes items one at a time.
const DefaultBatchSize = 1

// RunRequest describes one evaluation run over an already-sliced item list.
type RunRequest struct {
	// RunID correlates logs, events and the Temporal workflow.
	RunID string `json:"run_id" validate:"required"`

	// Items are the remaining items, i.e. the input sliced at Offset.
	Items []Item `json:"items" validate:"dive"`

	// Offset is the absolute index of Items[0] in the full input.
	Offset int `json:"offset" validate:"min=0"`

	// BatchSize bounds per-batch concurrency.
	BatchSize int `json:"batch_size" validate:"min=1"`
}

// Validate checks the request shape and item uniqueness.
func (r *RunRequest) Validate() error {
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	return ValidateItems(r.Items)
}

// Batches partitions the request's items.
func (r *RunRequest) Batches() []Batch { return Partition(r.Items, r.Offset, r.BatchSize) }

// RunSummary reports what a run did. It is returned even when the run was
// interrupted, reflecting exactly the items attempted so far.
type RunSummary struct {
	RunID         string        `json:"run_id"`
	Total         int           `json:"total"`
	Processed     int           `json:"processed"`
	Answered      int           `json:"answered"`
	Empty         int           `json:"empty"`
	FailedBatches int           `json:"failed_batches"`
	Checkpoints   []string      `json:"checkpoints"`
	Interrupted   bool          `json:"interrupted"`
	NextOffset    int           `json:"next_offset"`
	Duration      time.Duration `json:"duration"`
}

// Record folds a batch's results into the summary.
func (s *RunSummary) Record(results []ItemResult) {
	for _, r := range results {
		s.Processed++
		if r.HasAnswer() {
			s.Answered++
		} else {
			s.Empty++
		}
		if r.Idx+1 > s.NextOffset {
			s.NextOffset = r.Idx + 1
		}
	}
}
