package batch

import (
	"time"

	"github.com/ahrav/go-recall/internal/domain"
)

// Outcome is the result of one completed batch.
type Outcome struct {
	Batch domain.Batch

	// Results holds exactly one record per batch item, in item order.
	Results []domain.ItemResult

	// Err is a *errors.BatchFailure when the batch failed as a whole; every
	// result then has an empty hypothesis.
	Err error

	// Duration is the wall time from launch to the last item finishing.
	Duration time.Duration
}

// Failed reports whether the batch failed as a whole.
func (o Outcome) Failed() bool { return o.Err != nil }

// Kind returns the checkpoint variant the outcome is persisted as.
func (o Outcome) Kind() domain.CheckpointKind {
	if o.Failed() {
		return domain.CheckpointErrorBatch
	}
	return domain.CheckpointBatch
}

// counts tallies answered and empty results.
func (o Outcome) counts() (answered, empty int) {
	for _, r := range o.Results {
		if r.HasAnswer() {
			answered++
		} else {
			empty++
		}
	}
	return answered, empty
}
