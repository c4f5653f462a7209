package domain

import (
	"fmt"
	"time"
)

// CheckpointKind distinguishes the three checkpoint artifact variants.
type CheckpointKind string

const (
	// CheckpointBatch is written after a batch completes normally.
	CheckpointBatch CheckpointKind = "batch"

	// CheckpointErrorBatch is written after a batch-level failure; all
	// hypotheses in it are empty.
	CheckpointErrorBatch CheckpointKind = "error_batch"

	// CheckpointInterrupt holds the accumulated results at cancellation.
	CheckpointInterrupt CheckpointKind = "interrupt_batch"
)

// CheckpointTimeLayout renders wall-clock time in artifact names.
const CheckpointTimeLayout = "20060102_150405"

// CheckpointLabel is the metadata used to name a persisted artifact.
type CheckpointLabel struct {
	Kind        CheckpointKind `json:"kind" validate:"required,oneof=batch error_batch interrupt_batch"`
	BatchNumber int            `json:"batch_number" validate:"min=0"`
	BatchSize   int            `json:"batch_size" validate:"min=1"`
	Offset      int            `json:"offset" validate:"min=0"`
	Time        time.Time      `json:"time"`
}

// Validate checks the label before it is turned into a file name.
func (l CheckpointLabel) Validate() error { return validate.Struct(l) }

// BaseName returns the artifact name without extension, e.g.
// "error_batch_3_8_100_20250101_120000".
func (l CheckpointLabel) BaseName() string {
	return fmt.Sprintf("%s_%d_%d_%d_%s",
		l.Kind, l.BatchNumber, l.BatchSize, l.Offset, l.Time.Format(CheckpointTimeLayout))
}

// LabelFor builds the label of a batch checkpoint.
func LabelFor(kind CheckpointKind, b Batch, batchSize int, at time.Time) CheckpointLabel {
	return CheckpointLabel{
		Kind:        kind,
		BatchNumber: b.Number,
		BatchSize:   batchSize,
		Offset:      b.Offset,
		Time:        at,
	}
}
