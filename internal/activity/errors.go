package activity

import (
	"errors"

	"go.temporal.io/sdk/temporal"
)

// ErrActivityValidation is returned when activity input fails validation.
// Such failures are programming errors and are never retried.
var ErrActivityValidation = errors.New("activity input validation failed")

// Application error types reported to the workflow.
const (
	ErrorTypeValidation = "Validation"
	ErrorTypeCheckpoint = "Checkpoint"
	ErrorTypeProcess    = "Process"
)

// nonRetryable wraps cause as a Temporal application error the server will
// not retry.
func nonRetryable(tag string, cause error, msg string) error {
	return temporal.NewNonRetryableApplicationError(msg, tag, cause)
}

// retryable wraps cause as a Temporal application error subject to the
// activity retry policy.
func retryable(tag string, cause error, msg string) error {
	return temporal.NewApplicationErrorWithCause(msg, tag, cause)
}
