// Package errors defines the failure taxonomy of an evaluation run.
// Failures are contained at the smallest granularity: a RemoteError belongs
// to one call, a RetryExhaustedError to one retried operation, a BatchFailure
// to one batch. Only ErrInterrupted is meant to cross the batch boundary.
package errors

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// ErrorType categorizes remote failures for diagnostics and metrics.
// Classification never changes whether the retry policy retries a
// RemoteError; it records what kind of failure was observed.
type ErrorType string

const (
	// ErrorTypeTimeout indicates request timeout or deadline exceeded.
	ErrorTypeTimeout ErrorType = "timeout"

	// ErrorTypeRateLimit indicates the remote service throttled the caller.
	ErrorTypeRateLimit ErrorType = "rate_limit"

	// ErrorTypeNetwork indicates network connectivity issues.
	ErrorTypeNetwork ErrorType = "network"

	// ErrorTypeProvider indicates a server-side failure (5xx).
	ErrorTypeProvider ErrorType = "provider_unavailable"

	// ErrorTypeValidation indicates the request was rejected as malformed.
	ErrorTypeValidation ErrorType = "validation_failed"

	// ErrorTypeAuth indicates authentication failed.
	ErrorTypeAuth ErrorType = "authentication"

	// ErrorTypePermission indicates insufficient permissions.
	ErrorTypePermission ErrorType = "permission_denied"

	// ErrorTypeUnknown indicates an unclassified error.
	ErrorTypeUnknown ErrorType = "unknown"
)

// Run-level sentinel errors.
var (
	// ErrInterrupted indicates the operator cancelled the run.
	ErrInterrupted = errors.New("run interrupted")

	// ErrEmptyResponse indicates a success status with an undecodable body.
	ErrEmptyResponse = errors.New("empty response body")
)

// maxBodyInMessage bounds how much of a response body is echoed in Error().
const maxBodyInMessage = 512

// RemoteError captures a non-success response from the context search
// service or a generation provider.
type RemoteError struct {
	Service    string    `json:"service"`     // "context_search", "openai", ...
	StatusCode int       `json:"status_code"` // HTTP status code
	Body       string    `json:"body"`        // Raw response body
	Type       ErrorType `json:"type"`        // Classified error type
}

// Error returns the service, status and a bounded excerpt of the body.
func (e *RemoteError) Error() string {
	body := strings.TrimSpace(e.Body)
	if len(body) > maxBodyInMessage {
		cut := maxBodyInMessage
		for cut > 0 && !utf8.RuneStart(body[cut]) {
			cut--
		}
		body = body[:cut] + "..."
	}
	return fmt.Sprintf("%s error (status %d): %s", e.Service, e.StatusCode, body)
}

// IsRetryable reports whether the failure kind is usually transient.
// The retry policy retries every RemoteError; this is used for logs.
func (e *RemoteError) IsRetryable() bool {
	switch e.Type {
	case ErrorTypeTimeout, ErrorTypeRateLimit, ErrorTypeNetwork, ErrorTypeProvider:
		return true
	default:
		return false
	}
}

// NewRemoteError builds a RemoteError and classifies its status.
func NewRemoteError(service string, statusCode int, body string) *RemoteError {
	return &RemoteError{
		Service:    service,
		StatusCode: statusCode,
		Body:       body,
		Type:       ClassifyStatus(statusCode),
	}
}

// RetryExhaustedError wraps the last failure of an operation after the
// retry policy gave up.
type RetryExhaustedError struct {
	Operation string
	Attempts  int
	Err       error
}

// Error names the operation and the attempt count.
func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("%s: all retries exhausted after %d attempts: %v", e.Operation, e.Attempts, e.Err)
}

// Unwrap exposes the last failure.
func (e *RetryExhaustedError) Unwrap() error { return e.Err }

// BatchFailure is an unexpected error that escaped an item's isolation
// boundary. The scheduler converts it into empty results for the batch.
type BatchFailure struct {
	BatchNumber int
	Offset      int
	Start       int
	Size        int
	Err         error
}

// Error identifies the batch by number and absolute start index.
func (e *BatchFailure) Error() string {
	return fmt.Sprintf("batch %d (idx %d, size %d) failed: %v",
		e.BatchNumber, e.Offset+e.Start, e.Size, e.Err)
}

// Unwrap exposes the escaped error.
func (e *BatchFailure) Unwrap() error { return e.Err }

// PanicError records a recovered panic from an item task.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string { return fmt.Sprintf("panic: %v", e.Value) }

// permanentError marks a failure that retrying cannot fix.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err so the retry policy stops after the current attempt.
// A nil err stays nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err, or anything it wraps, was marked Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}
