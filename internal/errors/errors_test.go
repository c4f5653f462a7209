package errors_test

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	evalerrors "github.com/ahrav/go-recall/internal/errors"
)

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   evalerrors.ErrorType
	}{
		{"rate limited", http.StatusTooManyRequests, evalerrors.ErrorTypeRateLimit},
		{"unauthorized", http.StatusUnauthorized, evalerrors.ErrorTypeAuth},
		{"forbidden", http.StatusForbidden, evalerrors.ErrorTypePermission},
		{"gateway timeout", http.StatusGatewayTimeout, evalerrors.ErrorTypeTimeout},
		{"request timeout", http.StatusRequestTimeout, evalerrors.ErrorTypeTimeout},
		{"bad request", http.StatusBadRequest, evalerrors.ErrorTypeValidation},
		{"internal error", http.StatusInternalServerError, evalerrors.ErrorTypeProvider},
		{"bad gateway", http.StatusBadGateway, evalerrors.ErrorTypeProvider},
		{"not found", http.StatusNotFound, evalerrors.ErrorTypeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, evalerrors.ClassifyStatus(tt.status))
		})
	}
}

func TestRemoteError(t *testing.T) {
	err := evalerrors.NewRemoteError("context_search", http.StatusServiceUnavailable, "  overloaded \n")

	assert.Equal(t, "context_search error (status 503): overloaded", err.Error())
	assert.Equal(t, evalerrors.ErrorTypeProvider, err.Type)
	assert.True(t, err.IsRetryable())

	auth := evalerrors.NewRemoteError("openai", http.StatusUnauthorized, "bad key")
	assert.False(t, auth.IsRetryable())
}

func TestRemoteErrorTruncatesLongBodies(t *testing.T) {
	err := evalerrors.NewRemoteError("openai", http.StatusBadGateway, strings.Repeat("x", 2000))

	msg := err.Error()
	assert.Less(t, len(msg), 600)
	assert.True(t, strings.HasSuffix(msg, "..."))
	assert.Len(t, err.Body, 2000, "body itself is kept intact")
}

func TestRemoteErrorTruncatesOnRuneBoundary(t *testing.T) {
	// One ASCII byte shifts the three-byte runes so the limit lands mid-rune.
	body := "x" + strings.Repeat("界", 400)
	err := evalerrors.NewRemoteError("google", http.StatusTooManyRequests, body)

	msg := err.Error()
	assert.True(t, utf8.ValidString(msg))
	assert.True(t, strings.HasSuffix(msg, "界..."))
}

func TestRetryExhaustedErrorUnwraps(t *testing.T) {
	remote := evalerrors.NewRemoteError("context_search", http.StatusBadGateway, "down")
	err := fmt.Errorf("search: %w", &evalerrors.RetryExhaustedError{
		Operation: "context_search",
		Attempts:  3,
		Err:       remote,
	})

	var exhausted *evalerrors.RetryExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 3, exhausted.Attempts)

	var got *evalerrors.RemoteError
	require.ErrorAs(t, err, &got)
	assert.Equal(t, http.StatusBadGateway, got.StatusCode)
	assert.Contains(t, err.Error(), "after 3 attempts")
}

func TestBatchFailure(t *testing.T) {
	cause := &evalerrors.PanicError{Value: "boom"}
	err := &evalerrors.BatchFailure{BatchNumber: 2, Offset: 10, Start: 4, Size: 4, Err: cause}

	assert.Equal(t, "batch 2 (idx 14, size 4) failed: panic: boom", err.Error())

	var p *evalerrors.PanicError
	require.ErrorAs(t, err, &p)
	assert.Equal(t, "boom", p.Value)
}

func TestPermanent(t *testing.T) {
	base := errors.New("bad request body")

	assert.NoError(t, evalerrors.Permanent(nil))
	assert.False(t, evalerrors.IsPermanent(base))

	wrapped := fmt.Errorf("build: %w", evalerrors.Permanent(base))
	assert.True(t, evalerrors.IsPermanent(wrapped))
	require.ErrorIs(t, wrapped, base)
	assert.Equal(t, "build: bad request body", wrapped.Error())
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want evalerrors.ErrorType
	}{
		{"nil", nil, ""},
		{"remote", evalerrors.NewRemoteError("x", http.StatusTooManyRequests, ""), evalerrors.ErrorTypeRateLimit},
		{
			"wrapped remote",
			&evalerrors.RetryExhaustedError{Err: evalerrors.NewRemoteError("x", http.StatusUnauthorized, "")},
			evalerrors.ErrorTypeAuth,
		},
		{"deadline", context.DeadlineExceeded, evalerrors.ErrorTypeTimeout},
		{"dial", &net.OpError{Op: "dial", Err: errors.New("connection refused")}, evalerrors.ErrorTypeNetwork},
		{"other", errors.New("strange"), evalerrors.ErrorTypeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, evalerrors.Classify(tt.err))
		})
	}
}
