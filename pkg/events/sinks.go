package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
)

// NDJSONSink appends one JSON envelope per line to a writer. It is safe for
// concurrent use.
type NDJSONSink struct {
	mu     sync.Mutex
	w      io.Writer
	closer io.Closer
}

// NewNDJSONSink writes to w.
func NewNDJSONSink(w io.Writer) *NDJSONSink { return &NDJSONSink{w: w} }

// OpenNDJSONFile opens path for appending, creating it if absent.
func OpenNDJSONFile(path string) (*NDJSONSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}
	return &NDJSONSink{w: f, closer: f}, nil
}

// Append writes envelope as a single line.
func (s *NDJSONSink) Append(_ context.Context, envelope Envelope) error {
	data, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.w.Write(data)
	return err
}

// Close closes the underlying file, if the sink owns one.
func (s *NDJSONSink) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

// MultiSink fans each event out to every sink. All sinks are attempted;
// their errors are joined.
type MultiSink []EventSink

// Append implements EventSink.
func (m MultiSink) Append(ctx context.Context, envelope Envelope) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Append(ctx, envelope); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
