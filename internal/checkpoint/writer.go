// Package checkpoint persists batch results as newline-delimited JSON
// artifacts and reads them back to compute where a run should resume.
// Artifacts are published atomically, never overwritten and never deleted.
package checkpoint

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/ahrav/go-recall/internal/domain"
)

// Extension is the file extension of every checkpoint artifact.
const Extension = ".log"

const (
	dirPerm  = 0o755
	filePerm = 0o644

	// maxNameAttempts bounds collision retries when publishing.
	maxNameAttempts = 8
	suffixLen       = 8
)

var errNameExhausted = errors.New("could not find a free checkpoint name")

// Metrics receives one observation per published artifact.
type Metrics interface {
	ObserveCheckpoint(kind string)
}

// Writer writes checkpoint artifacts into one directory. It is safe for
// concurrent use; each Write publishes a distinct file.
type Writer struct {
	dir     string
	now     func() time.Time
	logger  *slog.Logger
	metrics Metrics
}

// Option configures a Writer.
type Option func(*Writer)

// WithClock replaces the wall clock used for labels without a time.
func WithClock(now func() time.Time) Option { return func(w *Writer) { w.now = now } }

// WithLogger sets the writer's logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Writer) { w.logger = l.With("component", "checkpoint") }
}

// WithMetrics records published artifacts.
func WithMetrics(m Metrics) Option { return func(w *Writer) { w.metrics = m } }

// NewWriter returns a Writer for dir, creating it if absent.
func NewWriter(dir string, opts ...Option) (*Writer, error) {
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return nil, fmt.Errorf("create checkpoint dir: %w", err)
	}
	w := &Writer{
		dir:    dir,
		now:    time.Now,
		logger: slog.Default().With("component", "checkpoint"),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Dir returns the checkpoint directory.
func (w *Writer) Dir() string { return w.dir }

// Write serializes results, one JSON record per line in the given order,
// and publishes them under a name derived from label. When label.Time is
// zero the writer's clock is used. If the name is taken a short random
// suffix is appended; an existing artifact is never replaced. The file is
// fsynced before Write returns its path.
func (w *Writer) Write(results []domain.ItemResult, label domain.CheckpointLabel) (string, error) {
	if label.Time.IsZero() {
		label.Time = w.now()
	}
	if err := label.Validate(); err != nil {
		return "", fmt.Errorf("invalid checkpoint label: %w", err)
	}

	tmpPath, err := w.writeTemp(results)
	if err != nil {
		return "", err
	}
	defer os.Remove(tmpPath)

	path, err := w.publish(tmpPath, label.BaseName())
	if err != nil {
		return "", err
	}
	_ = syncDir(w.dir)

	if w.metrics != nil {
		w.metrics.ObserveCheckpoint(string(label.Kind))
	}
	w.logger.Info("checkpoint written",
		"path", path,
		"kind", label.Kind,
		"batch", label.BatchNumber,
		"records", len(results))
	return path, nil
}

// writeTemp encodes results into a hidden temp file in the checkpoint
// directory and fsyncs it.
func (w *Writer) writeTemp(results []domain.ItemResult) (string, error) {
	tmp, err := os.CreateTemp(w.dir, ".tmp-*")
	if err != nil {
		return "", fmt.Errorf("create temp checkpoint: %w", err)
	}
	tmpPath := tmp.Name()
	fail := func(err error) (string, error) {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return "", err
	}

	_ = os.Chmod(tmpPath, filePerm)

	bw := bufio.NewWriter(tmp)
	enc := json.NewEncoder(bw)
	enc.SetEscapeHTML(false)
	for _, r := range results {
		if err := enc.Encode(r); err != nil {
			return fail(fmt.Errorf("encode record idx %d: %w", r.Idx, err))
		}
	}
	if err := bw.Flush(); err != nil {
		return fail(fmt.Errorf("flush checkpoint: %w", err))
	}
	if err := tmp.Sync(); err != nil {
		return fail(fmt.Errorf("sync checkpoint: %w", err))
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("close checkpoint: %w", err)
	}
	return tmpPath, nil
}

// publish hard-links tmpPath to a free name. os.Link fails when the target
// exists, so a concurrent or repeated write can never clobber an artifact.
func (w *Writer) publish(tmpPath, base string) (string, error) {
	name := base + Extension
	for range maxNameAttempts {
		path := filepath.Join(w.dir, name)
		err := os.Link(tmpPath, path)
		if err == nil {
			return path, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", fmt.Errorf("publish checkpoint %s: %w", name, err)
		}
		w.logger.Debug("checkpoint name taken", "name", name)
		name = base + "_" + uuid.NewString()[:suffixLen] + Extension
	}
	return "", fmt.Errorf("%w: %s", errNameExhausted, base)
}

// syncDir flushes directory metadata so the new entry survives a crash.
func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}
