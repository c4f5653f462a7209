// Package observability builds the process-wide logger, the Prometheus
// metrics of a run and the OpenTelemetry tracer provider.
package observability

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/ahrav/go-recall/internal/configuration"
)

// NewLogger returns a slog logger writing to w in the configured format and
// level. It does not install itself as the default logger.
func NewLogger(w io.Writer, cfg configuration.LoggingConfig) (*slog.Logger, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}

	switch strings.ToLower(cfg.Format) {
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("unknown log level %q: %w", s, err)
	}
	return level, nil
}
