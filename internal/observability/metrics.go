package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors of an evaluation run. One value
// satisfies the metrics hooks of the retry policy, item processor, batch
// scheduler and checkpoint writer.
type Metrics struct {
	// Attempts counts remote call attempts.
	// Labels: operation (context_search|generation), failed (true|false)
	Attempts *prometheus.CounterVec

	// Exhausted counts operations that failed every attempt.
	// Labels: operation
	Exhausted *prometheus.CounterVec

	// Items counts processed items by outcome.
	// Labels: status (answered|empty_answer|search_failed|generation_failed)
	Items *prometheus.CounterVec

	// BatchDuration measures wall time per batch in seconds.
	// Labels: kind (batch|error_batch)
	BatchDuration *prometheus.HistogramVec

	// Checkpoints counts persisted artifacts.
	// Labels: kind (batch|error_batch|interrupt_batch)
	Checkpoints *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg. Pass
// prometheus.DefaultRegisterer in production and a fresh registry in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Attempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recall_remote_attempts_total",
				Help: "Remote call attempts by operation and outcome",
			},
			[]string{"operation", "failed"},
		),
		Exhausted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recall_retries_exhausted_total",
				Help: "Operations that failed on every attempt",
			},
			[]string{"operation"},
		),
		Items: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recall_items_total",
				Help: "Processed items by status",
			},
			[]string{"status"},
		),
		BatchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "recall_batch_duration_seconds",
				Help:    "Wall time of each batch",
				Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
			},
			[]string{"kind"},
		),
		Checkpoints: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recall_checkpoints_total",
				Help: "Checkpoint artifacts written by kind",
			},
			[]string{"kind"},
		),
	}
}

// ObserveAttempt records one remote call attempt.
func (m *Metrics) ObserveAttempt(operation string, failed bool) {
	m.Attempts.WithLabelValues(operation, strconv.FormatBool(failed)).Inc()
}

// ObserveExhausted records an operation whose attempts all failed.
func (m *Metrics) ObserveExhausted(operation string) {
	m.Exhausted.WithLabelValues(operation).Inc()
}

// ObserveItem records the outcome of one item.
func (m *Metrics) ObserveItem(status string) {
	m.Items.WithLabelValues(status).Inc()
}

// ObserveBatch records the wall time of one batch.
func (m *Metrics) ObserveBatch(kind string, d time.Duration) {
	m.BatchDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// ObserveCheckpoint records one persisted artifact.
func (m *Metrics) ObserveCheckpoint(kind string) {
	m.Checkpoints.WithLabelValues(kind).Inc()
}
