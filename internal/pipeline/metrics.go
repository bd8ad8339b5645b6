// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/pdiddy/paper-tracker/internal/httputil"
)

const namespace = "paper_tracker"

// Metrics holds the counters of one batch run. They live on a private
// registry so a run can be dumped to a textfile for node_exporter without
// touching the global default registry. A nil *Metrics records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	// Papers counts finished papers by status ("succeeded" or "failed").
	Papers *prometheus.CounterVec

	// StageFailures counts per-paper failures by the stage that failed.
	StageFailures *prometheus.CounterVec

	// PaperDuration observes wall-clock seconds per paper, retries included.
	PaperDuration prometheus.Histogram

	// Retries counts retry waits by operation and failure kind.
	Retries *prometheus.CounterVec

	// TokensUsed counts provider-reported tokens across the run.
	TokensUsed prometheus.Counter
}

// NewMetrics registers the batch metrics on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		Registry: reg,
		Papers: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "papers_total",
			Help:      "Papers processed, by outcome",
		}, []string{"status"}),
		StageFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_failures_total",
			Help:      "Per-paper failures, by pipeline stage",
		}, []string{"stage"}),
		PaperDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "paper_duration_seconds",
			Help:      "Wall-clock time spent on one paper",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}),
		Retries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retries_total",
			Help:      "Retry waits, by operation and failure kind",
		}, []string{"op", "kind"}),
		TokensUsed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_tokens_total",
			Help:      "Tokens reported by the analysis provider",
		}),
	}
}

func (m *Metrics) recordSuccess(d time.Duration, tokens int) {
	if m == nil {
		return
	}
	m.Papers.WithLabelValues("succeeded").Inc()
	m.PaperDuration.Observe(d.Seconds())
	if tokens > 0 {
		m.TokensUsed.Add(float64(tokens))
	}
}

func (m *Metrics) recordFailure(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.Papers.WithLabelValues("failed").Inc()
	m.StageFailures.WithLabelValues(stage).Inc()
	m.PaperDuration.Observe(d.Seconds())
}

// ObserveRetry matches httputil.Policy.OnRetry.
func (m *Metrics) ObserveRetry(op string, kind httputil.Kind) {
	if m == nil {
		return
	}
	m.Retries.WithLabelValues(op, kind.String()).Inc()
}

// WriteTextfile writes the registry in the Prometheus text format.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.Registry); err != nil {
		return fmt.Errorf("writing metrics: %w", err)
	}
	return nil
}
