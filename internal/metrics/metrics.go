// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package metrics holds the Prometheus collectors for one pipeline process.
// Collectors live on a private registry so runs and tests never share state;
// a nil *Metrics is valid and records nothing.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "research_brief"

// Metrics groups the pipeline collectors.
type Metrics struct {
	Registry *prometheus.Registry

	ItemsAcquired   *prometheus.CounterVec
	StageFailures   *prometheus.CounterVec
	FeedFailures    prometheus.Counter
	EmbeddingErrors prometheus.Counter
	ScoringFallback prometheus.Counter
	ItemsScored     *prometheus.CounterVec
	RunDuration     prometheus.Histogram
}

// New creates and registers every collector on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		ItemsAcquired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_acquired_total",
			Help:      "Content items kept by each acquisition stage after budget truncation.",
		}, []string{"stage"}),
		StageFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_failures_total",
			Help:      "Acquisition stages that failed and contributed no items.",
		}, []string{"stage"}),
		FeedFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_failures_total",
			Help:      "Individual feeds skipped because they could not be fetched or parsed.",
		}),
		EmbeddingErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embedding_batch_failures_total",
			Help:      "Embedding batches replaced by zero vectors.",
		}),
		ScoringFallback: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scoring_fallbacks_total",
			Help:      "Relevance calls that switched from vector to generative scoring.",
		}),
		ItemsScored: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_scored_total",
			Help:      "Scored items by outcome.",
		}, []string{"outcome"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of complete pipeline runs.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}),
	}
	m.Registry.MustRegister(
		m.ItemsAcquired,
		m.StageFailures,
		m.FeedFailures,
		m.EmbeddingErrors,
		m.ScoringFallback,
		m.ItemsScored,
		m.RunDuration,
	)
	return m
}

// Acquired records n items kept by stage.
func (m *Metrics) Acquired(stage string, n int) {
	if m == nil {
		return
	}
	m.ItemsAcquired.WithLabelValues(stage).Add(float64(n))
}

// StageFailed records a failed acquisition stage.
func (m *Metrics) StageFailed(stage string) {
	if m == nil {
		return
	}
	m.StageFailures.WithLabelValues(stage).Inc()
}

// FeedFailed records one skipped feed.
func (m *Metrics) FeedFailed() {
	if m == nil {
		return
	}
	m.FeedFailures.Inc()
}

// EmbeddingBatchFailed records one zero-filled embedding batch.
func (m *Metrics) EmbeddingBatchFailed() {
	if m == nil {
		return
	}
	m.EmbeddingErrors.Inc()
}

// FellBack records a vector to generative mode switch.
func (m *Metrics) FellBack() {
	if m == nil {
		return
	}
	m.ScoringFallback.Inc()
}

// Scored records accepted and rejected counts.
func (m *Metrics) Scored(accepted, rejected int) {
	if m == nil {
		return
	}
	m.ItemsScored.WithLabelValues("accepted").Add(float64(accepted))
	m.ItemsScored.WithLabelValues("rejected").Add(float64(rejected))
}

// ObserveRun records the duration of one run in seconds.
func (m *Metrics) ObserveRun(seconds float64) {
	if m == nil {
		return
	}
	m.RunDuration.Observe(seconds)
}

// WriteTextfile writes the registry in the node_exporter textfile format.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.Registry); err != nil {
		return fmt.Errorf("writing metrics textfile %s: %w", path, err)
	}
	return nil
}
