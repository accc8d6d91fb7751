package observability

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains the Prometheus metrics for a fetch run.
// All collectors are registered on the Registerer given to NewMetrics, so a
// one-shot CLI can gather them into a textfile at exit.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// PagesFetched counts pages returned with status 200.
	PagesFetched prometheus.Counter

	// WorksFetched counts normalized work records accumulated.
	WorksFetched prometheus.Counter

	// RequestsTotal counts page requests, labeled by outcome (HTTP status, "network" or "malformed").
	RequestsTotal *prometheus.CounterVec

	// Throttled counts throttling responses, labeled by HTTP status.
	Throttled *prometheus.CounterVec

	// PageSizeReductions counts first-page page-size reductions.
	PageSizeReductions prometheus.Counter

	// BackoffSeconds observes backoff waits in seconds.
	BackoffSeconds prometheus.Histogram

	// RunDuration observes the end-to-end duration of runs in seconds, labeled by result.
	RunDuration *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance registered on reg.
// The namespace is used as a prefix for all metric names.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		PagesFetched: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pages_fetched_total",
			Help:      "Total number of result pages fetched successfully",
		}),
		WorksFetched: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "works_fetched_total",
			Help:      "Total number of work records accumulated",
		}),
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total number of page requests by outcome",
		}, []string{"outcome"}),
		Throttled: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "throttled_total",
			Help:      "Total number of throttling responses by status",
		}, []string{"status"}),
		PageSizeReductions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "page_size_reductions_total",
			Help:      "Total number of first-page page-size reductions",
		}),
		BackoffSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backoff_seconds",
			Help:      "Backoff waits in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		}),
		RunDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of fetch runs in seconds",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}, []string{"result"}),
	}
}

// RecordRequest counts one page request by outcome label.
func (m *Metrics) RecordRequest(outcome string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(outcome).Inc()
}

// RecordPage records a successful page carrying works records.
func (m *Metrics) RecordPage(works int) {
	if m == nil {
		return
	}
	m.PagesFetched.Inc()
	m.WorksFetched.Add(float64(works))
}

// RecordThrottle records a throttling response and the wait it caused.
func (m *Metrics) RecordThrottle(statusCode int, wait time.Duration) {
	if m == nil {
		return
	}
	m.Throttled.WithLabelValues(fmt.Sprintf("%d", statusCode)).Inc()
	m.BackoffSeconds.Observe(wait.Seconds())
}

// RecordPageSizeReduction records the one-time first-page reduction.
func (m *Metrics) RecordPageSizeReduction() {
	if m == nil {
		return
	}
	m.PageSizeReductions.Inc()
}

// RecordRun records the run duration with result "success" or "aborted".
func (m *Metrics) RecordRun(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.RunDuration.WithLabelValues(result).Observe(d.Seconds())
}

// WriteTextfile writes everything gathered by g to path in the Prometheus
// text format, for the node exporter textfile collector.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	if err := prometheus.WriteToTextfile(path, g); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}
	return nil
}
