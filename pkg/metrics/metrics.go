// Package metrics defines the Prometheus metric collectors used by the
// evaluation service and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the service.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	BatchesTotal         prometheus.Counter
	BatchDuration        prometheus.Histogram
	ExamplesScoredTotal  prometheus.Counter
	ExamplesSkippedTotal *prometheus.CounterVec
	PairsScoredTotal     prometheus.Counter
	RunsTotal            *prometheus.CounterVec
	BLEUPrecision        *prometheus.GaugeVec
	BLEURecall           *prometheus.GaugeVec
	Perplexity           prometheus.Gauge

	CacheHitsTotal      prometheus.Counter
	CacheMissesTotal    prometheus.Counter
	ReportsSavedTotal   *prometheus.CounterVec
	CircuitBreakerState *prometheus.GaugeVec
}

// New creates all collectors and registers them with reg. Passing
// prometheus.DefaultRegisterer exposes them through Handler; tests pass a
// fresh registry so repeated construction does not panic.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		HTTPRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests by method, path, and status.",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"method", "path"}),
		HTTPRequestsInFlight: f.NewGauge(prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed.",
		}),

		BatchesTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "evaluation_batches_total",
			Help: "Total decoded batches evaluated.",
		}),
		BatchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "evaluation_batch_duration_seconds",
			Help:    "Time spent scoring one batch.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
		}),
		ExamplesScoredTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "evaluation_examples_scored_total",
			Help: "Total examples that contributed to a corpus aggregate.",
		}),
		ExamplesSkippedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "evaluation_examples_skipped_total",
			Help: "Total examples skipped by reason (empty_beam, no_references).",
		}, []string{"reason"}),
		PairsScoredTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "evaluation_pairs_scored_total",
			Help: "Total (reference, candidate) pairs scored.",
		}),
		RunsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "evaluation_runs_total",
			Help: "Evaluation passes by outcome (ok, error, empty).",
		}, []string{"outcome"}),
		BLEUPrecision: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "evaluation_bleu_precision",
			Help: "Corpus BLEU precision of the latest pass by order.",
		}, []string{"order"}),
		BLEURecall: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "evaluation_bleu_recall",
			Help: "Corpus BLEU recall of the latest pass by order.",
		}, []string{"order"}),
		Perplexity: f.NewGauge(prometheus.GaugeOpts{
			Name: "evaluation_perplexity",
			Help: "Mean batch perplexity of the latest pass.",
		}),

		CacheHitsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "score_cache_hits_total",
			Help: "Total number of score cache hits.",
		}),
		CacheMissesTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "score_cache_misses_total",
			Help: "Total number of score cache misses.",
		}),
		ReportsSavedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "reports_delivered_total",
			Help: "Reports delivered by sink and status.",
		}, []string{"sink", "status"}),
		CircuitBreakerState: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
		}, []string{"name"}),
	}
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
