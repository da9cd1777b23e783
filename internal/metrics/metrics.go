// Package metrics exposes Prometheus collectors for the build pipeline.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// API call sources.
const (
	SourceCache  = "cache"
	SourceRemote = "remote"
)

// Page outcomes.
const (
	PageLoaded = "loaded"
	PageFailed = "failed"
)

var (
	apiCallsTotal           *prometheus.CounterVec
	pagesTotal              *prometheus.CounterVec
	recordsTotal            prometheus.Counter
	pageDurationSeconds     prometheus.Histogram
	vocabularyMismatchTotal *prometheus.CounterVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		apiCallsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sneakerdb_api_calls_total",
				Help: "Total number of API calls, labeled by endpoint and source (cache or remote).",
			},
			[]string{"endpoint", "source"},
		)

		pagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sneakerdb_pages_total",
				Help: "Total number of catalog pages processed, labeled by outcome.",
			},
			[]string{"status"},
		)

		recordsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "sneakerdb_records_total",
				Help: "Total number of normalized records committed to the store.",
			},
		)

		pageDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "sneakerdb_page_duration_seconds",
				Help:    "Histogram of per-page fetch-and-commit latencies.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
		)

		vocabularyMismatchTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sneakerdb_vocabulary_mismatch_total",
				Help: "Total records rejected for values outside a reference vocabulary.",
			},
			[]string{"field"},
		)
	})
}

// ObserveAPICall increments the API call counter.
func ObserveAPICall(endpoint, source string) {
	if apiCallsTotal != nil {
		apiCallsTotal.WithLabelValues(endpoint, source).Inc()
	}
}

// ObservePage records the outcome and duration of one page.
func ObservePage(status string, duration time.Duration) {
	if pagesTotal != nil {
		pagesTotal.WithLabelValues(status).Inc()
	}
	if pageDurationSeconds != nil {
		pageDurationSeconds.Observe(duration.Seconds())
	}
}

// ObserveRecords adds committed record counts.
func ObserveRecords(n int) {
	if recordsTotal != nil && n > 0 {
		recordsTotal.Add(float64(n))
	}
}

// ObserveVocabularyMismatch counts a rejected brand or gender value.
func ObserveVocabularyMismatch(field string) {
	if vocabularyMismatchTotal != nil {
		vocabularyMismatchTotal.WithLabelValues(field).Inc()
	}
}

// Handler returns an http.Handler exposing /metrics and /healthz for the
// duration of a run.
func Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	return r
}
