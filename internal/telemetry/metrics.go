// Package telemetry exposes Prometheus collectors for the imagemirror
// service. Init must be called once at startup; every observer is a no-op
// until then so library tests need no metrics setup.
package telemetry

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	searchesTotal             *prometheus.CounterVec
	searchAttemptsTotal       *prometheus.CounterVec
	candidatesTotal           *prometheus.CounterVec
	imagesStoredTotal         prometheus.Counter
	imageBytesStoredTotal     prometheus.Counter
	pipelineDurationSeconds   prometheus.Histogram
	httpRequestsTotal         *prometheus.CounterVec
	httpRequestDurationSecond *prometheus.HistogramVec

	once sync.Once
)

// Init registers all collectors. Safe to call multiple times.
func Init() {
	once.Do(func() {
		searchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "imagemirror_searches_total",
				Help: "Total searches handled, labeled by terminal status.",
			},
			[]string{"status"},
		)

		searchAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "imagemirror_search_attempts_total",
				Help: "Provider handshake attempts, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		candidatesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "imagemirror_candidates_total",
				Help: "Pipeline candidates processed, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		imagesStoredTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "imagemirror_images_stored_total",
				Help: "Images successfully written to the blob sink.",
			},
		)

		imageBytesStoredTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "imagemirror_image_bytes_stored_total",
				Help: "Total bytes written to the blob sink.",
			},
		)

		pipelineDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "imagemirror_pipeline_duration_seconds",
				Help:    "Wall time of one fetch-transform-store pipeline run.",
				Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSecond = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15, 60},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler exposing the Prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveSearch increments the terminal search counter.
func ObserveSearch(status string) {
	if searchesTotal != nil {
		searchesTotal.WithLabelValues(status).Inc()
	}
}

// ObserveSearchAttempt increments the per-attempt counter.
func ObserveSearchAttempt(outcome string) {
	if searchAttemptsTotal != nil {
		searchAttemptsTotal.WithLabelValues(outcome).Inc()
	}
}

// ObserveCandidate records a per-candidate pipeline outcome.
func ObserveCandidate(outcome string) {
	if candidatesTotal != nil {
		candidatesTotal.WithLabelValues(outcome).Inc()
	}
}

// ObserveStoredImage records a successful store and its payload size.
func ObserveStoredImage(bytes int) {
	if imagesStoredTotal != nil {
		imagesStoredTotal.Inc()
	}
	if imageBytesStoredTotal != nil && bytes > 0 {
		imageBytesStoredTotal.Add(float64(bytes))
	}
}

// ObservePipelineDuration records the wall time of a pipeline run.
func ObservePipelineDuration(d time.Duration) {
	if pipelineDurationSeconds != nil {
		pipelineDurationSeconds.Observe(d.Seconds())
	}
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	if httpRequestsTotal == nil {
		return
	}
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSecond.WithLabelValues(method, route).Observe(duration.Seconds())
}
