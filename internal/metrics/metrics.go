// Package metrics exposes Prometheus collectors for the harvester service.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	harvestDocumentsTotal      *prometheus.CounterVec
	harvestDeniesTotal         *prometheus.CounterVec
	harvestCandidatesTotal     *prometheus.CounterVec
	harvestSpecsTotal          *prometheus.CounterVec
	harvestRunsTotal           *prometheus.CounterVec
	harvestActiveWorkers       prometheus.Gauge
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	rateLimitDelaysSeconds     *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		harvestDocumentsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvest_documents_total",
				Help: "Documents fetched, labeled by site and outcome.",
			},
			[]string{"site", "outcome"},
		)

		harvestDeniesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvest_gate_denies_total",
				Help: "URL safety gate denials, labeled by reason.",
			},
			[]string{"reason"},
		)

		harvestCandidatesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvest_candidates_total",
				Help: "Spec candidates extracted, labeled by method.",
			},
			[]string{"method"},
		)

		harvestSpecsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvest_specs_total",
				Help: "Reconciled spec records, labeled by final status.",
			},
			[]string{"status"},
		)

		harvestRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvest_runs_total",
				Help: "Harvest work items processed, labeled by outcome.",
			},
			[]string{"status"},
		)

		harvestActiveWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "harvest_active_workers",
				Help: "Workers currently processing a work item.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)

		rateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "harvest_rate_limit_delays_seconds",
				Help:    "Histogram of per-domain rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveDocument records one fetch attempt outcome (fetched, failed,
// denied) for a site.
func ObserveDocument(site, outcome string) {
	harvestDocumentsTotal.WithLabelValues(SanitizeSite(site), outcome).Inc()
}

// ObserveGateDeny increments the denial counter for a gate reason.
func ObserveGateDeny(reason string) {
	harvestDeniesTotal.WithLabelValues(reason).Inc()
}

// ObserveCandidates adds extracted candidates for a method.
func ObserveCandidates(method string, count int) {
	if count > 0 {
		harvestCandidatesTotal.WithLabelValues(method).Add(float64(count))
	}
}

// ObserveSpec increments the reconciled-record counter for a status.
func ObserveSpec(status string) {
	harvestSpecsTotal.WithLabelValues(status).Inc()
}

// ObserveRun increments the work-item counter for the given outcome.
func ObserveRun(status string) {
	harvestRunsTotal.WithLabelValues(status).Inc()
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	harvestActiveWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	harvestActiveWorkers.Dec()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	rateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}
