// Package metrics exposes the process-wide Prometheus collectors for scans,
// spreadsheet calls and the HTTP surface.
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
	scanAttemptsTotal          *prometheus.CounterVec
	scanAttemptDuration        *prometheus.HistogramVec
	sheetsCallsTotal           *prometheus.CounterVec
	reportRowsTotal            *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	rateLimitDelaySeconds      *prometheus.HistogramVec

	once sync.Once
)

// Init registers the collectors with the default registry.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		scanAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "a11y_scan_attempts_total",
				Help: "Scanner subprocess attempts, labeled by site host and outcome.",
			},
			[]string{"site", "outcome"},
		)

		scanAttemptDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "a11y_scan_attempt_duration_seconds",
				Help:    "Wall time per scanner attempt, labeled by outcome.",
				Buckets: []float64{30, 60, 300, 600, 1200, 1800, 3600, 7200},
			},
			[]string{"outcome"},
		)

		sheetsCallsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "a11y_sheets_calls_total",
				Help: "Spreadsheet API calls, labeled by operation and outcome.",
			},
			[]string{"op", "outcome"},
		)

		reportRowsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "a11y_report_rows_total",
				Help: "Report rows processed, labeled by phase (parsed, kept, published).",
			},
			[]string{"phase"},
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

		rateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "a11y_rate_limit_delay_seconds",
				Help:    "Time spent waiting on client-side rate limits, labeled by class.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60},
			},
			[]string{"class"},
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
	Init()
	return promhttp.Handler()
}

// ObserveScanAttempt records one scanner attempt against site, a host as
// returned by SanitizeSite.
func ObserveScanAttempt(site, outcome string, duration time.Duration) {
	Init()
	scanAttemptsTotal.WithLabelValues(site, outcome).Inc()
	if duration > 0 {
		scanAttemptDuration.WithLabelValues(outcome).Observe(duration.Seconds())
	}
}

// ObserveSheetsCall records one spreadsheet API call.
func ObserveSheetsCall(op string, err error) {
	Init()
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	sheetsCallsTotal.WithLabelValues(op, outcome).Inc()
}

// AddReportRows adds n rows to the given phase counter.
func AddReportRows(phase string, n int) {
	Init()
	if n > 0 {
		reportRowsTotal.WithLabelValues(phase).Add(float64(n))
	}
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveRateLimitDelay records time spent blocked on a rate limiter.
func ObserveRateLimitDelay(class string, duration time.Duration) {
	Init()
	rateLimitDelaySeconds.WithLabelValues(class).Observe(duration.Seconds())
}
