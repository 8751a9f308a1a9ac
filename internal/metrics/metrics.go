// Package metrics exposes Prometheus collectors for the crawler daemon.
package metrics

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
	crawlRunsTotal             *prometheus.CounterVec
	clipsUpsertedTotal         *prometheus.CounterVec
	subjectsCrawledTotal       prometheus.Counter
	providerCallsTotal         *prometheus.CounterVec
	quotaUsedUnits             prometheus.Gauge
	scheduledJobFiresTotal     prometheus.Counter
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		crawlRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_runs_total",
				Help: "Total number of crawl runs, labeled by scope and status.",
			},
			[]string{"scope", "status"},
		)

		clipsUpsertedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_clips_upserted_total",
				Help: "Total number of clip upserts, labeled by outcome (created or duplicate).",
			},
			[]string{"outcome"},
		)

		subjectsCrawledTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "crawler_subjects_crawled_total",
				Help: "Total number of subject crawls completed.",
			},
		)

		providerCallsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_provider_calls_total",
				Help: "Total provider API calls, labeled by kind (search or details).",
			},
			[]string{"kind"},
		)

		quotaUsedUnits = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "crawler_quota_used_units",
				Help: "Provider quota units committed since the last reset.",
			},
		)

		scheduledJobFiresTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "crawler_scheduled_job_fires_total",
				Help: "Total number of scheduled job fires.",
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
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveRun increments the run counter for the given scope and status.
func ObserveRun(scope, status string) {
	crawlRunsTotal.WithLabelValues(scope, status).Inc()
}

// ObserveUpsert increments the upsert counter.
func ObserveUpsert(created bool) {
	outcome := "duplicate"
	if created {
		outcome = "created"
	}
	clipsUpsertedTotal.WithLabelValues(outcome).Inc()
}

// ObserveSubjectCrawled increments the per-subject completion counter.
func ObserveSubjectCrawled() {
	subjectsCrawledTotal.Inc()
}

// ObserveProviderCall increments the provider call counter.
func ObserveProviderCall(kind string) {
	providerCallsTotal.WithLabelValues(kind).Inc()
}

// SetQuotaUsed records the current quota consumption.
func SetQuotaUsed(units int) {
	quotaUsedUnits.Set(float64(units))
}

// ObserveJobFire increments the scheduled job fire counter.
func ObserveJobFire() {
	scheduledJobFiresTotal.Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
