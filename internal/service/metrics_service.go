package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/moracollect-api/internal/models"
)

// Outcome labels used by the contribution counters.
const (
	OutcomeCreated           = "created"
	OutcomeAlreadyRegistered = "already_registered"
	OutcomeRejected          = "rejected"
	OutcomeDeleted           = "deleted"
	OutcomeBlobCleanupFailed = "blob_cleanup_failed"
)

// MetricsService encapsulates Prometheus instrumentation.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheWrite      prometheus.Observer
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	registrations   *prometheus.CounterVec
	deletions       *prometheus.CounterVec
	counterClamps   *prometheus.CounterVec
	snapshotReads   *prometheus.CounterVec
	txRetries       prometheus.Counter
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for snapshot edge cache lookups",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for snapshot edge cache writes",
		Buckets: prometheus.DefBuckets,
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total edge cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total edge cache misses",
	})

	registrations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "contributions_registered_total",
		Help: "Registration calls by outcome",
	}, []string{"outcome"})

	deletions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "contributions_deleted_total",
		Help: "Deletion calls by outcome",
	}, []string{"outcome"})

	counterClamps := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "counter_clamps_total",
		Help: "Counter decrements that would have gone below zero",
	}, []string{"counter"})

	snapshotReads := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "snapshot_reads_total",
		Help: "Listing reads by the layer that served them",
	}, []string{"source"})

	txRetries := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "contribution_tx_retries_total",
		Help: "Contribution transactions re-driven after a write conflict",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite, cacheHits, cacheMisses,
		registrations, deletions, counterClamps, snapshotReads, txRetries, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		cacheLatency:    cacheLatency,
		cacheWrite:      cacheWrite,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
		registrations:   registrations,
		deletions:       deletions,
		counterClamps:   counterClamps,
		snapshotReads:   snapshotReads,
		txRetries:       txRetries,
	}
}

// Registry exposes the underlying registry, mainly for tests.
func (m *MetricsService) Registry() *prometheus.Registry {
	return m.registry
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordCacheOperation records an edge cache hit or miss.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
	} else {
		m.cacheMisses.Inc()
	}
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// RecordRegistration counts a registration outcome.
func (m *MetricsService) RecordRegistration(outcome string) {
	if m == nil {
		return
	}
	m.registrations.WithLabelValues(outcome).Inc()
}

// RecordDeletion counts a deletion outcome.
func (m *MetricsService) RecordDeletion(outcome string) {
	if m == nil {
		return
	}
	m.deletions.WithLabelValues(outcome).Inc()
}

// RecordCounterClamp counts an underflow that was clamped to zero.
func (m *MetricsService) RecordCounterClamp(counter string) {
	if m == nil {
		return
	}
	m.counterClamps.WithLabelValues(counter).Inc()
}

// RecordSnapshotRead counts which layer served a listing.
func (m *MetricsService) RecordSnapshotRead(source models.ListingSource) {
	if m == nil {
		return
	}
	m.snapshotReads.WithLabelValues(string(source)).Inc()
}

// RecordTxRetry counts a re-driven contribution transaction.
func (m *MetricsService) RecordTxRetry() {
	if m == nil {
		return
	}
	m.txRetries.Inc()
}
