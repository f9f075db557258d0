package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/course-admission-api/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation and provides lightweight snapshots for API consumption.
type MetricsService struct {
	registry          *prometheus.Registry
	handler           http.Handler
	requestDuration   *prometheus.HistogramVec
	requestTotal      *prometheus.CounterVec
	cacheLatency      prometheus.Observer
	cacheHits         prometheus.Counter
	cacheMisses       prometheus.Counter
	admissionOutcomes *prometheus.CounterVec
	waitlistDepth     prometheus.Histogram
	compensations     *prometheus.CounterVec

	cacheHitCount        uint64
	cacheMissCount       uint64
	requestCount         uint64
	requestDurationTotal uint64
	enrollCount          uint64
	rejectCount          uint64
	promotionCount       uint64
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
		Help:    "Latency for cache lookups",
		Buckets: prometheus.DefBuckets,
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	admissionOutcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "admission_operations_total",
		Help: "Admission and waitlist operations by outcome",
	}, []string{"operation", "outcome"})

	waitlistDepth := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "waitlist_depth",
		Help:    "Active waitlist length observed after each join",
		Buckets: []float64{1, 2, 5, 10, 20, 50, 100, 250},
	})

	compensations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "transfer_compensations_total",
		Help: "Transfer compensation attempts by result",
	}, []string{"result"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheHits, cacheMisses, admissionOutcomes, waitlistDepth, compensations, goroutines)

	return &MetricsService{
		registry:          registry,
		handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:   requestDuration,
		requestTotal:      requestTotal,
		cacheLatency:      cacheLatency,
		cacheHits:         cacheHits,
		cacheMisses:       cacheMisses,
		admissionOutcomes: admissionOutcomes,
		waitlistDepth:     waitlistDepth,
		compensations:     compensations,
	}
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
	atomic.AddUint64(&m.requestCount, 1)
	atomic.AddUint64(&m.requestDurationTotal, uint64(duration.Nanoseconds()))
}

// RecordCacheOperation records cache hit/miss metrics.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
		return
	}
	m.cacheMisses.Inc()
	atomic.AddUint64(&m.cacheMissCount, 1)
}

// RecordAdmission counts an admission or waitlist operation outcome ("ok", "rejected", "error").
func (m *MetricsService) RecordAdmission(operation, outcome string) {
	if m == nil {
		return
	}
	m.admissionOutcomes.WithLabelValues(operation, outcome).Inc()
	switch {
	case operation == "enroll" && outcome == outcomeOK:
		atomic.AddUint64(&m.enrollCount, 1)
	case outcome == outcomeRejected:
		atomic.AddUint64(&m.rejectCount, 1)
	case operation == "promote" && outcome == outcomeOK:
		atomic.AddUint64(&m.promotionCount, 1)
	}
}

// ObserveWaitlistDepth records the queue length after a join.
func (m *MetricsService) ObserveWaitlistDepth(depth int) {
	if m == nil {
		return
	}
	m.waitlistDepth.Observe(float64(depth))
}

// RecordCompensation counts a transfer rollback attempt.
func (m *MetricsService) RecordCompensation(succeeded bool) {
	if m == nil {
		return
	}
	result := "succeeded"
	if !succeeded {
		result = "failed"
	}
	m.compensations.WithLabelValues(result).Inc()
}

// Snapshot returns aggregated counters for the JSON summary endpoint.
func (m *MetricsService) Snapshot() models.SystemMetrics {
	if m == nil {
		return models.SystemMetrics{}
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)

	var cacheRatio float64
	if total := hits + misses; total > 0 {
		cacheRatio = float64(hits) / float64(total)
	}

	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}

	return models.SystemMetrics{
		CacheHitRatio:            cacheRatio,
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		Enrollments:              atomic.LoadUint64(&m.enrollCount),
		Rejections:               atomic.LoadUint64(&m.rejectCount),
		Promotions:               atomic.LoadUint64(&m.promotionCount),
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}
