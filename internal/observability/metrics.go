package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	ingestDocumentsTotal *prometheus.CounterVec
	ingestChunksTotal    prometheus.Counter
	ingestDuration       prometheus.Histogram
	ingestWarningsTotal  prometheus.Counter

	relationshipsTotal prometheus.Counter

	queryTotal    *prometheus.CounterVec
	queryDuration prometheus.Histogram

	backendRequestTotal    *prometheus.CounterVec
	backendRequestDuration *prometheus.HistogramVec
	breakerOpen            *prometheus.GaugeVec

	projectsRunning  prometheus.Gauge
	snapshotTotal    *prometheus.CounterVec
	snapshotDuration prometheus.Histogram
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			ingestDocumentsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "ingest_documents_total",
					Help: "Total documents ingested by outcome.",
				},
				[]string{"status"},
			),
			ingestChunksTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "ingest_chunks_total",
					Help: "Total chunks embedded and upserted.",
				},
			),
			ingestDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "ingest_batch_duration_seconds",
					Help:    "Ingestion batch duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			ingestWarningsTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "ingest_warnings_total",
					Help: "Total per-document warnings recorded during ingestion.",
				},
			),
			relationshipsTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "relationships_extracted_total",
					Help: "Total relationships extracted and upserted to the graph.",
				},
			),
			queryTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "query_total",
					Help: "Total context queries by outcome.",
				},
				[]string{"status"},
			),
			queryDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "query_duration_seconds",
					Help:    "Context query duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			backendRequestTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "backend_request_total",
					Help: "Total backend requests by backend, operation and status.",
				},
				[]string{"backend", "operation", "status"},
			),
			backendRequestDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "backend_request_duration_seconds",
					Help:    "Backend request duration in seconds by backend and operation.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"backend", "operation"},
			),
			breakerOpen: prometheus.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "breaker_open",
					Help: "Circuit breaker state by backend (1 open or half-open, 0 closed).",
				},
				[]string{"backend"},
			),
			projectsRunning: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "projects_running",
					Help: "Current number of running projects.",
				},
			),
			snapshotTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "snapshot_total",
					Help: "Total snapshot exports by status.",
				},
				[]string{"status"},
			),
			snapshotDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "snapshot_duration_seconds",
					Help:    "Snapshot export duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
		}

		prometheus.MustRegister(
			m.ingestDocumentsTotal,
			m.ingestChunksTotal,
			m.ingestDuration,
			m.ingestWarningsTotal,
			m.relationshipsTotal,
			m.queryTotal,
			m.queryDuration,
			m.backendRequestTotal,
			m.backendRequestDuration,
			m.breakerOpen,
			m.projectsRunning,
			m.snapshotTotal,
			m.snapshotDuration,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

func RecordDocumentIngested(status string, chunks, relationships, warnings int) {
	m := getMetrics()
	m.ingestDocumentsTotal.WithLabelValues(status).Inc()
	m.ingestChunksTotal.Add(float64(chunks))
	m.relationshipsTotal.Add(float64(relationships))
	m.ingestWarningsTotal.Add(float64(warnings))
}

func RecordIngestBatch(duration time.Duration) {
	m := getMetrics()
	m.ingestDuration.Observe(duration.Seconds())
}

func RecordQuery(duration time.Duration, success bool) {
	m := getMetrics()
	status := "error"
	if success {
		status = "success"
	}
	m.queryTotal.WithLabelValues(status).Inc()
	m.queryDuration.Observe(duration.Seconds())
}

func RecordBackendRequest(backend, operation string, duration time.Duration, success bool) {
	m := getMetrics()
	status := "error"
	if success {
		status = "success"
	}
	m.backendRequestTotal.WithLabelValues(backend, operation, status).Inc()
	m.backendRequestDuration.WithLabelValues(backend, operation).Observe(duration.Seconds())
}

func SetBreakerOpen(backend string, open bool) {
	m := getMetrics()
	value := 0.0
	if open {
		value = 1.0
	}
	m.breakerOpen.WithLabelValues(backend).Set(value)
}

func SetProjectsRunning(count int) {
	m := getMetrics()
	m.projectsRunning.Set(float64(count))
}

func RecordSnapshot(duration time.Duration, success bool) {
	m := getMetrics()
	status := "error"
	if success {
		status = "success"
	}
	m.snapshotTotal.WithLabelValues(status).Inc()
	m.snapshotDuration.Observe(duration.Seconds())
}
