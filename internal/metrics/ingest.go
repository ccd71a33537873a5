package metrics

import "github.com/prometheus/client_golang/prometheus"

// Ingestion pipeline Prometheus metrics.
var (
	IngestResourcesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docdex",
			Name:      "ingest_resources_total",
			Help:      "Total resources processed by the ingestion pipeline",
		},
		[]string{"source", "status"},
	)

	IngestChunksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "docdex",
			Name:      "ingest_chunks_total",
			Help:      "Total text chunks produced during ingestion",
		},
	)

	IngestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "docdex",
			Name:      "ingest_duration_seconds",
			Help:      "End to end resource processing duration in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"source"},
	)

	IngestQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "docdex",
			Name:      "ingest_queue_depth",
			Help:      "Index tasks waiting in the worker pool",
		},
	)
)

var ingestMetricsRegistered bool

// RegisterIngestMetrics registers Prometheus ingestion metrics. Must be called once from main.
func RegisterIngestMetrics() {
	if ingestMetricsRegistered {
		return
	}
	prometheus.MustRegister(IngestResourcesTotal)
	prometheus.MustRegister(IngestChunksTotal)
	prometheus.MustRegister(IngestDuration)
	prometheus.MustRegister(IngestQueueDepth)
	ingestMetricsRegistered = true
}

// ObserveIngest records one resource ingestion attempt.
func ObserveIngest(source string, seconds float64, chunks int, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	IngestResourcesTotal.WithLabelValues(source, status).Inc()
	IngestDuration.WithLabelValues(source).Observe(seconds)
	if chunks > 0 {
		IngestChunksTotal.Add(float64(chunks))
	}
}
