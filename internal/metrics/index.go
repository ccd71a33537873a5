package metrics

import "github.com/prometheus/client_golang/prometheus"

// Vector index Prometheus metrics.
var (
	IndexOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docdex",
			Name:      "index_operations_total",
			Help:      "Total vector index operations",
		},
		[]string{"operation", "status"},
	)

	IndexOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "docdex",
			Name:      "index_operation_duration_seconds",
			Help:      "Vector index operation duration in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)

	IndexRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docdex",
			Name:      "index_retries_total",
			Help:      "Total vector index operation retries",
		},
		[]string{"operation"},
	)

	IndexPointsWritten = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "docdex",
			Name:      "index_points_written_total",
			Help:      "Total points upserted into the vector index",
		},
	)
)

var indexMetricsRegistered bool

// RegisterIndexMetrics registers Prometheus vector index metrics. Must be called once from main.
func RegisterIndexMetrics() {
	if indexMetricsRegistered {
		return
	}
	prometheus.MustRegister(IndexOperationsTotal)
	prometheus.MustRegister(IndexOperationDuration)
	prometheus.MustRegister(IndexRetriesTotal)
	prometheus.MustRegister(IndexPointsWritten)
	indexMetricsRegistered = true
}

// ObserveIndexOp records one vector index operation.
func ObserveIndexOp(operation string, seconds float64, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	IndexOperationsTotal.WithLabelValues(operation, status).Inc()
	IndexOperationDuration.WithLabelValues(operation).Observe(seconds)
}
