// Package observability holds the Prometheus collectors shared by the reader
// and the HTTP server.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels for source queries.
const (
	OutcomeOK       = "ok"
	OutcomeEmpty    = "empty"
	OutcomeError    = "error"
	OutcomeCanceled = "canceled"
)

var (
	sourceQueries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "healthbridge",
		Subsystem: "source",
		Name:      "queries_total",
		Help:      "Health data source queries by metric kind and outcome.",
	}, []string{"kind", "outcome"})
	sourceQueryDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "healthbridge",
		Subsystem: "source",
		Name:      "query_duration_seconds",
		Help:      "Latency of health data source queries.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"kind"})
	placeholderRecords = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "healthbridge",
		Subsystem: "series",
		Name:      "placeholder_records_total",
		Help:      "Zero-valued records emitted for days without data.",
	}, []string{"kind"})
	ingestedRecords = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "healthbridge",
		Subsystem: "ingest",
		Name:      "records_total",
		Help:      "Raw samples and sleep sessions accepted by the ingest endpoint.",
	}, []string{"type"})
)

func init() {
	prometheus.MustRegister(sourceQueries, sourceQueryDuration, placeholderRecords, ingestedRecords)
}

// RecordSourceQuery counts one source query and observes its latency.
func RecordSourceQuery(kind, outcome string, elapsed time.Duration) {
	sourceQueries.WithLabelValues(kind, outcome).Inc()
	sourceQueryDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
}

// RecordPlaceholders adds n gap-filling records for kind.
func RecordPlaceholders(kind string, n int) {
	if n <= 0 {
		return
	}
	placeholderRecords.WithLabelValues(kind).Add(float64(n))
}

// RecordIngested adds n accepted raw records of the given type ("samples" or "sleep_sessions").
func RecordIngested(typ string, n int64) {
	if n <= 0 {
		return
	}
	ingestedRecords.WithLabelValues(typ).Add(float64(n))
}
