package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RecordsWrittenTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "records_written_total",
		Help: "Total number of records written per collection",
	}, []string{"collection"})

	RecordWritesFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "record_writes_failed_total",
		Help: "Total number of rejected or failed record writes",
	}, []string{"collection", "reason"})

	IndexEntriesWrittenTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "index_entries_written_total",
		Help: "Total number of secondary index entries derived and written",
	}, []string{"index"})

	QueriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "queries_total",
		Help: "Total number of queries by shape and outcome",
	}, []string{"query", "outcome"})

	QueryResultSize = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "query_result_size",
		Help:    "Number of records returned per query",
		Buckets: prometheus.ExponentialBuckets(1, 4, 8),
	}, []string{"query"})

	BackendLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "backend_operation_latency_seconds",
		Help:    "Latency of backend round-trips",
		Buckets: prometheus.DefBuckets,
	}, []string{"backend", "op"})

	ImportRowsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "import_rows_total",
		Help: "Total number of bulk import rows by outcome",
	}, []string{"collection", "outcome"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
