// Package metrics provides Prometheus metrics for orgstore
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/nainya/orgstore/pkg/chain"
)

// Metrics holds all Prometheus metrics for orgstore
type Metrics struct {
	// gRPC request metrics
	GrpcRequestsTotal    *prometheus.CounterVec
	GrpcRequestDuration  *prometheus.HistogramVec
	GrpcRequestsInFlight prometheus.Gauge

	// Database metrics
	DbOperationsTotal   *prometheus.CounterVec
	DbOperationDuration *prometheus.HistogramVec
	DbSizeBytes         *prometheus.GaugeVec

	// Version chain metrics
	VersionsInsertedTotal    prometheus.Counter
	RedundantInsertsTotal    prometheus.Counter
	VersionsDeletedTotal     prometheus.Counter
	InvariantViolationsTotal *prometheus.CounterVec
	AccountabilitiesTotal    prometheus.Counter

	ServerStartTime time.Time
}

// NewMetrics creates all metrics and registers them with reg.
// Pass prometheus.DefaultRegisterer to expose them on the default handler.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	m := &Metrics{
		ServerStartTime: time.Now(),
	}

	m.GrpcRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orgstore_grpc_requests_total",
			Help: "Total number of gRPC requests",
		},
		[]string{"method", "code"},
	)

	m.GrpcRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "orgstore_grpc_request_duration_seconds",
			Help:    "Duration of gRPC requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	m.GrpcRequestsInFlight = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "orgstore_grpc_requests_in_flight",
			Help: "Number of gRPC requests currently being processed",
		},
	)

	m.DbOperationsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orgstore_db_operations_total",
			Help: "Total number of storage operations",
		},
		[]string{"operation", "status"},
	)

	m.DbOperationDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "orgstore_db_operation_duration_seconds",
			Help:    "Duration of storage operations in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"operation"},
	)

	m.DbSizeBytes = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "orgstore_db_size_bytes",
			Help: "Current storage size in bytes",
		},
		[]string{"part"},
	)

	m.VersionsInsertedTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "orgstore_versions_inserted_total",
			Help: "Total number of versions added to a chain",
		},
	)

	m.RedundantInsertsTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "orgstore_redundant_inserts_total",
			Help: "Total number of inserts absorbed because they repeated the head",
		},
	)

	m.VersionsDeletedTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "orgstore_versions_deleted_total",
			Help: "Total number of versions removed from a chain",
		},
	)

	m.InvariantViolationsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orgstore_invariant_violations_total",
			Help: "Total number of mutations rejected by a chain invariant",
		},
		[]string{"invariant"},
	)

	m.AccountabilitiesTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "orgstore_accountabilities_created_total",
			Help: "Total number of accountabilities registered",
		},
	)

	factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "orgstore_server_uptime_seconds",
			Help: "Server uptime in seconds",
		},
		func() float64 { return time.Since(m.ServerStartTime).Seconds() },
	)

	return m
}

// RecordGrpcRequest records a gRPC request with its status code name
func (m *Metrics) RecordGrpcRequest(method string, code string, duration time.Duration) {
	m.GrpcRequestsTotal.WithLabelValues(method, code).Inc()
	m.GrpcRequestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordDbOperation records a storage operation
func (m *Metrics) RecordDbOperation(operation string, err error, duration time.Duration) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.DbOperationsTotal.WithLabelValues(operation, status).Inc()
	m.DbOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordInsert counts the outcome of an InsertVersion call
func (m *Metrics) RecordInsert(created bool, err error) {
	switch {
	case err != nil:
		m.RecordViolation(err)
	case created:
		m.VersionsInsertedTotal.Inc()
	default:
		m.RedundantInsertsTotal.Inc()
	}
}

// RecordDelete counts removed versions or the violation that blocked the removal
func (m *Metrics) RecordDelete(removed int, err error) {
	if err != nil {
		m.RecordViolation(err)
		return
	}
	m.VersionsDeletedTotal.Add(float64(removed))
}

// RecordViolation increments the violation counter when err carries one
func (m *Metrics) RecordViolation(err error) {
	var iv *chain.InvariantViolation
	if errors.As(err, &iv) {
		m.InvariantViolationsTotal.WithLabelValues(iv.Invariant).Inc()
	}
}

// UpdateDbStats updates storage size gauges
func (m *Metrics) UpdateDbStats(lsmBytes, vlogBytes int64) {
	m.DbSizeBytes.WithLabelValues("lsm").Set(float64(lsmBytes))
	m.DbSizeBytes.WithLabelValues("vlog").Set(float64(vlogBytes))
}
