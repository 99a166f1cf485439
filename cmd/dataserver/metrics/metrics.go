// Package metrics provides Prometheus metrics instrumentation for the data server.
//
// Metrics exposed:
//   - clusterdata_store_operations_total: Counter of data operations by store, operation and result
//   - clusterdata_store_operation_duration_seconds: Histogram of operation latency
//   - clusterdata_store_lock_wait_seconds: Histogram of time spent waiting for the write lock
//   - clusterdata_store_records: Gauge of records in each document as last loaded or written
//
// Metrics implements datastore.Observer.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/HatiCode/clusterdata/pkg/datastore"
)

type Metrics struct {
	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	LockWait          *prometheus.HistogramVec
	Records           *prometheus.GaugeVec
}

// New registers the collectors with reg. Pass prometheus.DefaultRegisterer
// to expose them through promhttp.Handler().
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		OperationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "clusterdata_store_operations_total",
			Help: "Total number of data operations by store, operation and result",
		}, []string{"store", "op", "result"}),

		OperationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "clusterdata_store_operation_duration_seconds",
			Help:    "Duration of data operations",
			Buckets: prometheus.DefBuckets,
		}, []string{"store", "op"}),

		LockWait: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "clusterdata_store_lock_wait_seconds",
			Help:    "Time spent waiting for the document write lock",
			Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5},
		}, []string{"store"}),

		Records: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "clusterdata_store_records",
			Help: "Number of records in the document as last loaded or written",
		}, []string{"store"}),
	}
}

func (m *Metrics) ObserveOperation(store, op string, duration time.Duration, err error) {
	m.OperationsTotal.WithLabelValues(store, op, datastore.Outcome(err)).Inc()
	m.OperationDuration.WithLabelValues(store, op).Observe(duration.Seconds())
}

func (m *Metrics) ObserveLockWait(store string, duration time.Duration) {
	m.LockWait.WithLabelValues(store).Observe(duration.Seconds())
}

func (m *Metrics) SetRecords(store string, n int) {
	m.Records.WithLabelValues(store).Set(float64(n))
}
