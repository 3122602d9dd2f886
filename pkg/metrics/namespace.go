package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// NamespaceMetrics provides observability for namespace engine operations.
//
// Implementations collect per-operation counts and latencies, bytes moved
// through write and read handles, and the number of open handles. This
// interface is optional: if not provided to the engine, a no-op
// implementation is used.
//
// Example usage:
//
//	// With metrics enabled
//	engine, err := namespace.New(ctx, nodes, blocks,
//	    namespace.WithMetrics(metrics.NewNamespaceMetrics()))
type NamespaceMetrics interface {
	// RecordOperation records a completed namespace operation.
	//
	// Parameters:
	//   - operation: Operation name (e.g., "MKDIRS", "CREATE", "DELETE")
	//   - duration: Time taken to process the operation
	//   - err: Error if the operation failed, nil if successful
	RecordOperation(operation string, duration time.Duration, err error)

	// RecordBytesTransferred records bytes written through a write handle
	// or read through a read handle.
	//
	// Parameters:
	//   - direction: "read" or "write"
	//   - bytes: Number of bytes transferred
	RecordBytesTransferred(direction string, bytes int64)

	// SetOpenWriters updates the number of write handles holding a lease.
	SetOpenWriters(count int)

	// SetOpenReaders updates the number of read handles pinning a block.
	SetOpenReaders(count int)

	// RecordBlockRelease records a block handed back to the block layer.
	//
	// Parameters:
	//   - deferred: true when the release waited for readers to close
	RecordBlockRelease(deferred bool)
}

// namespaceMetrics is the Prometheus implementation of NamespaceMetrics.
type namespaceMetrics struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	bytesTransferred  *prometheus.CounterVec
	openWriters       prometheus.Gauge
	openReaders       prometheus.Gauge
	blockReleases     *prometheus.CounterVec
}

// NewNamespaceMetrics creates a Prometheus-backed NamespaceMetrics instance.
//
// Returns a no-op implementation if metrics are not enabled.
func NewNamespaceMetrics() NamespaceMetrics {
	if !IsEnabled() {
		return NoopNamespaceMetrics()
	}

	reg := GetRegistry()

	return &namespaceMetrics{
		operationsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittons_namespace_operations_total",
				Help: "Total number of namespace operations by operation and status",
			},
			[]string{"operation", "status"},
		),
		operationDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dittons_namespace_operation_duration_seconds",
				Help:    "Duration of namespace operations in seconds",
				Buckets: latencyBuckets,
			},
			[]string{"operation"},
		),
		bytesTransferred: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittons_namespace_bytes_transferred_total",
				Help: "Total bytes moved through file handles",
			},
			[]string{"direction"},
		),
		openWriters: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "dittons_namespace_open_writers",
				Help: "Current number of write handles holding a lease",
			},
		),
		openReaders: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "dittons_namespace_open_readers",
				Help: "Current number of open read handles",
			},
		),
		blockReleases: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittons_namespace_block_releases_total",
				Help: "Total number of blocks released, by whether the release was deferred",
			},
			[]string{"deferred"},
		),
	}
}

func (m *namespaceMetrics) RecordOperation(operation string, duration time.Duration, err error) {
	m.operationsTotal.WithLabelValues(operation, statusLabel(err)).Inc()
	m.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

func (m *namespaceMetrics) RecordBytesTransferred(direction string, bytes int64) {
	m.bytesTransferred.WithLabelValues(direction).Add(float64(bytes))
}

func (m *namespaceMetrics) SetOpenWriters(count int) {
	m.openWriters.Set(float64(count))
}

func (m *namespaceMetrics) SetOpenReaders(count int) {
	m.openReaders.Set(float64(count))
}

func (m *namespaceMetrics) RecordBlockRelease(deferred bool) {
	label := "false"
	if deferred {
		label = "true"
	}
	m.blockReleases.WithLabelValues(label).Inc()
}

// NoopNamespaceMetrics returns a NamespaceMetrics that discards everything.
func NoopNamespaceMetrics() NamespaceMetrics {
	return noopNamespaceMetrics{}
}

type noopNamespaceMetrics struct{}

func (noopNamespaceMetrics) RecordOperation(operation string, duration time.Duration, err error) {}
func (noopNamespaceMetrics) RecordBytesTransferred(direction string, bytes int64)                {}
func (noopNamespaceMetrics) SetOpenWriters(count int)                                            {}
func (noopNamespaceMetrics) SetOpenReaders(count int)                                            {}
func (noopNamespaceMetrics) RecordBlockRelease(deferred bool)                                    {}
