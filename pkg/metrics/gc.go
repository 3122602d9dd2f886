package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// GCMetrics provides observability for the orphan block collector.
type GCMetrics interface {
	// RecordRun records one collection pass.
	//
	// Parameters:
	//   - duration: Wall time of the pass
	//   - scanned: Blocks listed from the block store
	//   - released: Orphaned blocks released (or that would be, in dry-run)
	//   - err: Error that aborted the pass, nil if it completed
	RecordRun(duration time.Duration, scanned, released int, err error)
}

type gcMetrics struct {
	runsTotal      *prometheus.CounterVec
	runDuration    prometheus.Histogram
	blocksScanned  prometheus.Counter
	blocksReleased prometheus.Counter
}

// NewGCMetrics creates a Prometheus-backed GCMetrics instance, or a no-op
// implementation if metrics are not enabled.
func NewGCMetrics() GCMetrics {
	if !IsEnabled() {
		return NoopGCMetrics()
	}

	reg := GetRegistry()

	return &gcMetrics{
		runsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittons_gc_runs_total",
				Help: "Total number of garbage collection passes by status",
			},
			[]string{"status"},
		),
		runDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name:    "dittons_gc_run_duration_seconds",
				Help:    "Duration of garbage collection passes in seconds",
				Buckets: latencyBuckets,
			},
		),
		blocksScanned: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "dittons_gc_blocks_scanned_total",
				Help: "Total number of blocks inspected by the collector",
			},
		),
		blocksReleased: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "dittons_gc_blocks_released_total",
				Help: "Total number of orphaned blocks released",
			},
		),
	}
}

func (m *gcMetrics) RecordRun(duration time.Duration, scanned, released int, err error) {
	m.runsTotal.WithLabelValues(statusLabel(err)).Inc()
	m.runDuration.Observe(duration.Seconds())
	m.blocksScanned.Add(float64(scanned))
	m.blocksReleased.Add(float64(released))
}

// NoopGCMetrics returns a GCMetrics that discards everything.
func NoopGCMetrics() GCMetrics {
	return noopGCMetrics{}
}

type noopGCMetrics struct{}

func (noopGCMetrics) RecordRun(duration time.Duration, scanned, released int, err error) {}
