// Package metrics provides Prometheus metrics collection for DittoNS components.
//
// All metrics are optional. If the registry is not initialized, constructors
// return no-op implementations with zero overhead, so DittoNS runs the same
// with or without metrics collection enabled.
//
// Usage:
//
//	// Initialize global registry (typically in main.go)
//	metrics.InitRegistry()
//
//	// Create metrics instances for components
//	nsMetrics := metrics.NewNamespaceMetrics()
//	httpMetrics := metrics.NewHTTPMetrics()
//
//	// Or pass nil for no-op behavior
//	engine, err := namespace.New(ctx, nodes, blocks) // No metrics
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// registry is the global Prometheus registry for all DittoNS metrics.
	// Written once by InitRegistry.
	registry     *prometheus.Registry
	registryOnce sync.Once
)

// InitRegistry initializes the global Prometheus registry.
//
// This must be called before creating any metrics instances. It is safe to
// call multiple times; subsequent calls are ignored. The registry starts with
// the Go runtime and process collectors registered.
//
// If not called, GetRegistry() returns nil and all metrics constructors
// return no-op implementations.
func InitRegistry() {
	registryOnce.Do(func() {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	})
}

// GetRegistry returns the global Prometheus registry, or nil if
// InitRegistry() has not been called.
func GetRegistry() *prometheus.Registry {
	return registry
}

// IsEnabled returns true if metrics collection is enabled.
func IsEnabled() bool {
	return GetRegistry() != nil
}

// statusLabel maps an error to the "status" label value.
func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// latencyBuckets are shared by every duration histogram.
var latencyBuckets = []float64{
	0.0005, // 500us
	0.001,  // 1ms
	0.005,  // 5ms
	0.01,   // 10ms
	0.025,  // 25ms
	0.05,   // 50ms
	0.1,    // 100ms
	0.25,   // 250ms
	0.5,    // 500ms
	1.0,    // 1s
	2.5,    // 2.5s
	5.0,    // 5s
	10.0,   // 10s
}
