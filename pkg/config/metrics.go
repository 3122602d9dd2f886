package config

import (
	"github.com/marmos91/dittons/pkg/metrics"
)

// MetricsResult contains all metrics-related components created from configuration.
type MetricsResult struct {
	// Server is the HTTP server exposing Prometheus metrics (nil if disabled)
	Server *metrics.Server

	// Namespace records engine operations (never nil, uses noop if disabled)
	Namespace metrics.NamespaceMetrics

	// HTTP records REST adapter requests (never nil, uses noop if disabled)
	HTTP metrics.HTTPMetrics

	// GC records collector runs (never nil, uses noop if disabled)
	GC metrics.GCMetrics
}

// InitializeMetrics creates and initializes all metrics components based on configuration.
//
// If metrics are enabled in the configuration:
//   - Initializes the global Prometheus registry
//   - Creates the metrics HTTP server
//   - Creates Prometheus-backed metrics instances for all components
//
// If metrics are disabled:
//   - Returns nil server
//   - Returns no-op metrics implementations (zero overhead)
func InitializeMetrics(cfg *Config) *MetricsResult {
	if !cfg.Server.Metrics.Enabled {
		return &MetricsResult{
			Namespace: metrics.NoopNamespaceMetrics(),
			HTTP:      metrics.NoopHTTPMetrics(),
			GC:        metrics.NoopGCMetrics(),
		}
	}

	metrics.InitRegistry()

	server := metrics.NewServer(metrics.ServerConfig{
		Port: cfg.Server.Metrics.Port,
	})

	return &MetricsResult{
		Server:    server,
		Namespace: metrics.NewNamespaceMetrics(),
		HTTP:      metrics.NewHTTPMetrics(),
		GC:        metrics.NewGCMetrics(),
	}
}
