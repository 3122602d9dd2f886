package namespace

import (
	"time"

	"github.com/marmos91/dittons/pkg/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// DefaultWriteBufferSize caps the write buffer of a handle.
const DefaultWriteBufferSize = 4 << 20

// DefaultBlockSize is recorded for files created with blockSize 0.
const DefaultBlockSize = 128 << 20

// Option configures an Engine.
type Option func(*options)

type options struct {
	metrics         metrics.NamespaceMetrics
	limits          Limits
	leaseTimeout    time.Duration
	writeBufferSize int
	now             func() time.Time
	tracerProvider  trace.TracerProvider
}

func defaultOptions() options {
	return options{
		metrics:         metrics.NoopNamespaceMetrics(),
		limits:          DefaultLimits(),
		writeBufferSize: DefaultWriteBufferSize,
		now:             time.Now,
		tracerProvider:  otel.GetTracerProvider(),
	}
}

// WithMetrics sets the metrics sink. nil keeps the no-op implementation.
func WithMetrics(m metrics.NamespaceMetrics) Option {
	return func(o *options) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithLimits overrides the name and path length limits. Zero fields keep
// their defaults.
func WithLimits(l Limits) Option {
	return func(o *options) {
		if l.MaxNameLen > 0 {
			o.limits.MaxNameLen = l.MaxNameLen
		}
		if l.MaxPathLen > 0 {
			o.limits.MaxPathLen = l.MaxPathLen
		}
	}
}

// WithLeaseTimeout lets a new overwrite take over a write lease older than d.
// 0 means leases never expire.
func WithLeaseTimeout(d time.Duration) Option {
	return func(o *options) {
		o.leaseTimeout = d
	}
}

// WithWriteBufferSize sets the upper bound of a write handle's buffer.
func WithWriteBufferSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.writeBufferSize = n
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithTracerProvider sets where operation spans go. nil keeps the global
// provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) {
		if tp != nil {
			o.tracerProvider = tp
		}
	}
}
