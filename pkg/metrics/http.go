package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTPMetrics provides observability for the REST adapter.
type HTTPMetrics interface {
	// RecordRequest records a completed request.
	//
	// Parameters:
	//   - op: The requested operation (e.g., "MKDIRS", "OPEN") or the route
	//     name for non-namespace endpoints
	//   - code: HTTP status code written to the client
	//   - duration: Time taken to serve the request
	RecordRequest(op string, code int, duration time.Duration)

	// RecordRequestStart increments the in-flight request gauge.
	RecordRequestStart(op string)

	// RecordRequestEnd decrements the in-flight request gauge.
	RecordRequestEnd(op string)

	// RecordRateLimited counts a request rejected by the rate limiter.
	RecordRateLimited()
}

type httpMetrics struct {
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	requestsInFlight *prometheus.GaugeVec
	rateLimited      prometheus.Counter
}

// NewHTTPMetrics creates a Prometheus-backed HTTPMetrics instance, or a no-op
// implementation if metrics are not enabled.
func NewHTTPMetrics() HTTPMetrics {
	if !IsEnabled() {
		return NoopHTTPMetrics()
	}

	reg := GetRegistry()

	return &httpMetrics{
		requestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittons_http_requests_total",
				Help: "Total number of HTTP requests by operation and status code",
			},
			[]string{"op", "code"},
		),
		requestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dittons_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: latencyBuckets,
			},
			[]string{"op"},
		),
		requestsInFlight: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "dittons_http_requests_in_flight",
				Help: "Current number of HTTP requests being processed",
			},
			[]string{"op"},
		),
		rateLimited: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "dittons_http_rate_limited_total",
				Help: "Total number of HTTP requests rejected by the rate limiter",
			},
		),
	}
}

func (m *httpMetrics) RecordRequest(op string, code int, duration time.Duration) {
	m.requestsTotal.WithLabelValues(op, strconv.Itoa(code)).Inc()
	m.requestDuration.WithLabelValues(op).Observe(duration.Seconds())
}

func (m *httpMetrics) RecordRequestStart(op string) {
	m.requestsInFlight.WithLabelValues(op).Inc()
}

func (m *httpMetrics) RecordRequestEnd(op string) {
	m.requestsInFlight.WithLabelValues(op).Dec()
}

func (m *httpMetrics) RecordRateLimited() {
	m.rateLimited.Inc()
}

// NoopHTTPMetrics returns an HTTPMetrics that discards everything.
func NoopHTTPMetrics() HTTPMetrics {
	return noopHTTPMetrics{}
}

type noopHTTPMetrics struct{}

func (noopHTTPMetrics) RecordRequest(op string, code int, duration time.Duration) {}
func (noopHTTPMetrics) RecordRequestStart(op string)                              {}
func (noopHTTPMetrics) RecordRequestEnd(op string)                                {}
func (noopHTTPMetrics) RecordRateLimited()                                        {}
