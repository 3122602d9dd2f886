package rest

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/marmos91/dittons/internal/logger"
	"github.com/marmos91/dittons/internal/ratelimiter"
	"github.com/marmos91/dittons/pkg/metrics"
	"github.com/marmos91/dittons/pkg/namespace"
)

var log = logger.With("rest")

// RESTAdapter implements the adapter.Adapter interface for the
// WebHDFS-style REST API.
//
// Shutdown flow:
//  1. Context cancelled or Stop() called
//  2. Listener closed (no new connections)
//  3. In-flight requests drain (up to ShutdownTimeout)
//  4. Remaining connections are force-closed after timeout
//
// Thread safety:
// All methods are safe for concurrent use. The shutdown mechanism uses sync.Once
// to ensure idempotent behavior even if Stop() is called multiple times.
type RESTAdapter struct {
	config  RESTConfig
	engine  *namespace.Engine
	metrics metrics.HTTPMetrics
	limiter *ratelimiter.Keyed

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener

	shutdownOnce sync.Once
	shutdown     chan struct{}

	// done is closed when a started Serve returns.
	done chan struct{}
}

// RESTConfig holds configuration parameters for the REST adapter.
//
// Default values (applied by New if zero):
//   - ReadTimeout: 5m
//   - WriteTimeout: 5m
//   - IdleTimeout: 2m
//   - ShutdownTimeout: 30s
type RESTConfig struct {
	// Enabled controls whether the REST adapter is active.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is the TCP port to listen on (pkg/config defaults it to 9870).
	// 0 lets the OS pick.
	Port int `mapstructure:"port" yaml:"port" validate:"min=0,max=65535"`

	// ReadTimeout bounds reading a full request, body included.
	// Uploads of large files need a generous value.
	ReadTimeout time.Duration `mapstructure:"read_timeout" yaml:"read_timeout" validate:"min=0"`

	// WriteTimeout bounds writing a full response, body included.
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout" validate:"min=0"`

	// IdleTimeout closes keep-alive connections idle for this long.
	IdleTimeout time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout" validate:"min=0"`

	// ShutdownTimeout is how long in-flight requests may drain on shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" validate:"min=0"`

	// RateLimit throttles requests. Zero values disable it.
	RateLimit RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit"`
}

// RateLimitConfig configures request throttling.
type RateLimitConfig struct {
	// RequestsPerSecond is the global sustained rate (0 = unlimited).
	RequestsPerSecond uint `mapstructure:"requests_per_second" yaml:"requests_per_second"`

	// PerClient is the sustained rate for each caller (0 = unlimited).
	PerClient uint `mapstructure:"per_client" yaml:"per_client"`

	// Burst is the bucket size for both limits.
	Burst uint `mapstructure:"burst" yaml:"burst"`
}

// applyDefaults fills in zero values with sensible defaults.
func (c *RESTConfig) applyDefaults() {
	// Enabled defaults live in pkg/config so an explicit false survives.
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 5 * time.Minute
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 5 * time.Minute
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 2 * time.Minute
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 30 * time.Second
	}
}

func (c *RESTConfig) validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d: must be 0-65535", c.Port)
	}
	if c.ReadTimeout < 0 || c.WriteTimeout < 0 || c.IdleTimeout < 0 {
		return fmt.Errorf("invalid timeouts: must be >= 0")
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("invalid ShutdownTimeout %v: must be > 0", c.ShutdownTimeout)
	}
	return nil
}

// New creates a new RESTAdapter with the specified configuration.
//
// Zero values in config are replaced with defaults; an invalid configuration
// panics, since it indicates programmer error. A nil m disables metrics.
func New(config RESTConfig, m metrics.HTTPMetrics) *RESTAdapter {
	config.applyDefaults()
	if err := config.validate(); err != nil {
		panic(fmt.Sprintf("invalid REST config: %v", err))
	}
	if m == nil {
		m = metrics.NoopHTTPMetrics()
	}

	return &RESTAdapter{
		config:   config,
		metrics:  m,
		limiter:  ratelimiter.NewKeyed(config.RateLimit.RequestsPerSecond, config.RateLimit.PerClient, config.RateLimit.Burst, 0),
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// SetEngine injects the shared namespace engine.
func (s *RESTAdapter) SetEngine(engine *namespace.Engine) {
	s.engine = engine
	log.Debug("REST engine configured")
}

// Serve starts the REST server and blocks until the context is cancelled,
// Stop is called, or the listener fails.
//
// Returns nil on graceful shutdown, or an error if the listener could not
// be created or in-flight requests did not drain within ShutdownTimeout.
func (s *RESTAdapter) Serve(ctx context.Context) error {
	if s.engine == nil {
		return fmt.Errorf("REST adapter has no engine; call SetEngine() first")
	}

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", s.config.Port))
	if err != nil {
		return fmt.Errorf("failed to create REST listener on port %d: %w", s.config.Port, err)
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 30 * time.Second,
		ReadTimeout:       s.config.ReadTimeout,
		WriteTimeout:      s.config.WriteTimeout,
		IdleTimeout:       s.config.IdleTimeout,
	}

	s.mu.Lock()
	s.listener = listener
	s.server = srv
	s.mu.Unlock()
	defer close(s.done)

	log.Info("REST server listening on port %d", s.Port())
	log.Debug("REST config: read_timeout=%v write_timeout=%v idle_timeout=%v rate_limit=%d/%d burst=%d",
		s.config.ReadTimeout, s.config.WriteTimeout, s.config.IdleTimeout,
		s.config.RateLimit.RequestsPerSecond, s.config.RateLimit.PerClient, s.config.RateLimit.Burst)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Serve(listener)
	}()

	go s.sweepLimiter(ctx)

	select {
	case <-ctx.Done():
		log.Info("REST shutdown signal received: %v", ctx.Err())
		s.initiateShutdown()
	case <-s.shutdown:
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("REST server failed: %w", err)
		}
	}

	return s.gracefulShutdown(srv)
}

// sweepLimiter drops idle per-client buckets until shutdown.
func (s *RESTAdapter) sweepLimiter(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.shutdown:
			return
		case now := <-ticker.C:
			if n := s.limiter.Sweep(now); n > 0 {
				log.Debug("Dropped %d idle rate limit buckets", n)
			}
		}
	}
}

func (s *RESTAdapter) initiateShutdown() {
	s.shutdownOnce.Do(func() {
		log.Debug("REST shutdown initiated")
		close(s.shutdown)
	})
}

// gracefulShutdown drains in-flight requests, force-closing connections
// once ShutdownTimeout expires.
func (s *RESTAdapter) gracefulShutdown(srv *http.Server) error {
	log.Info("REST graceful shutdown (timeout: %v)", s.config.ShutdownTimeout)

	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Warn("REST shutdown timeout exceeded - forcing closure: %v", err)
		_ = srv.Close()
		return fmt.Errorf("REST shutdown timeout: %w", err)
	}

	log.Info("REST graceful shutdown complete")
	return nil
}

// Stop initiates graceful shutdown and waits for Serve to drain in-flight
// requests, bounded by ctx.
func (s *RESTAdapter) Stop(ctx context.Context) error {
	s.initiateShutdown()

	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()

	if srv == nil {
		return nil
	}

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		log.Warn("REST stop did not complete: %v", ctx.Err())
		return ctx.Err()
	}
}

// Port returns the bound port once Serve has started, otherwise the
// configured port.
func (s *RESTAdapter) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		if addr, ok := s.listener.Addr().(*net.TCPAddr); ok {
			return addr.Port
		}
	}
	return s.config.Port
}

// Protocol returns "HTTP".
func (s *RESTAdapter) Protocol() string {
	return "HTTP"
}
