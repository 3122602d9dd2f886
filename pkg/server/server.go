package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/marmos91/dittons/internal/logger"
	"github.com/marmos91/dittons/pkg/adapter"
	"github.com/marmos91/dittons/pkg/gc"
	"github.com/marmos91/dittons/pkg/metrics"
	"github.com/marmos91/dittons/pkg/namespace"
)

// DefaultStopTimeout bounds the shutdown of each adapter and service.
const DefaultStopTimeout = 30 * time.Second

// DittoServer manages the lifecycle of the protocol adapters that expose one
// namespace engine, together with the background services running next to
// them (garbage collector, metrics endpoint).
//
// Lifecycle:
//  1. Creation: New() with the engine
//  2. Registration: AddAdapter() for each protocol
//  3. Startup: Serve() starts services, then all adapters concurrently
//  4. Shutdown: Context cancellation stops adapters in reverse order, then services
//
// Thread safety:
// DittoServer is safe for concurrent use. Serve() may only be called once.
//
// Example usage:
//
//	srv := server.New(engine, server.WithCollector(collector))
//	srv.AddAdapter(rest.New(restConfig, httpMetrics))
//
//	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
//	defer cancel()
//
//	if err := srv.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
//	    log.Fatal(err)
//	}
type DittoServer struct {
	engine *namespace.Engine

	collector     *gc.Collector
	metricsServer *metrics.Server
	stopTimeout   time.Duration

	// mu protects adapters and served
	mu       sync.RWMutex
	adapters []adapter.Adapter
	served   bool
}

// Option configures a DittoServer.
type Option func(*DittoServer)

// WithCollector runs c for the lifetime of Serve.
func WithCollector(c *gc.Collector) Option {
	return func(s *DittoServer) { s.collector = c }
}

// WithMetricsServer serves Prometheus metrics for the lifetime of Serve.
func WithMetricsServer(m *metrics.Server) Option {
	return func(s *DittoServer) { s.metricsServer = m }
}

// WithStopTimeout overrides DefaultStopTimeout.
func WithStopTimeout(d time.Duration) Option {
	return func(s *DittoServer) {
		if d > 0 {
			s.stopTimeout = d
		}
	}
}

// New creates a DittoServer around engine.
//
// Panics if engine is nil (indicates programmer error).
func New(engine *namespace.Engine, opts ...Option) *DittoServer {
	if engine == nil {
		panic("namespace engine cannot be nil")
	}

	s := &DittoServer{
		engine:      engine,
		stopTimeout: DefaultStopTimeout,
		adapters:    make([]adapter.Adapter, 0, 2),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddAdapter registers a protocol adapter and hands it the engine.
//
// Duplicate protocols or port conflicts return an error. Port 0 asks the
// OS for a free port and never conflicts.
//
// Panics if a is nil or Serve() has already been called.
func (s *DittoServer) AddAdapter(a adapter.Adapter) error {
	if a == nil {
		panic("adapter cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.served {
		panic("cannot add adapter after Serve() has been called")
	}

	protocol := a.Protocol()
	port := a.Port()

	for _, existing := range s.adapters {
		if existing.Protocol() == protocol {
			return fmt.Errorf("adapter for protocol %s already registered", protocol)
		}
		if port != 0 && existing.Port() == port {
			return fmt.Errorf("port %d already in use by %s adapter", port, existing.Protocol())
		}
	}

	a.SetEngine(s.engine)
	s.adapters = append(s.adapters, a)

	logger.Info("Registered %s adapter on port %d", protocol, port)
	return nil
}

// Serve starts all registered adapters and blocks until the context is
// cancelled or an adapter fails.
//
// Returns:
//   - ctx.Err() if shutdown was triggered by context cancellation
//   - the adapter error if an adapter failed
//   - an error if Serve() was already called or no adapter is registered
func (s *DittoServer) Serve(ctx context.Context) error {
	s.mu.Lock()
	if s.served {
		s.mu.Unlock()
		return errors.New("Serve() has already been called on this server instance")
	}
	s.served = true
	if len(s.adapters) == 0 {
		s.mu.Unlock()
		return fmt.Errorf("no adapters registered; call AddAdapter() before Serve()")
	}
	adapters := make([]adapter.Adapter, len(s.adapters))
	copy(adapters, s.adapters)
	s.mu.Unlock()

	return s.serve(ctx, adapters)
}

func (s *DittoServer) serve(ctx context.Context, adapters []adapter.Adapter) error {
	logger.Info("Starting DittoServer with %d adapter(s)", len(adapters))

	// Services outlive the adapters: they are stopped after every adapter
	// has returned.
	servicesCtx, stopServices := context.WithCancel(context.Background())
	defer stopServices()
	var services sync.WaitGroup
	s.startServices(servicesCtx, &services)

	// Buffered so failing adapters never block
	errChan := make(chan adapterError, len(adapters))

	var wg sync.WaitGroup
	startTime := time.Now()
	for _, adp := range adapters {
		wg.Add(1)
		go func(a adapter.Adapter) {
			defer wg.Done()

			protocol := a.Protocol()
			logger.Info("Starting %s adapter", protocol)

			if err := a.Serve(ctx); err != nil {
				if !errors.Is(err, context.Canceled) && ctx.Err() == nil {
					logger.Error("%s adapter failed: %v", protocol, err)
					errChan <- adapterError{protocol: protocol, err: err}
				} else {
					logger.Debug("%s adapter stopped gracefully", protocol)
				}
			} else {
				logger.Info("%s adapter stopped", protocol)
			}
		}(adp)
	}
	logger.Debug("Adapters launched in %v", time.Since(startTime))

	var shutdownErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received (reason: %v)", ctx.Err())
		s.stopAllAdapters(adapters)
		shutdownErr = ctx.Err()

	case adapterErr := <-errChan:
		logger.Error("Adapter %s failed: %v - initiating shutdown of all adapters",
			adapterErr.protocol, adapterErr.err)
		s.stopAllAdapters(adapters)
		shutdownErr = fmt.Errorf("%s adapter error: %w", adapterErr.protocol, adapterErr.err)
	}

	logger.Debug("Waiting for all adapters to complete shutdown")
	wg.Wait()

	s.stopServices(stopServices, &services)

	logger.Info("DittoServer stopped gracefully")
	return shutdownErr
}

// adapterError pairs an adapter protocol name with its error for better error reporting.
type adapterError struct {
	protocol string
	err      error
}

func (s *DittoServer) startServices(ctx context.Context, wg *sync.WaitGroup) {
	if s.metricsServer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.metricsServer.Start(ctx); err != nil {
				logger.Error("Metrics server error: %v", err)
			}
		}()
	}

	if s.collector != nil {
		s.collector.Start()
	}
}

func (s *DittoServer) stopServices(cancel context.CancelFunc, wg *sync.WaitGroup) {
	ctx, done := context.WithTimeout(context.Background(), s.stopTimeout)
	defer done()

	if s.collector != nil {
		if err := s.collector.Stop(ctx); err != nil {
			logger.Error("Error stopping garbage collector: %v", err)
		}
	}

	cancel()
	wg.Wait()
}

// stopAllAdapters initiates graceful shutdown of all adapters in reverse
// registration order. Errors are logged and do not stop the remaining
// adapters from being signalled.
func (s *DittoServer) stopAllAdapters(adapters []adapter.Adapter) {
	ctx, cancel := context.WithTimeout(context.Background(), s.stopTimeout)
	defer cancel()

	logger.Info("Initiating graceful shutdown of %d adapter(s)", len(adapters))

	for i := len(adapters) - 1; i >= 0; i-- {
		adp := adapters[i]
		protocol := adp.Protocol()

		logger.Debug("Stopping %s adapter (port %d)", protocol, adp.Port())

		if err := adp.Stop(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Error stopping %s adapter: %v", protocol, err)
		} else {
			logger.Debug("%s adapter stop signal sent", protocol)
		}
	}
}

// Engine returns the namespace engine shared by all adapters.
func (s *DittoServer) Engine() *namespace.Engine {
	return s.engine
}

// Adapters returns a snapshot of currently registered adapters.
func (s *DittoServer) Adapters() []adapter.Adapter {
	s.mu.RLock()
	defer s.mu.RUnlock()

	adapters := make([]adapter.Adapter, len(s.adapters))
	copy(adapters, s.adapters)
	return adapters
}
