package adapter

import (
	"context"

	"github.com/marmos91/dittons/pkg/namespace"
)

// Adapter represents a protocol-specific front end that can be managed by
// DittoServer.
//
// Each adapter exposes the namespace engine over one transport (e.g. the
// WebHDFS-style REST API) and provides a unified interface for lifecycle
// management. All adapters share the same engine, so a file created through
// one adapter is immediately visible through every other.
//
// Lifecycle:
//  1. Creation: Adapter is created with protocol-specific configuration
//  2. Engine injection: SetEngine() provides the shared namespace
//  3. Startup: Serve() starts the protocol server and blocks until shutdown
//  4. Shutdown: Stop() initiates graceful shutdown with timeout
//
// Thread safety:
// Implementations must be safe for concurrent use. SetEngine() is called
// once before Serve(), but Stop() may be called concurrently with Serve().
type Adapter interface {
	// Serve starts the protocol server and blocks until the context is cancelled
	// or an unrecoverable error occurs.
	//
	// When the context is cancelled, Serve must initiate graceful shutdown:
	//   - Stop accepting new connections
	//   - Wait for active requests to complete (with timeout)
	//   - Clean up resources
	//
	// If Serve returns before context cancellation, DittoServer treats it as
	// a fatal error and stops all other adapters.
	Serve(ctx context.Context) error

	// SetEngine injects the shared namespace engine.
	//
	// This method is called exactly once by DittoServer before Serve() is called.
	SetEngine(engine *namespace.Engine)

	// Stop initiates graceful shutdown of the protocol server.
	//
	// Implementations must be idempotent, safe to call concurrently with
	// Serve(), and respect the context deadline.
	Stop(ctx context.Context) error

	// Protocol returns the human-readable protocol name for logging and metrics.
	//
	// Examples: "HTTP"
	Protocol() string

	// Port returns the TCP port the adapter is listening on, or the
	// configured port before Serve() binds it.
	Port() int
}
