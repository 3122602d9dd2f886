package block

import (
	"context"
	"io"

	"github.com/marmos91/dittons/pkg/store/metadata"
)

// ============================================================================
// Store Interface
// ============================================================================

// Store is the block layer: opaque byte containers addressed by handle.
//
// The namespace engine is the only caller. It allocates one block per write
// handle, appends to it while the handle is open, points a file node at it
// on close, and releases blocks that no file references anymore.
//
// Separation of Concerns:
//
// A block knows nothing about paths, names or ownership. Placement,
// replication and checksumming are backend concerns and are invisible to
// the namespace.
//
// Write Model:
//
// Blocks are append-only. Exactly one writer appends to a block, in order,
// and a block is never read while it is still being written (the namespace
// only exposes a block after its writer closed). Backends therefore need no
// per-block locking for correctness of a single block.
//
// Thread Safety:
// Implementations must be safe for concurrent use on distinct blocks.
type Store interface {
	// Allocate reserves a new, empty block.
	//
	// Parameters:
	//   - sizeHint: Expected final size in bytes, 0 if unknown. Backends may
	//     use it to preallocate; it is never a limit.
	//
	// Returns:
	//   - metadata.BlockHandle: Handle of the new block
	//   - error: ErrStorageFull, backend errors, or context errors
	Allocate(ctx context.Context, sizeHint int64) (metadata.BlockHandle, error)

	// Write appends data to the block.
	//
	// The bytes are durable when Write returns. Calls on one block are
	// ordered by the caller.
	//
	// Returns:
	//   - error: ErrBlockNotFound, ErrInvalidHandle, ErrStorageFull, backend
	//     errors, or context errors
	Write(ctx context.Context, h metadata.BlockHandle, data []byte) error

	// Read opens a lazy sequential reader over the whole block.
	//
	// The reader honours ctx for the rest of its life. The caller must
	// close it.
	//
	// Returns:
	//   - io.ReadCloser: Reader positioned at offset 0
	//   - error: ErrBlockNotFound, ErrInvalidHandle, or backend errors
	Read(ctx context.Context, h metadata.BlockHandle) (io.ReadCloser, error)

	// Size returns the number of bytes written to the block so far.
	Size(ctx context.Context, h metadata.BlockHandle) (uint64, error)

	// Release frees the block. Releasing a missing block is not an error.
	Release(ctx context.Context, h metadata.BlockHandle) error

	// Healthcheck verifies the backend is reachable and usable.
	Healthcheck(ctx context.Context) error
}

// Lister is implemented by stores that can enumerate their blocks.
// Garbage collection requires it.
type Lister interface {
	// ListAll returns the handle of every allocated block.
	ListAll(ctx context.Context) ([]metadata.BlockHandle, error)
}

// Stats is implemented by stores that can report usage.
type Stats interface {
	// Usage returns the number of blocks and total bytes stored.
	Usage(ctx context.Context) (blocks uint64, bytes uint64, err error)
}
