package block

import "errors"

// Standard block store errors. Implementations wrap them with context:
//
//	return fmt.Errorf("block %s: %w", h, block.ErrBlockNotFound)
var (
	// ErrBlockNotFound indicates the handle does not name an allocated block.
	ErrBlockNotFound = errors.New("block not found")

	// ErrInvalidHandle indicates a malformed handle. Handles are produced by
	// Allocate and must not be fabricated by callers.
	ErrInvalidHandle = errors.New("invalid block handle")

	// ErrStorageFull indicates the store reached its configured capacity.
	ErrStorageFull = errors.New("block storage full")
)
