package block

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/marmos91/dittons/pkg/store/metadata"
)

// NewHandle returns a fresh random block handle.
//
// All bundled backends use UUID v4 handles, which are safe as file names
// and object keys.
func NewHandle() metadata.BlockHandle {
	return metadata.BlockHandle(uuid.NewString())
}

// ValidateHandle rejects handles that were not produced by NewHandle.
func ValidateHandle(h metadata.BlockHandle) error {
	id, err := uuid.Parse(string(h))
	if err != nil || id.String() != string(h) {
		return fmt.Errorf("%q: %w", h, ErrInvalidHandle)
	}
	return nil
}
