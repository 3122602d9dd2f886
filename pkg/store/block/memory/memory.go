package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/marmos91/dittons/pkg/store/block"
	"github.com/marmos91/dittons/pkg/store/metadata"
)

// MemoryBlockStore keeps blocks as byte slices.
//
// Intended for tests, development and ephemeral deployments. Data is lost
// on restart. An optional capacity makes Allocate and Write fail with
// block.ErrStorageFull once reached.
//
// Thread Safety:
// A read-write mutex guards the map. Readers get a view of the bytes
// present when Read was called; later appends never modify that prefix.
type MemoryBlockStore struct {
	mu       sync.RWMutex
	blocks   map[metadata.BlockHandle][]byte
	used     uint64
	maxBytes uint64
}

// MemoryBlockStoreConfig configures a MemoryBlockStore.
type MemoryBlockStoreConfig struct {
	// MaxSizeBytes caps the total stored bytes. 0 means unlimited.
	MaxSizeBytes uint64 `mapstructure:"max_size_bytes"`
}

// NewMemoryBlockStore creates an empty store.
func NewMemoryBlockStore(config MemoryBlockStoreConfig) *MemoryBlockStore {
	return &MemoryBlockStore{
		blocks:   make(map[metadata.BlockHandle][]byte),
		maxBytes: config.MaxSizeBytes,
	}
}

func (s *MemoryBlockStore) Allocate(ctx context.Context, sizeHint int64) (metadata.BlockHandle, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.maxBytes > 0 && s.used >= s.maxBytes {
		return "", block.ErrStorageFull
	}

	h := block.NewHandle()
	capacity := 0
	if sizeHint > 0 && sizeHint <= 1<<20 {
		capacity = int(sizeHint)
	}
	s.blocks[h] = make([]byte, 0, capacity)
	return h, nil
}

func (s *MemoryBlockStore) Write(ctx context.Context, h metadata.BlockHandle, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	buf, ok := s.blocks[h]
	if !ok {
		return fmt.Errorf("block %s: %w", h, block.ErrBlockNotFound)
	}
	if s.maxBytes > 0 && s.used+uint64(len(data)) > s.maxBytes {
		return fmt.Errorf("block %s: %w", h, block.ErrStorageFull)
	}

	s.blocks[h] = append(buf, data...)
	s.used += uint64(len(data))
	return nil
}

func (s *MemoryBlockStore) Read(ctx context.Context, h metadata.BlockHandle) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	buf, ok := s.blocks[h]
	if !ok {
		return nil, fmt.Errorf("block %s: %w", h, block.ErrBlockNotFound)
	}
	return block.NewContextReader(ctx, io.NopCloser(bytes.NewReader(buf[:len(buf):len(buf)]))), nil
}

func (s *MemoryBlockStore) Size(ctx context.Context, h metadata.BlockHandle) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	buf, ok := s.blocks[h]
	if !ok {
		return 0, fmt.Errorf("block %s: %w", h, block.ErrBlockNotFound)
	}
	return uint64(len(buf)), nil
}

func (s *MemoryBlockStore) Release(ctx context.Context, h metadata.BlockHandle) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if buf, ok := s.blocks[h]; ok {
		s.used -= uint64(len(buf))
		delete(s.blocks, h)
	}
	return nil
}

func (s *MemoryBlockStore) Healthcheck(ctx context.Context) error {
	return ctx.Err()
}

func (s *MemoryBlockStore) ListAll(ctx context.Context) ([]metadata.BlockHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	handles := make([]metadata.BlockHandle, 0, len(s.blocks))
	for h := range s.blocks {
		handles = append(handles, h)
	}
	return handles, nil
}

func (s *MemoryBlockStore) Usage(ctx context.Context) (uint64, uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return uint64(len(s.blocks)), s.used, nil
}
