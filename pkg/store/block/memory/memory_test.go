package memory

import (
	"context"
	"testing"

	"github.com/marmos91/dittons/pkg/store/block"
	blocktesting "github.com/marmos91/dittons/pkg/store/block/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBlockStore(t *testing.T) {
	suite := &blocktesting.StoreTestSuite{
		NewStore: func(t *testing.T) block.Store {
			return NewMemoryBlockStore(MemoryBlockStoreConfig{})
		},
	}
	suite.Run(t)
}

func TestMemoryBlockStore_Capacity(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryBlockStore(MemoryBlockStoreConfig{MaxSizeBytes: 4})

	h, err := store.Allocate(ctx, 0)
	require.NoError(t, err)
	require.NoError(t, store.Write(ctx, h, []byte("abcd")))

	err = store.Write(ctx, h, []byte("e"))
	assert.ErrorIs(t, err, block.ErrStorageFull)

	_, err = store.Allocate(ctx, 0)
	assert.ErrorIs(t, err, block.ErrStorageFull)

	require.NoError(t, store.Release(ctx, h))
	blocks, used, err := store.Usage(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), blocks)
	assert.Equal(t, uint64(0), used)
}

func TestMemoryBlockStore_ReaderSnapshot(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryBlockStore(MemoryBlockStoreConfig{})

	h, err := store.Allocate(ctx, 64)
	require.NoError(t, err)
	require.NoError(t, store.Write(ctx, h, []byte("old")))

	rc, err := store.Read(ctx, h)
	require.NoError(t, err)
	defer func() { _ = rc.Close() }()

	require.NoError(t, store.Write(ctx, h, []byte("new")))

	buf := make([]byte, 16)
	n, _ := rc.Read(buf)
	assert.Equal(t, "old", string(buf[:n]))
}
