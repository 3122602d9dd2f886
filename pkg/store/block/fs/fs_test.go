package fs

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/marmos91/dittons/pkg/store/block"
	blocktesting "github.com/marmos91/dittons/pkg/store/block/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFSBlockStore(t *testing.T) {
	suite := &blocktesting.StoreTestSuite{
		NewStore: func(t *testing.T) block.Store {
			store, err := NewFSBlockStore(context.Background(), FSBlockStoreConfig{Path: t.TempDir()})
			require.NoError(t, err)
			return store
		},
	}
	suite.Run(t)
}

func TestFSBlockStore_Layout(t *testing.T) {
	ctx := context.Background()
	base := t.TempDir()
	store, err := NewFSBlockStore(ctx, FSBlockStoreConfig{Path: base, NoSync: true})
	require.NoError(t, err)

	h, err := store.Allocate(ctx, 0)
	require.NoError(t, err)
	require.NoError(t, store.Write(ctx, h, []byte("hello")))

	data, err := os.ReadFile(filepath.Join(base, string(h)[:2], string(h)))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	blocks, used, err := store.Usage(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), blocks)
	assert.Equal(t, uint64(5), used)
}

func TestFSBlockStore_IgnoresForeignFiles(t *testing.T) {
	ctx := context.Background()
	base := t.TempDir()
	store, err := NewFSBlockStore(ctx, FSBlockStoreConfig{Path: base})
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(base, "README"), []byte("x"), 0644))

	handles, err := store.ListAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, handles)
}

func TestFSBlockStore_RequiresPath(t *testing.T) {
	_, err := NewFSBlockStore(context.Background(), FSBlockStoreConfig{})
	assert.Error(t, err)
}

func TestFSBlockStore_RejectsTraversal(t *testing.T) {
	store, err := NewFSBlockStore(context.Background(), FSBlockStoreConfig{Path: t.TempDir()})
	require.NoError(t, err)

	err = store.Release(context.Background(), "../escape")
	assert.ErrorIs(t, err, block.ErrInvalidHandle)
}
