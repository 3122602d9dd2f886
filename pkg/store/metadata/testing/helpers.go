package testing

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/marmos91/dittons/pkg/store/metadata"
	"github.com/stretchr/testify/require"
)

// mustRoot returns the store's root directory.
func mustRoot(t *testing.T, store metadata.NodeStore) *metadata.Node {
	t.Helper()
	root, err := store.Root(testContext())
	require.NoError(t, err)
	return root
}

// mustMkdir commits a new directory under parent.
func mustMkdir(t *testing.T, store metadata.NodeStore, parent uuid.UUID, name string) *metadata.Node {
	t.Helper()
	dir := metadata.NewDirectory(parent, name, "tester", time.Now())
	require.NoError(t, store.Commit(testContext(), metadata.NewBatch().Put(dir)))
	return dir
}

// mustFile commits a new file under parent referencing block.
func mustFile(t *testing.T, store metadata.NodeStore, parent uuid.UUID, name string, block metadata.BlockHandle, size uint64) *metadata.Node {
	t.Helper()
	file := metadata.NewFile(parent, name, "tester", 4096, time.Now())
	file.Block = block
	file.Size = size
	require.NoError(t, store.Commit(testContext(), metadata.NewBatch().Put(file)))
	return file
}

// AssertSameNode compares two nodes field by field. Times are compared at
// nanosecond precision since persisted stores drop monotonic readings.
func AssertSameNode(t *testing.T, expected, actual *metadata.Node) {
	t.Helper()
	require.NotNil(t, actual)
	require.Equal(t, expected.ID, actual.ID)
	require.Equal(t, expected.ParentID, actual.ParentID)
	require.Equal(t, expected.Name, actual.Name)
	require.Equal(t, expected.Kind, actual.Kind)
	require.Equal(t, expected.Block, actual.Block)
	require.Equal(t, expected.Size, actual.Size)
	require.Equal(t, expected.BlockSize, actual.BlockSize)
	require.Equal(t, expected.Owner, actual.Owner)
	require.Equal(t, expected.Mode, actual.Mode)
	require.Equal(t, expected.ModTime.UnixNano(), actual.ModTime.UnixNano())
	require.Equal(t, expected.AccessTime.UnixNano(), actual.AccessTime.UnixNano())
}
