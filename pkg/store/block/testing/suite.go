package testing

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/marmos91/dittons/pkg/store/block"
	"github.com/marmos91/dittons/pkg/store/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// StoreTestSuite is a conformance suite for block.Store implementations.
//
// Usage:
//
//	func TestMyBlockStore(t *testing.T) {
//	    suite := &testing.StoreTestSuite{
//	        NewStore: func(t *testing.T) block.Store {
//	            return mystore.New()
//	        },
//	    }
//	    suite.Run(t)
//	}
type StoreTestSuite struct {
	// NewStore creates a fresh store for each test.
	NewStore func(t *testing.T) block.Store
}

// Run executes all tests in the suite.
func (suite *StoreTestSuite) Run(t *testing.T) {
	t.Run("Allocate_Empty", suite.testAllocateEmpty)
	t.Run("Write_AppendsInOrder", suite.testWriteAppendsInOrder)
	t.Run("Write_EmptyData", suite.testWriteEmptyData)
	t.Run("Write_NotFound", suite.testWriteNotFound)
	t.Run("Read_NotFound", suite.testReadNotFound)
	t.Run("Read_InvalidHandle", suite.testReadInvalidHandle)
	t.Run("Read_Large", suite.testReadLarge)
	t.Run("Read_ConcurrentReaders", suite.testConcurrentReaders)
	t.Run("Read_CancelledContext", suite.testReadCancelledContext)
	t.Run("Release", suite.testRelease)
	t.Run("Release_Idempotent", suite.testReleaseIdempotent)
	t.Run("ListAll", suite.testListAll)
	t.Run("Healthcheck", suite.testHealthcheck)
}

func testContext() context.Context {
	return context.Background()
}

func mustAllocate(t *testing.T, store block.Store) metadata.BlockHandle {
	t.Helper()
	h, err := store.Allocate(testContext(), 0)
	require.NoError(t, err)
	require.NoError(t, block.ValidateHandle(h))
	return h
}

func mustReadAll(t *testing.T, store block.Store, h metadata.BlockHandle) []byte {
	t.Helper()
	rc, err := store.Read(testContext(), h)
	require.NoError(t, err)
	defer func() { _ = rc.Close() }()

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	return data
}

func (suite *StoreTestSuite) testAllocateEmpty(t *testing.T) {
	store := suite.NewStore(t)
	h := mustAllocate(t, store)

	size, err := store.Size(testContext(), h)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), size)
	assert.Empty(t, mustReadAll(t, store, h))

	other := mustAllocate(t, store)
	assert.NotEqual(t, h, other)
}

func (suite *StoreTestSuite) testWriteAppendsInOrder(t *testing.T) {
	store := suite.NewStore(t)
	h := mustAllocate(t, store)

	require.NoError(t, store.Write(testContext(), h, []byte("A")))
	require.NoError(t, store.Write(testContext(), h, []byte("!")))
	require.NoError(t, store.Write(testContext(), h, []byte(" more")))

	assert.Equal(t, []byte("A! more"), mustReadAll(t, store, h))

	size, err := store.Size(testContext(), h)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), size)
}

func (suite *StoreTestSuite) testWriteEmptyData(t *testing.T) {
	store := suite.NewStore(t)
	h := mustAllocate(t, store)

	require.NoError(t, store.Write(testContext(), h, nil))
	assert.Empty(t, mustReadAll(t, store, h))
}

func (suite *StoreTestSuite) testWriteNotFound(t *testing.T) {
	store := suite.NewStore(t)

	err := store.Write(testContext(), metadata.BlockHandle(uuid.NewString()), []byte("x"))
	assert.ErrorIs(t, err, block.ErrBlockNotFound)
}

func (suite *StoreTestSuite) testReadNotFound(t *testing.T) {
	store := suite.NewStore(t)

	_, err := store.Read(testContext(), metadata.BlockHandle(uuid.NewString()))
	assert.ErrorIs(t, err, block.ErrBlockNotFound)

	_, err = store.Size(testContext(), metadata.BlockHandle(uuid.NewString()))
	assert.ErrorIs(t, err, block.ErrBlockNotFound)
}

func (suite *StoreTestSuite) testReadInvalidHandle(t *testing.T) {
	store := suite.NewStore(t)

	_, err := store.Read(testContext(), "../../etc/passwd")
	assert.Error(t, err)
}

func (suite *StoreTestSuite) testReadLarge(t *testing.T) {
	store := suite.NewStore(t)
	h := mustAllocate(t, store)

	chunk := bytes.Repeat([]byte("0123456789abcdef"), 4096)
	var expected []byte
	for i := 0; i < 4; i++ {
		require.NoError(t, store.Write(testContext(), h, chunk))
		expected = append(expected, chunk...)
	}

	assert.Equal(t, expected, mustReadAll(t, store, h))
}

func (suite *StoreTestSuite) testConcurrentReaders(t *testing.T) {
	store := suite.NewStore(t)
	h := mustAllocate(t, store)
	require.NoError(t, store.Write(testContext(), h, []byte("shared")))

	r1, err := store.Read(testContext(), h)
	require.NoError(t, err)
	defer func() { _ = r1.Close() }()
	r2, err := store.Read(testContext(), h)
	require.NoError(t, err)
	defer func() { _ = r2.Close() }()

	b1, err := io.ReadAll(r1)
	require.NoError(t, err)
	b2, err := io.ReadAll(r2)
	require.NoError(t, err)
	assert.Equal(t, b1, b2)
}

func (suite *StoreTestSuite) testReadCancelledContext(t *testing.T) {
	store := suite.NewStore(t)
	h := mustAllocate(t, store)
	require.NoError(t, store.Write(testContext(), h, []byte("data")))

	ctx, cancel := context.WithCancel(testContext())
	rc, err := store.Read(ctx, h)
	require.NoError(t, err)
	defer func() { _ = rc.Close() }()

	cancel()
	_, err = io.ReadAll(rc)
	assert.ErrorIs(t, err, context.Canceled)
}

func (suite *StoreTestSuite) testRelease(t *testing.T) {
	store := suite.NewStore(t)
	h := mustAllocate(t, store)
	require.NoError(t, store.Write(testContext(), h, []byte("gone")))

	require.NoError(t, store.Release(testContext(), h))

	_, err := store.Read(testContext(), h)
	assert.ErrorIs(t, err, block.ErrBlockNotFound)
}

func (suite *StoreTestSuite) testReleaseIdempotent(t *testing.T) {
	store := suite.NewStore(t)
	h := mustAllocate(t, store)

	require.NoError(t, store.Release(testContext(), h))
	assert.NoError(t, store.Release(testContext(), h))
	assert.NoError(t, store.Release(testContext(), metadata.BlockHandle(uuid.NewString())))
}

func (suite *StoreTestSuite) testListAll(t *testing.T) {
	store := suite.NewStore(t)
	lister, ok := store.(block.Lister)
	if !ok {
		t.Skip("store does not implement block.Lister")
	}

	a := mustAllocate(t, store)
	b := mustAllocate(t, store)
	c := mustAllocate(t, store)
	require.NoError(t, store.Write(testContext(), b, []byte("x")))
	require.NoError(t, store.Release(testContext(), c))

	handles, err := lister.ListAll(testContext())
	require.NoError(t, err)
	assert.ElementsMatch(t, []metadata.BlockHandle{a, b}, handles)
}

func (suite *StoreTestSuite) testHealthcheck(t *testing.T) {
	store := suite.NewStore(t)

	assert.NoError(t, store.Healthcheck(testContext()))
}
