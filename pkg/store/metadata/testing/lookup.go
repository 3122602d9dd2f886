package testing

import (
	"testing"

	"github.com/google/uuid"
	"github.com/marmos91/dittons/pkg/store/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunLookupTests covers Root, Get and Lookup.
func (suite *StoreTestSuite) RunLookupTests(t *testing.T) {
	t.Run("Root_IsEmptyDirectory", suite.testRootIsEmptyDirectory)
	t.Run("Get_NotFound", suite.testGetNotFound)
	t.Run("Get_ReturnsCopy", suite.testGetReturnsCopy)
	t.Run("Lookup_Success", suite.testLookupSuccess)
	t.Run("Lookup_NotFound", suite.testLookupNotFound)
}

func (suite *StoreTestSuite) testRootIsEmptyDirectory(t *testing.T) {
	store := suite.newStore(t)

	root := mustRoot(t, store)
	assert.True(t, root.IsDir())
	assert.True(t, root.IsRoot())
	assert.Equal(t, "", root.Name)
	assert.NotEqual(t, uuid.Nil, root.ID)

	has, err := store.HasChildren(testContext(), root.ID)
	require.NoError(t, err)
	assert.False(t, has)
}

func (suite *StoreTestSuite) testGetNotFound(t *testing.T) {
	store := suite.newStore(t)

	_, err := store.Get(testContext(), uuid.New())
	assert.ErrorIs(t, err, metadata.ErrNotFound)
}

func (suite *StoreTestSuite) testGetReturnsCopy(t *testing.T) {
	store := suite.newStore(t)
	root := mustRoot(t, store)
	dir := mustMkdir(t, store, root.ID, "docs")

	got, err := store.Get(testContext(), dir.ID)
	require.NoError(t, err)
	got.Name = "mutated"

	again, err := store.Get(testContext(), dir.ID)
	require.NoError(t, err)
	assert.Equal(t, "docs", again.Name)
}

func (suite *StoreTestSuite) testLookupSuccess(t *testing.T) {
	store := suite.newStore(t)
	root := mustRoot(t, store)
	dir := mustMkdir(t, store, root.ID, "docs")
	file := mustFile(t, store, dir.ID, "a.txt", "blk-1", 2)

	got, err := store.Lookup(testContext(), dir.ID, "a.txt")
	require.NoError(t, err)
	AssertSameNode(t, file, got)
}

func (suite *StoreTestSuite) testLookupNotFound(t *testing.T) {
	store := suite.newStore(t)
	root := mustRoot(t, store)

	_, err := store.Lookup(testContext(), root.ID, "missing")
	assert.ErrorIs(t, err, metadata.ErrNotFound)

	_, err = store.Lookup(testContext(), uuid.New(), "missing")
	assert.ErrorIs(t, err, metadata.ErrNotFound)
}
