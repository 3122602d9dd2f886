package testing

import (
	"testing"

	"github.com/marmos91/dittons/pkg/store/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunAccountingTests covers BlockHandles, Statistics and Healthcheck.
func (suite *StoreTestSuite) RunAccountingTests(t *testing.T) {
	t.Run("BlockHandles", suite.testBlockHandles)
	t.Run("Statistics", suite.testStatistics)
	t.Run("Healthcheck", suite.testHealthcheck)
}

func (suite *StoreTestSuite) testBlockHandles(t *testing.T) {
	store := suite.newStore(t)
	root := mustRoot(t, store)
	dir := mustMkdir(t, store, root.ID, "dir")
	mustFile(t, store, root.ID, "a", "blk-a", 1)
	mustFile(t, store, dir.ID, "b", "blk-b", 1)
	mustFile(t, store, dir.ID, "empty", "", 0)

	handles, err := store.BlockHandles(testContext())
	require.NoError(t, err)
	assert.ElementsMatch(t, []metadata.BlockHandle{"blk-a", "blk-b"}, handles)
}

func (suite *StoreTestSuite) testStatistics(t *testing.T) {
	store := suite.newStore(t)
	root := mustRoot(t, store)
	dir := mustMkdir(t, store, root.ID, "dir")
	mustFile(t, store, dir.ID, "a", "blk-a", 10)
	mustFile(t, store, dir.ID, "b", "blk-b", 5)

	stats, err := store.Statistics(testContext())
	require.NoError(t, err)
	assert.Equal(t, uint64(2), stats.Directories)
	assert.Equal(t, uint64(2), stats.Files)
	assert.Equal(t, uint64(15), stats.Bytes)
}

func (suite *StoreTestSuite) testHealthcheck(t *testing.T) {
	store := suite.newStore(t)

	assert.NoError(t, store.Healthcheck(testContext()))
}
