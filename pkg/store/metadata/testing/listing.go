package testing

import (
	"testing"

	"github.com/google/uuid"
	"github.com/marmos91/dittons/pkg/store/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunListingTests covers Children and HasChildren.
func (suite *StoreTestSuite) RunListingTests(t *testing.T) {
	t.Run("Children_SortedByName", suite.testChildrenSorted)
	t.Run("Children_OnlyImmediate", suite.testChildrenOnlyImmediate)
	t.Run("Children_OfFile", suite.testChildrenOfFile)
	t.Run("Children_ParentMissing", suite.testChildrenParentMissing)
	t.Run("Children_PrefixIsolation", suite.testChildrenPrefixIsolation)
}

func (suite *StoreTestSuite) testChildrenSorted(t *testing.T) {
	store := suite.newStore(t)
	root := mustRoot(t, store)
	for _, name := range []string{"c.txt", "a.txt", "b.txt"} {
		mustFile(t, store, root.ID, name, "", 0)
	}

	children, err := store.Children(testContext(), root.ID)
	require.NoError(t, err)
	require.Len(t, children, 3)
	assert.Equal(t, "a.txt", children[0].Name)
	assert.Equal(t, "b.txt", children[1].Name)
	assert.Equal(t, "c.txt", children[2].Name)
}

func (suite *StoreTestSuite) testChildrenOnlyImmediate(t *testing.T) {
	store := suite.newStore(t)
	root := mustRoot(t, store)
	dir := mustMkdir(t, store, root.ID, "dir")
	mustFile(t, store, dir.ID, "nested", "", 0)

	children, err := store.Children(testContext(), root.ID)
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, dir.ID, children[0].ID)

	has, err := store.HasChildren(testContext(), dir.ID)
	require.NoError(t, err)
	assert.True(t, has)
}

func (suite *StoreTestSuite) testChildrenOfFile(t *testing.T) {
	store := suite.newStore(t)
	root := mustRoot(t, store)
	file := mustFile(t, store, root.ID, "f", "", 0)

	children, err := store.Children(testContext(), file.ID)
	require.NoError(t, err)
	assert.Empty(t, children)
}

func (suite *StoreTestSuite) testChildrenParentMissing(t *testing.T) {
	store := suite.newStore(t)

	_, err := store.Children(testContext(), uuid.New())
	assert.ErrorIs(t, err, metadata.ErrNotFound)

	_, err = store.HasChildren(testContext(), uuid.New())
	assert.ErrorIs(t, err, metadata.ErrNotFound)
}

// Names sharing a prefix with a sibling directory must not leak into that
// directory's listing.
func (suite *StoreTestSuite) testChildrenPrefixIsolation(t *testing.T) {
	store := suite.newStore(t)
	root := mustRoot(t, store)
	a := mustMkdir(t, store, root.ID, "a")
	mustMkdir(t, store, root.ID, "a:b")
	mustFile(t, store, a.ID, "x", "", 0)

	children, err := store.Children(testContext(), a.ID)
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, "x", children[0].Name)
}
