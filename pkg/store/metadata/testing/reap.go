package testing

import (
	"testing"

	"github.com/google/uuid"
	"github.com/marmos91/dittons/pkg/store/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunReapTests covers removal of unreachable subtrees.
func (suite *StoreTestSuite) RunReapTests(t *testing.T) {
	t.Run("Orphans_AfterUnlink", suite.testOrphansAfterUnlink)
	t.Run("Reap_RemovesSubtree", suite.testReapRemovesSubtree)
	t.Run("Reap_Repeatable", suite.testReapRepeatable)
	t.Run("Reap_Root", suite.testReapRoot)
}

// unlinkSubtree deletes dir's own node and leaves a/b/c.txt underneath
// unreachable. It returns the stranded nodes children first.
func unlinkSubtree(t *testing.T, store metadata.NodeStore) (dir *metadata.Node, stranded []*metadata.Node) {
	t.Helper()
	root := mustRoot(t, store)
	dir = mustMkdir(t, store, root.ID, "dir")
	a := mustMkdir(t, store, dir.ID, "a")
	b := mustMkdir(t, store, a.ID, "b")
	c := mustFile(t, store, b.ID, "c.txt", "blk-c", 10)
	d := mustFile(t, store, dir.ID, "d.txt", "blk-d", 20)

	require.NoError(t, store.Commit(testContext(), metadata.NewBatch().Delete(dir.ID)))
	return dir, []*metadata.Node{c, b, a, d}
}

func nodeIDs(nodes []*metadata.Node) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(nodes))
	for _, n := range nodes {
		ids = append(ids, n.ID)
	}
	return ids
}

func (suite *StoreTestSuite) testOrphansAfterUnlink(t *testing.T) {
	store := suite.newStore(t)

	orphans, err := store.Orphans(testContext())
	require.NoError(t, err)
	assert.Empty(t, orphans, "a fresh store has no orphans")

	dir, stranded := unlinkSubtree(t, store)

	_, err = store.Get(testContext(), dir.ID)
	assert.ErrorIs(t, err, metadata.ErrNotFound)

	orphans, err = store.Orphans(testContext())
	require.NoError(t, err)
	// Only the direct children of the deleted directory lost their parent.
	assert.ElementsMatch(t, []uuid.UUID{stranded[2].ID, stranded[3].ID}, nodeIDs(orphans))
}

func (suite *StoreTestSuite) testReapRemovesSubtree(t *testing.T) {
	store := suite.newStore(t)
	root := mustRoot(t, store)
	_, stranded := unlinkSubtree(t, store)
	keep := mustFile(t, store, root.ID, "keep.txt", "blk-keep", 5)

	require.NoError(t, store.Reap(testContext(), stranded))

	for _, n := range stranded {
		_, err := store.Get(testContext(), n.ID)
		assert.ErrorIs(t, err, metadata.ErrNotFound, n.Name)
	}
	orphans, err := store.Orphans(testContext())
	require.NoError(t, err)
	assert.Empty(t, orphans)

	handles, err := store.BlockHandles(testContext())
	require.NoError(t, err)
	assert.ElementsMatch(t, []metadata.BlockHandle{keep.Block}, handles)

	stats, err := store.Statistics(testContext())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), stats.Directories)
	assert.Equal(t, uint64(1), stats.Files)
}

func (suite *StoreTestSuite) testReapRepeatable(t *testing.T) {
	store := suite.newStore(t)
	_, stranded := unlinkSubtree(t, store)

	// An interrupted reap leaves a subset behind; finishing it later must
	// tolerate the nodes already gone.
	require.NoError(t, store.Reap(testContext(), stranded[:2]))
	require.NoError(t, store.Reap(testContext(), stranded))
	require.NoError(t, store.Reap(testContext(), nil))

	orphans, err := store.Orphans(testContext())
	require.NoError(t, err)
	assert.Empty(t, orphans)
}

func (suite *StoreTestSuite) testReapRoot(t *testing.T) {
	store := suite.newStore(t)
	root := mustRoot(t, store)

	err := store.Reap(testContext(), []*metadata.Node{root})
	assert.ErrorIs(t, err, metadata.ErrRootImmutable)

	_, err = store.Root(testContext())
	assert.NoError(t, err)
}
