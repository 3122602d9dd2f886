package testing

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/marmos91/dittons/pkg/store/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunCommitTests covers batch validation and atomicity.
func (suite *StoreTestSuite) RunCommitTests(t *testing.T) {
	t.Run("Put_NestedInOneBatch", suite.testPutNestedInOneBatch)
	t.Run("Put_NameConflict", suite.testPutNameConflict)
	t.Run("Put_ParentIsFile", suite.testPutParentIsFile)
	t.Run("Put_ParentMissing", suite.testPutParentMissing)
	t.Run("Put_ReplaceKeepsIndex", suite.testPutReplaceKeepsIndex)
	t.Run("Put_Rename", suite.testPutRename)
	t.Run("Delete_Subtree", suite.testDeleteSubtree)
	t.Run("Delete_Missing", suite.testDeleteMissing)
	t.Run("Delete_Root", suite.testDeleteRoot)
	t.Run("FailedBatch_AppliesNothing", suite.testFailedBatchAppliesNothing)
}

func (suite *StoreTestSuite) testPutNestedInOneBatch(t *testing.T) {
	store := suite.newStore(t)
	root := mustRoot(t, store)

	now := time.Now()
	a := metadata.NewDirectory(root.ID, "a", "", now)
	b := metadata.NewDirectory(a.ID, "b", "", now)
	c := metadata.NewFile(b.ID, "c.txt", "", 512, now)

	require.NoError(t, store.Commit(testContext(), metadata.NewBatch().Put(a).Put(b).Put(c)))

	got, err := store.Lookup(testContext(), b.ID, "c.txt")
	require.NoError(t, err)
	AssertSameNode(t, c, got)
}

func (suite *StoreTestSuite) testPutNameConflict(t *testing.T) {
	store := suite.newStore(t)
	root := mustRoot(t, store)
	mustMkdir(t, store, root.ID, "dup")

	other := metadata.NewFile(root.ID, "dup", "", 0, time.Now())
	err := store.Commit(testContext(), metadata.NewBatch().Put(other))
	assert.ErrorIs(t, err, metadata.ErrNameConflict)
}

func (suite *StoreTestSuite) testPutParentIsFile(t *testing.T) {
	store := suite.newStore(t)
	root := mustRoot(t, store)
	file := mustFile(t, store, root.ID, "f", "", 0)

	child := metadata.NewFile(file.ID, "x", "", 0, time.Now())
	err := store.Commit(testContext(), metadata.NewBatch().Put(child))
	assert.ErrorIs(t, err, metadata.ErrParentNotDirectory)
}

func (suite *StoreTestSuite) testPutParentMissing(t *testing.T) {
	store := suite.newStore(t)

	orphan := metadata.NewDirectory(uuid.New(), "x", "", time.Now())
	err := store.Commit(testContext(), metadata.NewBatch().Put(orphan))
	assert.ErrorIs(t, err, metadata.ErrParentNotDirectory)
}

func (suite *StoreTestSuite) testPutReplaceKeepsIndex(t *testing.T) {
	store := suite.newStore(t)
	root := mustRoot(t, store)
	file := mustFile(t, store, root.ID, "f", "old", 3)

	updated := file.Clone()
	updated.Block = "new"
	updated.Size = 7
	require.NoError(t, store.Commit(testContext(), metadata.NewBatch().Put(updated)))

	got, err := store.Lookup(testContext(), root.ID, "f")
	require.NoError(t, err)
	assert.Equal(t, metadata.BlockHandle("new"), got.Block)
	assert.Equal(t, uint64(7), got.Size)

	children, err := store.Children(testContext(), root.ID)
	require.NoError(t, err)
	assert.Len(t, children, 1)
}

func (suite *StoreTestSuite) testPutRename(t *testing.T) {
	store := suite.newStore(t)
	root := mustRoot(t, store)
	dir := mustMkdir(t, store, root.ID, "dir")
	file := mustFile(t, store, root.ID, "old", "", 0)

	moved := file.Clone()
	moved.ParentID = dir.ID
	moved.Name = "new"
	require.NoError(t, store.Commit(testContext(), metadata.NewBatch().Put(moved)))

	_, err := store.Lookup(testContext(), root.ID, "old")
	assert.ErrorIs(t, err, metadata.ErrNotFound)

	got, err := store.Lookup(testContext(), dir.ID, "new")
	require.NoError(t, err)
	assert.Equal(t, file.ID, got.ID)
}

func (suite *StoreTestSuite) testDeleteSubtree(t *testing.T) {
	store := suite.newStore(t)
	root := mustRoot(t, store)
	dir := mustMkdir(t, store, root.ID, "dir")
	sub := mustMkdir(t, store, dir.ID, "sub")
	file := mustFile(t, store, sub.ID, "f", "blk", 1)

	batch := metadata.NewBatch().Delete(file.ID).Delete(sub.ID).Delete(dir.ID)
	require.NoError(t, store.Commit(testContext(), batch))

	for _, id := range []uuid.UUID{dir.ID, sub.ID, file.ID} {
		_, err := store.Get(testContext(), id)
		assert.ErrorIs(t, err, metadata.ErrNotFound)
	}
	has, err := store.HasChildren(testContext(), root.ID)
	require.NoError(t, err)
	assert.False(t, has)
}

func (suite *StoreTestSuite) testDeleteMissing(t *testing.T) {
	store := suite.newStore(t)

	assert.NoError(t, store.Commit(testContext(), metadata.NewBatch().Delete(uuid.New())))
}

func (suite *StoreTestSuite) testDeleteRoot(t *testing.T) {
	store := suite.newStore(t)
	root := mustRoot(t, store)

	err := store.Commit(testContext(), metadata.NewBatch().Delete(root.ID))
	assert.ErrorIs(t, err, metadata.ErrRootImmutable)

	_, err = store.Root(testContext())
	assert.NoError(t, err)
}

func (suite *StoreTestSuite) testFailedBatchAppliesNothing(t *testing.T) {
	store := suite.newStore(t)
	root := mustRoot(t, store)
	existing := mustMkdir(t, store, root.ID, "taken")

	now := time.Now()
	fresh := metadata.NewDirectory(root.ID, "fresh", "", now)
	nested := metadata.NewFile(fresh.ID, "f", "", 0, now)
	conflict := metadata.NewFile(root.ID, "taken", "", 0, now)

	batch := metadata.NewBatch().
		Put(fresh).
		Put(nested).
		Delete(existing.ID).
		Put(metadata.NewDirectory(root.ID, "again", "", now)).
		Put(conflict).
		Put(metadata.NewDirectory(root.ID, "taken", "", now))

	err := store.Commit(testContext(), batch)
	require.ErrorIs(t, err, metadata.ErrNameConflict)

	_, err = store.Lookup(testContext(), root.ID, "fresh")
	assert.ErrorIs(t, err, metadata.ErrNotFound)
	_, err = store.Get(testContext(), nested.ID)
	assert.ErrorIs(t, err, metadata.ErrNotFound)

	got, err := store.Lookup(testContext(), root.ID, "taken")
	require.NoError(t, err)
	assert.Equal(t, existing.ID, got.ID)

	children, err := store.Children(testContext(), root.ID)
	require.NoError(t, err)
	assert.Len(t, children, 1)
}
