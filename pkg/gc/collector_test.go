package gc

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/marmos91/dittons/pkg/namespace"
	"github.com/marmos91/dittons/pkg/store/block"
	blockmemory "github.com/marmos91/dittons/pkg/store/block/memory"
	"github.com/marmos91/dittons/pkg/store/metadata"
	nodememory "github.com/marmos91/dittons/pkg/store/metadata/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEngine(t *testing.T) (*namespace.Engine, *blockmemory.MemoryBlockStore) {
	t.Helper()
	blocks := blockmemory.NewMemoryBlockStore(blockmemory.MemoryBlockStoreConfig{})
	e, err := namespace.New(context.Background(), nodememory.NewMemoryNodeStore(), blocks)
	require.NoError(t, err)
	return e, blocks
}

func writeFile(t *testing.T, e *namespace.Engine, path, content string) {
	t.Helper()
	w, err := e.Create(context.Background(), path, true, 0)
	require.NoError(t, err)
	_, err = w.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, w.Close())
}

func TestRunNow_ReleasesOrphans(t *testing.T) {
	ctx := context.Background()
	e, blocks := newEngine(t)

	writeFile(t, e, "/a", "a")
	writeFile(t, e, "/b", "b")

	open, err := e.Create(ctx, "/in-flight", false, 0)
	require.NoError(t, err)
	_, err = open.Write([]byte("unflushed"))
	require.NoError(t, err)

	var orphans []metadata.BlockHandle
	for i := 0; i < 3; i++ {
		h, err := blocks.Allocate(ctx, 0)
		require.NoError(t, err)
		orphans = append(orphans, h)
	}

	c, err := NewCollector(e, blocks, Config{BatchSize: 2}, nil)
	require.NoError(t, err)

	stats, err := c.RunNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), stats.ReferencedCount)
	assert.Equal(t, uint64(6), stats.ExistingCount)
	assert.Equal(t, uint64(3), stats.OrphanedCount)
	assert.Equal(t, uint64(3), stats.ReleasedCount)
	assert.Zero(t, stats.FailedCount)
	assert.Contains(t, stats.Summary(), "orphaned=3")

	for _, h := range orphans {
		_, err := blocks.Size(ctx, h)
		assert.ErrorIs(t, err, block.ErrBlockNotFound)
	}

	require.NoError(t, open.Close())
	r, err := e.Open(ctx, "/in-flight")
	require.NoError(t, err)
	require.NoError(t, r.Close())

	stats, err = c.RunNow(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.OrphanedCount)
}

func TestRunNow_DryRun(t *testing.T) {
	ctx := context.Background()
	e, blocks := newEngine(t)

	orphan, err := blocks.Allocate(ctx, 0)
	require.NoError(t, err)

	c, err := NewCollector(e, blocks, Config{DryRun: true}, nil)
	require.NoError(t, err)

	stats, err := c.RunNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), stats.OrphanedCount)
	assert.Zero(t, stats.ReleasedCount)

	_, err = blocks.Size(ctx, orphan)
	assert.NoError(t, err, "dry run must not release")
}

func TestRunNow_ReleaseRate(t *testing.T) {
	e, blocks := newEngine(t)

	for i := 0; i < 3; i++ {
		_, err := blocks.Allocate(context.Background(), 0)
		require.NoError(t, err)
	}

	c, err := NewCollector(e, blocks, Config{ReleaseRate: 1}, nil)
	require.NoError(t, err)

	// One release per second: the second one cannot make the deadline.
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	stats, err := c.RunNow(ctx)
	require.Error(t, err)
	assert.Equal(t, uint64(3), stats.OrphanedCount)
	assert.Equal(t, uint64(1), stats.ReleasedCount)

	n, _, err := blocks.Usage(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(2), n)
}

type failingNamespace struct{ err error }

func (f failingNamespace) Quiesce(ctx context.Context, fn func(map[metadata.BlockHandle]struct{}) error) error {
	return f.err
}

func TestRunNow_QuiesceError(t *testing.T) {
	blocks := blockmemory.NewMemoryBlockStore(blockmemory.MemoryBlockStoreConfig{})
	boom := errors.New("boom")

	c, err := NewCollector(failingNamespace{err: boom}, blocks, Config{}, nil)
	require.NoError(t, err)

	_, err = c.RunNow(context.Background())
	assert.ErrorIs(t, err, boom)
}

type nonListingStore struct{ block.Store }

func TestNewCollector_RequiresLister(t *testing.T) {
	e, blocks := newEngine(t)
	_, err := NewCollector(e, nonListingStore{blocks}, Config{}, nil)
	assert.Error(t, err)
}

func TestStartStop(t *testing.T) {
	e, blocks := newEngine(t)
	c, err := NewCollector(e, blocks, Config{Enabled: true, Interval: 10 * time.Millisecond}, nil)
	require.NoError(t, err)

	orphan, err := blocks.Allocate(context.Background(), 0)
	require.NoError(t, err)

	c.Start()

	assert.Eventually(t, func() bool {
		_, err := blocks.Size(context.Background(), orphan)
		return errors.Is(err, block.ErrBlockNotFound)
	}, 2*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	assert.NoError(t, c.Stop(ctx))
}

func TestStartDisabled(t *testing.T) {
	e, blocks := newEngine(t)
	c, err := NewCollector(e, blocks, Config{Interval: 10 * time.Millisecond}, nil)
	require.NoError(t, err)

	orphan, err := blocks.Allocate(context.Background(), 0)
	require.NoError(t, err)

	c.Start()
	time.Sleep(50 * time.Millisecond)

	_, err = blocks.Size(context.Background(), orphan)
	assert.NoError(t, err)
	assert.NoError(t, c.Stop(context.Background()))
}
