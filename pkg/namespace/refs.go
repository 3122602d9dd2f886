package namespace

import (
	"context"
	"sync"

	"github.com/marmos91/dittons/pkg/store/metadata"
)

// blockRefs tracks blocks that are in use outside the node store: blocks
// owned by open writers, blocks pinned by readers, and pinned blocks whose
// release waits for the last reader.
type blockRefs struct {
	mu      sync.Mutex
	writers map[metadata.BlockHandle]struct{}
	pins    map[metadata.BlockHandle]int
	pending map[metadata.BlockHandle]struct{}
}

func newBlockRefs() blockRefs {
	return blockRefs{
		writers: make(map[metadata.BlockHandle]struct{}),
		pins:    make(map[metadata.BlockHandle]int),
		pending: make(map[metadata.BlockHandle]struct{}),
	}
}

func (r *blockRefs) addWriter(h metadata.BlockHandle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writers[h] = struct{}{}
}

func (r *blockRefs) removeWriter(h metadata.BlockHandle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.writers, h)
}

func (r *blockRefs) pin(h metadata.BlockHandle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pins[h]++
}

// unpin drops one reader and reports whether the block must now be released.
func (r *blockRefs) unpin(h metadata.BlockHandle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.pins[h]--
	if r.pins[h] > 0 {
		return false
	}
	delete(r.pins, h)
	if _, ok := r.pending[h]; ok {
		delete(r.pending, h)
		return true
	}
	return false
}

// retire is called when no node references h anymore. It reports whether h
// can be released now; otherwise the release waits for the last unpin.
func (r *blockRefs) retire(h metadata.BlockHandle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.pins[h] > 0 {
		r.pending[h] = struct{}{}
		return false
	}
	return true
}

// snapshot adds every tracked block to set.
func (r *blockRefs) snapshot(set map[metadata.BlockHandle]struct{}) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for h := range r.writers {
		set[h] = struct{}{}
	}
	for h := range r.pins {
		set[h] = struct{}{}
	}
	for h := range r.pending {
		set[h] = struct{}{}
	}
}

// releaseBlock hands h back to the block store. Failures are logged; the
// block is then an orphan for the collector.
func (e *Engine) releaseBlock(ctx context.Context, h metadata.BlockHandle, deferred bool) {
	if err := e.blocks.Release(context.WithoutCancel(ctx), h); err != nil {
		log.Warn("failed to release block %s: %v", h, err)
		return
	}
	e.opts.metrics.RecordBlockRelease(deferred)
}

// Quiesce runs fn with block allocation paused. fn receives every block
// referenced by a file node, owned by an open writer or pinned by a reader;
// any other block in the block store is an orphan for the duration of fn.
func (e *Engine) Quiesce(ctx context.Context, fn func(referenced map[metadata.BlockHandle]struct{}) error) error {
	e.allocMu.Lock()
	defer e.allocMu.Unlock()

	referenced, err := e.referencedBlocks(ctx)
	if err != nil {
		return err
	}
	return fn(referenced)
}

func (e *Engine) referencedBlocks(ctx context.Context) (map[metadata.BlockHandle]struct{}, error) {
	// The whole namespace, so no commit can move a block between a node
	// and the writer table mid-snapshot.
	s := e.locks.acquire(nil, exclusive)
	defer s.release()

	handles, err := e.nodes.BlockHandles(ctx)
	if err != nil {
		return nil, err
	}

	set := make(map[metadata.BlockHandle]struct{}, len(handles))
	for _, h := range handles {
		set[h] = struct{}{}
	}
	e.refs.snapshot(set)
	return set, nil
}
