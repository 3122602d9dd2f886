package namespace

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/google/uuid"
	"github.com/marmos91/dittons/pkg/store/metadata"
	"go.opentelemetry.io/otel/trace"
)

// Create opens a write handle on p, creating missing parent directories.
//
// A new file is inserted immediately as an empty file. An existing file
// requires overwrite; its current content stays visible until the handle's
// Close commits the replacement. Fails with:
//   - ErrAlreadyExists if p is a file and overwrite is false, or if p is a
//     directory
//   - ErrNotADirectory if a parent segment is a file
//   - ErrLeaseHeld if another handle is writing p
//
// blockSize is recorded on the file and bounds the write buffer; 0 selects
// DefaultBlockSize.
func (e *Engine) Create(ctx context.Context, p string, overwrite bool, blockSize uint64) (w *Writer, err error) {
	ctx, done := e.begin(ctx, "CREATE", p)
	defer done(&err)

	segs, canon, err := e.parse(p)
	if err != nil {
		return nil, err
	}
	if len(segs) == 0 {
		return nil, existsAsDirectory(canon)
	}
	if blockSize == 0 {
		blockSize = DefaultBlockSize
	}

	// Reject known conflicts before allocating a block.
	if err := e.precheckCreate(ctx, segs, canon, overwrite); err != nil {
		return nil, err
	}

	e.allocMu.RLock()
	defer e.allocMu.RUnlock()

	bufSize := e.bufferSize(blockSize)
	h, err := e.blocks.Allocate(ctx, int64(bufSize))
	if err != nil {
		return nil, ioError(canon, fmt.Errorf("allocate block: %w", err))
	}

	w, err = e.createLocked(ctx, segs, canon, overwrite, blockSize, h)
	if err != nil {
		e.releaseBlock(ctx, h, false)
		return nil, err
	}
	w.bufSize = bufSize
	return w, nil
}

func (e *Engine) bufferSize(blockSize uint64) int {
	size := e.opts.writeBufferSize
	if blockSize < uint64(size) {
		size = int(blockSize)
	}
	return max(size, 1)
}

func (e *Engine) precheckCreate(ctx context.Context, segs []string, canon string, overwrite bool) error {
	s := e.locks.acquire(segs, shared)
	defer s.release()

	node, err := e.resolve(ctx, segs)
	switch {
	case errors.Is(err, errThroughFile):
		return notADirectory(canon)
	case err != nil:
		// Missing entries and store failures are settled under the exclusive scope.
		return nil
	case node.IsDir():
		return existsAsDirectory(canon)
	case !overwrite:
		return alreadyExists(canon)
	}
	return nil
}

func (e *Engine) createLocked(ctx context.Context, segs []string, canon string, overwrite bool, blockSize uint64, h metadata.BlockHandle) (*Writer, error) {
	s, err := e.lockCovering(ctx, parentSegs(segs))
	if err != nil {
		return nil, ioError(canon, err)
	}
	defer s.release()

	now := e.opts.now()
	owner := CallerFrom(ctx)
	name := segs[len(segs)-1]

	batch := metadata.NewBatch()
	parent, parentIsNew, err := e.ensureDirs(ctx, segs[:len(segs)-1], owner, now, batch)
	if err != nil {
		return nil, ioError(canon, err)
	}

	var node *metadata.Node
	if !parentIsNew {
		node, err = e.nodes.Lookup(ctx, parent.ID, name)
		if err != nil && !errors.Is(err, metadata.ErrNotFound) {
			return nil, ioError(canon, err)
		}
	}

	switch {
	case node == nil:
		if !parentIsNew {
			parent.ModTime = now
			batch.Put(parent)
		}
		node = metadata.NewFile(parent.ID, name, owner, blockSize, now)
		batch.Put(node)
	case node.IsDir():
		return nil, existsAsDirectory(canon)
	case !overwrite:
		return nil, alreadyExists(canon)
	default:
		if held, ok := e.leases.Load(node.ID); ok {
			if !held.expired(now) {
				return nil, leaseHeld(canon)
			}
			log.Warn("create %s: taking over expired write lease from %s", canon, held.holder)
		}
	}

	if batch.Len() > 0 {
		if err := e.nodes.Commit(ctx, batch); err != nil {
			return nil, ioError(canon, err)
		}
	}

	l := newLease(owner, now, e.opts.leaseTimeout)
	e.leases.Store(node.ID, l)
	e.refs.addWriter(h)
	e.opts.metrics.SetOpenWriters(e.leases.Size())

	return &Writer{
		e:         e,
		ctx:       context.WithoutCancel(ctx),
		created:   trace.LinkFromContext(ctx),
		path:      canon,
		segs:      segs,
		nodeID:    node.ID,
		block:     h,
		blockSize: blockSize,
		lease:     l,
	}, nil
}

// Writer is a write handle returned by Create.
//
// Bytes are buffered and appended to the handle's private block when the
// buffer fills or on Flush; once Flush returns they are durable in the
// block store. They become visible to Open only after Close.
//
// A Writer is not safe for concurrent use by multiple goroutines beyond the
// serialization its methods provide.
type Writer struct {
	e *Engine

	// ctx carries Create's values but not its deadline: the handle outlives
	// the call that opened it.
	ctx       context.Context
	created   trace.Link
	path      string
	segs      []string
	nodeID    uuid.UUID
	block     metadata.BlockHandle
	blockSize uint64
	lease     *lease

	mu      sync.Mutex
	buf     []byte
	bufSize int
	written uint64
	closed  bool
	err     error
}

// Path returns the canonical path being written.
func (w *Writer) Path() string {
	return w.path
}

// Write buffers p, flushing whenever the buffer reaches its capacity.
func (w *Writer) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return 0, fmt.Errorf("write %s: %w", w.path, os.ErrClosed)
	}
	if w.err != nil {
		return 0, w.err
	}

	n := 0
	for len(p) > 0 {
		room := w.bufSize - len(w.buf)
		chunk := min(room, len(p))
		w.buf = append(w.buf, p[:chunk]...)
		p = p[chunk:]
		n += chunk

		if len(w.buf) >= w.bufSize {
			if err := w.flushLocked(); err != nil {
				return n, err
			}
		}
	}
	return n, nil
}

// Flush appends buffered bytes to the block store.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("flush %s: %w", w.path, os.ErrClosed)
	}
	if w.err != nil {
		return w.err
	}
	return w.flushLocked()
}

func (w *Writer) flushLocked() error {
	if len(w.buf) == 0 {
		return nil
	}
	if err := w.e.blocks.Write(w.ctx, w.block, w.buf); err != nil {
		w.err = ioError(w.path, fmt.Errorf("write block: %w", err))
		return w.err
	}
	w.written += uint64(len(w.buf))
	w.e.opts.metrics.RecordBytesTransferred("write", int64(len(w.buf)))
	w.buf = w.buf[:0]
	w.lease.renew(w.e.opts.now(), w.e.opts.leaseTimeout)
	return nil
}

// Close flushes remaining bytes and commits them: the file's content is
// replaced by everything written through this handle, atomically.
//
// Close fails with ErrNotFound if the file was deleted meanwhile and with
// ErrLeaseExpired if another writer took over the file. In both cases the
// written bytes are discarded. Closing twice returns an error wrapping
// os.ErrClosed.
func (w *Writer) Close() (err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("close %s: %w", w.path, os.ErrClosed)
	}
	w.closed = true

	// Close is its own trace, linked to the Create that opened the handle.
	ctx, done := w.e.begin(w.ctx, "CLOSE", w.path, trace.WithNewRoot(), trace.WithLinks(w.created))
	defer done(&err)

	if w.err == nil {
		w.err = w.flushLocked()
	}
	if w.err != nil {
		w.e.abandon(ctx, w)
		return w.err
	}
	return w.e.commitWrite(ctx, w)
}

// Abort discards the handle. The file keeps its previous content. Abort
// after Close is a no-op.
func (w *Writer) Abort() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	w.buf = nil
	w.e.abandon(w.ctx, w)
	return nil
}

// commitWrite swaps the written block into the file node.
func (e *Engine) commitWrite(ctx context.Context, w *Writer) error {
	old, err := func() (metadata.BlockHandle, error) {
		s := e.locks.acquire(parentSegs(w.segs), exclusive)
		defer s.release()

		node, err := e.nodes.Get(ctx, w.nodeID)
		if errors.Is(err, metadata.ErrNotFound) {
			return "", notFound(w.path)
		}
		if err != nil {
			return "", ioError(w.path, err)
		}
		if held, ok := e.leases.Load(w.nodeID); !ok || held != w.lease {
			return "", leaseExpired(w.path)
		}

		old := node.Block
		node.Block = w.block
		node.Size = w.written
		node.BlockSize = w.blockSize
		node.ModTime = e.opts.now()
		if err := e.nodes.Commit(ctx, metadata.NewBatch().Put(node)); err != nil {
			return "", ioError(w.path, err)
		}

		e.leases.Delete(w.nodeID)
		e.refs.removeWriter(w.block)
		e.opts.metrics.SetOpenWriters(e.leases.Size())

		if old != "" && !e.refs.retire(old) {
			log.Debug("close %s: release of %s deferred until readers close", w.path, old)
			old = ""
		}
		return old, nil
	}()
	if err != nil {
		e.abandon(ctx, w)
		return err
	}

	if old != "" {
		e.releaseBlock(ctx, old, false)
	}
	log.Debug("close %s: committed %d bytes", w.path, w.written)
	return nil
}

// abandon drops w's lease, if still held, and releases its block.
func (e *Engine) abandon(ctx context.Context, w *Writer) {
	s := e.locks.acquire(parentSegs(w.segs), exclusive)
	if held, ok := e.leases.Load(w.nodeID); ok && held == w.lease {
		e.leases.Delete(w.nodeID)
	}
	e.refs.removeWriter(w.block)
	e.opts.metrics.SetOpenWriters(e.leases.Size())
	s.release()

	e.releaseBlock(ctx, w.block, false)
}
