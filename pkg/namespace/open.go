package namespace

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/google/uuid"
	"github.com/marmos91/dittons/pkg/store/metadata"
)

// Open returns a reader over the committed content of the file at p.
//
// Fails with ErrNotFound ("File does not exist") when p is missing or is a
// directory. The reader streams lazily from the block store; any number of
// readers may be open at once. Bytes committed after Open are not visible
// to the returned reader.
func (e *Engine) Open(ctx context.Context, p string) (r *Reader, err error) {
	ctx, done := e.begin(ctx, "OPEN", p)
	defer done(&err)

	segs, canon, err := e.parse(p)
	if err != nil {
		return nil, err
	}

	node, err := e.pinFile(ctx, segs, canon)
	if err != nil {
		return nil, err
	}

	var rc io.ReadCloser
	if node.Block == "" {
		rc = io.NopCloser(bytes.NewReader(nil))
	} else {
		rc, err = e.blocks.Read(ctx, node.Block)
		if err != nil {
			e.unpin(ctx, node.Block)
			return nil, ioError(canon, err)
		}
	}

	e.touchAccess(ctx, segs, node.ID)
	e.opts.metrics.SetOpenReaders(int(e.readers.Add(1)))

	return &Reader{
		e:     e,
		ctx:   ctx,
		path:  canon,
		block: node.Block,
		size:  node.Size,
		rc:    rc,
	}, nil
}

// pinFile resolves a file and pins its block under a shared scope.
func (e *Engine) pinFile(ctx context.Context, segs []string, canon string) (*metadata.Node, error) {
	s := e.locks.acquire(segs, shared)
	defer s.release()

	node, err := e.resolve(ctx, segs)
	if isAbsent(err) {
		return nil, notFound(canon)
	}
	if err != nil {
		return nil, ioError(canon, err)
	}
	if node.IsDir() {
		return nil, notFound(canon)
	}
	if node.Block != "" {
		e.refs.pin(node.Block)
	}
	return node, nil
}

func (e *Engine) unpin(ctx context.Context, h metadata.BlockHandle) {
	if h == "" {
		return
	}
	if e.refs.unpin(h) {
		e.releaseBlock(ctx, h, true)
	}
}

// touchAccess records an access time. Failures are logged only.
func (e *Engine) touchAccess(ctx context.Context, segs []string, id uuid.UUID) {
	s := e.locks.acquire(segs, exclusive)
	defer s.release()

	node, err := e.nodes.Get(ctx, id)
	if err != nil {
		return
	}
	node.AccessTime = e.opts.now()
	if err := e.nodes.Commit(ctx, metadata.NewBatch().Put(node)); err != nil {
		log.Debug("failed to update access time of %s: %v", id, err)
	}
}

// Reader is a read handle returned by Open. It is finite and not
// restartable.
type Reader struct {
	e     *Engine
	ctx   context.Context
	path  string
	block metadata.BlockHandle
	size  uint64
	rc    io.ReadCloser

	read      int64
	closeOnce sync.Once
	closeErr  error
}

// Path returns the canonical path being read.
func (r *Reader) Path() string {
	return r.path
}

// Size returns the committed length of the content being read.
func (r *Reader) Size() uint64 {
	return r.size
}

func (r *Reader) Read(p []byte) (int, error) {
	n, err := r.rc.Read(p)
	r.read += int64(n)
	return n, err
}

// Close releases the reader's pin on its block.
func (r *Reader) Close() error {
	r.closeOnce.Do(func() {
		r.closeErr = r.rc.Close()
		r.e.unpin(r.ctx, r.block)
		r.e.opts.metrics.RecordBytesTransferred("read", r.read)
		r.e.opts.metrics.SetOpenReaders(int(r.e.readers.Add(-1)))
	})
	return r.closeErr
}
