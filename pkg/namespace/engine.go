// Package namespace implements the DittoNS namespace engine.
//
// The engine owns the path tree and decides the outcome of every namespace
// operation: mkdirs, create, open, copyFromLocal, listStatus and delete.
// Node metadata lives in a metadata.NodeStore; file bytes live in a
// block.Store and are referenced from file nodes by opaque handle.
//
// Consistency model:
//
//   - Every operation locks the smallest subtree it covers: the subtree root
//     exclusively for mutations (shared for lookups), its ancestors shared.
//     Operations on disjoint subtrees run in parallel. Every mutation is one
//     atomic NodeStore batch.
//   - Block I/O (allocation, appends, streaming reads, release) runs outside
//     any path lock.
//   - A file has at most one write handle (its lease). The handle writes into
//     a fresh block; Close swaps the node's block in one commit, so readers
//     observe either the previous content or the new content.
//   - Read handles pin their block. A block replaced or deleted while pinned
//     is released when its last reader closes.
package namespace

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/marmos91/dittons/internal/logger"
	"github.com/marmos91/dittons/pkg/store/block"
	"github.com/marmos91/dittons/pkg/store/metadata"
	"github.com/puzpuzpuz/xsync/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var log = logger.With("namespace")

const tracerName = "github.com/marmos91/dittons/pkg/namespace"

// errThroughFile marks a resolution that hit a file before the last segment.
var errThroughFile = errors.New("path traverses a file")

// Engine is the namespace engine. It is safe for concurrent use.
type Engine struct {
	nodes  metadata.NodeStore
	blocks block.Store
	opts   options
	tracer trace.Tracer
	rootID uuid.UUID

	locks *pathLocks

	// allocMu is read-held from block allocation until the new block is
	// registered with a writer; Quiesce takes it exclusively.
	allocMu sync.RWMutex

	leases  *xsync.Map[uuid.UUID, *lease]
	refs    blockRefs
	readers atomic.Int64
}

// New creates an engine over the given stores.
func New(ctx context.Context, nodes metadata.NodeStore, blocks block.Store, opts ...Option) (*Engine, error) {
	if nodes == nil {
		return nil, fmt.Errorf("namespace: node store is required")
	}
	if blocks == nil {
		return nil, fmt.Errorf("namespace: block store is required")
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	root, err := nodes.Root(ctx)
	if err != nil {
		return nil, fmt.Errorf("namespace: failed to load root: %w", err)
	}

	e := &Engine{
		nodes:  nodes,
		blocks: blocks,
		opts:   o,
		tracer: o.tracerProvider.Tracer(tracerName),
		rootID: root.ID,
		locks:  newPathLocks(),
		leases: xsync.NewMap[uuid.UUID, *lease](),
		refs:   newBlockRefs(),
	}
	if err := e.reapOrphans(ctx); err != nil {
		return nil, fmt.Errorf("namespace: failed to reap deleted subtrees: %w", err)
	}
	return e, nil
}

// begin opens a span for op and returns a finisher recording the outcome.
func (e *Engine) begin(ctx context.Context, op, path string, opts ...trace.SpanStartOption) (context.Context, func(*error)) {
	start := time.Now()
	opts = append(opts, trace.WithAttributes(attribute.String("dittons.path", path)))
	ctx, span := e.tracer.Start(ctx, "namespace."+op, opts...)

	return ctx, func(errp *error) {
		err := *errp
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		e.opts.metrics.RecordOperation(op, time.Since(start), err)
	}
}

func (e *Engine) parse(p string) ([]string, string, error) {
	segs, err := splitPath(p, e.opts.limits)
	if err != nil {
		return nil, "", err
	}
	return segs, joinPath(segs), nil
}

// resolve walks segs from the root. It fails with metadata.ErrNotFound when
// a segment is missing and errThroughFile when an intermediate is a file.
// Caller holds a scope covering segs.
func (e *Engine) resolve(ctx context.Context, segs []string) (*metadata.Node, error) {
	cur, err := e.nodes.Get(ctx, e.rootID)
	if err != nil {
		return nil, err
	}
	for _, name := range segs {
		if !cur.IsDir() {
			return nil, errThroughFile
		}
		cur, err = e.nodes.Lookup(ctx, cur.ID, name)
		if err != nil {
			return nil, err
		}
	}
	return cur, nil
}

func isAbsent(err error) bool {
	return errors.Is(err, metadata.ErrNotFound) || errors.Is(err, errThroughFile)
}

// ensureDirs walks segs from the root, adding every missing directory to
// batch. It returns the terminal directory and whether it is new. Existing
// directories gaining a child get their mtime bumped in the same batch.
// Caller holds the scope returned by lockCovering(segs).
func (e *Engine) ensureDirs(ctx context.Context, segs []string, owner string, now time.Time, batch *metadata.Batch) (*metadata.Node, bool, error) {
	cur, err := e.nodes.Get(ctx, e.rootID)
	if err != nil {
		return nil, false, err
	}

	created := false
	for i, name := range segs {
		if !created {
			child, err := e.nodes.Lookup(ctx, cur.ID, name)
			if err == nil {
				if !child.IsDir() {
					return nil, false, notADirectory(joinPath(segs[:i+1]))
				}
				cur = child
				continue
			}
			if !errors.Is(err, metadata.ErrNotFound) {
				return nil, false, err
			}
			cur.ModTime = now
			batch.Put(cur)
		}

		dir := metadata.NewDirectory(cur.ID, name, owner, now)
		batch.Put(dir)
		cur = dir
		created = true
	}
	return cur, created, nil
}

// lockCovering exclusively locks the deepest existing node along segs. That
// scope covers every node a walk of segs can add or modify, and its shared
// ancestors keep the node itself from disappearing while held.
func (e *Engine) lockCovering(ctx context.Context, segs []string) (*scope, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		depth, err := e.existingDepth(ctx, segs)
		if err != nil {
			return nil, err
		}

		s := e.locks.acquire(segs[:depth], exclusive)
		_, err = e.resolve(ctx, segs[:depth])
		if err == nil {
			return s, nil
		}
		s.release()
		if !isAbsent(err) {
			return nil, err
		}
		// Removed between the lookup and the lock; look again.
	}
}

// existingDepth counts the leading segments of segs that resolve to a node.
// A file ends the walk.
func (e *Engine) existingDepth(ctx context.Context, segs []string) (int, error) {
	s := e.locks.acquire(segs, shared)
	defer s.release()

	cur, err := e.nodes.Get(ctx, e.rootID)
	if err != nil {
		return 0, err
	}
	for i, name := range segs {
		if !cur.IsDir() {
			return i, nil
		}
		cur, err = e.nodes.Lookup(ctx, cur.ID, name)
		if errors.Is(err, metadata.ErrNotFound) {
			return i, nil
		}
		if err != nil {
			return 0, err
		}
	}
	return len(segs), nil
}

// Mkdirs creates every missing directory along p.
//
// Returns true whether or not the directory already existed. Fails with
// ErrNotADirectory when any segment of p is a file. All new directories are
// committed in one batch.
func (e *Engine) Mkdirs(ctx context.Context, p string) (ok bool, err error) {
	ctx, done := e.begin(ctx, "MKDIRS", p)
	defer done(&err)

	segs, _, err := e.parse(p)
	if err != nil {
		return false, err
	}

	s, err := e.lockCovering(ctx, segs)
	if err != nil {
		return false, ioError(p, err)
	}
	defer s.release()

	batch := metadata.NewBatch()
	if _, _, err := e.ensureDirs(ctx, segs, CallerFrom(ctx), e.opts.now(), batch); err != nil {
		return false, ioError(p, err)
	}
	if batch.Len() > 0 {
		if err := e.nodes.Commit(ctx, batch); err != nil {
			return false, ioError(p, err)
		}
		log.Debug("mkdirs %s: %d nodes committed", p, batch.Len())
	}
	return true, nil
}

// ListStatus describes p: one entry per immediate child for a directory,
// sorted by name, or a single entry for a file.
func (e *Engine) ListStatus(ctx context.Context, p string) (list []FileStatus, err error) {
	ctx, done := e.begin(ctx, "LISTSTATUS", p)
	defer done(&err)

	segs, canon, err := e.parse(p)
	if err != nil {
		return nil, err
	}

	s := e.locks.acquire(segs, shared)
	defer s.release()

	node, err := e.resolve(ctx, segs)
	if isAbsent(err) {
		return nil, notFound(canon)
	}
	if err != nil {
		return nil, ioError(canon, err)
	}

	if !node.IsDir() {
		return []FileStatus{newFileStatus(canon, node)}, nil
	}

	children, err := e.nodes.Children(ctx, node.ID)
	if err != nil {
		return nil, ioError(canon, err)
	}
	list = make([]FileStatus, 0, len(children))
	for _, child := range children {
		list = append(list, newFileStatus(childPath(canon, child.Name), child))
	}
	return list, nil
}

// GetFileStatus describes the single entry at p.
func (e *Engine) GetFileStatus(ctx context.Context, p string) (st *FileStatus, err error) {
	ctx, done := e.begin(ctx, "GETFILESTATUS", p)
	defer done(&err)

	segs, canon, err := e.parse(p)
	if err != nil {
		return nil, err
	}

	s := e.locks.acquire(segs, shared)
	defer s.release()

	node, err := e.resolve(ctx, segs)
	if isAbsent(err) {
		return nil, notFound(canon)
	}
	if err != nil {
		return nil, ioError(canon, err)
	}
	status := newFileStatus(canon, node)
	return &status, nil
}

// Delete removes p.
//
// Returns false without error when p does not exist. A directory with
// children requires recursive, otherwise ErrDirectoryNotEmpty. With
// recursive the whole subtree is removed and every file block is released:
// one commit unlinks the subtree root, then the unreachable descendants are
// reaped in as many store transactions as they need. The root is never
// removed.
func (e *Engine) Delete(ctx context.Context, p string, recursive bool) (deleted bool, err error) {
	ctx, done := e.begin(ctx, "DELETE", p)
	defer done(&err)

	segs, canon, err := e.parse(p)
	if err != nil {
		return false, err
	}

	var removed []*metadata.Node
	var release []metadata.BlockHandle
	deleted, err = func() (bool, error) {
		s := e.locks.acquire(parentSegs(segs), exclusive)
		defer s.release()

		node, err := e.resolve(ctx, segs)
		if isAbsent(err) {
			return false, nil
		}
		if err != nil {
			return false, ioError(canon, err)
		}

		if node.IsDir() {
			hasChildren, err := e.nodes.HasChildren(ctx, node.ID)
			if err != nil {
				return false, ioError(canon, err)
			}
			if hasChildren && !recursive {
				return false, directoryNotEmpty(canon)
			}
		}
		if node.IsRoot() {
			log.Warn("refusing to delete the root directory")
			return false, nil
		}

		removed, err = e.collectSubtree(ctx, node)
		if err != nil {
			return false, ioError(canon, err)
		}

		parent, err := e.nodes.Get(ctx, node.ParentID)
		if err != nil {
			return false, ioError(canon, err)
		}
		parent.ModTime = e.opts.now()

		// Unlinking the subtree root makes every descendant unreachable in
		// one small commit, whatever the size of the subtree.
		if err := e.nodes.Commit(ctx, metadata.NewBatch().Delete(node.ID).Put(parent)); err != nil {
			return false, ioError(canon, err)
		}

		for _, n := range removed {
			if n.IsDir() {
				continue
			}
			if _, held := e.leases.LoadAndDelete(n.ID); held {
				log.Debug("delete %s: dropped write lease on %s", canon, n.ID)
			}
			if n.Block != "" && e.refs.retire(n.Block) {
				release = append(release, n.Block)
			}
		}
		e.opts.metrics.SetOpenWriters(e.leases.Size())
		return true, nil
	}()
	if err != nil || !deleted {
		return deleted, err
	}

	// The descendants are unreachable now; the delete has happened even if
	// reaping them fails, and the next New finishes the job.
	descendants := removed[:len(removed)-1]
	if err := e.nodes.Reap(context.WithoutCancel(ctx), descendants); err != nil {
		log.Warn("delete %s: failed to reap %d nodes: %v", canon, len(descendants), err)
		return true, nil
	}
	log.Debug("delete %s: %d nodes removed", canon, len(removed))

	for _, h := range release {
		e.releaseBlock(ctx, h, false)
	}
	return true, nil
}

// collectSubtree returns root and all its descendants, children before
// parents, so root comes last.
func (e *Engine) collectSubtree(ctx context.Context, root *metadata.Node) ([]*metadata.Node, error) {
	var removed []*metadata.Node
	var visit func(n *metadata.Node) error
	visit = func(n *metadata.Node) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if n.IsDir() {
			children, err := e.nodes.Children(ctx, n.ID)
			if err != nil {
				return err
			}
			for _, child := range children {
				if err := visit(child); err != nil {
					return err
				}
			}
		}
		removed = append(removed, n)
		return nil
	}
	if err := visit(root); err != nil {
		return nil, err
	}
	return removed, nil
}

// reapOrphans removes subtrees a previous process unlinked but did not
// finish reaping, and releases the blocks of their files.
func (e *Engine) reapOrphans(ctx context.Context) error {
	orphans, err := e.nodes.Orphans(ctx)
	if err != nil {
		return err
	}
	if len(orphans) == 0 {
		return nil
	}

	var stranded []*metadata.Node
	for _, o := range orphans {
		sub, err := e.collectSubtree(ctx, o)
		if err != nil {
			return err
		}
		stranded = append(stranded, sub...)
	}
	if err := e.nodes.Reap(ctx, stranded); err != nil {
		return err
	}

	for _, n := range stranded {
		if n.IsDir() || n.Block == "" {
			continue
		}
		e.releaseBlock(ctx, n.Block, false)
	}
	log.Info("reaped %d unreachable nodes under %d deleted directories", len(stranded), len(orphans))
	return nil
}

// Statistics reports node counts and committed bytes.
func (e *Engine) Statistics(ctx context.Context) (*metadata.Statistics, error) {
	s := e.locks.acquire(nil, shared)
	defer s.release()
	return e.nodes.Statistics(ctx)
}

// Healthcheck verifies both stores.
func (e *Engine) Healthcheck(ctx context.Context) error {
	if err := e.nodes.Healthcheck(ctx); err != nil {
		return fmt.Errorf("node store: %w", err)
	}
	if err := e.blocks.Healthcheck(ctx); err != nil {
		return fmt.Errorf("block store: %w", err)
	}
	return nil
}

// OpenWriters returns the number of write handles holding a lease.
func (e *Engine) OpenWriters() int {
	return e.leases.Size()
}

// OpenReaders returns the number of open read handles.
func (e *Engine) OpenReaders() int {
	return int(e.readers.Load())
}
