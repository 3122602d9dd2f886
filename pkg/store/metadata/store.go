package metadata

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ============================================================================
// NodeStore Interface
// ============================================================================

// NodeStore persists the namespace tree.
//
// The store is deliberately dumb: it knows about nodes, the (parent, name)
// child index and atomic batches, but nothing about paths, leases or
// blocks. Path resolution and every namespace rule (idempotent mkdirs,
// exclusive create, non-empty delete protection) live in the namespace
// engine, which serializes mutations before they reach the store.
//
// Separation of Concerns:
//
// File bytes are never stored here. A file node carries a BlockHandle that
// the engine resolves through the block layer. Releasing blocks of removed
// files is the engine's job; the store only reports which handles are still
// referenced (see BlockHandles) so orphaned blocks can be collected.
//
// Atomicity:
//
// All reachable mutations go through Commit. A batch is applied entirely or
// not at all, and readers never observe a partially applied batch. Reap is
// the one exception: it removes nodes no path can reach anymore, in as many
// steps as the backend needs.
//
// Thread Safety:
// Implementations must be safe for concurrent use by multiple goroutines.
type NodeStore interface {
	// Root returns the root directory.
	//
	// The root is created when the store is first opened and can never be
	// removed. It has ParentID uuid.Nil and an empty name.
	Root(ctx context.Context) (*Node, error)

	// Get returns the node with the given ID.
	//
	// Returns:
	//   - *Node: A copy of the stored node; callers may mutate it freely
	//   - error: ErrNotFound if no such node exists, or context errors
	Get(ctx context.Context, id uuid.UUID) (*Node, error)

	// Lookup resolves a single name inside a directory.
	//
	// Parameters:
	//   - parent: ID of the directory to search
	//   - name: Child name (a single path segment)
	//
	// Returns:
	//   - *Node: The child node
	//   - error: ErrNotFound if the parent has no child with that name
	Lookup(ctx context.Context, parent uuid.UUID, name string) (*Node, error)

	// Children lists the immediate children of a directory ordered by name.
	//
	// A file has no children and yields an empty slice.
	//
	// Returns:
	//   - []*Node: Children sorted by name (byte order)
	//   - error: ErrNotFound if parent does not exist
	Children(ctx context.Context, parent uuid.UUID) ([]*Node, error)

	// HasChildren reports whether a directory has at least one child
	// without listing them.
	HasChildren(ctx context.Context, parent uuid.UUID) (bool, error)

	// Commit atomically applies a batch of puts and deletes.
	//
	// Operations are validated in order against the state produced by the
	// previous operations of the same batch:
	//   - Put requires the parent to exist and be a directory
	//     (ErrParentNotDirectory) and the name to be free among its
	//     siblings or already owned by the same node (ErrNameConflict).
	//   - Put of an existing ID replaces the node, moving its child index
	//     entry when the name or parent changed.
	//   - Delete of a missing ID is a no-op. Deleting the root fails with
	//     ErrRootImmutable. Deleting a directory does not cascade: the
	//     caller either includes every descendant in the batch or leaves
	//     them unreachable and removes them later with Reap.
	//
	// If any operation fails, nothing is applied.
	Commit(ctx context.Context, batch *Batch) error

	// Reap removes nodes that are no longer reachable from the root, such
	// as the descendants of a directory whose own node was deleted.
	//
	// Unlike Commit, Reap is not atomic: a backend may split the removal
	// into several transactions, and an interrupted Reap leaves a subset
	// of the nodes behind. Nodes already gone are skipped, so repeating a
	// Reap is safe. Callers must not pass reachable nodes.
	Reap(ctx context.Context, nodes []*Node) error

	// Orphans returns the nodes whose parent no longer exists: the tops of
	// unreachable subtrees left behind by an interrupted Reap.
	Orphans(ctx context.Context) ([]*Node, error)

	// BlockHandles returns every block handle referenced by a file node.
	//
	// Used by garbage collection to find blocks no file points to.
	BlockHandles(ctx context.Context) ([]BlockHandle, error)

	// Statistics counts directories, files and committed bytes.
	Statistics(ctx context.Context) (*Statistics, error)

	// Healthcheck verifies the store is operational.
	Healthcheck(ctx context.Context) error

	// Close releases resources held by the store.
	Close() error
}

// ============================================================================
// Batches
// ============================================================================

type opKind uint8

const (
	opPut opKind = iota + 1
	opDelete
)

type batchOp struct {
	kind opKind
	node *Node
	id   uuid.UUID
}

// Batch collects node mutations to be applied atomically by Commit.
//
// A Batch is not safe for concurrent use.
type Batch struct {
	ops []batchOp
}

// NewBatch returns an empty batch.
func NewBatch() *Batch {
	return &Batch{}
}

// Put schedules an insert or replacement of n. The batch keeps its own copy.
func (b *Batch) Put(n *Node) *Batch {
	b.ops = append(b.ops, batchOp{kind: opPut, node: n.Clone(), id: n.ID})
	return b
}

// Delete schedules the removal of the node with the given ID.
func (b *Batch) Delete(id uuid.UUID) *Batch {
	b.ops = append(b.ops, batchOp{kind: opDelete, id: id})
	return b
}

// Len returns the number of scheduled operations.
func (b *Batch) Len() int {
	return len(b.ops)
}

// BatchTarget is the primitive surface a backend exposes so ApplyBatch can
// validate and apply a batch inside the backend's own transaction.
type BatchTarget interface {
	// GetNode returns the node or ErrNotFound.
	GetNode(id uuid.UUID) (*Node, error)

	// LookupChild returns the ID indexed under (parent, name).
	LookupChild(parent uuid.UUID, name string) (uuid.UUID, bool, error)

	// PutNode stores n, replacing old (nil for inserts) and maintaining the
	// child index.
	PutNode(old, n *Node) error

	// DeleteNode removes n and its child index entry.
	DeleteNode(n *Node) error
}

// ApplyBatch validates and applies b against t, stopping at the first error.
//
// Backends are responsible for discarding partial effects when an error
// is returned (for example by rolling back their transaction).
func ApplyBatch(t BatchTarget, b *Batch) error {
	for i, op := range b.ops {
		var err error
		switch op.kind {
		case opPut:
			err = applyPut(t, op.node)
		case opDelete:
			err = applyDelete(t, op.id)
		}
		if err != nil {
			return fmt.Errorf("batch op %d: %w", i, err)
		}
	}
	return nil
}

func applyPut(t BatchTarget, n *Node) error {
	old, err := t.GetNode(n.ID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}

	if n.ParentID == uuid.Nil {
		if old == nil || !old.IsRoot() {
			return fmt.Errorf("%w: node %s has no parent", ErrParentNotDirectory, n.ID)
		}
		return t.PutNode(old, n)
	}
	if old != nil && old.IsRoot() {
		return ErrRootImmutable
	}

	parent, err := t.GetNode(n.ParentID)
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%w: parent %s missing", ErrParentNotDirectory, n.ParentID)
	}
	if err != nil {
		return err
	}
	if !parent.IsDir() {
		return fmt.Errorf("%w: %q", ErrParentNotDirectory, parent.Name)
	}

	existing, ok, err := t.LookupChild(n.ParentID, n.Name)
	if err != nil {
		return err
	}
	if ok && existing != n.ID {
		return fmt.Errorf("%w: %q", ErrNameConflict, n.Name)
	}

	return t.PutNode(old, n)
}

func applyDelete(t BatchTarget, id uuid.UUID) error {
	old, err := t.GetNode(id)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if old.IsRoot() {
		return ErrRootImmutable
	}
	return t.DeleteNode(old)
}
