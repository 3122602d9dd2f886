package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/marmos91/dittons/pkg/store/metadata"
)

// MemoryNodeStore implements metadata.NodeStore with in-memory maps.
//
// Suitable for tests, development and ephemeral namespaces. Nothing
// survives a restart.
//
// Storage Model:
//   - nodes: node ID to node
//   - children: directory ID to (name to child ID)
//
// Every reachable node except the root has an entry in its parent's children
// map, and every children entry points at a node in nodes. Nodes under a
// deleted directory stay in nodes until Reap removes them.
//
// Thread Safety:
// A single read-write mutex guards both maps. Commit holds the write lock
// for the whole batch and rolls back on failure, so readers never see a
// partially applied batch.
type MemoryNodeStore struct {
	mu       sync.RWMutex
	nodes    map[uuid.UUID]*metadata.Node
	children map[uuid.UUID]map[string]uuid.UUID
	rootID   uuid.UUID
	closed   bool
}

// NewMemoryNodeStore creates an empty store holding only the root directory.
func NewMemoryNodeStore() *MemoryNodeStore {
	root := metadata.NewDirectory(uuid.Nil, "", "", time.Now())
	return &MemoryNodeStore{
		nodes:    map[uuid.UUID]*metadata.Node{root.ID: root},
		children: map[uuid.UUID]map[string]uuid.UUID{root.ID: {}},
		rootID:   root.ID,
	}
}

func (s *MemoryNodeStore) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.closed {
		return metadata.ErrClosed
	}
	return nil
}

func (s *MemoryNodeStore) Root(ctx context.Context) (*metadata.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.check(ctx); err != nil {
		return nil, err
	}
	return s.nodes[s.rootID].Clone(), nil
}

func (s *MemoryNodeStore) Get(ctx context.Context, id uuid.UUID) (*metadata.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.check(ctx); err != nil {
		return nil, err
	}
	n, ok := s.nodes[id]
	if !ok {
		return nil, metadata.ErrNotFound
	}
	return n.Clone(), nil
}

func (s *MemoryNodeStore) Lookup(ctx context.Context, parent uuid.UUID, name string) (*metadata.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.check(ctx); err != nil {
		return nil, err
	}
	id, ok := s.children[parent][name]
	if !ok {
		return nil, metadata.ErrNotFound
	}
	return s.nodes[id].Clone(), nil
}

func (s *MemoryNodeStore) Children(ctx context.Context, parent uuid.UUID) ([]*metadata.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.check(ctx); err != nil {
		return nil, err
	}
	if _, ok := s.nodes[parent]; !ok {
		return nil, metadata.ErrNotFound
	}

	entries := s.children[parent]
	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)

	result := make([]*metadata.Node, 0, len(names))
	for _, name := range names {
		result = append(result, s.nodes[entries[name]].Clone())
	}
	return result, nil
}

func (s *MemoryNodeStore) HasChildren(ctx context.Context, parent uuid.UUID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.check(ctx); err != nil {
		return false, err
	}
	if _, ok := s.nodes[parent]; !ok {
		return false, metadata.ErrNotFound
	}
	return len(s.children[parent]) > 0, nil
}

func (s *MemoryNodeStore) Commit(ctx context.Context, batch *metadata.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.check(ctx); err != nil {
		return err
	}

	tx := &memoryTx{store: s}
	if err := metadata.ApplyBatch(tx, batch); err != nil {
		tx.rollback()
		return err
	}
	return nil
}

func (s *MemoryNodeStore) Reap(ctx context.Context, nodes []*metadata.Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.check(ctx); err != nil {
		return err
	}
	for _, n := range nodes {
		if n.ID == s.rootID {
			return metadata.ErrRootImmutable
		}
	}
	for _, n := range nodes {
		delete(s.nodes, n.ID)
		delete(s.children, n.ID)
		if entries, ok := s.children[n.ParentID]; ok && entries[n.Name] == n.ID {
			delete(entries, n.Name)
		}
	}
	return nil
}

func (s *MemoryNodeStore) Orphans(ctx context.Context) ([]*metadata.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.check(ctx); err != nil {
		return nil, err
	}
	var orphans []*metadata.Node
	for _, n := range s.nodes {
		if n.ParentID == uuid.Nil {
			continue
		}
		if _, ok := s.nodes[n.ParentID]; !ok {
			orphans = append(orphans, n.Clone())
		}
	}
	return orphans, nil
}

func (s *MemoryNodeStore) BlockHandles(ctx context.Context) ([]metadata.BlockHandle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.check(ctx); err != nil {
		return nil, err
	}
	var handles []metadata.BlockHandle
	for _, n := range s.nodes {
		if n.Kind == metadata.KindFile && n.Block != "" {
			handles = append(handles, n.Block)
		}
	}
	return handles, nil
}

func (s *MemoryNodeStore) Statistics(ctx context.Context) (*metadata.Statistics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.check(ctx); err != nil {
		return nil, err
	}
	stats := &metadata.Statistics{}
	for _, n := range s.nodes {
		if n.IsDir() {
			stats.Directories++
		} else {
			stats.Files++
			stats.Bytes += n.Size
		}
	}
	return stats, nil
}

func (s *MemoryNodeStore) Healthcheck(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.check(ctx)
}

func (s *MemoryNodeStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	return nil
}

// memoryTx applies batch operations directly to the store maps and keeps an
// undo log. Callers hold s.mu for writing.
type memoryTx struct {
	store *MemoryNodeStore
	undo  []func()
}

func (t *memoryTx) GetNode(id uuid.UUID) (*metadata.Node, error) {
	n, ok := t.store.nodes[id]
	if !ok {
		return nil, metadata.ErrNotFound
	}
	return n, nil
}

func (t *memoryTx) LookupChild(parent uuid.UUID, name string) (uuid.UUID, bool, error) {
	id, ok := t.store.children[parent][name]
	return id, ok, nil
}

func (t *memoryTx) PutNode(old, n *metadata.Node) error {
	s := t.store
	n = n.Clone()
	if old != nil {
		t.unlink(old)
	}

	s.nodes[n.ID] = n
	t.undo = append(t.undo, func() {
		if old != nil {
			s.nodes[old.ID] = old
		} else {
			delete(s.nodes, n.ID)
		}
	})

	if !n.IsRoot() {
		t.link(n)
	}
	if n.IsDir() {
		if _, ok := s.children[n.ID]; !ok {
			s.children[n.ID] = map[string]uuid.UUID{}
			t.undo = append(t.undo, func() { delete(s.children, n.ID) })
		}
	}
	return nil
}

func (t *memoryTx) DeleteNode(n *metadata.Node) error {
	s := t.store
	t.unlink(n)

	delete(s.nodes, n.ID)
	t.undo = append(t.undo, func() { s.nodes[n.ID] = n })

	if entries, ok := s.children[n.ID]; ok {
		delete(s.children, n.ID)
		t.undo = append(t.undo, func() { s.children[n.ID] = entries })
	}
	return nil
}

func (t *memoryTx) link(n *metadata.Node) {
	s := t.store
	entries := s.children[n.ParentID]
	entries[n.Name] = n.ID
	t.undo = append(t.undo, func() { delete(entries, n.Name) })
}

func (t *memoryTx) unlink(n *metadata.Node) {
	if n.IsRoot() {
		return
	}
	entries, ok := t.store.children[n.ParentID]
	if !ok {
		return
	}
	if id, ok := entries[n.Name]; ok && id == n.ID {
		delete(entries, n.Name)
		t.undo = append(t.undo, func() { entries[n.Name] = n.ID })
	}
}

func (t *memoryTx) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}
