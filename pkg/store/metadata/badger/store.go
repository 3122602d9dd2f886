package badger

import (
	"context"
	"errors"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/google/uuid"
	"github.com/marmos91/dittons/pkg/store/metadata"
)

// BadgerNodeStore implements metadata.NodeStore on BadgerDB.
//
// Every Commit runs in a single read-write transaction, which gives batch
// atomicity and crash safety through Badger's WAL. A transaction is bounded
// by the memtable size, so large removals go through Reap, which streams
// deletes through a WriteBatch instead. Reads use read-only transactions and
// never block writers (MVCC).
//
// See keys.go for the key layout.
type BadgerNodeStore struct {
	db     *badger.DB
	rootID uuid.UUID
}

// BadgerNodeStoreConfig configures a BadgerNodeStore.
type BadgerNodeStoreConfig struct {
	// DBPath is the directory holding the database files.
	DBPath string `mapstructure:"db_path"`

	// SyncWrites fsyncs every commit before returning (default true).
	SyncWrites *bool `mapstructure:"sync_writes"`

	// BlockCacheSizeMB is Badger's block cache size (default 64).
	BlockCacheSizeMB int64 `mapstructure:"block_cache_size_mb"`

	// IndexCacheSizeMB is Badger's index cache size (default 32).
	IndexCacheSizeMB int64 `mapstructure:"index_cache_size_mb"`

	// InMemory runs Badger without touching disk. DBPath is ignored.
	InMemory bool `mapstructure:"in_memory"`

	// MemTableSizeMB overrides Badger's memtable size (default 64). It also
	// bounds the size of a single Commit to about 15% of the memtable.
	MemTableSizeMB int64 `mapstructure:"mem_table_size_mb"`
}

// NewBadgerNodeStore opens (or creates) a store at config.DBPath and makes
// sure a root directory exists.
func NewBadgerNodeStore(ctx context.Context, config BadgerNodeStoreConfig) (*BadgerNodeStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if config.DBPath == "" && !config.InMemory {
		return nil, fmt.Errorf("badger node store: db_path is required")
	}

	path := config.DBPath
	if config.InMemory {
		path = ""
	}

	blockCacheMB := config.BlockCacheSizeMB
	if blockCacheMB == 0 {
		blockCacheMB = 64
	}
	indexCacheMB := config.IndexCacheSizeMB
	if indexCacheMB == 0 {
		indexCacheMB = 32
	}
	syncWrites := true
	if config.SyncWrites != nil {
		syncWrites = *config.SyncWrites
	}

	opts := badger.DefaultOptions(path).
		WithInMemory(config.InMemory).
		WithSyncWrites(syncWrites).
		WithLoggingLevel(badger.WARNING).
		WithCompression(options.None).
		WithBlockCacheSize(blockCacheMB << 20).
		WithIndexCacheSize(indexCacheMB << 20)
	if config.MemTableSizeMB > 0 {
		memTable := config.MemTableSizeMB << 20
		// Badger refuses a value threshold above its max batch size.
		opts = opts.WithMemTableSize(memTable).
			WithValueThreshold(min(opts.ValueThreshold, memTable*15/100/2))
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB at %s: %w", config.DBPath, err)
	}

	store := &BadgerNodeStore{db: db}
	if err := store.initializeRoot(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize root: %w", err)
	}
	return store, nil
}

// initializeRoot loads the root pointer or creates the root on first open.
func (s *BadgerNodeStore) initializeRoot() error {
	return s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(keyRoot())
		if err == nil {
			return item.Value(func(val []byte) error {
				id, err := decodeID(val)
				if err != nil {
					return err
				}
				s.rootID = id
				return nil
			})
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		root := metadata.NewDirectory(uuid.Nil, "", "", time.Now())
		data, err := encodeNode(root)
		if err != nil {
			return err
		}
		if err := txn.Set(keyNode(root.ID), data); err != nil {
			return err
		}
		if err := txn.Set(keyRoot(), root.ID[:]); err != nil {
			return err
		}
		s.rootID = root.ID
		return nil
	})
}

func (s *BadgerNodeStore) Root(ctx context.Context) (*metadata.Node, error) {
	return s.Get(ctx, s.rootID)
}

func (s *BadgerNodeStore) Get(ctx context.Context, id uuid.UUID) (*metadata.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var node *metadata.Node
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		node, err = getNode(txn, id)
		return err
	})
	if err != nil {
		return nil, wrapErr(err)
	}
	return node, nil
}

func (s *BadgerNodeStore) Lookup(ctx context.Context, parent uuid.UUID, name string) (*metadata.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var node *metadata.Node
	err := s.db.View(func(txn *badger.Txn) error {
		id, ok, err := lookupChild(txn, parent, name)
		if err != nil {
			return err
		}
		if !ok {
			return metadata.ErrNotFound
		}
		node, err = getNode(txn, id)
		return err
	})
	if err != nil {
		return nil, wrapErr(err)
	}
	return node, nil
}

func (s *BadgerNodeStore) Children(ctx context.Context, parent uuid.UUID) ([]*metadata.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var result []*metadata.Node
	err := s.db.View(func(txn *badger.Txn) error {
		if _, err := getNode(txn, parent); err != nil {
			return err
		}

		ids, err := childIDs(ctx, txn, parent, 0)
		if err != nil {
			return err
		}
		result = make([]*metadata.Node, 0, len(ids))
		for _, id := range ids {
			n, err := getNode(txn, id)
			if err != nil {
				return fmt.Errorf("child %s: %w", id, err)
			}
			result = append(result, n)
		}
		return nil
	})
	if err != nil {
		return nil, wrapErr(err)
	}
	return result, nil
}

func (s *BadgerNodeStore) HasChildren(ctx context.Context, parent uuid.UUID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	var has bool
	err := s.db.View(func(txn *badger.Txn) error {
		if _, err := getNode(txn, parent); err != nil {
			return err
		}
		ids, err := childIDs(ctx, txn, parent, 1)
		has = len(ids) > 0
		return err
	})
	if err != nil {
		return false, wrapErr(err)
	}
	return has, nil
}

func (s *BadgerNodeStore) Commit(ctx context.Context, batch *metadata.Batch) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		return metadata.ApplyBatch(&badgerTx{txn: txn}, batch)
	})
	return wrapErr(err)
}

func (s *BadgerNodeStore) Reap(ctx context.Context, nodes []*metadata.Node) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(nodes) == 0 {
		return nil
	}

	// WriteBatch commits whenever the pending transaction would exceed
	// Badger's limits, so the removal is not bounded by the memtable.
	wb := s.db.NewWriteBatch()
	defer wb.Cancel()

	for _, n := range nodes {
		if err := ctx.Err(); err != nil {
			return err
		}
		if n.IsRoot() || n.ID == s.rootID {
			return metadata.ErrRootImmutable
		}
		if err := wb.Delete(keyNode(n.ID)); err != nil {
			return wrapErr(err)
		}
		if err := wb.Delete(keyChild(n.ParentID, n.Name)); err != nil {
			return wrapErr(err)
		}
	}
	return wrapErr(wb.Flush())
}

func (s *BadgerNodeStore) Orphans(ctx context.Context) ([]*metadata.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var orphans []*metadata.Node
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefixNode)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var n *metadata.Node
			err := it.Item().Value(func(val []byte) error {
				var err error
				n, err = decodeNode(val)
				return err
			})
			if err != nil {
				return err
			}
			if n.ParentID == uuid.Nil {
				continue
			}
			_, err = txn.Get(keyNode(n.ParentID))
			if errors.Is(err, badger.ErrKeyNotFound) {
				orphans = append(orphans, n)
				continue
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, wrapErr(err)
	}
	return orphans, nil
}

func (s *BadgerNodeStore) BlockHandles(ctx context.Context) ([]metadata.BlockHandle, error) {
	var handles []metadata.BlockHandle
	err := s.scanNodes(ctx, func(n *metadata.Node) {
		if n.Kind == metadata.KindFile && n.Block != "" {
			handles = append(handles, n.Block)
		}
	})
	if err != nil {
		return nil, err
	}
	return handles, nil
}

func (s *BadgerNodeStore) Statistics(ctx context.Context) (*metadata.Statistics, error) {
	stats := &metadata.Statistics{}
	err := s.scanNodes(ctx, func(n *metadata.Node) {
		if n.IsDir() {
			stats.Directories++
		} else {
			stats.Files++
			stats.Bytes += n.Size
		}
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}

func (s *BadgerNodeStore) Healthcheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.db.IsClosed() {
		return metadata.ErrClosed
	}
	return s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(keyRoot())
		if err != nil {
			return fmt.Errorf("root pointer unreadable: %w", err)
		}
		return nil
	})
}

func (s *BadgerNodeStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close BadgerDB: %w", err)
	}
	return nil
}

// scanNodes calls fn for every node record.
func (s *BadgerNodeStore) scanNodes(ctx context.Context, fn func(*metadata.Node)) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return wrapErr(s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefixNode)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			err := it.Item().Value(func(val []byte) error {
				n, err := decodeNode(val)
				if err != nil {
					return err
				}
				fn(n)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	}))
}

func getNode(txn *badger.Txn, id uuid.UUID) (*metadata.Node, error) {
	item, err := txn.Get(keyNode(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, metadata.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var node *metadata.Node
	err = item.Value(func(val []byte) error {
		node, err = decodeNode(val)
		return err
	})
	return node, err
}

func lookupChild(txn *badger.Txn, parent uuid.UUID, name string) (uuid.UUID, bool, error) {
	item, err := txn.Get(keyChild(parent, name))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, err
	}

	var id uuid.UUID
	err = item.Value(func(val []byte) error {
		id, err = decodeID(val)
		return err
	})
	return id, err == nil, err
}

// childIDs returns the IDs indexed under parent in name order, at most
// limit of them when limit > 0.
func childIDs(ctx context.Context, txn *badger.Txn, parent uuid.UUID, limit int) ([]uuid.UUID, error) {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = keyChildPrefix(parent)
	if limit > 0 {
		opts.PrefetchValues = false
	}
	it := txn.NewIterator(opts)
	defer it.Close()

	var ids []uuid.UUID
	for it.Rewind(); it.Valid(); it.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var id uuid.UUID
		err := it.Item().Value(func(val []byte) error {
			var err error
			id, err = decodeID(val)
			return err
		})
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
		if limit > 0 && len(ids) >= limit {
			break
		}
	}
	return ids, nil
}

// wrapErr maps Badger's closed-database error onto metadata.ErrClosed.
func wrapErr(err error) error {
	if errors.Is(err, badger.ErrDBClosed) {
		return metadata.ErrClosed
	}
	return err
}

// badgerTx adapts a read-write transaction to metadata.BatchTarget. Badger
// transactions see their own pending writes, so later operations of a batch
// validate against earlier ones.
type badgerTx struct {
	txn *badger.Txn
}

func (t *badgerTx) GetNode(id uuid.UUID) (*metadata.Node, error) {
	return getNode(t.txn, id)
}

func (t *badgerTx) LookupChild(parent uuid.UUID, name string) (uuid.UUID, bool, error) {
	return lookupChild(t.txn, parent, name)
}

func (t *badgerTx) PutNode(old, n *metadata.Node) error {
	if old != nil && !old.IsRoot() && (old.ParentID != n.ParentID || old.Name != n.Name) {
		if err := t.txn.Delete(keyChild(old.ParentID, old.Name)); err != nil {
			return err
		}
	}

	data, err := encodeNode(n)
	if err != nil {
		return err
	}
	if err := t.txn.Set(keyNode(n.ID), data); err != nil {
		return err
	}
	if n.IsRoot() {
		return nil
	}
	return t.txn.Set(keyChild(n.ParentID, n.Name), n.ID[:])
}

func (t *badgerTx) DeleteNode(n *metadata.Node) error {
	if err := t.txn.Delete(keyNode(n.ID)); err != nil {
		return err
	}
	return t.txn.Delete(keyChild(n.ParentID, n.Name))
}
