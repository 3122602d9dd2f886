// Package fs stores blocks as files on the local filesystem.
package fs

import (
	"context"
	"errors"
	"fmt"
	"io"
	iofs "io/fs"
	"os"
	"path/filepath"

	"github.com/marmos91/dittons/pkg/store/block"
	"github.com/marmos91/dittons/pkg/store/metadata"
)

// FSBlockStore keeps one file per block under a base directory.
//
// Layout: <base>/<first two chars of handle>/<handle>. The two-character
// fan-out keeps directories small with many blocks.
//
// Every Write opens the file in append mode, writes and fsyncs before
// returning, so appended bytes are durable once Write succeeds.
//
// Thread Safety:
// Distinct blocks are independent files. A single block has a single
// writer by contract.
type FSBlockStore struct {
	basePath string
	fileMode os.FileMode
	noSync   bool
}

// FSBlockStoreConfig configures an FSBlockStore.
type FSBlockStoreConfig struct {
	// Path is the base directory, created if missing.
	Path string `mapstructure:"path"`

	// FileMode for new block files (default 0600).
	FileMode uint32 `mapstructure:"file_mode"`

	// NoSync skips fsync after writes. Only for tests and scratch data.
	NoSync bool `mapstructure:"no_sync"`
}

// NewFSBlockStore creates the store, creating the base directory if needed.
func NewFSBlockStore(ctx context.Context, config FSBlockStoreConfig) (*FSBlockStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if config.Path == "" {
		return nil, fmt.Errorf("filesystem block store: path is required")
	}

	if err := os.MkdirAll(config.Path, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	mode := os.FileMode(config.FileMode)
	if mode == 0 {
		mode = 0600
	}

	return &FSBlockStore{
		basePath: config.Path,
		fileMode: mode,
		noSync:   config.NoSync,
	}, nil
}

// blockPath maps a handle to its file. Handles are validated first so they
// can never escape the base directory.
func (s *FSBlockStore) blockPath(h metadata.BlockHandle) (string, error) {
	if err := block.ValidateHandle(h); err != nil {
		return "", err
	}
	name := string(h)
	return filepath.Join(s.basePath, name[:2], name), nil
}

func (s *FSBlockStore) Allocate(ctx context.Context, sizeHint int64) (metadata.BlockHandle, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	h := block.NewHandle()
	path, _ := s.blockPath(h)

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("failed to create block directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, s.fileMode)
	if err != nil {
		return "", fmt.Errorf("failed to create block %s: %w", h, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to create block %s: %w", h, err)
	}
	return h, nil
}

func (s *FSBlockStore) Write(ctx context.Context, h metadata.BlockHandle, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := s.blockPath(h)
	if err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0)
	if errors.Is(err, iofs.ErrNotExist) {
		return fmt.Errorf("block %s: %w", h, block.ErrBlockNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to open block %s: %w", h, err)
	}

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write block %s: %w", h, err)
	}
	if !s.noSync {
		if err := f.Sync(); err != nil {
			_ = f.Close()
			return fmt.Errorf("failed to sync block %s: %w", h, err)
		}
	}
	return f.Close()
}

func (s *FSBlockStore) Read(ctx context.Context, h metadata.BlockHandle) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := s.blockPath(h)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if errors.Is(err, iofs.ErrNotExist) {
		return nil, fmt.Errorf("block %s: %w", h, block.ErrBlockNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open block %s: %w", h, err)
	}
	return block.NewContextReader(ctx, f), nil
}

func (s *FSBlockStore) Size(ctx context.Context, h metadata.BlockHandle) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	path, err := s.blockPath(h)
	if err != nil {
		return 0, err
	}

	info, err := os.Stat(path)
	if errors.Is(err, iofs.ErrNotExist) {
		return 0, fmt.Errorf("block %s: %w", h, block.ErrBlockNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to stat block %s: %w", h, err)
	}
	return uint64(info.Size()), nil
}

func (s *FSBlockStore) Release(ctx context.Context, h metadata.BlockHandle) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := s.blockPath(h)
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, iofs.ErrNotExist) {
		return fmt.Errorf("failed to remove block %s: %w", h, err)
	}
	return nil
}

func (s *FSBlockStore) Healthcheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	info, err := os.Stat(s.basePath)
	if err != nil {
		return fmt.Errorf("block directory unavailable: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("block path %s is not a directory", s.basePath)
	}
	return nil
}

// ListAll walks the fan-out directories and returns every block handle.
// Files that are not valid handles are ignored.
func (s *FSBlockStore) ListAll(ctx context.Context) ([]metadata.BlockHandle, error) {
	var handles []metadata.BlockHandle
	err := s.walk(ctx, func(h metadata.BlockHandle, _ iofs.FileInfo) {
		handles = append(handles, h)
	})
	return handles, err
}

func (s *FSBlockStore) Usage(ctx context.Context) (uint64, uint64, error) {
	var count, total uint64
	err := s.walk(ctx, func(_ metadata.BlockHandle, info iofs.FileInfo) {
		count++
		total += uint64(info.Size())
	})
	return count, total, err
}

func (s *FSBlockStore) walk(ctx context.Context, fn func(metadata.BlockHandle, iofs.FileInfo)) error {
	return filepath.WalkDir(s.basePath, func(path string, d iofs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		h := metadata.BlockHandle(d.Name())
		if block.ValidateHandle(h) != nil {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		fn(h, info)
		return nil
	})
}
