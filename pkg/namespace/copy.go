package namespace

import (
	"context"
	"fmt"
	"io"
	iofs "io/fs"
	"os"
	"path/filepath"
)

// CopyFromLocal copies a local file or directory tree into the namespace.
//
// Files are written with Create(overwrite=false), so an existing destination
// file fails with ErrAlreadyExists. When remote is an existing directory the
// copy lands at remote/<base name of local>. Directories are copied
// recursively; entries that are neither regular files nor directories are
// skipped.
func (e *Engine) CopyFromLocal(ctx context.Context, local, remote string) (err error) {
	ctx, done := e.begin(ctx, "COPYFROMLOCAL", remote)
	defer done(&err)

	info, err := os.Stat(local)
	if err != nil {
		return fmt.Errorf("copy from local: %w", err)
	}

	_, target, err := e.parse(remote)
	if err != nil {
		return err
	}
	st, err := e.GetFileStatus(ctx, target)
	switch {
	case err == nil && st.IsDir():
		target = childPath(target, filepath.Base(local))
	case err != nil && !IsNotFound(err):
		return err
	}

	if info.IsDir() {
		return e.copyDir(ctx, local, target)
	}
	return e.copyFile(ctx, local, target, info.Size())
}

func (e *Engine) copyDir(ctx context.Context, local, target string) error {
	return filepath.WalkDir(local, func(path string, d iofs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(local, path)
		if err != nil {
			return err
		}
		dst := target
		if rel != "." {
			dst = target + "/" + filepath.ToSlash(rel)
		}

		switch {
		case d.IsDir():
			_, err := e.Mkdirs(ctx, dst)
			return err
		case d.Type().IsRegular():
			info, err := d.Info()
			if err != nil {
				return err
			}
			return e.copyFile(ctx, path, dst, info.Size())
		default:
			log.Debug("copy from local: skipping %s (%s)", path, d.Type())
			return nil
		}
	})
}

func (e *Engine) copyFile(ctx context.Context, local, target string, size int64) error {
	f, err := os.Open(local)
	if err != nil {
		return fmt.Errorf("copy from local: %w", err)
	}
	defer func() { _ = f.Close() }()

	w, err := e.Create(ctx, target, false, 0)
	if err != nil {
		return err
	}
	n, err := io.Copy(w, f)
	if err != nil {
		_ = w.Abort()
		return fmt.Errorf("copy %s to %s: %w", local, target, err)
	}
	if err := w.Close(); err != nil {
		return err
	}
	log.Debug("copied %s to %s (%d of %d bytes)", local, target, n, size)
	return nil
}
