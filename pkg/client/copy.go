package client

import (
	"context"
	"fmt"
	"io"
	iofs "io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/marmos91/dittons/pkg/namespace"
)

// CopyOption configures CopyFromLocal.
type CopyOption func(*copyOptions)

type copyOptions struct {
	progress io.Writer
}

// WithProgress receives every uploaded byte, e.g. a progress bar.
func WithProgress(w io.Writer) CopyOption {
	return func(o *copyOptions) { o.progress = w }
}

// CopyFromLocal uploads a local file or directory tree to remote, with the
// same semantics as namespace.Engine.CopyFromLocal: files are created with
// overwrite=false, and an existing remote directory receives the copy under
// the local base name.
func (c *Client) CopyFromLocal(ctx context.Context, local, remote string, opts ...CopyOption) error {
	var o copyOptions
	for _, opt := range opts {
		opt(&o)
	}

	info, err := os.Stat(local)
	if err != nil {
		return fmt.Errorf("copy from local: %w", err)
	}

	target, err := namespace.Clean(remote)
	if err != nil {
		return err
	}
	st, err := c.GetFileStatus(ctx, target)
	switch {
	case err == nil && st.IsDir():
		target = strings.TrimSuffix(target, "/") + "/" + filepath.Base(local)
	case err != nil && !namespace.IsNotFound(err):
		return err
	}

	if !info.IsDir() {
		return c.copyFile(ctx, local, target, o)
	}

	return filepath.WalkDir(local, func(path string, d iofs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(local, path)
		if err != nil {
			return err
		}
		dst := target
		if rel != "." {
			dst = strings.TrimSuffix(target, "/") + "/" + filepath.ToSlash(rel)
		}

		switch {
		case d.IsDir():
			_, err := c.Mkdirs(ctx, dst)
			return err
		case d.Type().IsRegular():
			return c.copyFile(ctx, path, dst, o)
		default:
			log.Debug("copy from local: skipping %s (%s)", path, d.Type())
			return nil
		}
	})
}

func (c *Client) copyFile(ctx context.Context, local, target string, o copyOptions) error {
	f, err := os.Open(local)
	if err != nil {
		return fmt.Errorf("copy from local: %w", err)
	}
	defer func() { _ = f.Close() }()

	w, err := c.Create(ctx, target, false, 0)
	if err != nil {
		return err
	}

	var src io.Reader = f
	if o.progress != nil {
		src = io.TeeReader(f, o.progress)
	}
	if _, err := io.Copy(w, src); err != nil {
		_ = w.Abort()
		return fmt.Errorf("copy %s to %s: %w", local, target, err)
	}
	return w.Close()
}
