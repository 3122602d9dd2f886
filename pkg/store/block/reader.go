package block

import (
	"context"
	"io"
)

// contextReader fails reads once its context is done.
type contextReader struct {
	ctx context.Context
	rc  io.ReadCloser
}

// NewContextReader wraps rc so that Read returns ctx.Err() after ctx is done.
func NewContextReader(ctx context.Context, rc io.ReadCloser) io.ReadCloser {
	return &contextReader{ctx: ctx, rc: rc}
}

func (r *contextReader) Read(p []byte) (int, error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}
	return r.rc.Read(p)
}

func (r *contextReader) Close() error {
	return r.rc.Close()
}
