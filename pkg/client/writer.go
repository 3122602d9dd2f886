package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
)

// DefaultBufferSize is the client-side write buffer used by Create.
const DefaultBufferSize = 64 << 10

var errAborted = errors.New("upload aborted")

// Create opens a write stream for the file at p.
//
// The upload is sent as one streaming request. The server decides whether
// the create may proceed before any content is sent (Expect: 100-continue),
// so an existing file with overwrite=false fails here, not at Close. See
// WithHTTPClient for what that asks of a custom transport. The content
// becomes visible when Close returns nil.
func (c *Client) Create(ctx context.Context, p string, overwrite bool, blockSize uint64) (*Writer, error) {
	params := url.Values{"overwrite": {strconv.FormatBool(overwrite)}}
	if blockSize > 0 {
		params.Set("blocksize", strconv.FormatUint(blockSize, 10))
	}

	pr, pw := io.Pipe()
	body := &startReader{r: pr, started: make(chan struct{})}

	req, err := c.newRequest(ctx, http.MethodPut, p, "CREATE", params, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Expect", "100-continue")
	req.Header.Set("Content-Type", "application/octet-stream")

	w := &Writer{
		path: p,
		pw:   pw,
		bw:   bufio.NewWriterSize(pw, DefaultBufferSize),
		done: make(chan struct{}),
	}
	go func() {
		defer close(w.done)
		w.resp, w.respErr = c.http.Do(req)
	}()

	select {
	case <-body.started:
		return w, nil
	case <-w.done:
		_ = pw.CloseWithError(errAborted)
		return nil, w.result()
	case <-ctx.Done():
		_ = pw.CloseWithError(ctx.Err())
		<-w.done
		return nil, ctx.Err()
	}
}

// Writer streams file content to the server.
//
// Thread safety: Not safe for concurrent use.
type Writer struct {
	path string
	pw   *io.PipeWriter
	bw   *bufio.Writer

	done    chan struct{}
	resp    *http.Response
	respErr error

	closed bool
	err    error
}

// Path returns the remote path being written.
func (w *Writer) Path() string {
	return w.path
}

// Write buffers p and sends full buffers to the server.
func (w *Writer) Write(p []byte) (int, error) {
	if w.closed {
		return 0, io.ErrClosedPipe
	}
	if w.err != nil {
		return 0, w.err
	}
	n, err := w.bw.Write(p)
	if err != nil {
		w.err = w.fail(err)
		return n, w.err
	}
	return n, nil
}

// Flush sends buffered content to the server.
func (w *Writer) Flush() error {
	if w.closed {
		return io.ErrClosedPipe
	}
	if w.err != nil {
		return w.err
	}
	if err := w.bw.Flush(); err != nil {
		w.err = w.fail(err)
		return w.err
	}
	return nil
}

// Close finishes the upload and waits for the server to commit it.
func (w *Writer) Close() error {
	if w.closed {
		return io.ErrClosedPipe
	}
	w.closed = true

	if w.err != nil {
		return w.err
	}
	if err := w.bw.Flush(); err != nil {
		return w.fail(err)
	}
	_ = w.pw.Close()

	<-w.done
	return w.result()
}

// Abort cancels the upload. The previous content of the file, if any,
// is left untouched.
func (w *Writer) Abort() error {
	if w.closed {
		return nil
	}
	w.closed = true

	_ = w.pw.CloseWithError(errAborted)
	<-w.done
	if w.resp != nil {
		_ = w.resp.Body.Close()
	}
	return nil
}

// fail tears down the upload after a local write error and returns the
// server's verdict when it has one.
func (w *Writer) fail(err error) error {
	_ = w.pw.CloseWithError(err)
	<-w.done
	if rerr := w.result(); rerr != nil {
		var re *RemoteError
		if errors.As(rerr, &re) {
			return rerr
		}
	}
	return fmt.Errorf("CREATE %s: %w", w.path, err)
}

// result interprets the finished request. Call only after done is closed.
func (w *Writer) result() error {
	if w.respErr != nil {
		return fmt.Errorf("CREATE %s: %w", w.path, w.respErr)
	}
	defer w.resp.Body.Close()

	if w.resp.StatusCode != http.StatusCreated {
		return decodeError(w.resp)
	}
	return nil
}

// startReader signals started on the first Read, which the transport
// performs only once the server has accepted the request headers.
type startReader struct {
	r       *io.PipeReader
	once    sync.Once
	started chan struct{}
}

func (s *startReader) Read(p []byte) (int, error) {
	s.once.Do(func() { close(s.started) })
	return s.r.Read(p)
}

func (s *startReader) Close() error {
	return s.r.Close()
}
