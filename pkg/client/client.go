// Package client is a Go client for the DittoNS REST API.
//
// Its operations mirror namespace.Engine: the same paths, the same boolean
// results and the same error codes, so code written against the engine can
// talk to a remote server instead. Errors returned by the server unwrap to
// *namespace.Error, so namespace.IsNotFound and friends work on them.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/marmos91/dittons/internal/logger"
	"github.com/marmos91/dittons/pkg/adapter/rest"
	"github.com/marmos91/dittons/pkg/namespace"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

var log = logger.With("client")

// Client talks to a DittoNS REST adapter.
//
// Thread safety: Safe for concurrent use.
type Client struct {
	base *url.URL
	http *http.Client
	user string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the underlying HTTP client.
//
// Create needs the transport to honor Expect: 100-continue. An
// *http.Transport with no ExpectContinueTimeout is cloned with one set;
// any other RoundTripper must wait for the server's interim response on
// its own, or create conflicts surface at Close instead of Create.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithUser sets the caller identity recorded as owner of created entries.
func WithUser(user string) Option {
	return func(c *Client) { c.user = user }
}

// New creates a client for the server at baseURL, e.g. "http://localhost:9870".
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid server URL %q: %w", baseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid server URL %q: scheme must be http or https", baseURL)
	}
	u.Path = strings.TrimSuffix(u.Path, "/")

	c := &Client{base: u, http: http.DefaultClient}
	for _, opt := range opts {
		opt(c)
	}
	c.http = expectContinue(c.http)
	return c, nil
}

// expectContinueTimeout bounds the wait for 100 Continue before a body is
// sent anyway. It matches http.DefaultTransport.
const expectContinueTimeout = time.Second

// expectContinue returns hc, or a copy whose transport waits for the
// server's verdict before streaming an upload body.
func expectContinue(hc *http.Client) *http.Client {
	rt := hc.Transport
	if rt == nil {
		rt = http.DefaultTransport
	}
	t, ok := rt.(*http.Transport)
	if !ok {
		log.Debug("transport %T: relying on it to honor Expect: 100-continue", rt)
		return hc
	}
	if t.ExpectContinueTimeout > 0 {
		return hc
	}

	t = t.Clone()
	t.ExpectContinueTimeout = expectContinueTimeout
	cp := *hc
	cp.Transport = t
	return &cp
}

// Mkdirs creates p and any missing parents. It returns true when p exists
// as a directory afterwards.
func (c *Client) Mkdirs(ctx context.Context, p string) (bool, error) {
	var out rest.BooleanResponse
	if err := c.call(ctx, http.MethodPut, p, "MKDIRS", nil, &out); err != nil {
		return false, err
	}
	return out.Boolean, nil
}

// Open returns a stream over the content of the file at p.
func (c *Client) Open(ctx context.Context, p string) (io.ReadCloser, error) {
	req, err := c.newRequest(ctx, http.MethodGet, p, "OPEN", nil, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("OPEN %s: %w", p, err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, decodeError(resp)
	}
	return resp.Body, nil
}

// ListStatus returns the children of the directory at p, or the status of
// p itself when it is a file.
func (c *Client) ListStatus(ctx context.Context, p string) ([]namespace.FileStatus, error) {
	canon, err := namespace.Clean(p)
	if err != nil {
		return nil, err
	}

	var out rest.FileStatusesResponse
	if err := c.call(ctx, http.MethodGet, canon, "LISTSTATUS", nil, &out); err != nil {
		return nil, err
	}

	list := make([]namespace.FileStatus, 0, len(out.FileStatuses.FileStatus))
	for _, fs := range out.FileStatuses.FileStatus {
		entry := canon
		if fs.PathSuffix != "" {
			entry = strings.TrimSuffix(canon, "/") + "/" + fs.PathSuffix
		}
		list = append(list, fs.ToNamespace(entry))
	}
	return list, nil
}

// GetFileStatus returns the status of the entry at p.
func (c *Client) GetFileStatus(ctx context.Context, p string) (*namespace.FileStatus, error) {
	canon, err := namespace.Clean(p)
	if err != nil {
		return nil, err
	}

	var out rest.FileStatusResponse
	if err := c.call(ctx, http.MethodGet, canon, "GETFILESTATUS", nil, &out); err != nil {
		return nil, err
	}
	st := out.FileStatus.ToNamespace(canon)
	return &st, nil
}

// Delete removes p. It returns false when p does not exist.
func (c *Client) Delete(ctx context.Context, p string, recursive bool) (bool, error) {
	params := url.Values{"recursive": {strconv.FormatBool(recursive)}}

	var out rest.BooleanResponse
	if err := c.call(ctx, http.MethodDelete, p, "DELETE", params, &out); err != nil {
		return false, err
	}
	return out.Boolean, nil
}

// call performs a bodiless request and decodes a JSON response into out.
func (c *Client) call(ctx context.Context, method, p, op string, params url.Values, out any) error {
	req, err := c.newRequest(ctx, method, p, op, params, nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", op, p, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: decoding response: %w", op, p, err)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, p, op string, params url.Values, body io.Reader) (*http.Request, error) {
	canon, err := namespace.Clean(p)
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	for k, v := range params {
		q[k] = v
	}
	q.Set("op", op)
	if c.user != "" {
		q.Set("user.name", c.user)
	}

	u := *c.base
	u.Path = c.base.Path + rest.PathPrefix + canon
	u.RawPath = ""
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, err
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	log.Debug("%s %s", method, u.String())
	return req, nil
}
