package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/marmos91/dittons/pkg/namespace"
	blockmemory "github.com/marmos91/dittons/pkg/store/block/memory"
	nodememory "github.com/marmos91/dittons/pkg/store/metadata/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAdapter(t *testing.T, config RESTConfig) *RESTAdapter {
	t.Helper()
	engine, err := namespace.New(context.Background(), nodememory.NewMemoryNodeStore(),
		blockmemory.NewMemoryBlockStore(blockmemory.MemoryBlockStoreConfig{}))
	require.NoError(t, err)

	a := New(config, nil)
	a.SetEngine(engine)
	return a
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(newTestAdapter(t, RESTConfig{}).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, srv *httptest.Server, method, path, op string, body string, params ...string) *http.Response {
	t.Helper()
	u := srv.URL + PathPrefix + path + "?op=" + op
	for _, p := range params {
		u += "&" + p
	}
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, u, rd)
	require.NoError(t, err)
	req.Header.Set(UserHeader, "tester")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestMkdirs(t *testing.T) {
	srv := newTestServer(t)

	for i := 0; i < 2; i++ {
		resp := do(t, srv, http.MethodPut, "/a/b/c", "MKDIRS", "")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.True(t, decode[BooleanResponse](t, resp).Boolean)
	}
}

func TestCreateAndOpen(t *testing.T) {
	srv := newTestServer(t)

	resp := do(t, srv, http.MethodPut, "/dir/file", "CREATE", "A!")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, PathPrefix+"/dir/file", resp.Header.Get("Location"))

	resp = do(t, srv, http.MethodGet, "/dir/file", "OPEN", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "A!", string(data))

	resp = do(t, srv, http.MethodGet, "/dir/file", "GETFILESTATUS", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	st := decode[FileStatusResponse](t, resp).FileStatus
	assert.Equal(t, TypeFile, st.Type)
	assert.Equal(t, uint64(2), st.Length)
	assert.Equal(t, "tester", st.Owner)
	assert.Empty(t, st.PathSuffix)
}

func TestCreate_AlreadyExists(t *testing.T) {
	srv := newTestServer(t)

	resp := do(t, srv, http.MethodPut, "/f", "CREATE", "one")
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = do(t, srv, http.MethodPut, "/f", "CREATE", "two", "overwrite=false")
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	ex := decode[RemoteExceptionResponse](t, resp).RemoteException
	assert.Equal(t, namespace.ErrAlreadyExists.String(), ex.Exception)
	assert.Contains(t, ex.Message, "already exists")

	resp = do(t, srv, http.MethodPut, "/f", "CREATE", "two", "overwrite=true")
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = do(t, srv, http.MethodGet, "/f", "OPEN", "")
	data, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "two", string(data))
}

func TestOpen_NotFound(t *testing.T) {
	srv := newTestServer(t)

	resp := do(t, srv, http.MethodGet, "/missing", "OPEN", "")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	ex := decode[RemoteExceptionResponse](t, resp).RemoteException
	assert.Equal(t, namespace.ErrNotFound.String(), ex.Exception)
	assert.Contains(t, ex.Message, "File does not exist")
}

func TestListStatus(t *testing.T) {
	srv := newTestServer(t)

	for i := 0; i < 3; i++ {
		resp := do(t, srv, http.MethodPut, fmt.Sprintf("/list/f%d", i), "CREATE", "x")
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}

	resp := do(t, srv, http.MethodGet, "/list", "LISTSTATUS", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decode[FileStatusesResponse](t, resp).FileStatuses.FileStatus
	require.Len(t, list, 3)
	assert.Equal(t, "f0", list[0].PathSuffix)

	resp = do(t, srv, http.MethodGet, "/list/f1", "LISTSTATUS", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list = decode[FileStatusesResponse](t, resp).FileStatuses.FileStatus
	require.Len(t, list, 1)
	assert.Empty(t, list[0].PathSuffix)

	resp = do(t, srv, http.MethodPut, "/empty", "MKDIRS", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = do(t, srv, http.MethodGet, "/empty", "LISTSTATUS", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotNil(t, decode[FileStatusesResponse](t, resp).FileStatuses.FileStatus)

	resp = do(t, srv, http.MethodGet, "/nope", "LISTSTATUS", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDelete(t *testing.T) {
	srv := newTestServer(t)

	resp := do(t, srv, http.MethodDelete, "/absent", "DELETE", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, decode[BooleanResponse](t, resp).Boolean)

	resp = do(t, srv, http.MethodPut, "/d/f", "CREATE", "x")
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = do(t, srv, http.MethodDelete, "/d", "DELETE", "", "recursive=false")
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	ex := decode[RemoteExceptionResponse](t, resp).RemoteException
	assert.Contains(t, ex.Message, "Directory is not empty")

	resp = do(t, srv, http.MethodDelete, "/d", "DELETE", "", "recursive=true")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, decode[BooleanResponse](t, resp).Boolean)

	resp = do(t, srv, http.MethodGet, "/d/f", "GETFILESTATUS", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestNotADirectory(t *testing.T) {
	srv := newTestServer(t)

	resp := do(t, srv, http.MethodPut, "/file", "CREATE", "x")
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = do(t, srv, http.MethodPut, "/file/sub", "MKDIRS", "")
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	ex := decode[RemoteExceptionResponse](t, resp).RemoteException
	assert.Equal(t, namespace.ErrNotADirectory.String(), ex.Exception)
}

func TestBadRequests(t *testing.T) {
	srv := newTestServer(t)

	resp := do(t, srv, http.MethodGet, "/a", "RENAME", "")
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, ExceptionIllegalArgument, decode[RemoteExceptionResponse](t, resp).RemoteException.Exception)

	resp = do(t, srv, http.MethodGet, "/a", "MKDIRS", "")
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	assert.Equal(t, http.MethodPut, resp.Header.Get("Allow"))

	resp = do(t, srv, http.MethodDelete, "/a", "DELETE", "", "recursive=maybe")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = do(t, srv, http.MethodPut, "/a", "CREATE", "x", "blocksize=-1")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRateLimit(t *testing.T) {
	a := newTestAdapter(t, RESTConfig{RateLimit: RateLimitConfig{PerClient: 1, Burst: 1}})
	srv := httptest.NewServer(a.Handler())
	t.Cleanup(srv.Close)

	resp := do(t, srv, http.MethodPut, "/a", "MKDIRS", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = do(t, srv, http.MethodPut, "/a", "MKDIRS", "")
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, ExceptionRetriable, decode[RemoteExceptionResponse](t, resp).RemoteException.Exception)
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, StatusFor(namespace.ErrNotFound))
	assert.Equal(t, http.StatusConflict, StatusFor(namespace.ErrLeaseHeld))
	assert.Equal(t, http.StatusBadRequest, StatusFor(namespace.ErrInvalidPath))
	assert.Equal(t, http.StatusInternalServerError, StatusFor(namespace.ErrIO))
}

func TestServeAndShutdown(t *testing.T) {
	a := newTestAdapter(t, RESTConfig{Port: 0, ShutdownTimeout: 2 * time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- a.Serve(ctx)
	}()

	require.Eventually(t, func() bool { return a.Port() != 0 }, 2*time.Second, 10*time.Millisecond)

	resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/healthz", a.Port()))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancellation")
	}

	assert.NoError(t, a.Stop(context.Background()))
}

func TestServe_RequiresEngine(t *testing.T) {
	a := New(RESTConfig{}, nil)
	assert.Error(t, a.Serve(context.Background()))
}
