package client

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/marmos91/dittons/pkg/adapter/rest"
	"github.com/marmos91/dittons/pkg/namespace"
	blockmemory "github.com/marmos91/dittons/pkg/store/block/memory"
	nodememory "github.com/marmos91/dittons/pkg/store/metadata/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, opts ...Option) (*Client, *namespace.Engine) {
	t.Helper()
	engine, err := namespace.New(context.Background(), nodememory.NewMemoryNodeStore(),
		blockmemory.NewMemoryBlockStore(blockmemory.MemoryBlockStoreConfig{}))
	require.NoError(t, err)

	a := rest.New(rest.RESTConfig{}, nil)
	a.SetEngine(engine)
	srv := httptest.NewServer(a.Handler())
	t.Cleanup(srv.Close)

	c, err := New(srv.URL, append([]Option{WithUser("hdfs")}, opts...)...)
	require.NoError(t, err)
	return c, engine
}

func writeFile(t *testing.T, c *Client, path, content string, overwrite bool) {
	t.Helper()
	w, err := c.Create(context.Background(), path, overwrite, 4096)
	require.NoError(t, err)
	_, err = w.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, w.Flush())
	require.NoError(t, w.Close())
}

func readFile(t *testing.T, c *Client, path string) string {
	t.Helper()
	r, err := c.Open(context.Background(), path)
	require.NoError(t, err)
	defer r.Close()

	var buf bytes.Buffer
	chunk := make([]byte, 4)
	for {
		n, err := r.Read(chunk)
		buf.Write(chunk[:n])
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
	}
	return buf.String()
}

// TestScenario runs the whole client workflow in order: directories,
// files, duplicate detection, reads, upload, listing and deletes.
func TestScenario(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestClient(t)

	ok, err := c.Mkdirs(ctx, "/hdfs-api")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.Mkdirs(ctx, "/hdfs-api")
	require.NoError(t, err)
	assert.True(t, ok, "mkdirs is idempotent")

	writeFile(t, c, "/hdfs-api/test/a.txt", "A!", true)
	writeFile(t, c, "/hdfs-api/test/b.txt", "B!", true)

	_, err = c.Create(ctx, "/hdfs-api/test/a.txt", false, 4096)
	require.Error(t, err)
	assert.True(t, namespace.IsAlreadyExists(err))
	assert.Contains(t, err.Error(), "already exists")

	_, err = c.Open(ctx, "/hdfs-api/test/c.txt")
	require.Error(t, err)
	assert.True(t, namespace.IsNotFound(err))
	assert.Contains(t, err.Error(), "File does not exist")

	assert.Equal(t, "A!", readFile(t, c, "/hdfs-api/test/a.txt"))

	local := filepath.Join(t.TempDir(), "c.txt")
	require.NoError(t, os.WriteFile(local, []byte("C!"), 0o644))
	require.NoError(t, c.CopyFromLocal(ctx, local, "/hdfs-api/test/c.txt"))
	assert.Equal(t, "C!", readFile(t, c, "/hdfs-api/test/c.txt"))

	list, err := c.ListStatus(ctx, "/hdfs-api/test")
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "/hdfs-api/test/a.txt", list[0].Path)
	assert.Equal(t, "hdfs", list[0].Owner)

	ok, err = c.Delete(ctx, "/hdfs-api/testAAA", false)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = c.Delete(ctx, "/hdfs-api/test", false)
	require.Error(t, err)
	assert.True(t, namespace.IsDirectoryNotEmpty(err))
	assert.Contains(t, err.Error(), "Directory is not empty")

	ok, err = c.Delete(ctx, "/hdfs-api", true)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = c.GetFileStatus(ctx, "/hdfs-api")
	assert.True(t, namespace.IsNotFound(err))
}

func TestListStatus_File(t *testing.T) {
	c, _ := newTestClient(t)
	writeFile(t, c, "/dir/f", "data", false)

	list, err := c.ListStatus(context.Background(), "/dir/f")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "/dir/f", list[0].Path)
	assert.Equal(t, "f", list[0].Name)
	assert.Equal(t, uint64(4), list[0].Size)
	assert.False(t, list[0].IsDir())
}

func TestCreate_Overwrite(t *testing.T) {
	c, _ := newTestClient(t)
	writeFile(t, c, "/f", "old", false)
	writeFile(t, c, "/f", "new content", true)
	assert.Equal(t, "new content", readFile(t, c, "/f"))
}

func TestCreate_Empty(t *testing.T) {
	c, _ := newTestClient(t)

	w, err := c.Create(context.Background(), "/empty", false, 0)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	st, err := c.GetFileStatus(context.Background(), "/empty")
	require.NoError(t, err)
	assert.Zero(t, st.Size)
	assert.Empty(t, readFile(t, c, "/empty"))
}

func TestCreate_Abort(t *testing.T) {
	c, _ := newTestClient(t)
	writeFile(t, c, "/keep", "original", false)

	w, err := c.Create(context.Background(), "/keep", true, 0)
	require.NoError(t, err)
	_, err = w.Write([]byte("partial"))
	require.NoError(t, err)
	require.NoError(t, w.Abort())

	assert.Equal(t, "original", readFile(t, c, "/keep"))
}

func TestCreate_ParentIsFile(t *testing.T) {
	c, _ := newTestClient(t)
	writeFile(t, c, "/file", "x", false)

	_, err := c.Create(context.Background(), "/file/child", false, 0)
	require.Error(t, err)
	assert.True(t, namespace.IsNotADirectory(err))
}

func TestLargeUpload(t *testing.T) {
	c, _ := newTestClient(t)
	data := strings.Repeat("0123456789abcdef", 64<<10)

	var progress bytes.Buffer
	local := filepath.Join(t.TempDir(), "large.bin")
	require.NoError(t, os.WriteFile(local, []byte(data), 0o644))
	require.NoError(t, c.CopyFromLocal(context.Background(), local, "/large.bin", WithProgress(&progress)))

	assert.Equal(t, len(data), progress.Len())
	assert.Equal(t, data, readFile(t, c, "/large.bin"))
}

func TestCopyFromLocal_Directory(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestClient(t)

	root := t.TempDir()
	src := filepath.Join(root, "tree")
	require.NoError(t, os.MkdirAll(filepath.Join(src, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "one.txt"), []byte("1"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "sub", "two.txt"), []byte("2"), 0o644))

	ok, err := c.Mkdirs(ctx, "/dest")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, c.CopyFromLocal(ctx, src, "/dest"))
	assert.Equal(t, "1", readFile(t, c, "/dest/tree/one.txt"))
	assert.Equal(t, "2", readFile(t, c, "/dest/tree/sub/two.txt"))

	err = c.CopyFromLocal(ctx, filepath.Join(src, "one.txt"), "/dest/tree/one.txt")
	assert.True(t, namespace.IsAlreadyExists(err))
}

func TestCreate_ConflictWithCustomTransport(t *testing.T) {
	ctx := context.Background()
	transport := &http.Transport{}
	c, _ := newTestClient(t, WithHTTPClient(&http.Client{Transport: transport}))

	writeFile(t, c, "/exists.txt", "first", true)

	_, err := c.Create(ctx, "/exists.txt", false, 0)
	require.Error(t, err, "conflict must surface before any content is sent")
	assert.True(t, namespace.IsAlreadyExists(err))
	assert.Equal(t, "first", readFile(t, c, "/exists.txt"))

	assert.Zero(t, transport.ExpectContinueTimeout, "caller's transport is not mutated")
	assert.NotSame(t, transport, c.http.Transport)
}

func TestExpectContinue(t *testing.T) {
	assert.Same(t, http.DefaultClient, expectContinue(http.DefaultClient))

	tuned := &http.Client{Transport: &http.Transport{ExpectContinueTimeout: 3 * time.Second}}
	assert.Same(t, tuned, expectContinue(tuned))

	zero := &http.Client{Transport: &http.Transport{}, Timeout: time.Minute}
	got := expectContinue(zero)
	require.NotSame(t, zero, got)
	assert.Equal(t, time.Minute, got.Timeout)
	assert.Equal(t, expectContinueTimeout, got.Transport.(*http.Transport).ExpectContinueTimeout)
}

func TestInvalidPath(t *testing.T) {
	c, _ := newTestClient(t)

	_, err := c.Mkdirs(context.Background(), "relative/path")
	assert.True(t, namespace.IsInvalidPath(err))
}

func TestNew_InvalidURL(t *testing.T) {
	_, err := New("ftp://example.com")
	assert.Error(t, err)

	_, err = New("://bad")
	assert.Error(t, err)
}

func TestRemoteError(t *testing.T) {
	err := &RemoteError{StatusCode: 404, Exception: namespace.ErrNotFound.String(), Message: "File does not exist: /x"}
	assert.Equal(t, namespace.ErrNotFound, err.Code())
	assert.True(t, namespace.IsNotFound(err))
	assert.Equal(t, "File does not exist: /x", err.Error())
	assert.False(t, IsRateLimited(err))
	assert.True(t, IsRateLimited(&RemoteError{StatusCode: 429}))
}
