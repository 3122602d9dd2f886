package namespace

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeLocal(t *testing.T, path string, data []byte) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func TestCopyFromLocal_File(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t, WithWriteBufferSize(512))

	local := filepath.Join(t.TempDir(), "payload.bin")
	data := bytes.Repeat([]byte("dittons!"), 1000)
	writeLocal(t, local, data)

	require.NoError(t, e.CopyFromLocal(ctx, local, "/remote/payload.bin"))
	assert.Equal(t, string(data), readFile(t, e, "/remote/payload.bin"))

	err := e.CopyFromLocal(ctx, local, "/remote/payload.bin")
	require.Error(t, err)
	assert.True(t, IsAlreadyExists(err))
	assert.Contains(t, err.Error(), "already exists")
}

func TestCopyFromLocal_IntoDirectory(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)
	_, err := e.Mkdirs(ctx, "/inbox")
	require.NoError(t, err)

	local := filepath.Join(t.TempDir(), "note.txt")
	writeLocal(t, local, []byte("hi"))

	require.NoError(t, e.CopyFromLocal(ctx, local, "/inbox"))
	assert.Equal(t, "hi", readFile(t, e, "/inbox/note.txt"))
}

func TestCopyFromLocal_Directory(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)

	src := filepath.Join(t.TempDir(), "tree")
	writeLocal(t, filepath.Join(src, "a.txt"), []byte("a"))
	writeLocal(t, filepath.Join(src, "sub", "b.txt"), []byte("b"))
	require.NoError(t, os.MkdirAll(filepath.Join(src, "empty"), 0o755))

	require.NoError(t, e.CopyFromLocal(ctx, src, "/backup"))

	assert.Equal(t, "a", readFile(t, e, "/backup/a.txt"))
	assert.Equal(t, "b", readFile(t, e, "/backup/sub/b.txt"))

	list, err := e.ListStatus(ctx, "/backup")
	require.NoError(t, err)
	assert.Len(t, list, 3)

	require.NoError(t, e.CopyFromLocal(ctx, src, "/backup"))
	assert.Equal(t, "a", readFile(t, e, "/backup/tree/a.txt"))
}

func TestCopyFromLocal_MissingSource(t *testing.T) {
	e, _ := newTestEngine(t)

	err := e.CopyFromLocal(context.Background(), filepath.Join(t.TempDir(), "nope"), "/dst")
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.False(t, exists(t, e, "/dst"))
}

func TestCopyFromLocal_ParentIsFile(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)
	writeFile(t, e, "/f", "x")

	local := filepath.Join(t.TempDir(), "x")
	writeLocal(t, local, []byte("x"))

	err := e.CopyFromLocal(ctx, local, "/f/x")
	assert.True(t, IsNotADirectory(err), "got %v", err)
}
