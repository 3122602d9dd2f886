package config

import (
	"context"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/marmos91/dittons/pkg/metrics"
)

func TestCreateBlockStore_Filesystem(t *testing.T) {
	ctx := context.Background()
	cfg := &BlocksConfig{
		Type: "filesystem",
		Filesystem: map[string]any{
			"path":    t.TempDir(),
			"no_sync": true,
		},
	}

	store, err := CreateBlockStore(ctx, cfg)
	if err != nil {
		t.Fatalf("Failed to create filesystem block store: %v", err)
	}
	if store == nil {
		t.Fatal("Expected non-nil store")
	}
	if err := store.Healthcheck(ctx); err != nil {
		t.Errorf("Expected healthy store, got: %v", err)
	}
}

func TestCreateBlockStore_FilesystemMissingPath(t *testing.T) {
	cfg := &BlocksConfig{
		Type:       "filesystem",
		Filesystem: map[string]any{},
	}

	_, err := CreateBlockStore(context.Background(), cfg)
	if err == nil {
		t.Fatal("Expected error for missing path")
	}
	if !strings.Contains(err.Error(), "path is required") {
		t.Errorf("Expected 'path is required' error, got: %v", err)
	}
}

func TestCreateBlockStore_Memory(t *testing.T) {
	cfg := &BlocksConfig{
		Type:   "memory",
		Memory: map[string]any{"max_size_bytes": "1048576"},
	}

	store, err := CreateBlockStore(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Failed to create memory block store: %v", err)
	}
	if store == nil {
		t.Fatal("Expected non-nil store")
	}
}

func TestCreateBlockStore_UnknownOption(t *testing.T) {
	cfg := &BlocksConfig{
		Type:   "memory",
		Memory: map[string]any{"max_size": 10},
	}

	if _, err := CreateBlockStore(context.Background(), cfg); err == nil {
		t.Fatal("Expected error for unknown option key")
	}
}

func TestCreateBlockStore_S3MissingBucket(t *testing.T) {
	cfg := &BlocksConfig{
		Type: "s3",
		S3:   map[string]any{"region": "eu-west-1"},
	}

	_, err := CreateBlockStore(context.Background(), cfg)
	if err == nil {
		t.Fatal("Expected error for missing bucket")
	}
	if !strings.Contains(err.Error(), "bucket is required") {
		t.Errorf("Expected 'bucket is required' error, got: %v", err)
	}
}

func TestCreateBlockStore_UnknownType(t *testing.T) {
	cfg := &BlocksConfig{Type: "tape"}

	_, err := CreateBlockStore(context.Background(), cfg)
	if err == nil {
		t.Fatal("Expected error for unknown store type")
	}
	if !strings.Contains(err.Error(), "unknown block store type") {
		t.Errorf("Expected 'unknown block store type' error, got: %v", err)
	}
}

func TestCreateNodeStore_Memory(t *testing.T) {
	cfg := &MetadataConfig{
		Type:   "memory",
		Memory: map[string]any{},
	}

	store, err := CreateNodeStore(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Failed to create memory node store: %v", err)
	}
	if store == nil {
		t.Fatal("Expected non-nil store")
	}
	_ = store.Close()
}

func TestCreateNodeStore_BadgerInMemory(t *testing.T) {
	cfg := &MetadataConfig{
		Type:   "badger",
		Badger: map[string]any{"in_memory": true},
	}

	store, err := CreateNodeStore(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Failed to create badger node store: %v", err)
	}
	defer func() { _ = store.Close() }()

	if _, err := store.Root(context.Background()); err != nil {
		t.Errorf("Expected root directory, got: %v", err)
	}
}

func TestCreateNodeStore_BadgerMissingPath(t *testing.T) {
	cfg := &MetadataConfig{
		Type:   "badger",
		Badger: map[string]any{},
	}

	_, err := CreateNodeStore(context.Background(), cfg)
	if err == nil {
		t.Fatal("Expected error for missing db_path")
	}
	if !strings.Contains(err.Error(), "db_path is required") {
		t.Errorf("Expected 'db_path is required' error, got: %v", err)
	}
}

func TestCreateNodeStore_UnknownType(t *testing.T) {
	cfg := &MetadataConfig{Type: "postgres"}

	_, err := CreateNodeStore(context.Background(), cfg)
	if err == nil {
		t.Fatal("Expected error for unknown store type")
	}
	if !strings.Contains(err.Error(), "unknown metadata store type") {
		t.Errorf("Expected 'unknown metadata store type' error, got: %v", err)
	}
}

func TestCreateNodeStore_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := &MetadataConfig{Type: "memory"}
	if _, err := CreateNodeStore(ctx, cfg); err == nil {
		t.Fatal("Expected error with canceled context")
	}
}

func TestCreateEngine(t *testing.T) {
	ctx := context.Background()
	cfg := GetDefaultConfig()
	cfg.Blocks.Type = "memory"

	engine, nodes, blocks, err := CreateEngine(ctx, cfg, metrics.NoopNamespaceMetrics())
	if err != nil {
		t.Fatalf("CreateEngine failed: %v", err)
	}
	defer func() { _ = nodes.Close() }()

	if blocks == nil {
		t.Fatal("Expected non-nil block store")
	}

	ok, err := engine.Mkdirs(ctx, "/a/b")
	if err != nil || !ok {
		t.Fatalf("Mkdirs failed: ok=%v err=%v", ok, err)
	}
	if _, err := engine.GetFileStatus(ctx, "/a/b"); err != nil {
		t.Errorf("Expected /a/b to exist, got: %v", err)
	}
}

// A namespace backed by badger and the filesystem block store survives a
// restart of the engine.
func TestCreateEngine_PersistentStores(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	cfg := GetDefaultConfig()
	cfg.Metadata.Type = "badger"
	cfg.Metadata.Badger = map[string]any{"db_path": filepath.Join(dir, "meta")}
	cfg.Blocks.Type = "filesystem"
	cfg.Blocks.Filesystem = map[string]any{"path": filepath.Join(dir, "blocks")}

	engine, nodes, _, err := CreateEngine(ctx, cfg, nil)
	if err != nil {
		t.Fatalf("CreateEngine failed: %v", err)
	}
	w, err := engine.Create(ctx, "/user/data/part-0", false, 0)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := w.Write([]byte("persisted")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := nodes.Close(); err != nil {
		t.Fatalf("Failed to close node store: %v", err)
	}

	engine, nodes, _, err = CreateEngine(ctx, cfg, nil)
	if err != nil {
		t.Fatalf("CreateEngine after restart failed: %v", err)
	}
	defer func() { _ = nodes.Close() }()

	r, err := engine.Open(ctx, "/user/data/part-0")
	if err != nil {
		t.Fatalf("Open after restart failed: %v", err)
	}
	defer func() { _ = r.Close() }()

	data, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if string(data) != "persisted" {
		t.Errorf("Expected %q, got %q", "persisted", data)
	}
}

func TestCreateEngine_AppliesLimits(t *testing.T) {
	ctx := context.Background()
	cfg := GetDefaultConfig()
	cfg.Blocks.Type = "memory"
	cfg.Namespace.MaxNameLen = 4

	engine, nodes, _, err := CreateEngine(ctx, cfg, nil)
	if err != nil {
		t.Fatalf("CreateEngine failed: %v", err)
	}
	defer func() { _ = nodes.Close() }()

	if _, err := engine.Mkdirs(ctx, "/toolong"); err == nil {
		t.Fatal("Expected error for a name over max_name_len")
	}
}

func TestCreateAdapters(t *testing.T) {
	cfg := GetDefaultConfig()

	adapters, err := CreateAdapters(cfg, nil)
	if err != nil {
		t.Fatalf("CreateAdapters failed: %v", err)
	}
	if len(adapters) != 1 || adapters[0].Protocol() != "HTTP" {
		t.Fatalf("Expected one HTTP adapter, got %v", adapters)
	}

	cfg.Adapters.REST.Enabled = false
	if _, err := CreateAdapters(cfg, nil); err == nil {
		t.Fatal("Expected error with no adapters enabled")
	}
}

func TestInitializeMetrics_Disabled(t *testing.T) {
	cfg := GetDefaultConfig()

	result := InitializeMetrics(cfg)
	if result.Server != nil {
		t.Error("Expected no metrics server when disabled")
	}
	if result.Namespace == nil || result.HTTP == nil || result.GC == nil {
		t.Error("Expected no-op metrics, got nil")
	}
}
