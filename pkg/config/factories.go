package config

import (
	"context"
	"fmt"

	"github.com/marmos91/dittons/internal/logger"
	"github.com/marmos91/dittons/pkg/metrics"
	"github.com/marmos91/dittons/pkg/namespace"
	"github.com/marmos91/dittons/pkg/store/block"
	blockfs "github.com/marmos91/dittons/pkg/store/block/fs"
	blockmemory "github.com/marmos91/dittons/pkg/store/block/memory"
	blocks3 "github.com/marmos91/dittons/pkg/store/block/s3"
	"github.com/marmos91/dittons/pkg/store/metadata"
	"github.com/marmos91/dittons/pkg/store/metadata/badger"
	"github.com/marmos91/dittons/pkg/store/metadata/memory"
	"github.com/mitchellh/mapstructure"
)

// decode copies a type-specific options map into a store config struct.
// Durations may be given as strings ("30s").
func decode(options map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           out,
	})
	if err != nil {
		return fmt.Errorf("failed to create decoder: %w", err)
	}
	return decoder.Decode(options)
}

// CreateNodeStore creates a node store based on configuration.
//
// Supported types:
//   - "memory": Uses pkg/store/metadata/memory (ephemeral)
//   - "badger": Uses pkg/store/metadata/badger (persistent)
func CreateNodeStore(ctx context.Context, cfg *MetadataConfig) (metadata.NodeStore, error) {
	switch cfg.Type {
	case "memory":
		return createMemoryNodeStore(ctx, cfg.Memory)
	case "badger":
		return createBadgerNodeStore(ctx, cfg.Badger)
	default:
		return nil, fmt.Errorf("unknown metadata store type: %q (supported: memory, badger)", cfg.Type)
	}
}

func createMemoryNodeStore(ctx context.Context, options map[string]any) (metadata.NodeStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(options) > 0 {
		logger.Warn("memory metadata store takes no options, ignoring %d key(s)", len(options))
	}
	return memory.NewMemoryNodeStore(), nil
}

func createBadgerNodeStore(ctx context.Context, options map[string]any) (metadata.NodeStore, error) {
	var storeCfg badger.BadgerNodeStoreConfig
	if err := decode(options, &storeCfg); err != nil {
		return nil, fmt.Errorf("failed to decode badger metadata store config: %w", err)
	}

	if storeCfg.DBPath == "" && !storeCfg.InMemory {
		return nil, fmt.Errorf("badger metadata store: db_path is required")
	}

	store, err := badger.NewBadgerNodeStore(ctx, storeCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create badger metadata store: %w", err)
	}

	logger.Info("Badger metadata store opened: path=%s in_memory=%t", storeCfg.DBPath, storeCfg.InMemory)
	return store, nil
}

// CreateBlockStore creates a block store based on configuration.
//
// Supported types:
//   - "memory": Uses pkg/store/block/memory (ephemeral)
//   - "filesystem": Uses pkg/store/block/fs (one file per block)
//   - "s3": Uses pkg/store/block/s3 (Amazon S3 or compatible storage)
func CreateBlockStore(ctx context.Context, cfg *BlocksConfig) (block.Store, error) {
	switch cfg.Type {
	case "memory":
		return createMemoryBlockStore(cfg.Memory)
	case "filesystem":
		return createFilesystemBlockStore(ctx, cfg.Filesystem)
	case "s3":
		return createS3BlockStore(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("unknown block store type: %q (supported: memory, filesystem, s3)", cfg.Type)
	}
}

func createMemoryBlockStore(options map[string]any) (block.Store, error) {
	var storeCfg blockmemory.MemoryBlockStoreConfig
	if err := decode(options, &storeCfg); err != nil {
		return nil, fmt.Errorf("failed to decode memory block store config: %w", err)
	}
	return blockmemory.NewMemoryBlockStore(storeCfg), nil
}

func createFilesystemBlockStore(ctx context.Context, options map[string]any) (block.Store, error) {
	var storeCfg blockfs.FSBlockStoreConfig
	if err := decode(options, &storeCfg); err != nil {
		return nil, fmt.Errorf("failed to decode filesystem block store config: %w", err)
	}

	if storeCfg.Path == "" {
		return nil, fmt.Errorf("filesystem block store: path is required")
	}

	store, err := blockfs.NewFSBlockStore(ctx, storeCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create filesystem block store: %w", err)
	}
	return store, nil
}

func createS3BlockStore(ctx context.Context, options map[string]any) (block.Store, error) {
	// Client and store settings share one flat section.
	type S3Options struct {
		blocks3.ClientConfig `mapstructure:",squash"`

		Bucket    string `mapstructure:"bucket"`
		KeyPrefix string `mapstructure:"key_prefix"`
	}

	var storeCfg S3Options
	if err := decode(options, &storeCfg); err != nil {
		return nil, fmt.Errorf("failed to decode S3 block store config: %w", err)
	}

	if storeCfg.Bucket == "" {
		return nil, fmt.Errorf("S3 block store: bucket is required")
	}

	client, err := blocks3.NewClient(ctx, storeCfg.ClientConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 client: %w", err)
	}

	store, err := blocks3.NewS3BlockStore(ctx, blocks3.S3BlockStoreConfig{
		Client:    client,
		Bucket:    storeCfg.Bucket,
		KeyPrefix: storeCfg.KeyPrefix,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 block store: %w", err)
	}

	logger.Info("S3 block store initialized: bucket=%s, region=%s, prefix=%s",
		storeCfg.Bucket, storeCfg.Region, storeCfg.KeyPrefix)

	return store, nil
}

// EngineOptions converts the namespace section into engine options.
func EngineOptions(cfg *NamespaceConfig, m metrics.NamespaceMetrics) []namespace.Option {
	return []namespace.Option{
		namespace.WithMetrics(m),
		namespace.WithLeaseTimeout(cfg.LeaseTimeout),
		namespace.WithWriteBufferSize(cfg.WriteBufferSize),
		namespace.WithLimits(namespace.Limits{
			MaxNameLen: cfg.MaxNameLen,
			MaxPathLen: cfg.MaxPathLen,
		}),
	}
}

// CreateEngine creates both stores and the namespace engine on top of them.
//
// The caller owns the returned node store and must Close it after the
// engine is no longer used.
func CreateEngine(ctx context.Context, cfg *Config, m metrics.NamespaceMetrics) (*namespace.Engine, metadata.NodeStore, block.Store, error) {
	nodes, err := CreateNodeStore(ctx, &cfg.Metadata)
	if err != nil {
		return nil, nil, nil, err
	}

	blocks, err := CreateBlockStore(ctx, &cfg.Blocks)
	if err != nil {
		_ = nodes.Close()
		return nil, nil, nil, err
	}

	engine, err := namespace.New(ctx, nodes, blocks, EngineOptions(&cfg.Namespace, m)...)
	if err != nil {
		_ = nodes.Close()
		return nil, nil, nil, err
	}

	return engine, nodes, blocks, nil
}
