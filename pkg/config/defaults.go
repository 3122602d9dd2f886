package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/marmos91/dittons/pkg/namespace"
)

// DefaultRESTPort is the port of the REST adapter when none is configured.
const DefaultRESTPort = 9870

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// Default Strategy:
//   - Zero values (0, "", false, nil) are replaced with defaults
//   - Explicit values are preserved
//   - Store-specific defaults are handled by store implementations
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyServerDefaults(&cfg.Server)
	applyNamespaceDefaults(&cfg.Namespace)
	applyMetadataDefaults(&cfg.Metadata)
	applyBlocksDefaults(&cfg.Blocks)
	applyGCDefaults(cfg)
	applyAdaptersDefaults(&cfg.Adapters)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// applyServerDefaults sets server defaults.
func applyServerDefaults(cfg *ServerConfig) {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	if cfg.Metrics.Port == 0 {
		cfg.Metrics.Port = 9090
	}
	if cfg.Telemetry.SampleRatio == 0 {
		cfg.Telemetry.SampleRatio = 1
	}
}

func applyNamespaceDefaults(cfg *NamespaceConfig) {
	limits := namespace.DefaultLimits()
	if cfg.MaxNameLen == 0 {
		cfg.MaxNameLen = limits.MaxNameLen
	}
	if cfg.MaxPathLen == 0 {
		cfg.MaxPathLen = limits.MaxPathLen
	}
	if cfg.WriteBufferSize == 0 {
		cfg.WriteBufferSize = namespace.DefaultWriteBufferSize
	}
}

// applyMetadataDefaults sets node store defaults.
func applyMetadataDefaults(cfg *MetadataConfig) {
	if cfg.Type == "" {
		cfg.Type = "memory"
	}

	if cfg.Memory == nil {
		cfg.Memory = make(map[string]any)
	}
	if cfg.Badger == nil {
		cfg.Badger = make(map[string]any)
	}

	if _, ok := cfg.Badger["db_path"]; !ok {
		cfg.Badger["db_path"] = filepath.Join(os.TempDir(), "dittons-metadata")
	}
}

// applyBlocksDefaults sets block store defaults.
func applyBlocksDefaults(cfg *BlocksConfig) {
	if cfg.Type == "" {
		cfg.Type = "filesystem"
	}

	if cfg.Memory == nil {
		cfg.Memory = make(map[string]any)
	}
	if cfg.Filesystem == nil {
		cfg.Filesystem = make(map[string]any)
	}
	if cfg.S3 == nil {
		cfg.S3 = make(map[string]any)
	}

	if _, ok := cfg.Filesystem["path"]; !ok {
		cfg.Filesystem["path"] = filepath.Join(os.TempDir(), "dittons-blocks")
	}
}

// applyGCDefaults sets collector defaults. Enabled is defaulted in Load so
// an explicit false survives.
func applyGCDefaults(cfg *Config) {
	if cfg.GC.Interval == 0 {
		cfg.GC.Interval = 24 * time.Hour
	}
	if cfg.GC.BatchSize == 0 {
		cfg.GC.BatchSize = 1000
	}
}

// applyAdaptersDefaults sets adapter defaults.
func applyAdaptersDefaults(cfg *AdaptersConfig) {
	if cfg.REST.Port == 0 {
		cfg.REST.Port = DefaultRESTPort
	}
	if cfg.REST.ReadTimeout == 0 {
		cfg.REST.ReadTimeout = 5 * time.Minute
	}
	if cfg.REST.WriteTimeout == 0 {
		cfg.REST.WriteTimeout = 5 * time.Minute
	}
	if cfg.REST.IdleTimeout == 0 {
		cfg.REST.IdleTimeout = 2 * time.Minute
	}
	if cfg.REST.ShutdownTimeout == 0 {
		cfg.REST.ShutdownTimeout = 30 * time.Second
	}
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// This is used by the init command to generate a configuration file.
func GetDefaultConfig() *Config {
	cfg := &Config{
		Adapters: AdaptersConfig{},
	}
	cfg.Adapters.REST.Enabled = true
	cfg.GC.Enabled = true

	ApplyDefaults(cfg)
	return cfg
}
