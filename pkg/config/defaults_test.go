package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/marmos91/dittons/pkg/namespace"
)

func TestApplyDefaults_Logging(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected default log level 'INFO', got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Expected default log format 'text', got %q", cfg.Logging.Format)
	}
	if cfg.Logging.Output != "stdout" {
		t.Errorf("Expected default log output 'stdout', got %q", cfg.Logging.Output)
	}
}

func TestApplyDefaults_Server(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Server.ShutdownTimeout != 30*time.Second {
		t.Errorf("Expected default shutdown timeout 30s, got %v", cfg.Server.ShutdownTimeout)
	}
	if cfg.Server.Metrics.Port != 9090 {
		t.Errorf("Expected default metrics port 9090, got %d", cfg.Server.Metrics.Port)
	}
	if cfg.Server.Metrics.Enabled {
		t.Error("Expected metrics disabled by default")
	}
	if cfg.Server.Telemetry.SampleRatio != 1 {
		t.Errorf("Expected default sample ratio 1, got %v", cfg.Server.Telemetry.SampleRatio)
	}
}

func TestApplyDefaults_Namespace(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	limits := namespace.DefaultLimits()
	if cfg.Namespace.MaxNameLen != limits.MaxNameLen {
		t.Errorf("Expected max_name_len %d, got %d", limits.MaxNameLen, cfg.Namespace.MaxNameLen)
	}
	if cfg.Namespace.MaxPathLen != limits.MaxPathLen {
		t.Errorf("Expected max_path_len %d, got %d", limits.MaxPathLen, cfg.Namespace.MaxPathLen)
	}
	if cfg.Namespace.WriteBufferSize != namespace.DefaultWriteBufferSize {
		t.Errorf("Expected write_buffer_size %d, got %d", namespace.DefaultWriteBufferSize, cfg.Namespace.WriteBufferSize)
	}
	if cfg.Namespace.LeaseTimeout != 0 {
		t.Errorf("Expected leases to never expire by default, got %v", cfg.Namespace.LeaseTimeout)
	}
}

func TestApplyDefaults_Blocks(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Blocks.Type != "filesystem" {
		t.Errorf("Expected default blocks type 'filesystem', got %q", cfg.Blocks.Type)
	}
	if cfg.Blocks.Filesystem == nil {
		t.Fatal("Expected Filesystem map to be initialized")
	}
	want := filepath.Join(os.TempDir(), "dittons-blocks")
	if path := cfg.Blocks.Filesystem["path"]; path != want {
		t.Errorf("Expected default filesystem path %q, got %v", want, path)
	}
	if cfg.Blocks.Memory == nil || cfg.Blocks.S3 == nil {
		t.Error("Expected Memory and S3 maps to be initialized")
	}
}

func TestApplyDefaults_Metadata(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Metadata.Type != "memory" {
		t.Errorf("Expected default metadata type 'memory', got %q", cfg.Metadata.Type)
	}
	if cfg.Metadata.Badger == nil {
		t.Fatal("Expected Badger map to be initialized")
	}
	if _, ok := cfg.Metadata.Badger["db_path"]; !ok {
		t.Error("Expected default badger db_path")
	}
}

func TestApplyDefaults_GC(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.GC.Interval != 24*time.Hour {
		t.Errorf("Expected default gc interval 24h, got %v", cfg.GC.Interval)
	}
	if cfg.GC.BatchSize != 1000 {
		t.Errorf("Expected default gc batch size 1000, got %d", cfg.GC.BatchSize)
	}
}

func TestApplyDefaults_REST(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	rest := cfg.Adapters.REST
	if rest.Port != 9870 {
		t.Errorf("Expected default REST port 9870, got %d", rest.Port)
	}
	if rest.ReadTimeout != 5*time.Minute {
		t.Errorf("Expected default read_timeout 5m, got %v", rest.ReadTimeout)
	}
	if rest.WriteTimeout != 5*time.Minute {
		t.Errorf("Expected default write_timeout 5m, got %v", rest.WriteTimeout)
	}
	if rest.IdleTimeout != 2*time.Minute {
		t.Errorf("Expected default idle_timeout 2m, got %v", rest.IdleTimeout)
	}
	if rest.ShutdownTimeout != 30*time.Second {
		t.Errorf("Expected default shutdown_timeout 30s, got %v", rest.ShutdownTimeout)
	}
}

func TestApplyDefaults_PreservesExplicitValues(t *testing.T) {
	cfg := &Config{
		Logging: LoggingConfig{
			Level:  "debug",
			Format: "json",
			Output: "/var/log/dittons.log",
		},
		Server: ServerConfig{
			ShutdownTimeout: 10 * time.Second,
		},
		Blocks: BlocksConfig{
			Type:       "filesystem",
			Filesystem: map[string]any{"path": "/data/blocks"},
		},
	}
	cfg.Adapters.REST.Port = 8080

	ApplyDefaults(cfg)

	if cfg.Logging.Level != "DEBUG" {
		t.Errorf("Expected level normalized to 'DEBUG', got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Expected format 'json', got %q", cfg.Logging.Format)
	}
	if cfg.Logging.Output != "/var/log/dittons.log" {
		t.Errorf("Expected output preserved, got %q", cfg.Logging.Output)
	}
	if cfg.Server.ShutdownTimeout != 10*time.Second {
		t.Errorf("Expected shutdown timeout 10s, got %v", cfg.Server.ShutdownTimeout)
	}
	if cfg.Blocks.Filesystem["path"] != "/data/blocks" {
		t.Errorf("Expected filesystem path preserved, got %v", cfg.Blocks.Filesystem["path"])
	}
	if cfg.Adapters.REST.Port != 8080 {
		t.Errorf("Expected REST port 8080, got %d", cfg.Adapters.REST.Port)
	}
}

func TestGetDefaultConfig_IsValid(t *testing.T) {
	cfg := GetDefaultConfig()

	if err := Validate(cfg); err != nil {
		t.Fatalf("Default config should be valid, got: %v", err)
	}
}
