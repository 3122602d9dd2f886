package config

import (
	"strings"
	"testing"
	"time"
)

func TestValidate_ValidConfig(t *testing.T) {
	cfg := GetDefaultConfig()

	if err := Validate(cfg); err != nil {
		t.Errorf("Expected valid config to pass validation, got error: %v", err)
	}
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Logging.Level = "INVALID"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for invalid log level")
	}
	if !strings.Contains(err.Error(), "oneof") {
		t.Errorf("Expected 'oneof' validation error, got: %v", err)
	}
}

func TestValidate_InvalidLogFormat(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Logging.Format = "xml"

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for invalid log format")
	}
}

func TestValidate_InvalidBlocksType(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Blocks.Type = "invalid"

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for invalid blocks type")
	}
}

func TestValidate_InvalidMetadataType(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Metadata.Type = "postgres"

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for unimplemented metadata type")
	}
}

func TestValidate_InvalidRESTPort(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Adapters.REST.Port = 70000

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for port > 65535")
	}
}

func TestValidate_NegativeTimeout(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Adapters.REST.ReadTimeout = -1 * time.Second

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for negative timeout")
	}
}

func TestValidate_InvalidShutdownTimeout(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Server.ShutdownTimeout = 0

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for zero shutdown timeout")
	}
	if !strings.Contains(err.Error(), "ShutdownTimeout") {
		t.Errorf("Expected error to name the field, got: %v", err)
	}
}

func TestValidate_NoAdaptersEnabled(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Adapters.REST.Enabled = false

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error when no adapters enabled")
	}
	if !strings.Contains(err.Error(), "at least one adapter") {
		t.Errorf("Expected 'at least one adapter' error, got: %v", err)
	}
}

func TestValidate_MetricsPortConflict(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Server.Metrics.Enabled = true
	cfg.Server.Metrics.Port = cfg.Adapters.REST.Port

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for metrics port clash")
	}
}

func TestValidate_TelemetryRequiresEndpoint(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Server.Telemetry.Enabled = true

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for telemetry without endpoint")
	}

	cfg.Server.Telemetry.Endpoint = "localhost:4318"
	if err := Validate(cfg); err != nil {
		t.Errorf("Expected valid telemetry config, got: %v", err)
	}
}

func TestValidate_SampleRatioRange(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Server.Telemetry.SampleRatio = 1.5

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for sample ratio > 1")
	}
}

func TestValidate_PathLimits(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Namespace.MaxNameLen = 300
	cfg.Namespace.MaxPathLen = 200

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for max_path_len below max_name_len")
	}
}

func TestValidate_S3RequiresBucket(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Blocks.Type = "s3"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for s3 without bucket")
	}
	if !strings.Contains(err.Error(), "bucket is required") {
		t.Errorf("Expected 'bucket is required' error, got: %v", err)
	}
}

func TestValidate_BadgerRequiresPath(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Metadata.Type = "badger"
	cfg.Metadata.Badger = map[string]any{}

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for badger without db_path")
	}

	cfg.Metadata.Badger["in_memory"] = true
	if err := Validate(cfg); err != nil {
		t.Errorf("Expected in-memory badger to be valid, got: %v", err)
	}
}

func TestValidate_LogLevelNormalization(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"debug", "DEBUG"},
		{"info", "INFO"},
		{"WARN", "WARN"},
		{"Error", "ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			cfg := &Config{Logging: LoggingConfig{Level: tt.input}}
			cfg.Adapters.REST.Enabled = true
			ApplyDefaults(cfg)

			if cfg.Logging.Level != tt.expected {
				t.Errorf("Expected level %q, got %q", tt.expected, cfg.Logging.Level)
			}
			if err := Validate(cfg); err != nil {
				t.Errorf("Expected normalized config to validate, got: %v", err)
			}
		})
	}
}
