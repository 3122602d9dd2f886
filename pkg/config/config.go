package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/marmos91/dittons/internal/telemetry"
	"github.com/marmos91/dittons/pkg/adapter/rest"
	"github.com/marmos91/dittons/pkg/gc"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment variable overrides, e.g.
// DITTONS_LOGGING_LEVEL=DEBUG.
const EnvPrefix = "DITTONS"

// Config represents the complete DittoNS configuration.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (DITTONS_*)
//  2. Configuration file (YAML)
//  3. Default values
//
// Store Configuration Pattern:
// Each store implementation defines its own configuration type. The Config
// struct carries type-specific sections (e.g. blocks.filesystem, blocks.s3)
// and only the section matching the selected type is decoded.
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Server contains server-wide settings
	Server ServerConfig `mapstructure:"server" yaml:"server"`

	// Namespace tunes the namespace engine
	Namespace NamespaceConfig `mapstructure:"namespace" yaml:"namespace"`

	// Metadata selects and configures the node store
	Metadata MetadataConfig `mapstructure:"metadata" yaml:"metadata"`

	// Blocks selects and configures the block store
	Blocks BlocksConfig `mapstructure:"blocks" yaml:"blocks"`

	// GC configures the orphan block collector
	GC gc.Config `mapstructure:"gc" yaml:"gc"`

	// Adapters contains protocol adapter configurations
	Adapters AdaptersConfig `mapstructure:"adapters" yaml:"adapters"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" yaml:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" yaml:"format" validate:"required,oneof=text json"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" yaml:"output" validate:"required"`
}

// ServerConfig contains server-wide settings.
type ServerConfig struct {
	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" validate:"required,gt=0"`

	// Metrics configures the Prometheus endpoint
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// Telemetry configures OpenTelemetry tracing
	Telemetry telemetry.Config `mapstructure:"telemetry" yaml:"telemetry"`
}

// MetricsConfig configures the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	Port    int  `mapstructure:"port" yaml:"port" validate:"omitempty,min=1,max=65535"`
}

// NamespaceConfig tunes the namespace engine.
type NamespaceConfig struct {
	// LeaseTimeout lets an overwrite take over a write lease older than this.
	// 0 disables expiry.
	LeaseTimeout time.Duration `mapstructure:"lease_timeout" yaml:"lease_timeout" validate:"min=0"`

	// WriteBufferSize caps the in-memory buffer of one write handle, in bytes.
	WriteBufferSize int `mapstructure:"write_buffer_size" yaml:"write_buffer_size" validate:"required,min=1"`

	// MaxNameLen is the maximum length of one path segment.
	MaxNameLen int `mapstructure:"max_name_len" yaml:"max_name_len" validate:"required,min=1"`

	// MaxPathLen is the maximum length of a canonical path.
	MaxPathLen int `mapstructure:"max_path_len" yaml:"max_path_len" validate:"required,gtefield=MaxNameLen"`
}

// MetadataConfig specifies node store configuration.
//
// The Type field determines which store implementation is used.
// Only the corresponding type-specific configuration section is used.
type MetadataConfig struct {
	// Type specifies which node store implementation to use
	// Valid values: memory, badger
	Type string `mapstructure:"type" yaml:"type" validate:"required,oneof=memory badger"`

	// Memory contains memory-specific configuration
	Memory map[string]any `mapstructure:"memory" yaml:"memory,omitempty"`

	// Badger contains BadgerDB-specific configuration
	Badger map[string]any `mapstructure:"badger" yaml:"badger,omitempty"`
}

// BlocksConfig specifies block store configuration.
type BlocksConfig struct {
	// Type specifies which block store implementation to use
	// Valid values: memory, filesystem, s3
	Type string `mapstructure:"type" yaml:"type" validate:"required,oneof=memory filesystem s3"`

	Memory     map[string]any `mapstructure:"memory" yaml:"memory,omitempty"`
	Filesystem map[string]any `mapstructure:"filesystem" yaml:"filesystem,omitempty"`
	S3         map[string]any `mapstructure:"s3" yaml:"s3,omitempty"`
}

// AdaptersConfig contains all protocol adapter configurations.
type AdaptersConfig struct {
	// REST contains the HTTP adapter configuration.
	REST rest.RESTConfig `mapstructure:"rest" yaml:"rest"`
}

// Load loads configuration from file, environment, and defaults.
//
// A missing config file is not an error: defaults and environment
// variables are used instead.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv only sees keys viper already knows about. Binding the
	// scalar keys lets an environment variable set a value absent from
	// the file.
	for _, key := range envKeys {
		_ = v.BindEnv(key)
	}

	// Booleans that default to true cannot be filled in by ApplyDefaults.
	v.SetDefault("adapters.rest.enabled", true)
	v.SetDefault("gc.enabled", true)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

var envKeys = []string{
	"logging.level",
	"logging.format",
	"logging.output",
	"server.shutdown_timeout",
	"server.metrics.enabled",
	"server.metrics.port",
	"server.telemetry.enabled",
	"server.telemetry.endpoint",
	"server.telemetry.insecure",
	"server.telemetry.sample_ratio",
	"namespace.lease_timeout",
	"namespace.write_buffer_size",
	"metadata.type",
	"blocks.type",
	"gc.enabled",
	"gc.interval",
	"gc.dry_run",
	"gc.release_rate",
	"adapters.rest.enabled",
	"adapters.rest.port",
}

// readConfigFile reads the configuration file if it exists.
func readConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		// An explicit path that does not exist is reported as a plain
		// fs error, not ConfigFileNotFoundError.
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	return nil
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to current
// directory (.) if home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "dittons")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "dittons")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// ConfigExists checks if a config file exists at the default location.
func ConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path (exposed for init command).
func GetConfigDir() string {
	return getConfigDir()
}
