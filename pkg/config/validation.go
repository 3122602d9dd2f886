package config

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate validates the configuration using struct tags and custom rules.
//
// Log level normalization is handled in ApplyDefaults, not here.
// Validation accepts both uppercase and lowercase log levels.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	if err := validateCustomRules(cfg); err != nil {
		return err
	}

	return nil
}

// validateCustomRules performs custom validation beyond struct tags.
func validateCustomRules(cfg *Config) error {
	if !cfg.Adapters.REST.Enabled {
		return fmt.Errorf("adapters: at least one adapter must be enabled")
	}

	if cfg.Server.Metrics.Enabled && cfg.Server.Metrics.Port == cfg.Adapters.REST.Port {
		return fmt.Errorf("server.metrics.port: port %d is already used by the REST adapter", cfg.Server.Metrics.Port)
	}

	switch cfg.Metadata.Type {
	case "badger":
		if path, _ := cfg.Metadata.Badger["db_path"].(string); path == "" {
			if inMem, _ := cfg.Metadata.Badger["in_memory"].(bool); !inMem {
				return fmt.Errorf("metadata.badger: db_path is required unless in_memory is set")
			}
		}
	}

	switch cfg.Blocks.Type {
	case "filesystem":
		if path, _ := cfg.Blocks.Filesystem["path"].(string); path == "" {
			return fmt.Errorf("blocks.filesystem: path is required")
		}
	case "s3":
		if bucket, _ := cfg.Blocks.S3["bucket"].(string); bucket == "" {
			return fmt.Errorf("blocks.s3: bucket is required")
		}
	}

	return nil
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
		e := validationErrs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
			e.Namespace(), e.Tag(), e.Value())
	}
	return err
}
