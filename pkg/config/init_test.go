package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

// useTempConfigDir points the default config location at a fresh directory.
func useTempConfigDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	return filepath.Join(dir, "dittons")
}

func TestInitConfig_Success(t *testing.T) {
	dir := useTempConfigDir(t)

	configPath, err := InitConfig(false)
	if err != nil {
		t.Fatalf("InitConfig failed: %v", err)
	}
	if filepath.Dir(configPath) != dir {
		t.Errorf("Expected config under %s, got %s", dir, configPath)
	}

	content, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("Failed to read config file: %v", err)
	}

	contentStr := string(content)
	expectedSections := []string{
		"# DittoNS Configuration File",
		"logging:",
		"namespace:",
		"metadata:",
		"blocks:",
		"gc:",
		"adapters:",
	}
	for _, section := range expectedSections {
		if !strings.Contains(contentStr, section) {
			t.Errorf("Config file missing section: %s", section)
		}
	}

	var cfg Config
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		t.Fatalf("Generated config is not valid YAML: %v", err)
	}
}

func TestInitConfig_AlreadyExists(t *testing.T) {
	useTempConfigDir(t)

	if _, err := InitConfig(false); err != nil {
		t.Fatalf("First InitConfig failed: %v", err)
	}

	_, err := InitConfig(false)
	if err == nil {
		t.Fatal("Expected error when config already exists")
	}
	if !strings.Contains(err.Error(), "already exists") {
		t.Errorf("Expected 'already exists' error, got: %v", err)
	}
}

func TestInitConfig_ForceOverwrite(t *testing.T) {
	useTempConfigDir(t)

	configPath, err := InitConfig(false)
	if err != nil {
		t.Fatalf("First InitConfig failed: %v", err)
	}

	if err := os.WriteFile(configPath, []byte("# Modified"), 0644); err != nil {
		t.Fatalf("Failed to modify config: %v", err)
	}

	newPath, err := InitConfig(true)
	if err != nil {
		t.Fatalf("Force InitConfig failed: %v", err)
	}
	if newPath != configPath {
		t.Errorf("Expected same path, got different: %s vs %s", configPath, newPath)
	}

	content, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("Failed to read config: %v", err)
	}
	if !strings.Contains(string(content), "# DittoNS Configuration File") {
		t.Error("Config file was not properly overwritten")
	}
}

func TestInitConfigToPath_AlreadyExists(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")

	if err := os.WriteFile(configPath, []byte("existing"), 0644); err != nil {
		t.Fatalf("Failed to create existing file: %v", err)
	}

	err := InitConfigToPath(configPath, false)
	if err == nil {
		t.Fatal("Expected error when file already exists")
	}
	if !strings.Contains(err.Error(), "already exists") {
		t.Errorf("Expected 'already exists' error, got: %v", err)
	}
}

func TestGenerateYAMLWithComments_ValidConfig(t *testing.T) {
	out, err := generateYAMLWithComments(GetDefaultConfig())
	if err != nil {
		t.Fatalf("generateYAMLWithComments failed: %v", err)
	}

	if !strings.Contains(out, "# Block store holding file content") {
		t.Error("Generated YAML should carry section comments")
	}
	if !strings.Contains(out, "INFO") {
		t.Error("Generated YAML should contain default INFO log level")
	}
	if !strings.Contains(out, "9870") {
		t.Error("Generated YAML should contain default REST port 9870")
	}
	if !strings.Contains(out, "shutdown_timeout: 30s") {
		t.Error("Generated YAML should render durations as strings")
	}
}

func TestGeneratedConfigValuesAreCorrect(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "custom", "dittons.yaml")

	if err := InitConfigToPath(configPath, false); err != nil {
		t.Fatalf("Failed to generate config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	want := GetDefaultConfig()
	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected INFO log level in generated config, got %q", cfg.Logging.Level)
	}
	if cfg.Adapters.REST.Port != want.Adapters.REST.Port {
		t.Errorf("Expected port %d in generated config, got %d", want.Adapters.REST.Port, cfg.Adapters.REST.Port)
	}
	if cfg.Adapters.REST.ReadTimeout != want.Adapters.REST.ReadTimeout {
		t.Errorf("Expected read_timeout %v, got %v", want.Adapters.REST.ReadTimeout, cfg.Adapters.REST.ReadTimeout)
	}
	if cfg.Blocks.Filesystem["path"] != want.Blocks.Filesystem["path"] {
		t.Errorf("Expected blocks path %v, got %v", want.Blocks.Filesystem["path"], cfg.Blocks.Filesystem["path"])
	}
	if cfg.GC.Interval != want.GC.Interval {
		t.Errorf("Expected gc interval %v, got %v", want.GC.Interval, cfg.GC.Interval)
	}
}

func TestGenerateSchema(t *testing.T) {
	out, err := GenerateSchema()
	if err != nil {
		t.Fatalf("GenerateSchema failed: %v", err)
	}

	var schema map[string]any
	if err := json.Unmarshal(out, &schema); err != nil {
		t.Fatalf("Schema is not valid JSON: %v", err)
	}
	if schema["title"] != "DittoNS Configuration" {
		t.Errorf("Unexpected schema title: %v", schema["title"])
	}

	props, ok := schema["properties"].(map[string]any)
	if !ok {
		t.Fatal("Expected schema properties")
	}
	for _, key := range []string{"logging", "server", "namespace", "metadata", "blocks", "gc", "adapters"} {
		if _, ok := props[key]; !ok {
			t.Errorf("Schema missing property %q", key)
		}
	}
}
