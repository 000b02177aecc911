package rasp

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/raspguard/internal/alert"
	"github.com/ppiankov/raspguard/internal/audit"
	"github.com/ppiankov/raspguard/internal/shell"
)

// Config is the module configuration.
type Config struct {
	AuditPath    string              `yaml:"audit_path"`
	DenylistPath string              `yaml:"denylist_path"`
	Hooks        []string            `yaml:"hooks"`
	Strict       bool                `yaml:"strict"`
	Alerts       []alert.AlertConfig `yaml:"alerts"`
}

// DefaultConfig hooks all six process-spawning operations and writes to
// the default audit sink.
func DefaultConfig() *Config {
	hooks := make([]string, len(shell.Operations))
	copy(hooks, shell.Operations)
	return &Config{
		AuditPath: audit.DefaultPath,
		Hooks:     hooks,
	}
}

// LoadConfig reads configuration from a YAML file.
// If path is empty, uses ~/.raspguard/config.yaml.
// If the file does not exist, returns DefaultConfig().
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return DefaultConfig(), nil
		}
		path = filepath.Join(home, ".raspguard", "config.yaml")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	// Start with defaults, YAML overwrites only specified fields
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.AuditPath == "" {
		cfg.AuditPath = audit.DefaultPath
	}

	return cfg, nil
}

// DefaultConfigYAML renders DefaultConfig with a short header, for
// writing a starter configuration file.
func DefaultConfigYAML() (string, error) {
	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return "", err
	}
	header := "# raspguard configuration.\n" +
		"# hooks: functions intercepted at load. strict: abort when one cannot be installed.\n" +
		"# alerts: webhooks notified on blocked, sink_failure or hook_failure events.\n"
	return header + string(data), nil
}
