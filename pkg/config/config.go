package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ConfigFileName is the name of the configuration file inside the user config directory.
const ConfigFileName = "msiextract.yaml"

// Configuration holds the configurable options for msiextract in YAML format
type Configuration struct {
	LogLevel string `yaml:"log_level"`
	LogFile  string `yaml:"log_file,omitempty"`
	Debug    bool   `yaml:"debug"`
	Verbose  bool   `yaml:"verbose"`

	// WorkDir is where embedded and external cabinets are materialized
	// during an extraction. Empty means the system temp directory.
	WorkDir   string `yaml:"work_dir,omitempty"`
	OutputDir string `yaml:"output_dir,omitempty"`

	DeleteRetries         int `yaml:"delete_retries"`
	DeleteRetryIntervalMs int `yaml:"delete_retry_interval_ms"`
}

// DefaultConfigPath returns the per-user location of the configuration file.
func DefaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ConfigFileName
	}
	return filepath.Join(dir, "msiextract", ConfigFileName)
}

// LoadConfig loads the configuration from a YAML file.
// A missing file is not an error; the defaults are returned instead.
func LoadConfig(path string) (*Configuration, error) {
	cfg := GetDefaultConfig()

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %s: %w", path, err)
	}
	if cfg.DeleteRetries < 1 {
		cfg.DeleteRetries = 1
	}
	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(path string, cfg *Configuration) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to serialize configuration: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create configuration directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write configuration file: %w", err)
	}
	return nil
}

// GetDefaultConfig provides default configuration values
func GetDefaultConfig() *Configuration {
	return &Configuration{
		LogLevel:              "INFO",
		Debug:                 false,
		Verbose:               false,
		WorkDir:               "",
		OutputDir:             ".",
		DeleteRetries:         3,
		DeleteRetryIntervalMs: 100,
	}
}
