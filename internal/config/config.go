// Package config loads ecovet configuration from YAML with environment
// overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// DefaultPath is where ecovet looks for its config file
const DefaultPath = ".ecovet/config.yaml"

// Config represents the ecovet configuration loaded from YAML.
type Config struct {
	// DatabasePath is the SQLite database location
	DatabasePath string `yaml:"database_path"`

	// FileRoot is the directory evidence files are served from
	FileRoot string `yaml:"file_root"`

	// Pipeline settings
	Pipeline PipelineConfig `yaml:"pipeline"`

	// Analyzer settings
	Analyzer AnalyzerConfig `yaml:"analyzer"`
}

// PipelineConfig configures evidence processing.
type PipelineConfig struct {
	// MaxConcurrent caps simultaneous analyzer calls (default: 5)
	MaxConcurrent int `yaml:"max_concurrent"`

	// StaleAfter is how long a submission may sit in processing before a
	// requeue pass reclaims it, e.g. "1h" (default: 1h)
	StaleAfter string `yaml:"stale_after"`
}

// AnalyzerConfig configures the document analyzer client.
type AnalyzerConfig struct {
	// Model overrides the analysis model
	Model string `yaml:"model,omitempty"`

	// MaxRetries for transient analyzer failures (default: 3)
	MaxRetries int `yaml:"max_retries"`

	// RequestsPerSecond caps the analyzer request rate (default: 2)
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

// Default returns the default configuration
func Default() *Config {
	return &Config{
		DatabasePath: ".ecovet/ecovet.db",
		FileRoot:     ".ecovet/files",
		Pipeline: PipelineConfig{
			MaxConcurrent: 5,
			StaleAfter:    "1h",
		},
		Analyzer: AnalyzerConfig{
			MaxRetries:        3,
			RequestsPerSecond: 2,
		},
	}
}

// Load reads configuration from path, starting from defaults. A missing file
// is not an error; the defaults are used. Environment variables override the
// file:
//   - ECOVET_DB: database path
//   - ECOVET_FILE_ROOT: evidence file root
//   - ECOVET_MAX_CONCURRENT: pipeline concurrency ceiling
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = DefaultPath
	}
	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing YAML: %w", err)
		}
	}

	if db := os.Getenv("ECOVET_DB"); db != "" {
		cfg.DatabasePath = db
	}
	if root := os.Getenv("ECOVET_FILE_ROOT"); root != "" {
		cfg.FileRoot = root
	}
	if raw := os.Getenv("ECOVET_MAX_CONCURRENT"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("invalid ECOVET_MAX_CONCURRENT %q", raw)
		}
		cfg.Pipeline.MaxConcurrent = n
	}

	if cfg.Pipeline.MaxConcurrent < 1 {
		return nil, fmt.Errorf("pipeline.max_concurrent must be at least 1")
	}

	return cfg, nil
}

// Save writes the configuration to path, creating parent directories
func Save(cfg *Config, path string) error {
	if path == "" {
		path = DefaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
