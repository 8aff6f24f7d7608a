// Package config holds the tool configuration for the asfq pipeline: where
// fragments live, where output goes, and pipeline-wide settings such as the
// safe placeholder names. This is the tool's own configuration, distinct
// from the experiment configuration the pipeline assembles.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config holds all asfq configuration.
type Config struct {
	// ProjectRoot anchors relative paths: fragment files, extended
	// header/tailer files, output directories.
	ProjectRoot string `yaml:"project_root"`

	// Fragments controls configuration input.
	Fragments FragmentsConfig `yaml:"fragments"`

	// Output controls where assembled artifacts land.
	Output OutputConfig `yaml:"output"`

	// SafePlaceholders are key names exempt from substitution, left as
	// literal marker text for a later runtime to fill in.
	SafePlaceholders []string `yaml:"safe_placeholders"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// FragmentsConfig selects the configuration fragments and their order.
type FragmentsConfig struct {
	// Dir is scanned for *.yml / *.yaml, sorted by name, when Files is
	// empty.
	Dir string `yaml:"dir"`

	// Files, when set, is the explicit load order and wins over Dir.
	Files []string `yaml:"files"`
}

// OutputConfig controls assembled artifact locations.
type OutputConfig struct {
	Dir            string `yaml:"dir"`
	ExperimentFile string `yaml:"experiment_file"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=json text"`
	File   string `yaml:"file"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		ProjectRoot: ".",
		Fragments: FragmentsConfig{
			Dir: "conf",
		},
		Output: OutputConfig{
			Dir:            "output",
			ExperimentFile: "experiment_data.yml",
		},
		SafePlaceholders: []string{"CURRENT_PROJECT"},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from a YAML file, falling back to defaults
// when the file does not exist. Environment variables override file
// values.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("ASFQ_PROJECT_ROOT"); v != "" {
		c.ProjectRoot = v
	}
	if v := os.Getenv("ASFQ_FRAGMENTS_DIR"); v != "" {
		c.Fragments.Dir = v
	}
	if v := os.Getenv("ASFQ_OUTPUT_DIR"); v != "" {
		c.Output.Dir = v
	}
	if v := os.Getenv("ASFQ_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("ASFQ_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
}

// Validate checks the configuration for structural problems before the
// pipeline runs.
func (c *Config) Validate() error {
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Fragments.Dir == "" && len(c.Fragments.Files) == 0 {
		return fmt.Errorf("invalid configuration: no fragment source (set fragments.dir or fragments.files)")
	}
	return nil
}

// resolvePath anchors a relative path at the project root.
func (c *Config) resolvePath(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(c.ProjectRoot, path)
}

// FragmentsDir returns the fragment directory anchored at the project root.
func (c *Config) FragmentsDir() string {
	return c.resolvePath(c.Fragments.Dir)
}

// FragmentFiles returns the explicit fragment list anchored at the
// project root; empty when directory discovery should run instead.
func (c *Config) FragmentFiles() []string {
	if len(c.Fragments.Files) == 0 {
		return nil
	}
	files := make([]string, len(c.Fragments.Files))
	for i, f := range c.Fragments.Files {
		files[i] = c.resolvePath(f)
	}
	return files
}

// OutputDir returns the output directory anchored at the project root.
func (c *Config) OutputDir() string {
	return c.resolvePath(c.Output.Dir)
}

// ExperimentFilePath returns the experiment document path under the
// output directory.
func (c *Config) ExperimentFilePath() string {
	return filepath.Join(c.OutputDir(), c.Output.ExperimentFile)
}
