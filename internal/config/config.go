// Package config loads sweep settings for nadir host programs from YAML.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/alexshd/nadir"
)

// Config is the on-disk sweep configuration.
type Config struct {
	Repeats     int                 `yaml:"repeats"`
	Parallelism int                 `yaml:"parallelism"`
	LogLevel    string              `yaml:"log_level"`
	Output      Output              `yaml:"output"`
	Domains     map[string][]string `yaml:"domains"`
}

// Output selects where the table is written.
type Output struct {
	Path    string `yaml:"path"`
	Package string `yaml:"package"` // for generated .go output
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	def := nadir.DefaultConfig()
	return &Config{
		Repeats:     def.Repeats,
		Parallelism: def.Parallelism,
		LogLevel:    "info",
		Output:      Output{Path: nadir.DefaultOutputPath},
	}
}

// Load reads and validates a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML over Default() and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config yaml: %w", err)
	}
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func validate(cfg *Config) error {
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[cfg.LogLevel] {
		return fmt.Errorf("invalid log_level: %s (must be debug, info, warn, or error)", cfg.LogLevel)
	}
	if cfg.Repeats < 1 {
		return fmt.Errorf("repeats must be positive, got %d", cfg.Repeats)
	}
	if cfg.Parallelism < 1 {
		return fmt.Errorf("parallelism must be positive, got %d", cfg.Parallelism)
	}
	if cfg.Output.Path == "" {
		return fmt.Errorf("output.path cannot be empty")
	}
	switch strings.ToLower(filepath.Ext(cfg.Output.Path)) {
	case ".csv", ".yaml", ".yml", ".go":
	default:
		return fmt.Errorf("output.path %s: extension must be .csv, .yaml, .yml or .go", cfg.Output.Path)
	}
	for name, values := range cfg.Domains {
		if len(values) == 0 {
			return fmt.Errorf("domains.%s cannot be empty", name)
		}
	}
	return nil
}

// RunnerConfig converts the file settings to a nadir.Config.
func (c *Config) RunnerConfig() nadir.Config {
	cfg := nadir.DefaultConfig()
	cfg.Repeats = c.Repeats
	cfg.Parallelism = c.Parallelism
	return cfg
}

// Apply overrides the runner's repeats and the domains named in the file.
// Domain values are parsed per slot kind: numbers for numeric slots, labels
// for enumerated ones.
func (c *Config) Apply(r *nadir.Runner) error {
	if err := r.SetRepeats(c.Repeats); err != nil {
		return err
	}
	d := r.Domain()
	for name, texts := range c.Domains {
		slot, ok := d.Slot(name)
		if !ok {
			return fmt.Errorf("domains.%s: no such parameter", name)
		}
		spec := d.Spec(slot)
		values := make([]nadir.Value, len(texts))
		for i, text := range texts {
			v, err := spec.Parse(text)
			if err != nil {
				return fmt.Errorf("domains.%s: %w", name, err)
			}
			values[i] = v
		}
		if err := r.SetParameterDomain(slot, values...); err != nil {
			return fmt.Errorf("domains.%s: %w", name, err)
		}
	}
	return nil
}
