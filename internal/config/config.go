// Package config resolves run settings from the ecoval rc file and the
// environment.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"
)

// File names searched for, in order, in the working then home directory.
var rcNames = []string{".ecovalrc", "ecovalrc"}

// Config holds the settings shared by every stage of a run.
type Config struct {
	// DataDir holds the observation products and reference grids.
	DataDir string
	// OutDir receives matchup files and the grid cache.
	OutDir string
	// ReportPath is the markdown report appended during a run.
	ReportPath string
	// Overwrite regenerates matchups that already exist.
	Overwrite bool
	// Levels is the directory depth of model files below the model root.
	Levels int
	// LogLevel is a logrus level name.
	LogLevel string
	// Source is the rc file the settings came from, if any.
	Source string
}

// Default returns the settings used when nothing is configured.
func Default() *Config {
	return &Config{
		OutDir:     "matched",
		ReportPath: "matchup_report.md",
		LogLevel:   "info",
	}
}

// Find returns the first rc file in wd then home, or "" if there is none.
func Find(wd, home string) string {
	for _, dir := range []string{wd, home} {
		if dir == "" {
			continue
		}
		for _, name := range rcNames {
			p := filepath.Join(dir, name)
			if info, err := os.Stat(p); err == nil && !info.IsDir() {
				return p
			}
		}
	}
	return ""
}

// Load resolves the configuration for a run started in the current
// directory: defaults, then the rc file, then ECOVAL_* environment
// variables.
func Load() (*Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}
	home, _ := os.UserHomeDir()
	return LoadFrom(wd, home)
}

// LoadFrom is Load with explicit search directories.
func LoadFrom(wd, home string) (*Config, error) {
	cfg := Default()
	if path := Find(wd, home); path != "" {
		//nolint:gosec // G304: rc file location is fixed.
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		if err := cfg.apply(data); err != nil {
			return nil, fmt.Errorf("invalid config %s: %w", path, err)
		}
		cfg.Source = path
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// apply merges "key: value" settings. Values are loosely typed.
func (c *Config) apply(data []byte) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to parse settings: %w", err)
	}
	for key, val := range raw {
		if err := c.set(key, val); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) applyEnv() error {
	for _, key := range []string{"data_dir", "out_dir", "report", "overwrite", "levels", "log_level"} {
		if val, ok := os.LookupEnv("ECOVAL_" + strings.ToUpper(key)); ok && val != "" {
			if err := c.set(key, val); err != nil {
				return fmt.Errorf("invalid environment setting: %w", err)
			}
		}
	}
	return nil
}

func (c *Config) set(key string, val interface{}) error {
	var err error
	switch strings.ToLower(strings.TrimSpace(key)) {
	case "data_dir":
		c.DataDir, err = cast.ToStringE(val)
		c.DataDir = strings.TrimSpace(c.DataDir)
	case "out_dir":
		c.OutDir, err = cast.ToStringE(val)
	case "report":
		c.ReportPath, err = cast.ToStringE(val)
	case "overwrite":
		c.Overwrite, err = cast.ToBoolE(val)
	case "levels":
		c.Levels, err = cast.ToIntE(val)
	case "log_level":
		c.LogLevel, err = cast.ToStringE(val)
	default:
		// Unknown keys are ignored so rc files can be shared with other tools.
		return nil
	}
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	return nil
}

// Validate checks settings that must hold before a run starts.
func (c *Config) Validate() error {
	if c.DataDir != "" {
		info, err := os.Stat(c.DataDir)
		if err != nil || !info.IsDir() {
			return fmt.Errorf("data_dir %s does not exist", c.DataDir)
		}
	}
	if c.Levels < 0 {
		return fmt.Errorf("levels must not be negative, got %d", c.Levels)
	}
	if c.OutDir == "" {
		return fmt.Errorf("out_dir must not be empty")
	}
	return nil
}
