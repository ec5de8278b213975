package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/paulschiretz/pgl-mirror/pkg/buildinfo"
	"github.com/paulschiretz/pgl-mirror/pkg/plog"
	"github.com/paulschiretz/pgl-mirror/pkg/safeguard"
	"github.com/paulschiretz/pgl-mirror/pkg/util"
)

// ConfigFileName is the default name of the configuration file, looked up in
// the working directory when no -config flag is given. The config file never
// lives inside the target directory because the target is replaced wholesale
// on every run.
const ConfigFileName = "pgl-mirror.config.json"

// SafeguardConfig controls the pre-mirror archive of the target directory.
type SafeguardConfig struct {
	Enabled bool             `json:"enabled"`
	Format  safeguard.Format `json:"format"`
}

type Config struct {
	Version  string `json:"version"`
	Source   string `json:"source"`
	Target   string `json:"target"`
	LogLevel string `json:"logLevel"`
	// ToolMode decides how the external sync tool is selected: probe it
	// ('auto'), force it ('always') or skip it ('never').
	ToolMode  ToolMode        `json:"toolMode"`
	Metrics   bool            `json:"metrics"`
	Safeguard SafeguardConfig `json:"safeguard"`
}

// NewDefault creates and returns a Config struct with sensible default values.
func NewDefault() Config {
	return Config{
		Version:  buildinfo.Version,
		Source:   "",     // Intentionally empty to force user configuration.
		Target:   "",     // Intentionally empty to force user configuration.
		LogLevel: "info", // Default log level.
		ToolMode: ToolModeAuto,
		Metrics:  false,
		Safeguard: SafeguardConfig{
			Enabled: false,
			Format:  safeguard.TarZst,
		},
	}
}

// Load attempts to load a configuration from the given path, or from
// ConfigFileName in the working directory when path is empty.
// If the file doesn't exist, it returns the default config without an error.
// If the file exists but fails to parse, it returns an error and a zero-value config.
func Load(path string) (Config, error) {
	explicit := path != ""
	if !explicit {
		path = ConfigFileName
	}

	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			if explicit {
				// A path the user asked for must exist.
				return Config{}, fmt.Errorf("config file %s does not exist", path)
			}
			return NewDefault(), nil // No config file, which is a normal case.
		}
		return Config{}, fmt.Errorf("error opening config file %s: %w", path, err)
	}
	defer file.Close()

	plog.Info("Loading configuration", "path", path)
	// Start with default values, then overwrite with the file's content.
	// This makes the config loading resilient to missing fields in the JSON file.
	config := NewDefault()
	decoder := json.NewDecoder(file)
	if err := decoder.Decode(&config); err != nil {
		return Config{}, fmt.Errorf("error parsing config file %s: %w", path, err)
	}

	// NOTE: if config.Version differs from the app version we can add a
	// migration step here.
	if config.Version != buildinfo.Version {
		config.Version = buildinfo.Version
	}
	return config, nil
}

// Generate creates or overwrites a config file at the given path, or at
// ConfigFileName in the working directory when path is empty.
func Generate(configToGenerate Config, path string) error {
	if path == "" {
		path = ConfigFileName
	}

	jsonData, err := json.MarshalIndent(configToGenerate, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config to JSON: %w", err)
	}

	if err := os.WriteFile(path, jsonData, util.UserWritableFilePerms); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	plog.Info("Successfully saved config file", "path", path)
	return nil
}

// Validate checks the configuration for logical errors. With checkPaths set it
// also requires source and target to be non-empty and the source to exist.
// Paths are expanded and cleaned in place.
func (c *Config) Validate(checkPaths bool) error {
	if checkPaths && c.Source == "" {
		return fmt.Errorf("source path cannot be empty")
	}
	if checkPaths && c.Target == "" {
		return fmt.Errorf("target path cannot be empty")
	}

	var err error
	if c.Source != "" {
		c.Source, err = util.ExpandPath(c.Source)
		if err != nil {
			return fmt.Errorf("could not expand source path: %w", err)
		}
		c.Source = filepath.Clean(c.Source)

		if checkPaths {
			if _, err := os.Stat(c.Source); os.IsNotExist(err) {
				return fmt.Errorf("source path '%s' does not exist", c.Source)
			}
		}
	}

	if c.Target != "" {
		c.Target, err = util.ExpandPath(c.Target)
		if err != nil {
			return fmt.Errorf("could not expand target path: %w", err)
		}
		c.Target = filepath.Clean(c.Target)
	}

	if _, ok := toolModeToString[c.ToolMode]; !ok {
		return fmt.Errorf("invalid tool mode: %d", c.ToolMode)
	}
	if _, err := safeguard.ParseFormat(c.Safeguard.Format.String()); err != nil {
		return fmt.Errorf("invalid safeguard format: %w", err)
	}
	return nil
}

// LogSummary prints a user-friendly summary of the configuration.
func (c *Config) LogSummary() {
	logArgs := []interface{}{
		"log_level", c.LogLevel,
		"source", c.Source,
		"target", c.Target,
		"tool_mode", c.ToolMode,
		"metrics", c.Metrics,
	}
	if c.Safeguard.Enabled {
		safeguardSummary := fmt.Sprintf("enabled (f:%s)", c.Safeguard.Format)
		logArgs = append(logArgs, "safeguard", safeguardSummary)
	}
	plog.Info("Configuration loaded", logArgs...)
}

// MergeConfigWithFlags overlays the configuration values from flags on top of a base
// configuration. It iterates over the setFlags map, which contains only the flags
// explicitly provided by the user on the command line.
func MergeConfigWithFlags(base Config, setFlags map[string]any) Config {
	merged := base

	for name, value := range setFlags {
		switch name {
		case "source":
			merged.Source = value.(string)
		case "target":
			merged.Target = value.(string)
		case "log-level":
			merged.LogLevel = value.(string)
		case "tool-mode":
			merged.ToolMode = value.(ToolMode)
		case "metrics":
			merged.Metrics = value.(bool)
		case "safeguard":
			merged.Safeguard.Enabled = value.(bool)
		case "safeguard-format":
			merged.Safeguard.Format = value.(safeguard.Format)
		case "config":
			// Handled by the caller when loading; nothing to merge.
		default:
			plog.Debug("unhandled flag in MergeConfigWithFlags", "flag", name)
		}
	}
	return merged
}
