// Package config provides configuration management for fspec.
// Configuration is loaded from YAML files with environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Version is the current config schema version.
const Version = "1"

// Default file paths.
const (
	GlobalConfigDir   = ".config/fspec"
	GlobalConfigFile  = "config.yaml"
	ProjectConfigFile = ".fspec.yaml"
)

// Default values.
const (
	DefaultSpecDir        = "spec"
	DefaultProjectName    = "untitled"
	DefaultAcquireTimeout = "5s"
	DefaultStaleThreshold = "10s"
)

// Environment variable names.
const (
	EnvSpecDir        = "FSPEC_DIR"
	EnvProjectName    = "FSPEC_PROJECT_NAME"
	EnvAcquireTimeout = "FSPEC_LOCK_TIMEOUT"
	EnvStaleThreshold = "FSPEC_LOCK_STALE_THRESHOLD"
	EnvDebugLocks     = "FSPEC_DEBUG_LOCKS"
)

// Config represents the complete fspec configuration.
type Config struct {
	Version string      `yaml:"version"`
	SpecDir string      `yaml:"spec_dir"`
	Project string      `yaml:"project"`
	Locks   LocksConfig `yaml:"locks"`
}

// LocksConfig holds lock tuning knobs for the locked file manager.
type LocksConfig struct {
	// AcquireTimeout bounds the inter-process lock retry budget.
	AcquireTimeout string `yaml:"acquire_timeout"`
	// StaleThreshold is the age past which a lock file is presumed abandoned.
	StaleThreshold string `yaml:"stale_threshold"`
	// Debug enables lock metrics logging (same effect as FSPEC_DEBUG_LOCKS).
	Debug bool `yaml:"debug"`
}

// Errors.
var (
	ErrInvalidConfig = errors.New("invalid configuration")
)

// New creates a Config with default values.
func New() *Config {
	return &Config{
		Version: Version,
		SpecDir: DefaultSpecDir,
		Project: DefaultProjectName,
		Locks: LocksConfig{
			AcquireTimeout: DefaultAcquireTimeout,
			StaleThreshold: DefaultStaleThreshold,
		},
	}
}

// LoadOptions configures config loading behavior.
type LoadOptions struct {
	// ExplicitPath overrides config discovery (--config flag).
	ExplicitPath string
	// SkipGlobal skips loading global config (~/.config/fspec/config.yaml).
	SkipGlobal bool
	// SkipProject skips loading project config (.fspec.yaml).
	SkipProject bool
	// SkipEnv skips environment variable overrides.
	SkipEnv bool
}

// Load loads configuration with the following precedence (highest to lowest):
// 1. Environment variables
// 2. Project config (.fspec.yaml in repo root)
// 3. Global config (~/.config/fspec/config.yaml)
// 4. Built-in defaults
//
// If ExplicitPath is set, it replaces both global and project configs.
func Load(opts LoadOptions) (*Config, error) {
	cfg := New()

	// Load global config (lowest priority file)
	if !opts.SkipGlobal && opts.ExplicitPath == "" {
		globalPath, err := globalConfigPath()
		if err == nil {
			if loadErr := loadFile(cfg, globalPath); loadErr != nil && !os.IsNotExist(loadErr) {
				return nil, fmt.Errorf("load global config: %w", loadErr)
			}
		}
	}

	// Load project config (higher priority than global)
	if !opts.SkipProject && opts.ExplicitPath == "" {
		projectPath, err := discoverProjectConfig()
		if err == nil {
			if loadErr := loadFile(cfg, projectPath); loadErr != nil && !os.IsNotExist(loadErr) {
				return nil, fmt.Errorf("load project config: %w", loadErr)
			}
		}
	}

	// Load explicit config (replaces global and project)
	if opts.ExplicitPath != "" {
		if err := loadFile(cfg, opts.ExplicitPath); err != nil {
			return nil, fmt.Errorf("load config %s: %w", opts.ExplicitPath, err)
		}
	}

	// Apply environment variable overrides (highest file priority)
	if !opts.SkipEnv {
		applyEnvOverrides(cfg)
	}

	return cfg, nil
}

// loadFile reads and unmarshals a YAML config file into cfg.
// Fields not present in the file retain their current values (merge behavior).
func loadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // Config path from trusted source
	if err != nil {
		return err
	}

	// Unmarshal into existing config (partial merge)
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	return nil
}

// globalConfigPath returns the path to the global config file.
func globalConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, GlobalConfigDir, GlobalConfigFile), nil
}

// discoverProjectConfig walks up from CWD looking for .fspec.yaml.
// Stops at git root or filesystem root.
func discoverProjectConfig() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}

	dir := cwd
	for {
		path := filepath.Join(dir, ProjectConfigFile)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}

		// Stop at git root
		gitPath := filepath.Join(dir, ".git")
		if _, err := os.Stat(gitPath); err == nil {
			break
		}

		// Move to parent
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", os.ErrNotExist
}

// applyEnvOverrides applies environment variable overrides to config.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv(EnvSpecDir); v != "" {
		cfg.SpecDir = v
	}
	if v := os.Getenv(EnvProjectName); v != "" {
		cfg.Project = v
	}
	if v := os.Getenv(EnvAcquireTimeout); v != "" {
		cfg.Locks.AcquireTimeout = v
	}
	if v := os.Getenv(EnvStaleThreshold); v != "" {
		cfg.Locks.StaleThreshold = v
	}
	if v := os.Getenv(EnvDebugLocks); truthy(v) {
		cfg.Locks.Debug = true
	}
}

// truthy matches the locked file manager's reading of FSPEC_DEBUG_LOCKS.
func truthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "0", "false", "no":
		return false
	}
	return true
}

// CLIOverrides contains values from CLI flags that override config.
type CLIOverrides struct {
	SpecDir        string
	Project        string
	AcquireTimeout string
	DebugLocks     bool
}

// ApplyCLIOverrides applies CLI flag values to config.
// Only non-empty values are applied (highest priority).
func (cfg *Config) ApplyCLIOverrides(o CLIOverrides) {
	if o.SpecDir != "" {
		cfg.SpecDir = o.SpecDir
	}
	if o.Project != "" {
		cfg.Project = o.Project
	}
	if o.AcquireTimeout != "" {
		cfg.Locks.AcquireTimeout = o.AcquireTimeout
	}
	if o.DebugLocks {
		cfg.Locks.Debug = true
	}
}

// Validate checks the configuration for errors.
func (cfg *Config) Validate() error {
	if cfg.SpecDir == "" {
		return fmt.Errorf("%w: spec_dir must not be empty", ErrInvalidConfig)
	}

	if cfg.Locks.AcquireTimeout != "" {
		if _, err := time.ParseDuration(cfg.Locks.AcquireTimeout); err != nil {
			return fmt.Errorf("%w: invalid locks.acquire_timeout %q: %w", ErrInvalidConfig, cfg.Locks.AcquireTimeout, err)
		}
	}
	if cfg.Locks.StaleThreshold != "" {
		if _, err := time.ParseDuration(cfg.Locks.StaleThreshold); err != nil {
			return fmt.Errorf("%w: invalid locks.stale_threshold %q: %w", ErrInvalidConfig, cfg.Locks.StaleThreshold, err)
		}
	}

	return nil
}

// Parsed defaults; the constants are compile-time so init failure is a bug.
var (
	defaultAcquireTimeoutDuration = mustParseDuration(DefaultAcquireTimeout)
	defaultStaleThresholdDuration = mustParseDuration(DefaultStaleThreshold)
)

func mustParseDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		panic("invalid default duration: " + s)
	}
	return d
}

// AcquireTimeoutDuration returns the lock acquire timeout as a time.Duration.
// Falls back to the default when unset or invalid.
func (cfg *Config) AcquireTimeoutDuration() time.Duration {
	if cfg.Locks.AcquireTimeout == "" {
		return defaultAcquireTimeoutDuration
	}
	d, err := time.ParseDuration(cfg.Locks.AcquireTimeout)
	if err != nil {
		return defaultAcquireTimeoutDuration
	}
	return d
}

// StaleThresholdDuration returns the lock stale threshold as a time.Duration.
// Falls back to the default when unset or invalid.
func (cfg *Config) StaleThresholdDuration() time.Duration {
	if cfg.Locks.StaleThreshold == "" {
		return defaultStaleThresholdDuration
	}
	d, err := time.ParseDuration(cfg.Locks.StaleThreshold)
	if err != nil {
		return defaultStaleThresholdDuration
	}
	return d
}

// String returns a human-readable YAML representation of the config.
func (cfg *Config) String() string {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Sprintf("config error: %v", err)
	}
	return string(data)
}

// SaveGlobal writes the config to the global config file.
// Creates the directory if it doesn't exist.
func (cfg *Config) SaveGlobal() error {
	path, err := globalConfigPath()
	if err != nil {
		return fmt.Errorf("get global config path: %w", err)
	}

	return cfg.SaveTo(path)
}

// SaveTo writes the config to the specified path.
// Creates parent directories if needed.
func (cfg *Config) SaveTo(path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	return nil
}

// DiscoveredPaths returns which config files were found.
// Useful for debugging configuration issues.
// Returns empty strings for paths that don't exist or can't be determined.
func DiscoveredPaths() (global, project string) {
	globalPath, err := globalConfigPath()
	if err == nil {
		if _, statErr := os.Stat(globalPath); statErr == nil {
			global = globalPath
		}
	}
	projectPath, err := discoverProjectConfig()
	if err == nil {
		project = projectPath
	}
	return global, project
}
