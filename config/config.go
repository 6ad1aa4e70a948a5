// Package config loads and persists the global hurry configuration: cache
// service endpoints and build defaults that are not specific to a single
// invocation. Mirrors config.Config in the teacher (global settings file
// under the user's config directory, YAML-encoded, env/flag override on
// top via viper at the cmd layer).
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v2"
)

const (
	// Filename is the name of the persisted global config file.
	Filename = "config.yaml"

	// DefaultCacheEndpoint is used when no endpoint is configured anywhere.
	DefaultCacheEndpoint = "https://cas.hurry.build"

	// DefaultIndexEndpoint is used when no endpoint is configured anywhere.
	DefaultIndexEndpoint = "https://index.hurry.build"
)

// Config is the global, persisted hurry configuration. Per-invocation
// overrides (--target, --release, profile, manifest path) live in
// cmd-layer viper bindings, not here; this struct only holds settings a
// user wants to stick across invocations.
type Config struct {
	CacheEndpoint string `yaml:"cache_endpoint,omitempty"`
	IndexEndpoint string `yaml:"index_endpoint,omitempty"`
	Verbose       bool   `yaml:"verbose,omitempty"`

	// DaemonAutoStart controls whether the orchestrator starts hurryd
	// automatically when it is not already running.
	DaemonAutoStart bool `yaml:"daemon_auto_start"`
}

// New returns a Config populated with static defaults.
func New() Config {
	return Config{
		CacheEndpoint:   DefaultCacheEndpoint,
		IndexEndpoint:   DefaultIndexEndpoint,
		DaemonAutoStart: true,
	}
}

// NewDefault returns a Config populated by static defaults, then
// overridden by the on-disk config file at ConfigPath() if one exists. The
// config file is never required.
func NewDefault() (cfg Config, err error) {
	cfg = New()
	bb, err := os.ReadFile(ConfigPath())
	if err != nil {
		if os.IsNotExist(err) {
			err = nil
		}
		return
	}
	err = yaml.Unmarshal(bb, &cfg)
	return
}

// Load reads the config exactly as it exists at path, without applying
// static defaults first.
func Load(path string) (c Config, err error) {
	bb, err := os.ReadFile(path)
	if err != nil {
		return c, fmt.Errorf("read config: %w", err)
	}
	err = yaml.Unmarshal(bb, &c)
	return
}

// Write persists the config to path.
func (c Config) Write(path string) error {
	bb, err := yaml.Marshal(&c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	return os.WriteFile(path, bb, 0o644)
}

// Path returns the directory holding the global hurry config, resolved
// through XDG_CONFIG_HOME (falling back to the platform default via the
// adrg/xdg package, as the cache directory does in package userdirs).
func Path() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "hurry")
	}
	return filepath.Join(xdg.ConfigHome, "hurry")
}

// ConfigPath returns the full path to the config file. HURRY_CONFIG_FILE
// overrides the computed default, mirroring FUNC_CONFIG_FILE in the
// teacher.
func ConfigPath() string {
	path := filepath.Join(Path(), Filename)
	if e := os.Getenv("HURRY_CONFIG_FILE"); e != "" {
		path = e
	}
	return path
}

// CreatePaths ensures the on-disk config directory exists. Tolerant of
// repeated calls.
func CreatePaths() error {
	if err := os.MkdirAll(Path(), 0o755); err != nil {
		return fmt.Errorf("create config path: %w", err)
	}
	return nil
}
