package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/attunehq/hurry/config"
)

func TestNewDefaults(t *testing.T) {
	cfg := config.New()
	if cfg.CacheEndpoint != config.DefaultCacheEndpoint {
		t.Fatalf("expected cache endpoint %q, got %q", config.DefaultCacheEndpoint, cfg.CacheEndpoint)
	}
	if !cfg.DaemonAutoStart {
		t.Fatal("expected daemon_auto_start to default true")
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("cache_endpoint: https://cas.example.com\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.CacheEndpoint != "https://cas.example.com" {
		t.Fatalf("loaded config did not contain file values, got %q", cfg.CacheEndpoint)
	}

	if _, err := config.Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Fatal("expected error loading nonexistent config path")
	}
}

func TestWriteThenLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	cfg := config.New()
	cfg.CacheEndpoint = "https://custom.example.com"
	if err := cfg.Write(path); err != nil {
		t.Fatal(err)
	}

	loaded, err := config.Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.CacheEndpoint != "https://custom.example.com" {
		t.Fatalf("config did not persist, got %q", loaded.CacheEndpoint)
	}
}

func TestPath(t *testing.T) {
	home := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", home)

	want := filepath.Join(home, "hurry")
	if got := config.Path(); got != want {
		t.Fatalf("expected config path %q, got %q", want, got)
	}
}

func TestConfigPathOverride(t *testing.T) {
	dir := t.TempDir()
	override := filepath.Join(dir, "custom-config.yaml")
	t.Setenv("HURRY_CONFIG_FILE", override)

	if got := config.ConfigPath(); got != override {
		t.Fatalf("expected HURRY_CONFIG_FILE override %q, got %q", override, got)
	}
}

func TestNewDefault_ConfigNotRequired(t *testing.T) {
	home := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", home)

	if _, err := config.NewDefault(); err != nil {
		t.Fatal(err)
	}
}

func TestCreatePaths(t *testing.T) {
	home := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", home)

	if err := config.CreatePaths(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(config.Path()); err != nil {
		t.Fatalf("config path not created: %v", err)
	}
}
