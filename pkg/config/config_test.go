package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaultConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
logging:
  level: "DEBUG"

global_lock:
  backend: memory
`
	if err := os.WriteFile(configPath, []byte(configContent), 0o644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Logging.Level != "DEBUG" {
		t.Errorf("expected logging.level DEBUG, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("expected default format text, got %q", cfg.Logging.Format)
	}
	if cfg.Timeouts.Default != 30*time.Second {
		t.Errorf("expected default timeout 30s, got %v", cfg.Timeouts.Default)
	}
	if cfg.GlobalLock.Backend != BackendMemory {
		t.Errorf("expected backend memory, got %q", cfg.GlobalLock.Backend)
	}
}

func TestLoadNoConfigFile(t *testing.T) {
	tmpDir := t.TempDir()
	nonExistentPath := filepath.Join(tmpDir, "nonexistent.yaml")

	cfg, err := Load(nonExistentPath)
	if err != nil {
		t.Fatalf("expected no error loading defaults, got: %v", err)
	}
	if cfg == nil {
		t.Fatal("expected a default config, got nil")
	}
	if cfg.GlobalLock.Backend != BackendMemory {
		t.Errorf("expected default backend memory, got %q", cfg.GlobalLock.Backend)
	}
	if cfg.Metrics.ListenAddr != ":9090" {
		t.Errorf("expected default metrics listen addr :9090, got %q", cfg.Metrics.ListenAddr)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid.yaml")
	if err := os.WriteFile(configPath, []byte("logging: [unterminated"), 0o644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	if _, err := Load(configPath); err == nil {
		t.Fatal("expected an error loading invalid YAML")
	}
}

func TestValidateRejectsUnknownBackend(t *testing.T) {
	cfg := DefaultConfig()
	cfg.GlobalLock.Backend = "carrier-pigeon"

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected an error for an unknown global_lock backend")
	}
}

func TestValidateRequiresBadgerDir(t *testing.T) {
	cfg := DefaultConfig()
	cfg.GlobalLock.Backend = BackendBadger
	cfg.GlobalLock.BadgerDir = ""

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected an error when badger_dir is empty")
	}
}

func TestValidateRejectsNonPositiveTimeout(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Timeouts.Default = 0

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected an error for a non-positive default timeout")
	}
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "nested", "config.yaml")

	cfg := DefaultConfig()
	cfg.NodeID = "node-a"
	cfg.GlobalLock.Backend = BackendBadger
	cfg.GlobalLock.BadgerDir = filepath.Join(tmpDir, "locks")

	if err := Save(cfg, configPath); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.NodeID != "node-a" {
		t.Errorf("expected node_id node-a, got %q", loaded.NodeID)
	}
	if loaded.GlobalLock.Backend != BackendBadger {
		t.Errorf("expected backend badger, got %q", loaded.GlobalLock.Backend)
	}
}

func TestDefaultConfigPathUsesXDGConfigHome(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg-test-home")

	got := DefaultConfigPath()
	want := filepath.Join("/tmp/xdg-test-home", "partyline", "config.yaml")
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}
