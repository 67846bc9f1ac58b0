// Package config loads partyline's static configuration: logging,
// the global lock backend, timeouts, and the metrics server. Dynamic
// state (which paths are locked, by whom) lives in the running
// Manager, not in configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/sswguo/partyline/pkg/globallock/postgresstore"
)

// Config is partyline's top-level static configuration.
//
// Configuration sources, in order of precedence:
//  1. CLI flags (highest priority, applied by the caller)
//  2. Environment variables (PARTYLINE_*), only for keys the
//     configuration file sets (see Load)
//  3. Configuration file (YAML)
//  4. Default values (lowest priority)
type Config struct {
	// Logging controls log output behavior.
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// NodeID identifies this process among a cluster. Defaults to the
	// hostname if unset.
	NodeID string `mapstructure:"node_id" yaml:"node_id"`

	// GlobalLock configures the distributed lock backend.
	GlobalLock GlobalLockConfig `mapstructure:"global_lock" yaml:"global_lock"`

	// Timeouts controls default and per-operation deadlines.
	Timeouts TimeoutsConfig `mapstructure:"timeouts" yaml:"timeouts"`

	// Metrics contains Prometheus metrics server configuration.
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// Storage configures where coordinated file bytes actually live.
	Storage StorageConfig `mapstructure:"storage" yaml:"storage"`

	// Admin configures the small HTTP endpoint lockinfo queries.
	Admin AdminConfig `mapstructure:"admin" yaml:"admin"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output.
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive).
	Level string `mapstructure:"level" yaml:"level"`

	// Format specifies the log output encoding: "text" or "json".
	Format string `mapstructure:"format" yaml:"format"`

	// Output specifies where logs are written: stdout, stderr, or a
	// file path.
	Output string `mapstructure:"output" yaml:"output"`
}

// GlobalLockBackend selects which globallock.Store implementation backs
// distributed coordination.
type GlobalLockBackend string

const (
	BackendMemory   GlobalLockBackend = "memory"
	BackendBadger   GlobalLockBackend = "badger"
	BackendPostgres GlobalLockBackend = "postgres"
)

// GlobalLockConfig configures the distributed lock manager. Leaving
// Backend at its default ("memory") disables cross-node coordination:
// each process only coordinates with itself.
type GlobalLockConfig struct {
	// Backend selects the store. Default: "memory".
	Backend GlobalLockBackend `mapstructure:"backend" yaml:"backend"`

	// TTL bounds how long a dead node can pin a path. Default: 30m.
	TTL time.Duration `mapstructure:"ttl" yaml:"ttl"`

	// RetryInterval is how often admission is retried while blocked.
	// Default: 1s.
	RetryInterval time.Duration `mapstructure:"retry_interval" yaml:"retry_interval"`

	// ReapInterval is how often the dead-node reaper sweeps, when
	// enabled. Default: 30s. Zero disables the reaper.
	ReapInterval time.Duration `mapstructure:"reap_interval" yaml:"reap_interval"`

	// BadgerDir is the on-disk directory for the badger backend.
	BadgerDir string `mapstructure:"badger_dir" yaml:"badger_dir"`

	// Postgres holds connection settings for the postgres backend.
	Postgres postgresstore.Config `mapstructure:"postgres" yaml:"postgres"`
}

// TimeoutsConfig controls default operation deadlines.
type TimeoutsConfig struct {
	// Default applies to any operation called with a zero timeout.
	// Default: 30s.
	Default time.Duration `mapstructure:"default" yaml:"default"`

	// ShutdownGrace bounds how long Close waits for in-flight
	// operations to finish. Default: 10s.
	ShutdownGrace time.Duration `mapstructure:"shutdown_grace" yaml:"shutdown_grace"`
}

// MetricsConfig controls the Prometheus metrics HTTP server.
type MetricsConfig struct {
	// Enabled turns on metric collection and the HTTP endpoint.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// ListenAddr is the address the metrics server binds, e.g.
	// ":9090". Default: ":9090".
	ListenAddr string `mapstructure:"listen_addr" yaml:"listen_addr"`

	// Path is the HTTP path metrics are exposed on. Default: "/metrics".
	Path string `mapstructure:"path" yaml:"path"`
}

// AdminConfig controls the HTTP endpoint used to inspect a running
// server's lock state (the lockinfo CLI subcommand's target).
type AdminConfig struct {
	// Enabled turns on the admin HTTP endpoint.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// ListenAddr is the address the admin server binds. Default: ":7777".
	ListenAddr string `mapstructure:"listen_addr" yaml:"listen_addr"`
}

// StorageBackend selects which FileStore implementation persists bytes.
type StorageBackend string

const (
	StorageOS  StorageBackend = "os"
	StorageMem StorageBackend = "memory"
)

// StorageConfig configures where coordinated file bytes are persisted.
type StorageConfig struct {
	// Backend selects the FileStore. Default: "os".
	Backend StorageBackend `mapstructure:"backend" yaml:"backend"`

	// Root is the filesystem root the "os" backend writes under.
	Root string `mapstructure:"root" yaml:"root"`
}

// DefaultConfig returns a Config with every field at its production
// default, suitable for a single-node deployment with no external
// dependencies.
func DefaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "INFO",
			Format: "text",
			Output: "stdout",
		},
		GlobalLock: GlobalLockConfig{
			Backend:       BackendMemory,
			TTL:           30 * time.Minute,
			RetryInterval: time.Second,
			ReapInterval:  30 * time.Second,
			BadgerDir:     "./partyline-data/locks",
		},
		Timeouts: TimeoutsConfig{
			Default:       30 * time.Second,
			ShutdownGrace: 10 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled:    false,
			ListenAddr: ":9090",
			Path:       "/metrics",
		},
		Storage: StorageConfig{
			Backend: StorageOS,
			Root:    "./partyline-data/files",
		},
		Admin: AdminConfig{
			Enabled:    true,
			ListenAddr: ":7777",
		},
	}
}

// Load reads configuration from configPath (YAML) over the defaults.
// A PARTYLINE_-prefixed environment variable overrides the file's value
// for a key the file sets; keys the file does not set keep their
// defaults, whatever the environment holds. An empty configPath uses the
// default location; a missing file at any location is not an error —
// Load then returns the defaults without consulting the environment.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	found, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	if !found {
		return cfg, nil
	}

	if err := v.Unmarshal(cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
	))); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate reports whether cfg is internally consistent.
func (c *Config) Validate() error {
	switch strings.ToUpper(c.Logging.Level) {
	case "DEBUG", "INFO", "WARN", "ERROR":
	default:
		return fmt.Errorf("config: invalid logging level %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("config: invalid logging format %q", c.Logging.Format)
	}

	switch c.GlobalLock.Backend {
	case BackendMemory, BackendBadger, BackendPostgres:
	default:
		return fmt.Errorf("config: invalid global_lock backend %q", c.GlobalLock.Backend)
	}
	if c.GlobalLock.Backend == BackendBadger && c.GlobalLock.BadgerDir == "" {
		return fmt.Errorf("config: global_lock.badger_dir is required for the badger backend")
	}
	if c.GlobalLock.Backend == BackendPostgres {
		pg := c.GlobalLock.Postgres
		pg.ApplyDefaults()
		if err := pg.Validate(); err != nil {
			return fmt.Errorf("config: global_lock.postgres: %w", err)
		}
	}

	switch c.Storage.Backend {
	case StorageOS, StorageMem:
	default:
		return fmt.Errorf("config: invalid storage backend %q", c.Storage.Backend)
	}
	if c.Storage.Backend == StorageOS && c.Storage.Root == "" {
		return fmt.Errorf("config: storage.root is required for the os backend")
	}

	if c.Timeouts.Default <= 0 {
		return fmt.Errorf("config: timeouts.default must be positive")
	}
	return nil
}

// Save writes cfg to path as YAML, creating parent directories as
// needed.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config: create directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("config: write: %w", err)
	}
	return nil
}

func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("PARTYLINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(configDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("config: read file: %w", err)
	}
	return true, nil
}

func configDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "partyline")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "partyline")
}

// DefaultConfigPath returns the default configuration file location.
func DefaultConfigPath() string {
	return filepath.Join(configDir(), "config.yaml")
}

// DefaultConfigExists reports whether a config file exists at the
// default location.
func DefaultConfigExists() bool {
	_, err := os.Stat(DefaultConfigPath())
	return err == nil
}
