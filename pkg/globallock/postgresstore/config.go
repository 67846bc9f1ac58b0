package postgresstore

import (
	"fmt"
	"time"
)

// Config holds the connection parameters for a Postgres-backed
// globallock.Store.
type Config struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"ssl_mode"`

	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`

	// AutoMigrate runs the embedded schema migrations on Open when true.
	AutoMigrate bool `mapstructure:"auto_migrate"`
}

// ApplyDefaults fills unset fields with their production defaults.
func (c *Config) ApplyDefaults() {
	if c.MaxConns == 0 {
		c.MaxConns = 10
	}
	if c.MinConns == 0 {
		c.MinConns = 2
	}
	if c.MaxConnLifetime == 0 {
		c.MaxConnLifetime = time.Hour
	}
	if c.MaxConnIdleTime == 0 {
		c.MaxConnIdleTime = 30 * time.Minute
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 5 * time.Second
	}
	if c.SSLMode == "" {
		c.SSLMode = "prefer"
	}
}

// Validate reports whether c has everything needed to connect.
func (c *Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("postgresstore: host is required")
	}
	if c.Port == 0 {
		return fmt.Errorf("postgresstore: port is required")
	}
	if c.Database == "" {
		return fmt.Errorf("postgresstore: database is required")
	}
	if c.User == "" {
		return fmt.Errorf("postgresstore: user is required")
	}
	if c.MinConns > c.MaxConns {
		return fmt.Errorf("postgresstore: min_conns (%d) cannot exceed max_conns (%d)", c.MinConns, c.MaxConns)
	}
	return nil
}

// ConnectionString builds a libpq-style DSN from c.
func (c *Config) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s connect_timeout=%d",
		c.Host, c.Port, c.Database, c.User, c.Password, c.SSLMode, int(c.ConnectTimeout.Seconds()),
	)
}
