package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"
)

// ErrInvalid is returned by Validate.
var ErrInvalid = errors.New("invalid config")

// Config holds server configuration values.
type Config struct {
	Host    string `mapstructure:"host" yaml:"host"`
	Port    int    `mapstructure:"port" yaml:"port"`
	Threads int    `mapstructure:"threads" yaml:"threads"`
	Maps    string `mapstructure:"maps" yaml:"maps"`

	LogLevel string `mapstructure:"log_level" yaml:"log_level"`
	Verbose  bool   `mapstructure:"verbose" yaml:"verbose"`

	HandshakeTimeout  time.Duration `mapstructure:"handshake_timeout" yaml:"handshake_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`

	// CloseOnDisconnect sends Close to the coordinator whenever a session
	// ends, not only on quit.
	CloseOnDisconnect bool `mapstructure:"close_on_disconnect" yaml:"close_on_disconnect"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Host:              "127.0.0.1",
		Port:              1996,
		Threads:           8,
		Maps:              "./config.toml",
		LogLevel:          "info",
		HandshakeTimeout:  10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
	}
}

// Addr is the host:port the listener binds to.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Level is the effective log level; Verbose forces debug.
func (c Config) Level() string {
	if c.Verbose {
		return "debug"
	}
	return c.LogLevel
}

// Validate rejects values the server cannot start with.
func (c Config) Validate() error {
	if c.Threads <= 0 {
		return fmt.Errorf("%w: threads must be > 0, got %d", ErrInvalid, c.Threads)
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalid, c.Port)
	}
	if c.Maps == "" {
		return fmt.Errorf("%w: maps path is empty", ErrInvalid)
	}
	return nil
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.Host != "" {
		c.Host = other.Host
	}
	if other.Port != 0 {
		c.Port = other.Port
	}
	if other.Threads != 0 {
		c.Threads = other.Threads
	}
	if other.Maps != "" {
		c.Maps = other.Maps
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.Verbose {
		c.Verbose = true
	}
	if other.HandshakeTimeout != 0 {
		c.HandshakeTimeout = other.HandshakeTimeout
	}
	if other.IdleTimeout != 0 {
		c.IdleTimeout = other.IdleTimeout
	}
	if other.ReadHeaderTimeout != 0 {
		c.ReadHeaderTimeout = other.ReadHeaderTimeout
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
	if other.CloseOnDisconnect {
		c.CloseOnDisconnect = true
	}
}
