// Package bridge implements the telnet server: it accepts TCP connections,
// runs one telnet.Session per client on its own reactor goroutine and keeps
// the process-wide session registry up to date.
package bridge

import (
	"fmt"
	"net"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sourcemud/mud-telnet/lib/telnet"
)

// Default configuration values.
const (
	// DefaultListenAddr is the default telnet listen address.
	DefaultListenAddr = ":4000"

	// DefaultIdleTimeout disconnects clients that send nothing for this long.
	DefaultIdleTimeout = 15 * time.Minute

	// DefaultPollInterval is the reactor tick: the read deadline after which
	// idle checks and queued output run even without input.
	DefaultPollInterval = time.Second

	// DefaultWriteTimeout bounds one write to a client.
	DefaultWriteTimeout = 30 * time.Second

	// DefaultReadBufferSize is the size of one socket read.
	DefaultReadBufferSize = 4096

	// DefaultMaxConnections is the server-wide connection limit.
	DefaultMaxConnections = 1000

	// DefaultMaxPerHost is the per-address connection limit.
	DefaultMaxPerHost = 10
)

// Config holds the telnet server configuration.
// All fields have sensible defaults that can be overridden.
type Config struct {
	// ListenAddr is the TCP address to listen on (e.g., ":4000").
	ListenAddr string `yaml:"listen"`

	// Timeouts holds connection timeout settings.
	Timeouts TimeoutConfig `yaml:"timeouts"`

	// Limits holds connection limits and buffer sizes.
	Limits LimitConfig `yaml:"limits"`

	// Telnet holds the per-session protocol settings.
	Telnet TelnetConfig `yaml:"telnet"`

	// Colors overrides the default palette, colour type name to colour name.
	Colors map[string]string `yaml:"colors"`

	// Deny lists CIDR blocks whose connections are refused.
	Deny []string `yaml:"deny"`
}

// TimeoutConfig holds timeout settings for connections.
type TimeoutConfig struct {
	// Idle is the maximum time a client may send nothing (0 = no limit).
	Idle time.Duration `yaml:"idle"`

	// Poll is the reactor tick.
	Poll time.Duration `yaml:"poll"`

	// Write bounds one write to the socket (0 = no limit).
	Write time.Duration `yaml:"write"`
}

// LimitConfig holds buffer and connection limits.
type LimitConfig struct {
	// MaxConnections is the maximum number of concurrent connections (0 = no limit).
	MaxConnections int `yaml:"max_connections"`

	// MaxPerHost is the maximum connections per client IP (0 = no limit).
	MaxPerHost int `yaml:"max_per_host"`

	// ReadBufferSize is the size of one socket read.
	ReadBufferSize int `yaml:"read_buffer_size"`

	// MaxLineLength bounds one input line.
	MaxLineLength int `yaml:"max_line_length"`

	// ChunkSize bounds the output word buffer.
	ChunkSize int `yaml:"chunk_size"`

	// MaxSubnegotiation bounds one subnegotiation block.
	MaxSubnegotiation int `yaml:"max_subnegotiation"`

	// TypeAhead bounds the lines queued by one read.
	TypeAhead int `yaml:"type_ahead"`
}

// TelnetConfig holds the protocol features offered to each client.
type TelnetConfig struct {
	Width       int    `yaml:"width"`
	Height      int    `yaml:"height"`
	Color       bool   `yaml:"color"`
	Compression bool   `yaml:"compression"`
	ZMP         bool   `yaml:"zmp"`
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	About       string `yaml:"about"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		ListenAddr: DefaultListenAddr,
		Timeouts: TimeoutConfig{
			Idle:  DefaultIdleTimeout,
			Poll:  DefaultPollInterval,
			Write: DefaultWriteTimeout,
		},
		Limits: LimitConfig{
			MaxConnections:    DefaultMaxConnections,
			MaxPerHost:        DefaultMaxPerHost,
			ReadBufferSize:    DefaultReadBufferSize,
			MaxLineLength:     telnet.DefaultMaxLineLength,
			ChunkSize:         telnet.DefaultChunkSize,
			MaxSubnegotiation: telnet.DefaultMaxSubnegotiation,
			TypeAhead:         telnet.DefaultTypeAhead,
		},
		Telnet: TelnetConfig{
			Width:       telnet.DefaultWidth,
			Height:      telnet.DefaultHeight,
			Color:       true,
			Compression: true,
			ZMP:         true,
			Name:        telnet.DefaultName,
			Version:     telnet.DefaultVersion,
			About:       telnet.DefaultAbout,
		},
	}
}

// LoadConfig reads a YAML file over the defaults. Keys missing from the
// file keep their default values. The result is not validated.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration for errors and returns an error if invalid.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return &ConfigError{Field: "listen", Message: "cannot be empty"}
	}
	if c.Timeouts.Idle < 0 {
		return &ConfigError{Field: "timeouts.idle", Message: "cannot be negative"}
	}
	if c.Timeouts.Poll <= 0 {
		return &ConfigError{Field: "timeouts.poll", Message: "must be positive"}
	}
	if c.Timeouts.Write < 0 {
		return &ConfigError{Field: "timeouts.write", Message: "cannot be negative"}
	}
	if c.Limits.MaxConnections < 0 {
		return &ConfigError{Field: "limits.max_connections", Message: "cannot be negative"}
	}
	if c.Limits.MaxPerHost < 0 {
		return &ConfigError{Field: "limits.max_per_host", Message: "cannot be negative"}
	}
	if c.Limits.ReadBufferSize <= 0 {
		return &ConfigError{Field: "limits.read_buffer_size", Message: "must be positive"}
	}
	if c.Limits.MaxLineLength <= 0 {
		return &ConfigError{Field: "limits.max_line_length", Message: "must be positive"}
	}
	if c.Limits.ChunkSize < 64 {
		return &ConfigError{Field: "limits.chunk_size", Message: "must be at least 64"}
	}
	if c.Limits.MaxSubnegotiation <= 0 {
		return &ConfigError{Field: "limits.max_subnegotiation", Message: "must be positive"}
	}
	if c.Limits.TypeAhead <= 0 {
		return &ConfigError{Field: "limits.type_ahead", Message: "must be positive"}
	}
	if c.Telnet.Width < telnet.MinScreenWidth {
		return &ConfigError{Field: "telnet.width", Message: fmt.Sprintf("must be at least %d", telnet.MinScreenWidth)}
	}
	if c.Telnet.Height < telnet.MinScreenHeight {
		return &ConfigError{Field: "telnet.height", Message: fmt.Sprintf("must be at least %d", telnet.MinScreenHeight)}
	}
	for _, cidr := range c.Deny {
		if _, _, err := net.ParseCIDR(cidr); err != nil {
			return &ConfigError{Field: "deny", Message: "invalid CIDR " + cidr}
		}
	}
	if _, err := telnet.NewPalette(c.Colors); err != nil {
		return &ConfigError{Field: "colors", Message: err.Error()}
	}
	return nil
}

// WithListenAddr returns a copy of the config with the listen address set.
func (c *Config) WithListenAddr(addr string) *Config {
	newCfg := *c
	newCfg.ListenAddr = addr
	return &newCfg
}

// WithIdleTimeout returns a copy of the config with the idle timeout set.
func (c *Config) WithIdleTimeout(d time.Duration) *Config {
	newCfg := *c
	newCfg.Timeouts.Idle = d
	return &newCfg
}

// WithDeny returns a copy of the config with the deny list replaced.
func (c *Config) WithDeny(cidrs ...string) *Config {
	newCfg := *c
	newCfg.Deny = append([]string(nil), cidrs...)
	return &newCfg
}

// Session returns the per-session telnet settings.
func (c *Config) Session() telnet.Config {
	return telnet.Config{
		Width:             c.Telnet.Width,
		Height:            c.Telnet.Height,
		IdleTimeout:       c.Timeouts.Idle,
		Color:             c.Telnet.Color,
		Compression:       c.Telnet.Compression,
		ZMP:               c.Telnet.ZMP,
		Name:              c.Telnet.Name,
		Version:           c.Telnet.Version,
		About:             c.Telnet.About,
		ChunkSize:         c.Limits.ChunkSize,
		MaxLineLength:     c.Limits.MaxLineLength,
		MaxSubnegotiation: c.Limits.MaxSubnegotiation,
		TypeAhead:         c.Limits.TypeAhead,
	}
}

// Palette builds the shared colour palette from the overrides.
func (c *Config) Palette() (*telnet.Palette, error) {
	return telnet.NewPalette(c.Colors)
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return "config error: " + e.Field + " " + e.Message
}
