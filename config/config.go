// Package config holds the environment-driven daemon configuration and the
// optional user configuration file.
package config

import (
	"fmt"
	"net/netip"
	"time"

	env "github.com/Netflix/go-env"
)

// Config holds all environment-driven configuration.
type Config struct {
	// Logging options
	LogLevel  string `env:"AMIYA_LOG_LEVEL,default=info"`
	LogFormat string `env:"AMIYA_LOG_FORMAT,default=console"`

	// Control socket. When SocketDir is empty the runtime directory is
	// resolved from XDG_RUNTIME_DIR, then TMPDIR, then /tmp.
	SocketDir string `env:"AMIYA_SOCKET_DIR"`

	// Status/metrics listener (localhost only).
	WebEnabled bool   `env:"AMIYA_WEB_ENABLED,default=true"`
	WebAddr    string `env:"AMIYA_WEB_ADDR,default=127.0.0.1:9800"`

	// Event bus per-subscriber buffer capacity.
	EventBusCapacity int `env:"AMIYA_EVENT_BUS_CAPACITY,default=100"`

	// Background intervals, in seconds.
	WorkspacePollSeconds  int `env:"AMIYA_WORKSPACE_POLL_SECONDS,default=2"`
	SampleSeconds         int `env:"AMIYA_SAMPLE_SECONDS,default=2"`
	TemperatureSeconds    int `env:"AMIYA_TEMPERATURE_SECONDS,default=5"`
	BatteryRefreshSeconds int `env:"AMIYA_BATTERY_REFRESH_SECONDS,default=30"`

	// Upper bound on any single external call (connect, D-Bus call).
	ConnectTimeoutSeconds int `env:"AMIYA_CONNECT_TIMEOUT_SECONDS,default=5"`

	// User configuration file (HuJSON). Missing or malformed files fall
	// back to defaults.
	FilePath string `env:"AMIYA_CONFIG_PATH"`

	webAddr netip.AddrPort
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment variables: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate ensures basic correctness of the configuration.
func (c *Config) Validate() error {
	if err := validateLogLevel(c.LogLevel); err != nil {
		return err
	}
	if err := validateLogFormat(c.LogFormat); err != nil {
		return err
	}
	if c.EventBusCapacity < 1 {
		return fmt.Errorf("event bus capacity must be positive, got %d", c.EventBusCapacity)
	}
	for name, v := range map[string]int{
		"workspace poll":  c.WorkspacePollSeconds,
		"sample":          c.SampleSeconds,
		"temperature":     c.TemperatureSeconds,
		"battery refresh": c.BatteryRefreshSeconds,
		"connect timeout": c.ConnectTimeoutSeconds,
	} {
		if v < 1 {
			return fmt.Errorf("%s interval must be at least 1 second, got %d", name, v)
		}
	}
	if c.WebEnabled {
		parsed, err := netip.ParseAddrPort(c.WebAddr)
		if err != nil {
			return fmt.Errorf("invalid web addr %q: %w", c.WebAddr, err)
		}
		c.webAddr = parsed
	}
	return nil
}

// WebAddrPort returns the parsed status listener address. Only valid when
// WebEnabled is set and Validate has run.
func (c *Config) WebAddrPort() netip.AddrPort {
	return c.webAddr
}

// WorkspacePollInterval returns the compositor poll interval.
func (c *Config) WorkspacePollInterval() time.Duration {
	return time.Duration(c.WorkspacePollSeconds) * time.Second
}

// SampleInterval returns the CPU/memory sampling interval.
func (c *Config) SampleInterval() time.Duration {
	return time.Duration(c.SampleSeconds) * time.Second
}

// TemperatureInterval returns the temperature sampling interval.
func (c *Config) TemperatureInterval() time.Duration {
	return time.Duration(c.TemperatureSeconds) * time.Second
}

// BatteryRefreshInterval returns the battery re-read interval.
func (c *Config) BatteryRefreshInterval() time.Duration {
	return time.Duration(c.BatteryRefreshSeconds) * time.Second
}

// ConnectTimeout bounds external connection attempts and calls.
func (c *Config) ConnectTimeout() time.Duration {
	return time.Duration(c.ConnectTimeoutSeconds) * time.Second
}

func validateLogLevel(level string) error {
	switch level {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("invalid log level %q, must be one of: debug, info, warn, error", level)
	}
}

func validateLogFormat(format string) error {
	switch format {
	case "json", "console":
		return nil
	default:
		return fmt.Errorf("invalid log format %q, must be 'json' or 'console'", format)
	}
}
