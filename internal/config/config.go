package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/thorcore/telepathy/internal/wire"
)

type Config struct {
	Connection ConnectionConfig `toml:"connection"`
	Framing    FramingConfig    `toml:"framing"`
	Display    DisplayConfig    `toml:"display"`
	Scripting  ScriptingConfig  `toml:"scripting"`
	Metrics    MetricsConfig    `toml:"metrics"`
	Logging    LoggingConfig    `toml:"logging"`
}

type ConnectionConfig struct {
	Address           string        `toml:"address"`
	Port              int           `toml:"port"`
	ConnectTimeout    time.Duration `toml:"connect_timeout"`
	RetryDelay        time.Duration `toml:"retry_delay"` // wait between connection attempts
	KeepAliveInterval time.Duration `toml:"keep_alive_interval"`
	PollInterval      time.Duration `toml:"poll_interval"`
	WriteTimeout      time.Duration `toml:"write_timeout"`
}

type FramingConfig struct {
	GarbageZeroLimit int    `toml:"garbage_zero_limit"`
	StringCharset    string `toml:"string_charset"` // WHATWG label, "" = bytes verbatim
}

type DisplayConfig struct {
	Enabled         bool          `toml:"enabled"`
	Profile         string        `toml:"profile"` // optional YAML key profile
	RefreshInterval time.Duration `toml:"refresh_interval"`
	History         int           `toml:"history"` // points kept per graphed key
}

type ScriptingConfig struct {
	Dir string `toml:"dir"`
}

type MetricsConfig struct {
	Address string `toml:"address"` // "" disables the /metrics endpoint
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "json" or "console"
}

// Load reads path over the defaults. A missing file is an error; use
// Default when no file is wanted.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := Default()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func Default() *Config {
	return &Config{
		Connection: ConnectionConfig{
			Address:           "192.168.49.1",
			Port:              6387,
			ConnectTimeout:    5 * time.Second,
			RetryDelay:        20 * time.Second,
			KeepAliveInterval: 100 * time.Millisecond,
			PollInterval:      5 * time.Millisecond,
			WriteTimeout:      10 * time.Second,
		},
		Framing: FramingConfig{
			GarbageZeroLimit: 20,
		},
		Display: DisplayConfig{
			Enabled:         true,
			RefreshInterval: 500 * time.Millisecond,
			History:         60,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Validate rejects values the client cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Connection.Address == "" {
		errs = append(errs, errors.New("connection.address is empty"))
	}
	if c.Connection.Port <= 0 || c.Connection.Port > 65535 {
		errs = append(errs, fmt.Errorf("connection.port %d out of range", c.Connection.Port))
	}
	if c.Connection.RetryDelay < 0 {
		errs = append(errs, errors.New("connection.retry_delay is negative"))
	}
	if c.Connection.KeepAliveInterval <= 0 {
		errs = append(errs, errors.New("connection.keep_alive_interval must be positive"))
	}
	if c.Connection.PollInterval <= 0 {
		errs = append(errs, errors.New("connection.poll_interval must be positive"))
	}
	if c.Framing.GarbageZeroLimit <= 0 {
		errs = append(errs, errors.New("framing.garbage_zero_limit must be positive"))
	}
	if _, err := wire.LookupCharset(c.Framing.StringCharset); err != nil {
		errs = append(errs, fmt.Errorf("framing.string_charset: %w", err))
	}
	if c.Display.Enabled && c.Display.RefreshInterval <= 0 {
		errs = append(errs, errors.New("display.refresh_interval must be positive"))
	}
	if c.Display.History < 0 {
		errs = append(errs, errors.New("display.history is negative"))
	}
	return errors.Join(errs...)
}
