// Package config loads settings from an optional YAML file and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds application settings
type Config struct {
	DBPath string `yaml:"db_path"`
	Slots  Slots  `yaml:"slots"`
	Log    Log    `yaml:"log"`
	Server Server `yaml:"server"`
}

// Slots names the durable storage slots
type Slots struct {
	Current string `yaml:"current"`
	Legacy  string `yaml:"legacy"`
}

// Log configures the logger
type Log struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
	File   string `yaml:"file"`   // optional, appends instead of writing to stderr
}

// Server configures the HTTP surface
type Server struct {
	Addr string `yaml:"addr"`
}

// Default returns the built-in settings rooted at dir
func Default(dir string) Config {
	return Config{
		DBPath: filepath.Join(dir, "retro.db"),
		Slots: Slots{
			Current: "entries_v2",
			Legacy:  "entries_v1",
		},
		Log: Log{
			Level:  "info",
			Format: "text",
		},
		Server: Server{
			Addr: ":8080",
		},
	}
}

// DefaultDir is ~/.retro, or .retro when the home directory is unknown
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".retro"
	}
	return filepath.Join(home, ".retro")
}

// Load reads path over the defaults, then applies environment overrides.
// A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default(DefaultDir())

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return Config{}, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("RETRO_DB"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("RETRO_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("RETRO_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("RETRO_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
}

// Validate checks the settings are usable
func (c Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("db_path is required")
	}
	if c.Slots.Current == "" || c.Slots.Legacy == "" {
		return fmt.Errorf("slot names must not be empty")
	}
	if c.Slots.Current == c.Slots.Legacy {
		return fmt.Errorf("current and legacy slots must differ, both are %q", c.Slots.Current)
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format %q: must be text or json", c.Log.Format)
	}
	return nil
}
