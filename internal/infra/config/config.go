// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the daemon configuration.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Station      StationConfig      `yaml:"station"`
	Playback     PlaybackConfig     `yaml:"playback"`
	Engine       EngineConfig       `yaml:"engine"`
	Presentation PresentationConfig `yaml:"presentation"`
	Guard        GuardConfig        `yaml:"guard"`
	Log          LogConfig          `yaml:"log"`
}

// ServerConfig represents the control API server configuration.
type ServerConfig struct {
	Addr       string `yaml:"addr" default:"127.0.0.1:8090"`
	ExitOnStop bool   `yaml:"exit_on_stop"`
}

// StationConfig represents the configured radio stream.
type StationConfig struct {
	URI   string `yaml:"uri" validate:"required,url"`
	Title string `yaml:"title" default:"Radio"`
}

// PlaybackConfig represents playback policy configuration.
type PlaybackConfig struct {
	DuckVolume        float64 `yaml:"duck_volume" default:"0.1" validate:"gte=0,lte=1"`
	PrepareTimeoutSec int     `yaml:"prepare_timeout_sec" default:"30" validate:"gte=0,lte=600"`
}

// EngineConfig represents the decode/render engine selection. Settings
// are engine-specific and decoded by the engine factory.
type EngineConfig struct {
	Type     string         `yaml:"type" default:"mp3" validate:"oneof=mp3 null"`
	Settings map[string]any `yaml:"settings"`
}

// PresentationConfig represents the foreground presentation surface.
type PresentationConfig struct {
	DisableDesktop bool `yaml:"disable_desktop"`
}

// GuardConfig represents the scoped resource leases.
type GuardConfig struct {
	DisableWakeLock      bool `yaml:"disable_wake_lock"`
	KeepaliveIntervalSec int  `yaml:"keepalive_interval_sec" default:"25" validate:"gte=1,lte=300"`
}

// LogConfig represents logging configuration.
type LogConfig struct {
	Output string `yaml:"output" default:"stdout"`
	Level  string `yaml:"level" default:"info"`
}

// Load loads configuration from a YAML file. Environment variables
// take precedence over file values for the station and the address.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	cfg.overrideFromEnv()

	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("RADIOD_STATION_URI"); v != "" {
		c.Station.URI = v
	}
	if v := os.Getenv("RADIOD_STATION_TITLE"); v != "" {
		c.Station.Title = v
	}
	if v := os.Getenv("RADIOD_ADDR"); v != "" {
		c.Server.Addr = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}
	return nil
}

// PrepareTimeout returns the prepare deadline. Zero disables it.
func (c *Config) PrepareTimeout() time.Duration {
	return time.Duration(c.Playback.PrepareTimeoutSec) * time.Second
}

// KeepaliveInterval returns the keepalive probe interval.
func (c *Config) KeepaliveInterval() time.Duration {
	return time.Duration(c.Guard.KeepaliveIntervalSec) * time.Second
}
