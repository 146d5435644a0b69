// Package config loads client settings from YAML or JSON files, loose maps
// and environment overrides.
package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// Environment variables overriding file settings.
const (
	EnvURL     = "SYFT_URL"
	EnvVerbose = "SYFT_VERBOSE"
)

// Config holds the client settings. Durations use time.ParseDuration syntax.
type Config struct {
	URL         string        `yaml:"url" json:"url" mapstructure:"url"`
	Verbose     bool          `yaml:"verbose" json:"verbose" mapstructure:"verbose"`
	DialTimeout string        `yaml:"dial_timeout" json:"dial_timeout" mapstructure:"dial_timeout"`
	Redis       RedisConfig   `yaml:"redis" json:"redis" mapstructure:"redis"`
	File        FileConfig    `yaml:"file" json:"file" mapstructure:"file"`
	Peer        PeerConfig    `yaml:"peer" json:"peer" mapstructure:"peer"`
	Metrics     MetricsConfig `yaml:"metrics" json:"metrics" mapstructure:"metrics"`

	// Headers are sent with the WebSocket handshake, e.g. Authorization.
	Headers map[string]string `yaml:"headers" json:"headers" mapstructure:"headers"`
}

// RedisConfig enables tensor persistence when Addr is set.
type RedisConfig struct {
	Addr     string `yaml:"addr" json:"addr" mapstructure:"addr"`
	Password string `yaml:"password" json:"password" mapstructure:"password"`
	DB       int    `yaml:"db" json:"db" mapstructure:"db"`
	Prefix   string `yaml:"prefix" json:"prefix" mapstructure:"prefix"`
	TTL      string `yaml:"ttl" json:"ttl" mapstructure:"ttl"`
}

// FileConfig enables tensor persistence on disk when Dir is set and no
// Redis address is configured.
type FileConfig struct {
	Dir string `yaml:"dir" json:"dir" mapstructure:"dir"`
}

// PeerConfig configures the peer server started by the CLI.
type PeerConfig struct {
	Addr string `yaml:"addr" json:"addr" mapstructure:"addr"`
}

// MetricsConfig toggles Prometheus metrics.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled" mapstructure:"enabled"`
}

// Default returns the settings used when nothing is configured: no
// connection, quiet logging.
func Default() Config {
	return Config{
		DialTimeout: "10s",
		Peer:        PeerConfig{Addr: ":8080"},
	}
}

// Load reads a configuration file (YAML or JSON, chosen by extension) on top
// of Default and applies environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".json" {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
		}
	} else {
		// Default to YAML
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
		}
	}

	if err := cfg.ApplyEnv(); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

// FromMap decodes loose settings (e.g. from flags or an embedding host) on
// top of Default. Unknown keys are rejected.
func FromMap(m map[string]any) (Config, error) {
	cfg := Default()
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &cfg,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return Config{}, err
	}
	if err := dec.Decode(m); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, cfg.Validate()
}

// ApplyEnv overrides fields from SYFT_URL and SYFT_VERBOSE when set.
func (c *Config) ApplyEnv() error {
	if v, ok := os.LookupEnv(EnvURL); ok {
		c.URL = v
	}
	if v, ok := os.LookupEnv(EnvVerbose); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvVerbose, err)
		}
		c.Verbose = b
	}
	return nil
}

// Validate checks URL scheme and duration syntax.
func (c Config) Validate() error {
	if c.URL != "" {
		u, err := url.Parse(c.URL)
		if err != nil {
			return fmt.Errorf("invalid url: %w", err)
		}
		if u.Scheme != "ws" && u.Scheme != "wss" {
			return fmt.Errorf("invalid url %q: scheme must be ws or wss", c.URL)
		}
	}
	if _, err := parseDuration(c.DialTimeout); err != nil {
		return fmt.Errorf("invalid dial_timeout: %w", err)
	}
	if _, err := parseDuration(c.Redis.TTL); err != nil {
		return fmt.Errorf("invalid redis.ttl: %w", err)
	}
	return nil
}

// DialTimeoutDuration returns the handshake timeout, zero when unset.
func (c Config) DialTimeoutDuration() time.Duration {
	d, _ := parseDuration(c.DialTimeout)
	return d
}

// RedisTTL returns the tensor expiration, zero (no expiration) when unset.
func (c Config) RedisTTL() time.Duration {
	d, _ := parseDuration(c.Redis.TTL)
	return d
}

func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}
