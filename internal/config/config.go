// Package config handles the langrpc configuration file.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// CurrentConfigVersion is the current version of the config file format.
const CurrentConfigVersion = 1

const (
	EnvEndpoint = "LANGRPC_ENDPOINT"
	EnvTimeout  = "LANGRPC_TIMEOUT"
	EnvLogLevel = "LANGRPC_LOG_LEVEL"
)

// Config represents the langrpc.yaml configuration file.
type Config struct {
	Version int `yaml:"version"`

	// Endpoint is the base URL of the served pipeline, e.g.
	// http://localhost:8000/summarize
	Endpoint      string            `yaml:"endpoint,omitempty"`
	Timeout       time.Duration     `yaml:"timeout,omitempty"`
	Serializer    string            `yaml:"serializer,omitempty"`
	Compressor    string            `yaml:"compressor,omitempty"`
	Headers       map[string]string `yaml:"headers,omitempty"`
	ValidateInput bool              `yaml:"validate_input,omitempty"`
	LogLevel      string            `yaml:"log_level,omitempty"`

	RateLimit *RateLimit `yaml:"rate_limit,omitempty"`
	Server    *Server    `yaml:"server,omitempty"`
}

// RateLimit is a token bucket: Burst tokens, one more every Interval.
type RateLimit struct {
	Burst    int           `yaml:"burst"`
	Interval time.Duration `yaml:"interval"`
}

type Server struct {
	Address        string `yaml:"address"`
	CORS           bool   `yaml:"cors,omitempty"`
	H2C            bool   `yaml:"h2c,omitempty"`
	MaxConcurrency int    `yaml:"max_concurrency,omitempty"`
}

// Default is the configuration used without a file.
func Default() *Config {
	return &Config{
		Version:  CurrentConfigVersion,
		Endpoint: "http://localhost:8000",
		Timeout:  30 * time.Second,
	}
}

// Load reads a Config from a file path. Unset fields keep their defaults.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close() //nolint:errcheck

	cfg := Default()
	if err := yaml.NewDecoder(f).Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the Config to a file path.
func (c *Config) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close() //nolint:errcheck

	enc := yaml.NewEncoder(f)
	enc.SetIndent(2)
	return enc.Encode(c)
}

// ApplyEnv overrides fields from LANGRPC_* variables.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if v := getenv(EnvEndpoint); v != "" {
		c.Endpoint = v
	}
	if v := getenv(EnvTimeout); v != "" {
		d, err := ParseTimeout(v)
		if err != nil {
			return fmt.Errorf("config: %s: %w", EnvTimeout, err)
		}
		c.Timeout = d
	}
	if v := getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
	return nil
}

// ParseTimeout accepts a Go duration ("1m30s") or plain seconds ("90").
func ParseTimeout(s string) (time.Duration, error) {
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	return time.ParseDuration(s)
}

// Validate checks the configuration for required fields and valid values.
func (c *Config) Validate() error {
	if c.Version != CurrentConfigVersion {
		return errors.New("config: unsupported config version")
	}
	if c.Endpoint == "" {
		return errors.New("config: endpoint is required")
	}
	u, err := url.Parse(c.Endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("config: invalid endpoint %q", c.Endpoint)
	}
	if c.Timeout < 0 {
		return errors.New("config: timeout must not be negative")
	}
	if c.RateLimit != nil && (c.RateLimit.Burst <= 0 || c.RateLimit.Interval <= 0) {
		return errors.New("config: rate_limit needs a positive burst and interval")
	}
	if c.Server != nil && c.Server.MaxConcurrency < 0 {
		return errors.New("config: max_concurrency must not be negative")
	}
	return nil
}
