package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Mode    string        `yaml:"mode"`
	Relay   RelayConfig   `yaml:"relay"`
	GPS     GPSConfig     `yaml:"gps"`
	Log     LogConfig     `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
}

type RelayConfig struct {
	Port        string        `yaml:"port"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
	// Prompt controls the ">> " prompt: "auto" (only on a terminal), "always"
	// or "never".
	Prompt string `yaml:"prompt"`
	// LineBufferBytes is the initial line buffer capacity.
	LineBufferBytes int `yaml:"line_buffer_bytes"`
}

type GPSConfig struct {
	GPSDAddr      string        `yaml:"gpsd_addr"`
	DialTimeout   time.Duration `yaml:"dial_timeout"`
	PollTimeout   time.Duration `yaml:"poll_timeout"`
	TimeoutPolicy string        `yaml:"timeout_policy"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type MetricsConfig struct {
	// Listen is host:port for the Prometheus endpoint. Empty disables it.
	Listen string `yaml:"listen"`
}

// Default returns a config with every default applied.
func Default() Config {
	var cfg Config
	_ = cfg.applyDefaults()
	return cfg
}

// Load reads a YAML config. An empty path yields Default().
func Load(path string) (Config, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.applyDefaults(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate re-checks a config after flag overrides.
func (c *Config) Validate() error {
	return c.applyDefaults()
}

func (c *Config) applyDefaults() error {
	c.Mode = strings.ToLower(strings.TrimSpace(c.Mode))
	if c.Mode == "" {
		c.Mode = "relay"
	}
	if c.Mode != "relay" && c.Mode != "monitor" {
		return fmt.Errorf("mode must be 'relay' or 'monitor'")
	}

	if strings.TrimSpace(c.Relay.Port) == "" {
		c.Relay.Port = "12345"
	}
	if c.Relay.DialTimeout <= 0 {
		c.Relay.DialTimeout = 5 * time.Second
	}
	c.Relay.Prompt = strings.ToLower(strings.TrimSpace(c.Relay.Prompt))
	switch c.Relay.Prompt {
	case "":
		c.Relay.Prompt = "auto"
	case "auto", "always", "never":
	default:
		return fmt.Errorf("relay.prompt must be one of auto, always, never")
	}
	if c.Relay.LineBufferBytes == 0 {
		c.Relay.LineBufferBytes = 1024
	}
	if c.Relay.LineBufferBytes < 2 {
		return fmt.Errorf("relay.line_buffer_bytes must be >= 2")
	}

	if strings.TrimSpace(c.GPS.GPSDAddr) == "" {
		c.GPS.GPSDAddr = "127.0.0.1:2947"
	}
	if c.GPS.DialTimeout <= 0 {
		c.GPS.DialTimeout = 2 * time.Second
	}
	if c.GPS.PollTimeout <= 0 {
		c.GPS.PollTimeout = 5 * time.Second
	}
	c.GPS.TimeoutPolicy = strings.ToLower(strings.TrimSpace(c.GPS.TimeoutPolicy))
	switch c.GPS.TimeoutPolicy {
	case "":
		c.GPS.TimeoutPolicy = "retry"
	case "retry", "fatal_after_timeout":
	default:
		return fmt.Errorf("gps.timeout_policy must be 'retry' or 'fatal_after_timeout'")
	}

	if strings.TrimSpace(c.Log.Level) == "" {
		c.Log.Level = "info"
	}
	return nil
}
