package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultKeyword is selected implicitly when a client streams audio
// without requesting a keyword first
const DefaultKeyword = "porcupine"

// Config represents the complete service configuration
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	HTTP    HTTPConfig    `yaml:"http"`
	Engine  EngineConfig  `yaml:"engine"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig contains the client-facing transport configuration
type ServerConfig struct {
	URI string `yaml:"uri"` // tcp://host:port, unix://path or stdio://
}

// HTTPConfig contains the monitoring HTTP server configuration
type HTTPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// EngineConfig contains detection engine and keyword discovery parameters
type EngineConfig struct {
	DataDir            string  `yaml:"data_dir"`              // Engine libraries and built-in keyword models
	CustomWakeWordsDir string  `yaml:"custom_wake_words_dir"` // Optional custom keyword models
	System             string  `yaml:"system"`                // linux, raspberry-pi or mac; auto-detected when empty
	Sensitivity        float32 `yaml:"sensitivity"`           // Detection sensitivity in [0,1]
	AccessKey          string  `yaml:"access_key"`            // Engine access credentials
	DefaultKeyword     string  `yaml:"default_keyword"`
	CaptureDir         string  `yaml:"capture_dir"` // Optional utterance WAV capture for debugging
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Default returns the configuration used when no config file is given.
// Logs go to stderr because the stdio transport owns stdout.
func Default() *Config {
	return &Config{
		Server: ServerConfig{URI: "stdio://"},
		HTTP:   HTTPConfig{Enabled: false, Address: "127.0.0.1:8090"},
		Engine: EngineConfig{
			DataDir:        "data",
			Sensitivity:    0.5,
			DefaultKeyword: DefaultKeyword,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}

// Load reads and parses the configuration file on top of the defaults
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// Validate performs validation of the complete configuration
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Engine.Validate(); err != nil {
		return fmt.Errorf("engine config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates the transport configuration
func (s *ServerConfig) Validate() error {
	if s.URI == "" {
		return fmt.Errorf("uri cannot be empty")
	}

	scheme, _, found := strings.Cut(s.URI, "://")
	if !found {
		return fmt.Errorf("uri must have the form scheme://address, got %q", s.URI)
	}

	switch scheme {
	case "tcp", "unix", "stdio":
		return nil
	default:
		return fmt.Errorf("uri scheme must be tcp, unix or stdio, got %q", scheme)
	}
}

// Validate validates the monitoring HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Enabled && h.Address == "" {
		return fmt.Errorf("address cannot be empty when HTTP is enabled")
	}
	return nil
}

// Validate validates the engine configuration
func (e *EngineConfig) Validate() error {
	if e.DataDir == "" {
		return fmt.Errorf("data_dir cannot be empty")
	}

	if e.Sensitivity < 0 || e.Sensitivity > 1 {
		return fmt.Errorf("sensitivity must be between 0 and 1, got %f", e.Sensitivity)
	}

	if e.System != "" && e.System != "linux" && e.System != "raspberry-pi" && e.System != "mac" {
		return fmt.Errorf("system must be one of [linux, raspberry-pi, mac], got %q", e.System)
	}

	if e.DefaultKeyword == "" {
		return fmt.Errorf("default_keyword cannot be empty")
	}

	return nil
}

// Validate validates the logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got %q", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got %q", l.Format)
	}

	return nil
}
