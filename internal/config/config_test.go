package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfigIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Errorf("default config must validate: %v", err)
	}
}

func TestServerConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		uri     string
		wantErr bool
	}{
		{"tcp", "tcp://0.0.0.0:10400", false},
		{"unix", "unix:///run/wakeword.sock", false},
		{"stdio", "stdio://", false},
		{"empty", "", true},
		{"no scheme", "0.0.0.0:10400", true},
		{"bad scheme", "udp://0.0.0.0:10400", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := ServerConfig{URI: tt.uri}
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestHTTPConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     HTTPConfig
		wantErr bool
	}{
		{"disabled without address", HTTPConfig{Enabled: false}, false},
		{"enabled with address", HTTPConfig{Enabled: true, Address: "127.0.0.1:8090"}, false},
		{"enabled without address", HTTPConfig{Enabled: true}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestEngineConfigValidate(t *testing.T) {
	valid := EngineConfig{
		DataDir:        "data",
		Sensitivity:    0.5,
		DefaultKeyword: "porcupine",
	}

	tests := []struct {
		name    string
		mutate  func(*EngineConfig)
		wantErr bool
	}{
		{"valid", func(e *EngineConfig) {}, false},
		{"explicit system", func(e *EngineConfig) { e.System = "raspberry-pi" }, false},
		{"sensitivity bounds", func(e *EngineConfig) { e.Sensitivity = 1.0 }, false},
		{"empty data dir", func(e *EngineConfig) { e.DataDir = "" }, true},
		{"sensitivity too high", func(e *EngineConfig) { e.Sensitivity = 1.5 }, true},
		{"sensitivity negative", func(e *EngineConfig) { e.Sensitivity = -0.1 }, true},
		{"unknown system", func(e *EngineConfig) { e.System = "windows" }, true},
		{"empty default keyword", func(e *EngineConfig) { e.DefaultKeyword = "" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoggingConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     LoggingConfig
		wantErr bool
	}{
		{"text info", LoggingConfig{Level: "info", Format: "text"}, false},
		{"json debug", LoggingConfig{Level: "debug", Format: "json"}, false},
		{"bad level", LoggingConfig{Level: "trace", Format: "text"}, true},
		{"bad format", LoggingConfig{Level: "info", Format: "logfmt"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  uri: tcp://0.0.0.0:10400
engine:
  access_key: secret
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.URI != "tcp://0.0.0.0:10400" {
		t.Errorf("expected file value for uri, got %q", cfg.Server.URI)
	}
	if cfg.Engine.AccessKey != "secret" {
		t.Errorf("expected file value for access_key, got %q", cfg.Engine.AccessKey)
	}

	// Fields absent from the file keep their defaults
	if cfg.Engine.Sensitivity != 0.5 {
		t.Errorf("expected default sensitivity 0.5, got %v", cfg.Engine.Sensitivity)
	}
	if cfg.Engine.DefaultKeyword != DefaultKeyword {
		t.Errorf("expected default keyword %q, got %q", DefaultKeyword, cfg.Engine.DefaultKeyword)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("expected default log level, got %q", cfg.Logging.Level)
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
engine:
  sensitivity: 2.0
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Error("expected validation error for out-of-range sensitivity")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing config file")
	}
}
