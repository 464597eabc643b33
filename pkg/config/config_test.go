package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig_IsValid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("expected defaults to validate, got: %v", err)
	}
}

func TestLoad_OverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	content := `
backend:
  base_url: "http://edge.lan:9000"
status:
  address: ":9090"
logging:
  level: "debug"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Backend.BaseURL != "http://edge.lan:9000" {
		t.Errorf("unexpected base_url: %s", cfg.Backend.BaseURL)
	}
	if cfg.Status.Address != ":9090" {
		t.Errorf("unexpected status address: %s", cfg.Status.Address)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("unexpected level: %s", cfg.Logging.Level)
	}

	// Untouched sections keep their defaults.
	if cfg.Monitor.PollInterval != 5*time.Second {
		t.Errorf("unexpected poll interval: %v", cfg.Monitor.PollInterval)
	}
	if cfg.Signaling.SessionRetryDelay != 4*time.Second {
		t.Errorf("unexpected session retry delay: %v", cfg.Signaling.SessionRetryDelay)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/does/not/exist.yaml"); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestValidate_InvalidValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty base url", func(c *Config) { c.Backend.BaseURL = "" }},
		{"zero poll interval", func(c *Config) { c.Monitor.PollInterval = 0 }},
		{"zero probe timeout", func(c *Config) { c.Monitor.ProbeTimeout = 0 }},
		{"zero ping interval", func(c *Config) { c.Signaling.PingInterval = 0 }},
		{"zero camera list retry", func(c *Config) { c.Signaling.CameraListRetryDelay = 0 }},
		{"zero control retry", func(c *Config) { c.Signaling.ControlRetryDelay = 0 }},
		{"zero session retry", func(c *Config) { c.Signaling.SessionRetryDelay = 0 }},
		{"no stun servers", func(c *Config) { c.WebRTC.STUNServers = nil }},
		{"zero overlay expiry", func(c *Config) { c.Overlay.Expiry = 0 }},
		{"zero frame rate", func(c *Config) { c.Overlay.FrameRate = 0 }},
		{"empty status address", func(c *Config) { c.Status.Address = "" }},
		{"zero rps", func(c *Config) { c.Status.RequestsPerSecond = 0 }},
		{"zero burst", func(c *Config) { c.Status.Burst = 0 }},
		{"empty log level", func(c *Config) { c.Logging.Level = "" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
