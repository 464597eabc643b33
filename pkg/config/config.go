package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Backend struct {
		// BaseURL is the control-plane base, e.g. "http://edge.local:8080".
		// The health probe hits <base>/status and the camera list channel
		// lives at <base>/ws/cameras.
		BaseURL string `yaml:"base_url"`
	} `yaml:"backend"`

	Monitor struct {
		PollInterval time.Duration `yaml:"poll_interval"`
		ProbeTimeout time.Duration `yaml:"probe_timeout"`
	} `yaml:"monitor"`

	Signaling struct {
		PingInterval time.Duration `yaml:"ping_interval"`

		// Reconnect delays are fixed per call site; there is no
		// exponential backoff anywhere in this client.
		CameraListRetryDelay time.Duration `yaml:"camera_list_retry_delay"`
		ControlRetryDelay    time.Duration `yaml:"control_retry_delay"`
		SessionRetryDelay    time.Duration `yaml:"session_retry_delay"`
	} `yaml:"signaling"`

	WebRTC struct {
		STUNServers []string `yaml:"stun_servers"`
	} `yaml:"webrtc"`

	Overlay struct {
		// Expiry is how long a detection batch stays renderable.
		Expiry time.Duration `yaml:"expiry"`
		// FrameRate drives the render loop tick, in frames per second.
		FrameRate int `yaml:"frame_rate"`
	} `yaml:"overlay"`

	Status struct {
		Address           string  `yaml:"address"`
		RequestsPerSecond float64 `yaml:"requests_per_second"`
		Burst             int     `yaml:"burst"`
	} `yaml:"status"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// DefaultConfig returns the configuration used when no file overrides it.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.Backend.BaseURL = "http://localhost:8080"
	cfg.Monitor.PollInterval = 5 * time.Second
	cfg.Monitor.ProbeTimeout = 5 * time.Second
	cfg.Signaling.PingInterval = 10 * time.Second
	cfg.Signaling.CameraListRetryDelay = 1 * time.Second
	cfg.Signaling.ControlRetryDelay = 3 * time.Second
	cfg.Signaling.SessionRetryDelay = 4 * time.Second
	cfg.WebRTC.STUNServers = []string{"stun:stun.l.google.com:19302"}
	cfg.Overlay.Expiry = 1000 * time.Millisecond
	cfg.Overlay.FrameRate = 30
	cfg.Status.Address = ":8090"
	cfg.Status.RequestsPerSecond = 20
	cfg.Status.Burst = 40
	cfg.Logging.Level = "info"
	return cfg
}

// Load reads a YAML file over the defaults and validates the result.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	if c.Backend.BaseURL == "" {
		return fmt.Errorf("backend.base_url must not be empty")
	}

	if c.Monitor.PollInterval <= 0 {
		return fmt.Errorf("monitor.poll_interval must be > 0")
	}
	if c.Monitor.ProbeTimeout <= 0 {
		return fmt.Errorf("monitor.probe_timeout must be > 0")
	}

	if c.Signaling.PingInterval <= 0 {
		return fmt.Errorf("signaling.ping_interval must be > 0")
	}
	if c.Signaling.CameraListRetryDelay <= 0 {
		return fmt.Errorf("signaling.camera_list_retry_delay must be > 0")
	}
	if c.Signaling.ControlRetryDelay <= 0 {
		return fmt.Errorf("signaling.control_retry_delay must be > 0")
	}
	if c.Signaling.SessionRetryDelay <= 0 {
		return fmt.Errorf("signaling.session_retry_delay must be > 0")
	}

	if len(c.WebRTC.STUNServers) == 0 {
		return fmt.Errorf("webrtc.stun_servers must not be empty")
	}

	if c.Overlay.Expiry <= 0 {
		return fmt.Errorf("overlay.expiry must be > 0")
	}
	if c.Overlay.FrameRate <= 0 {
		return fmt.Errorf("overlay.frame_rate must be > 0")
	}

	if c.Status.Address == "" {
		return fmt.Errorf("status.address must not be empty")
	}
	if c.Status.RequestsPerSecond <= 0 {
		return fmt.Errorf("status.requests_per_second must be > 0")
	}
	if c.Status.Burst <= 0 {
		return fmt.Errorf("status.burst must be > 0")
	}

	if c.Logging.Level == "" {
		return fmt.Errorf("logging.level must not be empty")
	}

	return nil
}
