// Package config holds the bridge's runtime tuning: reconnect backoff,
// pending-queue capacity, socket timeouts, and the destination alias map.
// Values load from a JSON file with WSBRIDGE_* environment overrides.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Backoff      BackoffConfig     `json:"backoff"`
	Queue        QueueConfig       `json:"queue"`
	Socket       SocketConfig      `json:"socket"`
	// Destinations maps a short alias to a ws:// or wss:// URL. File-only:
	// URL values clash with env's key:value list separator.
	Destinations map[string]string `json:"destinations,omitempty"`
	Log          LogConfig         `json:"log"`
}

// BackoffConfig controls the reconnect schedule after transport failures.
type BackoffConfig struct {
	BaseMS int `env:"WSBRIDGE_BACKOFF_BASE_MS" json:"base_ms"`
	MaxMS  int `env:"WSBRIDGE_BACKOFF_MAX_MS"  json:"max_ms"`
}

func (b BackoffConfig) Base() time.Duration { return time.Duration(b.BaseMS) * time.Millisecond }
func (b BackoffConfig) Max() time.Duration  { return time.Duration(b.MaxMS) * time.Millisecond }

// QueueConfig bounds the per-destination pending-send queue.
type QueueConfig struct {
	Capacity int `env:"WSBRIDGE_QUEUE_CAPACITY" json:"capacity"`
}

type SocketConfig struct {
	HandshakeTimeoutMS int `env:"WSBRIDGE_SOCKET_HANDSHAKE_TIMEOUT_MS" json:"handshake_timeout_ms"`
	WriteTimeoutMS     int `env:"WSBRIDGE_SOCKET_WRITE_TIMEOUT_MS"     json:"write_timeout_ms"`
}

func (s SocketConfig) HandshakeTimeout() time.Duration {
	return time.Duration(s.HandshakeTimeoutMS) * time.Millisecond
}

func (s SocketConfig) WriteTimeout() time.Duration {
	return time.Duration(s.WriteTimeoutMS) * time.Millisecond
}

type LogConfig struct {
	Level string `env:"WSBRIDGE_LOG_LEVEL" json:"level"`
	File  string `env:"WSBRIDGE_LOG_FILE"  json:"file,omitempty"`
}

func DefaultConfig() *Config {
	return &Config{
		Backoff: BackoffConfig{
			BaseMS: 500,
			MaxMS:  30_000,
		},
		Queue: QueueConfig{
			Capacity: 64,
		},
		Socket: SocketConfig{
			HandshakeTimeoutMS: 10_000,
			WriteTimeoutMS:     10_000,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// LoadConfig reads the config file at path, applies environment overrides,
// and validates. A missing file is not an error; defaults apply.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
	} else if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config %s: %w", path, err)
	}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func SaveConfig(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o600)
}

func (c *Config) Validate() error {
	if c.Queue.Capacity <= 0 {
		return errors.New("queue capacity must be positive")
	}
	if c.Backoff.BaseMS <= 0 {
		return errors.New("backoff base must be positive")
	}
	if c.Backoff.MaxMS < c.Backoff.BaseMS {
		return errors.New("backoff max must be at least the base")
	}
	// A zero write timeout would leave a stalled endpoint holding its
	// worker's write forever, so both socket deadlines must be real.
	if c.Socket.HandshakeTimeoutMS <= 0 {
		return errors.New("socket handshake timeout must be positive")
	}
	if c.Socket.WriteTimeoutMS <= 0 {
		return errors.New("socket write timeout must be positive")
	}
	return nil
}
