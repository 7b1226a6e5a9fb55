package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the server configuration.
type Config struct {
	// Listen is the HTTP listen address.
	Listen string `yaml:"listen"`

	// SQLitePath is the relational store location. ":memory:" for ephemeral.
	SQLitePath string `yaml:"sqlite_path"`

	// NATS configures the signaling store. When disabled the server runs
	// on the in-process store, which only works single-node.
	NATS NATSConfig `yaml:"nats"`

	// Agora holds the media transport credentials used to mint tokens.
	Agora AgoraConfig `yaml:"agora"`

	// Retry bounds collaborator-not-ready retries.
	Retry RetryConfig `yaml:"retry"`
}

type NATSConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Bucket  string `yaml:"bucket"`
}

type AgoraConfig struct {
	AppID          string `yaml:"app_id"`
	AppCertificate string `yaml:"app_certificate"`
}

type RetryConfig struct {
	MaxAttempts int `yaml:"max_attempts"`
	StepMillis  int `yaml:"step_ms"`
}

func (r RetryConfig) Step() time.Duration {
	return time.Duration(r.StepMillis) * time.Millisecond
}

func Default() *Config {
	return &Config{
		Listen:     ":8080",
		SQLitePath: "data/comms.db",
		NATS: NATSConfig{
			URL:    "nats://127.0.0.1:4222",
			Bucket: "bmsc-signals",
		},
		Retry: RetryConfig{
			MaxAttempts: 4,
			StepMillis:  250,
		},
	}
}

// Load reads configuration from a YAML file, falling back to defaults when
// the file does not exist. Credentials may also come from the environment
// (AGORA_APP_ID, AGORA_APP_CERTIFICATE), which wins over the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if v := os.Getenv("AGORA_APP_ID"); v != "" {
		cfg.Agora.AppID = v
	}
	if v := os.Getenv("AGORA_APP_CERTIFICATE"); v != "" {
		cfg.Agora.AppCertificate = v
	}
	if v := os.Getenv("NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}

	if cfg.Retry.MaxAttempts < 1 {
		return nil, fmt.Errorf("retry.max_attempts must be at least 1")
	}
	return cfg, nil
}
