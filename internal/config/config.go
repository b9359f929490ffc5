// Package config loads orgstore server configuration from YAML
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config is the full server configuration
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Log     LogConfig     `yaml:"log"`
}

// ServerConfig holds listener ports
type ServerConfig struct {
	Port        int           `yaml:"port" validate:"required,min=1,max=65535"`
	MetricsPort int           `yaml:"metrics_port" validate:"required,min=1,max=65535,nefield=Port"`
	ShutdownTTL time.Duration `yaml:"shutdown_timeout" validate:"min=0"`
}

// StorageConfig holds Badger settings
type StorageConfig struct {
	Path           string        `yaml:"path" validate:"required_without=InMemory"`
	InMemory       bool          `yaml:"in_memory"`
	SyncWrites     bool          `yaml:"sync_writes"`
	GCInterval     time.Duration `yaml:"gc_interval" validate:"min=0"`
	GCDiscardRatio float64       `yaml:"gc_discard_ratio" validate:"gt=0,lt=1"`
}

// LogConfig holds logger settings
type LogConfig struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	Pretty bool   `yaml:"pretty"`
	Caller bool   `yaml:"caller"`
}

var validate = validator.New()

// Default returns the configuration used when no file is given
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:        50051,
			MetricsPort: 9090,
			ShutdownTTL: 10 * time.Second,
		},
		Storage: StorageConfig{
			Path:           "./orgstore.db",
			SyncWrites:     true,
			GCInterval:     5 * time.Minute,
			GCDiscardRatio: 0.5,
		},
		Log: LogConfig{
			Level:  "info",
			Pretty: true,
		},
	}
}

// Load reads path on top of Default. An empty path yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, cfg.Validate()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks field constraints
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Write stores cfg as YAML at path
func Write(path string, cfg Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
