// Package config provides configuration management for the key-value
// store server. It loads settings from a YAML file and environment
// variables, with thread-safe singleton access.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

// DefaultPath is the configuration file loaded when no path is given.
const DefaultPath = "internal/config/config.yml"

// Config holds all application configuration values.
type Config struct {
	DATA_DIR           string  `yaml:"DATA_DIR"`           // Directory where store files live
	LISTEN_ADDR        string  `yaml:"LISTEN_ADDR"`        // TCP address the server listens on
	HEARTBEAT_INTERVAL uint32  `yaml:"HEARTBEAT_INTERVAL"` // Seconds between server pings
	SESSION_TIMEOUT    uint32  `yaml:"SESSION_TIMEOUT"`    // Seconds of client silence before drop
	BLOOM_CAPACITY     uint    `yaml:"BLOOM_CAPACITY"`     // Expected distinct keys for the filter
	BLOOM_FP_RATE      float64 `yaml:"BLOOM_FP_RATE"`      // Target filter false-positive rate
}

var (
	appConfig *Config
	once      sync.Once
	initErr   error
)

// LoadConfig reads configuration values from the YAML file at path and
// optionally from a .env file. It uses a sync.Once so configuration is
// loaded once even with concurrent calls. Environment variables in the
// YAML file are expanded with os.ExpandEnv.
func LoadConfig(path string) (*Config, error) {
	once.Do(func() {
		// Load .env if present (optional - no error when missing).
		if err := godotenv.Load(); err != nil {
			slog.Debug("No .env file found or error loading it", "error", err)
		} else {
			slog.Debug(".env file loaded successfully")
		}

		file, err := os.ReadFile(path)
		if err != nil {
			initErr = err
			return
		}

		cfg := Default()
		if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(file))), cfg); err != nil {
			initErr = err
			return
		}
		if err := cfg.validate(); err != nil {
			initErr = err
			return
		}
		appConfig = cfg
	})
	if initErr != nil {
		return nil, initErr
	}
	return appConfig, nil
}

// GetConfig returns the singleton configuration instance. It panics if
// configuration has not been loaded yet; call LoadConfig first.
func GetConfig() *Config {
	if appConfig == nil {
		panic("config not loaded - call LoadConfig() first")
	}
	return appConfig
}

// Default returns the built-in configuration values.
func Default() *Config {
	return &Config{
		DATA_DIR:           "./data",
		LISTEN_ADDR:        "127.0.0.1:12333",
		HEARTBEAT_INTERVAL: 1,
		SESSION_TIMEOUT:    10,
		BLOOM_CAPACITY:     1 << 20,
		BLOOM_FP_RATE:      0.01,
	}
}

func (c *Config) validate() error {
	if c.DATA_DIR == "" {
		return fmt.Errorf("DATA_DIR cannot be empty")
	}
	if c.LISTEN_ADDR == "" {
		return fmt.Errorf("LISTEN_ADDR cannot be empty")
	}
	if c.SESSION_TIMEOUT <= c.HEARTBEAT_INTERVAL {
		return fmt.Errorf("SESSION_TIMEOUT must exceed HEARTBEAT_INTERVAL")
	}
	if c.BLOOM_FP_RATE <= 0 || c.BLOOM_FP_RATE >= 1 {
		return fmt.Errorf("BLOOM_FP_RATE must be in (0, 1)")
	}
	return nil
}
