package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// History store drivers
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
)

// Config holds application configuration
type Config struct {
	Model    string        `yaml:"model"`
	Endpoint string        `yaml:"endpoint"`
	Timeout  time.Duration `yaml:"-"` // set from the timeout key, see LoadFile
	Debug    bool          `yaml:"debug"`

	// History persistence
	HistoryDriver string `yaml:"history_driver"` // memory|sqlite|redis
	HistoryPath   string `yaml:"history_path"`   // sqlite database file
	RedisAddr     string `yaml:"redis_addr"`
	SessionID     string `yaml:"session_id"` // history record key, empty for the default slot

	// Web UI bridge
	Web     bool   `yaml:"web"`
	WebAddr string `yaml:"web_addr"`
}

// Default returns the baseline configuration before file and flag overrides.
func Default() Config {
	return Config{
		Model:         "gemini-2.0-flash",
		Timeout:       30 * time.Second,
		HistoryDriver: DriverSQLite,
		HistoryPath:   "gemchat.db",
		RedisAddr:     "localhost:6379",
		WebAddr:       ":8080",
	}
}

// LoadFile overlays values from a YAML config file onto cfg.
// A missing file is not an error when the path is empty.
func LoadFile(path string, cfg *Config) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	// Durations carry unit suffixes ("30s"), which yaml cannot decode
	// into time.Duration on its own.
	var overlay struct {
		Timeout string `yaml:"timeout"`
	}
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	if overlay.Timeout != "" {
		d, err := time.ParseDuration(overlay.Timeout)
		if err != nil {
			return fmt.Errorf("invalid timeout in config file: %w", err)
		}
		cfg.Timeout = d
	}
	return nil
}

// APIKey returns the credential from the environment. The key is never
// stored in config files or embedded in shipped assets.
func APIKey() (string, error) {
	key := os.Getenv("GEMINI_API_KEY")
	if key == "" {
		return "", fmt.Errorf("GEMINI_API_KEY not set")
	}
	return key, nil
}
