package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dosetrack/medsync/logging"
)

// Duration decodes YAML strings like "45s" or "2m" into a time.Duration.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// Config is the daemon configuration, loaded from a YAML file.
type Config struct {
	// Store is the path to the local SQLite database file.
	Store string `yaml:"store"`

	// Remote is the base URL of the sync API.
	Remote string `yaml:"remote"`

	// Strategy selects the conflict resolution strategy:
	// local_wins, server_wins or medical_priority.
	Strategy string `yaml:"strategy"`

	// Schedule is a cron expression controlling when background syncs run.
	// Empty means sync once and exit.
	Schedule string `yaml:"schedule"`

	// RateLimit caps outgoing requests per second. Zero disables limiting.
	RateLimit float64 `yaml:"rate_limit"`

	// Timeout bounds a single sync cycle.
	Timeout Duration `yaml:"timeout"`

	Logging logging.Config `yaml:"logging"`
}

func defaultConfig() Config {
	return Config{
		Store:    "medsync.db",
		Strategy: "medical_priority",
		Timeout:  Duration(30 * time.Second),
		Logging: logging.Config{
			Level:  "info",
			Format: "json",
		},
	}
}

// LoadConfig reads and validates the daemon configuration from path.
func LoadConfig(path string) (Config, error) {
	config := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return config, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return config, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := config.validate(); err != nil {
		return config, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return config, nil
}

func (c Config) validate() error {
	if c.Store == "" {
		return fmt.Errorf("store path is required")
	}
	if c.Remote == "" {
		return fmt.Errorf("remote URL is required")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("rate_limit cannot be negative")
	}
	return nil
}
