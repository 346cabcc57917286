// Package config loads runtime configuration from the environment with an
// optional YAML file overlay. Values resolve file < environment, so
// deployments can ship a base file and override per-instance through env.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config is the process-level configuration.
type Config struct {
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `env:"KERNELMESH_LOG_LEVEL" yaml:"log_level"`
	// LogFormat is json or text.
	LogFormat string `env:"KERNELMESH_LOG_FORMAT" yaml:"log_format"`

	// StoragePath is the SQLite database file for durable snapshots. Empty
	// selects the in-memory persistor.
	StoragePath string `env:"KERNELMESH_STORAGE_PATH" yaml:"storage_path"`
	// MaxSnapshots bounds the in-memory persistor's retention. 0 means
	// unbounded. Ignored when StoragePath is set.
	MaxSnapshots int `env:"KERNELMESH_MAX_SNAPSHOTS" yaml:"max_snapshots"`

	// Session lifecycle tuning.
	MaxSessions            int           `env:"KERNELMESH_MAX_SESSIONS" yaml:"max_sessions"`
	SessionTimeout         time.Duration `env:"KERNELMESH_SESSION_TIMEOUT" yaml:"session_timeout"`
	MaxConversationHistory int           `env:"KERNELMESH_MAX_CONVERSATION_HISTORY" yaml:"max_conversation_history"`
	SweepInterval          time.Duration `env:"KERNELMESH_SWEEP_INTERVAL" yaml:"sweep_interval"`

	// Per-session state bounds.
	MaxNamespaces    int `env:"KERNELMESH_MAX_NAMESPACES" yaml:"max_namespaces"`
	MaxNamespaceSize int `env:"KERNELMESH_MAX_NAMESPACE_SIZE" yaml:"max_namespace_size"`

	// RateLimitWindow is the admission layer's rate limit window.
	RateLimitWindow time.Duration `env:"KERNELMESH_RATE_LIMIT_WINDOW" yaml:"rate_limit_window"`
}

// Default returns the baseline configuration.
func Default() Config {
	return Config{
		LogLevel:               "info",
		LogFormat:              "json",
		MaxSessions:            1000,
		SessionTimeout:         30 * time.Minute,
		MaxConversationHistory: 50,
		SweepInterval:          time.Minute,
		MaxNamespaces:          16,
		MaxNamespaceSize:       256,
		RateLimitWindow:        time.Minute,
	}
}

// Load resolves configuration from defaults and the environment.
func Load() (Config, error) {
	cfg := Default()
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// LoadFile resolves configuration from defaults, a YAML file and the
// environment, in that order.
func LoadFile(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}

	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
