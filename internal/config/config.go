// Package config loads stateres settings from the environment.
// Command-line flags override these values.
package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/caarlos0/env/v11"
)

// Config holds environment-provided defaults for the stateres CLI.
type Config struct {
	// Database is the SQLite event store path.
	Database string `env:"STATERES_DB"`

	// Format is the default output format ("json" or "text").
	Format string `env:"STATERES_FORMAT" envDefault:"text"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `env:"STATERES_LOG_LEVEL" envDefault:"warn"`

	// RoomVersion is used when a command does not name one.
	RoomVersion string `env:"STATERES_ROOM_VERSION" envDefault:"10"`

	// OTelEndpoint enables trace export when set, e.g. http://localhost:4318.
	OTelEndpoint string `env:"STATERES_OTEL_ENDPOINT"`

	// ServiceName is the service.name resource attribute of exported spans.
	ServiceName string `env:"STATERES_SERVICE_NAME" envDefault:"stateres"`
}

// Load parses the environment into a Config.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if _, err := ParseLogLevel(cfg.LogLevel); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ParseLogLevel maps a level name to a slog.Level.
func ParseLogLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("invalid log level %q (valid: debug, info, warn, error)", name)
	}
}
