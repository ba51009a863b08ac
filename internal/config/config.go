// Package config loads the engine's configuration from the environment,
// with an optional YAML overlay merged on top. Grounded on the teacher's
// pkg/database/config.go getEnvOrDefault/strconv shape and
// pkg/config/loader.go's yaml.v3 + mergo overlay pattern.
package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config is the engine's fully resolved configuration.
type Config struct {
	// Core engine settings (spec.md §6).
	MaxTaskDurationSeconds int
	TestMode               bool
	LogLevel               string

	DB   DatabaseConfig
	HTTP HTTPConfig
}

// DatabaseConfig mirrors the teacher's pkg/database/config.go Config shape.
type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Database     string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

// HTTPConfig is the ambient HTTP-serving configuration every deployment of
// this shape carries, mirroring cmd/tarsy/main.go's server setup.
type HTTPConfig struct {
	Port    string
	GinMode string
}

// Load resolves Config from the environment, then — if CONFIG_DIR/engine.yaml
// exists — merges a YAML overlay on top via mergo.WithOverride (see
// overlay.go). Operators who don't need fleet-wide tuning never need the
// overlay file at all; env vars alone produce a complete Config.
func Load() (Config, error) {
	port, err := strconv.Atoi(getEnvOrDefault("DB_PORT", "5432"))
	if err != nil {
		return Config{}, fmt.Errorf("config: invalid DB_PORT: %w", err)
	}

	maxOpen, err := strconv.Atoi(getEnvOrDefault("DB_MAX_OPEN_CONNS", "25"))
	if err != nil {
		return Config{}, fmt.Errorf("config: invalid DB_MAX_OPEN_CONNS: %w", err)
	}

	maxIdle, err := strconv.Atoi(getEnvOrDefault("DB_MAX_IDLE_CONNS", "10"))
	if err != nil {
		return Config{}, fmt.Errorf("config: invalid DB_MAX_IDLE_CONNS: %w", err)
	}

	maxDuration, err := strconv.Atoi(getEnvOrDefault("MAX_TASK_DURATION_SECONDS", "600"))
	if err != nil {
		return Config{}, fmt.Errorf("config: invalid MAX_TASK_DURATION_SECONDS: %w", err)
	}

	testMode, err := strconv.ParseBool(getEnvOrDefault("TEST_MODE", "false"))
	if err != nil {
		return Config{}, fmt.Errorf("config: invalid TEST_MODE: %w", err)
	}

	cfg := Config{
		MaxTaskDurationSeconds: maxDuration,
		TestMode:               testMode,
		LogLevel:               getEnvOrDefault("LOG_LEVEL", "info"),
		DB: DatabaseConfig{
			Host:         getEnvOrDefault("DB_HOST", "localhost"),
			Port:         port,
			User:         getEnvOrDefault("DB_USER", "taskengine"),
			Password:     os.Getenv("DB_PASSWORD"),
			Database:     getEnvOrDefault("DB_NAME", "taskengine"),
			SSLMode:      getEnvOrDefault("DB_SSLMODE", "disable"),
			MaxOpenConns: maxOpen,
			MaxIdleConns: maxIdle,
		},
		HTTP: HTTPConfig{
			Port:    getEnvOrDefault("HTTP_PORT", "8080"),
			GinMode: getEnvOrDefault("GIN_MODE", "debug"),
		},
	}

	if dir := os.Getenv("CONFIG_DIR"); dir != "" {
		if err := applyYAMLOverlay(&cfg, dir); err != nil {
			return Config{}, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks invariants Load alone cannot enforce (an overlay file may
// have set fields Load's own parsing never touches).
func (c Config) Validate() error {
	if c.MaxTaskDurationSeconds < 1 {
		return fmt.Errorf("config: max_task_duration_seconds must be at least 1")
	}
	if c.DB.MaxIdleConns > c.DB.MaxOpenConns {
		return fmt.Errorf("config: DB_MAX_IDLE_CONNS (%d) cannot exceed DB_MAX_OPEN_CONNS (%d)",
			c.DB.MaxIdleConns, c.DB.MaxOpenConns)
	}
	if c.DB.MaxOpenConns < 1 {
		return fmt.Errorf("config: DB_MAX_OPEN_CONNS must be at least 1")
	}
	return nil
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
