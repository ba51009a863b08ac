package config

import (
	"fmt"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// overlayFile is the optional fleet-wide config file, mirroring the
// teacher's tarsy.yaml convention but scoped to this engine's own knobs.
const overlayFile = "engine.yaml"

// overlayDoc is the subset of Config an operator may override via YAML.
// Fields absent from the file are left untouched by mergo.WithOverride,
// since yaml.Unmarshal leaves them at their Go zero value and mergo only
// overrides a destination field when the source field is non-zero.
type overlayDoc struct {
	MaxTaskDurationSeconds int              `yaml:"max_task_duration_seconds"`
	TestMode               *bool            `yaml:"test_mode"`
	LogLevel               string           `yaml:"log_level"`
	DB                     *databaseOverlay `yaml:"database"`
	HTTP                   *httpOverlay     `yaml:"http"`
}

type databaseOverlay struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	User         string `yaml:"user"`
	Database     string `yaml:"name"`
	SSLMode      string `yaml:"sslmode"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

type httpOverlay struct {
	Port    string `yaml:"port"`
	GinMode string `yaml:"gin_mode"`
}

// applyYAMLOverlay reads dir/engine.yaml, if present, and merges it onto cfg
// with mergo.WithOverride — the teacher's pkg/config/loader.go merge idiom
// for layering a YAML file over code-computed defaults. A missing file is
// not an error: the overlay is opt-in.
func applyYAMLOverlay(cfg *Config, dir string) error {
	path := filepath.Join(dir, overlayFile)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("config: reading %s: %w", path, err)
	}

	var doc overlayDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("config: parsing %s: %w", path, err)
	}

	overlay := Config{
		MaxTaskDurationSeconds: doc.MaxTaskDurationSeconds,
		LogLevel:               doc.LogLevel,
	}
	if doc.TestMode != nil {
		overlay.TestMode = *doc.TestMode
	}
	if doc.DB != nil {
		overlay.DB = DatabaseConfig{
			Host:         doc.DB.Host,
			Port:         doc.DB.Port,
			User:         doc.DB.User,
			Database:     doc.DB.Database,
			SSLMode:      doc.DB.SSLMode,
			MaxOpenConns: doc.DB.MaxOpenConns,
			MaxIdleConns: doc.DB.MaxIdleConns,
		}
	}
	if doc.HTTP != nil {
		overlay.HTTP = HTTPConfig{Port: doc.HTTP.Port, GinMode: doc.HTTP.GinMode}
	}

	if err := mergo.Merge(cfg, overlay, mergo.WithOverride); err != nil {
		return fmt.Errorf("config: merging %s: %w", path, err)
	}
	return nil
}
