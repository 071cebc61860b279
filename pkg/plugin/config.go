/*
 * MIT License
 * Copyright (c) 2026 Crrow
 */

package plugin

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Environment variables. The interpreter binary is the only required input;
// everything else has a default or comes from the optional config file.
const (
	EnvPythonBin = "PYGPI_PYTHON_BIN"
	EnvConfig    = "PYGPI_CONFIG"
	EnvLogLevel  = "PYGPI_LOG_LEVEL"
)

const defaultConfigFile = "pygpi.yaml"

// Config is the bridge's startup configuration. File values are overridden
// by environment variables.
type Config struct {
	// PythonBin is the absolute path of the interpreter binary whose
	// installation gets embedded.
	PythonBin string `yaml:"python_bin"`

	// LogLevel is a zap level name: debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	// EntryModule/EntryFunc name the user runtime's entry point.
	EntryModule string `yaml:"entry_module"`
	EntryFunc   string `yaml:"entry_func"`

	// MinPython is the oldest interpreter version accepted.
	MinPython string `yaml:"min_python"`
}

func defaultConfig() *Config {
	return &Config{
		LogLevel:    "info",
		EntryModule: "mycocotb.entry",
		EntryFunc:   "load_entry",
		MinPython:   "3.8.0",
	}
}

// LoadConfig reads the file named by PYGPI_CONFIG, or ./pygpi.yaml when it
// exists, and applies environment overrides.
func LoadConfig() (*Config, error) {
	cfg := defaultConfig()

	path := os.Getenv(EnvConfig)
	explicit := path != ""
	if !explicit {
		path = defaultConfigFile
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case explicit:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if bin := os.Getenv(EnvPythonBin); bin != "" {
		cfg.PythonBin = bin
	}
	if lvl := os.Getenv(EnvLogLevel); lvl != "" {
		cfg.LogLevel = lvl
	}
	return cfg, nil
}
