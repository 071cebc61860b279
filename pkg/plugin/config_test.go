/*
 * MIT License
 * Copyright (c) 2026 Crrow
 */

package plugin

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv(EnvConfig, "")
	t.Setenv(EnvPythonBin, "")
	t.Setenv(EnvLogLevel, "")
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.EntryModule != "mycocotb.entry" || cfg.EntryFunc != "load_entry" {
		t.Fatalf("unexpected entry point %s.%s", cfg.EntryModule, cfg.EntryFunc)
	}
	if cfg.LogLevel != "info" {
		t.Fatalf("default log level = %q", cfg.LogLevel)
	}
	if cfg.MinPython != "3.8.0" {
		t.Fatalf("default minimum version = %q", cfg.MinPython)
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bridge.yaml")
	data := "python_bin: /opt/py/bin/python3\nlog_level: debug\nentry_module: myrt.boot\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvConfig, path)
	t.Setenv(EnvPythonBin, "")
	t.Setenv(EnvLogLevel, "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.PythonBin != "/opt/py/bin/python3" {
		t.Fatalf("python_bin = %q", cfg.PythonBin)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("log_level = %q", cfg.LogLevel)
	}
	if cfg.EntryModule != "myrt.boot" || cfg.EntryFunc != "load_entry" {
		t.Fatalf("entry point = %s.%s", cfg.EntryModule, cfg.EntryFunc)
	}
}

func TestLoadConfigEnvWins(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bridge.yaml")
	if err := os.WriteFile(path, []byte("python_bin: /from/file\nlog_level: warn\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvConfig, path)
	t.Setenv(EnvPythonBin, "/from/env")
	t.Setenv(EnvLogLevel, "error")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.PythonBin != "/from/env" {
		t.Fatalf("python_bin = %q, env should win", cfg.PythonBin)
	}
	if cfg.LogLevel != "error" {
		t.Fatalf("log_level = %q, env should win", cfg.LogLevel)
	}
}

func TestLoadConfigMissingExplicitFile(t *testing.T) {
	t.Setenv(EnvConfig, filepath.Join(t.TempDir(), "absent.yaml"))
	if _, err := LoadConfig(); err == nil {
		t.Fatal("want an error for a missing explicit config file")
	}
}

func TestCheckVersion(t *testing.T) {
	tests := []struct {
		have, min string
		wantErr   bool
	}{
		{have: "3.11.4", min: "3.8.0"},
		{have: "3.8.0", min: "3.8.0"},
		{have: "3.7.9", min: "3.8.0", wantErr: true},
		{have: "not-a-version", min: "3.8.0", wantErr: true},
	}
	for _, tt := range tests {
		err := checkVersion(tt.have, tt.min)
		if (err != nil) != tt.wantErr {
			t.Fatalf("checkVersion(%q, %q) error = %v, wantErr %v", tt.have, tt.min, err, tt.wantErr)
		}
	}
}
