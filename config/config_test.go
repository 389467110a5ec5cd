package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Buffer.SizeBytes != 1<<20 {
		t.Errorf("Expected SizeBytes=%d, got %d", 1<<20, cfg.Buffer.SizeBytes)
	}
	if cfg.Trace.Enabled {
		t.Error("Expected Trace.Enabled=false")
	}
	if cfg.Trace.Format != "text" {
		t.Errorf("Expected Trace.Format=text, got %s", cfg.Trace.Format)
	}
	if cfg.Api.Port != 8089 {
		t.Errorf("Expected Api.Port=8089, got %d", cfg.Api.Port)
	}
	if runtime.GOOS == "windows" {
		if cfg.Abi.Convention != "ms-x64" {
			t.Errorf("Expected ms-x64 on windows, got %s", cfg.Abi.Convention)
		}
	} else if cfg.Abi.Convention != "sysv-amd64" {
		t.Errorf("Expected sysv-amd64, got %s", cfg.Abi.Convention)
	}
}

func TestGetConfigPath(t *testing.T) {
	path := GetConfigPath()

	if path == "" {
		t.Error("GetConfigPath returned empty string")
	}
	if filepath.Base(path) != "config.toml" {
		t.Errorf("Expected path to end with config.toml, got %s", path)
	}

	switch runtime.GOOS {
	case "windows":
		if !filepath.IsAbs(path) && path != "config.toml" {
			t.Errorf("Expected absolute path on Windows, got %s", path)
		}
	case "darwin", "linux":
		dir := filepath.Dir(path)
		if filepath.Base(dir) != "x64codegen" && path != "config.toml" {
			t.Errorf("Expected path in x64codegen directory or fallback, got %s", path)
		}
	}
}

func TestGetLogPath(t *testing.T) {
	path := GetLogPath()

	if path == "" {
		t.Error("GetLogPath returned empty string")
	}

	switch runtime.GOOS {
	case "windows":
		if !filepath.IsAbs(path) && path != "logs" {
			t.Errorf("Expected absolute path on Windows, got %s", path)
		}
	case "darwin", "linux":
		if !strings.Contains(path, "x64codegen") && path != "logs" {
			t.Errorf("Expected path under x64codegen or fallback, got %s", path)
		}
	}
}

func TestSaveAndLoad(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "test_config.toml")

	cfg := DefaultConfig()
	cfg.Buffer.SizeBytes = 4096
	cfg.Trace.Enabled = true
	cfg.Trace.Format = "json"
	cfg.Api.Port = 9999

	if err := cfg.SaveTo(configPath); err != nil {
		t.Fatalf("Failed to save config: %v", err)
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		t.Fatal("Config file was not created")
	}

	loaded, err := LoadFrom(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if loaded.Buffer.SizeBytes != 4096 {
		t.Errorf("Expected SizeBytes=4096, got %d", loaded.Buffer.SizeBytes)
	}
	if !loaded.Trace.Enabled {
		t.Error("Expected Trace.Enabled=true")
	}
	if loaded.Trace.Format != "json" {
		t.Errorf("Expected Trace.Format=json, got %s", loaded.Trace.Format)
	}
	if loaded.Api.Port != 9999 {
		t.Errorf("Expected Api.Port=9999, got %d", loaded.Api.Port)
	}
}

func TestLoadNonExistent(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "nonexistent.toml")

	cfg, err := LoadFrom(configPath)
	if err != nil {
		t.Fatalf("LoadFrom should not error on non-existent file: %v", err)
	}
	if cfg.Buffer.SizeBytes != 1<<20 {
		t.Error("Expected default config when file doesn't exist")
	}
}

func TestLoadInvalidTOML(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "invalid.toml")

	invalidTOML := `
[buffer]
size_bytes = "not a number"
`
	if err := os.WriteFile(configPath, []byte(invalidTOML), 0644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}

	if _, err := LoadFrom(configPath); err == nil {
		t.Error("Expected error when loading invalid TOML")
	}
}

func TestSaveCreatesDirectory(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "subdir1", "subdir2", "config.toml")

	cfg := DefaultConfig()
	if err := cfg.SaveTo(configPath); err != nil {
		t.Fatalf("Failed to save config: %v", err)
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		t.Error("Config file was not created")
	}
	dir := filepath.Dir(configPath)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		t.Error("Parent directories were not created")
	}
}
