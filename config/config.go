// Package config loads the generator's TOML configuration: the active
// ABI, execution-buffer sizing, build tracing, and the optional
// introspection API server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/BurntSushi/toml"
)

// Config is the generator's top-level configuration.
type Config struct {
	// Abi selects which calling convention generated code follows
	// (spec.md §6): a single compile-time configuration variable of the
	// core.
	Abi struct {
		Convention string `toml:"convention"` // "ms-x64" or "sysv-amd64"
	} `toml:"abi"`

	// Buffer records an execution-buffer size in bytes. No package in this
	// module reads it: the scenarios map a fixed 64 KiB buffer and
	// service.NewCompilerService takes its size as an argument.
	Buffer struct {
		SizeBytes int `toml:"size_bytes"`
	} `toml:"buffer"`

	// Trace controls the build-event trace emitted while a function is
	// assembled (see package trace).
	Trace struct {
		Enabled    bool   `toml:"enabled"`
		OutputFile string `toml:"output_file"`
		Format     string `toml:"format"` // json, csv, text
	} `toml:"trace"`

	// Api controls the optional live introspection server (see package api).
	Api struct {
		Enabled bool `toml:"enabled"`
		Port    int  `toml:"port"`
	} `toml:"api"`
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Abi.Convention = defaultConvention()

	cfg.Buffer.SizeBytes = 1 << 20 // 1MB

	cfg.Trace.Enabled = false
	cfg.Trace.OutputFile = "build-trace.log"
	cfg.Trace.Format = "text"

	cfg.Api.Enabled = false
	cfg.Api.Port = 8089

	return cfg
}

// defaultConvention picks System V AMD64 everywhere except Windows,
// matching the host toolchain's own ABI (spec.md §6).
func defaultConvention() string {
	if runtime.GOOS == "windows" {
		return "ms-x64"
	}
	return "sysv-amd64"
}

// GetConfigPath returns the platform-specific config file path
func GetConfigPath() string {
	var configDir string

	switch runtime.GOOS {
	case "windows":
		// Windows: %APPDATA%\x64codegen\config.toml
		configDir = os.Getenv("APPDATA")
		if configDir == "" {
			configDir = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
		configDir = filepath.Join(configDir, "x64codegen")

	case "darwin", "linux":
		// macOS/Linux: ~/.config/x64codegen/config.toml
		homeDir, err := os.UserHomeDir()
		if err != nil {
			// Fallback to current directory
			return "config.toml"
		}
		configDir = filepath.Join(homeDir, ".config", "x64codegen")

	default:
		// Unknown platform: use current directory
		return "config.toml"
	}

	// Ensure directory exists
	if err := os.MkdirAll(configDir, 0750); err != nil {
		// If we can't create the directory, fall back to current directory
		return "config.toml"
	}

	return filepath.Join(configDir, "config.toml")
}

// GetLogPath returns the platform-specific log directory path
func GetLogPath() string {
	var logDir string

	switch runtime.GOOS {
	case "windows":
		// Windows: %APPDATA%\x64codegen\logs
		logDir = os.Getenv("APPDATA")
		if logDir == "" {
			logDir = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
		logDir = filepath.Join(logDir, "x64codegen", "logs")

	case "darwin", "linux":
		// macOS/Linux: ~/.local/share/x64codegen/logs
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "logs"
		}
		logDir = filepath.Join(homeDir, ".local", "share", "x64codegen", "logs")

	default:
		return "logs"
	}

	// Ensure directory exists
	if err := os.MkdirAll(logDir, 0750); err != nil {
		return "logs"
	}

	return logDir
}

// Load loads configuration from the default config file
func Load() (*Config, error) {
	return LoadFrom(GetConfigPath())
}

// LoadFrom loads configuration from the specified file
func LoadFrom(path string) (*Config, error) {
	cfg := DefaultConfig()

	// If file doesn't exist, return default config
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	// Read and parse config file
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

// Save saves configuration to the default config file
func (c *Config) Save() error {
	return c.SaveTo(GetConfigPath())
}

// SaveTo saves configuration to the specified file
func (c *Config) SaveTo(path string) error {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Create file
	f, err := os.Create(path) // #nosec G304 -- user config file path
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close config file: %w", closeErr)
		}
	}()

	// Encode to TOML
	encoder := toml.NewEncoder(f)
	if err := encoder.Encode(c); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	return nil
}
