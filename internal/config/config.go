// Package config manages douit configuration and the .douit directory
// structure. It handles loading, saving, and initializing the workspace
// configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

const (
	DouitDir   = ".douit"
	ConfigFile = "config"
	DataDir    = "data"
)

// ErrNoWorkspace is returned when no .douit directory exists in the working
// directory or any of its parents.
var ErrNoWorkspace = errors.New("not a douit workspace (or any parent up to root)")

// Config represents the douit configuration. Store is "bolt" or "sqlite",
// Listen is the HTTP listen address, and RateLimit is requests per minute per
// user (0 disables it). path is the .douit directory the config was read from.
type Config struct {
	Store       string   `toml:"store"`
	Listen      string   `toml:"listen"`
	LogLevel    string   `toml:"log_level"`
	LogFormat   string   `toml:"log_format"`
	WebhookURLs []string `toml:"webhook_urls"`
	RateLimit   int      `toml:"rate_limit"`
	CORSOrigins []string `toml:"cors_origins"`
	path        string
}

// Default returns the configuration written by Initialize.
func Default() *Config {
	return &Config{
		Store:     "bolt",
		Listen:    ":8720",
		LogLevel:  "info",
		LogFormat: "json",
		RateLimit: 600,
	}
}

// FindRoot finds the .douit directory by walking up from the current directory
func FindRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return findRootFrom(dir)
}

func findRootFrom(dir string) (string, error) {
	for {
		douitPath := filepath.Join(dir, DouitDir)
		if info, err := os.Stat(douitPath); err == nil && info.IsDir() {
			return douitPath, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", ErrNoWorkspace
		}
		dir = parent
	}
}

// Load loads the configuration from the nearest .douit directory
func Load() (*Config, error) {
	douitPath, err := FindRoot()
	if err != nil {
		return nil, err
	}
	return LoadFrom(douitPath)
}

// LoadFrom loads the configuration from the given .douit directory. Fields
// missing from the file keep their defaults.
func LoadFrom(douitPath string) (*Config, error) {
	data, err := os.ReadFile(filepath.Join(douitPath, ConfigFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := Default()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	cfg.path = douitPath
	return cfg, nil
}

// Validate checks enumerated fields.
func (c *Config) Validate() error {
	switch c.Store {
	case "bolt", "sqlite":
	default:
		return fmt.Errorf("invalid store %q: must be bolt or sqlite", c.Store)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log_level %q", c.LogLevel)
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("invalid log_format %q", c.LogFormat)
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("invalid rate_limit %d", c.RateLimit)
	}
	return nil
}

// Save saves the configuration to disk
func (c *Config) Save() error {
	configPath := filepath.Join(c.path, ConfigFile)
	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	return os.WriteFile(configPath, data, 0644)
}

// Path returns the path to the .douit directory
func (c *Config) Path() string {
	return c.path
}

// DataPath returns the directory holding the document store files
func (c *Config) DataPath() string {
	return filepath.Join(c.path, DataDir)
}

// Initialize creates a new .douit directory in dir with the given store backend
func Initialize(dir, store string) (*Config, error) {
	douitPath := filepath.Join(dir, DouitDir)

	// Check if already initialized
	if _, err := os.Stat(douitPath); err == nil {
		return nil, fmt.Errorf("douit workspace already exists at %s", douitPath)
	}

	cfg := Default()
	if store != "" {
		cfg.Store = store
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.path = douitPath

	if err := os.MkdirAll(cfg.DataPath(), 0755); err != nil {
		return nil, fmt.Errorf("failed to create .douit directory: %w", err)
	}

	if err := cfg.Save(); err != nil {
		// Cleanup on failure
		os.RemoveAll(douitPath)
		return nil, err
	}

	return cfg, nil
}
