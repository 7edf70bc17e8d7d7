// Package preferences provides user-level configuration for tabchat.
// This configuration is stored in ~/.config/tabchat/config.yaml and holds
// the server address plus the defaults new tabs inherit.
package preferences

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/goccy/go-yaml"
	"github.com/natefinch/atomic"

	"github.com/tabchat/tabchat/pkg/paths"
)

// CurrentVersion is the current version of the preferences format.
const CurrentVersion = "v1"

// DefaultServerURL is used when no server is configured.
const DefaultServerURL = "http://localhost:8765"

// Config represents the user-level tabchat configuration. New tabs read the
// defaults at creation time; an explicit selection in the UI writes them
// back, so a mid-session file edit never retroactively changes open tabs.
type Config struct {
	mu sync.Mutex

	// Version is the config format version.
	Version string `yaml:"version,omitempty"`
	// ServerURL is the agent server's base URL.
	ServerURL string `yaml:"server_url,omitempty"`
	// DefaultProfile is the agent profile new tabs start with.
	DefaultProfile string `yaml:"default_profile,omitempty"`
	// DefaultProject is the project new tabs start with.
	DefaultProject string `yaml:"default_project,omitempty"`
	// Theme selects the TUI color theme ("dark" or "light").
	Theme string `yaml:"theme,omitempty"`
}

// Path returns the path to the preferences file.
func Path() string {
	return filepath.Join(paths.GetConfigDir(), "config.yaml")
}

// Load loads the preferences from the config file. A missing file yields
// the defaults.
func Load() (*Config, error) {
	return loadFrom(Path())
}

func loadFrom(configPath string) (*Config, error) {
	config := &Config{ServerURL: DefaultServerURL}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return config, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if config.ServerURL == "" {
		config.ServerURL = DefaultServerURL
	}

	return config, nil
}

// SetDefaults records an explicit profile and project selection. Empty
// values leave the existing defaults untouched.
func (c *Config) SetDefaults(profile, project string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if profile != "" {
		c.DefaultProfile = profile
	}
	if project != "" {
		c.DefaultProject = project
	}
}

// Save saves the preferences to the config file.
func (c *Config) Save() error {
	return c.saveTo(Path())
}

func (c *Config) saveTo(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	c.Version = CurrentVersion

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	return atomic.WriteFile(path, bytes.NewReader(data))
}
