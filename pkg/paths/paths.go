// Package paths resolves the directories tabchat reads and writes.
package paths

import (
	"os"
	"path/filepath"
)

// GetConfigDir returns the directory holding the user configuration file.
// TABCHAT_CONFIG_DIR overrides the default, which follows the XDG layout.
func GetConfigDir() string {
	if dir := os.Getenv("TABCHAT_CONFIG_DIR"); dir != "" {
		return dir
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "tabchat")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".tabchat"
	}
	return filepath.Join(home, ".config", "tabchat")
}

// GetDataDir returns the directory for logs and other machine-local state.
func GetDataDir() string {
	if dir := os.Getenv("TABCHAT_DATA_DIR"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".tabchat"
	}
	return filepath.Join(home, ".tabchat")
}
