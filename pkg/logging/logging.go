// Package logging configures the process-wide slog output. Logs go to a
// rotating file, never to stdout or stderr, so the TUI owns the terminal.
package logging

import (
	"io"
	"log/slog"
	"path/filepath"

	"github.com/tabchat/tabchat/pkg/paths"
)

// DefaultLogPath returns the default debug log location.
func DefaultLogPath() string {
	return filepath.Join(paths.GetDataDir(), "tabchat.debug.log")
}

// Setup installs a text handler writing to a rotating file at path and
// returns a closer for the file. An empty path selects DefaultLogPath.
func Setup(path string, debug bool) (io.Closer, error) {
	if path == "" {
		path = DefaultLogPath()
	}

	file, err := NewRotatingFile(path)
	if err != nil {
		return nil, err
	}

	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(file, &slog.HandlerOptions{Level: level})))
	return file, nil
}
