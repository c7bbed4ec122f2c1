package logging

import (
	"os"
	"path/filepath"
)

// DefaultLogDir returns the default log directory (~/.know/logs/),
// honoring KNOW_HOME. Falls back to the temp directory if the home
// directory is unavailable.
func DefaultLogDir() string {
	if home := os.Getenv("KNOW_HOME"); home != "" {
		return filepath.Join(home, "logs")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".know", "logs")
	}
	return filepath.Join(home, ".know", "logs")
}

// DefaultLogPath returns the default CLI log path.
func DefaultLogPath() string {
	return filepath.Join(DefaultLogDir(), "know.log")
}

// EnsureLogDir creates the log directory if it doesn't exist.
func EnsureLogDir() error {
	return os.MkdirAll(DefaultLogDir(), 0o755)
}
