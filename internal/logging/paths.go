package logging

import (
	"fmt"
	"os"
	"path/filepath"
)

// DefaultLogDir returns the default log directory (~/.clawmongo/logs/).
// Falls back to temp directory if home directory is unavailable.
func DefaultLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".clawmongo", "logs")
	}
	return filepath.Join(home, ".clawmongo", "logs")
}

// DefaultLogPath returns the default server log path.
func DefaultLogPath() string {
	return filepath.Join(DefaultLogDir(), "server.log")
}

// LogSource represents the source of logs to view. clawmongo runs as a
// single Go process (the MongoDB backend and embedding provider are
// reached over the network, not spawned as local subprocesses), so "go"
// is the only source.
type LogSource string

// LogSourceGo is the Go server logs (default and only source).
const LogSourceGo LogSource = "go"

// FindLogFile attempts to find the log file for viewing.
// Priority:
// 1. Explicit path (if provided)
// 2. ~/.clawmongo/logs/server.log (global)
//
// Returns an error if no log file is found.
func FindLogFile(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return explicit, nil
		}
		return "", fmt.Errorf("log file not found: %s", explicit)
	}

	// Try global path
	globalPath := DefaultLogPath()
	if _, err := os.Stat(globalPath); err == nil {
		return globalPath, nil
	}

	return "", fmt.Errorf("no log file found. Server may not have run with --debug yet.\nExpected at: %s", globalPath)
}

// FindLogFileBySource finds log files based on the source type.
// Returns a list of log file paths that exist.
func FindLogFileBySource(source LogSource, explicit string) ([]string, error) {
	// Explicit path takes precedence
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return []string{explicit}, nil
		}
		return nil, fmt.Errorf("log file not found: %s", explicit)
	}

	if source != LogSourceGo {
		return nil, fmt.Errorf("unknown log source: %s (use: go)", source)
	}

	goPath := DefaultLogPath()
	if _, err := os.Stat(goPath); err != nil {
		return nil, fmt.Errorf("no log file found at %s.\n\nTo generate logs:\n  clawmongo --debug serve", goPath)
	}

	return []string{goPath}, nil
}

// ParseLogSource parses a string into a LogSource.
func ParseLogSource(_ string) LogSource {
	return LogSourceGo
}

// EnsureLogDir creates the log directory if it doesn't exist.
func EnsureLogDir() error {
	dir := DefaultLogDir()
	return os.MkdirAll(dir, 0o755)
}
