package config

import (
	"os"
	"path/filepath"
	"strings"
)

// ExpandPath expands a leading ~ and $VAR references in path.
func ExpandPath(path string) string {
	if path == "" {
		return path
	}

	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, strings.TrimPrefix(path[1:], "/"))
		}
	}

	return os.ExpandEnv(path)
}

// DefaultDatabasePath is where the SQLite database lives unless configured.
func DefaultDatabasePath() string {
	return ExpandPath("~/.local/share/tierkeeper/tierkeeper.db")
}

// DefaultConfigDir is searched for config.yaml.
func DefaultConfigDir() string {
	return ExpandPath("~/.config/tierkeeper")
}
