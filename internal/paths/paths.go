// Package paths provides centralized path resolution for instasave.
// This package has NO internal imports (only stdlib) to avoid import cycles.
// All functions return errors to allow callers to log appropriately.
package paths

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
)

const (
	AdminFile   = "admin.json"
	UsersFile   = "users.json"
	ArtifactDir = "tmp"
)

// BaseDir returns the instasave base directory (~/.instasave).
func BaseDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".instasave"), nil
}

// DataPath returns a path within the instasave data directory (~/.instasave/<subpath>).
func DataPath(subpath string) (string, error) {
	base, err := BaseDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, subpath), nil
}

// ConfigPath returns the active instasave.toml path.
// Priority: ./instasave.toml (current dir) > ~/.instasave/instasave.toml
// Returns ("", nil) if no config exists - this is a valid state, not an error.
func ConfigPath() (string, error) {
	localPath := "instasave.toml"
	if Exists(localPath) {
		absPath, err := filepath.Abs(localPath)
		if err != nil {
			return "", fmt.Errorf("failed to get absolute path: %w", err)
		}
		return absPath, nil
	}

	globalPath, err := DataPath("instasave.toml")
	if err != nil {
		return "", err
	}
	if Exists(globalPath) {
		return globalPath, nil
	}

	return "", nil
}

var unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

// SessionPath returns the session blob path for an Instagram account.
// The account name is sanitized so it cannot escape dataDir.
func SessionPath(dataDir, username string) string {
	name := unsafeNameChars.ReplaceAllString(username, "_")
	if name == "" || name == "." || name == ".." {
		name = "default"
	}
	return filepath.Join(dataDir, "session-"+name)
}

// EnsureDir creates a directory if it doesn't exist.
// Uses 0750 permissions (owner: rwx, group: rx, other: none).
func EnsureDir(path string) error {
	if err := os.MkdirAll(path, 0750); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", path, err)
	}
	return nil
}

// EnsureParentDir creates the parent directory of a file path if it doesn't exist.
func EnsureParentDir(filePath string) error {
	return EnsureDir(filepath.Dir(filePath))
}

// ExpandTilde expands a path that starts with ~ to the user's home directory.
// Returns the path unchanged if it doesn't start with ~.
func ExpandTilde(path string) (string, error) {
	if len(path) == 0 || path[0] != '~' {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	if len(path) == 1 {
		return home, nil
	}
	return filepath.Join(home, path[1:]), nil
}

// Exists reports whether path exists. Errors other than not-exist count as existing
// so callers never overwrite something they could not inspect.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil || !os.IsNotExist(err)
}
