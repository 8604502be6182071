// Package paths resolves the per-user directories Bufo stores things in and
// derives stable project identities for project-scoped storage.
package paths

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

const appName = "bufo"

// ConfigRoot returns the user configuration directory, created if missing.
// Linux honors XDG_CONFIG_HOME.
func ConfigRoot() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve config dir: %w", err)
	}
	return ensureDir(filepath.Join(base, appName))
}

// StateRoot returns the user state directory (session database, logs),
// created if missing. Linux honors XDG_STATE_HOME.
func StateRoot() (string, error) {
	if v := os.Getenv("XDG_STATE_HOME"); v != "" {
		return ensureDir(filepath.Join(v, appName))
	}
	switch runtime.GOOS {
	case "linux":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		return ensureDir(filepath.Join(home, ".local", "state", appName))
	default:
		// macOS and Windows have no state/config distinction.
		return ConfigRoot()
	}
}

// DataRoot returns the user data directory (project-scoped histories),
// created if missing. Linux honors XDG_DATA_HOME.
func DataRoot() (string, error) {
	if v := os.Getenv("XDG_DATA_HOME"); v != "" {
		return ensureDir(filepath.Join(v, appName))
	}
	switch runtime.GOOS {
	case "linux":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		return ensureDir(filepath.Join(home, ".local", "share", appName))
	default:
		return ConfigRoot()
	}
}

// CustomAgentsDir returns the directory holding user agent definition
// overrides, created if missing.
func CustomAgentsDir() (string, error) {
	root, err := ConfigRoot()
	if err != nil {
		return "", err
	}
	return ensureDir(filepath.Join(root, "agents"))
}

// SessionDBPath returns the session metadata database location.
func SessionDBPath() (string, error) {
	root, err := StateRoot()
	if err != nil {
		return "", err
	}
	return filepath.Join(root, "sessions.sqlite3"), nil
}

// ProjectIdentity derives a stable, human-readable identity for a project
// root: the directory leaf plus a short digest of the resolved absolute path.
// Two paths to the same directory yield the same identity.
func ProjectIdentity(projectRoot string) string {
	normalized := projectRoot
	if abs, err := filepath.Abs(projectRoot); err == nil {
		normalized = abs
	}
	if resolved, err := filepath.EvalSymlinks(normalized); err == nil {
		normalized = resolved
	}

	sum := sha1.Sum([]byte(normalized))
	digest := hex.EncodeToString(sum[:])[:12]

	leaf := filepath.Base(normalized)
	if leaf == "." || leaf == string(filepath.Separator) || leaf == "" {
		leaf = "root"
	}
	return leaf + "-" + digest
}

// ProjectDataDir returns the per-project data directory, created if missing.
func ProjectDataDir(projectRoot string) (string, error) {
	root, err := DataRoot()
	if err != nil {
		return "", err
	}
	return ensureDir(filepath.Join(root, "projects", ProjectIdentity(projectRoot)))
}

func ensureDir(path string) (string, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", path, err)
	}
	return path, nil
}
